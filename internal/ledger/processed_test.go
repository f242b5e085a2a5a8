package ledger

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "instapost/pkg/logx"
)

func TestProcessedAppendAndLoad(t *testing.T) {
	s := NewProcessedStore(filepath.Join(t.TempDir(), "processed.json"), logx.Nop())

	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	url := "https://www.instagram.com/p/abc/"
	if err := s.Append(ProcessedEntry{Filename: "a.jpg", ScheduledAt: at, URL: &url, ProcessedAt: at}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ProcessedEntry{Filename: "b.jpg", ScheduledAt: at, URL: nil, ProcessedAt: at}); err != nil {
		t.Fatalf("Append unconfirmed: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].URL == nil || *got[0].URL != url {
		t.Fatalf("url = %v, want %s", got[0].URL, url)
	}
	if got[1].URL != nil {
		t.Fatalf("unconfirmed entry has url %q", *got[1].URL)
	}
}

func TestProcessedRefusesDuplicateConfirmation(t *testing.T) {
	s := NewProcessedStore(filepath.Join(t.TempDir(), "processed.json"), logx.Nop())

	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	url := "https://www.instagram.com/p/abc/"
	if err := s.Append(ProcessedEntry{Filename: "a.jpg", ScheduledAt: at, URL: &url, ProcessedAt: at}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	err := s.Append(ProcessedEntry{Filename: "a.jpg", ScheduledAt: at, URL: &url, ProcessedAt: at})
	if err == nil || !strings.Contains(err.Error(), "already confirms") {
		t.Fatalf("err = %v, want duplicate confirmation refusal", err)
	}
}

func TestProcessedFilenamesAndConfirmed(t *testing.T) {
	s := NewProcessedStore(filepath.Join(t.TempDir(), "processed.json"), logx.Nop())

	at := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	url := "https://www.instagram.com/p/abc/"
	mustAppend := func(e ProcessedEntry) {
		t.Helper()
		if err := s.Append(e); err != nil {
			t.Fatalf("Append %s: %v", e.Filename, err)
		}
	}
	mustAppend(ProcessedEntry{Filename: "done.jpg", ScheduledAt: at, URL: &url, ProcessedAt: at})
	mustAppend(ProcessedEntry{Filename: "started.jpg", ScheduledAt: at, URL: nil, ProcessedAt: at})

	names, err := s.Filenames()
	if err != nil {
		t.Fatalf("Filenames: %v", err)
	}
	// Both confirmed and in-progress entries count as handled.
	for _, want := range []string{"done.jpg", "started.jpg"} {
		if _, ok := names[want]; !ok {
			t.Fatalf("Filenames missing %s", want)
		}
	}

	confirmed, err := s.Confirmed()
	if err != nil {
		t.Fatalf("Confirmed: %v", err)
	}
	if len(confirmed) != 1 || confirmed[0].Filename != "done.jpg" {
		t.Fatalf("Confirmed = %+v, want only done.jpg", confirmed)
	}
}
