package publish

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"instapost/internal/clients"
	"instapost/internal/clients/instagram"
	"instapost/internal/config"
	"instapost/pkg/logx"
)

type fakeUploader struct {
	url   string
	err   error
	calls int
}

func (f *fakeUploader) UploadAndLink(ctx context.Context, localPath string) (string, error) {
	f.calls++
	return f.url, f.err
}

type fakePoster struct {
	containerErr  error
	publishErrs   []error // consumed one per Publish call, then success
	publishCalls  int
	permalink     string
	containerID   string
	mediaID       string
	containerSeen []string
}

func (f *fakePoster) CreateContainer(ctx context.Context, imageURL, caption string) (string, error) {
	f.containerSeen = append(f.containerSeen, imageURL)
	if f.containerErr != nil {
		return "", f.containerErr
	}
	if f.containerID == "" {
		return "container-1", nil
	}
	return f.containerID, nil
}

func (f *fakePoster) Publish(ctx context.Context, creationID string) (string, error) {
	f.publishCalls++
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		if err != nil {
			return "", err
		}
	}
	if f.mediaID == "" {
		return "media-1", nil
	}
	return f.mediaID, nil
}

func (f *fakePoster) Permalink(ctx context.Context, mediaID string) string {
	if f.permalink != "" {
		return f.permalink
	}
	return "https://www.instagram.com/p/" + mediaID + "/"
}

func newTestPipeline(t *testing.T, up Uploader, po Poster) (*Pipeline, *[]time.Duration) {
	t.Helper()
	p, err := NewPipeline(up, po, config.PublishConfig{}, logx.Nop())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	var slept []time.Duration
	p.SetSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})
	return p, &slept
}

func TestPublishHappyPath(t *testing.T) {
	up := &fakeUploader{url: "https://dl.dropboxusercontent.com/s/abc/pic.jpg?raw=1"}
	po := &fakePoster{}
	p, slept := newTestPipeline(t, up, po)

	res, err := p.Publish(context.Background(), "/watch/pic.jpg", "caption")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.URL != "https://www.instagram.com/p/media-1/" {
		t.Fatalf("url = %q", res.URL)
	}
	if up.calls != 1 || po.publishCalls != 1 {
		t.Fatalf("calls: upload=%d publish=%d", up.calls, po.publishCalls)
	}
	if len(*slept) != 0 {
		t.Fatalf("unexpected sleeps %v", *slept)
	}
}

func TestPublishRetriesUntilMediaReady(t *testing.T) {
	up := &fakeUploader{url: "https://example.com/pic.jpg"}
	po := &fakePoster{publishErrs: []error{
		instagram.ErrMediaNotReady,
		instagram.ErrMediaNotReady,
		instagram.ErrMediaNotReady,
	}}
	p, slept := newTestPipeline(t, up, po)

	res, err := p.Publish(context.Background(), "/watch/pic.jpg", "")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if po.publishCalls != 4 {
		t.Fatalf("publish calls = %d, want 4", po.publishCalls)
	}
	want := []time.Duration{2 * time.Second, 3 * time.Second, 4500 * time.Millisecond}
	if len(*slept) != len(want) {
		t.Fatalf("slept %v, want %v", *slept, want)
	}
	for i := range want {
		if (*slept)[i] != want[i] {
			t.Fatalf("sleep[%d] = %v, want %v", i, (*slept)[i], want[i])
		}
	}
	if res.MediaID != "media-1" {
		t.Fatalf("media id = %q", res.MediaID)
	}
}

func TestPublishNotReadyExhaustion(t *testing.T) {
	up := &fakeUploader{url: "https://example.com/pic.jpg"}
	po := &fakePoster{publishErrs: []error{
		instagram.ErrMediaNotReady,
		instagram.ErrMediaNotReady,
		instagram.ErrMediaNotReady,
		instagram.ErrMediaNotReady,
		instagram.ErrMediaNotReady,
	}}
	p, _ := newTestPipeline(t, up, po)

	_, err := p.Publish(context.Background(), "/watch/pic.jpg", "")
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("want RetryExhaustedError, got %v", err)
	}
	if po.publishCalls != 5 {
		t.Fatalf("publish calls = %d, want 5", po.publishCalls)
	}
}

func TestPublishPermanentErrorFailsFast(t *testing.T) {
	up := &fakeUploader{url: "https://example.com/pic.jpg"}
	po := &fakePoster{containerErr: clients.Permanentf("create media container", "invalid access token")}
	p, slept := newTestPipeline(t, up, po)

	_, err := p.Publish(context.Background(), "/watch/pic.jpg", "")
	if err == nil || clients.IsTransient(err) {
		t.Fatalf("want permanent failure, got %v", err)
	}
	if len(*slept) != 0 {
		t.Fatalf("should not back off on permanent error, slept %v", *slept)
	}
	if po.publishCalls != 0 {
		t.Fatal("publish attempted after container failure")
	}
}

func TestPublishTransientContainerErrorRetried(t *testing.T) {
	up := &fakeUploader{url: "https://example.com/pic.jpg"}
	po := &fakePoster{containerErr: clients.Transientf("create media container", "status 502")}
	p, _ := newTestPipeline(t, up, po)

	_, err := p.Publish(context.Background(), "/watch/pic.jpg", "")
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("want RetryExhaustedError, got %v", err)
	}
	if got := len(po.containerSeen); got != 5 {
		t.Fatalf("container attempts = %d, want 5", got)
	}
}

func TestPublishUploadFailureAborts(t *testing.T) {
	up := &fakeUploader{err: clients.Permanentf("dropbox upload", "read failed")}
	po := &fakePoster{}
	p, _ := newTestPipeline(t, up, po)

	if _, err := p.Publish(context.Background(), "/watch/pic.jpg", ""); err == nil {
		t.Fatal("want error")
	}
	if len(po.containerSeen) != 0 {
		t.Fatal("post attempted after upload failure")
	}
}

func TestResolveCaption(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "pic.jpg")

	if got := ResolveCaption(img, "from ingest"); got != "from ingest" {
		t.Fatalf("got %q", got)
	}
	if err := os.WriteFile(SidecarPath(img), []byte("  from sidecar\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := ResolveCaption(img, "from ingest"); got != "from sidecar" {
		t.Fatalf("got %q", got)
	}
	if got := ResolveCaption(filepath.Join(dir, "other.jpg"), ""); got != "" {
		t.Fatalf("got %q", got)
	}
}
