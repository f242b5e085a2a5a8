package instagram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"instapost/internal/clients"
	"instapost/internal/config"
	"instapost/pkg/logx"
)

func newTestClient(url string) *Client {
	c := New(&config.Credentials{
		InstagramAccountID:  "17841400000000000",
		FacebookAccessToken: "test-token",
	}, logx.Nop())
	c.SetBaseURL(url)
	return c
}

func TestCreateContainer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/17841400000000000/media" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("image_url"); got != "https://example.com/a.jpg" {
			t.Errorf("image_url = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"container-1"}`))
	}))
	defer srv.Close()

	id, err := newTestClient(srv.URL).CreateContainer(context.Background(), "https://example.com/a.jpg", "hello")
	if err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	if id != "container-1" {
		t.Fatalf("id = %q", id)
	}
}

func TestPublishMediaNotReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Media not ready","code":9007,"error_subcode":2207027}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Publish(context.Background(), "container-1")
	if !errors.Is(err, ErrMediaNotReady) {
		t.Fatalf("want ErrMediaNotReady, got %v", err)
	}
}

func TestPublishOtherErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid parameter","code":100}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Publish(context.Background(), "container-1")
	if err == nil || clients.IsTransient(err) {
		t.Fatalf("want permanent error, got %v", err)
	}
}

func TestPublishServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Publish(context.Background(), "container-1")
	if err == nil || !clients.IsTransient(err) {
		t.Fatalf("want transient error, got %v", err)
	}
}

func TestPermalinkFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	got := newTestClient(srv.URL).Permalink(context.Background(), "18000000000000000")
	want := "https://www.instagram.com/p/18000000000000000/"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPermalinkResolved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"permalink":"https://www.instagram.com/p/ABC123/"}`))
	}))
	defer srv.Close()

	got := newTestClient(srv.URL).Permalink(context.Background(), "18000000000000000")
	if got != "https://www.instagram.com/p/ABC123/" {
		t.Fatalf("got %q", got)
	}
}

func TestGetAccountInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"17841400000000000","username":"someaccount","followers_count":1234,"media_count":56}`))
	}))
	defer srv.Close()

	info, err := newTestClient(srv.URL).GetAccountInfo(context.Background())
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info.Username != "someaccount" || info.FollowersCount != 1234 {
		t.Fatalf("info = %+v", info)
	}
}

func TestRecentMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/17841400000000000/media" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "2" {
			t.Errorf("limit = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[
			{"id":"m2","caption":"second","permalink":"https://www.instagram.com/p/m2/","timestamp":"2026-03-02T12:00:00+0000"},
			{"id":"m1","caption":"first","permalink":"https://www.instagram.com/p/m1/","timestamp":"2026-03-01T12:00:00+0000"}
		]}`))
	}))
	defer srv.Close()

	media, err := newTestClient(srv.URL).RecentMedia(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentMedia: %v", err)
	}
	if len(media) != 2 {
		t.Fatalf("got %d entries, want 2", len(media))
	}
	if media[0].ID != "m2" || media[0].Permalink != "https://www.instagram.com/p/m2/" {
		t.Fatalf("unexpected first entry: %+v", media[0])
	}
}

func TestRecentMediaServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).RecentMedia(context.Background(), 5)
	if err == nil || !clients.IsTransient(err) {
		t.Fatalf("want transient error, got %v", err)
	}
}
