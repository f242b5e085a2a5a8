package dropbox

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"instapost/internal/config"
	"instapost/pkg/logx"
)

func TestDirectURL(t *testing.T) {
	got := DirectURL("https://www.dropbox.com/s/abc/pic.jpg?dl=0")
	want := "https://dl.dropboxusercontent.com/s/abc/pic.jpg?raw=1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestUploadAndLink(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "pic.jpg")
	if err := os.WriteFile(local, []byte("fake image bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.FormValue("grant_type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"short-lived","expires_in":14400}`))
	})
	mux.HandleFunc("/files/upload", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer short-lived" {
			t.Errorf("auth = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"pic.jpg"}`))
	})
	mux.HandleFunc("/sharing/create_shared_link_with_settings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url":"https://www.dropbox.com/s/abc/pic.jpg?dl=0"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(&config.Credentials{
		DropboxAppKey:       "key",
		DropboxAppSecret:    "secret",
		DropboxRefreshToken: "refresh",
		DropboxFolder:       "/instapost",
	}, logx.Nop())
	c.SetBaseURLs(srv.URL+"/oauth2/token", srv.URL, srv.URL)

	url, err := c.UploadAndLink(context.Background(), local)
	if err != nil {
		t.Fatalf("UploadAndLink: %v", err)
	}
	if url != "https://dl.dropboxusercontent.com/s/abc/pic.jpg?raw=1" {
		t.Fatalf("url = %q", url)
	}
}

func TestSharedLinkAlreadyExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"short-lived","expires_in":14400}`))
	})
	mux.HandleFunc("/sharing/create_shared_link_with_settings", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error_summary":"shared_link_already_exists/.","error":{".tag":"shared_link_already_exists"}}`))
	})
	mux.HandleFunc("/sharing/list_shared_links", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"links":[{"url":"https://www.dropbox.com/s/xyz/pic.jpg?dl=0"}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(&config.Credentials{DropboxFolder: "/instapost"}, logx.Nop())
	c.SetBaseURLs(srv.URL+"/oauth2/token", srv.URL, srv.URL)

	url, err := c.SharedLink(context.Background(), "/instapost/pic.jpg")
	if err != nil {
		t.Fatalf("SharedLink: %v", err)
	}
	if url != "https://dl.dropboxusercontent.com/s/xyz/pic.jpg?raw=1" {
		t.Fatalf("url = %q", url)
	}
}
