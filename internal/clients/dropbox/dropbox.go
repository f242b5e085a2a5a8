// Package dropbox is a minimal Dropbox API client covering what the
// publish pipeline needs: upload a file and obtain a direct-download link.
package dropbox

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"instapost/internal/clients"
	"instapost/internal/config"
	"instapost/pkg/logx"
)

const (
	tokenURL   = "https://api.dropbox.com/oauth2/token"
	apiURL     = "https://api.dropboxapi.com/2"
	contentURL = "https://content.dropboxapi.com/2"

	defaultTimeout = 30 * time.Second
)

// Client talks to the Dropbox HTTP API using a long-lived refresh token.
// Short-lived access tokens are minted lazily and cached until shortly
// before expiry.
type Client struct {
	rest   *resty.Client
	log    logx.Logger
	folder string

	appKey       string
	appSecret    string
	refreshToken string

	urls endpoints

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

func New(creds *config.Credentials, log logx.Logger) *Client {
	rest := resty.New().
		SetTimeout(defaultTimeout).
		SetHeader("User-Agent", "instapost")
	return &Client{
		rest:         rest,
		log:          log,
		folder:       creds.DropboxFolder,
		appKey:       creds.DropboxAppKey,
		appSecret:    creds.DropboxAppSecret,
		refreshToken: creds.DropboxRefreshToken,
	}
}

type endpoints struct {
	token, api, content string
}

// SetBaseURLs redirects API traffic, for tests against httptest servers.
func (c *Client) SetBaseURLs(token, api, content string) {
	c.urls = endpoints{token: token, api: api, content: content}
}

func (c *Client) endpointsOrDefault() endpoints {
	e := c.urls
	if e.token == "" {
		e.token = tokenURL
	}
	if e.api == "" {
		e.api = apiURL
	}
	if e.content == "" {
		e.content = contentURL
	}
	return e
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.expiresAt) {
		return c.accessToken, nil
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	resp, err := c.rest.R().SetContext(ctx).
		SetBasicAuth(c.appKey, c.appSecret).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": c.refreshToken,
		}).
		SetResult(&body).
		Post(c.endpointsOrDefault().token)
	if err != nil {
		return "", &clients.TransientError{Op: "dropbox token refresh", Err: err}
	}
	if resp.IsError() {
		return "", clients.ClassifyStatus("dropbox token refresh", resp.StatusCode(), resp.String())
	}
	if body.AccessToken == "" {
		return "", clients.Permanentf("dropbox token refresh", "empty access token in response")
	}
	c.accessToken = body.AccessToken
	c.expiresAt = time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

// Upload stores the local file under the configured folder, overwriting any
// previous upload of the same name, and returns the remote path.
func (c *Client) Upload(ctx context.Context, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", clients.Permanentf("dropbox upload", "read %s: %v", localPath, err)
	}
	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	remote := path.Join(c.folder, path.Base(localPath))
	arg, _ := json.Marshal(map[string]any{
		"path": remote,
		"mode": "overwrite",
		"mute": true,
	})
	resp, err := c.rest.R().SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Dropbox-API-Arg", string(arg)).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(data).
		Post(c.endpointsOrDefault().content + "/files/upload")
	if err != nil {
		return "", &clients.TransientError{Op: "dropbox upload", Err: err}
	}
	if resp.IsError() {
		return "", clients.ClassifyStatus("dropbox upload", resp.StatusCode(), resp.String())
	}
	c.log.Debug("dropbox upload complete", logx.String("path", remote), logx.Int("bytes", len(data)))
	return remote, nil
}

// SharedLink returns a direct-download URL for a remote path, creating a
// shared link or reusing the existing one.
func (c *Client) SharedLink(ctx context.Context, remotePath string) (string, error) {
	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}
	api := c.endpointsOrDefault().api

	var created struct {
		URL string `json:"url"`
	}
	resp, err := c.rest.R().SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]any{"path": remotePath}).
		SetResult(&created).
		Post(api + "/sharing/create_shared_link_with_settings")
	if err != nil {
		return "", &clients.TransientError{Op: "dropbox shared link", Err: err}
	}
	switch {
	case resp.IsSuccess():
		return DirectURL(created.URL), nil
	case resp.StatusCode() == 409 && strings.Contains(resp.String(), "shared_link_already_exists"):
		// Fall through to listing.
	default:
		return "", clients.ClassifyStatus("dropbox shared link", resp.StatusCode(), resp.String())
	}

	var listed struct {
		Links []struct {
			URL string `json:"url"`
		} `json:"links"`
	}
	resp, err = c.rest.R().SetContext(ctx).
		SetAuthToken(token).
		SetBody(map[string]any{"path": remotePath, "direct_only": true}).
		SetResult(&listed).
		Post(api + "/sharing/list_shared_links")
	if err != nil {
		return "", &clients.TransientError{Op: "dropbox list shared links", Err: err}
	}
	if resp.IsError() {
		return "", clients.ClassifyStatus("dropbox list shared links", resp.StatusCode(), resp.String())
	}
	if len(listed.Links) == 0 {
		return "", clients.Permanentf("dropbox list shared links", "no shared link for %s", remotePath)
	}
	return DirectURL(listed.Links[0].URL), nil
}

// UploadAndLink uploads a local file and returns a URL the publishing API
// can fetch the raw bytes from.
func (c *Client) UploadAndLink(ctx context.Context, localPath string) (string, error) {
	remote, err := c.Upload(ctx, localPath)
	if err != nil {
		return "", err
	}
	url, err := c.SharedLink(ctx, remote)
	if err != nil {
		return "", err
	}
	c.log.Info("image uploaded", logx.String("file", path.Base(localPath)), logx.String("url", url))
	return url, nil
}

// DirectURL rewrites a Dropbox share URL into one that serves the file
// bytes instead of a preview page.
func DirectURL(shareURL string) string {
	u := strings.Replace(shareURL, "www.dropbox.com", "dl.dropboxusercontent.com", 1)
	u = strings.Replace(u, "?dl=0", "?raw=1", 1)
	return u
}
