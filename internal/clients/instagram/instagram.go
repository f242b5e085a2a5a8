// Package instagram posts images through the Facebook Graph API. Instagram
// business accounts publish in two phases: create a media container from a
// public image URL, then publish the container once the platform has
// fetched and processed the image.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"instapost/internal/clients"
	"instapost/internal/config"
	"instapost/pkg/logx"
)

const (
	graphBaseURL = "https://graph.facebook.com/v18.0"

	defaultTimeout = 30 * time.Second

	// Graph API error_subcode for a container whose image is still being
	// processed. Publishing again after a short wait usually succeeds.
	subcodeMediaNotReady = 2207027
)

// ErrMediaNotReady signals that the media container exists but cannot be
// published yet. Callers retry with backoff.
var ErrMediaNotReady = errors.New("media not ready for publishing")

// Client wraps the Graph API endpoints used for publishing.
type Client struct {
	rest      *resty.Client
	log       logx.Logger
	baseURL   string
	accountID string
	token     string
}

func New(creds *config.Credentials, log logx.Logger) *Client {
	rest := resty.New().
		SetTimeout(defaultTimeout).
		SetHeader("User-Agent", "instapost")
	return &Client{
		rest:      rest,
		log:       log,
		baseURL:   graphBaseURL,
		accountID: creds.InstagramAccountID,
		token:     creds.FacebookAccessToken,
	}
}

// SetBaseURL redirects API traffic, for tests against httptest servers.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

type graphError struct {
	Error struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		Subcode   int    `json:"error_subcode"`
		TraceID   string `json:"fbtrace_id"`
		UserTitle string `json:"error_user_title"`
	} `json:"error"`
}

// CreateContainer registers an image URL and caption as a media container
// and returns its creation ID.
func (c *Client) CreateContainer(ctx context.Context, imageURL, caption string) (string, error) {
	var body struct {
		ID string `json:"id"`
	}
	resp, err := c.rest.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"image_url":    imageURL,
			"caption":      caption,
			"access_token": c.token,
		}).
		SetResult(&body).
		Post(fmt.Sprintf("%s/%s/media", c.baseURL, c.accountID))
	if err != nil {
		return "", &clients.TransientError{Op: "create media container", Err: err}
	}
	if resp.IsError() {
		return "", clients.ClassifyStatus("create media container", resp.StatusCode(), resp.String())
	}
	if body.ID == "" {
		return "", clients.Permanentf("create media container", "no creation id in response: %s", resp.String())
	}
	c.log.Debug("media container created", logx.String("creation_id", body.ID))
	return body.ID, nil
}

// Publish turns a media container into a live post and returns the media
// ID. Returns ErrMediaNotReady while the platform is still processing the
// container's image.
func (c *Client) Publish(ctx context.Context, creationID string) (string, error) {
	var body struct {
		ID string `json:"id"`
	}
	resp, err := c.rest.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"creation_id":  creationID,
			"access_token": c.token,
		}).
		SetResult(&body).
		Post(fmt.Sprintf("%s/%s/media_publish", c.baseURL, c.accountID))
	if err != nil {
		return "", &clients.TransientError{Op: "publish media", Err: err}
	}
	if resp.IsError() {
		var ge graphError
		if jsonErr := json.Unmarshal(resp.Body(), &ge); jsonErr == nil && ge.Error.Subcode == subcodeMediaNotReady {
			return "", ErrMediaNotReady
		}
		return "", clients.ClassifyStatus("publish media", resp.StatusCode(), resp.String())
	}
	if body.ID == "" {
		return "", clients.Permanentf("publish media", "no media id in response: %s", resp.String())
	}
	return body.ID, nil
}

// Permalink resolves the public URL of a published post. A lookup failure
// is not fatal; the canonical URL shape is constructed from the media ID.
func (c *Client) Permalink(ctx context.Context, mediaID string) string {
	var body struct {
		Permalink string `json:"permalink"`
	}
	resp, err := c.rest.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"fields":       "permalink",
			"access_token": c.token,
		}).
		SetResult(&body).
		Get(fmt.Sprintf("%s/%s", c.baseURL, mediaID))
	if err == nil && resp.IsSuccess() && body.Permalink != "" {
		return body.Permalink
	}
	if err != nil {
		c.log.Warn("permalink lookup failed, using constructed URL", logx.Err(err))
	} else {
		c.log.Warn("permalink lookup failed, using constructed URL", logx.Int("status", resp.StatusCode()))
	}
	return fmt.Sprintf("https://www.instagram.com/p/%s/", mediaID)
}

// AccountInfo describes the connected business account.
type AccountInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Username       string `json:"username"`
	FollowersCount int64  `json:"followers_count"`
	MediaCount     int64  `json:"media_count"`
}

func (c *Client) GetAccountInfo(ctx context.Context) (*AccountInfo, error) {
	var info AccountInfo
	resp, err := c.rest.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"fields":       "name,username,followers_count,media_count",
			"access_token": c.token,
		}).
		SetResult(&info).
		Get(fmt.Sprintf("%s/%s", c.baseURL, c.accountID))
	if err != nil {
		return nil, &clients.TransientError{Op: "get account info", Err: err}
	}
	if resp.IsError() {
		return nil, clients.ClassifyStatus("get account info", resp.StatusCode(), resp.String())
	}
	return &info, nil
}

// Media is one entry of the account's media listing.
type Media struct {
	ID        string `json:"id"`
	Caption   string `json:"caption"`
	Permalink string `json:"permalink"`
	Timestamp string `json:"timestamp"`
}

// RecentMedia lists the account's latest posts, newest first.
func (c *Client) RecentMedia(ctx context.Context, limit int) ([]Media, error) {
	if limit <= 0 {
		limit = 10
	}
	var body struct {
		Data []Media `json:"data"`
	}
	resp, err := c.rest.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"fields":       "id,caption,permalink,timestamp",
			"limit":        strconv.Itoa(limit),
			"access_token": c.token,
		}).
		SetResult(&body).
		Get(fmt.Sprintf("%s/%s/media", c.baseURL, c.accountID))
	if err != nil {
		return nil, &clients.TransientError{Op: "list recent media", Err: err}
	}
	if resp.IsError() {
		return nil, clients.ClassifyStatus("list recent media", resp.StatusCode(), resp.String())
	}
	return body.Data, nil
}

// TokenInfo is the subset of the token-debug endpoint we surface.
type TokenInfo struct {
	AppID     string   `json:"app_id"`
	IsValid   bool     `json:"is_valid"`
	ExpiresAt int64    `json:"expires_at"`
	Scopes    []string `json:"scopes"`
	UserID    string   `json:"user_id"`
}

// DebugToken inspects the configured access token through the Graph API
// debug_token endpoint.
func (c *Client) DebugToken(ctx context.Context) (*TokenInfo, error) {
	var body struct {
		Data TokenInfo `json:"data"`
	}
	resp, err := c.rest.R().SetContext(ctx).
		SetQueryParams(map[string]string{
			"input_token":  c.token,
			"access_token": c.token,
		}).
		SetResult(&body).
		Get(c.baseURL + "/debug_token")
	if err != nil {
		return nil, &clients.TransientError{Op: "debug token", Err: err}
	}
	if resp.IsError() {
		return nil, clients.ClassifyStatus("debug token", resp.StatusCode(), resp.String())
	}
	return &body.Data, nil
}
