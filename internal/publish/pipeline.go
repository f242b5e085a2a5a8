// Package publish turns a due schedule entry into a live post: upload the
// image, create a media container, publish it, record the permalink.
package publish

import (
	"context"
	"errors"
	"time"

	"instapost/internal/clients/instagram"
	"instapost/internal/config"
	"instapost/pkg/logx"
)

// Uploader puts a local file somewhere the posting provider can fetch it
// from and returns the direct URL.
type Uploader interface {
	UploadAndLink(ctx context.Context, localPath string) (string, error)
}

// Poster is the two-phase publishing provider.
type Poster interface {
	CreateContainer(ctx context.Context, imageURL, caption string) (string, error)
	Publish(ctx context.Context, creationID string) (string, error)
	Permalink(ctx context.Context, mediaID string) string
}

// Result is the durable outcome of a successful publish.
type Result struct {
	MediaID     string
	URL         string
	CompletedAt time.Time
}

// Pipeline drives one entry through upload and post. Failures inside the
// post step are retried per the configured backoff when they look
// transient; everything else aborts the entry so the scheduler can try
// again on a later tick.
type Pipeline struct {
	uploader Uploader
	poster   Poster
	log      logx.Logger

	uploadTimeout  time.Duration
	publishTimeout time.Duration
	policy         Policy

	sleep SleepFunc
	now   func() time.Time
}

func NewPipeline(uploader Uploader, poster Poster, cfg config.PublishConfig, log logx.Logger) (*Pipeline, error) {
	uploadTimeout, err := config.ParseDurationOrDefault("publish.upload_timeout", cfg.UploadTimeout, 60*time.Second)
	if err != nil {
		return nil, err
	}
	publishTimeout, err := config.ParseDurationOrDefault("publish.publish_timeout", cfg.PublishTimeout, 180*time.Second)
	if err != nil {
		return nil, err
	}
	retryBase, err := config.ParseDurationOrDefault("publish.retry_base", cfg.RetryBase, 2*time.Second)
	if err != nil {
		return nil, err
	}
	policy := DefaultPolicy()
	if cfg.RetryMax > 0 {
		policy.MaxAttempts = cfg.RetryMax
	}
	policy.Base = retryBase
	if cfg.RetryFactor > 1 {
		policy.Factor = cfg.RetryFactor
	}
	return &Pipeline{
		uploader:       uploader,
		poster:         poster,
		log:            log,
		uploadTimeout:  uploadTimeout,
		publishTimeout: publishTimeout,
		policy:         policy,
		sleep:          sleepContext,
		now:            time.Now,
	}, nil
}

// SetSleep overrides the backoff sleeper. Tests only.
func (p *Pipeline) SetSleep(s SleepFunc) { p.sleep = s }

// SetNow overrides the clock. Tests only.
func (p *Pipeline) SetNow(now func() time.Time) { p.now = now }

// Publish runs the full pipeline for one local image.
func (p *Pipeline) Publish(ctx context.Context, localPath, caption string) (*Result, error) {
	imageURL, err := p.upload(ctx, localPath)
	if err != nil {
		return nil, err
	}

	var mediaID string
	err = retry(ctx, "post image", p.policy, p.sleep, isTransportError, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, p.publishTimeout)
		defer cancel()

		creationID, err := p.poster.CreateContainer(ctx, imageURL, caption)
		if err != nil {
			return err
		}
		mediaID, err = p.publishContainer(ctx, creationID)
		return err
	})
	if err != nil {
		return nil, err
	}

	url := p.poster.Permalink(ctx, mediaID)
	res := &Result{MediaID: mediaID, URL: url, CompletedAt: p.now()}
	p.log.Info("post published", logx.String("media_id", mediaID), logx.String("url", url))
	return res, nil
}

func (p *Pipeline) upload(ctx context.Context, localPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.uploadTimeout)
	defer cancel()
	return p.uploader.UploadAndLink(ctx, localPath)
}

// publishContainer retries the publish call while the provider reports the
// container as not ready. Any other error aborts immediately.
func (p *Pipeline) publishContainer(ctx context.Context, creationID string) (string, error) {
	var mediaID string
	err := retry(ctx, "publish container", p.policy, p.sleep,
		func(err error) bool { return errors.Is(err, instagram.ErrMediaNotReady) },
		func(ctx context.Context) error {
			var err error
			mediaID, err = p.poster.Publish(ctx, creationID)
			if errors.Is(err, instagram.ErrMediaNotReady) {
				p.log.Debug("media container not ready yet", logx.String("creation_id", creationID))
			}
			return err
		})
	if err != nil {
		return "", err
	}
	return mediaID, nil
}
