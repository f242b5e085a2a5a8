// Package notify sends operator notifications over Telegram: publish
// outcomes, repeated missing files, rebalance summaries. Send-only; the
// daemon never polls for incoming messages.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"instapost/internal/config"
	"instapost/pkg/logx"
)

var ErrDisabled = errors.New("notifier disabled")

// Service wraps a Telegram bot for outbound messages. It also satisfies
// logx.Sender so the logging service can mirror high-severity records to
// the same chat.
type Service struct {
	bot    *tele.Bot
	chatID int64
	log    logx.Logger
}

// New builds the notifier. Returns (nil, nil) when notifications are
// disabled so callers can keep a nil-safe handle.
func New(token string, cfg *config.NotifyConfig, log logx.Logger) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("notify.chat_id is required")
	}
	b, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, err
	}
	return &Service{bot: b, chatID: cfg.ChatID, log: log}, nil
}

// SendText implements logx.Sender.
func (s *Service) SendText(ctx context.Context, chatID int64, msg string) error {
	if s == nil || s.bot == nil {
		return ErrDisabled
	}
	if chatID == 0 {
		chatID = s.chatID
	}
	chat := &tele.Chat{ID: chatID}
	_, err := s.bot.Send(chat, msg, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}

func (s *Service) send(ctx context.Context, msg string) {
	if s == nil {
		return
	}
	if err := s.SendText(ctx, s.chatID, msg); err != nil {
		s.log.Warn("notification send failed", logx.Err(err))
	}
}

func (s *Service) PublishSucceeded(ctx context.Context, filename, url string) {
	s.send(ctx, fmt.Sprintf("✅ posted %s\n%s", filename, url))
}

func (s *Service) PublishFailed(ctx context.Context, filename string, err error) {
	s.send(ctx, fmt.Sprintf("❌ publish failed for %s: %v", filename, err))
}

func (s *Service) FileMissing(ctx context.Context, filename string, scheduledAt time.Time) {
	s.send(ctx, fmt.Sprintf("⚠️ scheduled file %s (due %s) is missing from the watch folder",
		filename, scheduledAt.Format("2006-01-02 15:04")))
}

func (s *Service) RebalanceApplied(ctx context.Context, moved, gaps int) {
	s.send(ctx, fmt.Sprintf("📆 rebalance applied: %d entries moved into %d open slots", moved, gaps))
}
