package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Credentials are API secrets. They live in the environment (optionally
// seeded from a .env file), never in the config document, so a shared or
// hot-reloaded config file can't leak them.
type Credentials struct {
	DropboxAppKey       string
	DropboxAppSecret    string
	DropboxRefreshToken string
	DropboxFolder       string

	FacebookAppID       string
	FacebookAppSecret   string
	FacebookAccessToken string
	InstagramAccountID  string

	TelegramBotToken string
}

// LoadCredentials reads credentials from the environment. If envFile is
// non-empty it is loaded first (without overriding variables already set,
// matching godotenv's default).
func LoadCredentials(envFile string) (Credentials, error) {
	if strings.TrimSpace(envFile) != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Credentials{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	} else {
		// Best-effort: a .env next to the working directory is the common
		// deployment layout; its absence is fine.
		_ = godotenv.Load()
	}

	c := Credentials{
		DropboxAppKey:       os.Getenv("DROPBOX_APP_KEY"),
		DropboxAppSecret:    os.Getenv("DROPBOX_APP_SECRET"),
		DropboxRefreshToken: os.Getenv("DROPBOX_REFRESH_TOKEN"),
		DropboxFolder:       os.Getenv("DROPBOX_FOLDER_PATH"),

		FacebookAppID:       os.Getenv("FACEBOOK_APP_ID"),
		FacebookAppSecret:   os.Getenv("FACEBOOK_APP_SECRET"),
		FacebookAccessToken: os.Getenv("FACEBOOK_ACCESS_TOKEN"),
		InstagramAccountID:  os.Getenv("INSTAGRAM_BUSINESS_ACCOUNT_ID"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}
	if c.DropboxFolder == "" {
		c.DropboxFolder = "/instapost"
	}
	return c, nil
}

// RequirePublish checks the variables the publish pipeline cannot run without.
func (c Credentials) RequirePublish() error {
	var missing []string
	if c.DropboxAppKey == "" {
		missing = append(missing, "DROPBOX_APP_KEY")
	}
	if c.DropboxAppSecret == "" {
		missing = append(missing, "DROPBOX_APP_SECRET")
	}
	if c.DropboxRefreshToken == "" {
		missing = append(missing, "DROPBOX_REFRESH_TOKEN")
	}
	if c.FacebookAppID == "" {
		missing = append(missing, "FACEBOOK_APP_ID")
	}
	if c.FacebookAppSecret == "" {
		missing = append(missing, "FACEBOOK_APP_SECRET")
	}
	if c.FacebookAccessToken == "" {
		missing = append(missing, "FACEBOOK_ACCESS_TOKEN")
	}
	if c.InstagramAccountID == "" {
		missing = append(missing, "INSTAGRAM_BUSINESS_ACCOUNT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}
