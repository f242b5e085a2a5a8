package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCredentialsFromEnvFile(t *testing.T) {
	for _, k := range []string{
		"DROPBOX_APP_KEY", "DROPBOX_APP_SECRET", "DROPBOX_REFRESH_TOKEN", "DROPBOX_FOLDER_PATH",
		"FACEBOOK_APP_ID", "FACEBOOK_APP_SECRET", "FACEBOOK_ACCESS_TOKEN",
		"INSTAGRAM_BUSINESS_ACCOUNT_ID", "TELEGRAM_BOT_TOKEN",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	envFile := filepath.Join(t.TempDir(), "creds.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"DROPBOX_APP_KEY=key\n"+
			"DROPBOX_APP_SECRET=secret\n"+
			"DROPBOX_REFRESH_TOKEN=refresh\n"+
			"FACEBOOK_APP_ID=1234\n"+
			"FACEBOOK_APP_SECRET=fbsecret\n"+
			"FACEBOOK_ACCESS_TOKEN=fb\n"+
			"INSTAGRAM_BUSINESS_ACCOUNT_ID=17841400000000000\n",
	), 0o600))

	creds, err := LoadCredentials(envFile)
	require.NoError(t, err)
	require.Equal(t, "key", creds.DropboxAppKey)
	require.Equal(t, "fb", creds.FacebookAccessToken)
	// Folder falls back to the default when unset.
	require.Equal(t, "/instapost", creds.DropboxFolder)

	require.NoError(t, creds.RequirePublish())
}

func TestRequirePublishNamesMissingVariables(t *testing.T) {
	creds := Credentials{DropboxAppKey: "key"}
	err := creds.RequirePublish()
	require.Error(t, err)
	require.Contains(t, err.Error(), "DROPBOX_APP_SECRET")
	require.Contains(t, err.Error(), "FACEBOOK_ACCESS_TOKEN")
	require.NotContains(t, err.Error(), "DROPBOX_APP_KEY")
}

func TestLoadCredentialsMissingEnvFile(t *testing.T) {
	_, err := LoadCredentials(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
}
