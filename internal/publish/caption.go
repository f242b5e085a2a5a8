package publish

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveCaption picks the caption for an image: a sidecar text file named
// after the image wins, then the caption captured at ingest time, then
// empty. The sidecar is re-read at publish time so edits made while the
// entry waited in the queue take effect.
func ResolveCaption(imagePath, ingestCaption string) string {
	if c, ok := sidecarCaption(imagePath); ok {
		return c
	}
	return ingestCaption
}

func sidecarCaption(imagePath string) (string, bool) {
	base := strings.TrimSuffix(imagePath, filepath.Ext(imagePath))
	data, err := os.ReadFile(base + ".txt")
	if err != nil {
		return "", false
	}
	c := strings.TrimSpace(string(data))
	if c == "" {
		return "", false
	}
	return c, true
}

// SidecarPath returns the sidecar caption filename for an image path.
func SidecarPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".txt"
}
