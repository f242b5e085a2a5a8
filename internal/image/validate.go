// Package image checks candidate files against the feed-image constraints
// enforced by the publishing API before we waste an upload on them.
package image

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
)

const (
	MinDimension = 320
	MaxDimension = 1440
	MaxFileSize  = 8 * 1024 * 1024

	minAspect = 0.8
	maxAspect = 1.91
)

// Accepted file extensions, lower case.
var extensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsCandidate reports whether the filename looks like an image we would
// ever schedule. Cheap extension check only.
func IsCandidate(name string) bool {
	return extensions[strings.ToLower(filepath.Ext(name))]
}

// Info describes a probed image file.
type Info struct {
	Format string
	Width  int
	Height int
	Size   int64
}

// Probe reads the image header only: format, dimensions and file size,
// without decoding pixel data.
func Probe(path string) (Info, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("stat image: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Info{}, fmt.Errorf("decode image %s: %w", filepath.Base(path), err)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height, Size: stat.Size()}, nil
}

// Validate verifies dimensions, aspect ratio, file size and format for a
// local image file. A nil error means the file is postable as-is.
func Validate(path string) error {
	in, err := Probe(path)
	if err != nil {
		return err
	}
	if in.Size > MaxFileSize {
		return fmt.Errorf("image %s is %d bytes, limit is %d", filepath.Base(path), in.Size, MaxFileSize)
	}
	if in.Format != "jpeg" && in.Format != "png" {
		return fmt.Errorf("image %s has unsupported format %q", filepath.Base(path), in.Format)
	}
	if in.Width < MinDimension || in.Height < MinDimension {
		return fmt.Errorf("image %s is %dx%d, minimum dimension is %dpx", filepath.Base(path), in.Width, in.Height, MinDimension)
	}
	if in.Width > MaxDimension || in.Height > MaxDimension {
		return fmt.Errorf("image %s is %dx%d, maximum dimension is %dpx", filepath.Base(path), in.Width, in.Height, MaxDimension)
	}
	aspect := float64(in.Width) / float64(in.Height)
	if aspect < minAspect || aspect > maxAspect {
		return fmt.Errorf("image %s has aspect ratio %.2f, allowed range is %.2f to %.2f", filepath.Base(path), aspect, minAspect, maxAspect)
	}
	return nil
}
