package image

import (
	"bytes"
	goimage "image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeJPEG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := goimage.NewRGBA(goimage.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x7f
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestIsCandidate(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png"} {
		if !IsCandidate(name) {
			t.Errorf("%s rejected", name)
		}
	}
	for _, name := range []string{"a.gif", "b.txt", "c.jpg.part", "d"} {
		if IsCandidate(name) {
			t.Errorf("%s accepted", name)
		}
	}
}

func TestValidateAccepts(t *testing.T) {
	dir := t.TempDir()
	path := writeJPEG(t, dir, "ok.jpg", 1080, 1080)
	if err := Validate(path); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsSmall(t *testing.T) {
	dir := t.TempDir()
	path := writeJPEG(t, dir, "small.jpg", 100, 100)
	err := Validate(path)
	if err == nil || !strings.Contains(err.Error(), "minimum dimension") {
		t.Fatalf("got %v", err)
	}
}

func TestValidateRejectsAspect(t *testing.T) {
	dir := t.TempDir()
	path := writeJPEG(t, dir, "tall.jpg", 400, 1400)
	err := Validate(path)
	if err == nil || !strings.Contains(err.Error(), "aspect ratio") {
		t.Fatalf("got %v", err)
	}
}

func TestValidateRejectsUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake.jpg")
	if err := os.WriteFile(path, []byte("GIF89a not really"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Validate(path); err == nil {
		t.Fatal("junk bytes accepted")
	}
}

func TestValidatePNG(t *testing.T) {
	dir := t.TempDir()
	img := goimage.NewRGBA(goimage.Rect(0, 0, 640, 640))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	path := filepath.Join(dir, "ok.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Validate(path); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
