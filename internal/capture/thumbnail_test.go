package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestThumbnailer_GenerateMissingFile(t *testing.T) {
	th := NewThumbnailer("")
	err := th.Generate(filepath.Join(t.TempDir(), "nope.avi"), filepath.Join(t.TempDir(), "out.png"))
	if err == nil || !strings.Contains(err.Error(), "invalid or incomplete") {
		t.Fatalf("expected invalid-or-incomplete error, got %v", err)
	}
}

func TestThumbnailer_GenerateEmptyFile(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "empty.avi")
	if err := os.WriteFile(videoPath, nil, 0644); err != nil {
		t.Fatal(err)
	}

	th := NewThumbnailer("")
	err := th.Generate(videoPath, filepath.Join(dir, "out.png"))
	if err == nil || !strings.Contains(err.Error(), "invalid or incomplete") {
		t.Fatalf("expected invalid-or-incomplete error, got %v", err)
	}
}

func TestThumbnailer_ExtractFirstJPEGFrame(t *testing.T) {
	dir := t.TempDir()

	// A container-ish file: junk header followed by a real JPEG frame.
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), A: 255})
		}
	}
	var frame bytes.Buffer
	if err := jpeg.Encode(&frame, img, nil); err != nil {
		t.Fatal(err)
	}

	videoPath := filepath.Join(dir, "recording.avi")
	body := append([]byte("RIFFxxxxAVI LIST"), frame.Bytes()...)
	if err := os.WriteFile(videoPath, body, 0644); err != nil {
		t.Fatal(err)
	}

	thumbPath := filepath.Join(dir, "thumb.png")
	th := NewThumbnailer("")
	if err := th.extractFirstJPEGFrame(videoPath, thumbPath); err != nil {
		t.Fatalf("extractFirstJPEGFrame: %v", err)
	}

	out, err := os.Open(thumbPath)
	if err != nil {
		t.Fatalf("thumbnail missing: %v", err)
	}
	defer out.Close()
	decoded, err := png.Decode(out)
	if err != nil {
		t.Fatalf("thumbnail is not a valid PNG: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 16 || b.Dy() != 16 {
		t.Fatalf("unexpected thumbnail size %dx%d", b.Dx(), b.Dy())
	}
}

func TestThumbnailer_ExtractFirstJPEGFrameNoFrame(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "recording.avi")
	if err := os.WriteFile(videoPath, []byte("no frames here"), 0644); err != nil {
		t.Fatal(err)
	}

	th := NewThumbnailer("")
	err := th.extractFirstJPEGFrame(videoPath, filepath.Join(dir, "thumb.png"))
	if err == nil || !strings.Contains(err.Error(), "no JPEG frame") {
		t.Fatalf("expected no-JPEG-frame error, got %v", err)
	}
}
