package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"image/png"
	"log"
	"os"
	"os/exec"
	"strconv"
)

// Thumbnailer extracts a representative still from a finished recording.
// Two decode strategies are kept because container finalization can leave a
// file the seeking decoder refuses to open: ffmpeg first, then a raw scan
// for the first JPEG frame in the MJPEG stream.
type Thumbnailer struct {
	ffmpegPath string
}

func NewThumbnailer(ffmpegPath string) *Thumbnailer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Thumbnailer{ffmpegPath: ffmpegPath}
}

// Generate writes a still image for videoPath at thumbPath. A missing or
// zero-length video is a reported failure, not a panic.
func (t *Thumbnailer) Generate(videoPath, thumbPath string) error {
	fi, err := os.Stat(videoPath)
	if err != nil || fi.Size() == 0 {
		return fmt.Errorf("video file %s is invalid or incomplete", videoPath)
	}

	offset := t.frameOffset(videoPath)

	if err := t.extractWithFFmpeg(videoPath, thumbPath, offset); err != nil {
		log.Printf("ffmpeg thumbnail failed for %s, trying raw frame grab: %v", videoPath, err)
		if err := t.extractFirstJPEGFrame(videoPath, thumbPath); err != nil {
			return fmt.Errorf("failed to generate thumbnail for %s: %w", videoPath, err)
		}
	}
	return nil
}

// frameOffset picks the frame at min(1s, half the clip duration).
func (t *Thumbnailer) frameOffset(videoPath string) float64 {
	dur, err := t.probeDuration(videoPath)
	if err != nil {
		log.Printf("Duration probe failed for %s, defaulting to 1s: %v", videoPath, err)
		return 1
	}
	offset := dur / 2
	if offset > 1 {
		offset = 1
	}
	return offset
}

func (t *Thumbnailer) probeDuration(videoPath string) (float64, error) {
	cmd := exec.Command("ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		videoPath)

	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	dur, err := strconv.ParseFloat(result.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", result.Format.Duration, err)
	}
	return dur, nil
}

func (t *Thumbnailer) extractWithFFmpeg(videoPath, thumbPath string, offset float64) error {
	cmd := exec.Command(t.ffmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%.3f", offset),
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "2",
		thumbPath)
	if err := cmd.Run(); err != nil {
		return err
	}

	if fi, err := os.Stat(thumbPath); err != nil || fi.Size() == 0 {
		return fmt.Errorf("ffmpeg produced no thumbnail output")
	}
	return nil
}

var jpegSOI = []byte{0xFF, 0xD8, 0xFF}

// extractFirstJPEGFrame scans the container bytes for the first JPEG frame
// and decodes it directly, skipping the container index entirely.
func (t *Thumbnailer) extractFirstJPEGFrame(videoPath, thumbPath string) error {
	data, err := os.ReadFile(videoPath)
	if err != nil {
		return err
	}

	idx := bytes.Index(data, jpegSOI)
	if idx == -1 {
		return fmt.Errorf("no JPEG frame found in %s", videoPath)
	}

	img, err := jpeg.Decode(bytes.NewReader(data[idx:]))
	if err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}

	out, err := os.Create(thumbPath)
	if err != nil {
		return err
	}
	defer out.Close()

	return png.Encode(out, img)
}
