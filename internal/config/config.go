package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	// Load .env before anything reads the environment.
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Capture  CaptureConfig  `json:"capture"`
	Ingest   IngestConfig   `json:"ingest"`
	User     UserConfig     `json:"user"`
	Security SecurityConfig `json:"security"`
}

type ServerConfig struct {
	Port         int           `json:"port"`
	Host         string        `json:"host"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

type StorageConfig struct {
	Bucket     string        `json:"bucket"`
	Region     string        `json:"region"`
	Endpoint   string        `json:"endpoint"` // optional, e.g. localstack
	Prefix     string        `json:"prefix"`
	PresignTTL time.Duration `json:"presign_ttl"`
}

// CaptureBackend selects how screen video is captured.
type CaptureBackend string

const (
	// BackendSampler grabs display frames in-process at a fixed rate.
	BackendSampler CaptureBackend = "sampler"
	// BackendFFmpeg muxes a low-latency UDP stream through an ffmpeg subprocess.
	BackendFFmpeg CaptureBackend = "ffmpeg"
)

type CaptureConfig struct {
	Backend        CaptureBackend `json:"backend"`
	RecordingsDir  string         `json:"recordings_dir"`
	ScreenshotsDir string         `json:"screenshots_dir"`
	ThumbnailsDir  string         `json:"thumbnails_dir"`
	AudioDir       string         `json:"audio_dir"`
	FrameRate      int            `json:"frame_rate"`
	FFmpegPath     string         `json:"ffmpeg_path"`
	UDPPort        int            `json:"udp_port"`
}

type IngestConfig struct {
	Enabled bool   `json:"enabled"`
	Port    string `json:"port"`
}

type UserConfig struct {
	Username string `json:"username"`
}

type SecurityConfig struct {
	CORSOrigins []string      `json:"cors_origins"`
	RateLimit   int           `json:"rate_limit"`
	RateWindow  time.Duration `json:"rate_window"`
}

// Load reads configuration from environment variables and the .env file.
func Load() (*Config, error) {
	cfg := &Config{}

	port, err := strconv.Atoi(getEnv("PORT", "5000"))
	if err != nil {
		return nil, fmt.Errorf("invalid port: %w", err)
	}
	cfg.Server = ServerConfig{
		Port:         port,
		Host:         getEnv("HOST", "127.0.0.1"),
		ReadTimeout:  getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout: getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		IdleTimeout:  getDurationEnv("IDLE_TIMEOUT", 10*time.Second),
	}

	cfg.Storage = StorageConfig{
		Bucket:     getEnv("S3_BUCKET", "digital-diary"),
		Region:     getEnv("S3_REGION", "us-west-2"),
		Endpoint:   getEnv("S3_ENDPOINT", ""),
		Prefix:     getEnv("S3_PREFIX", ""),
		PresignTTL: getDurationEnv("S3_PRESIGN_TTL", time.Hour),
	}

	cfg.Capture = CaptureConfig{
		Backend:        CaptureBackend(getEnv("CAPTURE_BACKEND", string(BackendSampler))),
		RecordingsDir:  getEnv("RECORDINGS_DIR", "recordings"),
		ScreenshotsDir: getEnv("SCREENSHOTS_DIR", "screenshots"),
		ThumbnailsDir:  getEnv("THUMBNAILS_DIR", "recordings/thumbnails"),
		AudioDir:       getEnv("AUDIO_DIR", "audio"),
		FrameRate:      getIntEnv("FRAME_RATE", 10),
		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		UDPPort:        getIntEnv("CAPTURE_UDP_PORT", 23000),
	}

	cfg.Ingest = IngestConfig{
		Enabled: getBoolEnv("RTMP_INGEST_ENABLED", false),
		Port:    getEnv("RTMP_PORT", "1935"),
	}

	cfg.User = UserConfig{
		Username: getEnv("DIARY_USERNAME", ""),
	}

	cfg.Security = SecurityConfig{
		CORSOrigins: splitAndTrim(getEnv("CORS_ORIGINS", "*")),
		RateLimit:   getIntEnv("RATE_LIMIT", 100),
		RateWindow:  getDurationEnv("RATE_WINDOW", time.Minute),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	if c.User.Username == "" {
		return fmt.Errorf("DIARY_USERNAME is required")
	}
	switch c.Capture.Backend {
	case BackendSampler, BackendFFmpeg:
	default:
		return fmt.Errorf("unknown capture backend: %q", c.Capture.Backend)
	}
	if c.Capture.FrameRate <= 0 {
		return fmt.Errorf("frame rate must be positive, got %d", c.Capture.FrameRate)
	}
	return nil
}

func splitAndTrim(s string) []string {
	if s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
