package main

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime settings. Everything comes from the
// environment, with an optional .env file on top.
type Config struct {
	// RelayAddr is the listen address for the relay server.
	RelayAddr string
	// UploadEndpoint is the inference server's frame upload URL. The
	// bridge side only starts when this is set.
	UploadEndpoint string
	// PromptEndpoint is the text completion URL, proxied at /ask when
	// set.
	PromptEndpoint string
	// CaptureDir is the directory watched for new frames.
	CaptureDir string
	// DataDir overrides the default data directory.
	DataDir string
	// RemoveFrames deletes capture files after they are picked up.
	RemoveFrames bool

	UploadInterval time.Duration
	PollDelay      time.Duration
	PollInterval   time.Duration
	// TickMaxAge is how long stored ticks are kept before cleanup.
	TickMaxAge time.Duration
}

// LoadConfig reads the environment (and .env, if present) and fills in
// the defaults the original deployment used.
func LoadConfig() Config {
	// A missing .env is fine; the environment alone is enough.
	_ = godotenv.Load()

	cfg := Config{
		RelayAddr:      ":3000",
		CaptureDir:     "./captures",
		UploadInterval: 60 * time.Second,
		PollDelay:      40 * time.Second,
		PollInterval:   time.Second,
		TickMaxAge:     24 * time.Hour,
	}

	if v := os.Getenv("VISIONRELAY_ADDR"); v != "" {
		cfg.RelayAddr = v
	}
	cfg.UploadEndpoint = os.Getenv("VISIONRELAY_UPLOAD_ENDPOINT")
	cfg.PromptEndpoint = os.Getenv("VISIONRELAY_PROMPT_ENDPOINT")
	if v := os.Getenv("VISIONRELAY_CAPTURE_DIR"); v != "" {
		cfg.CaptureDir = v
	}
	cfg.DataDir = os.Getenv("VISIONRELAY_DATA_DIR")
	cfg.RemoveFrames = os.Getenv("VISIONRELAY_REMOVE_FRAMES") == "true"

	cfg.UploadInterval = durationEnv("VISIONRELAY_UPLOAD_INTERVAL", cfg.UploadInterval)
	cfg.PollDelay = durationEnv("VISIONRELAY_POLL_DELAY", cfg.PollDelay)
	cfg.PollInterval = durationEnv("VISIONRELAY_POLL_INTERVAL", cfg.PollInterval)
	cfg.TickMaxAge = durationEnv("VISIONRELAY_TICK_MAX_AGE", cfg.TickMaxAge)

	return cfg
}

// durationEnv parses a duration variable, keeping the fallback on a
// bad or missing value.
func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Ignoring invalid %s=%q: %v", key, v, err)
		return fallback
	}
	return d
}
