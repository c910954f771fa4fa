package ingest

import "time"

// Config contains configuration options that allow
// customization of how Marquee detects files to auto-ingest.
type Config struct {
	// The path to the directory the service should monitor
	// for new files. An empty path disables the drop folder.
	Path string `yaml:"path" env:"INGEST_PATH"`

	// The IngestService uses a directory watcher, but a
	// 'force' sync can be performed on a regular interval
	// to protect against the watcher failing.
	ForceSyncSeconds int `yaml:"force_sync_seconds" env:"INGEST_FORCE_SYNC_SECONDS" env-default:"60" validate:"gte=1"`

	// When a new file is detected, it's likely to be an in-progress
	// copy using an external software. As we cannot KNOW when the
	// copy is complete, we instead wait for the 'modtime' of
	// the item to be at least this long in the past before processing
	RequiredModTimeAgeSeconds int `yaml:"required_modtime_age_seconds" env:"INGEST_MODTIME_AGE_SECONDS" env-default:"30" validate:"gte=0"`
}

func (config *Config) Enabled() bool { return config.Path != "" }

func (config *Config) RequiredModTimeAgeDuration() time.Duration {
	return time.Duration(config.RequiredModTimeAgeSeconds) * time.Second
}

func (config *Config) ForceSyncDuration() time.Duration {
	return time.Duration(config.ForceSyncSeconds) * time.Second
}
