package internal

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Marquee/internal/api"
	"github.com/hbomb79/Marquee/internal/asset"
	"github.com/hbomb79/Marquee/internal/database"
	"github.com/hbomb79/Marquee/internal/ffmpeg"
	"github.com/hbomb79/Marquee/internal/http/lastfm"
	"github.com/hbomb79/Marquee/internal/ingest"
	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
)

// MarqueeConfig is the struct used to contain the
// various user config supplied by file, environment, or
// manually inside the code.
type MarqueeConfig struct {
	LogLevel string                  `yaml:"log_level" env:"LOG_LEVEL" env-default:"info" validate:"oneof=verbose debug info warning error"`
	Api      api.RestConfig          `yaml:"api"`
	Uploads  UploadsConfig           `yaml:"uploads"`
	Ffmpeg   ffmpeg.Config           `yaml:"ffmpeg"`
	Lastfm   lastfm.Config           `yaml:"lastfm"`
	Database database.DatabaseConfig `yaml:"database"`
	Catalog  asset.Config            `yaml:"catalog"`
	Ingest   ingest.Config           `yaml:"ingest"`
}

// UploadsConfig describes where uploaded files and their HLS renditions
// are stored. The directory is also served statically under /uploads.
type UploadsConfig struct {
	Root string `yaml:"root" env:"UPLOADS_ROOT" env-default:"./uploads" validate:"required"`
}

var logLevels = map[string]logger.LogLevel{
	"verbose": logger.VERBOSE,
	"debug":   logger.DEBUG,
	"info":    logger.INFO,
	"warning": logger.WARNING,
	"error":   logger.ERROR,
}

// LoadConfig populates a MarqueeConfig. Any .env file found in the working
// directory is loaded first, after which the YAML file at configPath (if
// provided) and the environment are read. Paths beginning with '~' are
// expanded and the result is validated before being returned.
func LoadConfig(configPath string, envFiles ...string) (*MarqueeConfig, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	config := &MarqueeConfig{}
	if configPath != "" {
		if err := cleanenv.ReadConfig(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
		}
	} else if err := cleanenv.ReadEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	if err := config.expandPaths(); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("configuration is invalid: %w", err)
	}

	return config, nil
}

func (config *MarqueeConfig) expandPaths() error {
	for _, path := range []*string{&config.Uploads.Root, &config.Ingest.Path} {
		if *path == "" {
			continue
		}

		expanded, err := homedir.Expand(*path)
		if err != nil {
			return fmt.Errorf("failed to expand path %s: %w", *path, err)
		}
		*path = expanded
	}

	return nil
}

// MinLogLevel returns the logger level matching the configured log_level.
func (config *MarqueeConfig) MinLogLevel() logger.LogLevel {
	if level, ok := logLevels[config.LogLevel]; ok {
		return level
	}

	return logger.INFO
}
