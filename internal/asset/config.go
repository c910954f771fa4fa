package asset

import "time"

const (
	BackendStore  = "store"
	BackendRemote = "remote"
)

type Config struct {
	// Backend selects where assets are registered: the local Postgres
	// database ("store") or a remote catalog API ("remote").
	Backend        string `yaml:"backend" env:"CATALOG_BACKEND" env-default:"store" validate:"oneof=store remote"`
	RemoteURL      string `yaml:"remote_url" env:"CATALOG_REMOTE_URL" validate:"required_if=Backend remote,omitempty,url"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"CATALOG_TIMEOUT_SECONDS" env-default:"10" validate:"gte=0"`
}

func (config Config) Timeout() time.Duration {
	return time.Duration(config.TimeoutSeconds) * time.Second
}
