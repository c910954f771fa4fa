package database

import "fmt"

// DatabaseConfig locates the Postgres server backing the asset catalog.
type DatabaseConfig struct {
	User            string `yaml:"username" env:"DB_USERNAME"`
	Password        string `yaml:"password" env:"DB_PASSWORD"`
	Name            string `yaml:"name" env:"DB_NAME" env-default:"MARQUEE_DB"`
	Host            string `yaml:"host" env:"DB_HOST" env-default:"0.0.0.0"`
	Port            string `yaml:"port" env:"DB_PORT" env-default:"5432"`
	SSLMode         string `yaml:"ssl_mode" env:"DB_SSL_MODE" env-default:"disable" validate:"oneof=disable require verify-ca verify-full"`
	ConnectAttempts int    `yaml:"connect_attempts" env:"DB_CONNECT_ATTEMPTS" env-default:"5" validate:"gte=1"`
}

// DSN renders the config as a libpq key/value connection string.
func (config DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.Name, config.User, config.Password, config.SSLMode)
}
