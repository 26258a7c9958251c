package database

import (
	"fmt"
	"net/url"
	"time"

	"coopledger/internal/config"
)

// Config holds database configuration
type Config struct {
	Host      string
	Port      string
	User      string
	Password  string
	DBName    string
	SSLMode   string
	TxTimeout time.Duration
}

// NewConfig derives the database configuration from the application config.
func NewConfig(cfg *config.Config) *Config {
	return &Config{
		Host:      cfg.DBHost,
		Port:      cfg.DBPort,
		User:      cfg.DBUser,
		Password:  cfg.DBPassword,
		DBName:    cfg.DBName,
		SSLMode:   cfg.DBSSLMode,
		TxTimeout: cfg.DBTxTimeout,
	}
}

// DSN returns the PostgreSQL connection string
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MigrationURL returns the postgres:// URL golang-migrate expects.
func (c *Config) MigrationURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
