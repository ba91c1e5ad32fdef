package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	Workers           int           `mapstructure:"workers" yaml:"workers"`
	ReceiptTimeout    time.Duration `mapstructure:"receipt_timeout" yaml:"receipt_timeout"`
	AutohostSecret    string        `mapstructure:"autohost_secret" yaml:"autohost_secret"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8081",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "lobby.db",
		LogLevel:          "info",
		Workers:           4,
		ReceiptTimeout:    10 * time.Second,
		AutohostSecret:    "",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Workers != 0 {
		c.Workers = other.Workers
	}
	if other.ReceiptTimeout != 0 {
		c.ReceiptTimeout = other.ReceiptTimeout
	}
	if other.AutohostSecret != "" {
		c.AutohostSecret = other.AutohostSecret
	}
}
