// Package server wires the Gin engine, standard middleware, health routes
// and graceful shutdown for the HTTP API.
package server

import (
	"time"

	"github.com/THIS-Institute/thiscovery-surveys/internal/config"
)

const (
	defaultPort            = 8080
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 15 * time.Second
)

// Config holds HTTP server settings.
type Config struct {
	ServiceName     string
	ServiceVersion  string
	Port            int
	Debug           bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// ConfigFrom maps the service config section to a server Config.
func ConfigFrom(svc config.ServiceConfig) *Config {
	return &Config{
		ServiceName:     svc.Name,
		ServiceVersion:  svc.Version,
		Port:            svc.Port,
		Debug:           svc.Debug,
		ReadTimeout:     svc.ReadTimeout,
		WriteTimeout:    svc.WriteTimeout,
		ShutdownTimeout: svc.ShutdownTimeout,
	}
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
}
