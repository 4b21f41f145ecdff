package config

import (
	"strings"
	"time"
)

// BackendConfig points at the service that checks provider tokens and owns the user directory.
type BackendConfig struct {
	// BaseURL of the backend API. Empty means no backend, which only mock auth accepts.
	BaseURL string        `env:"BACKEND_BASE_URL"`
	Timeout time.Duration `env:"BACKEND_TIMEOUT"  envDefault:"10s"`
}

// Sanitize trims the URL and clamps the timeout.
func (c *BackendConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}
