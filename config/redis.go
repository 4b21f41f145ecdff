package config

import "time"

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// SessionConfig controls the browser session stored in Redis.
type SessionConfig struct {
	TTL       time.Duration `env:"SESSION_TTL"        envDefault:"8h"`
	KeyPrefix string        `env:"SESSION_KEY_PREFIX" envDefault:"session:"`
}

// Sanitize keeps sessions from being created without an expiry.
func (c *SessionConfig) Sanitize() {
	if c.TTL <= 0 {
		c.TTL = 8 * time.Hour
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "session:"
	}
}
