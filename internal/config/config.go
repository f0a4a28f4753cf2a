package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	RedisURL           string `env:"REDIS_URL,required=true"`
	SinkURL            string `env:"SINK_URL,required=true"`
	ProductionMode     bool   `env:"PRODUCTION_MODE,default=false"`
	DeleteOnSuccess    bool   `env:"DELETE_ON_SUCCESS,default=true"`
	MaxRetries         int    `env:"MAX_RETRIES,default=3"`
	SinkTimeoutSeconds int    `env:"SINK_TIMEOUT_SECONDS,default=30"`
	CacheMaxEntries    int    `env:"CACHE_MAX_ENTRIES,default=10000"`
	CacheEvictSeconds  int    `env:"CACHE_EVICT_INTERVAL_SECONDS,default=60"`
	RateLimitPerSec    int    `env:"RATE_LIMIT_PER_SEC,default=0"`
	AuditDatabaseDSN   string `env:"AUDIT_DATABASE_DSN"`
	APIPort            int    `env:"API_PORT,default=8080"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// DeleteEnabled reports whether relayed bookings should be removed from the
// source. Outside production mode records are always retained for inspection.
func (c *Config) DeleteEnabled() bool {
	return c.ProductionMode && c.DeleteOnSuccess
}
