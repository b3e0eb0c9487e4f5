package elastic

import "time"

// Config holds the search cluster connection and resilience settings.
type Config struct {
	Addresses  []string
	Username   string
	Password   string
	APIKey     string
	MaxRetries int

	// Breaker opens after BreakerFailures consecutive transport failures and
	// stays open for BreakerTimeout. While closed, failure counts reset
	// every BreakerInterval.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	BreakerInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addresses:       []string{"http://localhost:9200"},
		MaxRetries:      3,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
		BreakerInterval: time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Addresses) == 0 {
		c.Addresses = d.Addresses
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = d.BreakerFailures
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = d.BreakerTimeout
	}
	if c.BreakerInterval <= 0 {
		c.BreakerInterval = d.BreakerInterval
	}
	return c
}
