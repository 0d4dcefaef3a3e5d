package indexer

import (
	"fmt"
	"time"
)

type Config struct {
	ElectrsURL string `default:"https://api.junkiewally.xyz" envconfig:"ELECTRS_URL" json:"ELECTRS_URL"`
	ContentURL string `default:"https://content.nintondo.io/api/pub" envconfig:"CONTENT_URL" json:"CONTENT_URL"`
	APIKey     string `envconfig:"INDEX_API_KEY" json:"INDEX_API_KEY" masked:"true"`

	// Upper bound on each query, including retries.
	Timeout time.Duration `default:"10s" envconfig:"INDEX_TIMEOUT" json:"INDEX_TIMEOUT"`

	// Retry attempts for timeouts and server errors.
	MaxRetries int           `default:"2" envconfig:"INDEX_MAX_RETRIES" json:"INDEX_MAX_RETRIES"`
	RetryDelay time.Duration `default:"250ms" envconfig:"INDEX_RETRY_DELAY" json:"INDEX_RETRY_DELAY"`

	// Zero disables rate limiting.
	RequestsPerSecond float64 `default:"10" envconfig:"INDEX_REQUESTS_PER_SECOND" json:"INDEX_REQUESTS_PER_SECOND"`
	Burst             int     `default:"5" envconfig:"INDEX_BURST" json:"INDEX_BURST"`
}

// DefaultConfig returns the values used when no environment is loaded.
func DefaultConfig() Config {
	return Config{
		ElectrsURL:        "https://api.junkiewally.xyz",
		ContentURL:        "https://content.nintondo.io/api/pub",
		Timeout:           10 * time.Second,
		MaxRetries:        2,
		RetryDelay:        250 * time.Millisecond,
		RequestsPerSecond: 10,
		Burst:             5,
	}
}

// String returns a custom string representation.
//
// This is important so we don't log sensitive config values.
func (c Config) String() string {
	return fmt.Sprintf("{ElectrsURL:%v ContentURL:%v APIKey:%v Timeout:%s MaxRetries:%d RetryDelay:%s}",
		c.ElectrsURL, c.ContentURL, "****", c.Timeout, c.MaxRetries, c.RetryDelay)
}
