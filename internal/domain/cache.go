package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (single node) + Redis (distributed).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetPriceStats retrieves cached market reference-price statistics for a
	// catalog code.
	GetPriceStats(ctx context.Context, catalogCode string) (*PriceStats, error)

	// SetPriceStats caches market reference-price statistics used during
	// batch enrichment.
	SetPriceStats(ctx context.Context, catalogCode string, stats *PriceStats, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Used to de-duplicate webhook deliveries per dataset.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// PriceStats holds market reference-price statistics for one catalog code.
type PriceStats struct {
	CatalogCode string    `json:"catalogCode"`
	Mean        float64   `json:"mean"`
	SampleCount int       `json:"sampleCount"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `yaml:"type"`

	// Local LRU cache settings
	LocalMaxSize int           `yaml:"local_max_size"`
	LocalTTL     time.Duration `yaml:"local_ttl"`

	// Redis settings
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `yaml:"enable_two_phase"` // If true, check local first, then Redis
}
