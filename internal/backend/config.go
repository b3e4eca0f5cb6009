package backend

import (
	"fmt"
	"time"

	"subtrack/internal/config"
)

// BlobType names the store behind the rate cache and persisted settings.
type BlobType string

const (
	SQLiteBlobs BlobType = "sqlite"
	RedisBlobs  BlobType = "redis"
	MemoryBlobs BlobType = "memory"
)

func (t BlobType) IsValid() bool {
	switch t {
	case SQLiteBlobs, RedisBlobs, MemoryBlobs:
		return true
	}
	return false
}

func (t BlobType) String() string {
	return string(t)
}

// Config selects and parameterizes the blob store.
type Config struct {
	Type BlobType

	RedisURL    string
	RedisPrefix string

	// Memory store bounds; zero means unbounded.
	MemoryMaxEntries int
	MemoryTTL        time.Duration
	// CleanupInterval drives expiry sweeps of the memory store.
	CleanupInterval time.Duration
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	t := BlobType(appConfig.BlobBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid blob backend in config: %s", appConfig.BlobBackend)
	}
	return Config{
		Type:             t,
		RedisURL:         appConfig.RedisURL,
		RedisPrefix:      "subtrack:",
		MemoryMaxEntries: 1024,
		CleanupInterval:  10 * time.Minute,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid blob backend: %s", c.Type)
	}
	if c.Type == RedisBlobs && c.RedisURL == "" {
		return fmt.Errorf("Redis URL is required for redis blob backend")
	}
	return nil
}

// BlobTypeStrings returns all valid backend names.
func BlobTypeStrings() []string {
	return []string{SQLiteBlobs.String(), RedisBlobs.String(), MemoryBlobs.String()}
}
