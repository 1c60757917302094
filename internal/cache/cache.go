// Package cache provides the key-value cache used for statistics read models.
//
// Values are stored as JSON. The Redis implementation backs production; the
// in-memory implementation backs tests and single-node development.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is the minimal surface the stats read models need.
type Cache interface {
	// Get unmarshals the cached value for key into dest.
	// Returns ErrMiss when the key is absent or expired.
	Get(ctx context.Context, key string, dest any) error
	// Set stores value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, keys ...string) error
}

func marshal(value any) ([]byte, error) {
	return json.Marshal(value)
}

func unmarshal(data []byte, dest any) error {
	return json.Unmarshal(data, dest)
}
