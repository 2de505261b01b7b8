package app

import (
	"context"
	"fmt"
)

// Pinger is the minimal interface for a dependency capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// BuildReadinessCheck combines dependency pings into one readiness probe.
// Optional dependencies pass nil and are skipped.
func BuildReadinessCheck(db Pinger, cache Pinger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if db == nil {
			return fmt.Errorf("db not configured")
		}
		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("db: %w", err)
		}
		if cache != nil {
			if err := cache.Ping(ctx); err != nil {
				return fmt.Errorf("cache: %w", err)
			}
		}
		return nil
	}
}
