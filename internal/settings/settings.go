// Package settings provides the process-wide tunable-parameter cache.
//
// Settings live in the settings table and are read-mostly: the cache is
// rebuilt wholesale by Refresh and swapped in behind a single atomic
// pointer, so readers never observe a partially-updated mapping and need
// no per-read locking.
package settings

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"
)

// Well-known setting names with their fallback defaults. Callers must
// always pass a default; these constants keep the call sites honest.
const (
	KeyDailyUserLimit     = "daily_user_limit"
	KeyLimitWindowSeconds = "limit_window_seconds"

	DefaultDailyUserLimit     = 25
	DefaultLimitWindowSeconds = 86400
)

// Setting is one named tunable from the settings store.
type Setting struct {
	Name        string
	Value       string
	Description string
	LastUpdated time.Time
}

// Store lists all settings from durable storage.
// Interface defined by the consumer; the Postgres implementation lives in
// store.go.
type Store interface {
	ListAll(ctx context.Context) ([]Setting, error)
}

// Cache holds an immutable snapshot of all settings.
//
// Values are coerced to int when syntactically valid ("25" becomes 25) and
// kept as strings otherwise ("gemini-pro" stays a string). Safe for
// concurrent use.
type Cache struct {
	store    Store
	logger   *slog.Logger
	snapshot atomic.Pointer[map[string]any]
}

// NewCache creates a cache with an empty snapshot. Call Refresh to populate
// it; until then every Get falls back to the caller-supplied default.
func NewCache(store Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{store: store, logger: logger}
	empty := map[string]any{}
	c.snapshot.Store(&empty)
	return c
}

// Refresh reloads all settings and atomically swaps in the new mapping.
// On failure the previous snapshot stays active and the error is returned
// for the caller to log or escalate; a running process is never crashed by
// a failed refresh.
func (c *Cache) Refresh(ctx context.Context) error {
	all, err := c.store.ListAll(ctx)
	if err != nil {
		c.logger.Error("settings refresh failed, keeping previous snapshot", "error", err)
		return err
	}

	next := make(map[string]any, len(all))
	for _, s := range all {
		if n, convErr := strconv.Atoi(s.Value); convErr == nil {
			next[s.Name] = n
		} else {
			next[s.Name] = s.Value
		}
	}

	c.snapshot.Store(&next)
	c.logger.Info("settings refreshed", "count", len(next))
	return nil
}

// Int returns the named setting as an int, or def when the setting is
// missing or not numeric.
func (c *Cache) Int(name string, def int) int {
	if v, ok := (*c.snapshot.Load())[name]; ok {
		if n, isInt := v.(int); isInt {
			return n
		}
	}
	return def
}

// String returns the named setting as a string, or def when missing.
// Numeric settings are formatted back to their literal form.
func (c *Cache) String(name, def string) string {
	if v, ok := (*c.snapshot.Load())[name]; ok {
		switch s := v.(type) {
		case string:
			return s
		case int:
			return strconv.Itoa(s)
		}
	}
	return def
}
