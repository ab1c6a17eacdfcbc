// Package checkpoint stores, per stream identity, the timestamp of the most
// recently delivered item. Long-poll sessions read it to decide whether
// anything is new and write it after a successful delivery.
//
// Stores are safe for concurrent use. There is no compare-and-swap: when two
// sessions for the same identity deliver concurrently, the last writer wins.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store is the checkpoint persistence contract. ok is false when no
// checkpoint has ever been written for key (or it has expired). Delete of a
// missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (ms int64, ok bool, err error)
	Set(ctx context.Context, key string, ms int64) error
	Delete(ctx context.Context, key string) error
}

// Options selects and tunes a backend.
type Options struct {
	Backend string        // memory|sqlite
	TTL     time.Duration // idle expiry, 0 = never
	Cleanup time.Duration // expired-entry sweep interval (memory)
}

// New returns the store named by opts.Backend. db is required for "sqlite".
func New(opts Options, db *gorm.DB) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(opts.TTL, opts.Cleanup), nil
	case "sqlite":
		if db == nil {
			return nil, fmt.Errorf("checkpoint: backend %q needs a database", opts.Backend)
		}
		return NewSQLStore(db, opts.TTL), nil
	default:
		return nil, fmt.Errorf("checkpoint: unknown backend %q", opts.Backend)
	}
}
