package store

import (
	"context"

	"github.com/xraph/splitledger/session"
)

// Store is the unified storage interface the splitledger engine runs on.
// Backends live in the memory, postgres, sqlite and mongo subpackages.
type Store interface {
	session.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
