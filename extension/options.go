package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/plugin"
	"github.com/xraph/splitledger/store"
	"github.com/xraph/splitledger/store/mongo"
	"github.com/xraph/splitledger/store/postgres"
	"github.com/xraph/splitledger/store/sqlite"
)

// Option configures the splitledger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the ledger engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPostgres backs the engine with a PostgreSQL grove database.
func WithPostgres(db *grove.DB) Option {
	return func(e *Extension) { e.store = postgres.New(db) }
}

// WithSQLite backs the engine with a SQLite grove database.
func WithSQLite(db *grove.DB) Option {
	return func(e *Extension) { e.store = sqlite.New(db) }
}

// WithMongo backs the engine with a MongoDB grove database.
func WithMongo(db *grove.DB) Option {
	return func(e *Extension) { e.store = mongo.New(db) }
}

// WithLedgerOption passes a splitledger.Option through to the underlying engine.
func WithLedgerOption(opt splitledger.Option) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, opt)
	}
}

// WithPlugin registers a splitledger plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.ledgerOpts = append(e.ledgerOpts, splitledger.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithMaxAttempts sets how many times a mutation is attempted.
func WithMaxAttempts(n int) Option {
	return func(e *Extension) { e.config.MaxAttempts = n }
}

// WithOperationTimeout bounds every engine operation.
func WithOperationTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.OperationTimeout = d }
}

// WithDefaultCurrency sets the currency for sessions created without one.
func WithDefaultCurrency(currency string) Option {
	return func(e *Extension) { e.config.DefaultCurrency = currency }
}

// WithInvariantChecks verifies every session before commit.
func WithInvariantChecks() Option {
	return func(e *Extension) { e.config.VerifyInvariants = true }
}

// WithWatchPollInterval makes Watch poll the store at the given interval.
func WithWatchPollInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.WatchPollInterval = d }
}
