package extension

import "time"

// Config holds the splitledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.splitledger" or "splitledger" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// MaxAttempts bounds how often a mutation is recomputed after losing a
	// version race before ErrConflict is returned (default: 3).
	MaxAttempts int `json:"max_attempts" mapstructure:"max_attempts" yaml:"max_attempts"`

	// OperationTimeout bounds every engine operation. Zero leaves the
	// caller's context as the only deadline.
	OperationTimeout time.Duration `json:"operation_timeout" mapstructure:"operation_timeout" yaml:"operation_timeout"`

	// DefaultCurrency is used for sessions created without one (default: "usd").
	DefaultCurrency string `json:"default_currency" mapstructure:"default_currency" yaml:"default_currency"`

	// VerifyInvariants checks the whole session before every commit.
	VerifyInvariants bool `json:"verify_invariants" mapstructure:"verify_invariants" yaml:"verify_invariants"`

	// WatchPollInterval makes Watch re-read the store periodically so
	// writes from other processes are observed. Zero disables polling.
	WatchPollInterval time.Duration `json:"watch_poll_interval" mapstructure:"watch_poll_interval" yaml:"watch_poll_interval"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     3,
		DefaultCurrency: "usd",
	}
}
