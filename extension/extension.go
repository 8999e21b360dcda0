// Package extension provides the Forge extension adapter for splitledger.
//
// It implements the forge.Extension interface to integrate the engine
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.splitledger" or
// "splitledger" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/store"
	"github.com/xraph/splitledger/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "splitledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Shared bill splitting and settlement ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts splitledger as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *splitledger.Ledger
	store      store.Store
	ledgerOpts []splitledger.Option
}

// New creates a new splitledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *splitledger.Ledger { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	eng := splitledger.New(e.store, e.buildLedgerOpts()...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*splitledger.Ledger, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("splitledger: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("splitledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs splitledger.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []splitledger.Option {
	opts := make([]splitledger.Option, 0, len(e.ledgerOpts)+5)

	if e.config.MaxAttempts > 0 {
		opts = append(opts, splitledger.WithMaxAttempts(e.config.MaxAttempts))
	}
	if e.config.OperationTimeout > 0 {
		opts = append(opts, splitledger.WithOperationTimeout(e.config.OperationTimeout))
	}
	if e.config.DefaultCurrency != "" {
		opts = append(opts, splitledger.WithDefaultCurrency(e.config.DefaultCurrency))
	}
	if e.config.VerifyInvariants {
		opts = append(opts, splitledger.WithInvariantChecks(true))
	}
	if e.config.WatchPollInterval > 0 {
		opts = append(opts, splitledger.WithWatchPoll(e.config.WatchPollInterval))
	}

	// Append any pass-through options.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("splitledger: configuration is required but not found in config files; " +
				"ensure 'extensions.splitledger' or 'splitledger' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("splitledger: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("max_attempts", e.config.MaxAttempts),
		forge.F("operation_timeout", e.config.OperationTimeout),
		forge.F("default_currency", e.config.DefaultCurrency),
		forge.F("verify_invariants", e.config.VerifyInvariants),
		forge.F("watch_poll_interval", e.config.WatchPollInterval),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.splitledger", "splitledger"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("splitledger: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("splitledger: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = defaults.DefaultCurrency
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.VerifyInvariants {
		yamlConfig.VerifyInvariants = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.DefaultCurrency == "" && programmaticConfig.DefaultCurrency != "" {
		yamlConfig.DefaultCurrency = programmaticConfig.DefaultCurrency
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.MaxAttempts == 0 && programmaticConfig.MaxAttempts != 0 {
		yamlConfig.MaxAttempts = programmaticConfig.MaxAttempts
	}
	if yamlConfig.OperationTimeout == 0 && programmaticConfig.OperationTimeout != 0 {
		yamlConfig.OperationTimeout = programmaticConfig.OperationTimeout
	}
	if yamlConfig.WatchPollInterval == 0 && programmaticConfig.WatchPollInterval != 0 {
		yamlConfig.WatchPollInterval = programmaticConfig.WatchPollInterval
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
