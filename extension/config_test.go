package extension

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/session"
	"github.com/xraph/splitledger/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{OperationTimeout: time.Second})
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, "usd", cfg.DefaultCurrency)
	assert.Equal(t, time.Second, cfg.OperationTimeout)

	cfg = mergeWithDefaults(Config{MaxAttempts: 5, DefaultCurrency: "eur"})
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, "eur", cfg.DefaultCurrency)
}

func TestMergeConfigurations(t *testing.T) {
	yamlCfg := Config{MaxAttempts: 4, DefaultCurrency: "gbp"}
	progCfg := Config{
		MaxAttempts:       9,
		DefaultCurrency:   "eur",
		DisableMigrate:    true,
		VerifyInvariants:  true,
		OperationTimeout:  2 * time.Second,
		WatchPollInterval: time.Second,
	}

	cfg := mergeConfigurations(yamlCfg, progCfg)
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, "gbp", cfg.DefaultCurrency)
	assert.True(t, cfg.DisableMigrate)
	assert.True(t, cfg.VerifyInvariants)
	assert.Equal(t, 2*time.Second, cfg.OperationTimeout)
	assert.Equal(t, time.Second, cfg.WatchPollInterval)

	cfg = mergeConfigurations(Config{}, Config{})
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestBuildLedgerOpts(t *testing.T) {
	e := &Extension{}
	WithDefaultCurrency("eur")(e)
	WithMaxAttempts(2)(e)
	WithInvariantChecks()(e)
	WithStore(memory.New())(e)

	l := splitledger.New(e.store, e.buildLedgerOpts()...)
	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() { _ = l.Stop() })

	s, err := l.CreateSession(ctx, splitledger.CreateInput{
		CreatorID: "alice",
		Items:     []session.ItemInput{{Name: "Crêpe", Price: splitledger.EUR(850)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "eur", s.Currency)
}
