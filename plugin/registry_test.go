package plugin_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/payment"
	"github.com/xraph/splitledger/plugin"
	"github.com/xraph/splitledger/receipt"
	"github.com/xraph/splitledger/session"
)

type counter struct {
	name    string
	created atomic.Int32
	claimed atomic.Int32
	retries atomic.Int32
}

func (c *counter) Name() string { return c.name }

func (c *counter) OnSessionCreated(context.Context, *session.Session) error {
	c.created.Add(1)
	return nil
}

func (c *counter) OnItemClaimed(context.Context, *session.Session, id.ItemID, session.ParticipantID) error {
	c.claimed.Add(1)
	return nil
}

func (c *counter) OnMutationRetried(context.Context, id.SessionID, string, int) error {
	c.retries.Add(1)
	return nil
}

type faulty struct {
	name string
	fn   func() error
}

func (f *faulty) Name() string { return f.name }

func (f *faulty) OnSessionCreated(context.Context, *session.Session) error { return f.fn() }

type gateway struct{ name string }

func (g *gateway) Name() string { return g.name }

func (g *gateway) Processor() payment.Processor {
	return payment.ProcessorFunc(func(context.Context, payment.Charge) (payment.Result, error) {
		return payment.Result{Succeeded: true, TransactionID: g.name}, nil
	})
}

type scanner struct{}

func (scanner) Name() string { return "scanner" }

func (scanner) Extractor() receipt.Extractor {
	return receipt.ExtractorFunc(func(context.Context, []byte) ([]receipt.Candidate, error) {
		return nil, nil
	})
}

func newRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.DiscardHandler))
}

func TestRegister(t *testing.T) {
	r := newRegistry()
	c := &counter{name: "counter"}

	require.NoError(t, r.Register(c))
	assert.Error(t, r.Register(&counter{name: "counter"}))
	assert.Equal(t, 1, r.Count())
	assert.Same(t, c, r.Get("counter"))
	assert.Nil(t, r.Get("missing"))
	assert.Len(t, r.List(), 1)
}

func TestEmitDispatchesByInterface(t *testing.T) {
	r := newRegistry()
	c := &counter{name: "counter"}
	require.NoError(t, r.Register(c))
	require.NoError(t, r.Register(scanner{}))

	ctx := context.Background()
	r.EmitSessionCreated(ctx, &session.Session{})
	r.EmitItemClaimed(ctx, &session.Session{}, id.NewItemID(), "alice")
	r.EmitItemClaimed(ctx, &session.Session{}, id.NewItemID(), "bob")
	r.EmitMutationRetried(ctx, id.NewSessionID(), "claim item", 1)
	r.EmitSessionEnded(ctx, &session.Session{})

	assert.Equal(t, int32(1), c.created.Load())
	assert.Equal(t, int32(2), c.claimed.Load())
	assert.Equal(t, int32(1), c.retries.Load())
}

func TestEmitSurvivesFailingPlugins(t *testing.T) {
	r := newRegistry().WithTimeout(20 * time.Millisecond)
	c := &counter{name: "counter"}
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	require.NoError(t, r.Register(&faulty{name: "errors", fn: func() error { return errors.New("boom") }}))
	require.NoError(t, r.Register(&faulty{name: "panics", fn: func() error { panic("boom") }}))
	require.NoError(t, r.Register(&faulty{name: "hangs", fn: func() error {
		<-release
		return nil
	}}))
	require.NoError(t, r.Register(c))

	start := time.Now()
	r.EmitSessionCreated(context.Background(), &session.Session{})

	assert.Equal(t, int32(1), c.created.Load())
	assert.Less(t, time.Since(start), time.Second)
}

func TestProcessorAndExtractors(t *testing.T) {
	r := newRegistry()
	assert.Nil(t, r.Processor())
	assert.Empty(t, r.Extractors())

	require.NoError(t, r.Register(&gateway{name: "first"}))
	require.NoError(t, r.Register(&gateway{name: "second"}))
	require.NoError(t, r.Register(scanner{}))

	res, err := r.Processor().Charge(context.Background(), payment.Charge{})
	require.NoError(t, err)
	assert.Equal(t, "first", res.TransactionID)
	assert.Len(t, r.Extractors(), 1)
}
