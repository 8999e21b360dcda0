package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/observability"
	"github.com/xraph/splitledger/payment"
	"github.com/xraph/splitledger/session"
	"github.com/xraph/splitledger/store/memory"
	"github.com/xraph/splitledger/types"
)

type fakeFactory struct {
	mu         sync.Mutex
	counters   map[string]*fakeCounter
	histograms map[string]*fakeHistogram
}

type fakeCounter struct {
	mu sync.Mutex
	v  float64
}

func (c *fakeCounter) Inc() { c.Add(1) }

func (c *fakeCounter) Add(d float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v += d
}

type fakeHistogram struct {
	mu  sync.Mutex
	obs []float64
}

func (h *fakeHistogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.obs = append(h.obs, v)
}

func newFactory() *fakeFactory {
	return &fakeFactory{
		counters:   make(map[string]*fakeCounter),
		histograms: make(map[string]*fakeHistogram),
	}
}

func (f *fakeFactory) Counter(name string) observability.Counter {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeCounter{}
	f.counters[name] = c
	return c
}

func (f *fakeFactory) Histogram(name string) observability.Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fakeHistogram{}
	f.histograms[name] = h
	return h
}

func (f *fakeFactory) count(name string) float64 {
	c := f.counters[name]
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func TestMetricsFromLedger(t *testing.T) {
	ctx := context.Background()
	f := newFactory()
	l := splitledger.New(memory.New(),
		splitledger.WithLogger(slog.New(slog.DiscardHandler)),
		splitledger.WithPlugin(observability.NewMetricsExtension(f)),
	)
	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() { _ = l.Stop() })

	s, err := l.CreateSession(ctx, splitledger.CreateInput{
		CreatorID: "alice",
		Items: []session.ItemInput{
			{Name: "Pizza", Price: types.USD(3000)},
			{Name: "Salad", Price: types.USD(1000)},
		},
	})
	require.NoError(t, err)
	_, _, err = l.Join(ctx, s.ID, splitledger.JoinInput{ParticipantID: "bob"})
	require.NoError(t, err)
	_, err = l.ClaimItem(ctx, s.ID, s.Items[0].ID, "alice")
	require.NoError(t, err)
	_, err = l.ClaimItem(ctx, s.ID, s.Items[1].ID, "bob")
	require.NoError(t, err)
	_, err = l.UnclaimItem(ctx, s.ID, s.Items[1].ID, "bob")
	require.NoError(t, err)
	_, err = l.RecordItemPayment(ctx, s.ID, s.Items[1].ID, types.USD(1200), "")
	require.NoError(t, err)
	_, err = l.MarkParticipantPaid(ctx, s.ID, "alice")
	require.NoError(t, err)

	declined := payment.ProcessorFunc(func(context.Context, payment.Charge) (payment.Result, error) {
		return payment.Result{}, errors.New("card expired")
	})
	_, err = l.ClaimItem(ctx, s.ID, s.Items[1].ID, "bob")
	require.NoError(t, err)
	_, err = l.Settle(ctx, s.ID, "bob", declined)
	require.Error(t, err)

	_, err = l.Leave(ctx, s.ID, "bob")
	require.NoError(t, err)
	_, err = l.End(ctx, s.ID)
	require.NoError(t, err)

	assert.Equal(t, 1.0, f.count("splitledger.session.created"))
	assert.Equal(t, 1.0, f.count("splitledger.session.completed"))
	assert.Equal(t, 0.0, f.count("splitledger.session.cancelled"))
	assert.Equal(t, 1.0, f.count("splitledger.participant.joined"))
	assert.Equal(t, 1.0, f.count("splitledger.participant.left"))
	assert.Equal(t, 1.0, f.count("splitledger.participant.paid"))
	assert.Equal(t, 3.0, f.count("splitledger.item.claimed"))
	assert.Equal(t, 1.0, f.count("splitledger.item.unclaimed"))
	assert.Equal(t, 1.0, f.count("splitledger.payment.recorded"))
	assert.Equal(t, 1.0, f.count("splitledger.payment.clamped"))
	assert.Equal(t, 1.0, f.count("splitledger.settlement.failures"))
	assert.Equal(t, []float64{4000}, f.histograms["splitledger.session.total_amount"].obs)
	assert.Equal(t, []float64{1000}, f.histograms["splitledger.payment.applied_amount"].obs)
}

func TestIntegrityAndRetryCounters(t *testing.T) {
	f := newFactory()
	m := observability.NewMetricsExtension(f)
	ctx := context.Background()

	require.NoError(t, m.OnIntegrityFault(ctx, id.NewSessionID(), errors.New("drift")))
	require.NoError(t, m.OnMutationRetried(ctx, id.NewSessionID(), "claim item", 1))
	require.NoError(t, m.OnMutationRetried(ctx, id.NewSessionID(), "claim item", 2))

	assert.Equal(t, 1.0, f.count("splitledger.integrity.faults"))
	assert.Equal(t, 2.0, f.count("splitledger.mutation.retries"))
}
