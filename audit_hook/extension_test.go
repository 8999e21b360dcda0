package audithook_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/xraph/splitledger/audit_hook"
	"github.com/xraph/splitledger/payment"
	"github.com/xraph/splitledger/session"
	"github.com/xraph/splitledger/types"
)

var t0 = time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)

type memRecorder struct {
	events []*audithook.AuditEvent
	err    error
}

func (m *memRecorder) Record(_ context.Context, evt *audithook.AuditEvent) error {
	m.events = append(m.events, evt)
	return m.err
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.New(session.Params{
		Currency:  "usd",
		CreatorID: "alice",
		Items:     []session.ItemInput{{Name: "Ramen", Price: types.USD(1800)}},
		CreatedAt: t0,
	})
	require.NoError(t, err)
	return s
}

func TestSessionEvents(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)
	ctx := context.Background()
	s := newSession(t)

	require.NoError(t, ext.OnSessionCreated(ctx, s))
	_, _, err := session.End(s, session.StatusCancelled, t0)
	require.NoError(t, err)
	require.NoError(t, ext.OnSessionEnded(ctx, s))

	require.Len(t, rec.events, 2)
	created := rec.events[0]
	assert.Equal(t, audithook.ActionSessionCreated, created.Action)
	assert.Equal(t, audithook.ResourceSession, created.Resource)
	assert.Equal(t, s.ID.String(), created.ResourceID)
	assert.Equal(t, "alice", created.Metadata["created_by"])
	assert.Equal(t, 1, created.Metadata["items"])

	ended := rec.events[1]
	assert.Equal(t, audithook.ActionSessionCancelled, ended.Action)
	assert.Equal(t, audithook.OutcomePartial, ended.Outcome)
}

func TestClampedPaymentIsPartial(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)
	s := newSession(t)

	_, receipt, err := session.RecordItemPayment(s, s.Items[0].ID, types.USD(2500), "card", t0)
	require.NoError(t, err)
	require.NoError(t, ext.OnItemPaymentRecorded(context.Background(), s, receipt))

	require.Len(t, rec.events, 1)
	evt := rec.events[0]
	assert.Equal(t, audithook.ActionPaymentClamped, evt.Action)
	assert.Equal(t, audithook.SeverityWarning, evt.Severity)
	assert.Equal(t, audithook.OutcomePartial, evt.Outcome)
	assert.Equal(t, receipt.Payment.ID.String(), evt.ResourceID)
	assert.Equal(t, "card", evt.Metadata["reference"])
}

func TestSettlementFailedCarriesReason(t *testing.T) {
	rec := &memRecorder{}
	ext := audithook.New(rec)
	s := newSession(t)

	charge := payment.Charge{
		SessionID:     s.ID,
		ParticipantID: "alice",
		Amount:        types.USD(1800),
		Reference:     payment.Reference(s.ID, "alice"),
	}
	require.NoError(t, ext.OnSettlementFailed(context.Background(), charge, errors.New("card declined")))

	require.Len(t, rec.events, 1)
	evt := rec.events[0]
	assert.Equal(t, audithook.OutcomeFailure, evt.Outcome)
	assert.Equal(t, "card declined", evt.Reason)
	assert.Equal(t, "card declined", evt.Metadata["error"])
	assert.Equal(t, "alice", evt.ResourceID)
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	s := newSession(t)

	rec := &memRecorder{}
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionItemClaimed))
	require.NoError(t, ext.OnSessionCreated(ctx, s))
	require.NoError(t, ext.OnItemClaimed(ctx, s, s.Items[0].ID, "alice"))
	require.Len(t, rec.events, 1)
	assert.Equal(t, audithook.ActionItemClaimed, rec.events[0].Action)

	rec = &memRecorder{}
	ext = audithook.New(rec, audithook.WithDisabledActions(audithook.ActionItemClaimed))
	require.NoError(t, ext.OnSessionCreated(ctx, s))
	require.NoError(t, ext.OnItemClaimed(ctx, s, s.Items[0].ID, "alice"))
	require.Len(t, rec.events, 1)
	assert.Equal(t, audithook.ActionSessionCreated, rec.events[0].Action)
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	rec := &memRecorder{err: errors.New("backend down")}
	ext := audithook.New(rec, audithook.WithLogger(slog.New(slog.DiscardHandler)))

	assert.NoError(t, ext.OnIntegrityFault(context.Background(), newSession(t).ID, errors.New("owed mismatch")))
	assert.Len(t, rec.events, 1)
}
