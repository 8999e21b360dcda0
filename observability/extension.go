// Package observability provides a metrics extension for splitledger that
// records session event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/payment"
	"github.com/xraph/splitledger/plugin"
	"github.com/xraph/splitledger/session"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnSessionCreated      = (*MetricsExtension)(nil)
	_ plugin.OnSessionEnded        = (*MetricsExtension)(nil)
	_ plugin.OnParticipantJoined   = (*MetricsExtension)(nil)
	_ plugin.OnParticipantLeft     = (*MetricsExtension)(nil)
	_ plugin.OnItemClaimed         = (*MetricsExtension)(nil)
	_ plugin.OnItemUnclaimed       = (*MetricsExtension)(nil)
	_ plugin.OnItemPaymentRecorded = (*MetricsExtension)(nil)
	_ plugin.OnParticipantPaid     = (*MetricsExtension)(nil)
	_ plugin.OnSettlementFailed    = (*MetricsExtension)(nil)
	_ plugin.OnIntegrityFault      = (*MetricsExtension)(nil)
	_ plugin.OnMutationRetried     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide session metrics.
// Register it as a splitledger plugin to track bill activity.
type MetricsExtension struct {
	factory MetricFactory

	// Session metrics
	SessionCreated   Counter
	SessionCompleted Counter
	SessionCancelled Counter
	SessionTotal     Histogram
	SessionItems     Histogram

	// Participant metrics
	ParticipantJoined Counter
	ParticipantLeft   Counter
	ParticipantPaid   Counter

	// Claim metrics
	ItemClaimed   Counter
	ItemUnclaimed Counter

	// Payment metrics
	PaymentRecorded    Counter
	PaymentClamped     Counter
	PaymentApplied     Histogram
	SettlementFailures Counter

	// Consistency metrics
	IntegrityFaults Counter
	MutationRetries Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Amounts are observed in minor currency units.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Session metrics
		SessionCreated:   factory.Counter("splitledger.session.created"),
		SessionCompleted: factory.Counter("splitledger.session.completed"),
		SessionCancelled: factory.Counter("splitledger.session.cancelled"),
		SessionTotal:     factory.Histogram("splitledger.session.total_amount"),
		SessionItems:     factory.Histogram("splitledger.session.items"),

		// Participant metrics
		ParticipantJoined: factory.Counter("splitledger.participant.joined"),
		ParticipantLeft:   factory.Counter("splitledger.participant.left"),
		ParticipantPaid:   factory.Counter("splitledger.participant.paid"),

		// Claim metrics
		ItemClaimed:   factory.Counter("splitledger.item.claimed"),
		ItemUnclaimed: factory.Counter("splitledger.item.unclaimed"),

		// Payment metrics
		PaymentRecorded:    factory.Counter("splitledger.payment.recorded"),
		PaymentClamped:     factory.Counter("splitledger.payment.clamped"),
		PaymentApplied:     factory.Histogram("splitledger.payment.applied_amount"),
		SettlementFailures: factory.Counter("splitledger.settlement.failures"),

		// Consistency metrics
		IntegrityFaults: factory.Counter("splitledger.integrity.faults"),
		MutationRetries: factory.Counter("splitledger.mutation.retries"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Session lifecycle hooks
// ──────────────────────────────────────────────────

// OnSessionCreated implements plugin.OnSessionCreated.
func (m *MetricsExtension) OnSessionCreated(_ context.Context, s *session.Session) error {
	m.SessionCreated.Inc()
	m.SessionTotal.Observe(float64(s.Totals().Total.Amount))
	m.SessionItems.Observe(float64(len(s.Items)))
	return nil
}

// OnSessionEnded implements plugin.OnSessionEnded.
func (m *MetricsExtension) OnSessionEnded(_ context.Context, s *session.Session) error {
	if s.Status == session.StatusCancelled {
		m.SessionCancelled.Inc()
	} else {
		m.SessionCompleted.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Participant hooks
// ──────────────────────────────────────────────────

// OnParticipantJoined implements plugin.OnParticipantJoined.
func (m *MetricsExtension) OnParticipantJoined(_ context.Context, _ *session.Session, _ *session.Participant) error {
	m.ParticipantJoined.Inc()
	return nil
}

// OnParticipantLeft implements plugin.OnParticipantLeft.
func (m *MetricsExtension) OnParticipantLeft(_ context.Context, _ *session.Session, _ session.ParticipantID) error {
	m.ParticipantLeft.Inc()
	return nil
}

// OnParticipantPaid implements plugin.OnParticipantPaid.
func (m *MetricsExtension) OnParticipantPaid(_ context.Context, _ *session.Session, _ session.ParticipantID) error {
	m.ParticipantPaid.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

// OnItemClaimed implements plugin.OnItemClaimed.
func (m *MetricsExtension) OnItemClaimed(_ context.Context, _ *session.Session, _ id.ItemID, _ session.ParticipantID) error {
	m.ItemClaimed.Inc()
	return nil
}

// OnItemUnclaimed implements plugin.OnItemUnclaimed.
func (m *MetricsExtension) OnItemUnclaimed(_ context.Context, _ *session.Session, _ id.ItemID, _ session.ParticipantID) error {
	m.ItemUnclaimed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnItemPaymentRecorded implements plugin.OnItemPaymentRecorded.
func (m *MetricsExtension) OnItemPaymentRecorded(_ context.Context, _ *session.Session, rec *session.PaymentReceipt) error {
	m.PaymentRecorded.Inc()
	m.PaymentApplied.Observe(float64(rec.Applied.Amount))
	if rec.Clamped() {
		m.PaymentClamped.Inc()
	}
	return nil
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (m *MetricsExtension) OnSettlementFailed(_ context.Context, _ payment.Charge, _ error) error {
	m.SettlementFailures.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Consistency hooks
// ──────────────────────────────────────────────────

// OnIntegrityFault implements plugin.OnIntegrityFault.
func (m *MetricsExtension) OnIntegrityFault(_ context.Context, _ id.SessionID, _ error) error {
	m.IntegrityFaults.Inc()
	return nil
}

// OnMutationRetried implements plugin.OnMutationRetried.
func (m *MetricsExtension) OnMutationRetried(_ context.Context, _ id.SessionID, _ string, _ int) error {
	m.MutationRetries.Inc()
	return nil
}
