// Package audithook bridges splitledger session events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/payment"
	"github.com/xraph/splitledger/plugin"
	"github.com/xraph/splitledger/session"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnSessionCreated      = (*Extension)(nil)
	_ plugin.OnSessionEnded        = (*Extension)(nil)
	_ plugin.OnParticipantJoined   = (*Extension)(nil)
	_ plugin.OnParticipantLeft     = (*Extension)(nil)
	_ plugin.OnItemClaimed         = (*Extension)(nil)
	_ plugin.OnItemUnclaimed       = (*Extension)(nil)
	_ plugin.OnItemPaymentRecorded = (*Extension)(nil)
	_ plugin.OnParticipantPaid     = (*Extension)(nil)
	_ plugin.OnSettlementFailed    = (*Extension)(nil)
	_ plugin.OnIntegrityFault      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It matches chronicle.Emitter but is defined locally so that this
// package does not import Chronicle directly.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges session events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Session lifecycle hooks
// ──────────────────────────────────────────────────

// OnSessionCreated implements plugin.OnSessionCreated.
func (e *Extension) OnSessionCreated(ctx context.Context, s *session.Session) error {
	totals := s.Totals()
	return e.record(ctx, ActionSessionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSession, s.ID.String(), CategorySession, nil,
		"created_by", string(s.CreatedBy),
		"title", s.Title,
		"items", len(s.Items),
		"total", totals.Total.String(),
	)
}

// OnSessionEnded implements plugin.OnSessionEnded.
func (e *Extension) OnSessionEnded(ctx context.Context, s *session.Session) error {
	action := ActionSessionCompleted
	outcome := OutcomeSuccess
	if s.Status == session.StatusCancelled {
		action = ActionSessionCancelled
	}
	totals := s.Totals()
	if totals.Remaining.IsPositive() {
		outcome = OutcomePartial
	}
	return e.record(ctx, action, SeverityInfo, outcome,
		ResourceSession, s.ID.String(), CategorySession, nil,
		"status", string(s.Status),
		"paid", totals.Paid.String(),
		"remaining", totals.Remaining.String(),
	)
}

// ──────────────────────────────────────────────────
// Membership hooks
// ──────────────────────────────────────────────────

// OnParticipantJoined implements plugin.OnParticipantJoined.
func (e *Extension) OnParticipantJoined(ctx context.Context, s *session.Session, p *session.Participant) error {
	return e.record(ctx, ActionParticipantJoined, SeverityInfo, OutcomeSuccess,
		ResourceParticipant, string(p.ID), CategoryMembership, nil,
		"session_id", s.ID.String(),
		"name", p.Name,
	)
}

// OnParticipantLeft implements plugin.OnParticipantLeft.
func (e *Extension) OnParticipantLeft(ctx context.Context, s *session.Session, pid session.ParticipantID) error {
	return e.record(ctx, ActionParticipantLeft, SeverityInfo, OutcomeSuccess,
		ResourceParticipant, string(pid), CategoryMembership, nil,
		"session_id", s.ID.String(),
	)
}

// OnParticipantPaid implements plugin.OnParticipantPaid.
func (e *Extension) OnParticipantPaid(ctx context.Context, s *session.Session, pid session.ParticipantID) error {
	kv := []any{"session_id", s.ID.String()}
	if p, ok := s.Participant(pid); ok {
		kv = append(kv, "amount", p.OwedAmount.String())
	}
	return e.record(ctx, ActionParticipantPaid, SeverityInfo, OutcomeSuccess,
		ResourceParticipant, string(pid), CategoryPayment, nil,
		kv...,
	)
}

// ──────────────────────────────────────────────────
// Claim hooks
// ──────────────────────────────────────────────────

// OnItemClaimed implements plugin.OnItemClaimed.
func (e *Extension) OnItemClaimed(ctx context.Context, s *session.Session, itemID id.ItemID, pid session.ParticipantID) error {
	return e.record(ctx, ActionItemClaimed, SeverityInfo, OutcomeSuccess,
		ResourceItem, itemID.String(), CategoryClaim, nil,
		"session_id", s.ID.String(),
		"participant_id", string(pid),
	)
}

// OnItemUnclaimed implements plugin.OnItemUnclaimed.
func (e *Extension) OnItemUnclaimed(ctx context.Context, s *session.Session, itemID id.ItemID, pid session.ParticipantID) error {
	return e.record(ctx, ActionItemUnclaimed, SeverityInfo, OutcomeSuccess,
		ResourceItem, itemID.String(), CategoryClaim, nil,
		"session_id", s.ID.String(),
		"participant_id", string(pid),
	)
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnItemPaymentRecorded implements plugin.OnItemPaymentRecorded. A payment
// that was clamped is audited as a partial outcome.
func (e *Extension) OnItemPaymentRecorded(ctx context.Context, s *session.Session, rec *session.PaymentReceipt) error {
	action, severity, outcome := ActionPaymentRecorded, SeverityInfo, OutcomeSuccess
	if rec.Clamped() {
		action, severity, outcome = ActionPaymentClamped, SeverityWarning, OutcomePartial
	}
	return e.record(ctx, action, severity, outcome,
		ResourcePayment, rec.Payment.ID.String(), CategoryPayment, nil,
		"session_id", s.ID.String(),
		"item_id", rec.ItemID.String(),
		"requested", rec.Requested.String(),
		"applied", rec.Applied.String(),
		"remaining", rec.Remaining.String(),
		"reference", rec.Payment.Reference,
	)
}

// OnSettlementFailed implements plugin.OnSettlementFailed.
func (e *Extension) OnSettlementFailed(ctx context.Context, c payment.Charge, cause error) error {
	return e.record(ctx, ActionSettlementFailed, SeverityError, OutcomeFailure,
		ResourceParticipant, string(c.ParticipantID), CategoryPayment, cause,
		"session_id", c.SessionID.String(),
		"amount", c.Amount.String(),
		"reference", c.Reference,
	)
}

// ──────────────────────────────────────────────────
// Consistency hooks
// ──────────────────────────────────────────────────

// OnIntegrityFault implements plugin.OnIntegrityFault.
func (e *Extension) OnIntegrityFault(ctx context.Context, sessionID id.SessionID, cause error) error {
	return e.record(ctx, ActionIntegrityFault, SeverityCritical, OutcomeFailure,
		ResourceSession, sessionID.String(), CategoryConsistency, cause,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
