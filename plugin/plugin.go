// Package plugin provides an extensible plugin system for the split ledger.
// Plugins observe session lifecycle events and may contribute the payment
// processor and receipt extractor used by the engine.
package plugin

import (
	"context"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/payment"
	"github.com/xraph/splitledger/receipt"
	"github.com/xraph/splitledger/session"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// Lifecycle hooks

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// Session hooks. Every session passed to a hook is a snapshot taken after
// the change was committed; plugins must not mutate it.

// OnSessionCreated is called after a session is stored.
type OnSessionCreated interface {
	Plugin
	OnSessionCreated(ctx context.Context, s *session.Session) error
}

// OnSessionEnded is called when a session becomes completed or cancelled.
type OnSessionEnded interface {
	Plugin
	OnSessionEnded(ctx context.Context, s *session.Session) error
}

// OnParticipantJoined is called when a new participant joins.
type OnParticipantJoined interface {
	Plugin
	OnParticipantJoined(ctx context.Context, s *session.Session, p *session.Participant) error
}

// OnParticipantLeft is called after a participant left and their claims
// were released.
type OnParticipantLeft interface {
	Plugin
	OnParticipantLeft(ctx context.Context, s *session.Session, pid session.ParticipantID) error
}

// Claim hooks

// OnItemClaimed is called after a participant claims an item.
type OnItemClaimed interface {
	Plugin
	OnItemClaimed(ctx context.Context, s *session.Session, itemID id.ItemID, pid session.ParticipantID) error
}

// OnItemUnclaimed is called after a participant releases an item.
type OnItemUnclaimed interface {
	Plugin
	OnItemUnclaimed(ctx context.Context, s *session.Session, itemID id.ItemID, pid session.ParticipantID) error
}

// Payment hooks

// OnItemPaymentRecorded is called after an item payment is stored.
type OnItemPaymentRecorded interface {
	Plugin
	OnItemPaymentRecorded(ctx context.Context, s *session.Session, r *session.PaymentReceipt) error
}

// OnParticipantPaid is called after a participant is marked paid.
type OnParticipantPaid interface {
	Plugin
	OnParticipantPaid(ctx context.Context, s *session.Session, pid session.ParticipantID) error
}

// OnSettlementFailed is called when the payment processor declines or
// fails a settlement charge.
type OnSettlementFailed interface {
	Plugin
	OnSettlementFailed(ctx context.Context, c payment.Charge, err error) error
}

// Consistency hooks

// OnIntegrityFault is called when stored ledger fields disagree.
type OnIntegrityFault interface {
	Plugin
	OnIntegrityFault(ctx context.Context, sessionID id.SessionID, err error) error
}

// OnMutationRetried is called when a mutation lost a version race and is
// being retried.
type OnMutationRetried interface {
	Plugin
	OnMutationRetried(ctx context.Context, sessionID id.SessionID, op string, attempt int) error
}

// Providers

// PaymentProcessorPlugin supplies the processor used by Settle.
type PaymentProcessorPlugin interface {
	Plugin
	Processor() payment.Processor
}

// ReceiptExtractorPlugin supplies the extractor used to build items from a
// receipt image.
type ReceiptExtractorPlugin interface {
	Plugin
	Extractor() receipt.Extractor
}
