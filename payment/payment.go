// Package payment defines the contract for the external payment processor
// used to settle a participant's share.
package payment

import (
	"context"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/session"
	"github.com/xraph/splitledger/types"
)

// Charge asks the processor to collect one participant's share of a
// session. Reference is an idempotency key the processor should honour.
type Charge struct {
	SessionID     id.SessionID          `json:"session_id"`
	ParticipantID session.ParticipantID `json:"participant_id"`
	Amount        types.Money           `json:"amount"`
	Reference     string                `json:"reference"`
}

// Result is the processor's answer. Only Succeeded matters to the ledger;
// TransactionID and Message are kept for logging and audit.
type Result struct {
	Succeeded     bool   `json:"succeeded"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Processor performs the external payment call.
type Processor interface {
	Charge(ctx context.Context, c Charge) (Result, error)
}

// ProcessorFunc is an adapter to use a plain function as a Processor.
type ProcessorFunc func(ctx context.Context, c Charge) (Result, error)

// Charge implements Processor.
func (f ProcessorFunc) Charge(ctx context.Context, c Charge) (Result, error) {
	return f(ctx, c)
}

// Reference builds the idempotency key for settling pid in a session.
func Reference(sessionID id.SessionID, pid session.ParticipantID) string {
	return "settle:" + sessionID.String() + ":" + string(pid)
}
