package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/splitledger/id"
)

// Sentinel errors for ledger operations. The root splitledger package
// re-exports all of them.
var (
	// Not found
	ErrSessionNotFound     = errors.New("splitledger: session not found")
	ErrItemNotFound        = errors.New("splitledger: item not found")
	ErrParticipantNotFound = errors.New("splitledger: participant not found")

	// Invalid state
	ErrSessionNotActive = errors.New("splitledger: session is not active")
	ErrAlreadyClaimed   = errors.New("splitledger: item already claimed by participant")
	ErrNotClaimed       = errors.New("splitledger: item not claimed by participant")
	ErrAlreadyPaid      = errors.New("splitledger: participant already marked paid")
	ErrNothingToPay     = errors.New("splitledger: participant has no claimed items")
	ErrDuplicatePayment = errors.New("splitledger: duplicate payment reference")
	ErrNotParticipant   = errors.New("splitledger: not a participant of session")

	// Invalid input
	ErrInvalidAmount    = errors.New("splitledger: invalid amount")
	ErrCurrencyMismatch = errors.New("splitledger: currency mismatch")

	// Integrity
	ErrIntegrity = errors.New("splitledger: ledger integrity fault")

	// Transient
	ErrStoreUnavailable = errors.New("splitledger: store unavailable")
	ErrConflict         = errors.New("splitledger: concurrent modification, retries exhausted")
	ErrVersionConflict  = errors.New("splitledger: session version conflict")
)

// Invariant names carried by IntegrityError.
const (
	InvariantClaimMembership    = "claim_membership"
	InvariantClaimantRegistered = "claimant_registered"
	InvariantDuplicateClaim     = "duplicate_claim"
	InvariantOwedConsistency    = "owed_consistency"
	InvariantPaidBounds         = "paid_bounds"
	InvariantCurrency           = "currency"
	InvariantStatus             = "status"
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("splitledger: validation failed for %s: %s", e.Field, e.Message)
}

// IntegrityError reports a violated ledger invariant. It indicates a desync
// between stored fields, not a user error: callers should resync from the
// store rather than retry.
type IntegrityError struct {
	SessionID     id.SessionID
	ItemID        id.ItemID
	ParticipantID ParticipantID
	Invariant     string
	Detail        string
}

func (e *IntegrityError) Error() string {
	var b strings.Builder
	b.WriteString("splitledger: integrity fault (")
	b.WriteString(e.Invariant)
	b.WriteString(")")
	if !e.SessionID.IsNil() {
		b.WriteString(" session=" + e.SessionID.String())
	}
	if !e.ItemID.IsNil() {
		b.WriteString(" item=" + e.ItemID.String())
	}
	if e.ParticipantID != "" {
		b.WriteString(" participant=" + string(e.ParticipantID))
	}
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	return b.String()
}

// Unwrap makes errors.Is(err, ErrIntegrity) hold.
func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "splitledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("splitledger: %d errors occurred (first: %v)", len(e.Errors), e.Errors[0])
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrorOrNil returns e when it holds errors and nil otherwise.
func (e MultiError) ErrorOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

func integrity(s *Session, itemID id.ItemID, pid ParticipantID, invariant, format string, args ...any) *IntegrityError {
	return &IntegrityError{
		SessionID:     s.ID,
		ItemID:        itemID,
		ParticipantID: pid,
		Invariant:     invariant,
		Detail:        fmt.Sprintf(format, args...),
	}
}
