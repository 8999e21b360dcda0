package splitledger

import (
	"context"
	"errors"

	"github.com/xraph/splitledger/session"
)

// Sentinel errors for common failure scenarios. Ledger errors are defined in
// the session package and re-exported here.
var (
	// General errors
	ErrAlreadyExists = errors.New("splitledger: already exists")
	ErrInvalidInput  = errors.New("splitledger: invalid input")

	// Not found
	ErrSessionNotFound     = session.ErrSessionNotFound
	ErrItemNotFound        = session.ErrItemNotFound
	ErrParticipantNotFound = session.ErrParticipantNotFound

	// Invalid state
	ErrSessionNotActive = session.ErrSessionNotActive
	ErrAlreadyClaimed   = session.ErrAlreadyClaimed
	ErrNotClaimed       = session.ErrNotClaimed
	ErrAlreadyPaid      = session.ErrAlreadyPaid
	ErrNothingToPay     = session.ErrNothingToPay
	ErrDuplicatePayment = session.ErrDuplicatePayment
	ErrNotParticipant   = session.ErrNotParticipant

	// Invalid input
	ErrInvalidAmount    = session.ErrInvalidAmount
	ErrCurrencyMismatch = session.ErrCurrencyMismatch

	// Integrity
	ErrIntegrity = session.ErrIntegrity

	// Payment errors
	ErrPaymentDeclined = errors.New("splitledger: payment declined")

	// Store errors
	ErrStoreUnavailable = session.ErrStoreUnavailable
	ErrStoreClosed      = errors.New("splitledger: store is closed")
	ErrMigrationFailed  = errors.New("splitledger: migration failed")
	ErrConflict         = session.ErrConflict
	ErrVersionConflict  = session.ErrVersionConflict
)

// ValidationError represents a validation failure with details.
type ValidationError = session.ValidationError

// IntegrityError reports a violated ledger invariant.
type IntegrityError = session.IntegrityError

// MultiError represents multiple errors that occurred.
type MultiError = session.MultiError

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrParticipantNotFound) ||
		errors.Is(err, ErrNotParticipant)
}

// IsInvalidState returns true if the operation violated a lifecycle rule or
// repeated an action that must happen once.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrSessionNotActive) ||
		errors.Is(err, ErrAlreadyClaimed) ||
		errors.Is(err, ErrNotClaimed) ||
		errors.Is(err, ErrAlreadyPaid) ||
		errors.Is(err, ErrNothingToPay) ||
		errors.Is(err, ErrDuplicatePayment)
}

// IsInvalidInput returns true if the caller supplied a bad value.
func IsInvalidInput(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrCurrencyMismatch)
}

// IsIntegrityFault returns true if stored ledger fields disagree with each
// other. Callers should resync the session instead of retrying.
func IsIntegrityFault(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, context.DeadlineExceeded)
}
