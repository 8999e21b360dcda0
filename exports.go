package splitledger

import (
	"github.com/xraph/splitledger/session"
	"github.com/xraph/splitledger/types"
)

// Re-export common types so callers rarely need the types and session
// packages directly.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Session is re-exported from session package.
type Session = session.Session

// ParticipantID is re-exported from session package.
type ParticipantID = session.ParticipantID

// ItemInput is re-exported from session package.
type ItemInput = session.ItemInput

// Totals is re-exported from session package.
type Totals = session.Totals

// PaymentReceipt is re-exported from session package.
type PaymentReceipt = session.PaymentReceipt

// Session statuses.
const (
	StatusActive    = session.StatusActive
	StatusCompleted = session.StatusCompleted
	StatusCancelled = session.StatusCancelled
)

// Re-export Money constructors
var (
	USD   = types.USD
	EUR   = types.EUR
	GBP   = types.GBP
	JPY   = types.JPY
	Zero  = types.Zero
	Sum   = types.Sum
	Price = types.New
)
