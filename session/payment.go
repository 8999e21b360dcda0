package session

import (
	"fmt"
	"time"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

// PaymentReceipt describes the outcome of an item-level payment.
type PaymentReceipt struct {
	SessionID id.SessionID `json:"session_id"`
	ItemID    id.ItemID    `json:"item_id"`
	Payment   ItemPayment  `json:"payment"`
	Requested types.Money  `json:"requested"`
	Applied   types.Money  `json:"applied"`
	Remaining types.Money  `json:"remaining"`
	FullyPaid bool         `json:"fully_paid"`
}

// Clamped reports whether part of the requested amount was not applied.
func (r *PaymentReceipt) Clamped() bool {
	return r.Applied.Amount < r.Requested.Amount
}

// RecordItemPayment adds amount toward the item's price on behalf of the
// group, clamping PaidAmount at Price. A non-empty reference makes the call
// idempotent: a reference already recorded on the item is rejected with
// ErrDuplicatePayment.
//
// Payments are accepted on active and completed sessions.
func RecordItemPayment(s *Session, itemID id.ItemID, amount types.Money, reference string, at time.Time) (*Patch, *PaymentReceipt, error) {
	if s.Status == StatusCancelled {
		return nil, nil, fmt.Errorf("pay item %s: session %s is %s: %w", itemID, s.ID, s.Status, ErrSessionNotActive)
	}
	if !amount.IsPositive() {
		return nil, nil, fmt.Errorf("pay item %s: amount %s: %w", itemID, amount, ErrInvalidAmount)
	}
	if amount.Currency != s.Currency {
		return nil, nil, fmt.Errorf("pay item %s: amount in %s, session in %s: %w", itemID, amount.Currency, s.Currency, ErrCurrencyMismatch)
	}
	idx, err := lookupItem(s, itemID)
	if err != nil {
		return nil, nil, err
	}
	item := &s.Items[idx]
	if item.hasPaymentRef(reference) {
		return nil, nil, fmt.Errorf("pay item %s: reference %q: %w", itemID, reference, ErrDuplicatePayment)
	}
	if item.PaidAmount.IsNegative() || item.PaidAmount.GreaterThan(item.Price) {
		return nil, nil, integrity(s, itemID, "", InvariantPaidBounds,
			"paid %s outside [0, %s]", item.PaidAmount, item.Price)
	}

	applied := amount.Min(item.Outstanding())
	pay := ItemPayment{
		ID:         id.NewPaymentID(),
		Amount:     applied,
		Requested:  amount,
		Reference:  reference,
		RecordedAt: at.UTC(),
	}
	item.PaidAmount = item.PaidAmount.Add(applied)
	item.Payments = append(item.Payments, pay)

	b := newPatchBuilder(s)
	b.paid(idx)
	b.payment(idx, pay)

	return b.build(), &PaymentReceipt{
		SessionID: s.ID,
		ItemID:    itemID,
		Payment:   pay,
		Requested: amount,
		Applied:   applied,
		Remaining: item.Outstanding(),
		FullyPaid: item.FullyPaid(),
	}, nil
}

// MarkParticipantPaid flags pid as settled. It does not change OwedAmount.
// A participant with no claimed items cannot be marked paid, and marking
// twice is rejected.
func MarkParticipantPaid(s *Session, pid ParticipantID, at time.Time) (*Patch, error) {
	if s.Status == StatusCancelled {
		return nil, fmt.Errorf("mark %s paid: session %s is %s: %w", pid, s.ID, s.Status, ErrSessionNotActive)
	}
	p, err := lookupParticipant(s, pid)
	if err != nil {
		return nil, err
	}
	if p.HasPaid {
		return nil, fmt.Errorf("mark %s paid: %w", pid, ErrAlreadyPaid)
	}
	if len(p.ClaimedItemIDs) == 0 {
		return nil, fmt.Errorf("mark %s paid: %w", pid, ErrNothingToPay)
	}

	paidAt := at.UTC()
	p.HasPaid = true
	p.PaidAt = &paidAt

	b := newPatchBuilder(s)
	b.participantPaid(pid)
	return b.build(), nil
}
