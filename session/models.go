// Package session defines the bill-splitting session aggregate and the pure
// ledger operations that mutate it.
//
// Every operation in this package takes a caller-owned *Session, checks all
// of its preconditions first, mutates the session in place only on success
// and returns a *Patch naming exactly the fields it touched. Nothing here
// performs I/O or holds process-wide state.
package session

import (
	"maps"
	"slices"
	"time"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

// ParticipantID is the external user id of a session member.
type ParticipantID string

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further claim or membership changes are
// accepted in this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Item is one receipt line. Price is the authoritative line total used for
// splitting; Quantity is informational.
type Item struct {
	ID         id.ItemID       `json:"id"`
	Name       string          `json:"name"`
	Price      types.Money     `json:"price"`
	Quantity   int             `json:"quantity"`
	ClaimedBy  []ParticipantID `json:"claimed_by"`
	PaidAmount types.Money     `json:"paid_amount"`
	Payments   []ItemPayment   `json:"payments,omitempty"`
}

// ItemPayment records one item-level payment. Amount is what was applied
// after clamping to the unpaid remainder; Requested is what was submitted.
type ItemPayment struct {
	ID         id.PaymentID `json:"id"`
	Amount     types.Money  `json:"amount"`
	Requested  types.Money  `json:"requested"`
	Reference  string       `json:"reference,omitempty"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// Participant is a session member and their running share of the bill.
type Participant struct {
	ID             ParticipantID `json:"id"`
	Name           string        `json:"name"`
	Email          string        `json:"email,omitempty"`
	ClaimedItemIDs []id.ItemID   `json:"claimed_item_ids"`
	OwedAmount     types.Money   `json:"owed_amount"`
	HasPaid        bool          `json:"has_paid"`
	PaidAt         *time.Time    `json:"paid_at,omitempty"`
	JoinedAt       time.Time     `json:"joined_at"`
}

// Session is the aggregate root. Items and participants are only ever
// addressed through their session.
type Session struct {
	types.Entity
	ID           id.SessionID                   `json:"id"`
	CreatedBy    ParticipantID                  `json:"created_by"`
	Title        string                         `json:"title"`
	Currency     string                         `json:"currency"`
	Items        []Item                         `json:"items"`
	Participants map[ParticipantID]*Participant `json:"participants"`
	Status       Status                         `json:"status"`
	EndedAt      *time.Time                     `json:"ended_at,omitempty"`

	// Version is the optimistic concurrency sequence number. It starts at 1
	// and is incremented by the store on every committed write.
	Version int64 `json:"version"`
}

// NewParticipant returns a zero-claim participant in the given currency.
func NewParticipant(pid ParticipantID, name, email, currency string, joinedAt time.Time) *Participant {
	return &Participant{
		ID:             pid,
		Name:           name,
		Email:          email,
		ClaimedItemIDs: []id.ItemID{},
		OwedAmount:     types.Zero(currency),
		JoinedAt:       joinedAt.UTC(),
	}
}

// Item returns the item with the given id.
func (s *Session) Item(itemID id.ItemID) (*Item, bool) {
	i := s.itemIndex(itemID)
	if i < 0 {
		return nil, false
	}
	return &s.Items[i], true
}

// Participant returns the participant with the given id.
func (s *Session) Participant(pid ParticipantID) (*Participant, bool) {
	p, ok := s.Participants[pid]
	return p, ok && p != nil
}

// HasParticipant reports whether pid is a member of the session.
func (s *Session) HasParticipant(pid ParticipantID) bool {
	_, ok := s.Participant(pid)
	return ok
}

// MemberIDs returns the participant ids sorted lexically.
func (s *Session) MemberIDs() []ParticipantID {
	return slices.Sorted(maps.Keys(s.Participants))
}

func (s *Session) itemIndex(itemID id.ItemID) int {
	return slices.IndexFunc(s.Items, func(it Item) bool { return it.ID == itemID })
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.Items != nil {
		c.Items = make([]Item, len(s.Items))
		for i := range s.Items {
			c.Items[i] = s.Items[i].Clone()
		}
	}
	if s.Participants != nil {
		c.Participants = make(map[ParticipantID]*Participant, len(s.Participants))
		for k, p := range s.Participants {
			c.Participants[k] = p.Clone()
		}
	}
	return &c
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	c := it
	c.ClaimedBy = slices.Clone(it.ClaimedBy)
	c.Payments = slices.Clone(it.Payments)
	return c
}

// Clone returns a deep copy of the participant.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	c := *p
	c.ClaimedItemIDs = slices.Clone(p.ClaimedItemIDs)
	if p.PaidAt != nil {
		t := *p.PaidAt
		c.PaidAt = &t
	}
	return &c
}

// UnitPrice is Price divided by Quantity, for display only.
func (it Item) UnitPrice() types.Money {
	if it.Quantity <= 1 {
		return it.Price
	}
	return it.Price.Divide(int64(it.Quantity))
}

// FullyPaid reports whether the item's paid amount covers its price.
func (it Item) FullyPaid() bool {
	return it.PaidAmount.Amount >= it.Price.Amount
}

// Outstanding is the unpaid remainder of the item, never negative.
func (it Item) Outstanding() types.Money {
	return types.New(max(it.Price.Amount-it.PaidAmount.Amount, 0), it.Price.Currency)
}

// Shares returns the per-claimant shares aligned with ClaimedBy. Shares are
// allocated by largest remainder in claim order, so they always sum to the
// item price.
func (it Item) Shares() []types.Money {
	return it.Price.Allocate(len(it.ClaimedBy))
}

// ShareOf returns pid's current share of the item.
func (it Item) ShareOf(pid ParticipantID) (types.Money, bool) {
	i := slices.Index(it.ClaimedBy, pid)
	if i < 0 {
		return types.Zero(it.Price.Currency), false
	}
	return it.Shares()[i], true
}

// IsClaimedBy reports whether pid currently claims the item.
func (it Item) IsClaimedBy(pid ParticipantID) bool {
	return slices.Contains(it.ClaimedBy, pid)
}

// hasPaymentRef reports whether a payment with the given reference exists.
func (it Item) hasPaymentRef(ref string) bool {
	return ref != "" && slices.ContainsFunc(it.Payments, func(p ItemPayment) bool {
		return p.Reference == ref
	})
}
