package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

// ItemInput is an item as it enters a session, before it gets an id.
type ItemInput struct {
	Name     string      `json:"name"`
	Price    types.Money `json:"price"`
	Quantity int         `json:"quantity"`
}

// Params describes a new session.
type Params struct {
	ID           id.SessionID
	Title        string
	Currency     string
	CreatorID    ParticipantID
	CreatorName  string
	CreatorEmail string
	Items        []ItemInput
	CreatedAt    time.Time
}

// DefaultTitle is the title given to a session created without one.
func DefaultTitle(at time.Time) string {
	return "Bill Session " + at.Format("1/2/2006")
}

// New builds an active session whose only participant is the creator, with
// zero claims. Items are validated and given fresh ids.
func New(p Params) (*Session, error) {
	currency := strings.ToLower(strings.TrimSpace(p.Currency))
	if currency == "" {
		return nil, ValidationError{Field: "currency", Message: "must not be empty"}
	}
	if p.CreatorID == "" {
		return nil, ValidationError{Field: "created_by", Message: "must not be empty"}
	}

	items := make([]Item, 0, len(p.Items))
	for i, in := range p.Items {
		name := strings.TrimSpace(in.Name)
		if name == "" {
			return nil, ValidationError{Field: fmt.Sprintf("items[%d].name", i), Message: "must not be empty"}
		}
		if in.Price.Currency != currency {
			return nil, fmt.Errorf("items[%d]: price in %s, session in %s: %w", i, in.Price.Currency, currency, ErrCurrencyMismatch)
		}
		if in.Price.IsNegative() {
			return nil, fmt.Errorf("items[%d]: price %s: %w", i, in.Price, ErrInvalidAmount)
		}
		qty := in.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, Item{
			ID:         id.NewItemID(),
			Name:       name,
			Price:      in.Price,
			Quantity:   qty,
			ClaimedBy:  []ParticipantID{},
			PaidAmount: types.Zero(currency),
		})
	}

	sid := p.ID
	if sid.IsNil() {
		sid = id.NewSessionID()
	}
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = DefaultTitle(p.CreatedAt)
	}
	name := p.CreatorName
	if name == "" {
		name = "Session Creator"
	}

	return &Session{
		Entity:    types.NewEntity(p.CreatedAt),
		ID:        sid,
		CreatedBy: p.CreatorID,
		Title:     title,
		Currency:  currency,
		Items:     items,
		Participants: map[ParticipantID]*Participant{
			p.CreatorID: NewParticipant(p.CreatorID, name, p.CreatorEmail, currency, p.CreatedAt),
		},
		Status:  StatusActive,
		Version: 1,
	}, nil
}
