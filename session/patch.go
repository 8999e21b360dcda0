package session

import (
	"fmt"
	"slices"
	"time"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

// Patch names exactly the session fields one operation touched, holding
// their post-operation values. Stores commit a patch atomically; replaying
// it with Apply on the pre-operation snapshot yields the post-operation
// session.
type Patch struct {
	Items        []ItemPatch        `json:"items,omitempty"`
	Participants []ParticipantPatch `json:"participants,omitempty"`
	Joined       []*Participant     `json:"joined,omitempty"`
	Left         []ParticipantID    `json:"left,omitempty"`
	Status       *Status            `json:"status,omitempty"`
	EndedAt      *time.Time         `json:"ended_at,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ItemPatch updates one item. Index is the item's stable position in
// Session.Items; items are never reordered or removed.
type ItemPatch struct {
	ID    id.ItemID `json:"id"`
	Index int       `json:"index"`

	// ClaimedBy replaces the claim list when non-nil.
	ClaimedBy  []ParticipantID `json:"claimed_by"`
	PaidAmount *types.Money    `json:"paid_amount,omitempty"`
	// Payment is appended to the item's payment history.
	Payment *ItemPayment `json:"payment,omitempty"`
}

// ParticipantPatch updates one participant.
type ParticipantPatch struct {
	ID ParticipantID `json:"id"`

	OwedAmount *types.Money `json:"owed_amount,omitempty"`
	// ClaimedItemIDs replaces the claim set when non-nil.
	ClaimedItemIDs []id.ItemID `json:"claimed_item_ids"`
	HasPaid        *bool       `json:"has_paid,omitempty"`
	PaidAt         *time.Time  `json:"paid_at,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p *Patch) Empty() bool {
	return p == nil || (len(p.Items) == 0 && len(p.Participants) == 0 &&
		len(p.Joined) == 0 && len(p.Left) == 0 && p.Status == nil && p.EndedAt == nil)
}

// Apply replays the patch onto s. It fails without partial effects if the
// patch references an item or participant s does not have.
func (p *Patch) Apply(s *Session) error {
	if p.Empty() {
		return nil
	}
	for _, ip := range p.Items {
		if ip.Index < 0 || ip.Index >= len(s.Items) || s.Items[ip.Index].ID != ip.ID {
			return fmt.Errorf("apply patch: item %s at %d: %w", ip.ID, ip.Index, ErrItemNotFound)
		}
	}
	for _, pp := range p.Participants {
		known := s.HasParticipant(pp.ID) || slices.ContainsFunc(p.Joined, func(j *Participant) bool { return j.ID == pp.ID })
		if !known {
			return fmt.Errorf("apply patch: participant %s: %w", pp.ID, ErrParticipantNotFound)
		}
	}

	if len(p.Joined) > 0 && s.Participants == nil {
		s.Participants = make(map[ParticipantID]*Participant, len(p.Joined))
	}
	for _, j := range p.Joined {
		s.Participants[j.ID] = j.Clone()
	}
	for _, ip := range p.Items {
		it := &s.Items[ip.Index]
		if ip.ClaimedBy != nil {
			it.ClaimedBy = slices.Clone(ip.ClaimedBy)
		}
		if ip.PaidAmount != nil {
			it.PaidAmount = *ip.PaidAmount
		}
		if ip.Payment != nil {
			it.Payments = append(it.Payments, *ip.Payment)
		}
	}
	for _, pp := range p.Participants {
		part := s.Participants[pp.ID]
		if pp.OwedAmount != nil {
			part.OwedAmount = *pp.OwedAmount
		}
		if pp.ClaimedItemIDs != nil {
			part.ClaimedItemIDs = slices.Clone(pp.ClaimedItemIDs)
		}
		if pp.HasPaid != nil {
			part.HasPaid = *pp.HasPaid
		}
		if pp.PaidAt != nil {
			t := *pp.PaidAt
			part.PaidAt = &t
		}
	}
	for _, pid := range p.Left {
		delete(s.Participants, pid)
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.EndedAt != nil {
		t := *p.EndedAt
		s.EndedAt = &t
	}
	if !p.UpdatedAt.IsZero() {
		s.UpdatedAt = p.UpdatedAt
	}
	return nil
}

// patchBuilder records which fields an operation touched and snapshots
// their final values when built.
type patchBuilder struct {
	s *Session

	itemOrder []int
	items     map[int]*itemTouch
	partOrder []ParticipantID
	parts     map[ParticipantID]*partTouch

	joined []ParticipantID
	left   []ParticipantID
	status bool
}

type itemTouch struct {
	claims  bool
	paid    bool
	payment *ItemPayment
}

type partTouch struct {
	owed   bool
	claims bool
	paid   bool
}

func newPatchBuilder(s *Session) *patchBuilder {
	return &patchBuilder{
		s:     s,
		items: make(map[int]*itemTouch),
		parts: make(map[ParticipantID]*partTouch),
	}
}

func (b *patchBuilder) item(idx int) *itemTouch {
	t, ok := b.items[idx]
	if !ok {
		t = &itemTouch{}
		b.items[idx] = t
		b.itemOrder = append(b.itemOrder, idx)
	}
	return t
}

func (b *patchBuilder) part(pid ParticipantID) *partTouch {
	t, ok := b.parts[pid]
	if !ok {
		t = &partTouch{}
		b.parts[pid] = t
		b.partOrder = append(b.partOrder, pid)
	}
	return t
}

func (b *patchBuilder) claims(idx int) { b.item(idx).claims = true }
func (b *patchBuilder) paid(idx int) { b.item(idx).paid = true }
func (b *patchBuilder) payment(idx int, pay ItemPayment) { b.item(idx).payment = &pay }
func (b *patchBuilder) owed(pid ParticipantID) { b.part(pid).owed = true }
func (b *patchBuilder) claimedItems(pid ParticipantID) { b.part(pid).claims = true }
func (b *patchBuilder) participantPaid(pid ParticipantID) { b.part(pid).paid = true }
func (b *patchBuilder) join(pid ParticipantID) { b.joined = append(b.joined, pid) }
func (b *patchBuilder) leave(pid ParticipantID) { b.left = append(b.left, pid) }
func (b *patchBuilder) statusChanged() { b.status = true }

// build snapshots the touched fields from the builder's session. A
// participant that joined in the same operation is emitted whole in Joined;
// one that left is emitted only in Left.
func (b *patchBuilder) build() *Patch {
	s := b.s
	p := &Patch{UpdatedAt: s.UpdatedAt}

	for _, idx := range b.itemOrder {
		t := b.items[idx]
		it := s.Items[idx]
		ip := ItemPatch{ID: it.ID, Index: idx, Payment: t.payment}
		if t.claims {
			ip.ClaimedBy = append([]ParticipantID{}, it.ClaimedBy...)
		}
		if t.paid {
			paid := it.PaidAmount
			ip.PaidAmount = &paid
		}
		p.Items = append(p.Items, ip)
	}

	for _, pid := range b.joined {
		if part, ok := s.Participant(pid); ok {
			p.Joined = append(p.Joined, part.Clone())
		}
	}

	for _, pid := range b.partOrder {
		if slices.Contains(b.left, pid) || slices.Contains(b.joined, pid) {
			continue
		}
		part, ok := s.Participant(pid)
		if !ok {
			continue
		}
		t := b.parts[pid]
		pp := ParticipantPatch{ID: pid}
		if t.owed {
			owed := part.OwedAmount
			pp.OwedAmount = &owed
		}
		if t.claims {
			pp.ClaimedItemIDs = append([]id.ItemID{}, part.ClaimedItemIDs...)
		}
		if t.paid {
			hasPaid := part.HasPaid
			pp.HasPaid = &hasPaid
			if part.PaidAt != nil {
				at := *part.PaidAt
				pp.PaidAt = &at
			}
		}
		p.Participants = append(p.Participants, pp)
	}

	p.Left = slices.Clone(b.left)

	if b.status {
		st := s.Status
		p.Status = &st
		if s.EndedAt != nil {
			at := *s.EndedAt
			p.EndedAt = &at
		}
	}
	return p
}
