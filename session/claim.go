package session

import (
	"fmt"
	"slices"
	"time"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

// ClaimItem adds pid to the item's claimants and rebalances every
// claimant's owed amount: each one gives back its share under the old
// claimant count and takes its share under the new one.
func ClaimItem(s *Session, itemID id.ItemID, pid ParticipantID) (*Patch, error) {
	if err := requireActive(s); err != nil {
		return nil, err
	}
	idx, err := lookupItem(s, itemID)
	if err != nil {
		return nil, err
	}
	p, err := lookupParticipant(s, pid)
	if err != nil {
		return nil, err
	}
	item := &s.Items[idx]

	onItem := item.IsClaimedBy(pid)
	onParticipant := slices.Contains(p.ClaimedItemIDs, itemID)
	switch {
	case onItem && onParticipant:
		return nil, fmt.Errorf("claim item %s for %s: %w", itemID, pid, ErrAlreadyClaimed)
	case onItem != onParticipant:
		return nil, integrity(s, itemID, pid, InvariantClaimMembership,
			"claimed_by has participant: %t, claimed_item_ids has item: %t", onItem, onParticipant)
	}
	if err := checkClaimants(s, idx, item.ClaimedBy); err != nil {
		return nil, err
	}

	oldShares := item.Shares()
	claimants := append(slices.Clone(item.ClaimedBy), pid)
	newShares := item.Price.Allocate(len(claimants))

	b := newPatchBuilder(s)
	for i, c := range claimants {
		part := s.Participants[c]
		old := types.Zero(item.Price.Currency)
		if i < len(oldShares) {
			old = oldShares[i]
		}
		part.OwedAmount = part.OwedAmount.Subtract(old).Add(newShares[i])
		b.owed(c)
	}
	item.ClaimedBy = claimants
	p.ClaimedItemIDs = append(p.ClaimedItemIDs, itemID)
	b.claims(idx)
	b.claimedItems(pid)

	return b.build(), nil
}

// UnclaimItem removes pid from the item's claimants. The leaving claimant
// gives back its pre-removal share; each remaining claimant gives back its
// old share and takes its share under the smaller claimant count.
func UnclaimItem(s *Session, itemID id.ItemID, pid ParticipantID) (*Patch, error) {
	if err := requireActive(s); err != nil {
		return nil, err
	}
	idx, err := lookupItem(s, itemID)
	if err != nil {
		return nil, err
	}
	if _, err := lookupParticipant(s, pid); err != nil {
		return nil, err
	}

	b := newPatchBuilder(s)
	if err := unclaim(s, idx, pid, b); err != nil {
		return nil, err
	}
	return b.build(), nil
}

// unclaim validates and applies a single claim removal, recording touched
// fields on b. s is left untouched on error.
func unclaim(s *Session, idx int, pid ParticipantID, b *patchBuilder) error {
	item := &s.Items[idx]
	p := s.Participants[pid]

	pos := slices.Index(item.ClaimedBy, pid)
	onParticipant := slices.Contains(p.ClaimedItemIDs, item.ID)
	switch {
	case pos < 0 && !onParticipant:
		return fmt.Errorf("unclaim item %s for %s: %w", item.ID, pid, ErrNotClaimed)
	case pos < 0 || !onParticipant:
		return integrity(s, item.ID, pid, InvariantClaimMembership,
			"claimed_by has participant: %t, claimed_item_ids has item: %t", pos >= 0, onParticipant)
	}
	if err := checkItemCurrency(s, idx); err != nil {
		return err
	}
	if err := checkClaimants(s, idx, item.ClaimedBy); err != nil {
		return err
	}

	oldShares := item.Shares()
	if p.OwedAmount.Amount < oldShares[pos].Amount {
		return integrity(s, item.ID, pid, InvariantOwedConsistency,
			"owed %s is below share %s", p.OwedAmount, oldShares[pos])
	}

	remaining := slices.Delete(slices.Clone(item.ClaimedBy), pos, pos+1)
	newShares := item.Price.Allocate(len(remaining))

	p.OwedAmount = p.OwedAmount.Subtract(oldShares[pos])
	p.ClaimedItemIDs = slices.DeleteFunc(slices.Clone(p.ClaimedItemIDs), func(x id.ItemID) bool {
		return x == item.ID
	})
	b.owed(pid)
	b.claimedItems(pid)

	for j, c := range remaining {
		oldIdx := j
		if j >= pos {
			oldIdx = j + 1
		}
		part := s.Participants[c]
		part.OwedAmount = part.OwedAmount.Subtract(oldShares[oldIdx]).Add(newShares[j])
		b.owed(c)
	}
	item.ClaimedBy = remaining
	b.claims(idx)
	return nil
}

// Join adds a zero-claim participant. It reports false without error when
// pid is already a member.
func Join(s *Session, pid ParticipantID, name, email string, at time.Time) (*Patch, bool, error) {
	if err := requireActive(s); err != nil {
		return nil, false, err
	}
	if pid == "" {
		return nil, false, ValidationError{Field: "participant_id", Message: "must not be empty"}
	}
	if s.HasParticipant(pid) {
		return &Patch{}, false, nil
	}
	if s.Participants == nil {
		s.Participants = make(map[ParticipantID]*Participant)
	}
	s.Participants[pid] = NewParticipant(pid, name, email, s.Currency, at)

	b := newPatchBuilder(s)
	b.join(pid)
	return b.build(), true, nil
}

// Leave removes pid from the session after unclaiming each of its items
// with the same redistribution as UnclaimItem.
func Leave(s *Session, pid ParticipantID) (*Patch, error) {
	if !s.HasParticipant(pid) {
		return nil, fmt.Errorf("leave session %s as %s: %w", s.ID, pid, ErrNotParticipant)
	}
	if err := requireActive(s); err != nil {
		return nil, err
	}

	// Several unclaims run in sequence; work on a copy so a failure halfway
	// leaves s untouched.
	work := s.Clone()
	b := newPatchBuilder(work)
	for idx := range work.Items {
		if !work.Items[idx].IsClaimedBy(pid) && !slices.Contains(work.Participants[pid].ClaimedItemIDs, work.Items[idx].ID) {
			continue
		}
		if err := unclaim(work, idx, pid, b); err != nil {
			return nil, err
		}
	}
	if left := work.Participants[pid]; len(left.ClaimedItemIDs) > 0 {
		return nil, integrity(s, left.ClaimedItemIDs[0], pid, InvariantClaimMembership,
			"claimed item not present in session")
	}
	delete(work.Participants, pid)
	b.leave(pid)

	patch := b.build()
	*s = *work
	return patch, nil
}

// End moves an active session to status. It reports false without error if
// the session is already terminal.
func End(s *Session, status Status, at time.Time) (*Patch, bool, error) {
	if !status.Terminal() {
		return nil, false, ValidationError{Field: "status", Message: fmt.Sprintf("%q is not a terminal status", status)}
	}
	if s.Status.Terminal() {
		return &Patch{}, false, nil
	}
	ended := at.UTC()
	s.Status = status
	s.EndedAt = &ended

	b := newPatchBuilder(s)
	b.statusChanged()
	return b.build(), true, nil
}

func requireActive(s *Session) error {
	if s.Status != StatusActive {
		return fmt.Errorf("session %s is %s: %w", s.ID, s.Status, ErrSessionNotActive)
	}
	return nil
}

func lookupItem(s *Session, itemID id.ItemID) (int, error) {
	idx := s.itemIndex(itemID)
	if idx < 0 {
		return -1, fmt.Errorf("item %s in session %s: %w", itemID, s.ID, ErrItemNotFound)
	}
	if err := checkItemCurrency(s, idx); err != nil {
		return -1, err
	}
	return idx, nil
}

func checkItemCurrency(s *Session, idx int) error {
	it := s.Items[idx]
	if it.Price.Currency != s.Currency || it.PaidAmount.Currency != s.Currency {
		return integrity(s, it.ID, "", InvariantCurrency,
			"item is in %s, session in %s", it.Price.Currency, s.Currency)
	}
	return nil
}

func lookupParticipant(s *Session, pid ParticipantID) (*Participant, error) {
	p, ok := s.Participant(pid)
	if !ok {
		return nil, fmt.Errorf("participant %s in session %s: %w", pid, s.ID, ErrParticipantNotFound)
	}
	if p.OwedAmount.Currency != s.Currency {
		return nil, integrity(s, id.Nil, pid, InvariantCurrency,
			"owed amount is in %s, session in %s", p.OwedAmount.Currency, s.Currency)
	}
	return p, nil
}

// checkClaimants ensures every current claimant of the item is a registered
// participant in the session currency before any arithmetic touches them.
func checkClaimants(s *Session, idx int, claimants []ParticipantID) error {
	itemID := s.Items[idx].ID
	for i, c := range claimants {
		p, ok := s.Participant(c)
		if !ok {
			return integrity(s, itemID, c, InvariantClaimantRegistered, "claimant is not a participant")
		}
		if p.OwedAmount.Currency != s.Currency {
			return integrity(s, itemID, c, InvariantCurrency,
				"owed amount is in %s, session in %s", p.OwedAmount.Currency, s.Currency)
		}
		if slices.Contains(claimants[:i], c) {
			return integrity(s, itemID, c, InvariantDuplicateClaim, "participant listed twice")
		}
	}
	return nil
}
