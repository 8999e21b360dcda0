package session

import (
	"slices"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

// Verify checks every stored-field invariant of the session and returns a
// MultiError of *IntegrityError values, or nil when the session is
// consistent.
func Verify(s *Session) error {
	var errs MultiError

	if !s.Status.Valid() {
		errs.Add(integrity(s, id.Nil, "", InvariantStatus, "unknown status %q", s.Status))
	}
	if s.Status == StatusActive && s.EndedAt != nil {
		errs.Add(integrity(s, id.Nil, "", InvariantStatus, "active session has ended_at"))
	}

	expected := make(map[ParticipantID]int64, len(s.Participants))
	claimedBy := make(map[ParticipantID][]id.ItemID, len(s.Participants))

	for idx, it := range s.Items {
		if err := checkItemCurrency(s, idx); err != nil {
			errs.Add(err)
			continue
		}
		if it.PaidAmount.IsNegative() || it.PaidAmount.Amount > it.Price.Amount {
			errs.Add(integrity(s, it.ID, "", InvariantPaidBounds,
				"paid %s outside [0, %s]", it.PaidAmount, it.Price))
		}
		shares := it.Shares()
		for i, c := range it.ClaimedBy {
			if slices.Contains(it.ClaimedBy[:i], c) {
				errs.Add(integrity(s, it.ID, c, InvariantDuplicateClaim, "participant listed twice"))
				continue
			}
			if !s.HasParticipant(c) {
				errs.Add(integrity(s, it.ID, c, InvariantClaimantRegistered, "claimant is not a participant"))
				continue
			}
			expected[c] += shares[i].Amount
			claimedBy[c] = append(claimedBy[c], it.ID)
		}
	}

	for _, pid := range s.MemberIDs() {
		p := s.Participants[pid]
		if p == nil {
			errs.Add(integrity(s, id.Nil, pid, InvariantClaimantRegistered, "participant entry is empty"))
			continue
		}
		if p.OwedAmount.Currency != s.Currency {
			errs.Add(integrity(s, id.Nil, pid, InvariantCurrency,
				"owed amount is in %s, session in %s", p.OwedAmount.Currency, s.Currency))
			continue
		}
		for i, itemID := range p.ClaimedItemIDs {
			if slices.Contains(p.ClaimedItemIDs[:i], itemID) {
				errs.Add(integrity(s, itemID, pid, InvariantDuplicateClaim, "item listed twice"))
				continue
			}
			if !slices.Contains(claimedBy[pid], itemID) {
				errs.Add(integrity(s, itemID, pid, InvariantClaimMembership,
					"claimed_item_ids has item, claimed_by lacks participant"))
			}
		}
		for _, itemID := range claimedBy[pid] {
			if !slices.Contains(p.ClaimedItemIDs, itemID) {
				errs.Add(integrity(s, itemID, pid, InvariantClaimMembership,
					"claimed_by has participant, claimed_item_ids lacks item"))
			}
		}
		if p.OwedAmount.Amount != expected[pid] {
			errs.Add(integrity(s, id.Nil, pid, InvariantOwedConsistency,
				"owed %s, shares sum to %s", p.OwedAmount, types.New(expected[pid], s.Currency)))
		}
	}

	return errs.ErrorOrNil()
}

// Recompute rebuilds every participant's ClaimedItemIDs and OwedAmount from
// the items' claim lists, treating the items as the source of truth.
// Claimants that are not participants and repeated claimants are dropped.
// The returned patch touches only fields whose value changed.
func Recompute(s *Session) *Patch {
	b := newPatchBuilder(s)

	for idx := range s.Items {
		it := &s.Items[idx]
		kept := make([]ParticipantID, 0, len(it.ClaimedBy))
		for _, c := range it.ClaimedBy {
			if s.HasParticipant(c) && !slices.Contains(kept, c) {
				kept = append(kept, c)
			}
		}
		if !slices.Equal(kept, it.ClaimedBy) {
			it.ClaimedBy = kept
			b.claims(idx)
		}
	}

	owed := make(map[ParticipantID]int64, len(s.Participants))
	claims := make(map[ParticipantID][]id.ItemID, len(s.Participants))
	for _, it := range s.Items {
		shares := it.Shares()
		for i, c := range it.ClaimedBy {
			owed[c] += shares[i].Amount
			claims[c] = append(claims[c], it.ID)
		}
	}

	for _, pid := range s.MemberIDs() {
		p := s.Participants[pid]
		if p == nil {
			continue
		}
		want := types.New(owed[pid], s.Currency)
		if !p.OwedAmount.Equal(want) {
			p.OwedAmount = want
			b.owed(pid)
		}
		wantClaims := claims[pid]
		if wantClaims == nil {
			wantClaims = []id.ItemID{}
		}
		if !sameItems(p.ClaimedItemIDs, wantClaims) {
			p.ClaimedItemIDs = wantClaims
			b.claimedItems(pid)
		}
	}

	return b.build()
}

// sameItems reports whether a and b hold the same ids, ignoring order.
func sameItems(a, b []id.ItemID) bool {
	if len(a) != len(b) {
		return false
	}
	for _, x := range a {
		if !slices.Contains(b, x) {
			return false
		}
	}
	for _, x := range b {
		if !slices.Contains(a, x) {
			return false
		}
	}
	return true
}
