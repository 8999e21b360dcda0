package session

import (
	"cmp"
	"slices"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/types"
)

// Totals are the derived session aggregates. They are computed on demand
// and never stored.
type Totals struct {
	Total            types.Money `json:"total"`
	Paid             types.Money `json:"paid"`
	Remaining        types.Money `json:"remaining"`
	Owed             types.Money `json:"owed"`
	Unclaimed        types.Money `json:"unclaimed"`
	ProgressPercent  int         `json:"progress_percent"`
	ItemsPaid        int         `json:"items_paid"`
	ItemsTotal       int         `json:"items_total"`
	ParticipantsPaid int         `json:"participants_paid"`
}

// Totals computes the session aggregates. ProgressPercent is
// round-half-up(100*paid/total) clamped to [0,100] and is 100 for an empty
// bill.
func (s *Session) Totals() Totals {
	t := Totals{
		Total:      types.Zero(s.Currency),
		Paid:       types.Zero(s.Currency),
		Owed:       types.Zero(s.Currency),
		Unclaimed:  types.Zero(s.Currency),
		ItemsTotal: len(s.Items),
	}
	for _, it := range s.Items {
		t.Total.Amount += it.Price.Amount
		t.Paid.Amount += it.PaidAmount.Amount
		if it.FullyPaid() {
			t.ItemsPaid++
		}
		if len(it.ClaimedBy) == 0 {
			t.Unclaimed.Amount += it.Price.Amount
		}
	}
	for _, p := range s.Participants {
		t.Owed.Amount += p.OwedAmount.Amount
		if p.HasPaid {
			t.ParticipantsPaid++
		}
	}
	t.Remaining = types.New(max(t.Total.Amount-t.Paid.Amount, 0), s.Currency)
	t.ProgressPercent = t.Paid.PercentOf(t.Total)
	return t
}

// ParticipantSummary is the per-participant display row. Owed is always
// the participant's OwedAmount, whether or not they have paid.
type ParticipantSummary struct {
	ID        ParticipantID `json:"id"`
	Name      string        `json:"name"`
	Email     string        `json:"email,omitempty"`
	Owed      types.Money   `json:"owed"`
	HasPaid   bool          `json:"has_paid"`
	ItemIDs   []id.ItemID   `json:"item_ids"`
	IsCreator bool          `json:"is_creator"`
}

// Summaries lists every participant ordered by join time, creator first.
func (s *Session) Summaries() []ParticipantSummary {
	out := make([]ParticipantSummary, 0, len(s.Participants))
	for _, p := range s.Participants {
		out = append(out, ParticipantSummary{
			ID:        p.ID,
			Name:      p.Name,
			Email:     p.Email,
			Owed:      p.OwedAmount,
			HasPaid:   p.HasPaid,
			ItemIDs:   slices.Clone(p.ClaimedItemIDs),
			IsCreator: p.ID == s.CreatedBy,
		})
	}
	slices.SortFunc(out, func(a, b ParticipantSummary) int {
		if a.IsCreator != b.IsCreator {
			if a.IsCreator {
				return -1
			}
			return 1
		}
		pa, pb := s.Participants[a.ID], s.Participants[b.ID]
		if c := pa.JoinedAt.Compare(pb.JoinedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
