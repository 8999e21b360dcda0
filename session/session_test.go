package session_test

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/session"
	"github.com/xraph/splitledger/types"
)

var t0 = time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)

func newSession(t *testing.T, prices ...int64) *session.Session {
	t.Helper()
	items := make([]session.ItemInput, len(prices))
	for i, p := range prices {
		items[i] = session.ItemInput{Name: "item", Price: types.USD(p), Quantity: 1}
	}
	s, err := session.New(session.Params{
		Currency:    "usd",
		CreatorID:   "alice",
		CreatorName: "Alice",
		Items:       items,
		CreatedAt:   t0,
	})
	require.NoError(t, err)
	return s
}

func join(t *testing.T, s *session.Session, pids ...session.ParticipantID) {
	t.Helper()
	for _, pid := range pids {
		_, joined, err := session.Join(s, pid, string(pid), "", t0)
		require.NoError(t, err)
		require.True(t, joined)
	}
}

func owed(s *session.Session, pid session.ParticipantID) int64 {
	return s.Participants[pid].OwedAmount.Amount
}

// apply runs op against s and checks that replaying the returned patch on
// the pre-op snapshot reproduces s, and that every invariant holds.
func apply(t *testing.T, s *session.Session, op func(*session.Session) (*session.Patch, error)) error {
	t.Helper()
	before := s.Clone()
	p, err := op(s)
	if err != nil {
		assert.Equal(t, before, s, "failed operation must not mutate the session")
		return err
	}
	replayed := before.Clone()
	require.NoError(t, p.Apply(replayed))
	assert.Equal(t, s, replayed, "patch replay diverged")
	require.NoError(t, session.Verify(s))
	return nil
}

func claim(itemID id.ItemID, pid session.ParticipantID) func(*session.Session) (*session.Patch, error) {
	return func(s *session.Session) (*session.Patch, error) { return session.ClaimItem(s, itemID, pid) }
}

func unclaim(itemID id.ItemID, pid session.ParticipantID) func(*session.Session) (*session.Patch, error) {
	return func(s *session.Session) (*session.Patch, error) { return session.UnclaimItem(s, itemID, pid) }
}

func TestNew(t *testing.T) {
	s := newSession(t, 1599, 1250)

	assert.Equal(t, session.StatusActive, s.Status)
	assert.Equal(t, int64(1), s.Version)
	assert.Equal(t, "Bill Session 3/14/2026", s.Title)
	assert.Equal(t, id.PrefixSession, s.ID.Prefix())
	require.Len(t, s.Participants, 1)

	creator := s.Participants["alice"]
	assert.True(t, creator.OwedAmount.IsZero())
	assert.Empty(t, creator.ClaimedItemIDs)
	for _, it := range s.Items {
		assert.Equal(t, id.PrefixItem, it.ID.Prefix())
		assert.Empty(t, it.ClaimedBy)
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name  string
		items []session.ItemInput
		check func(error) bool
	}{
		{"blank name", []session.ItemInput{{Name: " ", Price: types.USD(100)}}, func(err error) bool {
			var ve session.ValidationError
			return errors.As(err, &ve)
		}},
		{"negative price", []session.ItemInput{{Name: "x", Price: types.USD(-1)}}, func(err error) bool {
			return errors.Is(err, session.ErrInvalidAmount)
		}},
		{"other currency", []session.ItemInput{{Name: "x", Price: types.EUR(100)}}, func(err error) bool {
			return errors.Is(err, session.ErrCurrencyMismatch)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := session.New(session.Params{Currency: "USD", CreatorID: "alice", Items: tt.items, CreatedAt: t0})
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}
}

func TestClaimUnclaimScenario(t *testing.T) {
	s := newSession(t, 3000)
	join(t, s, "bob")
	item := s.Items[0].ID

	require.NoError(t, apply(t, s, claim(item, "alice")))
	assert.Equal(t, int64(3000), owed(s, "alice"))

	require.NoError(t, apply(t, s, claim(item, "bob")))
	assert.Equal(t, int64(1500), owed(s, "alice"))
	assert.Equal(t, int64(1500), owed(s, "bob"))

	require.NoError(t, apply(t, s, unclaim(item, "alice")))
	assert.Equal(t, int64(3000), owed(s, "bob"))
	assert.Equal(t, int64(0), owed(s, "alice"))
	assert.Empty(t, s.Participants["alice"].ClaimedItemIDs)
	assert.Equal(t, []session.ParticipantID{"bob"}, s.Items[0].ClaimedBy)
}

func TestNoSharingScenario(t *testing.T) {
	s := newSession(t, 1599, 1250)
	join(t, s, "bob")

	require.NoError(t, apply(t, s, claim(s.Items[0].ID, "alice")))
	require.NoError(t, apply(t, s, claim(s.Items[1].ID, "bob")))

	totals := s.Totals()
	assert.Equal(t, types.USD(2849), totals.Total)
	assert.Equal(t, int64(1599), owed(s, "alice"))
	assert.Equal(t, int64(1250), owed(s, "bob"))
	assert.Equal(t, types.USD(2849), totals.Owed)
	assert.True(t, totals.Unclaimed.IsZero())
}

func TestLargestRemainderSplit(t *testing.T) {
	s := newSession(t, 1000)
	join(t, s, "bob", "carol")
	item := s.Items[0].ID

	for _, pid := range []session.ParticipantID{"alice", "bob", "carol"} {
		require.NoError(t, apply(t, s, claim(item, pid)))
	}
	assert.Equal(t, int64(334), owed(s, "alice"))
	assert.Equal(t, int64(333), owed(s, "bob"))
	assert.Equal(t, int64(333), owed(s, "carol"))

	// Removing the first claimant shifts the extra cent; the survivors split
	// evenly again.
	require.NoError(t, apply(t, s, unclaim(item, "alice")))
	assert.Equal(t, int64(500), owed(s, "bob"))
	assert.Equal(t, int64(500), owed(s, "carol"))
	assert.Equal(t, int64(0), owed(s, "alice"))
}

func TestReclaimRejected(t *testing.T) {
	s := newSession(t, 3000)
	item := s.Items[0].ID
	require.NoError(t, apply(t, s, claim(item, "alice")))

	err := apply(t, s, claim(item, "alice"))
	require.ErrorIs(t, err, session.ErrAlreadyClaimed)
	assert.Equal(t, int64(3000), owed(s, "alice"))
}

func TestClaimPreconditions(t *testing.T) {
	s := newSession(t, 3000)

	err := apply(t, s, claim(id.NewItemID(), "alice"))
	assert.ErrorIs(t, err, session.ErrItemNotFound)

	err = apply(t, s, claim(s.Items[0].ID, "mallory"))
	assert.ErrorIs(t, err, session.ErrParticipantNotFound)

	err = apply(t, s, unclaim(s.Items[0].ID, "alice"))
	assert.ErrorIs(t, err, session.ErrNotClaimed)
}

func TestLeaveCleansUp(t *testing.T) {
	s := newSession(t, 3000, 900)
	join(t, s, "bob", "carol")
	a, b := s.Items[0].ID, s.Items[1].ID

	require.NoError(t, apply(t, s, claim(a, "alice")))
	require.NoError(t, apply(t, s, claim(a, "bob")))
	require.NoError(t, apply(t, s, claim(b, "bob")))
	require.NoError(t, apply(t, s, claim(b, "carol")))

	require.NoError(t, apply(t, s, func(s *session.Session) (*session.Patch, error) {
		return session.Leave(s, "bob")
	}))

	assert.False(t, s.HasParticipant("bob"))
	for _, it := range s.Items {
		assert.NotContains(t, it.ClaimedBy, session.ParticipantID("bob"))
	}
	assert.Equal(t, int64(3000), owed(s, "alice"))
	assert.Equal(t, int64(900), owed(s, "carol"))

	_, err := session.Leave(s, "bob")
	assert.ErrorIs(t, err, session.ErrNotParticipant)
}

func TestJoinIsIdempotent(t *testing.T) {
	s := newSession(t, 100)

	p, joined, err := session.Join(s, "alice", "Alice again", "", t0)
	require.NoError(t, err)
	assert.False(t, joined)
	assert.True(t, p.Empty())
	assert.Equal(t, "Alice", s.Participants["alice"].Name)
}

func TestTerminalStatusIsSticky(t *testing.T) {
	for _, status := range []session.Status{session.StatusCompleted, session.StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			s := newSession(t, 3000)
			join(t, s, "bob")
			item := s.Items[0].ID
			require.NoError(t, apply(t, s, claim(item, "bob")))

			_, ended, err := session.End(s, status, t0.Add(time.Hour))
			require.NoError(t, err)
			require.True(t, ended)
			require.NotNil(t, s.EndedAt)

			_, err = session.ClaimItem(s, item, "alice")
			assert.ErrorIs(t, err, session.ErrSessionNotActive)
			_, err = session.UnclaimItem(s, item, "bob")
			assert.ErrorIs(t, err, session.ErrSessionNotActive)
			_, _, err = session.Join(s, "carol", "Carol", "", t0)
			assert.ErrorIs(t, err, session.ErrSessionNotActive)
			_, err = session.Leave(s, "bob")
			assert.ErrorIs(t, err, session.ErrSessionNotActive)

			// Ending again is a benign no-op and keeps the first status.
			p, ended, err := session.End(s, session.StatusCompleted, t0.Add(2*time.Hour))
			require.NoError(t, err)
			assert.False(t, ended)
			assert.True(t, p.Empty())
			assert.Equal(t, status, s.Status)
		})
	}
}

func TestPaymentClamp(t *testing.T) {
	s := newSession(t, 1000)
	item := s.Items[0].ID

	var receipts []*session.PaymentReceipt
	for range 2 {
		require.NoError(t, apply(t, s, func(s *session.Session) (*session.Patch, error) {
			p, r, err := session.RecordItemPayment(s, item, types.USD(600), "", t0)
			receipts = append(receipts, r)
			return p, err
		}))
	}

	assert.Equal(t, types.USD(1000), s.Items[0].PaidAmount)
	assert.True(t, s.Items[0].FullyPaid())
	assert.Equal(t, types.USD(600), receipts[0].Applied)
	assert.False(t, receipts[0].Clamped())
	assert.Equal(t, types.USD(400), receipts[1].Applied)
	assert.True(t, receipts[1].Clamped())
	assert.True(t, receipts[1].Remaining.IsZero())
	assert.Len(t, s.Items[0].Payments, 2)
	assert.Equal(t, 100, s.Totals().ProgressPercent)
}

func TestPaymentValidation(t *testing.T) {
	s := newSession(t, 1000)
	item := s.Items[0].ID

	_, _, err := session.RecordItemPayment(s, item, types.USD(0), "", t0)
	assert.ErrorIs(t, err, session.ErrInvalidAmount)
	_, _, err = session.RecordItemPayment(s, item, types.EUR(100), "", t0)
	assert.ErrorIs(t, err, session.ErrCurrencyMismatch)
	_, _, err = session.RecordItemPayment(s, id.NewItemID(), types.USD(100), "", t0)
	assert.ErrorIs(t, err, session.ErrItemNotFound)

	_, _, err = session.RecordItemPayment(s, item, types.USD(100), "txn-1", t0)
	require.NoError(t, err)
	_, _, err = session.RecordItemPayment(s, item, types.USD(100), "txn-1", t0)
	assert.ErrorIs(t, err, session.ErrDuplicatePayment)
	assert.Equal(t, types.USD(100), s.Items[0].PaidAmount)
}

func TestMarkParticipantPaid(t *testing.T) {
	s := newSession(t, 1000)
	join(t, s, "bob")

	_, err := session.MarkParticipantPaid(s, "bob", t0)
	assert.ErrorIs(t, err, session.ErrNothingToPay)

	require.NoError(t, apply(t, s, claim(s.Items[0].ID, "bob")))
	require.NoError(t, apply(t, s, func(s *session.Session) (*session.Patch, error) {
		return session.MarkParticipantPaid(s, "bob", t0)
	}))
	bob := s.Participants["bob"]
	assert.True(t, bob.HasPaid)
	require.NotNil(t, bob.PaidAt)
	assert.Equal(t, int64(1000), bob.OwedAmount.Amount)

	_, err = session.MarkParticipantPaid(s, "bob", t0)
	assert.ErrorIs(t, err, session.ErrAlreadyPaid)

	_, err = session.MarkParticipantPaid(s, "mallory", t0)
	assert.ErrorIs(t, err, session.ErrParticipantNotFound)

	// Display totals do not depend on payment status.
	for _, sum := range s.Summaries() {
		if sum.ID == "bob" {
			assert.Equal(t, int64(1000), sum.Owed.Amount)
		}
	}
}

func TestProgressPercent(t *testing.T) {
	empty := newSession(t)
	assert.Equal(t, 100, empty.Totals().ProgressPercent)

	s := newSession(t, 2000, 1000)
	_, _, err := session.RecordItemPayment(s, s.Items[0].ID, types.USD(1000), "", t0)
	require.NoError(t, err)

	totals := s.Totals()
	assert.Equal(t, 33, totals.ProgressPercent)
	assert.Equal(t, types.USD(2000), totals.Remaining)
	assert.Equal(t, 0, totals.ItemsPaid)
	assert.Equal(t, 2, totals.ItemsTotal)
}

func TestUnclaimIntegrityFaults(t *testing.T) {
	t.Run("one-sided membership", func(t *testing.T) {
		s := newSession(t, 3000)
		item := s.Items[0].ID
		s.Items[0].ClaimedBy = []session.ParticipantID{"alice"}

		err := apply(t, s, unclaim(item, "alice"))
		var ie *session.IntegrityError
		require.ErrorAs(t, err, &ie)
		assert.ErrorIs(t, err, session.ErrIntegrity)
		assert.Equal(t, session.InvariantClaimMembership, ie.Invariant)
		assert.Equal(t, item, ie.ItemID)
		assert.Equal(t, session.ParticipantID("alice"), ie.ParticipantID)
	})

	t.Run("never charged", func(t *testing.T) {
		s := newSession(t, 3000)
		item := s.Items[0].ID
		require.NoError(t, apply(t, s, claim(item, "alice")))
		s.Participants["alice"].OwedAmount = types.USD(0)

		err := apply(t, s, unclaim(item, "alice"))
		var ie *session.IntegrityError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, session.InvariantOwedConsistency, ie.Invariant)
	})

	t.Run("unregistered claimant", func(t *testing.T) {
		s := newSession(t, 3000)
		item := s.Items[0].ID
		s.Items[0].ClaimedBy = []session.ParticipantID{"ghost"}

		err := apply(t, s, claim(item, "alice"))
		var ie *session.IntegrityError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, session.InvariantClaimantRegistered, ie.Invariant)
	})
}

func TestVerifyAndRecompute(t *testing.T) {
	s := newSession(t, 3000, 1000)
	join(t, s, "bob")
	require.NoError(t, apply(t, s, claim(s.Items[0].ID, "alice")))
	require.NoError(t, apply(t, s, claim(s.Items[0].ID, "bob")))

	// Simulate a lost update: bob's share was never rebalanced.
	s.Participants["bob"].OwedAmount = types.USD(3000)
	s.Items[1].ClaimedBy = []session.ParticipantID{"ghost"}

	err := session.Verify(s)
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrIntegrity)
	var multi session.MultiError
	require.ErrorAs(t, err, &multi)
	assert.Len(t, multi.Errors, 2)

	before := s.Clone()
	p := session.Recompute(s)
	require.NoError(t, session.Verify(s))
	assert.Equal(t, int64(1500), owed(s, "bob"))
	assert.Empty(t, s.Items[1].ClaimedBy)

	require.NoError(t, p.Apply(before))
	assert.Equal(t, s, before)

	assert.True(t, session.Recompute(s).Empty())
}

func TestPatchApplyRejectsUnknownTargets(t *testing.T) {
	s := newSession(t, 100)
	p := &session.Patch{Items: []session.ItemPatch{{ID: id.NewItemID(), Index: 0}}}
	assert.ErrorIs(t, p.Apply(s), session.ErrItemNotFound)

	owedAmt := types.USD(1)
	p = &session.Patch{Participants: []session.ParticipantPatch{{ID: "ghost", OwedAmount: &owedAmt}}}
	assert.ErrorIs(t, p.Apply(s), session.ErrParticipantNotFound)
}

// TestRandomClaimSequences drives random claim, unclaim, leave and join
// operations and checks share conservation and owed-amount consistency
// after every step.
func TestRandomClaimSequences(t *testing.T) {
	for seed := range uint64(20) {
		r := rand.New(rand.NewPCG(seed, 42))
		s := newSession(t, 1000, 999, 1, 0, 2849, 333)
		pool := []session.ParticipantID{"alice", "bob", "carol", "dave", "erin"}
		join(t, s, "bob", "carol")

		for range 200 {
			pid := pool[r.IntN(len(pool))]
			item := s.Items[r.IntN(len(s.Items))].ID

			var err error
			switch r.IntN(10) {
			case 0:
				if !s.HasParticipant(pid) {
					_, _, err = session.Join(s, pid, string(pid), "", t0)
				}
			case 1:
				if s.HasParticipant(pid) && len(s.Participants) > 1 {
					err = apply(t, s, func(s *session.Session) (*session.Patch, error) { return session.Leave(s, pid) })
				}
			case 2, 3, 4:
				err = apply(t, s, unclaim(item, pid))
			default:
				err = apply(t, s, claim(item, pid))
			}
			if err != nil {
				require.False(t, errors.Is(err, session.ErrIntegrity), "seed %d: %v", seed, err)
			}

			var owedSum int64
			for _, p := range s.Participants {
				owedSum += p.OwedAmount.Amount
			}
			var claimedSum int64
			for _, it := range s.Items {
				var shareSum int64
				for _, sh := range it.Shares() {
					shareSum += sh.Amount
				}
				if len(it.ClaimedBy) > 0 {
					require.Equal(t, it.Price.Amount, shareSum)
					claimedSum += it.Price.Amount
				}
			}
			require.Equal(t, claimedSum, owedSum, "seed %d", seed)
		}
	}
}
