package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/splitledger/session"
	"github.com/xraph/splitledger/types"
)

var at = time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC)

func newSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.New(session.Params{
		Currency:  "usd",
		CreatorID: "alice",
		Items: []session.ItemInput{
			{Name: "Pizza", Price: types.USD(3000)},
			{Name: "Wine", Price: types.USD(4500)},
		},
		CreatedAt: at,
	})
	require.NoError(t, err)
	_, _, err = session.Join(s, "bob", "Bob", "bob@example.com", at)
	require.NoError(t, err)
	return s
}

func TestSessionModelRoundTrip(t *testing.T) {
	s := newSession(t)
	_, err := session.ClaimItem(s, s.Items[0].ID, "alice")
	require.NoError(t, err)
	_, err = session.ClaimItem(s, s.Items[0].ID, "bob")
	require.NoError(t, err)
	_, _, err = session.RecordItemPayment(s, s.Items[1].ID, types.USD(1000), "cash", at)
	require.NoError(t, err)

	m := toSessionModel(s)
	assert.Equal(t, s.ID.String(), m.ID)
	require.Len(t, m.Participants, 2)
	assert.Equal(t, "alice", m.Participants[0].ID)
	assert.Equal(t, "bob", m.Participants[1].ID)
	assert.Equal(t, []string{"alice", "bob"}, m.Items[0].ClaimedBy)
	require.Len(t, m.Items[1].Payments, 1)

	back, err := fromSessionModel(m)
	require.NoError(t, err)
	assert.Equal(t, s.ID.String(), back.ID.String())
	assert.Equal(t, s.Totals(), back.Totals())
	assert.Equal(t, s.Items[0].ClaimedBy, back.Items[0].ClaimedBy)
	assert.Equal(t, s.Items[1].Payments[0].ID.String(), back.Items[1].Payments[0].ID.String())
	assert.Equal(t, int64(1500), back.Participants["bob"].OwedAmount.Amount)
	assert.Equal(t, "bob@example.com", back.Participants["bob"].Email)
	assert.NoError(t, session.Verify(back))
}

func TestFromSessionModelRejectsBadIDs(t *testing.T) {
	m := toSessionModel(newSession(t))
	m.Items[0].ID = "not-an-id"

	_, err := fromSessionModel(m)
	assert.Error(t, err)
}

func TestBuildFieldUpdateClaim(t *testing.T) {
	s := newSession(t)
	p, err := session.ClaimItem(s, s.Items[1].ID, "bob")
	require.NoError(t, err)
	p.UpdatedAt = at

	require.True(t, canUpdateFields(p))
	fu := buildFieldUpdate(s.ID, 4, p)

	assert.Equal(t, s.ID.String(), fu.filter["_id"])
	assert.Equal(t, int64(4), fu.filter["version"])
	assert.Equal(t, s.Items[1].ID.String(), fu.filter["items.1.id"])
	assert.Equal(t, bson.M{"$all": []string{"bob"}}, fu.filter["participants.id"])

	set := fu.update["$set"].(bson.M)
	assert.Equal(t, []string{"bob"}, set["items.1.claimed_by"])
	assert.Equal(t, moneyModel{Amount: 4500, Currency: "usd"}, set["participants.$[p0].owed_amount"])
	assert.Equal(t, at, set["updated_at"])
	assert.Equal(t, bson.M{"version": 1}, fu.update["$inc"])
	assert.NotContains(t, fu.update, "$push")
	assert.Equal(t, []any{bson.M{"p0.id": "bob"}}, fu.arrayFilters)
}

func TestBuildFieldUpdatePayment(t *testing.T) {
	s := newSession(t)
	p, _, err := session.RecordItemPayment(s, s.Items[0].ID, types.USD(500), "card", at)
	require.NoError(t, err)

	fu := buildFieldUpdate(s.ID, 1, p)
	push := fu.update["$push"].(bson.M)
	pm, ok := push["items.0.payments"].(paymentModel)
	require.True(t, ok)
	assert.Equal(t, "card", pm.Reference)
	assert.Equal(t, int64(500), pm.Amount.Amount)
	assert.NotContains(t, fu.filter, "participants.id")
	assert.Empty(t, fu.arrayFilters)
}

func TestCanUpdateFieldsMembership(t *testing.T) {
	s := newSession(t)
	p, _, err := session.Join(s, "carol", "Carol", "", at)
	require.NoError(t, err)
	assert.False(t, canUpdateFields(p))

	p, err = session.Leave(s, "carol")
	require.NoError(t, err)
	assert.False(t, canUpdateFields(p))
}
