package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/splitledger/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"SessionID", id.NewSessionID, "sess_"},
		{"ItemID", id.NewItemID, "item_"},
		{"PaymentID", id.NewPaymentID, "pay_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			assert.True(t, strings.HasPrefix(got, tt.prefix), "expected prefix %q, got %q", tt.prefix, got)
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"SessionID", id.NewSessionID, id.ParseSessionID},
		{"ItemID", id.NewItemID, id.ParseItemID},
		{"PaymentID", id.NewPaymentID, id.ParsePaymentID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			require.NoError(t, err)
			assert.Equal(t, original.String(), parsed.String())
			assert.Equal(t, original, parsed)
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseSessionID rejects item_", id.NewItemID().String(), id.ParseSessionID},
		{"ParseItemID rejects pay_", id.NewPaymentID().String(), id.ParseItemID},
		{"ParsePaymentID rejects sess_", id.NewSessionID().String(), id.ParsePaymentID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "sess_", "not an id", "sess_!!!"} {
		_, err := id.Parse(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { id.MustParse("garbage") })
	assert.NotPanics(t, func() { id.MustParse(id.NewSessionID().String()) })
}

func TestNilID(t *testing.T) {
	var i id.ID
	assert.True(t, i.IsNil())
	assert.Empty(t, i.String())
	assert.Empty(t, i.Prefix())
}

func TestJSON(t *testing.T) {
	type doc struct {
		Session id.SessionID `json:"session"`
		Item    id.ItemID    `json:"item"`
	}

	in := doc{Session: id.NewSessionID()}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out doc
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.Session.String(), out.Session.String())
	assert.True(t, out.Item.IsNil())
}

func TestValueScan(t *testing.T) {
	original := id.NewSessionID()
	val, err := original.Value()
	require.NoError(t, err)

	var scanned id.ID
	require.NoError(t, scanned.Scan(val))
	assert.Equal(t, original.String(), scanned.String())

	var fromBytes id.ID
	require.NoError(t, fromBytes.Scan([]byte(original.String())))
	assert.Equal(t, original.String(), fromBytes.String())

	var nilID id.ID
	val, err = nilID.Value()
	require.NoError(t, err)
	assert.Nil(t, val)

	var scanned2 id.ID
	require.NoError(t, scanned2.Scan(nil))
	assert.True(t, scanned2.IsNil())

	assert.Error(t, scanned2.Scan(42))
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 100)
	for range 100 {
		s := id.NewItemID().String()
		_, dup := seen[s]
		require.False(t, dup, "duplicate id %q", s)
		seen[s] = struct{}{}
	}
}
