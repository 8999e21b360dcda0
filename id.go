package splitledger

import "github.com/xraph/splitledger/id"

// ID is the identifier type for sessions, items and payments.
type ID = id.ID

// SessionID identifies a session.
type SessionID = id.SessionID

// ItemID identifies an item within a session.
type ItemID = id.ItemID
