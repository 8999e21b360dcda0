// Package splitledger is a library for splitting a shared bill among the
// people at the table and tracking who has paid.
//
// A session holds the bill's items and its participants. Participants claim
// the items they shared; each item's price is divided among its claimants
// in exact minor units, so the shares of an item always add up to its
// price. Payments are recorded against items and clamped to what is still
// outstanding, and each participant can be marked paid once.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/splitledger"
//	    "github.com/xraph/splitledger/store/memory"
//	)
//
//	l := splitledger.New(memory.New())
//	if err := l.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer l.Stop()
//
//	s, err := l.CreateSession(ctx, splitledger.CreateInput{
//	    CreatorID: "alice",
//	    Currency:  "usd",
//	    Items: []splitledger.ItemInput{
//	        {Name: "Pizza", Price: splitledger.USD(3000)},
//	    },
//	})
//
//	_, _, err = l.Join(ctx, s.ID, splitledger.JoinInput{ParticipantID: "bob", Name: "Bob"})
//	_, err = l.ClaimItem(ctx, s.ID, s.Items[0].ID, "alice")
//	_, err = l.ClaimItem(ctx, s.ID, s.Items[0].ID, "bob")
//	// alice and bob now owe $15.00 each.
//
// # Concurrency
//
// Every mutation reads the session, computes a patch naming exactly the
// fields it changed, and commits that patch only if the session version is
// still the one it read. A lost race is recomputed a bounded number of
// times before ErrConflict is returned. Mutations of one session are also
// serialized within the process.
//
// # Money
//
// All amounts are integers in the currency's smallest unit. Division uses
// the largest remainder method: the first claimants in claim order absorb
// the leftover minor units.
//
// # Stores
//
// Sessions are kept by a store.Store. Memory, PostgreSQL, SQLite and MongoDB
// backends are provided under store/.
//
// # TypeID
//
// Sessions, items and payments use TypeID identifiers:
//
//	sess_01h2xcejqtf2nbrexx3vqjhp41  // Session ID
//	item_01h2xcejqtf2nbrexx3vqjhp41  // Item ID
//	pay_01h455vb4pex5vsknk084sn02q   // Payment ID
//
// A session ID is safe to embed in a share link.
package splitledger
