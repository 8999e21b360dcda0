package splitledger_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/splitledger"
	"github.com/xraph/splitledger/store/memory"
	"github.com/xraph/splitledger/types"
)

// TestDocumentationExamples verifies that the examples in the package
// documentation compile and behave as described.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		// Memory store for the demo; use PostgreSQL in production.
		store := memory.New()

		l := splitledger.New(store,
			splitledger.WithLogger(slog.Default()),
			splitledger.WithMaxAttempts(3),
			splitledger.WithOperationTimeout(5*time.Second),
		)

		ctx := context.Background()
		if err := l.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer l.Stop()

		s, err := l.CreateSession(ctx, splitledger.CreateInput{
			CreatorID: "alice",
			Currency:  "usd",
			Items: []splitledger.ItemInput{
				{Name: "Pizza", Price: splitledger.USD(3000)},
			},
		})
		if err != nil {
			t.Fatal(err)
		}

		if _, _, err := l.Join(ctx, s.ID, splitledger.JoinInput{ParticipantID: "bob", Name: "Bob"}); err != nil {
			t.Fatal(err)
		}
		if _, err := l.ClaimItem(ctx, s.ID, s.Items[0].ID, "alice"); err != nil {
			t.Fatal(err)
		}
		s, err = l.ClaimItem(ctx, s.ID, s.Items[0].ID, "bob")
		if err != nil {
			t.Fatal(err)
		}

		for _, p := range s.Summaries() {
			log.Printf("%s owes %s\n", p.Name, p.Owed)
			if !p.Owed.Equal(types.USD(1500)) {
				t.Fatalf("%s owes %s, want $15.00", p.ID, p.Owed)
			}
		}
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD(4900)   // $49.00
		_ = types.EUR(9900)   // €99.00
		_ = types.Zero("usd") // $0.00

		// Splitting
		shares := types.USD(1000).Allocate(3) // $3.34, $3.33, $3.33
		if !types.Sum("usd", shares...).Equal(types.USD(1000)) {
			t.Fatal("shares must add up to the whole")
		}

		// Formatting
		m := types.USD(100)
		_ = m.String()      // "$1.00"
		_ = m.FormatMajor() // "1.00"
	})
}
