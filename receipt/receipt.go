// Package receipt defines the contract for the external receipt item
// extractor and converts its candidates into session items.
package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xraph/splitledger/session"
	"github.com/xraph/splitledger/types"
)

// Candidate is one line recognised on a receipt, in major currency units.
type Candidate struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity,omitempty"`
}

// Extractor turns a receipt image into candidate items. How extraction
// happens is up to the implementation.
type Extractor interface {
	Extract(ctx context.Context, image []byte) ([]Candidate, error)
}

// ExtractorFunc is an adapter to use a plain function as an Extractor.
type ExtractorFunc func(ctx context.Context, image []byte) ([]Candidate, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, image []byte) ([]Candidate, error) {
	return f(ctx, image)
}

// ParseCandidates decodes an analyzer response body. Both a bare JSON array
// and an object with an "items" array are accepted; prices may be JSON
// numbers or strings.
func ParseCandidates(data []byte) ([]Candidate, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var out []Candidate
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("receipt: decode candidates: %w", err)
		}
		return out, nil
	}
	var wrapped struct {
		Items []Candidate `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("receipt: decode candidates: %w", err)
	}
	return wrapped.Items, nil
}

// Items converts candidates to session item inputs in currency. Prices are
// rounded half away from zero to the currency's minor unit. Candidates with
// a blank name are dropped; a negative price is rejected.
func Items(cands []Candidate, currency string) ([]session.ItemInput, error) {
	out := make([]session.ItemInput, 0, len(cands))
	for i, c := range cands {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if c.Price.IsNegative() {
			return nil, fmt.Errorf("receipt: candidate %d (%s) price %s: %w", i, name, c.Price, session.ErrInvalidAmount)
		}
		qty := c.Quantity
		if qty <= 0 {
			qty = 1
		}
		out = append(out, session.ItemInput{
			Name:     name,
			Price:    types.FromDecimal(c.Price, currency),
			Quantity: qty,
		})
	}
	return out, nil
}

// Extract runs ex on image and converts the result with Items.
func Extract(ctx context.Context, ex Extractor, image []byte, currency string) ([]session.ItemInput, error) {
	cands, err := ex.Extract(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("receipt: extract: %w", err)
	}
	return Items(cands, currency)
}
