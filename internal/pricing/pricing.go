package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"alphapoints/internal/activity"
)

// Oracle returns USD spot prices keyed by upper-case token symbol.
type Oracle interface {
	Prices(ctx context.Context, tokens []string) (map[string]decimal.Decimal, error)
}

// ErrUnknownToken is wrapped when an oracle has no price for a symbol.
type ErrUnknownToken struct {
	Token string
}

func (e *ErrUnknownToken) Error() string {
	return fmt.Sprintf("no usd price for token %s", e.Token)
}

// Static serves fixed prices.
type Static struct {
	prices map[string]decimal.Decimal
}

// NewStatic builds a Static oracle from float prices.
func NewStatic(prices map[string]float64) *Static {
	out := make(map[string]decimal.Decimal, len(prices))
	for token, p := range prices {
		out[normalize(token)] = decimal.NewFromFloat(p)
	}
	return &Static{prices: out}
}

// Prices returns the configured price for every requested token.
func (s *Static) Prices(_ context.Context, tokens []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(tokens))
	for _, token := range tokens {
		key := normalize(token)
		p, ok := s.prices[key]
		if !ok {
			return nil, &ErrUnknownToken{Token: key}
		}
		out[key] = p
	}
	return out, nil
}

// Snapshot is a fixed set of prices captured before an aggregation run.
type Snapshot struct {
	prices map[string]decimal.Decimal
	At     time.Time
}

// Capture fetches prices for tokens once so aggregation stays free of I/O.
func Capture(ctx context.Context, oracle Oracle, tokens []string) (*Snapshot, error) {
	wanted := Unique(tokens)
	snap := &Snapshot{prices: make(map[string]decimal.Decimal, len(wanted)), At: time.Now().UTC()}
	if len(wanted) == 0 {
		return snap, nil
	}
	prices, err := oracle.Prices(ctx, wanted)
	if err != nil {
		return nil, fmt.Errorf("capture prices: %w", err)
	}
	for token, p := range prices {
		snap.prices[normalize(token)] = p
	}
	return snap, nil
}

// CaptureListed is Capture for tokens that may not be listed by the oracle.
// Tokens the oracle reports as unknown are priced at zero and returned as
// unlisted; any other oracle failure still fails the snapshot.
func CaptureListed(ctx context.Context, oracle Oracle, tokens []string) (*Snapshot, []string, error) {
	snap, err := Capture(ctx, oracle, tokens)
	if err == nil {
		return snap, nil, nil
	}
	var unknown *ErrUnknownToken
	if !errors.As(err, &unknown) {
		return nil, nil, err
	}

	snap = &Snapshot{prices: make(map[string]decimal.Decimal), At: time.Now().UTC()}
	var unlisted []string
	for _, token := range Unique(tokens) {
		prices, err := oracle.Prices(ctx, []string{token})
		switch {
		case errors.As(err, &unknown):
			snap.prices[token] = decimal.Zero
			unlisted = append(unlisted, token)
		case err != nil:
			return nil, nil, fmt.Errorf("capture %s price: %w", token, err)
		default:
			for t, p := range prices {
				snap.prices[normalize(t)] = p
			}
		}
	}
	return snap, unlisted, nil
}

// Extend adds prices for tokens not yet captured. Tokens the oracle cannot
// price are skipped and returned instead of failing the snapshot.
func (s *Snapshot) Extend(ctx context.Context, oracle Oracle, tokens []string) []string {
	var wanted []string
	for _, token := range Unique(tokens) {
		if _, ok := s.prices[token]; !ok {
			wanted = append(wanted, token)
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	if prices, err := oracle.Prices(ctx, wanted); err == nil {
		for token, p := range prices {
			s.prices[normalize(token)] = p
		}
		return nil
	}

	var skipped []string
	for _, token := range wanted {
		if ctx.Err() != nil {
			skipped = append(skipped, token)
			continue
		}
		prices, err := oracle.Prices(ctx, []string{token})
		if err != nil {
			skipped = append(skipped, token)
			continue
		}
		for t, p := range prices {
			s.prices[normalize(t)] = p
		}
	}
	return skipped
}

// PriceAt returns the captured spot price; the timestamp is not used.
func (s *Snapshot) PriceAt(token string, _ time.Time) (decimal.Decimal, error) {
	p, ok := s.prices[normalize(token)]
	if !ok {
		return decimal.Decimal{}, &ErrUnknownToken{Token: normalize(token)}
	}
	return p, nil
}

// Func adapts the snapshot to the aggregator's price lookup.
func (s *Snapshot) Func() activity.PriceFunc {
	return s.PriceAt
}

// ValueUSD converts token holdings into a USD total. Tokens without a price are skipped and returned.
func (s *Snapshot) ValueUSD(holdings map[string]decimal.Decimal) (decimal.Decimal, []string) {
	total := decimal.Zero
	var missing []string
	for token, amount := range holdings {
		p, ok := s.prices[normalize(token)]
		if !ok {
			missing = append(missing, normalize(token))
			continue
		}
		total = total.Add(amount.Mul(p))
	}
	sort.Strings(missing)
	return total, missing
}

// Unique returns the distinct normalised symbols, sorted.
func Unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		key := normalize(t)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func normalize(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

var _ Oracle = (*Static)(nil)
