package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// HTTPOptions parameterise the CoinGecko-style oracle.
type HTTPOptions struct {
	BaseURL string
	// TokenIDs maps symbol to the provider's asset id.
	TokenIDs map[string]string
	Timeout  time.Duration
}

// HTTPOracle reads spot prices from a `/simple/price` endpoint.
type HTTPOracle struct {
	baseURL string
	ids     map[string]string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPOracle constructs the oracle.
func NewHTTPOracle(opts HTTPOptions, logger zerolog.Logger) *HTTPOracle {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ids := make(map[string]string, len(opts.TokenIDs))
	for symbol, id := range opts.TokenIDs {
		ids[normalize(symbol)] = id
	}
	return &HTTPOracle{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		ids:     ids,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "price_oracle").Logger(),
	}
}

// Prices fetches USD prices for tokens in one request.
func (o *HTTPOracle) Prices(ctx context.Context, tokens []string) (map[string]decimal.Decimal, error) {
	wanted := Unique(tokens)
	if len(wanted) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	ids := make([]string, 0, len(wanted))
	for _, token := range wanted {
		id, ok := o.ids[token]
		if !ok {
			return nil, &ErrUnknownToken{Token: token}
		}
		ids = append(ids, id)
	}

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")
	endpoint := o.baseURL + "/simple/price?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body map[string]map[string]json.Number
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(wanted))
	for _, token := range wanted {
		quote, ok := body[o.ids[token]]
		if !ok {
			return nil, &ErrUnknownToken{Token: token}
		}
		raw, ok := quote["usd"]
		if !ok {
			return nil, &ErrUnknownToken{Token: token}
		}
		price, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, fmt.Errorf("parse %s price: %w", token, err)
		}
		out[token] = price
	}

	o.logger.Debug().Strs("tokens", wanted).Msg("fetched usd prices")
	return out, nil
}

var _ Oracle = (*HTTPOracle)(nil)
