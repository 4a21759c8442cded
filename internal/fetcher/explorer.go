package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"alphapoints/internal/activity"
)

// nativeDecimals converts gasUsed*gasPrice (wei) into native units.
const nativeDecimals = 18

// ExplorerOptions parameterise the Etherscan-compatible fetcher.
type ExplorerOptions struct {
	BaseURL   string
	APIKey    string
	ChainID   int64
	Timeout   time.Duration
	UserAgent string
	PageSize  int
	// MaxPages caps how many pages one fetch may walk.
	MaxPages int
}

// Explorer lists token transfers through an Etherscan-compatible account API.
type Explorer struct {
	opts    ExplorerOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewExplorer constructs an explorer-backed transaction source.
func NewExplorer(opts ExplorerOptions, logger zerolog.Logger) *Explorer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 20
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.etherscan.io/v2/api"
	}

	return &Explorer{
		opts:    opts,
		logger:  logger.With().Str("component", "explorer_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchTransactions retrieves the token transfers touching address, newest
// first. Pages are requested until one comes back short or MaxPages is reached.
// Gas is charged once per on-chain transaction: when several transfers share a
// hash, only the first one seen carries it.
func (e *Explorer) FetchTransactions(ctx context.Context, address string) ([]activity.Transaction, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}
	owner := common.HexToAddress(address)

	txs := make([]activity.Transaction, 0, e.opts.PageSize)
	charged := make(map[string]struct{})
	for page := 1; ; page++ {
		transfers, err := e.fetchPage(ctx, owner, page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		for _, tr := range transfers {
			tx, err := tr.toTransaction(owner)
			if err != nil {
				// Kept out of the result; the aggregator only sees well-formed records from here.
				e.logger.Warn().Err(err).Str("hash", tr.Hash).Msg("skipping undecodable transfer")
				continue
			}
			key := strings.ToLower(tx.Hash)
			if _, ok := charged[key]; ok {
				tx.GasUsed = decimal.Zero
			} else {
				charged[key] = struct{}{}
			}
			txs = append(txs, tx)
		}

		if len(transfers) < e.opts.PageSize {
			break
		}
		if page >= e.opts.MaxPages {
			e.logger.Warn().Str("address", owner.Hex()).Int("pages", page).Msg("transfer history truncated at max pages")
			break
		}
	}

	e.logger.Debug().Str("address", owner.Hex()).Int("count", len(txs)).Msg("fetched token transfers")
	return txs, nil
}

// fetchPage returns the raw transfers of one page; an empty page is not an error.
func (e *Explorer) fetchPage(ctx context.Context, owner common.Address, page int) ([]tokenTransfer, error) {
	query := url.Values{}
	if e.opts.ChainID > 0 {
		query.Set("chainid", strconv.FormatInt(e.opts.ChainID, 10))
	}
	query.Set("module", "account")
	query.Set("action", "tokentx")
	query.Set("address", owner.Hex())
	query.Set("page", strconv.Itoa(page))
	query.Set("offset", strconv.Itoa(e.opts.PageSize))
	query.Set("sort", "desc")
	if e.opts.APIKey != "" {
		query.Set("apikey", e.opts.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(e.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "alphapoints/1.0")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var envelope explorerResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode explorer response: %w", err)
	}

	if envelope.Status != "1" {
		if strings.HasPrefix(strings.ToLower(envelope.Message), "no transactions") {
			return nil, nil
		}
		var reason string
		_ = json.Unmarshal(envelope.Result, &reason)
		if reason == "" {
			reason = envelope.Message
		}
		return nil, fmt.Errorf("explorer api error: %s", reason)
	}

	var transfers []tokenTransfer
	if err := json.Unmarshal(envelope.Result, &transfers); err != nil {
		return nil, fmt.Errorf("decode token transfers: %w", err)
	}
	return transfers, nil
}

type explorerResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type tokenTransfer struct {
	TimeStamp     string `json:"timeStamp"`
	Hash          string `json:"hash"`
	From          string `json:"from"`
	To            string `json:"to"`
	Value         string `json:"value"`
	TokenName     string `json:"tokenName"`
	TokenSymbol   string `json:"tokenSymbol"`
	TokenDecimal  string `json:"tokenDecimal"`
	GasUsed       string `json:"gasUsed"`
	GasPrice      string `json:"gasPrice"`
	Confirmations string `json:"confirmations"`
	IsError       string `json:"isError"`
}

func (t tokenTransfer) toTransaction(owner common.Address) (activity.Transaction, error) {
	unix, err := strconv.ParseInt(t.TimeStamp, 10, 64)
	if err != nil {
		return activity.Transaction{}, fmt.Errorf("parse timeStamp: %w", err)
	}

	places, err := strconv.ParseInt(t.TokenDecimal, 10, 32)
	if err != nil {
		return activity.Transaction{}, fmt.Errorf("parse tokenDecimal: %w", err)
	}
	raw, err := decimal.NewFromString(t.Value)
	if err != nil {
		return activity.Transaction{}, fmt.Errorf("parse value: %w", err)
	}
	value := raw.Shift(-int32(places))

	gas := decimal.Zero
	if t.GasUsed != "" && t.GasPrice != "" {
		used, err := decimal.NewFromString(t.GasUsed)
		if err != nil {
			return activity.Transaction{}, fmt.Errorf("parse gasUsed: %w", err)
		}
		price, err := decimal.NewFromString(t.GasPrice)
		if err != nil {
			return activity.Transaction{}, fmt.Errorf("parse gasPrice: %w", err)
		}
		gas = used.Mul(price).Shift(-nativeDecimals)
	}

	tx := activity.Transaction{
		Hash:      t.Hash,
		Timestamp: time.Unix(unix, 0).UTC().Format(time.RFC3339),
		Token:     strings.ToUpper(t.TokenSymbol),
		GasUsed:   gas,
		Status:    activity.StatusCompleted,
	}
	if name := strings.TrimSpace(t.TokenName); name != "" {
		tx.Project = &name
	}
	switch {
	case t.IsError == "1":
		tx.Status = activity.StatusFailed
	case t.Confirmations == "0":
		tx.Status = activity.StatusPending
	}

	from := common.HexToAddress(t.From)
	to := common.HexToAddress(t.To)
	switch {
	case from == owner:
		tx.OutAmount = &value
	case to == owner:
		tx.InAmount = &value
	default:
		return activity.Transaction{}, errors.New("transfer does not involve owner")
	}
	return tx, nil
}

var _ TransactionSource = (*Explorer)(nil)
