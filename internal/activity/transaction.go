package activity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the settlement state of a transaction.
type Status string

const (
	StatusCompleted Status = "Completed"
	StatusPending   Status = "Pending"
	StatusFailed    Status = "Failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCompleted, StatusPending, StatusFailed:
		return true
	default:
		return false
	}
}

// Transaction is an immutable value transfer record. Exactly one of InAmount/OutAmount is set.
type Transaction struct {
	Hash      string           `json:"hash"`
	Timestamp string           `json:"timestamp"`
	Token     string           `json:"token"`
	InAmount  *decimal.Decimal `json:"in_amount,omitempty"`
	OutAmount *decimal.Decimal `json:"out_amount,omitempty"`
	GasUsed   decimal.Decimal  `json:"gas_used"`
	Status    Status           `json:"status"`
	Project   *string          `json:"project,omitempty"`
}

// ProjectName returns the project or an empty string.
func (t Transaction) ProjectName() string {
	if t.Project == nil {
		return ""
	}
	return strings.TrimSpace(*t.Project)
}

// ErrMalformedRecord is matched by every MalformedRecordError via errors.Is.
var ErrMalformedRecord = errors.New("activity: malformed record")

// MalformedRecordError describes a transaction excluded from aggregation.
type MalformedRecordError struct {
	Hash   string
	Reason string
	Err    error
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed transaction %s: %s: %v", e.Hash, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed transaction %s: %s", e.Hash, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrMalformedRecord) match.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// Timestamps without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"Jan 2, 2006 15:04:05",
	"January 2, 2006 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a record timestamp and normalises it to UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// DateKey is the UTC calendar date used to group transactions.
func DateKey(ts time.Time) string {
	return ts.UTC().Format(time.DateOnly)
}

func validate(tx Transaction) (time.Time, *MalformedRecordError) {
	ts, err := ParseTimestamp(tx.Timestamp)
	if err != nil {
		return time.Time{}, &MalformedRecordError{Hash: tx.Hash, Reason: "timestamp", Err: err}
	}
	switch {
	case tx.InAmount != nil && tx.OutAmount != nil:
		return time.Time{}, &MalformedRecordError{Hash: tx.Hash, Reason: "both in and out amounts set"}
	case tx.InAmount == nil && tx.OutAmount == nil:
		return time.Time{}, &MalformedRecordError{Hash: tx.Hash, Reason: "neither in nor out amount set"}
	case tx.InAmount != nil && tx.InAmount.IsNegative():
		return time.Time{}, &MalformedRecordError{Hash: tx.Hash, Reason: "negative in amount"}
	case tx.OutAmount != nil && tx.OutAmount.IsNegative():
		return time.Time{}, &MalformedRecordError{Hash: tx.Hash, Reason: "negative out amount"}
	case tx.GasUsed.IsNegative():
		return time.Time{}, &MalformedRecordError{Hash: tx.Hash, Reason: "negative gas"}
	case !tx.Status.Valid():
		return time.Time{}, &MalformedRecordError{Hash: tx.Hash, Reason: fmt.Sprintf("unknown status %q", tx.Status)}
	}
	return ts, nil
}
