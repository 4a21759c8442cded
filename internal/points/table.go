package points

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// BalanceRange maps a USD balance band to daily points.
type BalanceRange struct {
	Min          decimal.Decimal
	Max          *decimal.Decimal
	PointsPerDay int
	Label        string
}

// Unbounded reports whether the range has no upper limit.
func (r BalanceRange) Unbounded() bool {
	return r.Max == nil
}

// Contains reports whether v falls in [Min, Max).
func (r BalanceRange) Contains(v decimal.Decimal) bool {
	if v.LessThan(r.Min) {
		return false
	}
	return r.Max == nil || v.LessThan(*r.Max)
}

// VolumeRange maps a daily spend threshold to daily points.
type VolumeRange struct {
	Min          decimal.Decimal
	PointsPerDay int
}

// ZeroVolume is returned when spend is below the first threshold.
var ZeroVolume = VolumeRange{Min: decimal.Zero, PointsPerDay: 0}

// Table is the immutable rule set used for lookups.
type Table struct {
	balance []BalanceRange
	volume  []VolumeRange
}

// DefaultVolumeSteps is the length of the default doubling schedule ($2 .. $1,048,576).
const DefaultVolumeSteps = 20

// DefaultVolumeBase is the first volume threshold in USD.
var DefaultVolumeBase = decimal.NewFromInt(2)

// DefaultBalanceRanges returns the documented balance tiers.
func DefaultBalanceRanges() []BalanceRange {
	bound := func(v int64) *decimal.Decimal {
		d := decimal.NewFromInt(v)
		return &d
	}
	return []BalanceRange{
		{Min: decimal.Zero, Max: bound(100), PointsPerDay: 0, Label: "$0–$100"},
		{Min: decimal.NewFromInt(100), Max: bound(1000), PointsPerDay: 1, Label: "$100–$1,000"},
		{Min: decimal.NewFromInt(1000), Max: bound(10000), PointsPerDay: 2, Label: "$1,000–$10,000"},
		{Min: decimal.NewFromInt(10000), Max: bound(100000), PointsPerDay: 3, Label: "$10,000–$100,000"},
		{Min: decimal.NewFromInt(100000), PointsPerDay: 4, Label: "$100,000+"},
	}
}

// DoublingVolumeRanges builds a schedule where each threshold doubles the previous one
// and earns one more point per day.
func DoublingVolumeRanges(base decimal.Decimal, steps int) ([]VolumeRange, error) {
	if !base.IsPositive() {
		return nil, fmt.Errorf("volume base must be positive, got %s", base)
	}
	if steps <= 0 {
		return nil, fmt.Errorf("volume steps must be positive, got %d", steps)
	}

	ranges := make([]VolumeRange, 0, steps)
	threshold := base
	two := decimal.NewFromInt(2)
	for i := 1; i <= steps; i++ {
		ranges = append(ranges, VolumeRange{Min: threshold, PointsPerDay: i})
		threshold = threshold.Mul(two)
	}
	return ranges, nil
}

// DefaultTable returns the documented rule set.
func DefaultTable() *Table {
	volume, err := DoublingVolumeRanges(DefaultVolumeBase, DefaultVolumeSteps)
	if err != nil {
		panic("default volume schedule: " + err.Error())
	}
	table, err := NewTable(DefaultBalanceRanges(), volume)
	if err != nil {
		panic("default points table: " + err.Error())
	}
	return table
}

// NewTable validates and copies the given ranges.
func NewTable(balance []BalanceRange, volume []VolumeRange) (*Table, error) {
	if err := validateBalance(balance); err != nil {
		return nil, err
	}
	if err := validateVolume(volume); err != nil {
		return nil, err
	}

	t := &Table{
		balance: make([]BalanceRange, len(balance)),
		volume:  make([]VolumeRange, len(volume)),
	}
	copy(t.balance, balance)
	copy(t.volume, volume)
	return t, nil
}

func validateBalance(ranges []BalanceRange) error {
	if len(ranges) == 0 {
		return errors.New("balance table is empty")
	}
	for i, r := range ranges {
		last := i == len(ranges)-1
		if last && r.Max != nil {
			return errors.New("last balance range must be unbounded")
		}
		if !last {
			if r.Max == nil {
				return fmt.Errorf("balance range %d is unbounded but not last", i)
			}
			if !r.Max.GreaterThan(r.Min) {
				return fmt.Errorf("balance range %d has max %s <= min %s", i, r.Max, r.Min)
			}
			next := ranges[i+1]
			if !next.Min.Equal(*r.Max) {
				return fmt.Errorf("balance ranges %d and %d are not contiguous", i, i+1)
			}
			if next.PointsPerDay <= r.PointsPerDay {
				return fmt.Errorf("balance range %d points must increase", i+1)
			}
		}
	}
	if ranges[0].Min.IsNegative() {
		return errors.New("first balance range must start at or above zero")
	}
	return nil
}

func validateVolume(ranges []VolumeRange) error {
	if len(ranges) == 0 {
		return errors.New("volume table is empty")
	}
	if !ranges[0].Min.IsPositive() {
		return errors.New("first volume threshold must be positive")
	}
	two := decimal.NewFromInt(2)
	for i := 1; i < len(ranges); i++ {
		prev, cur := ranges[i-1], ranges[i]
		if !cur.Min.Equal(prev.Min.Mul(two)) {
			return fmt.Errorf("volume threshold %d (%s) must double %s", i, cur.Min, prev.Min)
		}
		if cur.PointsPerDay != prev.PointsPerDay+1 {
			return fmt.Errorf("volume range %d points must increase by one", i)
		}
	}
	return nil
}

// BalanceRanges returns a copy of the balance tiers.
func (t *Table) BalanceRanges() []BalanceRange {
	out := make([]BalanceRange, len(t.balance))
	copy(out, t.balance)
	return out
}

// VolumeRanges returns a copy of the volume schedule.
func (t *Table) VolumeRanges() []VolumeRange {
	out := make([]VolumeRange, len(t.volume))
	copy(out, t.volume)
	return out
}

// LookupBalanceTier returns the tier containing balanceUSD. Boundary values belong to the
// higher tier.
func (t *Table) LookupBalanceTier(balanceUSD decimal.Decimal) (BalanceRange, error) {
	_, r, err := t.balanceIndex(balanceUSD)
	return r, err
}

func (t *Table) balanceIndex(balanceUSD decimal.Decimal) (int, BalanceRange, error) {
	if balanceUSD.IsNegative() {
		return 0, BalanceRange{}, &InvalidInputError{Field: "balance", Value: balanceUSD.String(), Reason: "must not be negative"}
	}
	for i, r := range t.balance {
		if r.Contains(balanceUSD) {
			return i, r, nil
		}
	}
	// Only reachable when the first range starts above zero.
	return 0, BalanceRange{}, &InvalidInputError{Field: "balance", Value: balanceUSD.String(), Reason: "below the first tier"}
}

// LookupVolumeTier returns the highest range whose threshold is met, or ZeroVolume.
func (t *Table) LookupVolumeTier(dailySpendUSD decimal.Decimal) (VolumeRange, error) {
	_, r, err := t.volumeIndex(dailySpendUSD)
	return r, err
}

// volumeIndex returns -1 for the zero sentinel.
func (t *Table) volumeIndex(dailySpendUSD decimal.Decimal) (int, VolumeRange, error) {
	if dailySpendUSD.IsNegative() {
		return 0, VolumeRange{}, &InvalidInputError{Field: "daily spend", Value: dailySpendUSD.String(), Reason: "must not be negative"}
	}
	idx := -1
	for i, r := range t.volume {
		if r.Min.GreaterThan(dailySpendUSD) {
			break
		}
		idx = i
	}
	if idx < 0 {
		return -1, ZeroVolume, nil
	}
	return idx, t.volume[idx], nil
}

// BalanceTierAt returns the tier at a slider position.
func (t *Table) BalanceTierAt(index int) (BalanceRange, error) {
	if index < 0 || index >= len(t.balance) {
		return BalanceRange{}, &InvalidInputError{
			Field:  "tier index",
			Value:  fmt.Sprint(index),
			Reason: fmt.Sprintf("must be between 0 and %d", len(t.balance)-1),
		}
	}
	return t.balance[index], nil
}

// USD converts a float into a decimal, rejecting NaN and infinities.
func USD(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Decimal{}, &InvalidInputError{Field: "amount", Value: fmt.Sprint(v), Reason: "must be finite"}
	}
	return decimal.NewFromFloat(v), nil
}
