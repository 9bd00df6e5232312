package observation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Measure is a quantity expressed in a unit.
type Measure struct {
	NumericValue decimal.Decimal `json:"numericValue"`
	Unit         string          `json:"unit"`
}

// NewMeasure builds a measure from an integer value.
func NewMeasure(value int64, unit string) Measure {
	return Measure{NumericValue: decimal.NewFromInt(value), Unit: unit}
}

// ParseMeasure builds a measure from a decimal string.
func ParseMeasure(value, unit string) (Measure, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Measure{}, fmt.Errorf("%w: %v", ErrInvalidQuantity, err)
	}
	return Measure{NumericValue: d, Unit: unit}, nil
}

// Zero returns a zero measure in the same unit.
func (m Measure) Zero() Measure {
	return Measure{NumericValue: decimal.Zero, Unit: m.Unit}
}

// Add sums two measures, keeping the receiver's unit.
func (m Measure) Add(other Measure) Measure {
	return Measure{NumericValue: m.NumericValue.Add(other.NumericValue), Unit: m.Unit}
}

// Sub subtracts other from m, keeping the receiver's unit.
func (m Measure) Sub(other Measure) Measure {
	return Measure{NumericValue: m.NumericValue.Sub(other.NumericValue), Unit: m.Unit}
}

// IsNegative reports whether the numeric value is below zero.
func (m Measure) IsNegative() bool {
	return m.NumericValue.IsNegative()
}

// Equal compares value and unit.
func (m Measure) Equal(other Measure) bool {
	return m.Unit == other.Unit && m.NumericValue.Equal(other.NumericValue)
}

func (m Measure) String() string {
	return m.NumericValue.String() + " " + m.Unit
}

func cloneMeasure(m *Measure) *Measure {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
