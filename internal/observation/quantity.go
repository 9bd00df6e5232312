package observation

import "fmt"

// Side is the role a resource plays in a single event.
type Side uint8

const (
	// SidePrimary is the resourceInventoriedAs side of an existing resource.
	SidePrimary Side = iota
	// SideReceiving is the toResourceInventoriedAs side of a transfer.
	SideReceiving
	// SideCreated is the resource brought into existence by the event.
	SideCreated
)

func (s Side) String() string {
	switch s {
	case SidePrimary:
		return "primary"
	case SideReceiving:
		return "receiving"
	case SideCreated:
		return "created"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Quantities is the pair of quantity tracks carried by a resource.
// A nil track has not been established yet.
type Quantities struct {
	Accounting *Measure
	Onhand     *Measure
}

// Unit returns the established unit, or "".
func (q Quantities) Unit() string {
	if q.Accounting != nil {
		return q.Accounting.Unit
	}
	if q.Onhand != nil {
		return q.Onhand.Unit
	}
	return ""
}

// Accumulate applies action with quantity qty to q for a resource playing side.
// It never mutates q.
func Accumulate(q Quantities, action Action, qty *Measure, side Side) (Quantities, error) {
	if !action.Valid() {
		return q, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if qty == nil {
		if action.AffectsQuantity() {
			return q, fmt.Errorf("%w: action %s", ErrMissingQuantity, action)
		}
		return q, nil
	}
	if qty.NumericValue.IsNegative() {
		return q, fmt.Errorf("%w: got %s", ErrInvalidQuantity, qty.NumericValue)
	}
	if unit := q.Unit(); unit != "" && qty.Unit != unit {
		return q, fmt.Errorf("%w: resource unit %q, event unit %q", ErrUnitMismatch, unit, qty.Unit)
	}

	if side == SideCreated {
		acc, onhand := *qty, *qty
		return Quantities{Accounting: &acc, Onhand: &onhand}, nil
	}
	tracks := action.Tracks()
	if tracks == trackNone {
		return q, nil
	}
	if side == SideReceiving && !action.IsTransfer() {
		return q, fmt.Errorf("%w: action %s cannot credit a receiving resource", ErrInvalidTransfer, action)
	}

	delta := *qty
	sign := effects[action].sign
	if side == SideReceiving {
		sign = -sign
	}
	next := Quantities{
		Accounting: establish(q.Accounting, qty.Unit),
		Onhand:     establish(q.Onhand, qty.Unit),
	}
	if tracks.Has(TrackAccounting) {
		*next.Accounting = shift(*next.Accounting, delta, sign)
	}
	if tracks.Has(TrackOnhand) {
		*next.Onhand = shift(*next.Onhand, delta, sign)
	}
	return next, nil
}

func establish(m *Measure, unit string) *Measure {
	if m == nil {
		zero := Measure{Unit: unit}.Zero()
		return &zero
	}
	c := *m
	return &c
}

func shift(m, delta Measure, sign int) Measure {
	if sign < 0 {
		return m.Sub(delta)
	}
	return m.Add(delta)
}
