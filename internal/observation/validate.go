package observation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// UnitRegistry is the set of units the engine accepts. An empty registry
// accepts any unit.
type UnitRegistry map[string]struct{}

// NewUnitRegistry builds a registry from unit labels.
func NewUnitRegistry(units ...string) UnitRegistry {
	reg := make(UnitRegistry, len(units))
	for _, u := range units {
		if u = normalize(u); u != "" {
			reg[u] = struct{}{}
		}
	}
	return reg
}

// Allows reports whether unit is acceptable.
func (r UnitRegistry) Allows(unit string) bool {
	if len(r) == 0 {
		return true
	}
	_, ok := r[unit]
	return ok
}

type inputValidator struct {
	validate *validator.Validate
	units    UnitRegistry
}

func newInputValidator(units UnitRegistry) *inputValidator {
	return &inputValidator{validate: validator.New(), units: units}
}

// check normalises the inputs and validates them before any state is read.
// The returned action is the parsed enumeration value.
func (v *inputValidator) check(in *EventInput, res *ResourceInput) (Action, error) {
	normalizeEvent(in)
	if res != nil {
		normalizeResource(res)
	}
	if err := v.validate.Struct(in); err != nil {
		return "", describe(err)
	}
	if res != nil {
		if err := v.validate.Struct(res); err != nil {
			return "", describe(err)
		}
	}

	action, err := ParseAction(in.Action)
	if err != nil {
		return "", err
	}
	if action.AffectsQuantity() && in.ResourceQuantity == nil {
		return "", fmt.Errorf("%w: action %s", ErrMissingQuantity, action)
	}
	if err := v.checkMeasure("resourceQuantity", in.ResourceQuantity, true); err != nil {
		return "", err
	}
	if err := v.checkMeasure("effortQuantity", in.EffortQuantity, false); err != nil {
		return "", err
	}

	switch {
	case res == nil && in.ResourceInventoriedAs == "":
		return "", fmt.Errorf("%w: resourceInventoriedAs required unless creating a resource", ErrValidation)
	case res != nil && in.ResourceInventoriedAs != "":
		return "", fmt.Errorf("%w: resourceInventoriedAs is assigned when creating a resource", ErrValidation)
	}
	if in.ToResourceInventoriedAs != "" {
		if !action.IsTransfer() {
			return "", fmt.Errorf("%w: action %s does not take a receiving resource", ErrInvalidTransfer, action)
		}
		if in.ToResourceInventoriedAs == in.ResourceInventoriedAs {
			return "", fmt.Errorf("%w: source and receiving resource must differ", ErrInvalidTransfer)
		}
	}
	return action, nil
}

func (v *inputValidator) checkMeasure(field string, m *Measure, registered bool) error {
	if m == nil {
		return nil
	}
	if m.NumericValue.IsNegative() {
		return fmt.Errorf("%w: %s is %s", ErrInvalidQuantity, field, m.NumericValue)
	}
	if err := checkMagnitude(m.NumericValue); err != nil {
		return fmt.Errorf("%w: %s %v", ErrInvalidQuantity, field, err)
	}
	if m.Unit == "" {
		return fmt.Errorf("%w: %s.unit required", ErrValidation, field)
	}
	if registered && !v.units.Allows(m.Unit) {
		return fmt.Errorf("%w: %q", ErrUnknownUnit, m.Unit)
	}
	return nil
}

// Bounds on accepted magnitudes. Every later fold, digest and snapshot of the
// resource pays for the widest value ever appended to it.
const (
	maxFractionDigits = 18
	maxIntegerDigits  = 28
)

// checkMagnitude inspects the exponent and coefficient without rescaling or
// printing d, so oversized values are rejected cheaply.
func checkMagnitude(d decimal.Decimal) error {
	if d.IsZero() {
		return nil
	}
	exp := int64(d.Exponent())
	if -exp > maxFractionDigits {
		return fmt.Errorf("has more than %d decimal places", maxFractionDigits)
	}
	coef := d.Coefficient()
	// log10(2) < 0.302, so this bounds the digit count before formatting.
	if int64(coef.BitLen())*302/1000 > maxIntegerDigits+maxFractionDigits {
		return fmt.Errorf("has more than %d significant digits", maxIntegerDigits+maxFractionDigits)
	}
	if int64(len(coef.Text(10)))+exp > maxIntegerDigits {
		return fmt.Errorf("has more than %d integer digits", maxIntegerDigits)
	}
	return nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(parts, "; "))
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func normalizeAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, normalize(v))
	}
	return out
}

func normalizeEvent(in *EventInput) {
	in.Action = strings.TrimSpace(in.Action)
	in.ResourceInventoriedAs = normalize(in.ResourceInventoriedAs)
	in.ToResourceInventoriedAs = normalize(in.ToResourceInventoriedAs)
	in.ResourceClassifiedAs = normalizeAll(in.ResourceClassifiedAs)
	in.ResourceConformsTo = normalize(in.ResourceConformsTo)
	in.AtLocation = normalize(in.AtLocation)
	in.InScopeOf = normalizeAll(in.InScopeOf)
	if in.ResourceQuantity != nil {
		m := *in.ResourceQuantity
		m.Unit = normalize(m.Unit)
		in.ResourceQuantity = &m
	}
	if in.EffortQuantity != nil {
		m := *in.EffortQuantity
		m.Unit = normalize(m.Unit)
		in.EffortQuantity = &m
	}
}

func normalizeResource(res *ResourceInput) {
	res.ConformsTo = normalize(res.ConformsTo)
	res.ClassifiedAs = normalizeAll(res.ClassifiedAs)
	res.CurrentLocation = normalize(res.CurrentLocation)
}
