package observation

import "errors"

var (
	// ErrNotFound indicates no event references the requested resource or event id.
	ErrNotFound = errors.New("observation: not found")
	// ErrInvalidAction indicates an action token outside the enumeration.
	ErrInvalidAction = errors.New("observation: invalid action")
	// ErrMissingQuantity indicates a quantity-affecting action without resourceQuantity.
	ErrMissingQuantity = errors.New("observation: resource quantity required")
	// ErrUnitMismatch indicates a quantity in a unit other than the resource's established unit.
	ErrUnitMismatch = errors.New("observation: unit mismatch")
	// ErrStorage wraps failures of the event store collaborator.
	ErrStorage = errors.New("observation: storage failure")

	// ErrInvalidQuantity indicates a negative or malformed magnitude.
	ErrInvalidQuantity = errors.New("observation: quantity must be >= 0")
	// ErrInvalidTransfer indicates a malformed receiving resource reference.
	ErrInvalidTransfer = errors.New("observation: invalid transfer")
	// ErrNegativeQuantity triggered when the reject policy sees a negative result.
	ErrNegativeQuantity = errors.New("observation: negative quantity not allowed")
	// ErrUnknownUnit indicates a unit missing from the configured registry.
	ErrUnknownUnit = errors.New("observation: unknown unit")
	// ErrValidation indicates malformed input fields.
	ErrValidation = errors.New("observation: validation failed")
	// ErrDuplicateRequest indicates the idempotency key was already appended.
	ErrDuplicateRequest = errors.New("observation: request already processed")
	// ErrLockLost indicates a lease expired or changed hands before release.
	ErrLockLost = errors.New("observation: lock lease lost")
	// ErrCorruptHistory indicates a history that cannot be folded.
	ErrCorruptHistory = errors.New("observation: corrupt history")
)

// IsValidationError reports whether err belongs to the pre-mutation validation family.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidAction, ErrMissingQuantity, ErrUnitMismatch, ErrInvalidQuantity,
		ErrInvalidTransfer, ErrNegativeQuantity, ErrUnknownUnit, ErrValidation,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
