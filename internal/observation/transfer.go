package observation

import "fmt"

// Posting is one resource mutation derived from an event.
type Posting struct {
	ResourceID string
	Side       Side
}

// Split decomposes e into the postings it implies: the primary (or created)
// resource, and for transfers the receiving resource credited with the same
// magnitude on the same tracks.
func Split(e EconomicEvent) ([]Posting, error) {
	if e.ResourceInventoriedAs == "" {
		if e.ToResourceInventoriedAs != "" {
			return nil, fmt.Errorf("%w: receiving resource without a source", ErrInvalidTransfer)
		}
		return nil, fmt.Errorf("%w: event must reference a resource", ErrValidation)
	}
	primary := Posting{ResourceID: e.ResourceInventoriedAs, Side: SidePrimary}
	if e.CreatesResource() {
		primary.Side = SideCreated
	}
	if e.ToResourceInventoriedAs == "" {
		return []Posting{primary}, nil
	}
	if !e.Action.IsTransfer() {
		return nil, fmt.Errorf("%w: action %s does not take a receiving resource", ErrInvalidTransfer, e.Action)
	}
	if e.ToResourceInventoriedAs == e.ResourceInventoriedAs {
		return nil, fmt.Errorf("%w: source and receiving resource must differ", ErrInvalidTransfer)
	}
	return []Posting{primary, {ResourceID: e.ToResourceInventoriedAs, Side: SideReceiving}}, nil
}
