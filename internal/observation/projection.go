package observation

import (
	"fmt"
	"slices"
)

// Apply folds a single event into r. Every posting of e that targets r.ID is
// applied; an event that does not reference r is rejected.
func Apply(r EconomicResource, e EconomicEvent) (EconomicResource, error) {
	postings, err := Split(e)
	if err != nil {
		return r, err
	}
	next := r.Clone()
	applied := false
	for _, p := range postings {
		if p.ResourceID != r.ID {
			continue
		}
		applied = true
		if p.Side == SideCreated {
			if next.Exists() {
				return r, fmt.Errorf("%w: resource %s created twice (events %s, %s)", ErrCorruptHistory, r.ID, next.CreatedBy, e.ID)
			}
			initialise(&next, e)
		} else if !next.Exists() {
			return r, fmt.Errorf("%w: resource %s", ErrNotFound, r.ID)
		}

		q, err := Accumulate(Quantities{Accounting: next.AccountingQuantity, Onhand: next.OnhandQuantity}, e.Action, e.ResourceQuantity, p.Side)
		if err != nil {
			return r, err
		}
		next.AccountingQuantity, next.OnhandQuantity = q.Accounting, q.Onhand
		next.ClassifiedAs = MergeClassifications(next.ClassifiedAs, e.ResourceClassifiedAs)
		if p.Side != SideReceiving {
			next.State = ProjectState(next.State, e.Action)
			if e.Action.SetsLocation() && e.AtLocation != "" {
				next.CurrentLocation = e.AtLocation
			}
		}
	}
	if !applied {
		return r, fmt.Errorf("%w: event %s does not reference resource %s", ErrCorruptHistory, e.ID, r.ID)
	}
	next.LastEventID = e.ID
	next.Revision++
	return next, nil
}

func initialise(r *EconomicResource, e EconomicEvent) {
	in := e.NewInventoriedResource
	r.Name = in.Name
	r.Note = in.Note
	r.TrackingIdentifier = in.TrackingIdentifier
	r.Image = in.Image
	r.ConformsTo = in.ConformsTo
	if r.ConformsTo == "" {
		r.ConformsTo = e.ResourceConformsTo
	}
	r.ClassifiedAs = MergeClassifications(nil, in.ClassifiedAs)
	r.CurrentLocation = in.CurrentLocation
	if r.CurrentLocation == "" {
		r.CurrentLocation = e.AtLocation
	}
	r.CreatedBy = e.ID
}

// Project folds history, in append order, from an empty resource.
func Project(resourceID string, history []EconomicEvent) (EconomicResource, error) {
	if len(history) == 0 {
		return EconomicResource{}, fmt.Errorf("%w: resource %s", ErrNotFound, resourceID)
	}
	r := EconomicResource{ID: resourceID}
	for _, e := range history {
		var err error
		r, err = Apply(r, e)
		if err != nil {
			return EconomicResource{}, fmt.Errorf("fold event %s: %w", e.ID, err)
		}
	}
	return r, nil
}

// ApplyEvent applies e to every resource it references. current must hold the
// latest projection of each referenced resource except one being created by e.
// Either every side is returned or an error; current is never modified.
func ApplyEvent(current map[string]EconomicResource, e EconomicEvent) (map[string]EconomicResource, error) {
	if _, err := Split(e); err != nil {
		return nil, err
	}
	out := make(map[string]EconomicResource, 2)
	for _, id := range e.ResourceIDs() {
		base, ok := current[id]
		if e.CreatesResource() && id == e.ResourceInventoriedAs {
			if ok && base.Exists() {
				return nil, fmt.Errorf("%w: resource %s already exists", ErrValidation, id)
			}
			base = EconomicResource{ID: id}
		} else if !ok {
			return nil, fmt.Errorf("%w: resource %s", ErrNotFound, id)
		}
		next, err := Apply(base, e)
		if err != nil {
			return nil, err
		}
		out[id] = next
	}
	return out, nil
}

// HasNegativeQuantity reports whether either quantity track is below zero.
func HasNegativeQuantity(r EconomicResource) bool {
	return (r.AccountingQuantity != nil && r.AccountingQuantity.IsNegative()) ||
		(r.OnhandQuantity != nil && r.OnhandQuantity.IsNegative())
}

// SameProjection compares two projections field by field, treating decimal
// values by numeric equality.
func SameProjection(a, b EconomicResource) bool {
	return a.ID == b.ID &&
		a.Name == b.Name &&
		a.Note == b.Note &&
		a.TrackingIdentifier == b.TrackingIdentifier &&
		a.Image == b.Image &&
		a.ConformsTo == b.ConformsTo &&
		sameMeasure(a.AccountingQuantity, b.AccountingQuantity) &&
		sameMeasure(a.OnhandQuantity, b.OnhandQuantity) &&
		slices.Equal(a.ClassifiedAs, b.ClassifiedAs) &&
		a.CurrentLocation == b.CurrentLocation &&
		a.State == b.State &&
		a.CreatedBy == b.CreatedBy &&
		a.LastEventID == b.LastEventID &&
		a.Revision == b.Revision
}

func sameMeasure(a, b *Measure) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
