package observation

import (
	"slices"
	"time"
)

// EventInput is the caller-supplied payload for a new economic event.
type EventInput struct {
	Action                  string     `json:"action" validate:"max=64"`
	ResourceInventoriedAs   string     `json:"resourceInventoriedAs,omitempty" validate:"omitempty,max=128"`
	ToResourceInventoriedAs string     `json:"toResourceInventoriedAs,omitempty" validate:"omitempty,max=128"`
	ResourceQuantity        *Measure   `json:"resourceQuantity,omitempty"`
	EffortQuantity          *Measure   `json:"effortQuantity,omitempty"`
	ResourceClassifiedAs    []string   `json:"resourceClassifiedAs,omitempty" validate:"omitempty,dive,required,max=512"`
	ResourceConformsTo      string     `json:"resourceConformsTo,omitempty" validate:"omitempty,max=256"`
	AtLocation              string     `json:"atLocation,omitempty" validate:"omitempty,max=256"`
	Note                    string     `json:"note,omitempty" validate:"omitempty,max=4000"`
	Provider                string     `json:"provider,omitempty" validate:"omitempty,max=256"`
	Receiver                string     `json:"receiver,omitempty" validate:"omitempty,max=256"`
	InputOf                 string     `json:"inputOf,omitempty" validate:"omitempty,max=256"`
	OutputOf                string     `json:"outputOf,omitempty" validate:"omitempty,max=256"`
	HasBeginning            *time.Time `json:"hasBeginning,omitempty"`
	HasEnd                  *time.Time `json:"hasEnd,omitempty"`
	HasPointInTime          *time.Time `json:"hasPointInTime,omitempty"`
	AgreedIn                string     `json:"agreedIn,omitempty" validate:"omitempty,max=512"`
	TriggeredBy             string     `json:"triggeredBy,omitempty" validate:"omitempty,max=256"`
	RealizationOf           string     `json:"realizationOf,omitempty" validate:"omitempty,max=256"`
	InScopeOf               []string   `json:"inScopeOf,omitempty" validate:"omitempty,dive,required,max=256"`
	RequestKey              string     `json:"-" validate:"omitempty,max=128"`
}

// ResourceInput describes a resource to be created by its first event.
type ResourceInput struct {
	Name               string   `json:"name,omitempty" validate:"omitempty,max=256"`
	Note               string   `json:"note,omitempty" validate:"omitempty,max=4000"`
	TrackingIdentifier string   `json:"trackingIdentifier,omitempty" validate:"omitempty,max=256"`
	Image              string   `json:"image,omitempty" validate:"omitempty,max=1024"`
	ConformsTo         string   `json:"conformsTo,omitempty" validate:"omitempty,max=256"`
	ClassifiedAs       []string `json:"classifiedAs,omitempty" validate:"omitempty,dive,required,max=512"`
	CurrentLocation    string   `json:"currentLocation,omitempty" validate:"omitempty,max=256"`
}

// EconomicEvent is an immutable record in the event log.
type EconomicEvent struct {
	ID                      string         `json:"id"`
	Action                  Action         `json:"action"`
	ResourceInventoriedAs   string         `json:"resourceInventoriedAs,omitempty"`
	ToResourceInventoriedAs string         `json:"toResourceInventoriedAs,omitempty"`
	ResourceQuantity        *Measure       `json:"resourceQuantity,omitempty"`
	EffortQuantity          *Measure       `json:"effortQuantity,omitempty"`
	ResourceClassifiedAs    []string       `json:"resourceClassifiedAs,omitempty"`
	ResourceConformsTo      string         `json:"resourceConformsTo,omitempty"`
	AtLocation              string         `json:"atLocation,omitempty"`
	Note                    string         `json:"note,omitempty"`
	Provider                string         `json:"provider,omitempty"`
	Receiver                string         `json:"receiver,omitempty"`
	InputOf                 string         `json:"inputOf,omitempty"`
	OutputOf                string         `json:"outputOf,omitempty"`
	HasBeginning            *time.Time     `json:"hasBeginning,omitempty"`
	HasEnd                  *time.Time     `json:"hasEnd,omitempty"`
	HasPointInTime          *time.Time     `json:"hasPointInTime,omitempty"`
	AgreedIn                string         `json:"agreedIn,omitempty"`
	TriggeredBy             string         `json:"triggeredBy,omitempty"`
	RealizationOf           string         `json:"realizationOf,omitempty"`
	InScopeOf               []string       `json:"inScopeOf,omitempty"`
	NewInventoriedResource  *ResourceInput `json:"newInventoriedResource,omitempty"`
	RequestKey              string         `json:"requestKey,omitempty"`
	RecordedAt              time.Time      `json:"recordedAt"`
	Digest                  string         `json:"digest,omitempty"`
}

// CreatesResource reports whether the event brings resourceInventoriedAs into existence.
func (e EconomicEvent) CreatesResource() bool {
	return e.NewInventoriedResource != nil && e.ResourceInventoriedAs != ""
}

// ResourceIDs returns the distinct resources referenced by the event, sorted ascending.
func (e EconomicEvent) ResourceIDs() []string {
	ids := make([]string, 0, 2)
	if e.ResourceInventoriedAs != "" {
		ids = append(ids, e.ResourceInventoriedAs)
	}
	if e.ToResourceInventoriedAs != "" && e.ToResourceInventoriedAs != e.ResourceInventoriedAs {
		ids = append(ids, e.ToResourceInventoriedAs)
	}
	slices.Sort(ids)
	return ids
}

// References reports whether the event names resourceID on either side.
func (e EconomicEvent) References(resourceID string) bool {
	return resourceID != "" && (e.ResourceInventoriedAs == resourceID || e.ToResourceInventoriedAs == resourceID)
}

// EconomicResource is the projection of a resource's event history.
type EconomicResource struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name,omitempty"`
	Note               string   `json:"note,omitempty"`
	TrackingIdentifier string   `json:"trackingIdentifier,omitempty"`
	Image              string   `json:"image,omitempty"`
	ConformsTo         string   `json:"conformsTo,omitempty"`
	AccountingQuantity *Measure `json:"accountingQuantity,omitempty"`
	OnhandQuantity     *Measure `json:"onhandQuantity,omitempty"`
	ClassifiedAs       []string `json:"classifiedAs,omitempty"`
	CurrentLocation    string   `json:"currentLocation,omitempty"`
	State              Action   `json:"state,omitempty"`
	CreatedBy          string   `json:"createdBy"`
	LastEventID        string   `json:"lastEventId"`
	Revision           int64    `json:"revision"`
}

// Unit returns the unit established for the resource, or "" when none is set yet.
func (r EconomicResource) Unit() string {
	if r.AccountingQuantity != nil {
		return r.AccountingQuantity.Unit
	}
	if r.OnhandQuantity != nil {
		return r.OnhandQuantity.Unit
	}
	return ""
}

// Exists reports whether a creating event has been folded.
func (r EconomicResource) Exists() bool {
	return r.CreatedBy != ""
}

// Clone returns a deep copy safe to mutate.
func (r EconomicResource) Clone() EconomicResource {
	c := r
	c.AccountingQuantity = cloneMeasure(r.AccountingQuantity)
	c.OnhandQuantity = cloneMeasure(r.OnhandQuantity)
	c.ClassifiedAs = slices.Clone(r.ClassifiedAs)
	return c
}

// CreateResult is returned by Service.CreateEvent.
type CreateResult struct {
	Event    EconomicEvent     `json:"economicEvent"`
	Resource *EconomicResource `json:"economicResource,omitempty"`
}

// EventFilter narrows ListEvents results. Zero fields do not filter.
type EventFilter struct {
	ResourceID    string
	InputOf       string
	OutputOf      string
	RealizationOf string
	Action        Action
	Limit         int
}

// Matches reports whether e satisfies every populated field of f.
func (f EventFilter) Matches(e EconomicEvent) bool {
	if f.ResourceID != "" && !e.References(f.ResourceID) {
		return false
	}
	if f.InputOf != "" && e.InputOf != f.InputOf {
		return false
	}
	if f.OutputOf != "" && e.OutputOf != f.OutputOf {
		return false
	}
	if f.RealizationOf != "" && e.RealizationOf != f.RealizationOf {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	return true
}

// VerifyReport summarises a projection verification.
type VerifyReport struct {
	ResourceID     string   `json:"resourceId"`
	Events         int      `json:"events"`
	Drifted        bool     `json:"drifted"`
	Repaired       bool     `json:"repaired"`
	TamperedEvents []string `json:"tamperedEvents,omitempty"`
}
