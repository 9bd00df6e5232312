package observation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func qty(v int64) *Measure {
	m := NewMeasure(v, "kg")
	return &m
}

type eventOpt func(*EconomicEvent)

func to(id string) eventOpt { return func(e *EconomicEvent) { e.ToResourceInventoriedAs = id } }

func at(loc string) eventOpt { return func(e *EconomicEvent) { e.AtLocation = loc } }

func classified(tags ...string) eventOpt {
	return func(e *EconomicEvent) { e.ResourceClassifiedAs = tags }
}

func creating(res ResourceInput) eventOpt {
	return func(e *EconomicEvent) { e.NewInventoriedResource = &res }
}

func event(id string, action Action, resource string, q *Measure, opts ...eventOpt) EconomicEvent {
	e := EconomicEvent{ID: id, Action: action, ResourceInventoriedAs: resource, ResourceQuantity: q}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func assertQuantities(t *testing.T, r EconomicResource, accounting, onhand int64) {
	t.Helper()
	require.NotNil(t, r.AccountingQuantity)
	require.NotNil(t, r.OnhandQuantity)
	assert.True(t, r.AccountingQuantity.Equal(NewMeasure(accounting, "kg")), "accounting: got %s want %d kg", r.AccountingQuantity, accounting)
	assert.True(t, r.OnhandQuantity.Equal(NewMeasure(onhand, "kg")), "onhand: got %s want %d kg", r.OnhandQuantity, onhand)
}

// fold applies history incrementally and checks each step against a full replay.
func fold(t *testing.T, id string, history []EconomicEvent) EconomicResource {
	t.Helper()
	r := EconomicResource{ID: id}
	for i, e := range history {
		next, err := Apply(r, e)
		require.NoError(t, err, "event %s", e.ID)
		replayed, err := Project(id, history[:i+1])
		require.NoError(t, err)
		require.True(t, SameProjection(next, replayed), "incremental and replayed projections differ after %s", e.ID)
		r = next
	}
	return r
}

func TestProjectQuantityScenarios(t *testing.T) {
	history := []EconomicEvent{
		event("e1", ActionRaise, "A", qty(8), creating(ResourceInput{Name: "apples"})),
	}
	r := fold(t, "A", history)
	assertQuantities(t, r, 8, 8)

	history = append(history, event("e2", ActionProduce, "A", qty(8)))
	assertQuantities(t, fold(t, "A", history), 16, 16)

	history = append(history, event("e3", ActionConsume, "A", qty(2)))
	assertQuantities(t, fold(t, "A", history), 14, 14)

	history = append(history, event("e4", ActionTransferCustody, "A", qty(1)))
	assertQuantities(t, fold(t, "A", history), 14, 13)

	history = append(history, event("e5", ActionTransferAllRights, "A", qty(1)))
	r = fold(t, "A", history)
	assertQuantities(t, r, 13, 13)
	assert.Equal(t, "e1", r.CreatedBy)
	assert.Equal(t, "e5", r.LastEventID)
	assert.EqualValues(t, 5, r.Revision)
	assert.Equal(t, "apples", r.Name)
}

func TestTransferCompleteCreditsDestination(t *testing.T) {
	a := []EconomicEvent{
		event("a1", ActionRaise, "A", qty(10), creating(ResourceInput{})),
	}
	b := []EconomicEvent{
		event("b1", ActionRaise, "B", qty(0), creating(ResourceInput{})),
	}
	transfer := event("t1", ActionTransferComplete, "A", qty(3), to("B"))

	current := map[string]EconomicResource{}
	var err error
	current["A"], err = Project("A", a)
	require.NoError(t, err)
	current["B"], err = Project("B", b)
	require.NoError(t, err)

	next, err := ApplyEvent(current, transfer)
	require.NoError(t, err)
	assertQuantities(t, next["A"], 7, 7)
	assertQuantities(t, next["B"], 3, 3)
	assertQuantities(t, current["A"], 10, 10)

	replayedB, err := Project("B", append(b, transfer))
	require.NoError(t, err)
	assert.True(t, SameProjection(next["B"], replayedB))
}

func TestPartialTransfersTouchOneTrackOnBothSides(t *testing.T) {
	tests := []struct {
		action                       Action
		srcAcc, srcOn, dstAcc, dstOn int64
	}{
		{ActionTransferCustody, 10, 8, 5, 7},
		{ActionTransferAllRights, 8, 10, 7, 5},
		{ActionTransferComplete, 8, 8, 7, 7},
	}
	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			current := map[string]EconomicResource{}
			var err error
			current["A"], err = Project("A", []EconomicEvent{event("a1", ActionRaise, "A", qty(10), creating(ResourceInput{}))})
			require.NoError(t, err)
			current["B"], err = Project("B", []EconomicEvent{event("b1", ActionRaise, "B", qty(5), creating(ResourceInput{}))})
			require.NoError(t, err)

			next, err := ApplyEvent(current, event("t", tt.action, "A", qty(2), to("B")))
			require.NoError(t, err)
			assertQuantities(t, next["A"], tt.srcAcc, tt.srcOn)
			assertQuantities(t, next["B"], tt.dstAcc, tt.dstOn)
		})
	}
}

func TestMoveSetsLocationOnly(t *testing.T) {
	history := []EconomicEvent{
		event("e1", ActionRaise, "A", qty(4), creating(ResourceInput{CurrentLocation: "warehouse"})),
	}
	r := fold(t, "A", history)
	assert.Equal(t, "warehouse", r.CurrentLocation)

	history = append(history, event("e2", ActionMove, "A", nil, at("loc-1")))
	r = fold(t, "A", history)
	assert.Equal(t, "loc-1", r.CurrentLocation)
	assertQuantities(t, r, 4, 4)

	history = append(history, event("e3", ActionProduce, "A", qty(1), at("elsewhere")))
	r = fold(t, "A", history)
	assert.Equal(t, "loc-1", r.CurrentLocation, "only move relocates")

	history = append(history, event("e4", ActionMove, "A", nil))
	r = fold(t, "A", history)
	assert.Equal(t, "loc-1", r.CurrentLocation, "move without a location keeps the current one")
}

func TestStateFollowsLatestInspection(t *testing.T) {
	history := []EconomicEvent{
		event("e1", ActionRaise, "A", qty(5), creating(ResourceInput{})),
		event("e2", ActionPass, "A", nil),
		event("e3", ActionFail, "A", nil),
		event("e4", ActionConsume, "A", qty(1)),
		event("e5", ActionMove, "A", nil, at("bin")),
	}
	r := fold(t, "A", history)
	assert.Equal(t, ActionFail, r.State)
	assertQuantities(t, r, 4, 4)
}

func TestClassificationAccretes(t *testing.T) {
	history := []EconomicEvent{
		event("e1", ActionRaise, "A", qty(1), creating(ResourceInput{})),
		event("e2", ActionProduce, "A", qty(1), classified("Apple")),
		event("e3", ActionProduce, "A", qty(1), classified("Manure_spreader")),
		event("e4", ActionProduce, "A", qty(1), classified("Apple", "Manure_spreader")),
	}
	r := fold(t, "A", history)
	assert.Equal(t, []string{"Apple", "Manure_spreader"}, r.ClassifiedAs)
}

func TestCreationWithoutQuantityEstablishesUnitLater(t *testing.T) {
	history := []EconomicEvent{
		event("e1", ActionPass, "A", nil, creating(ResourceInput{ConformsTo: "spec:apple"})),
	}
	r := fold(t, "A", history)
	assert.Nil(t, r.AccountingQuantity)
	assert.Equal(t, ActionPass, r.State)
	assert.Equal(t, "spec:apple", r.ConformsTo)

	history = append(history, event("e2", ActionConsume, "A", qty(2)))
	r = fold(t, "A", history)
	assertQuantities(t, r, -2, -2)
}

func TestApplyErrors(t *testing.T) {
	created, err := Project("A", []EconomicEvent{event("e1", ActionRaise, "A", qty(3), creating(ResourceInput{}))})
	require.NoError(t, err)

	tests := []struct {
		name string
		base EconomicResource
		ev   EconomicEvent
		want error
	}{
		{"unit mismatch", created, event("e2", ActionProduce, "A", &Measure{NumericValue: qty(1).NumericValue, Unit: "lb"}), ErrUnitMismatch},
		{"missing quantity", created, event("e2", ActionConsume, "A", nil), ErrMissingQuantity},
		{"invalid action", created, event("e2", Action("gift"), "A", qty(1)), ErrInvalidAction},
		{"negative magnitude", created, event("e2", ActionProduce, "A", qty(-1)), ErrInvalidQuantity},
		{"not created", EconomicResource{ID: "A"}, event("e2", ActionProduce, "A", qty(1)), ErrNotFound},
		{"created twice", created, event("e2", ActionRaise, "A", qty(1), creating(ResourceInput{})), ErrCorruptHistory},
		{"foreign event", created, event("e2", ActionProduce, "Z", qty(1)), ErrCorruptHistory},
		{"transfer to self", created, event("e2", ActionTransferComplete, "A", qty(1), to("A")), ErrInvalidTransfer},
		{"non-transfer with destination", created, event("e2", ActionProduce, "A", qty(1), to("B")), ErrInvalidTransfer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.base, tt.ev)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, SameProjection(tt.base, got), "failed apply must not change the resource")
		})
	}
}

func TestApplyEventIsAllOrNothing(t *testing.T) {
	a, err := Project("A", []EconomicEvent{event("a1", ActionRaise, "A", qty(10), creating(ResourceInput{}))})
	require.NoError(t, err)
	b, err := Project("B", []EconomicEvent{{
		ID: "b1", Action: ActionRaise, ResourceInventoriedAs: "B",
		ResourceQuantity: &Measure{NumericValue: qty(1).NumericValue, Unit: "each"}, NewInventoriedResource: &ResourceInput{},
	}})
	require.NoError(t, err)

	current := map[string]EconomicResource{"A": a, "B": b}
	next, err := ApplyEvent(current, event("t1", ActionTransferComplete, "A", qty(3), to("B")))
	require.ErrorIs(t, err, ErrUnitMismatch)
	assert.Nil(t, next)
	assertQuantities(t, current["A"], 10, 10)

	_, err = ApplyEvent(map[string]EconomicResource{"A": a}, event("t2", ActionTransferComplete, "A", qty(3), to("missing")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectEmptyHistory(t *testing.T) {
	_, err := Project("A", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectWrapsFoldFailure(t *testing.T) {
	_, err := Project("A", []EconomicEvent{
		event("e1", ActionRaise, "A", qty(1), creating(ResourceInput{})),
		event("e2", ActionConsume, "A", nil),
	})
	require.ErrorIs(t, err, ErrMissingQuantity)
	assert.Contains(t, err.Error(), fmt.Sprintf("fold event %s", "e2"))
}
