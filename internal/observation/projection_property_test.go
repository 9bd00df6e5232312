package observation

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// scriptedEvent decodes one generated op into an event against resources A and B.
func scriptedEvent(i, op int) EconomicEvent {
	id := fmt.Sprintf("e%d", i)
	amount := qty(int64(op / 10))
	switch op % 10 {
	case 0:
		return event(id, ActionProduce, "A", amount)
	case 1:
		return event(id, ActionConsume, "B", amount)
	case 2:
		return event(id, ActionTransferCustody, "A", amount)
	case 3:
		return event(id, ActionTransferAllRights, "B", amount)
	case 4:
		return event(id, ActionTransferComplete, "A", amount, to("B"))
	case 5:
		return event(id, ActionTransferCustody, "B", amount, to("A"))
	case 6:
		return event(id, ActionTransferAllRights, "A", amount, to("B"), classified(fmt.Sprintf("tag-%d", op%3)))
	case 7:
		return event(id, ActionMove, "B", nil, at(fmt.Sprintf("loc-%d", op%4)))
	case 8:
		return event(id, ActionPass, "A", nil)
	default:
		return event(id, ActionFail, "B", nil)
	}
}

func TestIncrementalApplyMatchesReplay(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("incremental projection equals full replay", prop.ForAll(
		func(ops []int) bool {
			history := map[string][]EconomicEvent{
				"A": {event("ca", ActionRaise, "A", qty(10), creating(ResourceInput{}))},
				"B": {event("cb", ActionRaise, "B", qty(10), creating(ResourceInput{}))},
			}
			current := map[string]EconomicResource{}
			for id, h := range history {
				r, err := Project(id, h)
				if err != nil {
					return false
				}
				current[id] = r
			}
			for i, op := range ops {
				e := scriptedEvent(i, op)
				next, err := ApplyEvent(current, e)
				if err != nil {
					return false
				}
				for id, r := range next {
					current[id] = r
					history[id] = append(history[id], e)
				}
			}
			for id, h := range history {
				replayed, err := Project(id, h)
				if err != nil || !SameProjection(replayed, current[id]) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 500)),
	))

	properties.Property("produce and consume move both tracks together", prop.ForAll(
		func(ops []int) bool {
			history := []EconomicEvent{event("c", ActionRaise, "A", qty(5), creating(ResourceInput{}))}
			for i, op := range ops {
				action := ActionProduce
				if op%2 == 1 {
					action = ActionConsume
				}
				history = append(history, event(fmt.Sprintf("e%d", i), action, "A", qty(int64(op/2))))
			}
			r, err := Project("A", history)
			if err != nil {
				return false
			}
			return r.AccountingQuantity.Equal(*r.OnhandQuantity)
		},
		gen.SliceOf(gen.IntRange(0, 200)),
	))

	properties.Property("classification merge is idempotent", prop.ForAll(
		func(existing, incoming []string) bool {
			once := MergeClassifications(existing, incoming)
			twice := MergeClassifications(once, incoming)
			if len(once) != len(twice) {
				return false
			}
			for i := range once {
				if once[i] != twice[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
