package observation

import (
	"fmt"
	"strings"
)

// Action enumerates the economic event actions understood by the engine.
type Action string

const (
	// ActionRaise brings a resource into inventory.
	ActionRaise Action = "raise"
	// ActionProduce increments both quantity tracks.
	ActionProduce Action = "produce"
	// ActionConsume decrements both quantity tracks.
	ActionConsume Action = "consume"
	// ActionTransferCustody moves physical custody only.
	ActionTransferCustody Action = "transfer-custody"
	// ActionTransferAllRights moves ownership only.
	ActionTransferAllRights Action = "transfer-all-rights"
	// ActionTransferComplete moves custody and ownership.
	ActionTransferComplete Action = "transfer-complete"
	// ActionMove relocates a resource.
	ActionMove Action = "move"
	// ActionPass records a passed inspection.
	ActionPass Action = "pass"
	// ActionFail records a failed inspection.
	ActionFail Action = "fail"
)

// Track identifies which quantity fields an action touches.
type Track uint8

const (
	// TrackAccounting is the ownership quantity.
	TrackAccounting Track = 1 << iota
	// TrackOnhand is the custodial quantity.
	TrackOnhand

	trackNone Track = 0
	trackBoth       = TrackAccounting | TrackOnhand
)

// Has reports whether t includes other.
func (t Track) Has(other Track) bool {
	return t&other != 0
}

// effect describes how an action moves a resource's quantities when the
// resource is the primary (resourceInventoriedAs) side of the event.
type effect struct {
	tracks   Track
	sign     int
	transfer bool
	state    bool
	location bool
}

var effects = map[Action]effect{
	ActionRaise:             {tracks: trackBoth, sign: 1},
	ActionProduce:           {tracks: trackBoth, sign: 1},
	ActionConsume:           {tracks: trackBoth, sign: -1},
	ActionTransferCustody:   {tracks: TrackOnhand, sign: -1, transfer: true},
	ActionTransferAllRights: {tracks: TrackAccounting, sign: -1, transfer: true},
	ActionTransferComplete:  {tracks: trackBoth, sign: -1, transfer: true},
	ActionMove:              {tracks: trackNone, location: true},
	ActionPass:              {tracks: trackNone, state: true},
	ActionFail:              {tracks: trackNone, state: true},
}

// actionAliases accepts the bare ValueFlows "transfer" token.
var actionAliases = map[string]Action{
	"transfer": ActionTransferComplete,
}

// ParseAction resolves an action token. Unknown tokens yield ErrInvalidAction.
func ParseAction(token string) (Action, error) {
	normalized := strings.ToLower(strings.TrimSpace(token))
	if alias, ok := actionAliases[normalized]; ok {
		return alias, nil
	}
	action := Action(normalized)
	if _, ok := effects[action]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, token)
	}
	return action, nil
}

// Actions lists every supported action in a stable order.
func Actions() []Action {
	return []Action{
		ActionRaise, ActionProduce, ActionConsume,
		ActionTransferCustody, ActionTransferAllRights, ActionTransferComplete,
		ActionMove, ActionPass, ActionFail,
	}
}

// Valid reports whether a is part of the enumeration.
func (a Action) Valid() bool {
	_, ok := effects[a]
	return ok
}

// Tracks returns the quantity tracks a moves.
func (a Action) Tracks() Track {
	return effects[a].tracks
}

// AffectsQuantity reports whether a requires a resourceQuantity.
func (a Action) AffectsQuantity() bool {
	return effects[a].tracks != trackNone
}

// IsTransfer reports whether a may name a receiving resource.
func (a Action) IsTransfer() bool {
	return effects[a].transfer
}

// SetsState reports whether a is pass or fail.
func (a Action) SetsState() bool {
	return effects[a].state
}

// SetsLocation reports whether a updates currentLocation.
func (a Action) SetsLocation() bool {
	return effects[a].location
}

func (a Action) String() string {
	return string(a)
}
