package watchers

import (
	"sort"

	"github.com/magefree/mage-combat-go/internal/game/rules"
	"github.com/magefree/mage-combat-go/internal/game/saturate"
)

// FirstStrikeWatcher records which creatures dealt combat damage in the
// first-strike damage step of the current combat. A creature recorded here
// deals damage again in the regular step only if it has double strike.
type FirstStrikeWatcher struct {
	*rules.BaseWatcher
	firstStrikers map[string]bool
}

// NewFirstStrikeWatcher creates a new first strike watcher.
func NewFirstStrikeWatcher() *FirstStrikeWatcher {
	w := &FirstStrikeWatcher{
		BaseWatcher:   rules.NewBaseWatcher(rules.WatcherScopeGame),
		firstStrikers: make(map[string]bool),
	}
	w.SetKey("FirstStrikeWatcher")
	return w
}

// Watch clears the record when combat ends.
func (w *FirstStrikeWatcher) Watch(event rules.Event) {
	if event.Type == rules.EventEndCombatStep {
		w.Reset()
	}
}

// RecordFirstStriker marks a creature as having acted in the first-strike step.
func (w *FirstStrikeWatcher) RecordFirstStriker(creatureID string) {
	w.firstStrikers[creatureID] = true
	w.SetCondition(true)
}

// WasFirstStriker reports whether the creature acted in the first-strike step.
func (w *FirstStrikeWatcher) WasFirstStriker(creatureID string) bool {
	return w.firstStrikers[creatureID]
}

func (w *FirstStrikeWatcher) Reset() {
	w.BaseWatcher.Reset()
	w.firstStrikers = make(map[string]bool)
}

func (w *FirstStrikeWatcher) Copy() rules.Watcher {
	out := &FirstStrikeWatcher{
		BaseWatcher:   w.BaseWatcher.Clone(),
		firstStrikers: make(map[string]bool, len(w.firstStrikers)),
	}
	for id := range w.firstStrikers {
		out.firstStrikers[id] = true
	}
	return out
}

// CombatDamageWatcher tallies combat damage actually dealt this combat, by
// source and by recipient.
type CombatDamageWatcher struct {
	*rules.BaseWatcher
	dealtBy    map[string]int // sourceID -> damage
	receivedBy map[string]int // targetID -> damage
}

// NewCombatDamageWatcher creates a new combat damage watcher.
func NewCombatDamageWatcher() *CombatDamageWatcher {
	w := &CombatDamageWatcher{
		BaseWatcher: rules.NewBaseWatcher(rules.WatcherScopeGame),
		dealtBy:     make(map[string]int),
		receivedBy:  make(map[string]int),
	}
	w.SetKey("CombatDamageWatcher")
	return w
}

func (w *CombatDamageWatcher) Watch(event rules.Event) {
	switch event.Type {
	case rules.EventDamagedPlayer, rules.EventDamagedPermanent:
	default:
		return
	}
	if !event.Flag || event.Amount <= 0 {
		return
	}
	w.dealtBy[event.SourceID] = saturate.Add(w.dealtBy[event.SourceID], event.Amount)
	w.receivedBy[event.TargetID] = saturate.Add(w.receivedBy[event.TargetID], event.Amount)
	w.SetCondition(true)
}

func (w *CombatDamageWatcher) Reset() {
	w.BaseWatcher.Reset()
	w.dealtBy = make(map[string]int)
	w.receivedBy = make(map[string]int)
}

// DamageDealtBy returns the combat damage dealt by a source.
func (w *CombatDamageWatcher) DamageDealtBy(sourceID string) int {
	return w.dealtBy[sourceID]
}

// DamageReceived returns the combat damage dealt to a player or permanent.
func (w *CombatDamageWatcher) DamageReceived(targetID string) int {
	return w.receivedBy[targetID]
}

// Sources returns the IDs of every source that dealt combat damage, sorted.
func (w *CombatDamageWatcher) Sources() []string {
	ids := make([]string, 0, len(w.dealtBy))
	for id := range w.dealtBy {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *CombatDamageWatcher) Copy() rules.Watcher {
	out := &CombatDamageWatcher{
		BaseWatcher: w.BaseWatcher.Clone(),
		dealtBy:     make(map[string]int, len(w.dealtBy)),
		receivedBy:  make(map[string]int, len(w.receivedBy)),
	}
	for k, v := range w.dealtBy {
		out.dealtBy[k] = v
	}
	for k, v := range w.receivedBy {
		out.receivedBy[k] = v
	}
	return out
}

// CreaturesDiedWatcher tracks creatures that died, per controller.
type CreaturesDiedWatcher struct {
	*rules.BaseWatcher
	diedByController map[string][]string // controllerID -> permanent IDs
}

// NewCreaturesDiedWatcher creates a new creatures died watcher.
func NewCreaturesDiedWatcher() *CreaturesDiedWatcher {
	w := &CreaturesDiedWatcher{
		BaseWatcher:      rules.NewBaseWatcher(rules.WatcherScopeGame),
		diedByController: make(map[string][]string),
	}
	w.SetKey("CreaturesDiedWatcher")
	return w
}

func (w *CreaturesDiedWatcher) Watch(event rules.Event) {
	if event.Type != rules.EventPermanentDies || event.Metadata["creature"] != "true" {
		return
	}
	w.diedByController[event.Controller] = append(w.diedByController[event.Controller], event.TargetID)
	w.SetCondition(true)
}

func (w *CreaturesDiedWatcher) Reset() {
	w.BaseWatcher.Reset()
	w.diedByController = make(map[string][]string)
}

// Died returns the creatures controlled by the player that died, in order.
func (w *CreaturesDiedWatcher) Died(controllerID string) []string {
	return w.diedByController[controllerID]
}

// GetTotalAmount returns the number of creatures that died.
func (w *CreaturesDiedWatcher) GetTotalAmount() int {
	total := 0
	for _, ids := range w.diedByController {
		total += len(ids)
	}
	return total
}

func (w *CreaturesDiedWatcher) Copy() rules.Watcher {
	out := &CreaturesDiedWatcher{
		BaseWatcher:      w.BaseWatcher.Clone(),
		diedByController: make(map[string][]string, len(w.diedByController)),
	}
	for k, v := range w.diedByController {
		out.diedByController[k] = append([]string(nil), v...)
	}
	return out
}
