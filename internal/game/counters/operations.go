package counters

import (
	"fmt"

	"github.com/magefree/mage-combat-go/internal/game/rules"
)

// CounterOperations adds and removes counters on a permanent's collection and
// emits the matching events.
type CounterOperations struct {
	eventBus *rules.EventBus
}

// NewCounterOperations creates a new CounterOperations instance.
func NewCounterOperations(eventBus *rules.EventBus) *CounterOperations {
	return &CounterOperations{
		eventBus: eventBus,
	}
}

// AddCounters adds counters to a permanent and emits COUNTER_ADDED.
func (co *CounterOperations) AddCounters(cs *Counters, permanentID string, ct CounterType, amount int, controllerID string) {
	if cs == nil || amount <= 0 {
		return
	}
	cs.Add(ct, amount)
	co.publish(rules.EventCounterAdded, permanentID, ct, amount, controllerID)
}

// RemoveCounters removes up to amount counters from a permanent, emits
// COUNTER_REMOVED for the amount actually removed and returns it. Damage
// dealt to planeswalkers and battles flows through here.
func (co *CounterOperations) RemoveCounters(cs *Counters, permanentID string, ct CounterType, amount int, controllerID string) int {
	if cs == nil {
		return 0
	}
	removed := cs.RemoveCounter(string(ct), amount)
	if removed > 0 {
		co.publish(rules.EventCounterRemoved, permanentID, ct, removed, controllerID)
	}
	return removed
}

func (co *CounterOperations) publish(eventType rules.EventType, permanentID string, ct CounterType, amount int, controllerID string) {
	if co.eventBus == nil {
		return
	}
	evt := rules.NewEventWithAmount(eventType, permanentID, permanentID, controllerID, amount)
	evt.Data = string(ct)
	evt.Metadata["counter_name"] = string(ct)
	evt.Metadata["counter_count"] = fmt.Sprintf("%d", amount)
	co.eventBus.Publish(evt)
}
