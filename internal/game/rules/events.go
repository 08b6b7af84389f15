package rules

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType indicates the category of a rules event.
type EventType string

const (
	// Combat step events
	EventBeginCombatStep          EventType = "BEGIN_COMBAT_STEP"
	EventDeclareAttackersStepPre  EventType = "DECLARE_ATTACKERS_STEP_PRE"
	EventDeclareBlockersStepPre   EventType = "DECLARE_BLOCKERS_STEP_PRE"
	EventCombatDamageStepPre      EventType = "COMBAT_DAMAGE_STEP_PRE"
	EventEndCombatStepPre         EventType = "END_COMBAT_STEP_PRE"
	EventEndCombatStep            EventType = "END_COMBAT_STEP"
	EventCombatDamageStepPriority EventType = "COMBAT_DAMAGE_STEP_PRIORITY"

	// Declaration events
	EventDeclaredAttackers EventType = "DECLARED_ATTACKERS"
	EventAttackerDeclared  EventType = "ATTACKER_DECLARED"
	EventDefenderAttacked  EventType = "DEFENDER_ATTACKED"
	EventDeclaredBlockers  EventType = "DECLARED_BLOCKERS"
	EventDeclareBlocker    EventType = "DECLARE_BLOCKER" // cancelable
	EventBlockerDeclared   EventType = "BLOCKER_DECLARED"
	EventCreatureBlocked   EventType = "CREATURE_BLOCKED"
	EventCreatureBlocks    EventType = "CREATURE_BLOCKS"
	EventUnblockedAttacker EventType = "UNBLOCKED_ATTACKER"
	EventRemovedFromCombat EventType = "REMOVED_FROM_COMBAT"
	EventDefenderChanged   EventType = "DEFENDER_CHANGED"

	// Damage events
	EventDamagePlayer        EventType = "DAMAGE_PLAYER"
	EventDamagedPlayer       EventType = "DAMAGED_PLAYER"
	EventDamagePermanent     EventType = "DAMAGE_PERMANENT"
	EventDamagedPermanent    EventType = "DAMAGED_PERMANENT"
	EventCombatDamageMarked  EventType = "COMBAT_DAMAGE_MARKED"
	EventCombatDamageApplied EventType = "COMBAT_DAMAGE_APPLIED"
	EventPreventedDamage     EventType = "PREVENTED_DAMAGE"
	EventLostLife            EventType = "LOST_LIFE"

	// Permanent events
	EventDestroyedPermanent EventType = "DESTROYED_PERMANENT"
	EventPermanentDies      EventType = "PERMANENT_DIES"
	EventCounterAdded       EventType = "COUNTER_ADDED"
	EventCounterRemoved     EventType = "COUNTER_REMOVED"
	EventBandBroken         EventType = "BAND_BROKEN"
)

// IsDamage reports whether the event type describes damage being dealt.
func (et EventType) IsDamage() bool {
	switch et {
	case EventDamagePlayer, EventDamagedPlayer, EventDamagePermanent, EventDamagedPermanent,
		EventCombatDamageMarked:
		return true
	}
	return false
}

// Event represents a state change that other subsystems may react to.
type Event struct {
	Type           EventType
	ID             string            // Unique event ID
	TargetID       string            // ID of the target (card, player, etc.)
	SourceID       string            // ID of the source object
	Controller     string            // Player ID of the controller
	PlayerID       string            // Player ID (often same as Controller, but can differ)
	Amount         int               // Numeric value (damage, counters, etc.)
	Flag           bool              // Combat damage flag
	Data           string            // Additional string data
	Timestamp      time.Time         // When the event occurred
	Metadata       map[string]string // Additional metadata
	AppliedEffects []string          // IDs of replacement effects already applied
}

// Listener defines a callback that reacts to incoming events.
type Listener func(Event)

// TypedListener defines a callback that reacts to a specific event type.
type TypedListener struct {
	Handle    int
	EventType EventType
	Callback  func(Event)
}

// EventBus provides a synchronous publish/subscribe implementation with type filtering.
type EventBus struct {
	mu             sync.RWMutex
	listeners      map[int]Listener
	typedListeners map[EventType][]TypedListener
	nextHandle     int
}

// NewEventBus constructs a fresh event bus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType][]TypedListener),
	}
}

// Subscribe registers a listener for all events and returns a handle.
func (bus *EventBus) Subscribe(listener Listener) int {
	if listener == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.listeners[handle] = listener
	return handle
}

// SubscribeTyped registers a listener for a specific event type.
func (bus *EventBus) SubscribeTyped(eventType EventType, callback func(Event)) int {
	if callback == nil {
		return -1
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	handle := bus.nextHandle
	bus.nextHandle++
	bus.typedListeners[eventType] = append(bus.typedListeners[eventType], TypedListener{
		Handle:    handle,
		EventType: eventType,
		Callback:  callback,
	})
	return handle
}

// Unsubscribe removes the listener identified by the provided handle,
// whether it was registered with Subscribe or SubscribeTyped.
func (bus *EventBus) Unsubscribe(handle int) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.listeners, handle)
	for eventType, listeners := range bus.typedListeners {
		for i := len(listeners) - 1; i >= 0; i-- {
			if listeners[i].Handle == handle {
				bus.typedListeners[eventType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers the event to all registered listeners synchronously.
// Listeners must not subscribe or unsubscribe from inside a callback.
func (bus *EventBus) Publish(event Event) {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	for _, listener := range bus.listeners {
		listener(event)
	}
	for _, listener := range bus.typedListeners[event.Type] {
		listener.Callback(event)
	}
}

// PublishBatch publishes multiple events in order.
func (bus *EventBus) PublishBatch(events []Event) {
	for _, event := range events {
		bus.Publish(event)
	}
}

// NewEvent creates a new event with common fields populated.
func NewEvent(eventType EventType, targetID, sourceID, controllerID string) Event {
	return Event{
		Type:           eventType,
		ID:             uuid.NewString(),
		TargetID:       targetID,
		SourceID:       sourceID,
		Controller:     controllerID,
		PlayerID:       controllerID,
		Timestamp:      time.Now(),
		Metadata:       make(map[string]string),
		AppliedEffects: make([]string, 0),
	}
}

// NewEventWithAmount creates a new event with an amount value.
func NewEventWithAmount(eventType EventType, targetID, sourceID, controllerID string, amount int) Event {
	evt := NewEvent(eventType, targetID, sourceID, controllerID)
	evt.Amount = amount
	return evt
}

// NewCombatDamageEvent creates a damage event flagged as combat damage.
func NewCombatDamageEvent(eventType EventType, targetID, sourceID, controllerID string, amount int) Event {
	evt := NewEventWithAmount(eventType, targetID, sourceID, controllerID, amount)
	evt.Flag = true
	return evt
}
