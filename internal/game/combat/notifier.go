package combat

import (
	"github.com/magefree/mage-combat-go/internal/game/effects"
	"github.com/magefree/mage-combat-go/internal/game/rules"
)

// EventNotifier fires events on the game's event bus and runs cancelable
// events through the replacement manager.
type EventNotifier struct {
	gameID       string
	bus          *rules.EventBus
	replacements *effects.ReplacementManager
}

// NewEventNotifier creates a notifier. Either collaborator may be nil.
func NewEventNotifier(gameID string, bus *rules.EventBus, replacements *effects.ReplacementManager) *EventNotifier {
	return &EventNotifier{
		gameID:       gameID,
		bus:          bus,
		replacements: replacements,
	}
}

func (n *EventNotifier) Fire(event rules.Event) {
	if n.bus != nil {
		n.bus.Publish(event)
	}
}

// Replace reports whether a replacement effect canceled the event.
func (n *EventNotifier) Replace(event rules.Event) bool {
	if n.replacements == nil {
		return false
	}
	_, replaced := n.replacements.ReplaceEvent(event, n.gameID, event.PlayerID)
	return replaced
}
