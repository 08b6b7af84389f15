package effects

import "go.uber.org/zap"

// Duration represents how long an effect lasts
type Duration string

const (
	// DurationOneUse - Effect is removed after it applies once
	DurationOneUse Duration = "OneUse"

	// DurationEndOfTurn - Effect expires at end of turn
	DurationEndOfTurn Duration = "EndOfTurn"

	// DurationEndOfCombat - Effect expires at end of combat
	DurationEndOfCombat Duration = "EndOfCombat"

	// DurationWhileOnBattlefield - Effect lasts while source is on battlefield
	DurationWhileOnBattlefield Duration = "WhileOnBattlefield"

	// DurationPermanent - Effect lasts indefinitely
	DurationPermanent Duration = "Permanent"
)

// ParseDuration maps a configured duration name to a Duration. Unknown names
// fall back to DurationEndOfTurn.
func ParseDuration(name string) Duration {
	switch Duration(name) {
	case DurationOneUse, DurationEndOfTurn, DurationEndOfCombat, DurationWhileOnBattlefield, DurationPermanent:
		return Duration(name)
	}
	return DurationEndOfTurn
}

// CleanupEndOfCombat removes effects that expire at end of combat
func (rm *ReplacementManager) CleanupEndOfCombat() int {
	return rm.removeWhere("end_of_combat", func(e ReplacementEffect) bool {
		return e.Duration() == DurationEndOfCombat
	})
}

// CleanupEndOfTurn removes effects that expire at end of turn or end of combat
func (rm *ReplacementManager) CleanupEndOfTurn() int {
	return rm.removeWhere("end_of_turn", func(e ReplacementEffect) bool {
		return e.Duration() == DurationEndOfTurn || e.Duration() == DurationEndOfCombat
	})
}

// CleanupSourceLeftBattlefield removes effects whose source left the battlefield
func (rm *ReplacementManager) CleanupSourceLeftBattlefield(sourceID string) int {
	if sourceID == "" {
		return 0
	}
	return rm.removeWhere("source_left", func(e ReplacementEffect) bool {
		return e.SourceID() == sourceID && e.Duration() == DurationWhileOnBattlefield
	})
}

func (rm *ReplacementManager) removeWhere(reason string, expired func(ReplacementEffect) bool) int {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	var toRemove []string
	for _, id := range rm.order {
		if expired(rm.effects[id]) {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		rm.removeLocked(id)
	}

	if len(toRemove) > 0 {
		rm.logger.Debug("cleaned up expired replacement effects",
			zap.String("reason", reason),
			zap.Int("removed", len(toRemove)))
	}
	return len(toRemove)
}
