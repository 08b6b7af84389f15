package effects

import (
	"fmt"
	"sort"
	"sync"

	"github.com/magefree/mage-combat-go/internal/game/rules"
	"go.uber.org/zap"
)

// ReplacementManager manages all active replacement and prevention effects in a game.
//
// Key responsibilities:
// - Track all active replacement effects
// - Apply replacement effects to events in the correct order
// - Prevent effects from applying twice to the same event
// - Answer prevention-shield queries for lethal damage thresholds
type ReplacementManager struct {
	mu      sync.RWMutex
	effects map[string]ReplacementEffect
	order   []string // insertion order, used as timestamp order
	logger  *zap.Logger
}

// NewReplacementManager creates a new replacement effect manager
func NewReplacementManager(logger *zap.Logger) *ReplacementManager {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReplacementManager{
		effects: make(map[string]ReplacementEffect),
		logger:  logger,
	}
}

// AddEffect adds a replacement effect to the manager
func (rm *ReplacementManager) AddEffect(effect ReplacementEffect) {
	if effect == nil {
		rm.logger.Warn("attempted to add nil replacement effect")
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, exists := rm.effects[effect.ID()]; !exists {
		rm.order = append(rm.order, effect.ID())
	}
	rm.effects[effect.ID()] = effect

	rm.logger.Debug("added replacement effect",
		zap.String("effect_id", effect.ID()),
		zap.String("source_id", effect.SourceID()),
		zap.String("duration", string(effect.Duration())),
		zap.Bool("self_replacement", effect.IsSelfReplacement()))
}

// RemoveEffect removes a replacement effect from the manager
func (rm *ReplacementManager) RemoveEffect(effectID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.removeLocked(effectID)
}

func (rm *ReplacementManager) removeLocked(effectID string) {
	if _, ok := rm.effects[effectID]; !ok {
		return
	}
	delete(rm.effects, effectID)
	for i, id := range rm.order {
		if id == effectID {
			rm.order = append(rm.order[:i], rm.order[i+1:]...)
			break
		}
	}
	rm.logger.Debug("removed replacement effect", zap.String("effect_id", effectID))
}

// GetEffect retrieves a replacement effect by ID
func (rm *ReplacementManager) GetEffect(effectID string) (ReplacementEffect, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	effect, ok := rm.effects[effectID]
	return effect, ok
}

// GetEffects returns all active replacement effects in timestamp order
func (rm *ReplacementManager) GetEffects() []ReplacementEffect {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	effects := make([]ReplacementEffect, 0, len(rm.order))
	for _, id := range rm.order {
		effects = append(effects, rm.effects[id])
	}
	return effects
}

// ClearEffects removes all replacement effects
func (rm *ReplacementManager) ClearEffects() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.effects = make(map[string]ReplacementEffect)
	rm.order = nil

	rm.logger.Debug("cleared all replacement effects")
}

// ReplaceEvent applies all applicable replacement effects to an event, one at
// a time, until none remain. Self-replacement effects go first; among the rest
// the earliest effect wins.
//
// Returns the modified event and whether it was completely replaced (for a
// DECLARE_BLOCKER event this means the declaration is canceled; for damage it
// means all of it was prevented).
func (rm *ReplacementManager) ReplaceEvent(event rules.Event, gameID string, choosingPlayerID string) (rules.Event, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	appliedEffects := make(map[string]bool, len(event.AppliedEffects))
	for _, effectID := range event.AppliedEffects {
		appliedEffects[effectID] = true
	}

	replaced := false
	for iteration := 1; ; iteration++ {
		applicable := rm.findApplicableEffects(event, gameID, appliedEffects)
		if len(applicable) == 0 {
			break
		}

		chosen := applicable[0]
		for _, effect := range applicable {
			if effect.IsSelfReplacement() {
				chosen = effect
				break
			}
		}

		var completelyReplaced bool
		event, completelyReplaced = chosen.ReplaceEvent(event, gameID)
		appliedEffects[chosen.ID()] = true
		event.AppliedEffects = append(event.AppliedEffects, chosen.ID())

		rm.logger.Debug("applied replacement effect",
			zap.String("game_id", gameID),
			zap.String("effect_id", chosen.ID()),
			zap.String("event_type", string(event.Type)),
			zap.String("choosing_player", choosingPlayerID),
			zap.Bool("completely_replaced", completelyReplaced),
			zap.Int("iteration", iteration))

		if chosen.Duration() == DurationOneUse {
			rm.removeLocked(chosen.ID())
		} else if prevention, ok := chosen.(PreventionEffect); ok && prevention.Exhausted() {
			rm.removeLocked(chosen.ID())
		}

		if completelyReplaced {
			replaced = true
			break
		}
	}

	return event, replaced
}

// findApplicableEffects returns the effects that could apply to the event and
// haven't already been applied, in timestamp order.
func (rm *ReplacementManager) findApplicableEffects(
	event rules.Event,
	gameID string,
	appliedEffects map[string]bool,
) []ReplacementEffect {
	applicable := make([]ReplacementEffect, 0)

	for _, id := range rm.order {
		effect := rm.effects[id]
		if appliedEffects[id] {
			continue
		}
		if !effect.ChecksEventType(event.Type) {
			continue
		}
		if !effect.Applies(event, gameID) {
			continue
		}
		if !effect.HasSelfScope() && event.SourceID == effect.SourceID() {
			continue
		}
		applicable = append(applicable, effect)
	}

	return applicable
}

// PreventionShield reports how much damage dealt by sourceID to targetID the
// active prevention effects would absorb. unlimited is true when some effect
// prevents all of it.
func (rm *ReplacementManager) PreventionShield(targetID, sourceID string, combat bool) (shield int, unlimited bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	probe := rules.Event{Type: rules.EventDamagePermanent, TargetID: targetID, SourceID: sourceID, Flag: combat, Amount: 1}
	for _, id := range rm.order {
		prevention, ok := rm.effects[id].(PreventionEffect)
		if !ok || !prevention.Covers(targetID, sourceID) || !prevention.Applies(probe, "") {
			continue
		}
		if u, ok := prevention.(interface{ Unlimited() bool }); ok && u.Unlimited() {
			return 0, true
		}
		shield += prevention.GetShield()
	}
	return shield, false
}

// HasApplicableEffects checks if any replacement effect cares about the event type
func (rm *ReplacementManager) HasApplicableEffects(eventType rules.EventType) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	for _, effect := range rm.effects {
		if effect.ChecksEventType(eventType) {
			return true
		}
	}
	return false
}

// Copy returns a manager holding the same effects. Effects are shared, so the
// copy is only suitable for read-only views.
func (rm *ReplacementManager) Copy() *ReplacementManager {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	out := NewReplacementManager(rm.logger)
	for _, id := range rm.order {
		out.effects[id] = rm.effects[id]
	}
	out.order = append(out.order, rm.order...)
	return out
}

// Stats returns statistics about the replacement manager
func (rm *ReplacementManager) Stats() ReplacementManagerStats {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	stats := ReplacementManagerStats{
		TotalEffects: len(rm.effects),
		ByDuration:   make(map[Duration]int),
	}

	for _, effect := range rm.effects {
		if effect.IsSelfReplacement() {
			stats.SelfReplacementCount++
		}
		if _, ok := effect.(PreventionEffect); ok {
			stats.PreventionEffectCount++
		}
		stats.ByDuration[effect.Duration()]++
	}

	return stats
}

// ReplacementManagerStats contains statistics about the replacement manager
type ReplacementManagerStats struct {
	TotalEffects          int
	SelfReplacementCount  int
	PreventionEffectCount int
	ByDuration            map[Duration]int
}

func (s ReplacementManagerStats) String() string {
	durations := make([]string, 0, len(s.ByDuration))
	for d := range s.ByDuration {
		durations = append(durations, string(d))
	}
	sort.Strings(durations)
	return fmt.Sprintf("ReplacementManager[total=%d, self=%d, prevention=%d, durations=%v]",
		s.TotalEffects, s.SelfReplacementCount, s.PreventionEffectCount, durations)
}
