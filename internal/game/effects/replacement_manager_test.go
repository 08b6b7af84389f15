package effects

import (
	"testing"

	"github.com/magefree/mage-combat-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestReplacementManager_AddRemoveEffect(t *testing.T) {
	rm := NewReplacementManager(zaptest.NewLogger(t))

	effect := NewDamagePreventionEffect("source1", "target1", "", 5, DurationEndOfTurn)
	rm.AddEffect(effect)

	retrieved, ok := rm.GetEffect(effect.ID())
	require.True(t, ok)
	assert.Equal(t, effect.ID(), retrieved.ID())

	rm.RemoveEffect(effect.ID())
	_, ok = rm.GetEffect(effect.ID())
	assert.False(t, ok)
	assert.Empty(t, rm.GetEffects())
}

func TestReplacementManager_GetEffectsInTimestampOrder(t *testing.T) {
	rm := NewReplacementManager(zap.NewNop())

	first := NewDamagePreventionEffect("source1", "target1", "", 5, DurationEndOfTurn)
	second := NewDamageDoublingEffect("source2", "", "", "", DurationPermanent)
	rm.AddEffect(first)
	rm.AddEffect(second)

	effects := rm.GetEffects()
	require.Len(t, effects, 2)
	assert.Equal(t, first.ID(), effects[0].ID())
	assert.Equal(t, second.ID(), effects[1].ID())

	rm.ClearEffects()
	assert.Empty(t, rm.GetEffects())
}

func TestReplacementManager_ReplaceEvent_PreventAll(t *testing.T) {
	rm := NewReplacementManager(zaptest.NewLogger(t))

	effect := NewDamagePreventionEffect("shield", "target1", "", 0, DurationPermanent)
	rm.AddEffect(effect)

	event := rules.NewEventWithAmount(rules.EventDamagePermanent, "target1", "attacker1", "player1", 5)
	modified, replaced := rm.ReplaceEvent(event, "game1", "player1")

	assert.True(t, replaced)
	assert.Equal(t, 0, modified.Amount)
	require.Len(t, modified.AppliedEffects, 1)
	assert.Equal(t, effect.ID(), modified.AppliedEffects[0])
}

func TestReplacementManager_ReplaceEvent_EarliestEffectFirst(t *testing.T) {
	rm := NewReplacementManager(zaptest.NewLogger(t))

	// Doubling before a 3-point shield: 4 -> 8 -> 5.
	rm.AddEffect(NewDamageDoublingEffect("doubler", "", "target1", "", DurationPermanent))
	rm.AddEffect(NewDamagePreventionEffect("shield", "target1", "", 3, DurationEndOfTurn))

	event := rules.NewEventWithAmount(rules.EventDamagePermanent, "target1", "attacker1", "player1", 4)
	modified, replaced := rm.ReplaceEvent(event, "game1", "player2")

	assert.False(t, replaced)
	assert.Equal(t, 5, modified.Amount)
	assert.Len(t, modified.AppliedEffects, 2)
}

func TestReplacementManager_ExhaustedShieldIsRemoved(t *testing.T) {
	rm := NewReplacementManager(zaptest.NewLogger(t))

	shield := NewDamagePreventionEffect("shield", "target1", "", 2, DurationEndOfTurn)
	rm.AddEffect(shield)

	event := rules.NewEventWithAmount(rules.EventDamagePermanent, "target1", "attacker1", "player1", 5)
	modified, _ := rm.ReplaceEvent(event, "game1", "player2")
	assert.Equal(t, 3, modified.Amount)

	_, ok := rm.GetEffect(shield.ID())
	assert.False(t, ok, "exhausted shield should be removed")
}

func TestReplacementManager_OneUseEffectIsRemoved(t *testing.T) {
	rm := NewReplacementManager(zaptest.NewLogger(t))

	veto := NewBlockRestrictionEffect("trap", "blocker1", "", "", DurationOneUse)
	rm.AddEffect(veto)

	event := rules.NewEvent(rules.EventDeclareBlocker, "attacker1", "blocker1", "player2")
	_, canceled := rm.ReplaceEvent(event, "game1", "player2")
	assert.True(t, canceled)

	_, canceled = rm.ReplaceEvent(rules.NewEvent(rules.EventDeclareBlocker, "attacker1", "blocker1", "player2"), "game1", "player2")
	assert.False(t, canceled, "one-use veto applies once")
}

func TestReplacementManager_ReplaceEvent_PreventDoubleApplication(t *testing.T) {
	rm := NewReplacementManager(zaptest.NewLogger(t))

	effect := NewDamageDoublingEffect("source1", "", "player1", "", DurationPermanent)
	rm.AddEffect(effect)

	event := rules.NewEventWithAmount(rules.EventDamagePlayer, "player1", "attacker1", "player2", 4)
	event.AppliedEffects = []string{effect.ID()}

	modified, _ := rm.ReplaceEvent(event, "game1", "player1")
	assert.Equal(t, 4, modified.Amount)
	assert.Len(t, modified.AppliedEffects, 1)
}

func TestReplacementManager_SelfReplacementFirst(t *testing.T) {
	rm := NewReplacementManager(zaptest.NewLogger(t))

	rm.AddEffect(NewDamagePreventionEffect("shield", "target1", "", 3, DurationEndOfTurn))
	self := &tripleDamageEffect{BaseReplacementEffect: NewBaseReplacementEffect("self", DurationOneUse, true, false)}
	rm.AddEffect(self)

	// Self-replacement applies first (x3 = 6), then the shield absorbs 3.
	event := rules.NewEventWithAmount(rules.EventDamagePermanent, "target1", "attacker1", "player1", 2)
	modified, _ := rm.ReplaceEvent(event, "game1", "player1")

	assert.Equal(t, 3, modified.Amount)
	require.Len(t, modified.AppliedEffects, 2)
	assert.Equal(t, self.ID(), modified.AppliedEffects[0])
}

func TestReplacementManager_SelfScopeCheck(t *testing.T) {
	rm := NewReplacementManager(zaptest.NewLogger(t))

	// Prevention without self-scope does not apply to damage from its own source.
	rm.AddEffect(NewDamagePreventionEffect("attacker1", "", "", 0, DurationPermanent))

	event := rules.NewEventWithAmount(rules.EventDamagePermanent, "target1", "attacker1", "player1", 2)
	modified, replaced := rm.ReplaceEvent(event, "game1", "player1")

	assert.False(t, replaced)
	assert.Empty(t, modified.AppliedEffects)
}

func TestReplacementManager_PreventionShield(t *testing.T) {
	rm := NewReplacementManager(zaptest.NewLogger(t))

	rm.AddEffect(NewDamagePreventionEffect("s1", "blocker1", "", 2, DurationEndOfTurn))
	rm.AddEffect(NewDamagePreventionEffect("s2", "blocker1", "attacker1", 1, DurationEndOfTurn))

	shield, unlimited := rm.PreventionShield("blocker1", "attacker1", true)
	assert.False(t, unlimited)
	assert.Equal(t, 3, shield)

	shield, _ = rm.PreventionShield("blocker1", "attacker2", true)
	assert.Equal(t, 2, shield)

	rm.AddEffect(NewCombatDamagePreventionEffect("fog", "", 0, DurationEndOfTurn))
	_, unlimited = rm.PreventionShield("blocker1", "attacker2", true)
	assert.True(t, unlimited)
	_, unlimited = rm.PreventionShield("blocker1", "attacker2", false)
	assert.False(t, unlimited, "fog only covers combat damage")
}

func TestReplacementManager_Cleanup(t *testing.T) {
	rm := NewReplacementManager(zaptest.NewLogger(t))

	rm.AddEffect(NewDamagePreventionEffect("a", "", "", 0, DurationEndOfCombat))
	rm.AddEffect(NewDamagePreventionEffect("b", "", "", 0, DurationEndOfTurn))
	rm.AddEffect(NewDamagePreventionEffect("c", "", "", 0, DurationWhileOnBattlefield))
	rm.AddEffect(NewDamagePreventionEffect("d", "", "", 0, DurationPermanent))

	assert.Equal(t, 1, rm.CleanupEndOfCombat())
	assert.Equal(t, 0, rm.CleanupSourceLeftBattlefield(""))
	assert.Equal(t, 1, rm.CleanupSourceLeftBattlefield("c"))
	assert.Equal(t, 1, rm.CleanupEndOfTurn())

	stats := rm.Stats()
	assert.Equal(t, 1, stats.TotalEffects)
	assert.Equal(t, 1, stats.PreventionEffectCount)
	assert.Equal(t, 1, stats.ByDuration[DurationPermanent])
}

type tripleDamageEffect struct {
	*BaseReplacementEffect
}

func (e *tripleDamageEffect) ChecksEventType(eventType rules.EventType) bool {
	return eventType == rules.EventDamagePermanent
}

func (e *tripleDamageEffect) Applies(event rules.Event, gameID string) bool {
	return true
}

func (e *tripleDamageEffect) ReplaceEvent(event rules.Event, gameID string) (rules.Event, bool) {
	event.Amount *= 3
	return event, false
}
