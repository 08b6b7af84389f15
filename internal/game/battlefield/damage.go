package battlefield

import (
	"fmt"

	"github.com/magefree/mage-combat-go/internal/game/counters"
	"github.com/magefree/mage-combat-go/internal/game/rules"
	"github.com/magefree/mage-combat-go/internal/game/saturate"
	"go.uber.org/zap"
)

// LethalDamage returns how much damage from sourceID the permanent needs to
// be destroyed, net of damage already applied or marked and of prevention
// shields that would absorb damage from that source. It is recomputed on
// every call.
//
// Creatures use toughness, planeswalkers loyalty and battles defense; a
// permanent that is several of these uses the smallest. A deathtouch source
// needs only 1 against a creature.
func (b *Battlefield) LethalDamage(id, sourceID string) int {
	p, ok := b.permanents[id]
	if !ok {
		return 0
	}
	marked := p.markedTotal()

	lethal := saturate.MaxInt
	if p.Is(TypeCreature) {
		lethal = saturate.Sub(saturate.Sub(b.Toughness(id), p.Damage), marked)
	}
	if p.Is(TypePlaneswalker) {
		lethal = min(lethal, saturate.Sub(p.Counters.Count(counters.CounterTypeLoyalty), marked))
	}
	if p.Is(TypeBattle) {
		lethal = min(lethal, saturate.Sub(p.Counters.Count(counters.CounterTypeDefense), marked))
	}
	if lethal == saturate.MaxInt {
		// not a damageable permanent type
		return 0
	}
	lethal = max(lethal, 0)

	if sourceID != "" && p.Is(TypeCreature) && b.HasAbility(sourceID, AbilityDeathtouch) {
		lethal = min(lethal, 1)
	}

	if lethal > 0 && b.replacements != nil {
		shield, unlimited := b.replacements.PreventionShield(id, sourceID, true)
		if unlimited {
			return saturate.MaxInt
		}
		lethal = saturate.Add(lethal, shield)
	}
	return lethal
}

// MarkDamage marks damage from sourceID on a permanent after running the
// damage through replacement and prevention effects. The damage stays marked
// until ApplyDamage. It returns the amount actually marked.
func (b *Battlefield) MarkDamage(id string, amount int, sourceID string, combat bool) int {
	p, ok := b.permanents[id]
	if !ok || amount <= 0 {
		return 0
	}

	event := rules.NewEventWithAmount(rules.EventDamagePermanent, id, sourceID, b.ControllerOf(sourceID), amount)
	event.Flag = combat
	if b.replacements != nil {
		event, _ = b.replacements.ReplaceEvent(event, b.gameID, p.ControllerID)
	}
	if prevented := amount - event.Amount; prevented > 0 {
		b.publish(b.damageEvent(rules.EventPreventedDamage, id, sourceID, prevented, combat))
	}
	if event.Amount <= 0 {
		return 0
	}

	p.Marked = append(p.Marked, DamageMark{
		SourceID:   sourceID,
		Amount:     event.Amount,
		Combat:     combat,
		Deathtouch: b.HasAbility(sourceID, AbilityDeathtouch),
	})

	b.logger.Debug("damage marked",
		zap.String("game_id", b.gameID),
		zap.String("permanent_id", id),
		zap.String("source_id", sourceID),
		zap.Int("amount", event.Amount),
		zap.Bool("combat", combat))

	if combat {
		b.publish(b.damageEvent(rules.EventCombatDamageMarked, id, sourceID, event.Amount, combat))
	}
	return event.Amount
}

// MarkedDamage returns the damage currently marked on a permanent.
func (b *Battlefield) MarkedDamage(id string) int {
	if p, ok := b.permanents[id]; ok {
		return p.markedTotal()
	}
	return 0
}

// DamagePlayer deals damage to a player immediately. It returns the amount
// actually dealt after replacement and prevention effects.
func (b *Battlefield) DamagePlayer(playerID string, amount int, sourceID string, combat bool) int {
	player, ok := b.players[playerID]
	if !ok || amount <= 0 {
		return 0
	}

	event := rules.NewEventWithAmount(rules.EventDamagePlayer, playerID, sourceID, b.ControllerOf(sourceID), amount)
	event.Flag = combat
	if b.replacements != nil {
		event, _ = b.replacements.ReplaceEvent(event, b.gameID, playerID)
	}
	if prevented := amount - event.Amount; prevented > 0 {
		b.publish(b.damageEvent(rules.EventPreventedDamage, playerID, sourceID, prevented, combat))
	}
	if event.Amount <= 0 {
		return 0
	}

	player.Life = saturate.Sub(player.Life, event.Amount)

	b.logger.Debug("player damaged",
		zap.String("game_id", b.gameID),
		zap.String("player_id", playerID),
		zap.String("source_id", sourceID),
		zap.Int("amount", event.Amount),
		zap.Int("life", player.Life))

	b.publish(b.damageEvent(rules.EventDamagedPlayer, playerID, sourceID, event.Amount, combat))
	lost := rules.NewEventWithAmount(rules.EventLostLife, playerID, sourceID, playerID, event.Amount)
	lost.Flag = combat
	b.publish(lost)
	return event.Amount
}

// ApplyDamage converts the damage marked on a permanent into game state:
// creatures accumulate damage, planeswalkers lose loyalty and battles lose
// defense counters. It returns the total applied.
func (b *Battlefield) ApplyDamage(id string) int {
	p, ok := b.permanents[id]
	if !ok || len(p.Marked) == 0 {
		return 0
	}
	marks := p.Marked
	p.Marked = nil

	total := 0
	for _, m := range marks {
		if p.Is(TypeCreature) {
			if p.DamageSources == nil {
				p.DamageSources = make(map[string]int)
			}
			p.Damage = saturate.Add(p.Damage, m.Amount)
			p.DamageSources[m.SourceID] = saturate.Add(p.DamageSources[m.SourceID], m.Amount)
			if m.Deathtouch {
				p.deathtouched = true
			}
		}
		if p.Is(TypePlaneswalker) {
			b.counterOps.RemoveCounters(p.Counters, id, counters.CounterTypeLoyalty, m.Amount, p.ControllerID)
		}
		if p.Is(TypeBattle) {
			b.counterOps.RemoveCounters(p.Counters, id, counters.CounterTypeDefense, m.Amount, p.ControllerID)
		}
		total = saturate.Add(total, m.Amount)
		b.publish(b.damageEvent(rules.EventDamagedPermanent, id, m.SourceID, m.Amount, m.Combat))
	}

	b.logger.Debug("damage applied",
		zap.String("game_id", b.gameID),
		zap.String("permanent_id", id),
		zap.Int("amount", total),
		zap.Int("damage", p.Damage))
	return total
}

// ClearDamage removes all damage from permanents, as at cleanup.
func (b *Battlefield) ClearDamage() {
	for _, p := range b.permanents {
		p.Damage = 0
		p.DamageSources = nil
		p.Marked = nil
		p.deathtouched = false
	}
}

// CheckStateBasedActions destroys creatures with lethal damage or toughness 0
// or less, planeswalkers with no loyalty and battles with no defense, and
// marks players at 0 or less life as having lost. It returns the IDs of the
// permanents that died, in battlefield order.
func (b *Battlefield) CheckStateBasedActions() []string {
	for _, id := range b.playerOrder {
		player := b.players[id]
		if !player.Lost && player.Life <= 0 {
			player.Lost = true
			b.logger.Info("player lost due to life",
				zap.String("game_id", b.gameID),
				zap.String("player_id", player.ID),
				zap.Int("life", player.Life))
		}
	}

	dying := make([]string, 0)
	for _, id := range b.order {
		p := b.permanents[id]
		if reason := b.deathReason(p); reason != "" {
			dying = append(dying, id)
			b.logger.Info("permanent dies",
				zap.String("game_id", b.gameID),
				zap.String("permanent_id", id),
				zap.String("name", p.Name),
				zap.String("reason", reason))
		}
	}

	for _, id := range dying {
		p := b.permanents[id]
		destroyed := rules.NewEvent(rules.EventDestroyedPermanent, id, id, p.ControllerID)
		b.publish(destroyed)
		dies := rules.NewEvent(rules.EventPermanentDies, id, id, p.ControllerID)
		dies.Metadata["creature"] = fmt.Sprintf("%t", p.Is(TypeCreature))
		for _, src := range sortedKeys(p.DamageSources) {
			dies.Metadata["damaged_by:"+src] = fmt.Sprintf("%d", p.DamageSources[src])
		}
		b.RemovePermanent(id)
		b.publish(dies)
	}
	return dying
}

func (b *Battlefield) deathReason(p *Permanent) string {
	if p.Is(TypeCreature) {
		toughness := b.Toughness(p.ID)
		if toughness <= 0 {
			return "toughness <= 0"
		}
		if !p.Abilities[AbilityIndestructible] {
			if p.Damage >= toughness {
				return "lethal damage"
			}
			if p.deathtouched && p.Damage > 0 {
				return "deathtouch"
			}
		}
	}
	if p.Is(TypePlaneswalker) && p.Counters.Count(counters.CounterTypeLoyalty) <= 0 {
		return "no loyalty"
	}
	if p.Is(TypeBattle) && p.Counters.Count(counters.CounterTypeDefense) <= 0 {
		return "no defense"
	}
	return ""
}

func (b *Battlefield) damageEvent(eventType rules.EventType, targetID, sourceID string, amount int, combat bool) rules.Event {
	evt := rules.NewEventWithAmount(eventType, targetID, sourceID, b.ControllerOf(sourceID), amount)
	evt.Flag = combat
	return evt
}

func (b *Battlefield) publish(event rules.Event) {
	if b.eventBus != nil {
		b.eventBus.Publish(event)
	}
}
