package combat

import "github.com/magefree/mage-combat-go/internal/game/battlefield"

// AttackerAssignsCombatDamage reports whether the attacking player assigns
// the blockers' combat damage: some attacker in the group has banding, or a
// creature with "bands with other [quality]" attacks alongside another
// creature of that quality.
func (g *Group) AttackerAssignsCombatDamage() bool {
	for _, attackerID := range g.attackers {
		if g.combat.lookup.HasAbility(attackerID, battlefield.AbilityBanding) {
			return true
		}
	}
	return g.combat.bandsWithOther(g.attackers)
}

// DefenderAssignsCombatDamage reports whether the defending player assigns
// the attackers' combat damage: some blocker has banding, a "bands with
// other" pair is blocking, or the defending player controls a permanent that
// lets them assign combat damage of creatures attacking them.
func (g *Group) DefenderAssignsCombatDamage() bool {
	lookup := g.combat.lookup
	for _, blockerID := range g.blockers {
		if lookup.HasAbility(blockerID, battlefield.AbilityBanding) {
			return true
		}
	}
	if g.combat.bandsWithOther(g.blockers) {
		return true
	}
	return lookup.ControlsAbility(g.defendingPlayerID, battlefield.AbilityControllerAssignsDamageToBlockers)
}

// bandsWithOther reports whether one of the creatures has a "bands with
// other [quality]" ability, has that quality itself and another of the
// creatures shares it.
func (c *Combat) bandsWithOther(creatureIDs []string) bool {
	for _, id := range creatureIDs {
		for _, bw := range c.lookup.BandsWith(id) {
			if !c.lookup.Matches(id, bw) {
				continue
			}
			for _, otherID := range creatureIDs {
				if otherID != id && c.lookup.Matches(otherID, bw) {
					return true
				}
			}
		}
	}
	return false
}
