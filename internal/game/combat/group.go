package combat

import (
	"github.com/magefree/mage-combat-go/internal/game/battlefield"
	"github.com/magefree/mage-combat-go/internal/game/rules"
	"go.uber.org/zap"
)

// Group is one attacker or band of attackers, what it attacks and the
// creatures blocking it.
//
// blocked is true whenever blockers is non-empty. A group whose blockers were
// all removed after blocks were declared is no longer blocked but remembers
// it in blockerRemoved: such an attacker deals combat damage only if it has
// trample.
type Group struct {
	combat *Combat

	attackers          []string
	formerAttackers    []string
	blockers           []string
	blockerControllers map[string]string
	blocked            bool
	blockerRemoved     bool
	defender           Defender
	defendingPlayerID  string
}

func newGroup(c *Combat, defender Defender, defendingPlayerID string) *Group {
	return &Group{
		combat:             c,
		blockerControllers: make(map[string]string),
		defender:           defender,
		defendingPlayerID:  defendingPlayerID,
	}
}

// Attackers returns the attacking creatures in declaration order.
func (g *Group) Attackers() []string { return append([]string(nil), g.attackers...) }

// FormerAttackers returns creatures that attacked with this group but were
// removed from combat.
func (g *Group) FormerAttackers() []string { return append([]string(nil), g.formerAttackers...) }

// Blockers returns the blocking creatures in declaration order.
func (g *Group) Blockers() []string { return append([]string(nil), g.blockers...) }

// BlockerController returns the player who declared the block.
func (g *Group) BlockerController(blockerID string) string { return g.blockerControllers[blockerID] }

func (g *Group) Blocked() bool { return g.blocked }
func (g *Group) Defender() Defender { return g.defender }
func (g *Group) DefendingPlayerID() string { return g.defendingPlayerID }
func (g *Group) DefenderIsPermanent() bool { return g.defender.IsPermanent() }
func (g *Group) HasAttacker(id string) bool { return contains(g.attackers, id) }
func (g *Group) HasBlocker(id string) bool { return contains(g.blockers, id) }
func (g *Group) BlockersWereRemoved() bool { return g.blockerRemoved }

// HasFirstOrDoubleStrike reports whether any attacker or blocker in the group
// has first strike or double strike.
func (g *Group) HasFirstOrDoubleStrike() bool {
	lookup := g.combat.lookup
	for _, id := range concat(g.attackers, g.blockers) {
		if lookup.HasAbility(id, battlefield.AbilityFirstStrike) || lookup.HasAbility(id, battlefield.AbilityDoubleStrike) {
			return true
		}
	}
	return false
}

// CanBlock reports whether blockerID may block this group: its controller
// must be the defending player and it must be able to block every attacker.
func (g *Group) CanBlock(blockerID string) bool {
	lookup := g.combat.lookup
	if lookup.ControllerOf(blockerID) != g.defendingPlayerID {
		return false
	}
	for _, attackerID := range g.attackers {
		if !lookup.CanBlock(blockerID, attackerID) {
			return false
		}
	}
	return true
}

// AddBlocker declares blockerID as blocking this group. Each attacker gets a
// cancelable DECLARE_BLOCKER event; if any is canceled the block doesn't
// happen and AddBlocker returns false.
func (g *Group) AddBlocker(blockerID, playerID string) bool {
	for _, attackerID := range g.attackers {
		event := rules.NewEvent(rules.EventDeclareBlocker, attackerID, blockerID, playerID)
		if g.combat.notifier.Replace(event) {
			g.combat.logger.Debug("block canceled",
				zap.String("game_id", g.combat.gameID),
				zap.String("blocker_id", blockerID),
				zap.String("attacker_id", attackerID))
			return false
		}
	}
	return g.AddBlockerToGroup(blockerID, playerID)
}

// AddBlockerToGroup adds a blocker without any notification, for creatures
// put onto the battlefield blocking. It returns false if the blocker is gone.
func (g *Group) AddBlockerToGroup(blockerID, playerID string) bool {
	c := g.combat
	if blockerID == "" || !c.lookup.Exists(blockerID) || g.HasBlocker(blockerID) {
		return false
	}
	c.lookup.SetBlocking(blockerID, c.lookup.Blocking(blockerID)+1)
	g.blockers = append(g.blockers, blockerID)
	g.SetBlocked(true)
	g.blockerRemoved = false
	g.blockerControllers[blockerID] = playerID
	c.indexAdd(blockerID, g)

	c.logger.Debug("blocker added",
		zap.String("game_id", c.gameID),
		zap.String("blocker_id", blockerID),
		zap.Strings("attackers", g.attackers))
	return true
}

// Remove takes a creature out of the group. An attacker is kept in
// FormerAttackers; a blocker is dropped, and the group stops being blocked
// once its last blocker is gone.
func (g *Group) Remove(creatureID string) bool {
	if i := indexOf(g.attackers, creatureID); i >= 0 {
		g.attackers = append(g.attackers[:i], g.attackers[i+1:]...)
		g.formerAttackers = append(g.formerAttackers, creatureID)
		return true
	}
	if i := indexOf(g.blockers, creatureID); i >= 0 {
		g.blockers = append(g.blockers[:i], g.blockers[i+1:]...)
		delete(g.blockerControllers, creatureID)
		g.combat.indexRemove(creatureID, g)
		if len(g.blockers) == 0 {
			g.blocked = false
			g.blockerRemoved = true
		}
		return true
	}
	return false
}

// discardBlocker undoes a block during declaration. Unlike Remove the attacker
// simply counts as unblocked.
func (g *Group) discardBlocker(blockerID string) bool {
	i := indexOf(g.blockers, blockerID)
	if i < 0 {
		return false
	}
	g.blockers = append(g.blockers[:i], g.blockers[i+1:]...)
	delete(g.blockerControllers, blockerID)
	g.combat.indexRemove(blockerID, g)
	if len(g.blockers) == 0 {
		g.blocked = false
	}
	return true
}

// RemoveAttackedPermanent clears the defender if it is the given permanent.
// The group stays in combat.
func (g *Group) RemoveAttackedPermanent(permanentID string) bool {
	if g.defender.IsPermanent() && g.defender.ID == permanentID {
		g.defender = Defender{Kind: DefenderNone}
		return true
	}
	return false
}

// SetBlocked sets whether the group is blocked, along with the groups of
// every creature banded with one of its attackers. A group with blockers
// stays blocked.
func (g *Group) SetBlocked(blocked bool) {
	g.setBlocked(blocked)
	for _, attackerID := range g.attackers {
		for _, bandedID := range g.combat.lookup.BandedWith(attackerID) {
			if bandedID == attackerID {
				continue
			}
			if other := g.combat.FindGroup(bandedID); other != nil {
				other.setBlocked(blocked)
			}
		}
	}
}

func (g *Group) setBlocked(blocked bool) {
	if !blocked && len(g.blockers) > 0 {
		return
	}
	g.blocked = blocked
}

// ChangeDefender redirects the group at a new player, planeswalker or
// battle. It returns false without changing anything if newDefenderID is the
// current defender or is unknown. Attackers leave their bands.
func (g *Group) ChangeDefender(newDefenderID string) bool {
	c := g.combat
	if newDefenderID == g.defender.ID {
		return false
	}
	defender, defendingPlayerID, ok := resolveDefender(c.lookup, newDefenderID)
	if !ok {
		return false
	}

	for _, attackerID := range g.attackers {
		if !c.lookup.Exists(attackerID) {
			continue
		}
		banded := append([]string(nil), c.lookup.BandedWith(attackerID)...)
		if len(banded) == 0 {
			continue
		}
		for _, bandedID := range banded {
			c.lookup.RemoveBandedCard(bandedID, attackerID)
		}
		c.lookup.ClearBandedCards(attackerID)
		c.notifier.Fire(rules.NewEvent(rules.EventBandBroken, attackerID, "", c.lookup.ControllerOf(attackerID)))
	}

	previous := g.defender
	g.defender = defender
	g.defendingPlayerID = defendingPlayerID

	event := rules.NewEvent(rules.EventDefenderChanged, newDefenderID, previous.ID, c.attackingPlayerID)
	event.Data = defender.Kind.String()
	c.notifier.Fire(event)

	c.logger.Debug("defender changed",
		zap.String("game_id", c.gameID),
		zap.String("from", previous.String()),
		zap.String("to", defender.String()),
		zap.String("defending_player_id", defendingPlayerID))
	return true
}

// AcceptBlockers announces the final blocks: BLOCKER_DECLARED for every
// blocker and attacker pair, then CREATURE_BLOCKED for each attacker of a
// blocked group or UNBLOCKED_ATTACKER otherwise.
func (g *Group) AcceptBlockers() {
	if len(g.attackers) == 0 {
		return
	}
	n := g.combat.notifier
	for _, blockerID := range g.blockers {
		for _, attackerID := range g.attackers {
			n.Fire(rules.NewEvent(rules.EventBlockerDeclared, attackerID, blockerID, g.blockerControllers[blockerID]))
		}
	}
	for _, attackerID := range g.attackers {
		controller := g.combat.lookup.ControllerOf(attackerID)
		if len(g.blockers) > 0 {
			n.Fire(rules.NewEvent(rules.EventCreatureBlocked, attackerID, "", controller))
		} else {
			n.Fire(rules.NewEvent(rules.EventUnblockedAttacker, attackerID, "", controller))
		}
	}
}

// ApplyDamage turns damage marked on the group's attackers, blockers and
// defending permanent into game state. It returns the total applied.
func (g *Group) ApplyDamage() int {
	lookup := g.combat.lookup
	total := 0
	for _, id := range concat(g.attackers, g.blockers) {
		total += lookup.ApplyDamage(id)
	}
	if g.defender.IsPermanent() {
		total += lookup.ApplyDamage(g.defender.ID)
	}
	return total
}

func (g *Group) copy(c *Combat) *Group {
	out := newGroup(c, g.defender, g.defendingPlayerID)
	out.attackers = append([]string(nil), g.attackers...)
	out.formerAttackers = append([]string(nil), g.formerAttackers...)
	out.blockers = append([]string(nil), g.blockers...)
	for k, v := range g.blockerControllers {
		out.blockerControllers[k] = v
	}
	out.blocked = g.blocked
	out.blockerRemoved = g.blockerRemoved
	return out
}

func contains(values []string, want string) bool {
	return indexOf(values, want) >= 0
}

func indexOf(values []string, want string) int {
	for i, v := range values {
		if v == want {
			return i
		}
	}
	return -1
}

func concat(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}
