package combat

import (
	"fmt"

	"github.com/magefree/mage-combat-go/internal/game/battlefield"
	"go.uber.org/zap"
)

// CheckBlockRestrictions enforces "can't block alone", "can't be blocked
// except by N or more creatures" and "can't be blocked by more than N
// creatures" on the groups defendingPlayerID defends (every group if it is
// empty). Offending blockers are removed. It returns false if the declared
// blocks were illegal and must be redone.
//
// The creatures that could block each attacker are collected for every group
// before anything is removed.
func (c *Combat) CheckBlockRestrictions(defendingPlayerID string) bool {
	groups := make([]*Group, 0, len(c.groups))
	for _, g := range c.groups {
		if defendingPlayerID == "" || g.defendingPlayerID == defendingPlayerID {
			groups = append(groups, g)
		}
	}

	total := c.TotalBlockers()
	possible := make(map[*Group]map[string]int, len(groups))
	for _, g := range groups {
		possible[g] = c.possibleBlockers(g)
	}

	legal := true
	for _, g := range groups {
		if !c.checkGroupRestrictions(g, total, possible[g]) {
			legal = false
		}
	}

	c.logger.Debug("block restrictions checked",
		zap.String("game_id", c.gameID),
		zap.String("defending_player_id", defendingPlayerID),
		zap.Int("total_blockers", total),
		zap.Bool("legal", legal))
	return legal
}

// possibleBlockers counts, per attacker, the defending player's creatures
// that could block it.
func (c *Combat) possibleBlockers(g *Group) map[string]int {
	counts := make(map[string]int, len(g.attackers))
	creatures := c.lookup.CreaturesControlledBy(g.defendingPlayerID)
	for _, attackerID := range g.attackers {
		for _, blockerID := range creatures {
			if c.lookup.CanBlock(blockerID, attackerID) {
				counts[attackerID]++
			}
		}
	}
	return counts
}

func (c *Combat) checkGroupRestrictions(g *Group, totalBlockers int, possible map[string]int) bool {
	if len(g.attackers) == 0 {
		return true
	}
	legal := true

	if totalBlockers == 1 {
		for _, blockerID := range g.Blockers() {
			if c.lookup.HasAbility(blockerID, battlefield.AbilityCantBlockAlone) {
				legal = false
				c.inform(fmt.Sprintf("%s can't block alone. Removing it from combat.", c.lookup.Name(blockerID)))
				c.RemoveBlocker(blockerID)
			}
		}
	}

	for _, attackerID := range g.Attackers() {
		if !c.lookup.Exists(attackerID) || !g.blocked {
			continue
		}

		minBlockers := c.lookup.MinBlockedBy(attackerID)
		if minBlockers > 1 && len(g.blockers) > 0 && len(g.blockers) < minBlockers {
			c.discardBlockers(g)
			c.inform(fmt.Sprintf("%s can't be blocked except by %d or more creatures. Blockers discarded.",
				c.lookup.Name(attackerID), minBlockers))
			// with no legal way to block, blocking nothing is legal
			if minBlockers <= possible[attackerID] {
				legal = false
			}
		}

		maxBlockers := c.lookup.MaxBlockedBy(attackerID)
		if maxBlockers > 0 && maxBlockers < len(g.blockers) {
			c.discardBlockers(g)
			noun := "creatures"
			if maxBlockers == 1 {
				noun = "creature"
			}
			c.inform(fmt.Sprintf("%s can't be blocked by more than %d %s. Blockers discarded.",
				c.lookup.Name(attackerID), maxBlockers, noun))
			legal = false
		}
	}
	return legal
}

func (c *Combat) discardBlockers(g *Group) {
	for _, blockerID := range g.Blockers() {
		c.RemoveBlocker(blockerID)
	}
}
