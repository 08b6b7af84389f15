package combat

import (
	"context"
	"fmt"

	"github.com/magefree/mage-combat-go/internal/game/battlefield"
	"github.com/magefree/mage-combat-go/internal/game/saturate"
	"go.uber.org/zap"
)

// damageStep is what combat remembers while one damage step is assigned.
type damageStep struct {
	first bool
	// dividing holds each creature's answer to "divide damage among the
	// defending player and/or creatures"; it is asked at most once a step.
	dividing map[string]bool
}

// allocation is where one source's combat damage goes.
type allocation struct {
	sourceID   string
	recipients []string
	amounts    []int
	// defender is damage dealt to the group's defender.
	defender int
	// playerID and player receive undivided damage left over in divided mode.
	playerID string
	player   int
}

// blockerHit is a sole blocker's damage to the attacker it blocks.
type blockerHit struct {
	blockerID  string
	attackerID string
	amount     int
}

// AssignDamage assigns and marks combat damage for one damage step. Each
// group's attackers divide their damage among their blockers, or hit the
// defender, and sole blockers hit their attacker; then every creature
// blocking more than one attacker divides its damage among them.
//
// Cancelling ctx stops the step between groups. Damage already marked stays.
func (c *Combat) AssignDamage(ctx context.Context, first bool) error {
	c.step = &damageStep{first: first, dividing: make(map[string]bool)}
	defer func() { c.step = nil }()

	c.logger.Debug("assigning combat damage",
		zap.String("game_id", c.gameID),
		zap.Bool("first_strike", first),
		zap.Int("groups", len(c.groups)))

	for _, g := range c.Groups() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.assignDamageToBlockers(g)
	}
	for _, blockerID := range c.Blockers() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.assignDamageToAttackers(blockerID)
	}
	return nil
}

// dealsDamageThisStep: in the first-strike step only creatures with first or
// double strike deal damage, and they are recorded; in the regular step
// everything deals damage except single strikers recorded earlier.
func (c *Combat) dealsDamageThisStep(id string) bool {
	if !c.lookup.Exists(id) {
		return false
	}
	if c.step.first {
		if c.hasFirstOrDoubleStrike(id) {
			c.strikes.RecordFirstStriker(id)
			return true
		}
		return false
	}
	return c.lookup.HasAbility(id, battlefield.AbilityDoubleStrike) || !c.strikes.WasFirstStriker(id)
}

// damageValue is the combat damage a creature assigns: its power, or its
// toughness under effects that say so.
func (c *Combat) damageValue(id string) int {
	if c.UseToughnessForDamage(id) {
		return max(c.lookup.Toughness(id), 0)
	}
	return max(c.lookup.Power(id), 0)
}

func (c *Combat) hasTrample(id string) bool {
	return c.lookup.HasAbility(id, battlefield.AbilityTrample) ||
		c.lookup.HasAbility(id, battlefield.AbilityTrampleOverPlaneswalkers)
}

func (c *Combat) assignDamageToBlockers(g *Group) {
	if len(g.attackers) == 0 || (c.step.first && !g.HasFirstOrDoubleStrike()) {
		return
	}

	// blockers' damage is fixed before anything is marked on the attacker
	hits := c.soleBlockerHits(g)

	pending := make(map[string]int)
	plans := make([]allocation, 0, len(g.attackers))
	for _, attackerID := range g.Attackers() {
		if !c.dealsDamageThisStep(attackerID) {
			continue
		}
		damage := c.damageValue(attackerID)
		switch {
		case c.dividesDamage(g, attackerID, true):
			plans = append(plans, c.dividedDamage(g, attackerID, damage, true))
		case len(g.blockers) == 0:
			plans = append(plans, c.unblockedDamage(g, attackerID, damage))
		case c.damageAsThoughUnblocked(g, attackerID):
			plans = append(plans, allocation{sourceID: attackerID, defender: damage})
		default:
			plans = append(plans, c.divideAmongBlockers(g, attackerID, damage, pending))
		}
	}

	for _, hit := range hits {
		if c.dividesDamage(g, hit.blockerID, false) {
			continue
		}
		c.lookup.MarkDamage(hit.attackerID, hit.amount, hit.blockerID, true)
	}
	for _, plan := range plans {
		c.commit(g, plan)
	}
}

// soleBlockerHits collects the damage of blockers that block exactly one
// attacker and deal damage this step. Blockers of several attackers divide
// their damage later.
func (c *Combat) soleBlockerHits(g *Group) []blockerHit {
	hits := make([]blockerHit, 0, len(g.blockers))
	for _, blockerID := range g.blockers {
		if !c.dealsDamageThisStep(blockerID) {
			continue
		}
		attackers := c.blockedAttackers(blockerID)
		if len(attackers) != 1 {
			continue
		}
		hits = append(hits, blockerHit{
			blockerID:  blockerID,
			attackerID: attackers[0],
			amount:     c.damageValue(blockerID),
		})
	}
	return hits
}

// unblockedDamage sends an attacker's damage to the defender. An attacker
// that stays blocked with no blockers left deals damage only if it has
// trample.
func (c *Combat) unblockedDamage(g *Group, attackerID string, damage int) allocation {
	plan := allocation{sourceID: attackerID}
	if (!g.blocked && !g.blockerRemoved) || c.hasTrample(attackerID) {
		plan.defender = damage
	}
	return plan
}

func (c *Combat) damageAsThoughUnblocked(g *Group, attackerID string) bool {
	if c.lookup.HasAbility(attackerID, battlefield.AbilityAlwaysDamageAsThoughUnblocked) {
		return true
	}
	if !c.lookup.HasAbility(attackerID, battlefield.AbilityDamageAsThoughUnblocked) {
		return false
	}
	playerID := c.lookup.ControllerOf(attackerID)
	if g.DefenderAssignsCombatDamage() {
		playerID = g.defendingPlayerID
	}
	return c.decisions.Confirm(playerID,
		fmt.Sprintf("Have %s assign damage as though it weren't blocked?", c.lookup.Name(attackerID)))
}

// divideAmongBlockers splits an attacker's damage among its blockers in
// declaration order. Each blocker is offered lethal damage by default,
// counting damage other attackers in the band are about to assign; whatever
// is left goes to the first blocker, or tramples over to the defender.
func (c *Combat) divideAmongBlockers(g *Group, attackerID string, damage int, pending map[string]int) allocation {
	plan := allocation{sourceID: attackerID}
	if damage <= 0 {
		return plan
	}
	playerID := c.lookup.ControllerOf(attackerID)
	if g.DefenderAssignsCombatDamage() {
		playerID = g.defendingPlayerID
	}
	trample := c.hasTrample(attackerID)

	entries := make([]AmountEntry, 0, len(g.blockers))
	remaining := damage
	for _, blockerID := range g.blockers {
		if !c.lookup.Exists(blockerID) {
			continue
		}
		lethal := max(saturate.Sub(c.lookup.LethalDamage(blockerID, attackerID), pending[blockerID]), 0)
		defaultDamage := min(remaining, lethal)
		remaining -= defaultDamage
		entries = append(entries, AmountEntry{
			ID:      blockerID,
			Label:   c.describe(blockerID),
			Min:     0,
			Max:     damage,
			Default: defaultDamage,
		})
	}

	var amounts []int
	if trample {
		switch {
		case len(entries) == 0:
		case remaining > 0 || len(entries) > 1:
			prompt := fmt.Sprintf("Assign combat damage among creatures blocking %s (unassigned damage tramples through)", c.describe(attackerID))
			amounts = c.chooseMultiAmount(playerID, entries, damage-remaining, damage, prompt)
		case len(entries) == 1:
			amounts = []int{damage}
		}
		plan.defender = damage - saturate.Sum(amounts...)
	} else {
		if len(entries) == 0 {
			return plan
		}
		if remaining > 0 {
			entries[0].Default += remaining
		}
		if len(entries) > 1 {
			prompt := fmt.Sprintf("Assign combat damage among creatures blocking %s", c.describe(attackerID))
			amounts = c.chooseMultiAmount(playerID, entries, damage, damage, prompt)
		} else {
			amounts = []int{damage}
		}
	}

	for i, entry := range entries {
		plan.recipients = append(plan.recipients, entry.ID)
		plan.amounts = append(plan.amounts, amounts[i])
		pending[entry.ID] = saturate.Add(pending[entry.ID], amounts[i])
	}
	return plan
}

// assignDamageToAttackers deals the damage of a blocker that blocks more
// than one attacker, divided among them, or divided among the attacking
// player and their creatures if it has that ability.
func (c *Combat) assignDamageToAttackers(blockerID string) {
	groups := c.blockingGroups[blockerID]
	if len(groups) == 0 || !c.dealsDamageThisStep(blockerID) {
		return
	}
	g := groups[0]
	damage := c.damageValue(blockerID)

	if c.dividesDamage(g, blockerID, false) {
		c.commit(g, c.dividedDamage(g, blockerID, damage, false))
		return
	}

	attackers := make([]string, 0)
	for _, id := range c.blockedAttackers(blockerID) {
		if c.lookup.Exists(id) {
			attackers = append(attackers, id)
		}
	}
	if len(attackers) <= 1 || damage <= 0 {
		return
	}

	playerID := c.lookup.ControllerOf(blockerID)
	for _, bg := range groups {
		if bg.AttackerAssignsCombatDamage() {
			playerID = c.attackingPlayerID
			break
		}
	}

	entries := make([]AmountEntry, 0, len(attackers))
	remaining := damage
	for _, attackerID := range attackers {
		defaultDamage := min(remaining, c.lookup.LethalDamage(attackerID, blockerID))
		remaining -= defaultDamage
		entries = append(entries, AmountEntry{
			ID:      attackerID,
			Label:   c.describe(attackerID),
			Min:     0,
			Max:     damage,
			Default: defaultDamage,
		})
	}
	if remaining > 0 {
		entries[0].Default += remaining
	}
	prompt := fmt.Sprintf("Assign combat damage among creatures blocked by %s", c.describe(blockerID))
	amounts := c.chooseMultiAmount(playerID, entries, damage, damage, prompt)

	plan := allocation{sourceID: blockerID}
	for i, entry := range entries {
		plan.recipients = append(plan.recipients, entry.ID)
		plan.amounts = append(plan.amounts, amounts[i])
	}
	c.commit(g, plan)
}

// dividesDamage asks whether a creature with "you may assign its combat
// damage divided among defending player and/or any number of creatures they
// control" uses it this step. It is unavailable to an attacker whose blockers
// were all removed and to a blocker whose attackers are all gone.
func (c *Combat) dividesDamage(g *Group, creatureID string, attacking bool) bool {
	if !c.lookup.HasAbility(creatureID, battlefield.AbilityControllerDividesDamage) {
		return false
	}
	if answer, asked := c.step.dividing[creatureID]; asked {
		return answer
	}
	available := true
	if attacking && (g.blocked || g.blockerRemoved) && len(g.blockers) == 0 {
		available = false
	}
	if !attacking && len(c.blockedAttackers(creatureID)) == 0 {
		available = false
	}
	answer := false
	if available && c.dealsDamageThisStep(creatureID) {
		answer = c.decisions.Confirm(c.divisionChooser(g, creatureID, attacking),
			fmt.Sprintf("Have %s assign its combat damage divided among defending player and/or any number of defending creatures?", c.lookup.Name(creatureID)))
	}
	c.step.dividing[creatureID] = answer
	return answer
}

func (c *Combat) divisionChooser(g *Group, creatureID string, attacking bool) string {
	switch {
	case g.DefenderAssignsCombatDamage():
		return g.defendingPlayerID
	case !attacking && g.AttackerAssignsCombatDamage():
		return c.attackingPlayerID
	default:
		return c.lookup.ControllerOf(creatureID)
	}
}

// dividedDamage lets the chooser hand out the creature's damage to the
// defending player's creatures one at a time, in battlefield order, until it
// runs out. Whatever is left goes to the defending player. This holds for a
// dividing blocker too: its recipients are still on the defending side.
func (c *Combat) dividedDamage(g *Group, sourceID string, damage int, attacking bool) allocation {
	chooser := c.divisionChooser(g, sourceID, attacking)

	plan := allocation{sourceID: sourceID, playerID: g.defendingPlayerID}
	remaining := damage
	for _, creatureID := range c.lookup.CreaturesControlledBy(g.defendingPlayerID) {
		if remaining <= 0 {
			break
		}
		amount := c.decisions.ChooseAmount(chooser, 0, remaining, "Assign damage to "+c.lookup.Name(creatureID))
		amount = min(max(amount, 0), remaining)
		plan.recipients = append(plan.recipients, creatureID)
		plan.amounts = append(plan.amounts, amount)
		remaining -= amount
	}
	plan.player = remaining
	return plan
}

// chooseMultiAmount asks for a division and sanitizes the answer: each
// amount is clamped to its entry's bounds, and an answer whose total is out
// of range is replaced by the defaults.
func (c *Combat) chooseMultiAmount(playerID string, entries []AmountEntry, totalMin, totalMax int, prompt string) []int {
	answer := c.decisions.ChooseMultiAmount(playerID, append([]AmountEntry(nil), entries...), totalMin, totalMax, prompt)
	if len(answer) != len(entries) {
		panic(fmt.Sprintf("combat: decision provider returned %d amounts for %d recipients", len(answer), len(entries)))
	}

	amounts := make([]int, len(entries))
	for i, entry := range entries {
		amounts[i] = min(max(answer[i], entry.Min), entry.Max)
	}
	if total := saturate.Sum(amounts...); total < totalMin || total > totalMax {
		c.logger.Warn("damage division out of range, using defaults",
			zap.String("game_id", c.gameID),
			zap.String("player_id", playerID),
			zap.Int("total", total),
			zap.Int("total_min", totalMin),
			zap.Int("total_max", totalMax))
		for i, entry := range entries {
			amounts[i] = entry.Default
		}
	}
	return amounts
}

// commit marks an allocation. Each recipient is marked once.
func (c *Combat) commit(g *Group, plan allocation) {
	for i, recipientID := range plan.recipients {
		if plan.amounts[i] > 0 {
			c.lookup.MarkDamage(recipientID, plan.amounts[i], plan.sourceID, true)
		}
	}
	if plan.defender > 0 {
		c.defenderDamage(g, plan.sourceID, plan.defender, false)
	}
	if plan.player > 0 && plan.playerID != "" {
		c.lookup.DamagePlayer(plan.playerID, plan.player, plan.sourceID, true)
	}

	c.logger.Debug("combat damage assigned",
		zap.String("game_id", c.gameID),
		zap.String("source_id", plan.sourceID),
		zap.Strings("recipients", plan.recipients),
		zap.Ints("amounts", plan.amounts),
		zap.Int("to_defender", plan.defender),
		zap.Int("to_player", plan.player))
}

// defenderDamage deals damage to the group's defender. A player is damaged
// at once; a permanent has the damage marked. With trample over
// planeswalkers, damage beyond a planeswalker's lethal damage carries on to
// its controller.
func (c *Combat) defenderDamage(g *Group, attackerID string, amount int, toController bool) {
	if amount <= 0 || g.defender.Kind == DefenderNone {
		return
	}
	targetID := g.defender.ID
	if toController {
		targetID = c.lookup.ControllerOf(g.defender.ID)
	}

	if !c.lookup.Exists(targetID) {
		if c.lookup.IsPlayer(targetID) {
			c.lookup.DamagePlayer(targetID, amount, attackerID, true)
		}
		return
	}

	if c.lookup.IsPlaneswalker(targetID) && c.lookup.HasAbility(attackerID, battlefield.AbilityTrampleOverPlaneswalkers) && !toController {
		lethal := c.lookup.LethalDamage(targetID, attackerID)
		if lethal >= amount {
			c.lookup.MarkDamage(targetID, amount, attackerID, true)
			return
		}
		c.lookup.MarkDamage(targetID, lethal, attackerID, true)
		c.defenderDamage(g, attackerID, amount-lethal, true)
		return
	}
	c.lookup.MarkDamage(targetID, amount, attackerID, true)
}

func (c *Combat) describe(id string) string {
	return fmt.Sprintf("%s, P/T: %d/%d", c.lookup.Name(id), c.lookup.Power(id), c.lookup.Toughness(id))
}
