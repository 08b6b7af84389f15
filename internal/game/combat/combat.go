// Package combat groups attacking and blocking creatures, enforces blocking
// restrictions and assigns combat damage in the first-strike and regular
// damage steps.
//
// A Combat is driven by one goroutine at a time. Decisions are synchronous
// calls on the DecisionProvider; nothing else touches the combat while one is
// outstanding.
package combat

import (
	"fmt"

	"github.com/magefree/mage-combat-go/internal/game/battlefield"
	"github.com/magefree/mage-combat-go/internal/game/rules"
	"go.uber.org/zap"
)

// Option configures a Combat.
type Option func(*Combat)

// WithBlockerIndexVerification re-derives the blocker index from the groups
// after every membership change and logs any mismatch.
func WithBlockerIndexVerification(enabled bool) Option {
	return func(c *Combat) {
		c.verifyIndex = enabled
	}
}

// Combat is every combat group of the current combat, with an index from
// each blocker to the groups it blocks.
type Combat struct {
	gameID            string
	attackingPlayerID string
	groups            []*Group

	// blockingGroups is derived from the groups' blockers and only kept to
	// answer "what is this creature blocking" quickly.
	blockingGroups map[string][]*Group

	lookup    Lookup
	decisions DecisionProvider
	notifier  Notifier
	strikes   StrikeTracker

	verifyIndex bool
	step        *damageStep
	messages    []string
	logger      *zap.Logger
}

// New creates an empty combat. A nil notifier discards events, a nil strike
// tracker keeps its own record and nil decisions accept every default.
func New(gameID string, lookup Lookup, decisions DecisionProvider, notifier Notifier, strikes StrikeTracker, logger *zap.Logger, opts ...Option) *Combat {
	if logger == nil {
		logger = zap.NewNop()
	}
	if decisions == nil {
		decisions = defaultDecisions{}
	}
	if notifier == nil {
		notifier = discardNotifier{}
	}
	if strikes == nil {
		strikes = make(strikeRecord)
	}
	c := &Combat{
		gameID:         gameID,
		blockingGroups: make(map[string][]*Group),
		lookup:         lookup,
		decisions:      decisions,
		notifier:       notifier,
		strikes:        strikes,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAttackingPlayer sets the player whose creatures are attacking.
func (c *Combat) SetAttackingPlayer(playerID string) {
	c.attackingPlayerID = playerID
}

func (c *Combat) AttackingPlayerID() string {
	return c.attackingPlayerID
}

// Groups returns the combat groups in declaration order.
func (c *Combat) Groups() []*Group {
	return append([]*Group(nil), c.groups...)
}

// FindGroup returns the group attackerID attacks in, or nil.
func (c *Combat) FindGroup(attackerID string) *Group {
	for _, g := range c.groups {
		if g.HasAttacker(attackerID) {
			return g
		}
	}
	return nil
}

// BlockingGroups returns the groups blockerID blocks.
func (c *Combat) BlockingGroups(blockerID string) []*Group {
	return append([]*Group(nil), c.blockingGroups[blockerID]...)
}

// Attackers returns every attacking creature in declaration order.
func (c *Combat) Attackers() []string {
	ids := make([]string, 0)
	for _, g := range c.groups {
		ids = append(ids, g.attackers...)
	}
	return ids
}

// Blockers returns every blocking creature, each once, in declaration order.
func (c *Combat) Blockers() []string {
	ids := make([]string, 0, len(c.blockingGroups))
	seen := make(map[string]bool, len(c.blockingGroups))
	for _, g := range c.groups {
		for _, id := range g.blockers {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (c *Combat) IsAttacking(id string) bool {
	return c.FindGroup(id) != nil
}

func (c *Combat) IsBlocking(id string) bool {
	return len(c.blockingGroups[id]) > 0
}

// TotalBlockers counts distinct blocking creatures across all groups.
func (c *Combat) TotalBlockers() int {
	return len(c.blockingGroups)
}

// HasFirstOrDoubleStrike reports whether any creature in combat has first
// strike or double strike, which decides whether there is a first-strike
// damage step.
func (c *Combat) HasFirstOrDoubleStrike() bool {
	for _, g := range c.groups {
		if g.HasFirstOrDoubleStrike() {
			return true
		}
	}
	return false
}

// UseToughnessForDamage reports whether a creature assigns combat damage
// equal to its toughness.
func (c *Combat) UseToughnessForDamage(id string) bool {
	return c.lookup.UseToughnessForDamage(id)
}

// DeclareAttacker puts attackerID into combat against defenderID. An attacker
// banded with a creature already attacking the same defender joins that
// creature's group.
func (c *Combat) DeclareAttacker(attackerID, defenderID string) (*Group, error) {
	if !c.lookup.IsCreature(attackerID) {
		return nil, fmt.Errorf("attacker %s: %w", attackerID, ErrNotCreature)
	}
	if c.IsAttacking(attackerID) {
		return nil, fmt.Errorf("attacker %s: %w", attackerID, ErrAlreadyAttacking)
	}
	defender, defendingPlayerID, ok := resolveDefender(c.lookup, defenderID)
	if !ok || defendingPlayerID == c.lookup.ControllerOf(attackerID) {
		return nil, fmt.Errorf("defender %s: %w", defenderID, ErrUnknownDefender)
	}

	if c.attackingPlayerID == "" {
		c.attackingPlayerID = c.lookup.ControllerOf(attackerID)
	}
	group := c.bandGroup(attackerID, defender)
	if group == nil {
		group = newGroup(c, defender, defendingPlayerID)
		c.groups = append(c.groups, group)
	}
	group.attackers = append(group.attackers, attackerID)

	c.logger.Debug("attacker declared",
		zap.String("game_id", c.gameID),
		zap.String("attacker_id", attackerID),
		zap.String("defender", defender.String()),
		zap.Int("group_size", len(group.attackers)))
	return group, nil
}

// DeclareBand bands the given creatures together and declares them as one
// attacking group.
func (c *Combat) DeclareBand(defenderID string, attackerIDs ...string) (*Group, error) {
	for _, id := range attackerIDs {
		if !c.lookup.IsCreature(id) {
			return nil, fmt.Errorf("attacker %s: %w", id, ErrNotCreature)
		}
		if c.IsAttacking(id) {
			return nil, fmt.Errorf("attacker %s: %w", id, ErrAlreadyAttacking)
		}
	}
	c.lookup.Band(attackerIDs...)
	var group *Group
	for _, id := range attackerIDs {
		g, err := c.DeclareAttacker(id, defenderID)
		if err != nil {
			return nil, err
		}
		group = g
	}
	return group, nil
}

func (c *Combat) bandGroup(attackerID string, defender Defender) *Group {
	for _, bandedID := range c.lookup.BandedWith(attackerID) {
		if g := c.FindGroup(bandedID); g != nil && g.defender == defender {
			return g
		}
	}
	return nil
}

// DeclareBlocker has blockerID block the group attackerID is in.
func (c *Combat) DeclareBlocker(blockerID, attackerID string) error {
	group := c.FindGroup(attackerID)
	if group == nil {
		return fmt.Errorf("attacker %s: %w", attackerID, ErrNotAttacking)
	}
	if group.HasBlocker(blockerID) {
		return fmt.Errorf("blocker %s: %w", blockerID, ErrAlreadyBlocking)
	}
	if !c.lookup.IsCreature(blockerID) || !group.CanBlock(blockerID) {
		return fmt.Errorf("blocker %s blocking %s: %w", blockerID, attackerID, ErrCannotBlock)
	}
	if c.lookup.Blocking(blockerID) >= c.lookup.BlockCapacity(blockerID) {
		return fmt.Errorf("blocker %s: %w", blockerID, ErrBlockCapacity)
	}
	if !group.AddBlocker(blockerID, c.lookup.ControllerOf(blockerID)) {
		return fmt.Errorf("blocker %s blocking %s: %w", blockerID, attackerID, ErrBlockCanceled)
	}
	return nil
}

// RemoveBlocker undoes every block blockerID made. The attackers it blocked
// count as unblocked if nothing else blocks them.
func (c *Combat) RemoveBlocker(blockerID string) {
	for _, g := range c.BlockingGroups(blockerID) {
		g.discardBlocker(blockerID)
	}
	c.lookup.SetBlocking(blockerID, 0)
}

// RemoveFromCombat removes an attacking or blocking creature from combat and
// fires REMOVED_FROM_COMBAT. Attackers that were blocked stay blocked.
func (c *Combat) RemoveFromCombat(creatureID string) bool {
	removed := false
	for _, g := range c.groups {
		for _, attackerID := range g.attackers {
			if attackerID != creatureID {
				c.lookup.RemoveBandedCard(attackerID, creatureID)
			}
		}
		if g.Remove(creatureID) {
			removed = true
		}
	}
	if !removed {
		return false
	}
	c.lookup.SetBlocking(creatureID, 0)
	c.lookup.ClearBandedCards(creatureID)
	delete(c.blockingGroups, creatureID)
	c.checkIndex()

	c.notifier.Fire(rules.NewEvent(rules.EventRemovedFromCombat, creatureID, "", c.lookup.ControllerOf(creatureID)))
	c.logger.Debug("removed from combat",
		zap.String("game_id", c.gameID),
		zap.String("creature_id", creatureID))
	return true
}

// RemoveAttackedPermanent leaves every group attacking permanentID without a
// defender.
func (c *Combat) RemoveAttackedPermanent(permanentID string) bool {
	removed := false
	for _, g := range c.groups {
		if g.RemoveAttackedPermanent(permanentID) {
			removed = true
		}
	}
	return removed
}

// AcceptBlockers announces the final blocks for every group.
func (c *Combat) AcceptBlockers() {
	for _, g := range c.groups {
		g.AcceptBlockers()
	}
}

// ApplyDamage turns all marked combat damage into game state.
func (c *Combat) ApplyDamage() int {
	total := 0
	for _, g := range c.groups {
		total += g.ApplyDamage()
	}
	return total
}

// End clears the combat. Creatures stop blocking.
func (c *Combat) End() {
	for blockerID := range c.blockingGroups {
		c.lookup.SetBlocking(blockerID, 0)
	}
	if record, ok := c.strikes.(strikeRecord); ok {
		clear(record)
	}
	c.groups = nil
	c.blockingGroups = make(map[string][]*Group)
	c.attackingPlayerID = ""
	c.step = nil
}

// Messages returns and clears the messages combat reported to players.
func (c *Combat) Messages() []string {
	out := c.messages
	c.messages = nil
	return out
}

func (c *Combat) inform(message string) {
	c.messages = append(c.messages, message)
	c.logger.Info(message, zap.String("game_id", c.gameID))
}

func (c *Combat) indexAdd(blockerID string, g *Group) {
	for _, existing := range c.blockingGroups[blockerID] {
		if existing == g {
			return
		}
	}
	c.blockingGroups[blockerID] = append(c.blockingGroups[blockerID], g)
	c.checkIndex()
}

func (c *Combat) indexRemove(blockerID string, g *Group) {
	groups := c.blockingGroups[blockerID]
	for i, existing := range groups {
		if existing == g {
			groups = append(groups[:i], groups[i+1:]...)
			break
		}
	}
	if len(groups) == 0 {
		delete(c.blockingGroups, blockerID)
	} else {
		c.blockingGroups[blockerID] = groups
	}
	c.checkIndex()
}

// deriveIndex rebuilds the blocker index from the groups.
func (c *Combat) deriveIndex() map[string][]*Group {
	index := make(map[string][]*Group)
	for _, g := range c.groups {
		for _, blockerID := range g.blockers {
			index[blockerID] = append(index[blockerID], g)
		}
	}
	return index
}

// IndexConsistent reports whether the blocker index matches the groups.
func (c *Combat) IndexConsistent() bool {
	derived := c.deriveIndex()
	if len(derived) != len(c.blockingGroups) {
		return false
	}
	for blockerID, groups := range derived {
		have := c.blockingGroups[blockerID]
		if len(have) != len(groups) {
			return false
		}
		for _, g := range groups {
			found := false
			for _, h := range have {
				if h == g {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func (c *Combat) checkIndex() {
	if !c.verifyIndex || c.IndexConsistent() {
		return
	}
	c.logger.Error("blocker index out of sync with combat groups",
		zap.String("game_id", c.gameID),
		zap.Int("indexed_blockers", len(c.blockingGroups)))
}

// blockedAttackers returns the attackers blockerID blocks, across groups.
func (c *Combat) blockedAttackers(blockerID string) []string {
	ids := make([]string, 0)
	for _, g := range c.blockingGroups[blockerID] {
		for _, id := range g.attackers {
			if !contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (c *Combat) hasFirstOrDoubleStrike(id string) bool {
	return c.lookup.HasAbility(id, battlefield.AbilityFirstStrike) || c.lookup.HasAbility(id, battlefield.AbilityDoubleStrike)
}

type discardNotifier struct{}

func (discardNotifier) Fire(rules.Event) {}
func (discardNotifier) Replace(rules.Event) bool { return false }

type strikeRecord map[string]bool

func (r strikeRecord) RecordFirstStriker(id string) { r[id] = true }
func (r strikeRecord) WasFirstStriker(id string) bool { return r[id] }

type defaultDecisions struct{}

func (defaultDecisions) Confirm(string, string) bool { return false }

func (defaultDecisions) ChooseAmount(_ string, min, _ int, _ string) int { return min }

func (defaultDecisions) ChooseMultiAmount(_ string, entries []AmountEntry, _, _ int, _ string) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Default
	}
	return out
}
