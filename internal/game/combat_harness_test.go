package game

import (
	"testing"

	"github.com/magefree/mage-combat-go/internal/game/battlefield"
	"github.com/magefree/mage-combat-go/internal/game/players"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// CombatTestHarness sets up a game on an Engine and drives its combat steps,
// failing the test on any engine error.
type CombatTestHarness struct {
	t       *testing.T
	engine  *Engine
	gameID  string
	players []string
}

// NewCombatTestHarness starts a game with the given players at 20 life.
func NewCombatTestHarness(t *testing.T, gameID string, playerIDs ...string) *CombatTestHarness {
	return newHarness(t, gameID, Options{VerifyBlockerIndex: true}, playerIDs...)
}

func newHarness(t *testing.T, gameID string, opts Options, playerIDs ...string) *CombatTestHarness {
	t.Helper()
	engine := NewEngine(zaptest.NewLogger(t), opts)

	infos := make([]PlayerInfo, 0, len(playerIDs))
	for _, id := range playerIDs {
		infos = append(infos, PlayerInfo{ID: id, Name: id})
	}
	require.NoError(t, engine.StartGame(gameID, infos))

	return &CombatTestHarness{
		t:       t,
		engine:  engine,
		gameID:  gameID,
		players: playerIDs,
	}
}

// GetGameState returns the internal game state for direct inspection.
func (h *CombatTestHarness) GetGameState() *gameState {
	h.engine.mu.RLock()
	defer h.engine.mu.RUnlock()
	return h.engine.games[h.gameID]
}

// CreatureSpec defines the properties of a test creature
type CreatureSpec struct {
	ID         string
	Name       string
	Power      int
	Toughness  int
	Controller string
	Abilities  []battlefield.Ability
	Tapped     bool
}

// CreateCreature adds a creature to the battlefield
func (h *CombatTestHarness) CreateCreature(spec CreatureSpec) string {
	h.t.Helper()
	name := spec.Name
	if name == "" {
		name = spec.ID
	}
	creature := battlefield.NewCreature(spec.ID, name, spec.Controller, spec.Power, spec.Toughness, spec.Abilities...)
	creature.Tapped = spec.Tapped
	require.NoError(h.t, h.engine.AddPermanent(h.gameID, creature))
	return spec.ID
}

// CreateAttacker creates a vanilla creature
func (h *CombatTestHarness) CreateAttacker(id, controller string, power, toughness int, abilities ...battlefield.Ability) string {
	return h.CreateCreature(CreatureSpec{ID: id, Power: power, Toughness: toughness, Controller: controller, Abilities: abilities})
}

// CreateBlocker creates a vanilla creature
func (h *CombatTestHarness) CreateBlocker(id, controller string, power, toughness int, abilities ...battlefield.Ability) string {
	return h.CreateCreature(CreatureSpec{ID: id, Power: power, Toughness: toughness, Controller: controller, Abilities: abilities})
}

// Script seats a scripted player that answers playerID's combat questions.
func (h *CombatTestHarness) Script(playerID string, answers players.Answers) *players.Scripted {
	h.t.Helper()
	scripted := players.NewScripted(zaptest.NewLogger(h.t))
	scripted.Queue(playerID, answers)
	require.NoError(h.t, h.engine.Seat(h.gameID, playerID, scripted))
	return scripted
}

// SetupCombat begins combat for the given attacking player
func (h *CombatTestHarness) SetupCombat(attackingPlayer string) {
	h.t.Helper()
	require.NoError(h.t, h.engine.BeginCombat(h.gameID, attackingPlayer))
}

// DeclareAttacker declares a single creature as an attacker
func (h *CombatTestHarness) DeclareAttacker(creatureID, defenderID, controllerID string) {
	h.t.Helper()
	require.NoError(h.t, h.engine.DeclareAttacker(h.gameID, creatureID, defenderID, controllerID), "declare attacker %s", creatureID)
}

// DeclareBlocker declares a single creature as a blocker
func (h *CombatTestHarness) DeclareBlocker(blockerID, attackerID, controllerID string) {
	h.t.Helper()
	require.NoError(h.t, h.engine.DeclareBlocker(h.gameID, blockerID, attackerID, controllerID), "declare blocker %s", blockerID)
}

// AcceptBlockers finalizes blocker declarations, which must be legal
func (h *CombatTestHarness) AcceptBlockers() {
	h.t.Helper()
	legal, err := h.engine.FinishDeclaringBlockers(h.gameID, "")
	require.NoError(h.t, err)
	require.True(h.t, legal, "blocks should be legal")
}

// AssignDamage assigns combat damage (firstStrike true for first strike damage)
func (h *CombatTestHarness) AssignDamage(firstStrike bool) bool {
	h.t.Helper()
	ran, err := h.engine.AssignCombatDamage(h.gameID, firstStrike)
	require.NoError(h.t, err)
	return ran
}

// ApplyDamage applies assigned combat damage
func (h *CombatTestHarness) ApplyDamage() []string {
	h.t.Helper()
	dead, err := h.engine.ApplyCombatDamage(h.gameID)
	require.NoError(h.t, err)
	return dead
}

// EndCombat ends the combat phase
func (h *CombatTestHarness) EndCombat() {
	h.t.Helper()
	require.NoError(h.t, h.engine.EndCombat(h.gameID))
}

// GetPlayerLife returns the current life total for a player
func (h *CombatTestHarness) GetPlayerLife(playerID string) int {
	h.t.Helper()
	gs := h.GetGameState()
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	player, exists := gs.battlefield.Player(playerID)
	require.True(h.t, exists, "player %s not found", playerID)
	return player.Life
}

// GetCreatureDamage returns the damage applied to a creature
func (h *CombatTestHarness) GetCreatureDamage(creatureID string) int {
	h.t.Helper()
	gs := h.GetGameState()
	gs.mu.RLock()
	defer gs.mu.RUnlock()

	creature, exists := gs.battlefield.Permanent(creatureID)
	require.True(h.t, exists, "creature %s not found", creatureID)
	return creature.Damage
}

// IsCreatureDead reports whether a creature has left the battlefield
func (h *CombatTestHarness) IsCreatureDead(creatureID string) bool {
	gs := h.GetGameState()
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return !gs.battlefield.Exists(creatureID)
}

// IsCreatureTapped checks if a creature is tapped
func (h *CombatTestHarness) IsCreatureTapped(creatureID string) bool {
	gs := h.GetGameState()
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	creature, exists := gs.battlefield.Permanent(creatureID)
	return exists && creature.Tapped
}

// IsCreatureAttacking checks if a creature is currently attacking
func (h *CombatTestHarness) IsCreatureAttacking(creatureID string) bool {
	gs := h.GetGameState()
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.combat.IsAttacking(creatureID)
}

// IsCreatureBlocking checks if a creature is currently blocking
func (h *CombatTestHarness) IsCreatureBlocking(creatureID string) bool {
	gs := h.GetGameState()
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	return gs.combat.IsBlocking(creatureID)
}

// AssertPlayerLife asserts that a player has the expected life total
func (h *CombatTestHarness) AssertPlayerLife(playerID string, expectedLife int) {
	h.t.Helper()
	if actual := h.GetPlayerLife(playerID); actual != expectedLife {
		h.t.Errorf("expected %s life to be %d, got %d", playerID, expectedLife, actual)
	}
}

// AssertCreatureDamage asserts that a creature has the expected damage
func (h *CombatTestHarness) AssertCreatureDamage(creatureID string, expectedDamage int) {
	h.t.Helper()
	if actual := h.GetCreatureDamage(creatureID); actual != expectedDamage {
		h.t.Errorf("expected %s damage to be %d, got %d", creatureID, expectedDamage, actual)
	}
}

// AssertCreatureDead asserts that a creature died
func (h *CombatTestHarness) AssertCreatureDead(creatureID string) {
	h.t.Helper()
	if !h.IsCreatureDead(creatureID) {
		h.t.Errorf("expected %s to be dead", creatureID)
	}
}

// AssertCreatureAlive asserts that a creature is still on the battlefield
func (h *CombatTestHarness) AssertCreatureAlive(creatureID string) {
	h.t.Helper()
	if h.IsCreatureDead(creatureID) {
		h.t.Errorf("expected %s to be alive", creatureID)
	}
}

// AssertCreatureTapped asserts whether a creature is tapped
func (h *CombatTestHarness) AssertCreatureTapped(creatureID string, shouldBeTapped bool) {
	h.t.Helper()
	if h.IsCreatureTapped(creatureID) != shouldBeTapped {
		if shouldBeTapped {
			h.t.Errorf("expected %s to be tapped", creatureID)
		} else {
			h.t.Errorf("expected %s to be untapped", creatureID)
		}
	}
}

// Attack is one attacker and what it attacks.
type Attack struct{ Attacker, Defender string }

// Block is one blocker and the attacker it blocks.
type Block struct{ Blocker, Attacker string }

// RunFullCombat runs a complete combat: declarations in the given order, both
// damage steps and end of combat.
func (h *CombatTestHarness) RunFullCombat(attackingPlayer string, attacks []Attack, blocks []Block) {
	h.t.Helper()
	h.SetupCombat(attackingPlayer)
	for _, a := range attacks {
		h.DeclareAttacker(a.Attacker, a.Defender, attackingPlayer)
	}
	require.NoError(h.t, h.engine.FinishDeclaringAttackers(h.gameID))

	for _, b := range blocks {
		gs := h.GetGameState()
		gs.mu.RLock()
		controllerID := gs.battlefield.ControllerOf(b.Blocker)
		gs.mu.RUnlock()
		h.DeclareBlocker(b.Blocker, b.Attacker, controllerID)
	}
	h.AcceptBlockers()

	require.NoError(h.t, h.engine.RunDamageSteps(h.gameID))
	h.EndCombat()
}

// Debug logs the current state of a creature
func (h *CombatTestHarness) Debug(creatureID string) {
	view, err := h.engine.GetGameView(h.gameID)
	if err != nil {
		h.t.Logf("no view: %v", err)
		return
	}
	p, ok := view.Permanent(creatureID)
	if !ok {
		h.t.Logf("creature %s not found", creatureID)
		return
	}
	h.t.Logf("creature %s (%s): P/T %d/%d damage %d marked %d tapped %t attacking %t blocking %t abilities %v",
		p.ID, p.Name, p.Power, p.Toughness, p.Damage, p.Marked, p.Tapped, p.Attacking, p.Blocking, p.Abilities)
}
