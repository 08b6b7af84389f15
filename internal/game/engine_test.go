package game

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/magefree/mage-combat-go/internal/game/battlefield"
	"github.com/magefree/mage-combat-go/internal/game/effects"
	"github.com/magefree/mage-combat-go/internal/game/players"
	"github.com/magefree/mage-combat-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestEngineStartGame(t *testing.T) {
	engine := NewEngine(zaptest.NewLogger(t), Options{})
	duel := []PlayerInfo{{ID: "alice", Name: "Alice"}, {ID: "bob", Name: "Bob", Life: 7}}

	require.NoError(t, engine.StartGame("g1", duel))
	assert.ErrorIs(t, engine.StartGame("g1", duel), ErrGameExists)
	assert.Error(t, engine.StartGame("g2", duel[:1]))
	assert.Error(t, engine.StartGame("g3", []PlayerInfo{{ID: "alice"}, {ID: "alice"}}))
	assert.ErrorIs(t, engine.BeginCombat("missing", "alice"), ErrGameNotFound)

	view, err := engine.GetGameView("g1")
	require.NoError(t, err)
	alice, _ := view.Player("alice")
	bob, _ := view.Player("bob")
	assert.Equal(t, DefaultStartingLife, alice.Life)
	assert.Equal(t, 7, bob.Life)
	assert.ElementsMatch(t, []string{"g1"}, engine.GameIDs())
}

func TestCombatFlow_Unblocked(t *testing.T) {
	h := NewCombatTestHarness(t, "unblocked", "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)

	h.RunFullCombat("alice", []Attack{{"bear", "bob"}}, nil)

	h.AssertPlayerLife("bob", 18)
	h.AssertCreatureTapped("bear", true)
	assert.False(t, h.IsCreatureAttacking("bear"), "combat is over")
}

func TestCombatFlow_Vigilance(t *testing.T) {
	h := NewCombatTestHarness(t, "vigilance", "alice", "bob")
	h.CreateAttacker("knight", "alice", 2, 2, battlefield.AbilityVigilance)

	h.SetupCombat("alice")
	h.DeclareAttacker("knight", "bob", "alice")

	assert.True(t, h.IsCreatureAttacking("knight"))
	h.AssertCreatureTapped("knight", false)
}

func TestCanAttackValidation(t *testing.T) {
	h := NewCombatTestHarness(t, "can-attack", "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)
	h.CreateCreature(CreatureSpec{ID: "tapped", Power: 2, Toughness: 2, Controller: "alice", Tapped: true})
	h.CreateAttacker("wall", "alice", 0, 4, battlefield.AbilityDefender)
	h.CreateBlocker("elf", "bob", 1, 1)

	assert.ErrorIs(t, h.engine.DeclareAttacker(h.gameID, "bear", "bob", "alice"), ErrNoCombat)

	h.SetupCombat("alice")
	assert.ErrorIs(t, h.engine.DeclareAttacker(h.gameID, "bear", "bob", "bob"), ErrNotAttackingPlayer)
	assert.ErrorIs(t, h.engine.DeclareAttacker(h.gameID, "ghost", "bob", "alice"), ErrCreatureNotFound)
	assert.ErrorIs(t, h.engine.DeclareAttacker(h.gameID, "tapped", "bob", "alice"), ErrCannotAttack)
	assert.ErrorIs(t, h.engine.DeclareAttacker(h.gameID, "wall", "bob", "alice"), ErrCannotAttack)
	assert.ErrorIs(t, h.engine.DeclareAttacker(h.gameID, "elf", "alice", "alice"), ErrCannotAttack)
	assert.ErrorIs(t, h.engine.DeclareAttacker(h.gameID, "bear", "alice", "alice"), ErrInvalidDefender)
	assert.ErrorIs(t, h.engine.DeclareAttacker(h.gameID, "bear", "nowhere", "alice"), ErrInvalidDefender)

	h.DeclareAttacker("bear", "bob", "alice")
	assert.ErrorIs(t, h.engine.DeclareAttacker(h.gameID, "bear", "bob", "alice"), ErrCannotAttack, "already tapped")
}

func TestCombatFlow_FlyingReach(t *testing.T) {
	h := NewCombatTestHarness(t, "flying", "alice", "bob")
	h.CreateAttacker("drake", "alice", 2, 2, battlefield.AbilityFlying)
	h.CreateBlocker("bear", "bob", 2, 2)
	h.CreateBlocker("spider", "bob", 1, 4, battlefield.AbilityReach)

	h.SetupCombat("alice")
	h.DeclareAttacker("drake", "bob", "alice")

	assert.ErrorIs(t, h.engine.DeclareBlocker(h.gameID, "bear", "drake", "bob"), ErrCannotBlock)
	assert.ErrorIs(t, h.engine.DeclareBlocker(h.gameID, "spider", "drake", "alice"), ErrCannotBlock)
	assert.ErrorIs(t, h.engine.DeclareBlocker(h.gameID, "spider", "nothing", "bob"), ErrCreatureNotFound)
	h.DeclareBlocker("spider", "drake", "bob")
	assert.True(t, h.IsCreatureBlocking("spider"))
}

func TestCombatFlow_FirstStrike(t *testing.T) {
	h := NewCombatTestHarness(t, "first-strike", "alice", "bob")
	h.CreateAttacker("knight", "alice", 2, 2, battlefield.AbilityFirstStrike)
	h.CreateBlocker("bear", "bob", 2, 2)

	h.SetupCombat("alice")
	h.DeclareAttacker("knight", "bob", "alice")
	h.DeclareBlocker("bear", "knight", "bob")
	h.AcceptBlockers()

	require.True(t, h.AssignDamage(true))
	assert.Equal(t, []string{"bear"}, h.ApplyDamage())

	require.True(t, h.AssignDamage(false))
	h.ApplyDamage()
	h.EndCombat()

	h.AssertCreatureAlive("knight")
	h.AssertCreatureDamage("knight", 0)
	h.AssertCreatureDead("bear")
	h.AssertPlayerLife("bob", 20)
}

func TestCombatFlow_FirstStrikeStepSkipped(t *testing.T) {
	h := NewCombatTestHarness(t, "no-first-strike", "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)

	h.SetupCombat("alice")
	h.DeclareAttacker("bear", "bob", "alice")
	assert.False(t, h.AssignDamage(true))
	h.AssertPlayerLife("bob", 20)

	assert.True(t, h.AssignDamage(false))
	h.AssertPlayerLife("bob", 18)
}

func TestCombatFlow_DoubleStrike(t *testing.T) {
	h := NewCombatTestHarness(t, "double-strike", "alice", "bob")
	h.CreateAttacker("duelist", "alice", 2, 2, battlefield.AbilityDoubleStrike)

	h.RunFullCombat("alice", []Attack{{"duelist", "bob"}}, nil)

	h.AssertPlayerLife("bob", 16)
}

func TestCombatFlow_TrampleBlocked(t *testing.T) {
	h := NewCombatTestHarness(t, "trample", "alice", "bob")
	h.CreateAttacker("wurm", "alice", 5, 5, battlefield.AbilityTrample)
	h.CreateBlocker("bear", "bob", 2, 2)

	h.RunFullCombat("alice", []Attack{{"wurm", "bob"}}, []Block{{"bear", "wurm"}})

	h.AssertCreatureDead("bear")
	h.AssertPlayerLife("bob", 17)
	h.AssertCreatureDamage("wurm", 2)
}

func TestCombatFlow_Deathtouch(t *testing.T) {
	h := NewCombatTestHarness(t, "deathtouch", "alice", "bob")
	h.CreateAttacker("snake", "alice", 1, 1, battlefield.AbilityDeathtouch)
	h.CreateBlocker("giant", "bob", 4, 4)

	h.RunFullCombat("alice", []Attack{{"snake", "bob"}}, []Block{{"giant", "snake"}})

	h.AssertCreatureDead("snake")
	h.AssertCreatureDead("giant")
	died, err := h.engine.CreaturesDied(h.gameID, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"giant"}, died)
}

func TestDamageDivision_ScriptedAssignment(t *testing.T) {
	h := NewCombatTestHarness(t, "division", "alice", "bob")
	h.CreateAttacker("giant", "alice", 4, 4)
	h.CreateBlocker("b1", "bob", 2, 2)
	h.CreateBlocker("b2", "bob", 2, 2)
	scripted := h.Script("alice", players.Answers{Divide: [][]int{{1, 3}}})

	h.RunFullCombat("alice", []Attack{{"giant", "bob"}}, []Block{{"b1", "giant"}, {"b2", "giant"}})

	h.AssertCreatureAlive("b1")
	h.AssertCreatureDead("b2")
	h.AssertCreatureDead("giant")
	assert.False(t, scripted.Remaining())

	prompts := scripted.Prompts()
	require.Len(t, prompts, 1)
	assert.Equal(t, players.PromptMultiAmount, prompts[0].Kind)
	assert.Equal(t, 2, prompts[0].Entries[0].Default)
	assert.Equal(t, 2, prompts[0].Entries[1].Default)
}

func TestBanding_RequiresBandingAbility(t *testing.T) {
	h := NewCombatTestHarness(t, "banding", "alice", "bob")
	h.CreateAttacker("a", "alice", 2, 2)
	h.CreateAttacker("b", "alice", 2, 2)
	h.CreateAttacker("knight", "alice", 1, 1, battlefield.AbilityBanding)

	h.SetupCombat("alice")
	assert.ErrorIs(t, h.engine.DeclareBand(h.gameID, "alice", "bob", "a", "b"), ErrCannotAttack)
	assert.Error(t, h.engine.DeclareBand(h.gameID, "alice", "bob", "a"))
	require.NoError(t, h.engine.DeclareBand(h.gameID, "alice", "bob", "a", "knight"))

	view, err := h.engine.GetCombatView(h.gameID)
	require.NoError(t, err)
	require.Len(t, view.Groups, 1)
	assert.Equal(t, []string{"a", "knight"}, view.Groups[0].Attackers)
	h.AssertCreatureTapped("a", true)
	h.AssertCreatureTapped("knight", true)
}

func TestBlockRestrictions_CantBlockAlone(t *testing.T) {
	h := NewCombatTestHarness(t, "cant-block-alone", "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)
	h.CreateCreature(CreatureSpec{ID: "goblin", Name: "Jackal Pup", Power: 1, Toughness: 1, Controller: "bob",
		Abilities: []battlefield.Ability{battlefield.AbilityCantBlockAlone}})

	h.SetupCombat("alice")
	h.DeclareAttacker("bear", "bob", "alice")
	h.DeclareBlocker("goblin", "bear", "bob")

	legal, err := h.engine.FinishDeclaringBlockers(h.gameID, "bob")
	require.NoError(t, err)
	assert.False(t, legal)
	assert.False(t, h.IsCreatureBlocking("goblin"))

	messages, err := h.engine.GetMessages(h.gameID)
	require.NoError(t, err)
	texts := make([]string, 0, len(messages))
	for _, m := range messages {
		texts = append(texts, m.Text)
	}
	assert.Contains(t, texts, "Jackal Pup can't block alone. Removing it from combat.")

	legal, err = h.engine.FinishDeclaringBlockers(h.gameID, "bob")
	require.NoError(t, err)
	assert.True(t, legal)
}

func TestCombatRemoveBlocker(t *testing.T) {
	h := NewCombatTestHarness(t, "remove-blocker", "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)
	h.CreateBlocker("wall", "bob", 0, 4)

	h.SetupCombat("alice")
	h.DeclareAttacker("bear", "bob", "alice")
	h.DeclareBlocker("wall", "bear", "bob")
	assert.ErrorIs(t, h.engine.RemoveBlocker(h.gameID, "wall", "alice"), ErrCannotBlock)
	require.NoError(t, h.engine.RemoveBlocker(h.gameID, "wall", "bob"))
	h.AcceptBlockers()
	require.NoError(t, h.engine.RunDamageSteps(h.gameID))

	h.AssertPlayerLife("bob", 18)
	h.AssertCreatureDamage("wall", 0)
}

func TestPlaneswalkerAttackAndRemoval(t *testing.T) {
	h := NewCombatTestHarness(t, "planeswalker", "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)
	h.CreateAttacker("ogre", "alice", 3, 3)
	require.NoError(t, h.engine.AddPermanent(h.gameID, battlefield.NewPlaneswalker("jace", "Jace", "bob", 3)))
	require.NoError(t, h.engine.AddPermanent(h.gameID, battlefield.NewPlaneswalker("liliana", "Liliana", "bob", 5)))

	h.SetupCombat("alice")
	h.DeclareAttacker("bear", "jace", "alice")
	h.DeclareAttacker("ogre", "liliana", "alice")
	require.NoError(t, h.engine.RemovePermanent(h.gameID, "liliana"))
	h.AcceptBlockers()
	require.NoError(t, h.engine.RunDamageSteps(h.gameID))

	view, err := h.engine.GetGameView(h.gameID)
	require.NoError(t, err)
	jace, ok := view.Permanent("jace")
	require.True(t, ok)
	require.Len(t, jace.Counters, 1)
	assert.Equal(t, 1, jace.Counters[0].Count)
	require.Len(t, view.Combat.Groups, 2)
	assert.Equal(t, "none", view.Combat.Groups[1].DefenderKind)
	h.AssertPlayerLife("bob", 20)
}

func TestChangeDefender(t *testing.T) {
	h := NewCombatTestHarness(t, "change-defender", "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)
	require.NoError(t, h.engine.AddPermanent(h.gameID, battlefield.NewPlaneswalker("jace", "Jace", "bob", 3)))

	h.SetupCombat("alice")
	h.DeclareAttacker("bear", "bob", "alice")
	assert.ErrorIs(t, h.engine.ChangeDefender(h.gameID, "bear", "bob"), ErrInvalidDefender)
	assert.ErrorIs(t, h.engine.ChangeDefender(h.gameID, "ghost", "jace"), ErrCreatureNotFound)
	require.NoError(t, h.engine.ChangeDefender(h.gameID, "bear", "jace"))

	view, err := h.engine.GetCombatView(h.gameID)
	require.NoError(t, err)
	assert.Equal(t, "permanent", view.Groups[0].DefenderKind)
	assert.Equal(t, "jace", view.Groups[0].DefenderID)
}

func TestCombatRemoveFromCombat(t *testing.T) {
	h := NewCombatTestHarness(t, "remove-from-combat", "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)

	h.SetupCombat("alice")
	h.DeclareAttacker("bear", "bob", "alice")
	require.NoError(t, h.engine.RemoveFromCombat(h.gameID, "bear"))
	assert.ErrorIs(t, h.engine.RemoveFromCombat(h.gameID, "bear"), ErrCreatureNotFound)

	h.AssignDamage(false)
	h.AssertPlayerLife("bob", 20)
}

func TestCombatEvents(t *testing.T) {
	h := NewCombatTestHarness(t, "events", "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)
	h.CreateAttacker("ogre", "alice", 3, 3)
	h.CreateBlocker("wall", "bob", 0, 4)

	counts := make(map[rules.EventType]int)
	h.GetGameState().bus.Subscribe(func(event rules.Event) {
		counts[event.Type]++
	})

	h.RunFullCombat("alice", []Attack{{"bear", "bob"}, {"ogre", "bob"}}, []Block{{"wall", "ogre"}})

	assert.Equal(t, 1, counts[rules.EventBeginCombatStep])
	assert.Equal(t, 1, counts[rules.EventDeclareAttackersStepPre])
	assert.Equal(t, 2, counts[rules.EventAttackerDeclared])
	assert.Equal(t, 2, counts[rules.EventDefenderAttacked])
	assert.Equal(t, 1, counts[rules.EventDeclaredAttackers])
	assert.Equal(t, 1, counts[rules.EventDeclareBlockersStepPre])
	assert.Equal(t, 1, counts[rules.EventCreatureBlocks])
	assert.Equal(t, 1, counts[rules.EventBlockerDeclared])
	assert.Equal(t, 1, counts[rules.EventCreatureBlocked])
	assert.Equal(t, 1, counts[rules.EventUnblockedAttacker])
	assert.Equal(t, 1, counts[rules.EventDeclaredBlockers])
	assert.Equal(t, 1, counts[rules.EventCombatDamageApplied])
	assert.Equal(t, 1, counts[rules.EventEndCombatStepPre])
	assert.Equal(t, 1, counts[rules.EventEndCombatStep])
}

func TestPreventionEffectAndEndOfCombatCleanup(t *testing.T) {
	h := NewCombatTestHarness(t, "prevention", "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)
	require.NoError(t, h.engine.AddReplacementEffect(h.gameID,
		effects.NewCombatDamagePreventionEffect("fog", "bob", 0, effects.DurationEndOfCombat)))

	h.RunFullCombat("alice", []Attack{{"bear", "bob"}}, nil)
	h.AssertPlayerLife("bob", 20)

	require.NoError(t, h.engine.EndTurn(h.gameID))
	require.NoError(t, h.engine.Seat(h.gameID, "alice", nil))
	h.CreateAttacker("ogre", "alice", 3, 3)
	h.RunFullCombat("alice", []Attack{{"ogre", "bob"}}, nil)
	h.AssertPlayerLife("bob", 17)
}

func TestEndTurnClearsDamageAndWatchers(t *testing.T) {
	h := NewCombatTestHarness(t, "end-turn", "alice", "bob")
	h.CreateAttacker("ogre", "alice", 3, 3)
	h.CreateBlocker("bear", "bob", 2, 2)

	h.RunFullCombat("alice", []Attack{{"ogre", "bob"}}, []Block{{"bear", "ogre"}})
	h.AssertCreatureDamage("ogre", 2)
	dealt, err := h.engine.DamageDealtBy(h.gameID, "ogre")
	require.NoError(t, err)
	assert.Equal(t, 3, dealt)

	require.NoError(t, h.engine.EndTurn(h.gameID))
	h.AssertCreatureDamage("ogre", 0)
	dealt, err = h.engine.DamageDealtBy(h.gameID, "ogre")
	require.NoError(t, err)
	assert.Equal(t, 0, dealt)

	view, err := h.engine.GetGameView(h.gameID)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Turn)
}

type memorySink struct {
	mu      sync.Mutex
	records []DamageRecord
}

func (s *memorySink) RecordDamage(_ context.Context, records []DamageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func TestDamageSinkReceivesEachStep(t *testing.T) {
	h := NewCombatTestHarness(t, "sink", "alice", "bob")
	sink := &memorySink{}
	h.engine.SetDamageSink(sink)
	h.CreateAttacker("knight", "alice", 2, 2, battlefield.AbilityFirstStrike)
	h.CreateAttacker("bear", "alice", 2, 2)
	h.CreateBlocker("wall", "bob", 0, 4)

	h.RunFullCombat("alice", []Attack{{"knight", "bob"}, {"bear", "bob"}}, []Block{{"wall", "bear"}})

	require.Len(t, sink.records, 2)
	assert.Equal(t, "knight", sink.records[0].SourceID)
	assert.Equal(t, "bob", sink.records[0].TargetID)
	assert.True(t, sink.records[0].FirstStrike)
	assert.True(t, sink.records[0].ToPlayer)
	assert.Equal(t, "bear", sink.records[1].SourceID)
	assert.Equal(t, "wall", sink.records[1].TargetID)
	assert.False(t, sink.records[1].FirstStrike)
	assert.Equal(t, 2, sink.records[1].Amount)
}

func TestTerminateStopsCombat(t *testing.T) {
	h := NewCombatTestHarness(t, "terminate", "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)
	h.SetupCombat("alice")
	h.DeclareAttacker("bear", "bob", "alice")

	require.NoError(t, h.engine.Terminate(h.gameID))

	_, err := h.engine.AssignCombatDamage(h.gameID, false)
	assert.ErrorIs(t, err, ErrGameTerminated)
	assert.ErrorIs(t, h.engine.EndCombat(h.gameID), ErrGameTerminated)
	h.AssertPlayerLife("bob", 20)
}

func TestGameViewIsSnapshot(t *testing.T) {
	h := NewCombatTestHarness(t, "view", "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)
	h.SetupCombat("alice")
	h.DeclareAttacker("bear", "bob", "alice")

	before, err := h.engine.GetGameView(h.gameID)
	require.NoError(t, err)
	ok, err := before.VerifyChecksum()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, ValidateSerializationRoundtrip(before))

	h.AssignDamage(false)
	after, err := h.engine.GetGameView(h.gameID)
	require.NoError(t, err)

	bob, _ := before.Player("bob")
	assert.Equal(t, 20, bob.Life, "earlier view is unaffected")
	bob, _ = after.Player("bob")
	assert.Equal(t, 18, bob.Life)
	assert.NotEqual(t, before.Checksum, after.Checksum)

	bear, ok := before.Permanent("bear")
	require.True(t, ok)
	assert.True(t, bear.Attacking)
	assert.True(t, bear.Tapped)
}

func TestReplayRecordingDuringCombat(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "replays")
	h := newHarness(t, "replayed", Options{RecordReplays: true, ReplayDir: dir}, "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)

	h.RunFullCombat("alice", []Attack{{"bear", "bob"}}, nil)

	replay, ok := h.engine.Replays().Get(h.gameID)
	require.True(t, ok)
	assert.Equal(t, []Step{StepDeclareAttackers, StepDeclareBlockers, StepCombatDamage, StepEndCombat}, replay.Steps())

	require.NoError(t, h.engine.EndGame(h.gameID, "alice"))
	assert.False(t, h.engine.Replays().Recording(h.gameID))
	loaded, err := h.engine.Replays().Lookup(h.gameID)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Size())
	assert.Equal(t, "alice", loaded.Winner)
	damage, ok := loaded.Find(1, StepCombatDamage)
	require.True(t, ok)
	bob, _ := damage.Player("bob")
	assert.Equal(t, 18, bob.Life)

	_, err = h.engine.GetGameView(h.gameID)
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestNotificationsOnCompletedSteps(t *testing.T) {
	h := NewCombatTestHarness(t, "notify", "alice", "bob")
	h.CreateAttacker("bear", "alice", 2, 2)

	updates := make(chan GameNotification, 16)
	h.engine.SetNotificationHandler(func(n GameNotification) {
		if n.Type == "COMBAT_UPDATE" {
			updates <- n
		}
	})

	h.SetupCombat("alice")
	h.DeclareAttacker("bear", "bob", "alice")
	require.NoError(t, h.engine.FinishDeclaringAttackers(h.gameID))

	select {
	case n := <-updates:
		assert.Equal(t, h.gameID, n.GameID)
		assert.Equal(t, string(StepDeclareAttackers), n.Data["step"])
	case <-time.After(time.Second):
		t.Fatal("no combat update")
	}
}
