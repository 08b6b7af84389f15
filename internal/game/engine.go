// Package game drives combat for many concurrent games. Each game owns a
// battlefield, an event bus with its watchers, a replacement manager and the
// combat in progress; the Engine steps it through declare attackers, declare
// blockers, the damage steps and end of combat.
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/magefree/mage-combat-go/internal/game/battlefield"
	"github.com/magefree/mage-combat-go/internal/game/combat"
	"github.com/magefree/mage-combat-go/internal/game/effects"
	"github.com/magefree/mage-combat-go/internal/game/players"
	"github.com/magefree/mage-combat-go/internal/game/rules"
	"github.com/magefree/mage-combat-go/internal/game/watchers"
	"go.uber.org/zap"
)

// Step is the combat step a game is in.
type Step string

const (
	StepNone              Step = ""
	StepBeginCombat       Step = "begin_combat"
	StepDeclareAttackers  Step = "declare_attackers"
	StepDeclareBlockers   Step = "declare_blockers"
	StepFirstStrikeDamage Step = "first_strike_damage"
	StepCombatDamage      Step = "combat_damage"
	StepEndCombat         Step = "end_combat"
)

// DefaultStartingLife is used for players added without a life total.
const DefaultStartingLife = 20

// Options configures an Engine.
type Options struct {
	// VerifyBlockerIndex re-derives every combat's blocker index after each
	// membership change.
	VerifyBlockerIndex bool
	// RecordReplays records a view after every completed combat step.
	RecordReplays bool
	// ReplayDir is where replays are saved when a game ends.
	ReplayDir string
}

// PlayerInfo describes a player joining a game.
type PlayerInfo struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Life int    `json:"life" yaml:"life"`
}

// EngineMessage represents a game log message
type EngineMessage struct {
	Text      string    `json:"text"`
	Color     string    `json:"color"`
	Timestamp time.Time `json:"timestamp"`
}

// GameNotification represents a notification that can be sent to UI/websocket clients
type GameNotification struct {
	Type      string                 // e.g. "COMBAT_UPDATE", "GAME_ENDED"
	GameID    string                 // Game ID
	PlayerID  string                 // Target player ID (empty for broadcast)
	Timestamp time.Time              // When the notification was created
	Data      map[string]interface{} // Notification-specific data
}

// NotificationHandler is a function that handles game notifications
type NotificationHandler func(notification GameNotification)

// DamageRecord is one amount of combat damage that was dealt.
type DamageRecord struct {
	GameID      string    `json:"game_id"`
	Turn        int       `json:"turn"`
	SourceID    string    `json:"source_id"`
	TargetID    string    `json:"target_id"`
	Amount      int       `json:"amount"`
	FirstStrike bool      `json:"first_strike"`
	ToPlayer    bool      `json:"to_player"`
	Timestamp   time.Time `json:"timestamp"`
}

// DamageSink stores combat damage records. The engine hands over the records
// of a damage step once the step is complete.
type DamageSink interface {
	RecordDamage(ctx context.Context, records []DamageRecord) error
}

// gameState is the state of one game. Everything in it is guarded by mu.
type gameState struct {
	gameID string
	ctx    context.Context
	cancel context.CancelFunc

	battlefield  *battlefield.Battlefield
	combat       *combat.Combat
	bus          *rules.EventBus
	registry     *rules.WatcherRegistry
	replacements *effects.ReplacementManager
	firstStrike  *watchers.FirstStrikeWatcher
	damage       *watchers.CombatDamageWatcher
	died         *watchers.CreaturesDiedWatcher
	table        *players.Table

	turn          int
	step          Step
	finished      bool
	winner        string
	messages      []EngineMessage
	pendingDamage []DamageRecord
	startedAt     time.Time
	mu            sync.RWMutex
}

func (gs *gameState) addMessage(text, color string) {
	gs.messages = append(gs.messages, EngineMessage{
		Text:      text,
		Color:     color,
		Timestamp: time.Now(),
	})
}

// collectMessages moves what combat reported to players into the game log.
func (gs *gameState) collectMessages() {
	for _, text := range gs.combat.Messages() {
		gs.addMessage(text, "rules")
	}
}

func (gs *gameState) recordDamage(event rules.Event) {
	if !event.Flag || event.Amount <= 0 {
		return
	}
	gs.pendingDamage = append(gs.pendingDamage, DamageRecord{
		GameID:      gs.gameID,
		Turn:        gs.turn,
		SourceID:    event.SourceID,
		TargetID:    event.TargetID,
		Amount:      event.Amount,
		FirstStrike: gs.step == StepFirstStrikeDamage,
		ToPlayer:    event.Type == rules.EventDamagedPlayer,
		Timestamp:   event.Timestamp,
	})
}

// Engine runs combat for any number of games.
type Engine struct {
	logger              *zap.Logger
	opts                Options
	mu                  sync.RWMutex
	games               map[string]*gameState
	notificationHandler NotificationHandler
	damageSink          DamageSink
	replays             *ReplayRecorder
}

// NewEngine creates an engine with no games.
func NewEngine(logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReplayDir == "" {
		opts.ReplayDir = "replays"
	}
	return &Engine{
		logger:  logger,
		opts:    opts,
		games:   make(map[string]*gameState),
		replays: NewReplayRecorder(logger, opts.ReplayDir),
	}
}

// SetNotificationHandler sets the handler for game notifications.
func (e *Engine) SetNotificationHandler(handler NotificationHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notificationHandler = handler
}

// SetDamageSink sets where combat damage records go.
func (e *Engine) SetDamageSink(sink DamageSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.damageSink = sink
}

// Replays returns the engine's replay recorder.
func (e *Engine) Replays() *ReplayRecorder {
	return e.replays
}

// emitNotification hands a notification to the registered handler on its own
// goroutine, so it is safe to call while holding a game lock.
func (e *Engine) emitNotification(notification GameNotification) {
	e.mu.RLock()
	handler := e.notificationHandler
	e.mu.RUnlock()

	if handler != nil {
		go handler(notification)
	}
}

func (e *Engine) notifyCombatUpdate(gs *gameState) {
	e.emitNotification(GameNotification{
		Type:      "COMBAT_UPDATE",
		GameID:    gs.gameID,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"step": string(gs.step),
			"turn": gs.turn,
		},
	})
}

func (e *Engine) game(gameID string) (*gameState, error) {
	e.mu.RLock()
	gameState, exists := e.games[gameID]
	e.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("game %s: %w", gameID, ErrGameNotFound)
	}
	return gameState, nil
}

// StartGame creates a game with the given players.
func (e *Engine) StartGame(gameID string, players []PlayerInfo) error {
	if gameID == "" {
		return fmt.Errorf("game id is required")
	}
	if len(players) < 2 {
		return fmt.Errorf("game %s needs at least two players, got %d", gameID, len(players))
	}

	gs, err := e.newGameState(gameID, players)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if _, exists := e.games[gameID]; exists {
		e.mu.Unlock()
		gs.cancel()
		return fmt.Errorf("game %s: %w", gameID, ErrGameExists)
	}
	e.games[gameID] = gs
	e.mu.Unlock()

	if e.opts.RecordReplays {
		e.replays.Start(gameID)
	}

	e.logger.Info("combat game started",
		zap.String("game_id", gameID),
		zap.Int("players", len(players)))
	e.emitNotification(GameNotification{
		Type:      "GAME_STARTED",
		GameID:    gameID,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"players": len(players)},
	})
	return nil
}

func (e *Engine) newGameState(gameID string, infos []PlayerInfo) (*gameState, error) {
	logger := e.logger
	ctx, cancel := context.WithCancel(context.Background())

	gs := &gameState{
		gameID:       gameID,
		ctx:          ctx,
		cancel:       cancel,
		bus:          rules.NewEventBus(),
		registry:     rules.NewWatcherRegistry(),
		replacements: effects.NewReplacementManager(logger),
		firstStrike:  watchers.NewFirstStrikeWatcher(),
		damage:       watchers.NewCombatDamageWatcher(),
		died:         watchers.NewCreaturesDiedWatcher(),
		table:        players.NewTable(players.Auto{}),
		turn:         1,
		startedAt:    time.Now(),
	}
	gs.registry.AddWatcher(gs.firstStrike)
	gs.registry.AddWatcher(gs.damage)
	gs.registry.AddWatcher(gs.died)
	gs.bus.Subscribe(gs.registry.NotifyWatchers)
	gs.bus.SubscribeTyped(rules.EventCombatDamageMarked, gs.recordDamage)
	gs.bus.SubscribeTyped(rules.EventDamagedPlayer, gs.recordDamage)

	gs.battlefield = battlefield.New(gameID, logger, gs.bus, gs.replacements)
	for _, info := range infos {
		life := info.Life
		if life == 0 {
			life = DefaultStartingLife
		}
		if err := gs.battlefield.AddPlayer(info.ID, info.Name, life); err != nil {
			cancel()
			return nil, fmt.Errorf("game %s: %w", gameID, err)
		}
	}

	gs.combat = combat.New(gameID, gs.battlefield, gs.table,
		combat.NewEventNotifier(gameID, gs.bus, gs.replacements),
		gs.firstStrike, logger,
		combat.WithBlockerIndexVerification(e.opts.VerifyBlockerIndex))
	return gs, nil
}

// AddPermanent puts a permanent onto a game's battlefield.
func (e *Engine) AddPermanent(gameID string, permanent *battlefield.Permanent) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.battlefield.AddPermanent(permanent); err != nil {
		return fmt.Errorf("game %s: %w", gameID, err)
	}
	return nil
}

// Seat sets who answers the combat questions put to playerID. A nil provider
// makes the player take every default.
func (e *Engine) Seat(gameID, playerID string, provider combat.DecisionProvider) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if _, ok := gameState.battlefield.Player(playerID); !ok {
		return fmt.Errorf("player %s not in game %s", playerID, gameID)
	}
	gameState.table.Seat(playerID, provider)
	return nil
}

// AddReplacementEffect registers a replacement or prevention effect.
func (e *Engine) AddReplacementEffect(gameID string, effect effects.ReplacementEffect) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	gameState.replacements.AddEffect(effect)
	return nil
}

// SetAssignsDamageByToughness turns on or off "creatures you control assign
// combat damage equal to their toughness" for playerID.
func (e *Engine) SetAssignsDamageByToughness(gameID, playerID string, enabled bool) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	gameState.battlefield.SetAssignsDamageByToughness(playerID, enabled)
	return nil
}

// BeginCombat starts a new combat with playerID attacking. Anything left of a
// previous combat is cleared.
func (e *Engine) BeginCombat(gameID, playerID string) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.live(); err != nil {
		return err
	}
	if _, ok := gameState.battlefield.Player(playerID); !ok {
		return fmt.Errorf("player %s not in game %s", playerID, gameID)
	}

	gameState.combat.End()
	gameState.combat.SetAttackingPlayer(playerID)
	gameState.step = StepBeginCombat
	gameState.bus.Publish(rules.NewEvent(rules.EventBeginCombatStep, "", "", playerID))

	e.logger.Debug("combat begun",
		zap.String("game_id", gameID),
		zap.String("attacking_player_id", playerID),
		zap.Int("turn", gameState.turn))
	return nil
}

// DeclareAttacker declares creatureID as attacking defenderID, a player,
// planeswalker or battle.
func (e *Engine) DeclareAttacker(gameID, creatureID, defenderID, playerID string) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.validateAttacker(creatureID, playerID); err != nil {
		return err
	}

	if gameState.step != StepDeclareAttackers {
		gameState.step = StepDeclareAttackers
		gameState.bus.Publish(rules.NewEvent(rules.EventDeclareAttackersStepPre, "", "", playerID))
	}

	if _, err := gameState.combat.DeclareAttacker(creatureID, defenderID); err != nil {
		return attackError(err, creatureID, defenderID)
	}
	gameState.attacked(creatureID, defenderID, playerID)
	return nil
}

// DeclareBand declares creatureIDs as one band attacking defenderID.
func (e *Engine) DeclareBand(gameID, playerID, defenderID string, creatureIDs ...string) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if len(creatureIDs) < 2 {
		return fmt.Errorf("a band needs at least two creatures, got %d", len(creatureIDs))
	}
	hasBanding := false
	for _, id := range creatureIDs {
		if err := gameState.validateAttacker(id, playerID); err != nil {
			return err
		}
		if gameState.battlefield.HasAbility(id, battlefield.AbilityBanding) {
			hasBanding = true
		}
	}
	if !hasBanding {
		return fmt.Errorf("band %v: %w: no creature has banding", creatureIDs, ErrCannotAttack)
	}

	if gameState.step != StepDeclareAttackers {
		gameState.step = StepDeclareAttackers
		gameState.bus.Publish(rules.NewEvent(rules.EventDeclareAttackersStepPre, "", "", playerID))
	}

	if _, err := gameState.combat.DeclareBand(defenderID, creatureIDs...); err != nil {
		return attackError(err, creatureIDs[0], defenderID)
	}
	for _, id := range creatureIDs {
		gameState.attacked(id, defenderID, playerID)
	}
	return nil
}

func attackError(err error, creatureID, defenderID string) error {
	if errors.Is(err, combat.ErrUnknownDefender) {
		return fmt.Errorf("defender %s: %w", defenderID, ErrInvalidDefender)
	}
	return fmt.Errorf("creature %s: %w: %v", creatureID, ErrCannotAttack, err)
}

func (gs *gameState) validateAttacker(creatureID, playerID string) error {
	if err := gs.live(); err != nil {
		return err
	}
	if gs.combat.AttackingPlayerID() == "" {
		return fmt.Errorf("game %s: %w", gs.gameID, ErrNoCombat)
	}
	if playerID != gs.combat.AttackingPlayerID() {
		return fmt.Errorf("player %s: %w", playerID, ErrNotAttackingPlayer)
	}

	creature, exists := gs.battlefield.Permanent(creatureID)
	if !exists || !creature.Is(battlefield.TypeCreature) {
		return fmt.Errorf("creature %s: %w", creatureID, ErrCreatureNotFound)
	}
	if creature.ControllerID != playerID {
		return fmt.Errorf("creature %s is not controlled by player %s: %w", creatureID, playerID, ErrCannotAttack)
	}
	if creature.Tapped {
		return fmt.Errorf("creature %s is tapped: %w", creatureID, ErrCannotAttack)
	}
	if gs.battlefield.HasAbility(creatureID, battlefield.AbilityDefender) {
		return fmt.Errorf("creature %s has defender: %w", creatureID, ErrCannotAttack)
	}
	return nil
}

// attacked taps a new attacker unless it has vigilance and announces it.
func (gs *gameState) attacked(creatureID, defenderID, playerID string) {
	if !gs.battlefield.HasAbility(creatureID, battlefield.AbilityVigilance) {
		gs.battlefield.Tap(creatureID, true)
	}

	event := rules.NewEvent(rules.EventAttackerDeclared, creatureID, creatureID, playerID)
	event.Metadata["defender_id"] = defenderID
	gs.bus.Publish(event)

	defenderEvent := rules.NewEvent(rules.EventDefenderAttacked, defenderID, creatureID, playerID)
	defenderEvent.Metadata["attacker_id"] = creatureID
	gs.bus.Publish(defenderEvent)

	gs.addMessage(fmt.Sprintf("%s attacks %s", gs.battlefield.Name(creatureID), gs.nameOf(defenderID)), "action")
}

func (gs *gameState) nameOf(id string) string {
	if player, ok := gs.battlefield.Player(id); ok {
		return player.Name
	}
	return gs.battlefield.Name(id)
}

// FinishDeclaringAttackers closes the declare attackers step.
func (e *Engine) FinishDeclaringAttackers(gameID string) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.live(); err != nil {
		return err
	}
	attackingPlayerID := gameState.combat.AttackingPlayerID()
	if attackingPlayerID == "" {
		return fmt.Errorf("game %s: %w", gameID, ErrNoCombat)
	}

	gameState.step = StepDeclareAttackers
	gameState.bus.Publish(rules.NewEvent(rules.EventDeclaredAttackers, "", "", attackingPlayerID))

	e.logger.Debug("attackers declared",
		zap.String("game_id", gameID),
		zap.Strings("attackers", gameState.combat.Attackers()))
	e.stepCompleted(gameState)
	return nil
}

// DeclareBlocker declares blockerID as blocking the group attackerID is in.
func (e *Engine) DeclareBlocker(gameID, blockerID, attackerID, playerID string) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.live(); err != nil {
		return err
	}
	blocker, exists := gameState.battlefield.Permanent(blockerID)
	if !exists || !blocker.Is(battlefield.TypeCreature) {
		return fmt.Errorf("creature %s: %w", blockerID, ErrCreatureNotFound)
	}
	if blocker.ControllerID != playerID {
		return fmt.Errorf("creature %s is not controlled by player %s: %w", blockerID, playerID, ErrCannotBlock)
	}
	if blocker.Tapped {
		return fmt.Errorf("creature %s is tapped: %w", blockerID, ErrCannotBlock)
	}

	if gameState.step != StepDeclareBlockers {
		gameState.step = StepDeclareBlockers
		gameState.bus.Publish(rules.NewEvent(rules.EventDeclareBlockersStepPre, "", "", playerID))
	}

	if err := gameState.combat.DeclareBlocker(blockerID, attackerID); err != nil {
		if errors.Is(err, combat.ErrNotAttacking) {
			return fmt.Errorf("creature %s: %w", attackerID, ErrCreatureNotFound)
		}
		return fmt.Errorf("%w: %v", ErrCannotBlock, err)
	}
	gameState.bus.Publish(rules.NewEvent(rules.EventCreatureBlocks, blockerID, attackerID, playerID))
	gameState.addMessage(fmt.Sprintf("%s blocks %s", blocker.Name, gameState.battlefield.Name(attackerID)), "action")
	return nil
}

// RemoveBlocker undoes every block of blockerID while blocks are being declared.
func (e *Engine) RemoveBlocker(gameID, blockerID, playerID string) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.live(); err != nil {
		return err
	}
	if gameState.battlefield.ControllerOf(blockerID) != playerID {
		return fmt.Errorf("creature %s is not controlled by player %s: %w", blockerID, playerID, ErrCannotBlock)
	}
	gameState.combat.RemoveBlocker(blockerID)
	return nil
}

// FinishDeclaringBlockers enforces the blocking restrictions for
// defendingPlayerID, or every defending player if it is empty. If the blocks
// were legal they are accepted and true is returned; otherwise the offending
// blockers were removed and blocks must be declared again.
func (e *Engine) FinishDeclaringBlockers(gameID, defendingPlayerID string) (bool, error) {
	gameState, err := e.game(gameID)
	if err != nil {
		return false, err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.live(); err != nil {
		return false, err
	}
	if gameState.combat.AttackingPlayerID() == "" {
		return false, fmt.Errorf("game %s: %w", gameID, ErrNoCombat)
	}

	legal := gameState.combat.CheckBlockRestrictions(defendingPlayerID)
	gameState.collectMessages()
	if !legal {
		e.logger.Info("illegal blocks removed",
			zap.String("game_id", gameID),
			zap.String("defending_player_id", defendingPlayerID))
		return false, nil
	}

	gameState.step = StepDeclareBlockers
	gameState.combat.AcceptBlockers()
	gameState.bus.Publish(rules.NewEvent(rules.EventDeclaredBlockers, "", "", defendingPlayerID))
	e.stepCompleted(gameState)
	return true, nil
}

// AssignCombatDamage runs one combat damage step: the first-strike step if
// first is set, otherwise the regular one. The first-strike step is skipped
// when no creature in combat has first strike or double strike, and then
// AssignCombatDamage reports false.
func (e *Engine) AssignCombatDamage(gameID string, first bool) (bool, error) {
	gameState, err := e.game(gameID)
	if err != nil {
		return false, err
	}

	ran, records, err := e.assignCombatDamage(gameState, first)
	e.flushDamage(gameState.ctx, records)
	return ran, err
}

func (e *Engine) assignCombatDamage(gameState *gameState, first bool) (bool, []DamageRecord, error) {
	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.live(); err != nil {
		return false, nil, err
	}
	if first && !gameState.combat.HasFirstOrDoubleStrike() {
		return false, nil, nil
	}

	gameState.step = StepCombatDamage
	if first {
		gameState.step = StepFirstStrikeDamage
	}
	gameState.bus.Publish(rules.NewEvent(rules.EventCombatDamageStepPre, "", "", gameState.combat.AttackingPlayerID()))

	err := gameState.combat.AssignDamage(gameState.ctx, first)
	gameState.collectMessages()
	records := gameState.pendingDamage
	gameState.pendingDamage = nil
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false, records, fmt.Errorf("game %s: %w", gameState.gameID, ErrGameTerminated)
		}
		return false, records, err
	}

	e.logger.Debug("combat damage assigned",
		zap.String("game_id", gameState.gameID),
		zap.Bool("first_strike", first),
		zap.Int("records", len(records)))
	return true, records, nil
}

func (e *Engine) flushDamage(ctx context.Context, records []DamageRecord) {
	if len(records) == 0 {
		return
	}
	e.mu.RLock()
	sink := e.damageSink
	e.mu.RUnlock()
	if sink == nil {
		return
	}
	if err := sink.RecordDamage(context.WithoutCancel(ctx), records); err != nil {
		e.logger.Warn("failed to record combat damage",
			zap.String("game_id", records[0].GameID),
			zap.Int("records", len(records)),
			zap.Error(err))
	}
}

// ApplyCombatDamage turns the marked combat damage into game state, checks
// state-based actions and takes dead creatures out of combat. It returns the
// permanents that died.
func (e *Engine) ApplyCombatDamage(gameID string) ([]string, error) {
	gameState, err := e.game(gameID)
	if err != nil {
		return nil, err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.live(); err != nil {
		return nil, err
	}

	total := gameState.combat.ApplyDamage()
	gameState.bus.Publish(rules.NewEventWithAmount(rules.EventCombatDamageApplied, "", "", gameState.combat.AttackingPlayerID(), total))

	dead := gameState.battlefield.CheckStateBasedActions()
	for _, id := range dead {
		gameState.combat.RemoveFromCombat(id)
		gameState.combat.RemoveAttackedPermanent(id)
		gameState.replacements.CleanupSourceLeftBattlefield(id)
	}
	for _, player := range gameState.battlefield.Players() {
		if player.Lost {
			gameState.addMessage(fmt.Sprintf("%s has lost the game", player.Name), "rules")
		}
	}

	e.logger.Debug("combat damage applied",
		zap.String("game_id", gameID),
		zap.Int("amount", total),
		zap.Strings("died", dead))
	e.stepCompleted(gameState)
	return dead, nil
}

// RunDamageSteps runs the first-strike step if there is one and then the
// regular combat damage step, applying damage after each.
func (e *Engine) RunDamageSteps(gameID string) error {
	for _, first := range []bool{true, false} {
		ran, err := e.AssignCombatDamage(gameID, first)
		if err != nil {
			return err
		}
		if !ran {
			continue
		}
		if _, err := e.ApplyCombatDamage(gameID); err != nil {
			return err
		}
	}
	return nil
}

// EndCombat ends the combat: creatures leave combat and end of combat
// effects expire.
func (e *Engine) EndCombat(gameID string) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.live(); err != nil {
		return err
	}

	playerID := gameState.combat.AttackingPlayerID()
	gameState.step = StepEndCombat
	gameState.bus.Publish(rules.NewEvent(rules.EventEndCombatStepPre, "", "", playerID))
	expired := gameState.replacements.CleanupEndOfCombat()
	gameState.bus.Publish(rules.NewEvent(rules.EventEndCombatStep, "", "", playerID))
	e.stepCompleted(gameState)
	gameState.combat.End()
	gameState.step = StepNone

	e.logger.Debug("combat ended",
		zap.String("game_id", gameID),
		zap.Int("effects_expired", expired))
	return nil
}

// EndTurn removes damage from permanents, expires end of turn effects and
// resets the turn's watchers.
func (e *Engine) EndTurn(gameID string) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.live(); err != nil {
		return err
	}
	gameState.battlefield.ClearDamage()
	gameState.replacements.CleanupEndOfTurn()
	gameState.registry.ResetWatchers()
	gameState.turn++
	return nil
}

// ChangeDefender redirects the group attackerID is in at newDefenderID.
func (e *Engine) ChangeDefender(gameID, attackerID, newDefenderID string) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.live(); err != nil {
		return err
	}
	group := gameState.combat.FindGroup(attackerID)
	if group == nil {
		return fmt.Errorf("creature %s is not attacking: %w", attackerID, ErrCreatureNotFound)
	}
	if !group.ChangeDefender(newDefenderID) {
		return fmt.Errorf("defender %s: %w", newDefenderID, ErrInvalidDefender)
	}
	return nil
}

// RemoveFromCombat takes an attacking or blocking creature out of combat.
func (e *Engine) RemoveFromCombat(gameID, creatureID string) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.live(); err != nil {
		return err
	}
	if !gameState.combat.RemoveFromCombat(creatureID) {
		return fmt.Errorf("creature %s is not in combat: %w", creatureID, ErrCreatureNotFound)
	}
	return nil
}

// RemovePermanent takes a permanent off the battlefield mid-combat, as when it
// is destroyed or exiled. Groups attacking it lose their defender.
func (e *Engine) RemovePermanent(gameID, permanentID string) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}

	gameState.mu.Lock()
	defer gameState.mu.Unlock()

	if err := gameState.live(); err != nil {
		return err
	}
	gameState.combat.RemoveFromCombat(permanentID)
	gameState.combat.RemoveAttackedPermanent(permanentID)
	if !gameState.battlefield.RemovePermanent(permanentID) {
		return fmt.Errorf("permanent %s: %w", permanentID, ErrCreatureNotFound)
	}
	gameState.replacements.CleanupSourceLeftBattlefield(permanentID)
	return nil
}

// Terminate stops a game. A damage step in progress stops before its next
// group; damage it already marked stays.
func (e *Engine) Terminate(gameID string) error {
	gameState, err := e.game(gameID)
	if err != nil {
		return err
	}
	gameState.cancel()

	e.logger.Info("combat game terminated", zap.String("game_id", gameID))
	return nil
}

// EndGame finishes a game, saving its replay if one was recorded.
func (e *Engine) EndGame(gameID, winner string) error {
	e.mu.Lock()
	gameState, exists := e.games[gameID]
	if !exists {
		e.mu.Unlock()
		return fmt.Errorf("game %s: %w", gameID, ErrGameNotFound)
	}
	delete(e.games, gameID)
	e.mu.Unlock()

	gameState.mu.Lock()
	gameState.finished = true
	gameState.winner = winner
	gameState.addMessage(fmt.Sprintf("Game ended. Winner: %s", winner), "action")
	gameState.mu.Unlock()
	gameState.cancel()

	e.logger.Info("combat game ended",
		zap.String("game_id", gameID),
		zap.String("winner", winner))
	e.emitNotification(GameNotification{
		Type:      "GAME_ENDED",
		GameID:    gameID,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"winner": winner},
	})

	if e.replays.Recording(gameID) {
		if err := e.replays.Finish(gameID, winner); err != nil {
			return fmt.Errorf("game %s: %w", gameID, err)
		}
	}
	return nil
}

// live reports ErrGameTerminated once the game is stopped or over.
func (gs *gameState) live() error {
	if gs.finished || gs.ctx.Err() != nil {
		return fmt.Errorf("game %s: %w", gs.gameID, ErrGameTerminated)
	}
	return nil
}

// stepCompleted records the game for replays and tells listeners combat
// changed. Called with the game locked.
func (e *Engine) stepCompleted(gs *gameState) {
	if e.replays.Recording(gs.gameID) {
		e.replays.Record(gs.gameID, gs.snapshot())
	}
	e.notifyCombatUpdate(gs)
}

// GetMessages returns the game log.
func (e *Engine) GetMessages(gameID string) ([]EngineMessage, error) {
	gameState, err := e.game(gameID)
	if err != nil {
		return nil, err
	}

	gameState.mu.RLock()
	defer gameState.mu.RUnlock()

	return append([]EngineMessage(nil), gameState.messages...), nil
}

// DamageDealtBy returns the combat damage sourceID dealt this turn.
func (e *Engine) DamageDealtBy(gameID, sourceID string) (int, error) {
	gameState, err := e.game(gameID)
	if err != nil {
		return 0, err
	}

	gameState.mu.RLock()
	defer gameState.mu.RUnlock()

	return gameState.damage.DamageDealtBy(sourceID), nil
}

// CreaturesDied returns the creatures controlled by controllerID that died
// this turn.
func (e *Engine) CreaturesDied(gameID, controllerID string) ([]string, error) {
	gameState, err := e.game(gameID)
	if err != nil {
		return nil, err
	}

	gameState.mu.RLock()
	defer gameState.mu.RUnlock()

	return append([]string(nil), gameState.died.Died(controllerID)...), nil
}

// GameIDs returns the IDs of the games in progress.
func (e *Engine) GameIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.games))
	for id := range e.games {
		ids = append(ids, id)
	}
	return ids
}
