package scenario

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/magefree/mage-combat-go/internal/game"
	"github.com/magefree/mage-combat-go/internal/game/players"
	"go.uber.org/zap"
)

// maxBlockRounds bounds how often blocks are rechecked after illegal
// blockers were removed.
const maxBlockRounds = 4

// Result is what happened when a scenario was played.
type Result struct {
	GameID      string
	LegalBlocks bool
	Dead        []string
	DealtBy     map[string]int
	View        *game.GameView
	Messages    []game.EngineMessage
	Prompts     []players.Prompt
	// Unused reports that queued answers were left over.
	Unused bool
}

// Runner plays scenarios on an engine, one game per scenario.
type Runner struct {
	engine *game.Engine
	logger *zap.Logger
}

// NewRunner creates a runner.
func NewRunner(engine *game.Engine, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{engine: engine, logger: logger}
}

// Run plays s through one full combat and ends the game.
func (r *Runner) Run(ctx context.Context, s *Scenario) (*Result, error) {
	gameID := "scenario-" + uuid.NewString()
	logger := r.logger.With(zap.String("scenario", s.Name), zap.String("game_id", gameID))

	if err := r.engine.StartGame(gameID, s.Players); err != nil {
		return nil, err
	}
	result, err := r.play(ctx, gameID, s)
	if err != nil {
		if endErr := r.engine.EndGame(gameID, ""); endErr != nil {
			logger.Warn("failed to end scenario game", zap.Error(endErr))
		}
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	if err := r.engine.EndGame(gameID, winner(result.View)); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	logger.Info("scenario played",
		zap.Bool("legal_blocks", result.LegalBlocks),
		zap.Strings("dead", result.Dead))
	return result, nil
}

func (r *Runner) play(ctx context.Context, gameID string, s *Scenario) (*Result, error) {
	e := r.engine

	for _, p := range s.Permanents {
		perm, err := p.build()
		if err != nil {
			return nil, err
		}
		if err := e.AddPermanent(gameID, perm); err != nil {
			return nil, err
		}
	}
	for _, eff := range s.Effects {
		effect, err := eff.build()
		if err != nil {
			return nil, err
		}
		if err := e.AddReplacementEffect(gameID, effect); err != nil {
			return nil, err
		}
	}
	for _, playerID := range s.ToughnessAssigners {
		if err := e.SetAssignsDamageByToughness(gameID, playerID, true); err != nil {
			return nil, err
		}
	}

	scripted := players.NewScripted(r.logger)
	for playerID, answers := range s.Answers {
		scripted.Queue(playerID, answers)
	}
	for _, p := range s.Players {
		if err := e.Seat(gameID, p.ID, scripted); err != nil {
			return nil, err
		}
	}

	if err := e.BeginCombat(gameID, s.Attacker); err != nil {
		return nil, err
	}
	for _, a := range s.Attacks {
		if err := e.DeclareAttacker(gameID, a.Attacker, a.Defender, s.Attacker); err != nil {
			return nil, err
		}
	}
	for _, b := range s.Bands {
		if err := e.DeclareBand(gameID, s.Attacker, b.Defender, b.Creatures...); err != nil {
			return nil, err
		}
	}
	if err := e.FinishDeclaringAttackers(gameID); err != nil {
		return nil, err
	}

	for _, b := range s.Blocks {
		if err := e.DeclareBlocker(gameID, b.Blocker, b.Attacker, s.controllerOf(b.Blocker)); err != nil {
			return nil, err
		}
	}
	legal, err := r.finishBlocks(gameID)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.RunDamageSteps(gameID); err != nil {
		return nil, err
	}

	dealt := make(map[string]int)
	for _, p := range s.Permanents {
		n, err := e.DamageDealtBy(gameID, p.ID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			dealt[p.ID] = n
		}
	}
	if err := e.EndCombat(gameID); err != nil {
		return nil, err
	}

	view, err := e.GetGameView(gameID)
	if err != nil {
		return nil, err
	}
	messages, err := e.GetMessages(gameID)
	if err != nil {
		return nil, err
	}

	dead := make([]string, 0)
	for _, p := range s.Permanents {
		if _, ok := view.Permanent(p.ID); !ok {
			dead = append(dead, p.ID)
		}
	}

	return &Result{
		GameID:      gameID,
		LegalBlocks: legal,
		Dead:        dead,
		DealtBy:     dealt,
		View:        view,
		Messages:    messages,
		Prompts:     scripted.Prompts(),
		Unused:      scripted.Remaining(),
	}, nil
}

// finishBlocks closes the declare blockers step. It reports whether the
// blocks were legal as first declared.
func (r *Runner) finishBlocks(gameID string) (bool, error) {
	legalAsDeclared := true
	for round := 0; round < maxBlockRounds; round++ {
		legal, err := r.engine.FinishDeclaringBlockers(gameID, "")
		if err != nil {
			return false, err
		}
		if legal {
			return legalAsDeclared, nil
		}
		legalAsDeclared = false
	}
	return false, fmt.Errorf("blocks still illegal after %d rounds", maxBlockRounds)
}

// winner is the only player who has not lost, if there is one.
func winner(view *game.GameView) string {
	var standing []string
	for _, p := range view.Players {
		if !p.Lost {
			standing = append(standing, p.ID)
		}
	}
	if len(standing) == 1 {
		return standing[0]
	}
	return ""
}

// Check compares a result with what the scenario expects. Every mismatch is
// reported.
func (s *Scenario) Check(r *Result) error {
	var errs []error
	exp := s.Expect

	if exp.LegalBlocks != nil && *exp.LegalBlocks != r.LegalBlocks {
		errs = append(errs, fmt.Errorf("legal_blocks: got %t, want %t", r.LegalBlocks, *exp.LegalBlocks))
	}
	for _, id := range sortedKeys(exp.Life) {
		p, ok := r.View.Player(id)
		if !ok {
			errs = append(errs, fmt.Errorf("life %s: no such player", id))
			continue
		}
		if p.Life != exp.Life[id] {
			errs = append(errs, fmt.Errorf("life %s: got %d, want %d", id, p.Life, exp.Life[id]))
		}
	}
	for _, id := range exp.Dead {
		if _, ok := r.View.Permanent(id); ok {
			errs = append(errs, fmt.Errorf("dead %s: still on the battlefield", id))
		}
	}
	for _, id := range exp.Alive {
		if _, ok := r.View.Permanent(id); !ok {
			errs = append(errs, fmt.Errorf("alive %s: not on the battlefield", id))
		}
	}
	for _, id := range sortedKeys(exp.Damage) {
		p, ok := r.View.Permanent(id)
		if !ok {
			errs = append(errs, fmt.Errorf("damage %s: not on the battlefield", id))
			continue
		}
		if p.Damage != exp.Damage[id] {
			errs = append(errs, fmt.Errorf("damage %s: got %d, want %d", id, p.Damage, exp.Damage[id]))
		}
	}
	for _, id := range sortedKeys(exp.DealtBy) {
		if got := r.DealtBy[id]; got != exp.DealtBy[id] {
			errs = append(errs, fmt.Errorf("dealt_by %s: got %d, want %d", id, got, exp.DealtBy[id]))
		}
	}
	for _, id := range sortedKeys(exp.Counters) {
		p, ok := r.View.Permanent(id)
		if !ok {
			errs = append(errs, fmt.Errorf("counters %s: not on the battlefield", id))
			continue
		}
		have := make(map[string]int)
		for _, c := range p.Counters {
			have[c.Name] = c.Count
		}
		want := exp.Counters[id]
		for _, name := range sortedKeys(want) {
			if have[name] != want[name] {
				errs = append(errs, fmt.Errorf("counters %s %s: got %d, want %d", id, name, have[name], want[name]))
			}
		}
	}
	for _, text := range exp.Messages {
		if !logged(r.Messages, text) {
			errs = append(errs, fmt.Errorf("messages: nothing logged containing %q", text))
		}
	}
	return errors.Join(errs...)
}

func logged(messages []game.EngineMessage, text string) bool {
	for _, m := range messages {
		if strings.Contains(m.Text, text) {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
