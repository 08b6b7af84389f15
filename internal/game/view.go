package game

import (
	"fmt"
	"sort"
	"time"

	"github.com/magefree/mage-combat-go/internal/game/battlefield"
	"github.com/magefree/mage-combat-go/internal/game/combat"
	"github.com/magefree/mage-combat-go/internal/game/counters"
)

// PlayerView is a player as spectators see it.
type PlayerView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Life int    `json:"life"`
	Lost bool   `json:"lost"`
}

// PermanentView is a permanent as spectators see it.
type PermanentView struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	ControllerID string                 `json:"controller_id"`
	Types        []string               `json:"types"`
	Power        int                    `json:"power"`
	Toughness    int                    `json:"toughness"`
	Damage       int                    `json:"damage"`
	Marked       int                    `json:"marked"`
	Tapped       bool                   `json:"tapped"`
	Attacking    bool                   `json:"attacking"`
	Blocking     bool                   `json:"blocking"`
	Abilities    []string               `json:"abilities,omitempty"`
	Counters     []counters.CounterView `json:"counters,omitempty"`
}

// GameView is an immutable snapshot of a game in combat. It is built from
// copies of the battlefield and combat and shares nothing with the live game.
type GameView struct {
	GameID     string          `json:"game_id"`
	Turn       int             `json:"turn"`
	Step       Step            `json:"step"`
	Players    []PlayerView    `json:"players"`
	Permanents []PermanentView `json:"permanents"`
	Combat     combat.View     `json:"combat"`
	Messages   []EngineMessage `json:"messages,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	Timestamp  time.Time       `json:"timestamp"`
	Checksum   string          `json:"checksum"`
}

// snapshot builds a view of the game. Called with the game locked.
func (gs *gameState) snapshot() *GameView {
	bf := gs.battlefield.Copy()
	cm := gs.combat.Copy(bf)

	view := &GameView{
		GameID:     gs.gameID,
		Turn:       gs.turn,
		Step:       gs.step,
		Players:    make([]PlayerView, 0),
		Permanents: make([]PermanentView, 0),
		Combat:     cm.View(),
		Messages:   append([]EngineMessage(nil), gs.messages...),
		StartedAt:  gs.startedAt,
		Timestamp:  time.Now(),
	}
	for _, p := range bf.Players() {
		view.Players = append(view.Players, PlayerView{ID: p.ID, Name: p.Name, Life: p.Life, Lost: p.Lost})
	}
	for _, p := range bf.Permanents() {
		view.Permanents = append(view.Permanents, permanentView(bf, cm, p))
	}

	if checksum, err := view.ComputeChecksum(); err == nil {
		view.Checksum = checksum.Hash
	}
	return view
}

func permanentView(bf *battlefield.Battlefield, cm *combat.Combat, p *battlefield.Permanent) PermanentView {
	pv := PermanentView{
		ID:           p.ID,
		Name:         p.Name,
		ControllerID: p.ControllerID,
		Power:        bf.Power(p.ID),
		Toughness:    bf.Toughness(p.ID),
		Damage:       p.Damage,
		Marked:       bf.MarkedDamage(p.ID),
		Tapped:       p.Tapped,
		Attacking:    cm.IsAttacking(p.ID),
		Blocking:     cm.IsBlocking(p.ID),
	}
	for _, t := range p.Types {
		pv.Types = append(pv.Types, string(t))
	}
	for a, has := range p.Abilities {
		if has {
			pv.Abilities = append(pv.Abilities, string(a))
		}
	}
	sort.Strings(pv.Abilities)
	if p.Counters != nil {
		pv.Counters = p.Counters.ToView()
	}
	return pv
}

// GetGameView returns a snapshot of the game.
func (e *Engine) GetGameView(gameID string) (*GameView, error) {
	gameState, err := e.game(gameID)
	if err != nil {
		return nil, err
	}

	gameState.mu.RLock()
	defer gameState.mu.RUnlock()

	return gameState.snapshot(), nil
}

// GetCombatView returns a snapshot of the combat in progress.
func (e *Engine) GetCombatView(gameID string) (combat.View, error) {
	gameState, err := e.game(gameID)
	if err != nil {
		return combat.View{}, err
	}

	gameState.mu.RLock()
	defer gameState.mu.RUnlock()

	return gameState.combat.Copy(gameState.battlefield.Copy()).View(), nil
}

// Permanent returns a view of one permanent.
func (v *GameView) Permanent(id string) (PermanentView, bool) {
	for _, p := range v.Permanents {
		if p.ID == id {
			return p, true
		}
	}
	return PermanentView{}, false
}

// Player returns a view of one player.
func (v *GameView) Player(id string) (PlayerView, bool) {
	for _, p := range v.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerView{}, false
}

func (v *GameView) String() string {
	return fmt.Sprintf("game %s turn %d %s: %d permanents, %d combat groups", v.GameID, v.Turn, v.Step, len(v.Permanents), len(v.Combat.Groups))
}
