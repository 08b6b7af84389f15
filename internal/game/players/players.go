// Package players provides the decision providers combat consults when a
// player has to choose: an automatic player that takes every default, a
// scripted player that replays queued answers, and a table that routes each
// question to the player it is addressed to.
package players

import (
	"sync"
	"time"

	"github.com/magefree/mage-combat-go/internal/game/combat"
	"go.uber.org/zap"
)

// PromptKind is the kind of question a player was asked.
type PromptKind string

const (
	PromptConfirm     PromptKind = "confirm"
	PromptAmount      PromptKind = "amount"
	PromptMultiAmount PromptKind = "multi_amount"
)

// Prompt records a question put to a player and the answer given.
type Prompt struct {
	Kind     PromptKind           `json:"kind" yaml:"kind"`
	PlayerID string               `json:"player_id" yaml:"player_id"`
	Text     string               `json:"text" yaml:"text"`
	Entries  []combat.AmountEntry `json:"entries,omitempty" yaml:"entries,omitempty"`
	Min      int                  `json:"min" yaml:"min"`
	Max      int                  `json:"max" yaml:"max"`
	Confirm  bool                 `json:"confirm,omitempty" yaml:"confirm,omitempty"`
	Amounts  []int                `json:"amounts,omitempty" yaml:"amounts,omitempty"`
	At       time.Time            `json:"at" yaml:"at"`
}

// Auto answers no to every confirmation, the minimum to every amount and the
// offered defaults to every division.
type Auto struct{}

var _ combat.DecisionProvider = Auto{}

func (Auto) Confirm(string, string) bool { return false }

func (Auto) ChooseAmount(_ string, min, _ int, _ string) int { return min }

func (Auto) ChooseMultiAmount(_ string, entries []combat.AmountEntry, _, _ int, _ string) []int {
	amounts := make([]int, len(entries))
	for i, entry := range entries {
		amounts[i] = entry.Default
	}
	return amounts
}

// Answers are the queued answers of one scripted player, consumed in order.
type Answers struct {
	Confirms []bool  `json:"confirms,omitempty" yaml:"confirms,omitempty"`
	Amounts  []int   `json:"amounts,omitempty" yaml:"amounts,omitempty"`
	Divide   [][]int `json:"divide,omitempty" yaml:"divide,omitempty"`
}

// Scripted answers from per-player queues. When a queue is empty it falls
// back to Auto. Every prompt is recorded.
type Scripted struct {
	mu       sync.Mutex
	answers  map[string]*Answers
	prompts  []Prompt
	fallback combat.DecisionProvider
	logger   *zap.Logger
}

var _ combat.DecisionProvider = (*Scripted)(nil)

// NewScripted creates a scripted player with no queued answers.
func NewScripted(logger *zap.Logger) *Scripted {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scripted{
		answers:  make(map[string]*Answers),
		fallback: Auto{},
		logger:   logger,
	}
}

// Queue appends answers for playerID.
func (s *Scripted) Queue(playerID string, answers Answers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.answers[playerID]
	if !ok {
		q = &Answers{}
		s.answers[playerID] = q
	}
	q.Confirms = append(q.Confirms, answers.Confirms...)
	q.Amounts = append(q.Amounts, answers.Amounts...)
	q.Divide = append(q.Divide, answers.Divide...)
}

// Prompts returns every question asked so far.
func (s *Scripted) Prompts() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prompt(nil), s.prompts...)
}

// Remaining reports whether any queued answer was never used.
func (s *Scripted) Remaining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.answers {
		if len(q.Confirms) > 0 || len(q.Amounts) > 0 || len(q.Divide) > 0 {
			return true
		}
	}
	return false
}

func (s *Scripted) Confirm(playerID, prompt string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	var answer bool
	if q := s.answers[playerID]; q != nil && len(q.Confirms) > 0 {
		answer, q.Confirms = q.Confirms[0], q.Confirms[1:]
	} else {
		answer = s.fallback.Confirm(playerID, prompt)
	}
	s.record(Prompt{Kind: PromptConfirm, PlayerID: playerID, Text: prompt, Confirm: answer})
	return answer
}

func (s *Scripted) ChooseAmount(playerID string, min, max int, prompt string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var answer int
	if q := s.answers[playerID]; q != nil && len(q.Amounts) > 0 {
		answer, q.Amounts = q.Amounts[0], q.Amounts[1:]
	} else {
		answer = s.fallback.ChooseAmount(playerID, min, max, prompt)
	}
	s.record(Prompt{Kind: PromptAmount, PlayerID: playerID, Text: prompt, Min: min, Max: max, Amounts: []int{answer}})
	return answer
}

func (s *Scripted) ChooseMultiAmount(playerID string, entries []combat.AmountEntry, totalMin, totalMax int, prompt string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var answer []int
	if q := s.answers[playerID]; q != nil && len(q.Divide) > 0 {
		answer, q.Divide = q.Divide[0], q.Divide[1:]
	} else {
		answer = s.fallback.ChooseMultiAmount(playerID, entries, totalMin, totalMax, prompt)
	}
	s.record(Prompt{
		Kind:     PromptMultiAmount,
		PlayerID: playerID,
		Text:     prompt,
		Entries:  append([]combat.AmountEntry(nil), entries...),
		Min:      totalMin,
		Max:      totalMax,
		Amounts:  append([]int(nil), answer...),
	})
	return answer
}

func (s *Scripted) record(p Prompt) {
	p.At = time.Now()
	s.prompts = append(s.prompts, p)
	s.logger.Debug("player decision",
		zap.String("player_id", p.PlayerID),
		zap.String("kind", string(p.Kind)),
		zap.String("prompt", p.Text),
		zap.Bool("confirm", p.Confirm),
		zap.Ints("amounts", p.Amounts))
}

// Table routes each question to the provider registered for the player it is
// addressed to, or to a default provider.
type Table struct {
	mu        sync.RWMutex
	providers map[string]combat.DecisionProvider
	fallback  combat.DecisionProvider
}

var _ combat.DecisionProvider = (*Table)(nil)

// NewTable creates a table. A nil fallback is Auto.
func NewTable(fallback combat.DecisionProvider) *Table {
	if fallback == nil {
		fallback = Auto{}
	}
	return &Table{providers: make(map[string]combat.DecisionProvider), fallback: fallback}
}

// Seat registers the provider answering for playerID. A nil provider removes
// the player's seat.
func (t *Table) Seat(playerID string, provider combat.DecisionProvider) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if provider == nil {
		delete(t.providers, playerID)
		return
	}
	t.providers[playerID] = provider
}

func (t *Table) provider(playerID string) combat.DecisionProvider {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.providers[playerID]; ok {
		return p
	}
	return t.fallback
}

func (t *Table) Confirm(playerID, prompt string) bool {
	return t.provider(playerID).Confirm(playerID, prompt)
}

func (t *Table) ChooseAmount(playerID string, min, max int, prompt string) int {
	return t.provider(playerID).ChooseAmount(playerID, min, max, prompt)
}

func (t *Table) ChooseMultiAmount(playerID string, entries []combat.AmountEntry, totalMin, totalMax int, prompt string) []int {
	return t.provider(playerID).ChooseMultiAmount(playerID, entries, totalMin, totalMax, prompt)
}
