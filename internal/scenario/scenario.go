// Package scenario loads combat scenarios from YAML and plays them through
// the game engine: a battlefield, the attacks and blocks, the answers each
// player gives when asked, and the outcome the combat is expected to have.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/magefree/mage-combat-go/internal/game"
	"github.com/magefree/mage-combat-go/internal/game/battlefield"
	"github.com/magefree/mage-combat-go/internal/game/counters"
	"github.com/magefree/mage-combat-go/internal/game/effects"
	"github.com/magefree/mage-combat-go/internal/game/players"
	"gopkg.in/yaml.v3"
)

// Permanent kinds a scenario can put onto the battlefield.
const (
	KindCreature     = "creature"
	KindPlaneswalker = "planeswalker"
	KindBattle       = "battle"
	KindEnchantment  = "enchantment"
	KindArtifact     = "artifact"
)

// Effect kinds.
const (
	EffectPreventDamage       = "prevent_damage"
	EffectPreventCombatDamage = "prevent_combat_damage"
	EffectDoubleDamage        = "double_damage"
	EffectBlockRestriction    = "block_restriction"
)

type BandsWith struct {
	Match string `yaml:"match"`
	Value string `yaml:"value"`
}

// Permanent is a permanent on the scenario's battlefield.
type Permanent struct {
	ID               string         `yaml:"id"`
	Name             string         `yaml:"name"`
	Type             string         `yaml:"type"`
	Controller       string         `yaml:"controller"`
	Power            int            `yaml:"power"`
	Toughness        int            `yaml:"toughness"`
	Loyalty          int            `yaml:"loyalty"`
	Defense          int            `yaml:"defense"`
	Protector        string         `yaml:"protector"`
	Abilities        []string       `yaml:"abilities"`
	Subtypes         []string       `yaml:"subtypes"`
	Supertypes       []string       `yaml:"supertypes"`
	BandsWith        []BandsWith    `yaml:"bands_with"`
	Tapped           bool           `yaml:"tapped"`
	MinBlockedBy     int            `yaml:"min_blocked_by"`
	MaxBlockedBy     int            `yaml:"max_blocked_by"`
	AdditionalBlocks int            `yaml:"additional_blocks"`
	Counters         map[string]int `yaml:"counters"`
}

// Effect is a replacement or prevention effect in place before combat.
type Effect struct {
	Kind       string `yaml:"kind"`
	Source     string `yaml:"source"`
	Target     string `yaml:"target"`
	From       string `yaml:"from"`
	Controller string `yaml:"controller"`
	Blocker    string `yaml:"blocker"`
	Attacker   string `yaml:"attacker"`
	Reason     string `yaml:"reason"`
	Amount     int    `yaml:"amount"`
	Duration   string `yaml:"duration"`
}

type Attack struct {
	Attacker string `yaml:"attacker"`
	Defender string `yaml:"defender"`
}

type Band struct {
	Creatures []string `yaml:"creatures"`
	Defender  string   `yaml:"defender"`
}

type Block struct {
	Blocker  string `yaml:"blocker"`
	Attacker string `yaml:"attacker"`
}

// Expect is the outcome a scenario should have. Unset fields are not checked.
type Expect struct {
	LegalBlocks *bool                     `yaml:"legal_blocks"`
	Life        map[string]int            `yaml:"life"`
	Dead        []string                  `yaml:"dead"`
	Alive       []string                  `yaml:"alive"`
	Damage      map[string]int            `yaml:"damage"`
	DealtBy     map[string]int            `yaml:"dealt_by"`
	Counters    map[string]map[string]int `yaml:"counters"`
	Messages    []string                  `yaml:"messages"`
}

// Scenario is one combat, from the battlefield to the expected outcome.
type Scenario struct {
	Name               string                     `yaml:"name"`
	Description        string                     `yaml:"description"`
	Players            []game.PlayerInfo          `yaml:"players"`
	Permanents         []Permanent                `yaml:"permanents"`
	Effects            []Effect                   `yaml:"effects"`
	ToughnessAssigners []string                   `yaml:"toughness_assigners"`
	Attacker           string                     `yaml:"attacker"`
	Attacks            []Attack                   `yaml:"attacks"`
	Bands              []Band                     `yaml:"bands"`
	Blocks             []Block                    `yaml:"blocks"`
	Answers            map[string]players.Answers `yaml:"answers"`
	Expect             Expect                     `yaml:"expect"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a scenario. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}

	for i := range s.Permanents {
		p := &s.Permanents[i]
		if p.Type == "" {
			p.Type = KindCreature
		}
		if p.Name == "" {
			p.Name = p.ID
		}
	}
	for i := range s.Players {
		if s.Players[i].Name == "" {
			s.Players[i].Name = s.Players[i].ID
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that everything the scenario refers to exists.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Players) < 2 {
		return fmt.Errorf("players: need at least two, got %d", len(s.Players))
	}

	playerIDs := make(map[string]bool)
	for i, p := range s.Players {
		if p.ID == "" {
			return fmt.Errorf("players[%d].id is required", i)
		}
		if playerIDs[p.ID] {
			return fmt.Errorf("players[%d]: duplicate id %q", i, p.ID)
		}
		playerIDs[p.ID] = true
	}
	if !playerIDs[s.Attacker] {
		return fmt.Errorf("attacker: unknown player %q", s.Attacker)
	}

	permanentIDs := make(map[string]bool)
	for i, p := range s.Permanents {
		field := fmt.Sprintf("permanents[%d]", i)
		if p.ID == "" {
			return fmt.Errorf("%s.id is required", field)
		}
		if permanentIDs[p.ID] || playerIDs[p.ID] {
			return fmt.Errorf("%s: duplicate id %q", field, p.ID)
		}
		permanentIDs[p.ID] = true
		if !playerIDs[p.Controller] {
			return fmt.Errorf("%s.controller: unknown player %q", field, p.Controller)
		}
		if _, err := p.build(); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}

	isDefender := func(id string) bool { return playerIDs[id] || permanentIDs[id] }
	for i, a := range s.Attacks {
		if !permanentIDs[a.Attacker] {
			return fmt.Errorf("attacks[%d].attacker: unknown permanent %q", i, a.Attacker)
		}
		if !isDefender(a.Defender) {
			return fmt.Errorf("attacks[%d].defender: unknown %q", i, a.Defender)
		}
	}
	for i, b := range s.Bands {
		for _, id := range b.Creatures {
			if !permanentIDs[id] {
				return fmt.Errorf("bands[%d].creatures: unknown permanent %q", i, id)
			}
		}
		if !isDefender(b.Defender) {
			return fmt.Errorf("bands[%d].defender: unknown %q", i, b.Defender)
		}
	}
	for i, b := range s.Blocks {
		if !permanentIDs[b.Blocker] {
			return fmt.Errorf("blocks[%d].blocker: unknown permanent %q", i, b.Blocker)
		}
		if !permanentIDs[b.Attacker] {
			return fmt.Errorf("blocks[%d].attacker: unknown permanent %q", i, b.Attacker)
		}
	}
	for i, e := range s.Effects {
		if _, err := e.build(); err != nil {
			return fmt.Errorf("effects[%d]: %w", i, err)
		}
	}
	for i, id := range s.ToughnessAssigners {
		if !playerIDs[id] {
			return fmt.Errorf("toughness_assigners[%d]: unknown player %q", i, id)
		}
	}
	for id := range s.Answers {
		if !playerIDs[id] {
			return fmt.Errorf("answers: unknown player %q", id)
		}
	}
	for id := range s.Expect.Life {
		if !playerIDs[id] {
			return fmt.Errorf("expect.life: unknown player %q", id)
		}
	}
	return nil
}

// controllerOf returns the controller of a scenario permanent.
func (s *Scenario) controllerOf(id string) string {
	for _, p := range s.Permanents {
		if p.ID == id {
			return p.Controller
		}
	}
	return ""
}

func (p Permanent) build() (*battlefield.Permanent, error) {
	var perm *battlefield.Permanent
	switch strings.ToLower(p.Type) {
	case KindCreature:
		perm = battlefield.NewCreature(p.ID, p.Name, p.Controller, p.Power, p.Toughness)
	case KindPlaneswalker:
		perm = battlefield.NewPlaneswalker(p.ID, p.Name, p.Controller, p.Loyalty)
	case KindBattle:
		if p.Protector == "" {
			return nil, fmt.Errorf("battle %q needs a protector", p.ID)
		}
		perm = battlefield.NewBattle(p.ID, p.Name, p.Controller, p.Protector, p.Defense)
	case KindEnchantment, KindArtifact:
		cardType := battlefield.TypeEnchantment
		if strings.ToLower(p.Type) == KindArtifact {
			cardType = battlefield.TypeArtifact
		}
		perm = &battlefield.Permanent{
			ID:           p.ID,
			Name:         p.Name,
			ControllerID: p.Controller,
			OwnerID:      p.Controller,
			Types:        []battlefield.CardType{cardType},
		}
	default:
		return nil, fmt.Errorf("unknown type %q", p.Type)
	}

	for _, keyword := range p.Abilities {
		a, err := battlefield.ParseAbility(keyword)
		if err != nil {
			return nil, err
		}
		perm.Grant(a)
	}
	for _, bw := range p.BandsWith {
		match, err := battlefield.ParseBandMatch(bw.Match)
		if err != nil {
			return nil, err
		}
		perm.BandsWith = append(perm.BandsWith, battlefield.BandsWith{Match: match, Value: bw.Value})
	}
	if len(p.Counters) > 0 && perm.Counters == nil {
		perm.Counters = counters.NewCounters()
	}
	for name, n := range p.Counters {
		if n < 0 {
			return nil, fmt.Errorf("counter %q: negative count %d", name, n)
		}
		perm.Counters.Add(counters.CounterType(name), n)
	}

	perm.Subtypes = append(perm.Subtypes, p.Subtypes...)
	perm.Supertypes = append(perm.Supertypes, p.Supertypes...)
	perm.Tapped = p.Tapped
	perm.MinBlockedBy = p.MinBlockedBy
	perm.MaxBlockedBy = p.MaxBlockedBy
	perm.AdditionalBlocks = p.AdditionalBlocks
	return perm, nil
}

func (e Effect) build() (effects.ReplacementEffect, error) {
	if e.Amount < 0 {
		return nil, fmt.Errorf("%s: negative amount %d", e.Kind, e.Amount)
	}
	duration := effects.ParseDuration(e.Duration)
	switch e.Kind {
	case EffectPreventDamage:
		return effects.NewDamagePreventionEffect(e.Source, e.Target, e.From, e.Amount, duration), nil
	case EffectPreventCombatDamage:
		return effects.NewCombatDamagePreventionEffect(e.Source, e.Target, e.Amount, duration), nil
	case EffectDoubleDamage:
		return effects.NewDamageDoublingEffect(e.Source, e.From, e.Target, e.Controller, duration), nil
	case EffectBlockRestriction:
		return effects.NewBlockRestrictionEffect(e.Source, e.Blocker, e.Attacker, e.Reason, duration), nil
	}
	return nil, fmt.Errorf("unknown effect kind %q", e.Kind)
}
