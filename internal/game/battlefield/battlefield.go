// Package battlefield holds the permanents and players a combat is fought
// over and answers the capability queries combat asks about them: abilities,
// power and toughness, lethal damage thresholds, block counts and band links.
package battlefield

import (
	"fmt"
	"sort"
	"strings"

	"github.com/magefree/mage-combat-go/internal/game/counters"
	"github.com/magefree/mage-combat-go/internal/game/effects"
	"github.com/magefree/mage-combat-go/internal/game/rules"
	"github.com/magefree/mage-combat-go/internal/game/saturate"
	"go.uber.org/zap"
)

// CardType is a permanent's card type as far as combat cares.
type CardType string

const (
	TypeCreature     CardType = "Creature"
	TypePlaneswalker CardType = "Planeswalker"
	TypeBattle       CardType = "Battle"
	TypeEnchantment  CardType = "Enchantment"
	TypeArtifact     CardType = "Artifact"
	TypeLand         CardType = "Land"
)

// Player is a participant in the game.
type Player struct {
	ID   string
	Name string
	Life int
	Lost bool
}

// DamageMark is combat damage marked on a permanent but not yet applied.
type DamageMark struct {
	SourceID   string
	Amount     int
	Combat     bool
	Deathtouch bool
}

// Permanent is a card on the battlefield.
type Permanent struct {
	ID           string
	Name         string
	ControllerID string
	OwnerID      string
	// ProtectorID is the player protecting a battle.
	ProtectorID string

	Types      []CardType
	Subtypes   []string
	Supertypes []string

	BasePower     int
	BaseToughness int
	Counters      *counters.Counters
	Abilities     map[Ability]bool
	BandsWith     []BandsWith

	Tapped bool

	// MinBlockedBy is "can't be blocked except by N or more creatures";
	// 0 and 1 mean no restriction.
	MinBlockedBy int
	// MaxBlockedBy is "can't be blocked by more than N creatures"; 0 means no limit.
	MaxBlockedBy int

	// Damage is damage already applied this turn.
	Damage        int
	DamageSources map[string]int
	Marked        []DamageMark
	deathtouched  bool

	// AdditionalBlocks is "can block an additional N creatures".
	AdditionalBlocks int

	Blocking   int
	BandedWith []string
}

// NewCreature creates a creature permanent.
func NewCreature(id, name, controllerID string, power, toughness int, abilities ...Ability) *Permanent {
	p := &Permanent{
		ID:            id,
		Name:          name,
		ControllerID:  controllerID,
		OwnerID:       controllerID,
		Types:         []CardType{TypeCreature},
		BasePower:     power,
		BaseToughness: toughness,
	}
	for _, a := range abilities {
		p.Grant(a)
	}
	return p
}

// NewPlaneswalker creates a planeswalker with the given loyalty.
func NewPlaneswalker(id, name, controllerID string, loyalty int) *Permanent {
	p := &Permanent{
		ID:           id,
		Name:         name,
		ControllerID: controllerID,
		OwnerID:      controllerID,
		Types:        []CardType{TypePlaneswalker},
		Counters:     counters.NewCounters(),
	}
	p.Counters.Add(counters.CounterTypeLoyalty, loyalty)
	return p
}

// NewBattle creates a battle with the given defense, protected by protectorID.
func NewBattle(id, name, controllerID, protectorID string, defense int) *Permanent {
	p := &Permanent{
		ID:           id,
		Name:         name,
		ControllerID: controllerID,
		OwnerID:      controllerID,
		ProtectorID:  protectorID,
		Types:        []CardType{TypeBattle},
		Counters:     counters.NewCounters(),
	}
	p.Counters.Add(counters.CounterTypeDefense, defense)
	return p
}

// Grant adds an ability to the permanent.
func (p *Permanent) Grant(a Ability) {
	if p.Abilities == nil {
		p.Abilities = make(map[Ability]bool)
	}
	p.Abilities[a] = true
}

// Revoke removes an ability from the permanent.
func (p *Permanent) Revoke(a Ability) {
	delete(p.Abilities, a)
}

func (p *Permanent) Is(t CardType) bool {
	for _, have := range p.Types {
		if have == t {
			return true
		}
	}
	return false
}

func (p *Permanent) HasSubtype(subtype string) bool {
	return containsFold(p.Subtypes, subtype)
}

func (p *Permanent) HasSupertype(supertype string) bool {
	return containsFold(p.Supertypes, supertype)
}

func (p *Permanent) markedTotal() int {
	total := 0
	for _, m := range p.Marked {
		total = saturate.Add(total, m.Amount)
	}
	return total
}

func (p *Permanent) copy() *Permanent {
	out := *p
	out.Types = append([]CardType(nil), p.Types...)
	out.Subtypes = append([]string(nil), p.Subtypes...)
	out.Supertypes = append([]string(nil), p.Supertypes...)
	out.BandsWith = append([]BandsWith(nil), p.BandsWith...)
	out.Marked = append([]DamageMark(nil), p.Marked...)
	out.BandedWith = append([]string(nil), p.BandedWith...)
	if p.Counters != nil {
		out.Counters = p.Counters.Copy()
	}
	if p.Abilities != nil {
		out.Abilities = make(map[Ability]bool, len(p.Abilities))
		for a := range p.Abilities {
			out.Abilities[a] = true
		}
	}
	if p.DamageSources != nil {
		out.DamageSources = make(map[string]int, len(p.DamageSources))
		for k, v := range p.DamageSources {
			out.DamageSources[k] = v
		}
	}
	return &out
}

// Battlefield is the in-memory game state combat reads and marks damage on.
// It is not safe for concurrent use; the owning game serializes access.
type Battlefield struct {
	gameID string

	players     map[string]*Player
	playerOrder []string
	permanents  map[string]*Permanent
	order       []string // battlefield order

	// toughnessAssigners are players whose creatures assign combat damage
	// equal to their toughness.
	toughnessAssigners map[string]bool

	eventBus     *rules.EventBus
	replacements *effects.ReplacementManager
	counterOps   *counters.CounterOperations
	logger       *zap.Logger
}

// New creates an empty battlefield. The event bus and replacement manager may
// be nil.
func New(gameID string, logger *zap.Logger, eventBus *rules.EventBus, replacements *effects.ReplacementManager) *Battlefield {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Battlefield{
		gameID:             gameID,
		players:            make(map[string]*Player),
		permanents:         make(map[string]*Permanent),
		toughnessAssigners: make(map[string]bool),
		eventBus:           eventBus,
		replacements:       replacements,
		counterOps:         counters.NewCounterOperations(eventBus),
		logger:             logger,
	}
}

// AddPlayer adds a player with the given starting life.
func (b *Battlefield) AddPlayer(id, name string, life int) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("player id is required")
	}
	if _, exists := b.players[id]; exists {
		return fmt.Errorf("player %s already exists", id)
	}
	if _, exists := b.permanents[id]; exists {
		return fmt.Errorf("id %s is already used by a permanent", id)
	}
	b.players[id] = &Player{ID: id, Name: name, Life: life}
	b.playerOrder = append(b.playerOrder, id)
	return nil
}

// AddPermanent puts a permanent onto the battlefield under its controller.
func (b *Battlefield) AddPermanent(p *Permanent) error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("permanent id is required")
	}
	if _, exists := b.permanents[p.ID]; exists {
		return fmt.Errorf("permanent %s already exists", p.ID)
	}
	if _, exists := b.players[p.ID]; exists {
		return fmt.Errorf("id %s is already used by a player", p.ID)
	}
	if _, exists := b.players[p.ControllerID]; !exists {
		return fmt.Errorf("controller %s of %s not found", p.ControllerID, p.ID)
	}
	if p.Counters == nil {
		p.Counters = counters.NewCounters()
	}
	if p.Abilities == nil {
		p.Abilities = make(map[Ability]bool)
	}
	if p.OwnerID == "" {
		p.OwnerID = p.ControllerID
	}
	b.permanents[p.ID] = p
	b.order = append(b.order, p.ID)

	b.logger.Debug("permanent entered battlefield",
		zap.String("game_id", b.gameID),
		zap.String("permanent_id", p.ID),
		zap.String("name", p.Name),
		zap.String("controller_id", p.ControllerID))
	return nil
}

// RemovePermanent takes a permanent off the battlefield, severing its band
// links. It reports whether the permanent was there.
func (b *Battlefield) RemovePermanent(id string) bool {
	p, ok := b.permanents[id]
	if !ok {
		return false
	}
	for _, other := range p.BandedWith {
		b.RemoveBandedCard(other, id)
	}
	delete(b.permanents, id)
	for i, pid := range b.order {
		if pid == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	if b.replacements != nil {
		b.replacements.CleanupSourceLeftBattlefield(id)
	}
	return true
}

// GameID returns the game this battlefield belongs to.
func (b *Battlefield) GameID() string {
	return b.gameID
}

// Permanent returns the permanent with the given ID.
func (b *Battlefield) Permanent(id string) (*Permanent, bool) {
	p, ok := b.permanents[id]
	return p, ok
}

// Player returns the player with the given ID.
func (b *Battlefield) Player(id string) (*Player, bool) {
	p, ok := b.players[id]
	return p, ok
}

// Players returns the players in seating order.
func (b *Battlefield) Players() []*Player {
	out := make([]*Player, 0, len(b.playerOrder))
	for _, id := range b.playerOrder {
		out = append(out, b.players[id])
	}
	return out
}

// Permanents returns the permanents in battlefield order.
func (b *Battlefield) Permanents() []*Permanent {
	out := make([]*Permanent, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.permanents[id])
	}
	return out
}

// Exists reports whether id names a permanent on the battlefield.
func (b *Battlefield) Exists(id string) bool {
	_, ok := b.permanents[id]
	return ok
}

// IsPlayer reports whether id names a player.
func (b *Battlefield) IsPlayer(id string) bool {
	_, ok := b.players[id]
	return ok
}

func (b *Battlefield) IsCreature(id string) bool {
	p, ok := b.permanents[id]
	return ok && p.Is(TypeCreature)
}

func (b *Battlefield) IsPlaneswalker(id string) bool {
	p, ok := b.permanents[id]
	return ok && p.Is(TypePlaneswalker)
}

func (b *Battlefield) IsBattle(id string) bool {
	p, ok := b.permanents[id]
	return ok && p.Is(TypeBattle)
}

// ControllerOf returns the controller of a permanent, or "" if it is gone.
func (b *Battlefield) ControllerOf(id string) string {
	if p, ok := b.permanents[id]; ok {
		return p.ControllerID
	}
	return ""
}

// ProtectorOf returns the protector of a battle, or "" if id is not a battle.
func (b *Battlefield) ProtectorOf(id string) string {
	if p, ok := b.permanents[id]; ok && p.Is(TypeBattle) {
		return p.ProtectorID
	}
	return ""
}

// Name returns a display name for a permanent or player.
func (b *Battlefield) Name(id string) string {
	if p, ok := b.permanents[id]; ok {
		return p.Name
	}
	if p, ok := b.players[id]; ok && p.Name != "" {
		return p.Name
	}
	return id
}

// HasAbility reports whether a permanent currently has the ability.
func (b *Battlefield) HasAbility(id string, a Ability) bool {
	p, ok := b.permanents[id]
	return ok && p.Abilities[a]
}

// Grant gives a permanent an ability. It reports whether the permanent exists.
func (b *Battlefield) Grant(id string, a Ability) bool {
	p, ok := b.permanents[id]
	if ok {
		p.Grant(a)
	}
	return ok
}

// Revoke removes an ability from a permanent.
func (b *Battlefield) Revoke(id string, a Ability) bool {
	p, ok := b.permanents[id]
	if ok {
		p.Revoke(a)
	}
	return ok
}

// ControlsAbility reports whether the player controls a permanent with the ability.
func (b *Battlefield) ControlsAbility(playerID string, a Ability) bool {
	for _, id := range b.order {
		p := b.permanents[id]
		if p.ControllerID == playerID && p.Abilities[a] {
			return true
		}
	}
	return false
}

// CreaturesControlledBy returns the player's creatures in battlefield order.
func (b *Battlefield) CreaturesControlledBy(playerID string) []string {
	ids := make([]string, 0)
	for _, id := range b.order {
		p := b.permanents[id]
		if p.ControllerID == playerID && p.Is(TypeCreature) {
			ids = append(ids, id)
		}
	}
	return ids
}

// BandsWith returns the "bands with other" abilities of a permanent.
func (b *Battlefield) BandsWith(id string) []BandsWith {
	if p, ok := b.permanents[id]; ok {
		return p.BandsWith
	}
	return nil
}

// Matches reports whether a permanent has the quality a "bands with other"
// ability names.
func (b *Battlefield) Matches(id string, bw BandsWith) bool {
	p, ok := b.permanents[id]
	if !ok {
		return false
	}
	switch bw.Match {
	case BandBySubtype:
		return p.HasSubtype(bw.Value)
	case BandBySupertype:
		return p.HasSupertype(bw.Value)
	case BandByName:
		return p.Name == bw.Value
	default:
		return false
	}
}

// Power returns current power: base power plus counter boosts.
func (b *Battlefield) Power(id string) int {
	p, ok := b.permanents[id]
	if !ok {
		return 0
	}
	boost, _ := p.Counters.Boost()
	return saturate.Add(p.BasePower, boost)
}

// Toughness returns current toughness: base toughness plus counter boosts.
func (b *Battlefield) Toughness(id string) int {
	p, ok := b.permanents[id]
	if !ok {
		return 0
	}
	_, boost := p.Counters.Boost()
	return saturate.Add(p.BaseToughness, boost)
}

// SetAssignsDamageByToughness makes every creature the player controls
// assign combat damage equal to its toughness ("Doran" style). An empty
// playerID applies to every player.
func (b *Battlefield) SetAssignsDamageByToughness(playerID string, enabled bool) {
	if enabled {
		b.toughnessAssigners[playerID] = true
	} else {
		delete(b.toughnessAssigners, playerID)
	}
}

// UseToughnessForDamage reports whether a creature assigns combat damage
// equal to its toughness rather than its power.
func (b *Battlefield) UseToughnessForDamage(id string) bool {
	p, ok := b.permanents[id]
	if !ok {
		return false
	}
	if p.Abilities[AbilityAssignsDamageByToughness] {
		return true
	}
	return b.toughnessAssigners[""] || b.toughnessAssigners[p.ControllerID]
}

// Tap taps or untaps a permanent.
func (b *Battlefield) Tap(id string, tapped bool) bool {
	p, ok := b.permanents[id]
	if ok {
		p.Tapped = tapped
	}
	return ok
}

// Copy returns a deep copy for read-only use (views, replays). The copy does
// not publish events or consult replacement effects.
func (b *Battlefield) Copy() *Battlefield {
	out := New(b.gameID, b.logger, nil, nil)
	for _, id := range b.playerOrder {
		p := *b.players[id]
		out.players[id] = &p
	}
	out.playerOrder = append([]string(nil), b.playerOrder...)
	for _, id := range b.order {
		out.permanents[id] = b.permanents[id].copy()
	}
	out.order = append([]string(nil), b.order...)
	for k := range b.toughnessAssigners {
		out.toughnessAssigners[k] = true
	}
	return out
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
