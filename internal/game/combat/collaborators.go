package combat

import (
	"github.com/magefree/mage-combat-go/internal/game/battlefield"
	"github.com/magefree/mage-combat-go/internal/game/rules"
)

// Lookup answers what combat needs to know about permanents and players and
// marks damage on them. *battlefield.Battlefield implements it.
type Lookup interface {
	Exists(id string) bool
	IsPlayer(id string) bool
	IsCreature(id string) bool
	IsPlaneswalker(id string) bool
	IsBattle(id string) bool
	ControllerOf(id string) string
	ProtectorOf(id string) string
	Name(id string) string

	HasAbility(id string, a battlefield.Ability) bool
	ControlsAbility(playerID string, a battlefield.Ability) bool
	BandsWith(id string) []battlefield.BandsWith
	Matches(id string, bw battlefield.BandsWith) bool

	Power(id string) int
	Toughness(id string) int
	UseToughnessForDamage(id string) bool
	LethalDamage(id, sourceID string) int

	MarkDamage(id string, amount int, sourceID string, combat bool) int
	DamagePlayer(playerID string, amount int, sourceID string, combat bool) int
	ApplyDamage(id string) int

	CanBlock(blockerID, attackerID string) bool
	BlockCapacity(id string) int
	Blocking(id string) int
	SetBlocking(id string, n int)
	MinBlockedBy(id string) int
	MaxBlockedBy(id string) int
	CreaturesControlledBy(playerID string) []string

	Band(ids ...string)
	BandedWith(id string) []string
	RemoveBandedCard(id, other string)
	ClearBandedCards(id string)
}

var _ Lookup = (*battlefield.Battlefield)(nil)

// AmountEntry is one recipient in a damage division prompt.
type AmountEntry struct {
	ID      string
	Label   string
	Min     int
	Max     int
	Default int
}

// DecisionProvider answers the choices combat asks a player to make. Calls
// block until the player answers.
type DecisionProvider interface {
	Confirm(playerID, prompt string) bool
	ChooseAmount(playerID string, min, max int, prompt string) int
	// ChooseMultiAmount returns one amount per entry, in entry order, whose
	// sum lies in [totalMin, totalMax].
	ChooseMultiAmount(playerID string, entries []AmountEntry, totalMin, totalMax int, prompt string) []int
}

// Notifier publishes combat events. Replace gives replacement effects a chance
// to cancel an event and reports whether it was canceled.
type Notifier interface {
	Fire(event rules.Event)
	Replace(event rules.Event) bool
}

// StrikeTracker remembers which creatures dealt damage in the first-strike
// step of the current combat.
type StrikeTracker interface {
	RecordFirstStriker(creatureID string)
	WasFirstStriker(creatureID string) bool
}
