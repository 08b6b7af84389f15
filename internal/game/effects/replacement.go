package effects

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/magefree/mage-combat-go/internal/game/rules"
	"github.com/magefree/mage-combat-go/internal/game/saturate"
)

// ReplacementEffect represents an effect that can replace or modify an event before it happens.
//
// Key concepts:
// - Replacement effects apply continuously as events happen (not locked in ahead of time)
// - They watch for a particular event and completely or partially replace it
// - Self-replacement effects are applied first
// - A replacement effect gets only one opportunity per event
type ReplacementEffect interface {
	ID() string
	SourceID() string
	Duration() Duration

	// ChecksEventType is the fast filter: only effects that care about the
	// event type are considered further.
	ChecksEventType(eventType rules.EventType) bool

	// Applies checks the specific conditions beyond the event type.
	Applies(event rules.Event, gameID string) bool

	// ReplaceEvent modifies or replaces the event. The boolean reports that the
	// event was completely replaced; no further effects apply to it.
	ReplaceEvent(event rules.Event, gameID string) (rules.Event, bool)

	IsSelfReplacement() bool

	// HasSelfScope reports whether this effect may apply to events produced by
	// its own source.
	HasSelfScope() bool
}

// BaseReplacementEffect provides common functionality for replacement effects
type BaseReplacementEffect struct {
	id              string
	sourceID        string
	duration        Duration
	selfReplacement bool
	selfScope       bool
}

// NewBaseReplacementEffect creates a new base replacement effect
func NewBaseReplacementEffect(sourceID string, duration Duration, selfReplacement, selfScope bool) *BaseReplacementEffect {
	source := strings.TrimSpace(sourceID)
	seed := fmt.Sprintf("%s|replacement|%s|%t|%t|%d", source, duration, selfReplacement, selfScope, uuid.New().ID())
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()

	return &BaseReplacementEffect{
		id:              id,
		sourceID:        source,
		duration:        duration,
		selfReplacement: selfReplacement,
		selfScope:       selfScope,
	}
}

func (e *BaseReplacementEffect) ID() string {
	return e.id
}

func (e *BaseReplacementEffect) SourceID() string {
	return e.sourceID
}

func (e *BaseReplacementEffect) Duration() Duration {
	return e.duration
}

func (e *BaseReplacementEffect) IsSelfReplacement() bool {
	return e.selfReplacement
}

func (e *BaseReplacementEffect) HasSelfScope() bool {
	return e.selfScope
}

// PreventionEffect is a replacement effect that prevents damage.
// Some have shields ("prevent the next 3 damage"); a shield of 0 prevents all.
type PreventionEffect interface {
	ReplacementEffect

	// GetShield returns the remaining shield amount (0 if unlimited)
	GetShield() int

	// ReduceShield reduces the shield by up to amount and returns how much was absorbed.
	ReduceShield(amount int) int

	// Exhausted reports whether a shielded effect has nothing left to prevent.
	Exhausted() bool

	// Covers reports whether damage from sourceID to targetID would be
	// prevented by this effect.
	Covers(targetID, sourceID string) bool
}

// BasePreventionEffect provides common functionality for prevention effects
type BasePreventionEffect struct {
	*BaseReplacementEffect
	shield    int
	unlimited bool
}

// NewBasePreventionEffect creates a new base prevention effect. A shield of 0
// prevents all damage for the effect's duration.
func NewBasePreventionEffect(sourceID string, duration Duration, shield int) *BasePreventionEffect {
	return &BasePreventionEffect{
		BaseReplacementEffect: NewBaseReplacementEffect(sourceID, duration, false, false),
		shield:                shield,
		unlimited:             shield <= 0,
	}
}

func (e *BasePreventionEffect) GetShield() int {
	return e.shield
}

func (e *BasePreventionEffect) ReduceShield(amount int) int {
	if e.unlimited {
		return amount
	}
	reduced := min(amount, e.shield)
	e.shield -= reduced
	return reduced
}

func (e *BasePreventionEffect) Exhausted() bool {
	return !e.unlimited && e.shield <= 0
}

// Unlimited reports whether the effect prevents all damage.
func (e *BasePreventionEffect) Unlimited() bool {
	return e.unlimited
}

// DamagePreventionEffect prevents damage from being dealt
// Example: "Prevent the next 3 damage that would be dealt to target creature"
type DamagePreventionEffect struct {
	*BasePreventionEffect
	targetID    string // empty = any
	sourceCheck string // empty = any
	combatOnly  bool
}

// NewDamagePreventionEffect creates a damage prevention effect
func NewDamagePreventionEffect(sourceID, targetID, sourceCheck string, amount int, duration Duration) *DamagePreventionEffect {
	return &DamagePreventionEffect{
		BasePreventionEffect: NewBasePreventionEffect(sourceID, duration, amount),
		targetID:             strings.TrimSpace(targetID),
		sourceCheck:          strings.TrimSpace(sourceCheck),
	}
}

// NewCombatDamagePreventionEffect prevents only combat damage ("Fog" style).
func NewCombatDamagePreventionEffect(sourceID, targetID string, amount int, duration Duration) *DamagePreventionEffect {
	e := NewDamagePreventionEffect(sourceID, targetID, "", amount, duration)
	e.combatOnly = true
	return e
}

func (e *DamagePreventionEffect) ChecksEventType(eventType rules.EventType) bool {
	return eventType == rules.EventDamagePlayer || eventType == rules.EventDamagePermanent
}

func (e *DamagePreventionEffect) Covers(targetID, sourceID string) bool {
	if e.targetID != "" && targetID != e.targetID {
		return false
	}
	if e.sourceCheck != "" && sourceID != e.sourceCheck {
		return false
	}
	return !e.Exhausted()
}

func (e *DamagePreventionEffect) Applies(event rules.Event, gameID string) bool {
	if !e.ChecksEventType(event.Type) {
		return false
	}
	if e.combatOnly && !event.Flag {
		return false
	}
	return e.Covers(event.TargetID, event.SourceID)
}

// ReplaceEvent prevents or reduces damage. Prevented amounts are recorded in
// the event metadata under "prevented".
func (e *DamagePreventionEffect) ReplaceEvent(event rules.Event, gameID string) (rules.Event, bool) {
	prevented := e.ReduceShield(event.Amount)
	event.Amount -= prevented
	if event.Metadata == nil {
		event.Metadata = make(map[string]string)
	}
	event.Metadata["prevented"] = fmt.Sprintf("%d", prevented)
	return event, event.Amount == 0
}

// DamageDoublingEffect doubles damage dealt by a source or to a target.
// Example: "If a source would deal damage to a creature, it deals double that damage instead"
type DamageDoublingEffect struct {
	*BaseReplacementEffect
	sourceCheck  string // empty = any
	targetID     string // empty = any
	controllerID string // controller of the damage source, empty = any
}

// NewDamageDoublingEffect creates a doubling replacement effect
func NewDamageDoublingEffect(sourceID, sourceCheck, targetID, controllerID string, duration Duration) *DamageDoublingEffect {
	return &DamageDoublingEffect{
		BaseReplacementEffect: NewBaseReplacementEffect(sourceID, duration, false, true),
		sourceCheck:           strings.TrimSpace(sourceCheck),
		targetID:              strings.TrimSpace(targetID),
		controllerID:          strings.TrimSpace(controllerID),
	}
}

func (e *DamageDoublingEffect) ChecksEventType(eventType rules.EventType) bool {
	return eventType == rules.EventDamagePlayer || eventType == rules.EventDamagePermanent
}

func (e *DamageDoublingEffect) Applies(event rules.Event, gameID string) bool {
	if !e.ChecksEventType(event.Type) {
		return false
	}
	if e.sourceCheck != "" && event.SourceID != e.sourceCheck {
		return false
	}
	if e.targetID != "" && event.TargetID != e.targetID {
		return false
	}
	if e.controllerID != "" && event.Controller != e.controllerID {
		return false
	}
	return event.Amount > 0
}

func (e *DamageDoublingEffect) ReplaceEvent(event rules.Event, gameID string) (rules.Event, bool) {
	event.Amount = saturate.Mul(event.Amount, 2)
	if event.Metadata == nil {
		event.Metadata = make(map[string]string)
	}
	event.Metadata["doubled_by"] = e.ID()
	return event, false
}

// BlockRestrictionEffect cancels DECLARE_BLOCKER events.
// Example: "Target creature can't block this turn"
type BlockRestrictionEffect struct {
	*BaseReplacementEffect
	blockerID  string // empty = any blocker
	attackerID string // empty = any attacker
	reason     string
}

// NewBlockRestrictionEffect creates an effect that vetoes the given blocker
// (or any blocker) from blocking the given attacker (or any attacker).
func NewBlockRestrictionEffect(sourceID, blockerID, attackerID, reason string, duration Duration) *BlockRestrictionEffect {
	return &BlockRestrictionEffect{
		BaseReplacementEffect: NewBaseReplacementEffect(sourceID, duration, false, true),
		blockerID:             strings.TrimSpace(blockerID),
		attackerID:            strings.TrimSpace(attackerID),
		reason:                reason,
	}
}

func (e *BlockRestrictionEffect) ChecksEventType(eventType rules.EventType) bool {
	return eventType == rules.EventDeclareBlocker
}

// Applies matches DECLARE_BLOCKER events, whose TargetID is the attacker and
// SourceID the blocker.
func (e *BlockRestrictionEffect) Applies(event rules.Event, gameID string) bool {
	if event.Type != rules.EventDeclareBlocker {
		return false
	}
	if e.blockerID != "" && event.SourceID != e.blockerID {
		return false
	}
	if e.attackerID != "" && event.TargetID != e.attackerID {
		return false
	}
	return true
}

func (e *BlockRestrictionEffect) ReplaceEvent(event rules.Event, gameID string) (rules.Event, bool) {
	if event.Metadata == nil {
		event.Metadata = make(map[string]string)
	}
	event.Metadata["canceled_by"] = e.ID()
	if e.reason != "" {
		event.Metadata["reason"] = e.reason
	}
	return event, true
}
