package battlefield

import "github.com/magefree/mage-combat-go/internal/game/saturate"

// CanBlock reports whether blocker may block attacker as far as evasion and
// blocking restrictions go. Whether the blocker's controller is the defending
// player is for combat to decide.
func (b *Battlefield) CanBlock(blockerID, attackerID string) bool {
	blocker, ok := b.permanents[blockerID]
	if !ok || !blocker.Is(TypeCreature) || blocker.Tapped {
		return false
	}
	attacker, ok := b.permanents[attackerID]
	if !ok {
		return false
	}
	if attacker.Abilities[AbilityUnblockable] {
		return false
	}
	flying := attacker.Abilities[AbilityFlying]
	if flying && !blocker.Abilities[AbilityFlying] && !blocker.Abilities[AbilityReach] {
		return false
	}
	if blocker.Abilities[AbilityCanBlockOnlyFlying] && !flying {
		return false
	}
	return true
}

// Blocking returns how many creatures a permanent is blocking.
func (b *Battlefield) Blocking(id string) int {
	if p, ok := b.permanents[id]; ok {
		return p.Blocking
	}
	return 0
}

// SetBlocking sets how many creatures a permanent is blocking.
func (b *Battlefield) SetBlocking(id string, n int) {
	if p, ok := b.permanents[id]; ok {
		p.Blocking = max(n, 0)
	}
}

// BlockCapacity returns how many creatures a permanent may block at once.
func (b *Battlefield) BlockCapacity(id string) int {
	p, ok := b.permanents[id]
	if !ok {
		return 0
	}
	if p.Abilities[AbilityCanBlockAnyNumber] {
		return saturate.MaxInt
	}
	return saturate.Add(1, max(p.AdditionalBlocks, 0))
}

// MinBlockedBy returns N for "can't be blocked except by N or more
// creatures", 1 when unrestricted.
func (b *Battlefield) MinBlockedBy(id string) int {
	if p, ok := b.permanents[id]; ok && p.MinBlockedBy > 1 {
		return p.MinBlockedBy
	}
	return 1
}

// MaxBlockedBy returns N for "can't be blocked by more than N creatures", 0
// when unrestricted.
func (b *Battlefield) MaxBlockedBy(id string) int {
	if p, ok := b.permanents[id]; ok && p.MaxBlockedBy > 0 {
		return p.MaxBlockedBy
	}
	return 0
}

// Band links the given creatures into a band with each other.
func (b *Battlefield) Band(ids ...string) {
	for _, id := range ids {
		p, ok := b.permanents[id]
		if !ok {
			continue
		}
		for _, other := range ids {
			if other != id && b.Exists(other) && !contains(p.BandedWith, other) {
				p.BandedWith = append(p.BandedWith, other)
			}
		}
	}
}

// BandedWith returns the creatures a permanent is banded with.
func (b *Battlefield) BandedWith(id string) []string {
	if p, ok := b.permanents[id]; ok {
		return p.BandedWith
	}
	return nil
}

// RemoveBandedCard removes other from id's band list.
func (b *Battlefield) RemoveBandedCard(id, other string) {
	p, ok := b.permanents[id]
	if !ok {
		return
	}
	for i, bid := range p.BandedWith {
		if bid == other {
			p.BandedWith = append(p.BandedWith[:i], p.BandedWith[i+1:]...)
			return
		}
	}
}

// ClearBandedCards empties id's band list.
func (b *Battlefield) ClearBandedCards(id string) {
	if p, ok := b.permanents[id]; ok {
		p.BandedWith = nil
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
