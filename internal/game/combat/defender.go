package combat

import "fmt"

// DefenderKind discriminates what a combat group is attacking.
type DefenderKind int

const (
	// DefenderNone means the attacked permanent left the battlefield. The
	// group stays in combat without a target.
	DefenderNone DefenderKind = iota
	DefenderPlayer
	DefenderPermanent
	DefenderBattle
)

func (k DefenderKind) String() string {
	switch k {
	case DefenderNone:
		return "none"
	case DefenderPlayer:
		return "player"
	case DefenderPermanent:
		return "permanent"
	case DefenderBattle:
		return "battle"
	default:
		return fmt.Sprintf("DefenderKind(%d)", int(k))
	}
}

// Defender is what a combat group attacks: a player, a permanent
// (planeswalker) or a battle.
type Defender struct {
	Kind DefenderKind
	ID   string
}

func PlayerDefender(id string) Defender { return Defender{Kind: DefenderPlayer, ID: id} }
func PermanentDefender(id string) Defender { return Defender{Kind: DefenderPermanent, ID: id} }
func BattleDefender(id string) Defender { return Defender{Kind: DefenderBattle, ID: id} }

// IsPermanent reports whether the defender is a permanent or a battle.
func (d Defender) IsPermanent() bool {
	switch d.Kind {
	case DefenderPermanent, DefenderBattle:
		return true
	default:
		return false
	}
}

func (d Defender) String() string {
	if d.Kind == DefenderNone {
		return "none"
	}
	return d.Kind.String() + ":" + d.ID
}

// resolveDefender works out the defender for an ID and the player that
// defends on its behalf: a battle's protector, a permanent's controller or
// the player itself.
func resolveDefender(lookup Lookup, id string) (Defender, string, bool) {
	switch {
	case id == "":
		return Defender{}, "", false
	case lookup.IsBattle(id):
		return BattleDefender(id), lookup.ProtectorOf(id), true
	case lookup.Exists(id):
		return PermanentDefender(id), lookup.ControllerOf(id), true
	case lookup.IsPlayer(id):
		return PlayerDefender(id), id, true
	default:
		return Defender{}, "", false
	}
}
