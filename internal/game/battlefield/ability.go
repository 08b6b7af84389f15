package battlefield

import "fmt"

// Ability identifies a combat-relevant capability. Capability queries are set
// membership checks against a permanent's current abilities.
type Ability string

const (
	AbilityFirstStrike              Ability = "FirstStrikeAbility"
	AbilityDoubleStrike             Ability = "DoubleStrikeAbility"
	AbilityTrample                  Ability = "TrampleAbility"
	AbilityTrampleOverPlaneswalkers Ability = "TrampleOverPlaneswalkersAbility"
	AbilityDeathtouch               Ability = "DeathtouchAbility"
	AbilityFlying                   Ability = "FlyingAbility"
	AbilityReach                    Ability = "ReachAbility"
	AbilityDefender                 Ability = "DefenderAbility"
	AbilityVigilance                Ability = "VigilanceAbility"
	AbilityIndestructible           Ability = "IndestructibleAbility"
	AbilityUnblockable              Ability = "CantBeBlockedAbility"
	AbilityCanBlockOnlyFlying       Ability = "CanBlockOnlyFlyingAbility"
	AbilityCantBlockAlone           Ability = "CantBlockAloneAbility"
	AbilityBanding                  Ability = "BandingAbility"
	AbilityCanBlockAnyNumber        Ability = "CanBlockAnyNumberAbility"

	// AbilityControllerDividesDamage lets the controller divide the creature's
	// combat damage among the defending player and/or defending creatures.
	AbilityControllerDividesDamage Ability = "ControllerDivideCombatDamageAbility"

	// AbilityDamageAsThoughUnblocked lets a blocked attacker assign its damage
	// as though it weren't blocked.
	AbilityDamageAsThoughUnblocked Ability = "DamageAsThoughNotBlockedAbility"

	// AbilityAlwaysDamageAsThoughUnblocked is the always-on version that
	// doesn't ask.
	AbilityAlwaysDamageAsThoughUnblocked Ability = "AlwaysDamageAsThoughNotBlockedAbility"

	// AbilityControllerAssignsDamageToBlockers is carried by a non-creature
	// permanent; its controller assigns combat damage of creatures attacking
	// them as though their blockers had banding.
	AbilityControllerAssignsDamageToBlockers Ability = "ControllerAssignCombatDamageToBlockersAbility"

	// AbilityAssignsDamageByToughness makes the creature assign combat damage
	// equal to its toughness rather than its power.
	AbilityAssignsDamageByToughness Ability = "AssignsDamageByToughnessAbility"
)

// ParseAbility maps a short keyword ("trample", "first_strike", ...) or a
// full ability ID to an Ability.
func ParseAbility(name string) (Ability, error) {
	if a, ok := abilityKeywords[name]; ok {
		return a, nil
	}
	for _, a := range abilityKeywords {
		if string(a) == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown ability %q", name)
}

var abilityKeywords = map[string]Ability{
	"first_strike":                AbilityFirstStrike,
	"double_strike":               AbilityDoubleStrike,
	"trample":                     AbilityTrample,
	"trample_over_planeswalkers":  AbilityTrampleOverPlaneswalkers,
	"deathtouch":                  AbilityDeathtouch,
	"flying":                      AbilityFlying,
	"reach":                       AbilityReach,
	"defender":                    AbilityDefender,
	"vigilance":                   AbilityVigilance,
	"indestructible":              AbilityIndestructible,
	"unblockable":                 AbilityUnblockable,
	"can_block_only_flying":       AbilityCanBlockOnlyFlying,
	"cant_block_alone":            AbilityCantBlockAlone,
	"banding":                     AbilityBanding,
	"can_block_any_number":        AbilityCanBlockAnyNumber,
	"divide_damage":               AbilityControllerDividesDamage,
	"damage_as_though_unblocked":  AbilityDamageAsThoughUnblocked,
	"always_as_though_unblocked":  AbilityAlwaysDamageAsThoughUnblocked,
	"assign_damage_to_blockers":   AbilityControllerAssignsDamageToBlockers,
	"assigns_damage_by_toughness": AbilityAssignsDamageByToughness,
}

// BandMatch is the quality a "bands with other" ability compares.
type BandMatch int

const (
	BandBySubtype BandMatch = iota
	BandBySupertype
	BandByName
)

func (m BandMatch) String() string {
	switch m {
	case BandBySubtype:
		return "subtype"
	case BandBySupertype:
		return "supertype"
	case BandByName:
		return "name"
	default:
		return "unknown"
	}
}

// BandsWith is a "bands with other [quality]" ability, e.g. bands with other
// Wolves (BandBySubtype, "Wolf") or bands with other Legends (BandBySupertype,
// "Legendary").
type BandsWith struct {
	Match BandMatch `yaml:"match" json:"match"`
	Value string    `yaml:"value" json:"value"`
}

// ParseBandMatch maps "subtype", "supertype" or "name" to a BandMatch.
func ParseBandMatch(s string) (BandMatch, error) {
	switch s {
	case "subtype":
		return BandBySubtype, nil
	case "supertype":
		return BandBySupertype, nil
	case "name":
		return BandByName, nil
	}
	return 0, fmt.Errorf("unknown band match %q", s)
}
