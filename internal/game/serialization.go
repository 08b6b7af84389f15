package game

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// SerializationChecksum is a deterministic checksum of a game view. Views of
// the same game state have the same checksum wherever they were built.
type SerializationChecksum struct {
	Hash      string // BLAKE2b-256 of the deterministic representation
	Timestamp string // when the view was taken
	Version   int    // representation version
}

// ComputeChecksum hashes the view's deterministic representation. Timestamps,
// the log and the stored checksum are left out.
func (v *GameView) ComputeChecksum() (*SerializationChecksum, error) {
	hash, err := blake2b.New256(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create hash: %w", err)
	}
	if _, err := hash.Write([]byte(v.buildDeterministicRepresentation())); err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}

	return &SerializationChecksum{
		Hash:      hex.EncodeToString(hash.Sum(nil)),
		Timestamp: v.Timestamp.Format("2006-01-02T15:04:05.000Z"),
		Version:   1,
	}, nil
}

func (v *GameView) buildDeterministicRepresentation() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "GAME:%s|%d|%s\n", v.GameID, v.Turn, v.Step)

	// Players and permanents keep battlefield order.
	for _, p := range v.Players {
		fmt.Fprintf(&buf, "PLAYER:%s|%s|%d|%t\n", p.ID, p.Name, p.Life, p.Lost)
	}
	for _, p := range v.Permanents {
		fmt.Fprintf(&buf, "PERMANENT:%s|%s|%s|%s|%d|%d|%d|%d|%t|%t|%t\n",
			p.ID,
			p.Name,
			p.ControllerID,
			strings.Join(p.Types, ","),
			p.Power,
			p.Toughness,
			p.Damage,
			p.Marked,
			p.Tapped,
			p.Attacking,
			p.Blocking,
		)
		for _, a := range p.Abilities {
			fmt.Fprintf(&buf, "  ABILITY:%s\n", a)
		}
		for _, c := range p.Counters {
			fmt.Fprintf(&buf, "  COUNTER:%s=%d\n", c.Name, c.Count)
		}
	}

	fmt.Fprintf(&buf, "COMBAT:%s\n", v.Combat.AttackingPlayerID)
	for i, g := range v.Combat.Groups {
		fmt.Fprintf(&buf, "  GROUP %d:%s|%s|%s|%t|%t\n", i, g.DefenderKind, g.DefenderID, g.DefendingPlayerID, g.Blocked, g.BlockersRemoved)
		fmt.Fprintf(&buf, "    ATTACKERS:%s\n", strings.Join(g.Attackers, ","))
		fmt.Fprintf(&buf, "    FORMER:%s\n", strings.Join(g.FormerAttackers, ","))
		fmt.Fprintf(&buf, "    BLOCKERS:%s\n", strings.Join(g.Blockers, ","))

		controllers := make([]string, 0, len(g.BlockerControllers))
		for blockerID, playerID := range g.BlockerControllers {
			controllers = append(controllers, blockerID+"="+playerID)
		}
		sort.Strings(controllers)
		fmt.Fprintf(&buf, "    BLOCKER_CONTROLLERS:%s\n", strings.Join(controllers, ","))
	}

	return buf.String()
}

// VerifyChecksum reports whether the view's stored checksum matches its
// contents.
func (v *GameView) VerifyChecksum() (bool, error) {
	computed, err := v.ComputeChecksum()
	if err != nil {
		return false, fmt.Errorf("failed to compute checksum: %w", err)
	}
	return computed.Hash == v.Checksum, nil
}

// SerializeToBytes gob-encodes the view, as stored in replay files.
func (v *GameView) SerializeToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode view: %w", err)
	}
	return buf.Bytes(), nil
}

// DeserializeFromBytes decodes a view encoded by SerializeToBytes.
func DeserializeFromBytes(data []byte) (*GameView, error) {
	var view GameView
	if err := gob.NewDecoder(bytes.NewBuffer(data)).Decode(&view); err != nil {
		return nil, fmt.Errorf("failed to decode view: %w", err)
	}
	return &view, nil
}

// ValidateSerializationRoundtrip checks that a view survives encoding and
// decoding with its checksum unchanged.
func ValidateSerializationRoundtrip(view *GameView) error {
	original, err := view.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("failed to compute original checksum: %w", err)
	}

	data, err := view.SerializeToBytes()
	if err != nil {
		return fmt.Errorf("failed to serialize: %w", err)
	}
	decoded, err := DeserializeFromBytes(data)
	if err != nil {
		return fmt.Errorf("failed to deserialize: %w", err)
	}

	roundtrip, err := decoded.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("failed to compute deserialized checksum: %w", err)
	}
	if original.Hash != roundtrip.Hash {
		return fmt.Errorf("checksum mismatch: original=%s, deserialized=%s", original.Hash, roundtrip.Hash)
	}
	return nil
}
