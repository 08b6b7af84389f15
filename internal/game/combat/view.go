package combat

// View is a read-only snapshot of combat.
type View struct {
	AttackingPlayerID string      `json:"attacking_player_id" yaml:"attacking_player_id"`
	Groups            []GroupView `json:"groups" yaml:"groups"`
}

// GroupView is a read-only snapshot of one combat group.
type GroupView struct {
	Attackers          []string          `json:"attackers" yaml:"attackers"`
	FormerAttackers    []string          `json:"former_attackers,omitempty" yaml:"former_attackers,omitempty"`
	Blockers           []string          `json:"blockers" yaml:"blockers"`
	BlockerControllers map[string]string `json:"blocker_controllers,omitempty" yaml:"blocker_controllers,omitempty"`
	Blocked            bool              `json:"blocked" yaml:"blocked"`
	BlockersRemoved    bool              `json:"blockers_removed,omitempty" yaml:"blockers_removed,omitempty"`
	DefenderKind       string            `json:"defender_kind" yaml:"defender_kind"`
	DefenderID         string            `json:"defender_id,omitempty" yaml:"defender_id,omitempty"`
	DefendingPlayerID  string            `json:"defending_player_id" yaml:"defending_player_id"`
}

// View snapshots the combat. The result shares nothing with it.
func (c *Combat) View() View {
	view := View{
		AttackingPlayerID: c.attackingPlayerID,
		Groups:            make([]GroupView, 0, len(c.groups)),
	}
	for _, g := range c.groups {
		gv := GroupView{
			Attackers:          g.Attackers(),
			FormerAttackers:    g.FormerAttackers(),
			Blockers:           g.Blockers(),
			BlockerControllers: make(map[string]string, len(g.blockerControllers)),
			Blocked:            g.blocked,
			BlockersRemoved:    g.blockerRemoved,
			DefenderKind:       g.defender.Kind.String(),
			DefenderID:         g.defender.ID,
			DefendingPlayerID:  g.defendingPlayerID,
		}
		for blockerID, playerID := range g.blockerControllers {
			gv.BlockerControllers[blockerID] = playerID
		}
		view.Groups = append(view.Groups, gv)
	}
	return view
}

// Copy returns an independent combat over another lookup, typically a copy of
// the battlefield. Groups and the blocker index are rebuilt; collaborators
// other than the lookup are shared.
func (c *Combat) Copy(lookup Lookup) *Combat {
	out := &Combat{
		gameID:            c.gameID,
		attackingPlayerID: c.attackingPlayerID,
		lookup:            lookup,
		decisions:         c.decisions,
		notifier:          c.notifier,
		strikes:           c.strikes,
		verifyIndex:       c.verifyIndex,
		messages:          append([]string(nil), c.messages...),
		logger:            c.logger,
	}
	if record, ok := c.strikes.(strikeRecord); ok {
		copied := make(strikeRecord, len(record))
		for id, v := range record {
			copied[id] = v
		}
		out.strikes = copied
	}
	out.groups = make([]*Group, 0, len(c.groups))
	for _, g := range c.groups {
		out.groups = append(out.groups, g.copy(out))
	}
	out.blockingGroups = out.deriveIndex()
	return out
}
