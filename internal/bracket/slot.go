package bracket

import (
	"encoding/json"

	"github.com/google/uuid"
)

type slotKind int

const (
	slotEmpty slotKind = iota
	slotDirect
	slotDeferred
)

// Slot is one of a match's two team positions. It is either direct
// (a concrete team), deferred (resolved from a feeder match's winner or
// loser once that match completes), or empty (the placeholder side of a
// bye). A deferred slot keeps its feeder reference after resolution so
// the wiring stays auditable.
type Slot struct {
	kind        slotKind
	teamID      uuid.UUID
	fromMatchID uuid.UUID
	takesWinner bool
}

func DirectSlot(teamID uuid.UUID) Slot {
	return Slot{kind: slotDirect, teamID: teamID}
}

func DeferredSlot(fromMatchID uuid.UUID, takesWinner bool) Slot {
	return Slot{kind: slotDeferred, fromMatchID: fromMatchID, takesWinner: takesWinner}
}

// EmptySlot is the placeholder side of a bye match.
func EmptySlot() Slot {
	return Slot{kind: slotEmpty}
}

func (s Slot) IsEmpty() bool {
	return s.kind == slotEmpty
}

func (s Slot) IsDeferred() bool {
	return s.kind == slotDeferred
}

// IsResolved reports whether the slot holds a concrete team.
func (s Slot) IsResolved() bool {
	switch s.kind {
	case slotDirect:
		return true
	case slotDeferred:
		return s.teamID != uuid.Nil
	default:
		return false
	}
}

// TeamID returns the resolved team, if any.
func (s Slot) TeamID() (uuid.UUID, bool) {
	if !s.IsResolved() {
		return uuid.Nil, false
	}
	return s.teamID, true
}

// Source returns the feeder match reference of a deferred slot.
func (s Slot) Source() (fromMatchID uuid.UUID, takesWinner bool, ok bool) {
	if s.kind != slotDeferred {
		return uuid.Nil, false, false
	}
	return s.fromMatchID, s.takesWinner, true
}

// resolve fills a deferred slot with the team produced by its feeder.
// Resolving a slot twice, or a slot that is not deferred, is an
// integrity violation surfaced by the caller.
func (s Slot) resolve(teamID uuid.UUID) (Slot, bool) {
	if s.kind != slotDeferred || s.teamID != uuid.Nil {
		return s, false
	}
	s.teamID = teamID
	return s, true
}

// MarshalJSON renders the slot for API consumers: resolved team plus
// the feeder reference when the slot is deferred.
func (s Slot) MarshalJSON() ([]byte, error) {
	teamID, fromMatchID, takesWinner := s.Columns()
	out := struct {
		TeamID      *uuid.UUID `json:"team_id,omitempty"`
		FromMatchID *uuid.UUID `json:"from_match_id,omitempty"`
		TakesWinner bool       `json:"takes_winner,omitempty"`
	}{teamID, fromMatchID, takesWinner}
	return json.Marshal(out)
}

// RestoreSlot rebuilds a slot from its persisted columns. The store is
// the only intended caller.
func RestoreSlot(teamID, fromMatchID *uuid.UUID, takesWinner bool) Slot {
	switch {
	case fromMatchID != nil:
		s := Slot{kind: slotDeferred, fromMatchID: *fromMatchID, takesWinner: takesWinner}
		if teamID != nil {
			s.teamID = *teamID
		}
		return s
	case teamID != nil:
		return Slot{kind: slotDirect, teamID: *teamID}
	default:
		return Slot{kind: slotEmpty}
	}
}

// Columns flattens the slot back into its persisted representation.
func (s Slot) Columns() (teamID, fromMatchID *uuid.UUID, takesWinner bool) {
	if s.teamID != uuid.Nil {
		id := s.teamID
		teamID = &id
	}
	if s.kind == slotDeferred {
		id := s.fromMatchID
		fromMatchID = &id
		takesWinner = s.takesWinner
	}
	return teamID, fromMatchID, takesWinner
}
