package bracket

import (
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchPending    MatchStatus = "PENDING"
	MatchInProgress MatchStatus = "IN_PROGRESS"
	MatchCompleted  MatchStatus = "COMPLETED"
	MatchNoShow     MatchStatus = "NO_SHOW"
	MatchDisputed   MatchStatus = "DISPUTED"
)

type BracketSide string

const (
	WinnersSide     BracketSide = "WINNERS"
	LosersSide      BracketSide = "LOSERS"
	GrandFinalsSide BracketSide = "GRAND_FINALS"
)

// TeamColor is the lobby side a team plays on. Slot 1 is red, slot 2 is
// blue.
type TeamColor string

const (
	TeamRed  TeamColor = "RED"
	TeamBlue TeamColor = "BLUE"
)

func (c TeamColor) Opponent() TeamColor {
	if c == TeamRed {
		return TeamBlue
	}
	return TeamRed
}

// Match is the central entity of a bracket. Slot1/Slot2 carry the team
// assignments (direct or deferred); WinnerToMatchID/LoserToMatchID are
// the forward edges of the dependency graph, nil meaning terminal.
type Match struct {
	ID        uuid.UUID
	BracketID uuid.UUID
	RoundID   *uuid.UUID

	RoundNumber int
	MatchNumber int
	BracketSide BracketSide

	Slot1 Slot
	Slot2 Slot

	// Count of maps won per side, derived from map results
	Score1 int
	Score2 int

	WinnerID *uuid.UUID
	Status   MatchStatus

	WinnerToMatchID *uuid.UUID
	LoserToMatchID  *uuid.UUID

	IsBye bool

	RefereeID   *uuid.UUID
	ScheduledAt *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Schedulable reports whether the match is ready for the scheduler:
// both slots resolved, still pending, no time assigned.
func (m *Match) Schedulable() bool {
	return m.Status == MatchPending &&
		m.Slot1.IsResolved() && m.Slot2.IsResolved() &&
		m.ScheduledAt == nil
}

// Teams returns both resolved team ids, or false if either slot is
// still open.
func (m *Match) Teams() (team1, team2 uuid.UUID, ok bool) {
	t1, ok1 := m.Slot1.TeamID()
	t2, ok2 := m.Slot2.TeamID()
	return t1, t2, ok1 && ok2
}

// HasTeam reports whether teamID occupies one of the match's resolved
// slots.
func (m *Match) HasTeam(teamID uuid.UUID) bool {
	if t, ok := m.Slot1.TeamID(); ok && t == teamID {
		return true
	}
	if t, ok := m.Slot2.TeamID(); ok && t == teamID {
		return true
	}
	return false
}

// ColorOf returns which side teamID plays on.
func (m *Match) ColorOf(teamID uuid.UUID) (TeamColor, bool) {
	if t, ok := m.Slot1.TeamID(); ok && t == teamID {
		return TeamRed, true
	}
	if t, ok := m.Slot2.TeamID(); ok && t == teamID {
		return TeamBlue, true
	}
	return "", false
}

// TeamOf returns the team playing the given color.
func (m *Match) TeamOf(color TeamColor) (uuid.UUID, bool) {
	if color == TeamRed {
		return m.Slot1.TeamID()
	}
	return m.Slot2.TeamID()
}

// LoserID returns the losing team of a completed match. Bye matches
// complete with a single occupied slot and have no loser.
func (m *Match) LoserID() (uuid.UUID, bool) {
	if (m.Status != MatchCompleted && m.Status != MatchNoShow) || m.WinnerID == nil {
		return uuid.Nil, false
	}
	t1, t2, ok := m.Teams()
	if !ok {
		return uuid.Nil, false
	}
	if *m.WinnerID == t1 {
		return t2, true
	}
	return t1, true
}

// ResolveSlotFrom fills whichever slot is deferred on (fromMatchID,
// takesWinner) with teamID. found=false means no slot references that
// feeder; alreadySet means the matching slot was resolved before. Both
// are integrity violations for the caller to surface.
func (m *Match) ResolveSlotFrom(fromMatchID uuid.UUID, takesWinner bool, teamID uuid.UUID) (found, alreadySet bool) {
	for _, sl := range []*Slot{&m.Slot1, &m.Slot2} {
		src, tw, ok := sl.Source()
		if !ok || src != fromMatchID || tw != takesWinner {
			continue
		}
		next, resolved := sl.resolve(teamID)
		if !resolved {
			return true, true
		}
		*sl = next
		return true, false
	}
	return false, false
}
