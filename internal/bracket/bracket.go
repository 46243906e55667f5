package bracket

import (
	"time"

	"github.com/google/uuid"
)

type BracketType string

const (
	SingleElimination BracketType = "SINGLE_ELIMINATION"
	DoubleElimination BracketType = "DOUBLE_ELIMINATION"
	RoundRobin        BracketType = "ROUND_ROBIN"
	Swiss             BracketType = "SWISS"
)

// Bracket is one tournament progression structure. At most one bracket
// per tournament may be active (the scheduling target); the database
// enforces this with a partial unique index.
type Bracket struct {
	ID           uuid.UUID   `db:"id"`
	TournamentID uuid.UUID   `db:"tournament_id"`
	Name         string      `db:"name"`
	Type         BracketType `db:"bracket_type"`
	IsActive     bool        `db:"is_active"`

	// Double elimination only: losers bracket winner must win twice
	GrandFinalsReset bool `db:"grand_finals_reset"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Round is an ordered stage within a bracket. Higher Order = earlier in
// the progression (Round of 16 has a higher order than the final).
type Round struct {
	ID        uuid.UUID  `db:"id"`
	BracketID uuid.UUID  `db:"bracket_id"`
	MappoolID *uuid.UUID `db:"mappool_id"`
	Name      string     `db:"name"`
	Order     int        `db:"round_order"`
	BestOf    int        `db:"best_of"`
	WeekStart *time.Time `db:"week_start"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

// Majority is the number of map wins that decides a match in this round.
func (r *Round) Majority() int {
	return r.BestOf/2 + 1
}
