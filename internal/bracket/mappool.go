package bracket

import (
	"time"

	"github.com/google/uuid"
)

type Mappool struct {
	ID           uuid.UUID `db:"id"`
	TournamentID uuid.UUID `db:"tournament_id"`
	Name         string    `db:"name"`
	CreatedAt    time.Time `db:"created_at"`
}

// Map is one playable beatmap inside a pool. Slot is the pool label
// (NM1, HD2, TB, ...).
type Map struct {
	ID        uuid.UUID `db:"id"`
	MappoolID uuid.UUID `db:"mappool_id"`
	Slot      string    `db:"slot"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
}
