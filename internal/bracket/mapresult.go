package bracket

import (
	"time"

	"github.com/google/uuid"
)

// MapResult is the outcome of one played map within a match. Match
// scores are derived from these rows, never stored authoritatively.
// Disputed matches append correcting rows at a later Order; earlier
// rows stay for the audit trail and the latest row per map counts.
type MapResult struct {
	ID      uuid.UUID `db:"id"`
	MatchID uuid.UUID `db:"match_id"`
	MapID   uuid.UUID `db:"map_id"`
	Order   int       `db:"play_order"`

	TeamRedScore  int `db:"team_red_score"`
	TeamBlueScore int `db:"team_blue_score"`

	WinnerID     uuid.UUID  `db:"winner_id"`
	PickedByTeam *TeamColor `db:"picked_by_team"`

	CreatedAt time.Time `db:"created_at"`
}

// WinCounts aggregates map results into per-side win counts. When a map
// appears more than once (dispute correction), only its latest entry by
// Order counts.
func WinCounts(results []MapResult, redTeam, blueTeam uuid.UUID) (red, blue int) {
	latest := make(map[uuid.UUID]MapResult, len(results))
	for _, r := range results {
		if cur, ok := latest[r.MapID]; !ok || r.Order > cur.Order {
			latest[r.MapID] = r
		}
	}
	for _, r := range latest {
		switch r.WinnerID {
		case redTeam:
			red++
		case blueTeam:
			blue++
		}
	}
	return red, blue
}
