package bracket

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimeSlot is one free-time window, end exclusive.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s TimeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Overlaps reports whether two half-open windows intersect.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.Start.Before(o.End) && o.Start.Before(s.End)
}

// Contains reports whether [start, start+d) fits inside the slot.
func (s TimeSlot) Contains(start time.Time, d time.Duration) bool {
	return !start.Before(s.Start) && !start.Add(d).After(s.End)
}

// TimeSlots is stored as a JSON array column.
type TimeSlots []TimeSlot

func (s TimeSlots) Value() (driver.Value, error) {
	if s == nil {
		s = TimeSlots{}
	}
	return json.Marshal(s)
}

func (s *TimeSlots) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("cannot scan %T into TimeSlots", src)
	}
}

// PlayerAvailability holds one player's free windows for a round.
type PlayerAvailability struct {
	ID       uuid.UUID `db:"id"`
	PlayerID uuid.UUID `db:"player_id"`
	RoundID  uuid.UUID `db:"round_id"`
	Slots    TimeSlots `db:"time_slots"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// RefereeAvailability holds a referee's free windows, optionally scoped
// to a round, with an optional cap on assigned matches.
type RefereeAvailability struct {
	ID         uuid.UUID  `db:"id"`
	RefereeID  uuid.UUID  `db:"referee_id"`
	RoundID    *uuid.UUID `db:"round_id"`
	WeekStart  *time.Time `db:"week_start"`
	Slots      TimeSlots  `db:"time_slots"`
	MaxMatches *int       `db:"max_matches"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
