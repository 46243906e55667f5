package bracket

import (
	"database/sql/driver"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Team struct {
	ID           uuid.UUID `db:"id"`
	TournamentID uuid.UUID `db:"tournament_id"`
	Name         string    `db:"name"`
	Seed         int       `db:"seed"`
	CreatedAt    time.Time `db:"created_at"`
}

type Player struct {
	ID        uuid.UUID `db:"id"`
	TeamID    uuid.UUID `db:"team_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type StaffRole string

const (
	RoleReferee     StaffRole = "REFEREE"
	RoleCommentator StaffRole = "COMMENTATOR"
	RolePooler      StaffRole = "POOLER"
	RoleAdmin       StaffRole = "ADMIN"
	RoleHost        StaffRole = "HOST"
)

// Staff is a tournament staff member. Roles are stored as a
// comma-separated list; members may hold several at once.
type Staff struct {
	ID           uuid.UUID `db:"id"`
	TournamentID uuid.UUID `db:"tournament_id"`
	Name         string    `db:"name"`
	Roles        RoleList  `db:"roles"`
	CreatedAt    time.Time `db:"created_at"`
}

type RoleList []StaffRole

func (r RoleList) Has(role StaffRole) bool {
	for _, have := range r {
		if have == role {
			return true
		}
	}
	return false
}

func (r RoleList) Value() (driver.Value, error) {
	parts := make([]string, len(r))
	for i, role := range r {
		parts[i] = string(role)
	}
	return strings.Join(parts, ","), nil
}

func (r *RoleList) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	}
	if raw == "" {
		*r = nil
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make(RoleList, 0, len(parts))
	for _, p := range parts {
		out = append(out, StaffRole(strings.TrimSpace(p)))
	}
	*r = out
	return nil
}
