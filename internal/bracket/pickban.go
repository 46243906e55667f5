package bracket

import (
	"time"

	"github.com/google/uuid"
)

type PickBanAction string

const (
	ActionBan     PickBanAction = "BAN"
	ActionProtect PickBanAction = "PROTECT"
	ActionPick    PickBanAction = "PICK"
)

// PickBan is one entry of a match's draft log. The log is append-only:
// Order is dense and zero-indexed, and entries are never mutated or
// deleted once written.
type PickBan struct {
	ID      uuid.UUID     `db:"id"`
	MatchID uuid.UUID     `db:"match_id"`
	MapID   uuid.UUID     `db:"map_id"`
	Team    TeamColor     `db:"team"`
	Action  PickBanAction `db:"action"`
	Order   int           `db:"entry_order"`

	CreatedAt time.Time `db:"created_at"`
}

type DraftState string

const (
	DraftNotStarted DraftState = "NOT_STARTED"
	DraftDrafting   DraftState = "DRAFTING"
	DraftLocked     DraftState = "LOCKED"
)
