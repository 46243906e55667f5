package bracket

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// The engine's failure taxonomy. Every error carries enough structured
// detail for the transport layer to render a precise message without
// re-deriving it. None of these are retried by the engine itself:
// IntegrityError is fatal and aborts the enclosing transaction, the
// rest are corrected by the caller.

// IntegrityError is a match-graph invariant violation: completing a
// match twice, resolving a slot twice, or wiring that points nowhere.
// It indicates duplicate event delivery or a topology bug.
type IntegrityError struct {
	MatchID uuid.UUID
	Detail  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("bracket integrity violation on match %s: %s", e.MatchID, e.Detail)
}

// DraftProtocolError is an out-of-turn or illegal pick/ban action.
type DraftProtocolError struct {
	MatchID        uuid.UUID
	ExpectedOrder  int
	ActualOrder    int
	ExpectedTeam   TeamColor
	ActualTeam     TeamColor
	ExpectedAction PickBanAction
	ActualAction   PickBanAction
	Detail         string
}

func (e *DraftProtocolError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("draft protocol violation on match %s: %s", e.MatchID, e.Detail)
	}
	return fmt.Sprintf("draft protocol violation on match %s: expected %s by %s at order %d, got %s by %s at order %d",
		e.MatchID, e.ExpectedAction, e.ExpectedTeam, e.ExpectedOrder,
		e.ActualAction, e.ActualTeam, e.ActualOrder)
}

// InvalidScoreError rejects a tied or malformed map score. The scoring
// system has its own tie-breaking, so equal scores never reach us
// legitimately.
type InvalidScoreError struct {
	MatchID   uuid.UUID
	MapID     uuid.UUID
	RedScore  int
	BlueScore int
	Detail    string
}

func (e *InvalidScoreError) Error() string {
	return fmt.Sprintf("invalid map score on match %s map %s (%d-%d): %s",
		e.MatchID, e.MapID, e.RedScore, e.BlueScore, e.Detail)
}

// SchedulingUnresolved reports that no common window could be found for
// a match. Not an error in the usual sense: it is a state requiring
// operator intervention, never auto-retried.
type SchedulingUnresolved struct {
	MatchID uuid.UUID
	Reason  string
	// Teams lacking availability records, when that is the cause
	MissingAvailability []uuid.UUID
	CheckedWindows      int
	At                  time.Time
}

func (e *SchedulingUnresolved) Error() string {
	return fmt.Sprintf("match %s could not be scheduled: %s", e.MatchID, e.Reason)
}

// AuthorizationError means the acting principal lacks the role or
// roster membership the operation requires.
type AuthorizationError struct {
	PrincipalID uuid.UUID
	Required    string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("principal %s is not authorized: requires %s", e.PrincipalID, e.Required)
}
