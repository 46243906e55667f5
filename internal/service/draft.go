package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/osuops/tourney/internal/bracket"
	"github.com/osuops/tourney/internal/identity"
	"github.com/osuops/tourney/internal/notify"
	"github.com/osuops/tourney/internal/store"
	"github.com/rs/zerolog"
)

// DraftStep is one fixed turn of the draft prelude.
type DraftStep struct {
	Action bracket.PickBanAction
	Team   bracket.TeamColor
}

// DraftConfig describes the turn protocol: a fixed prelude of bans and
// protects, then strictly alternating picks until the round's best-of
// is covered.
type DraftConfig struct {
	Prelude   []DraftStep
	FirstPick bracket.TeamColor
}

// DefaultDraftConfig is the standard protocol: one ban and one protect
// per side, red acts first throughout.
func DefaultDraftConfig() DraftConfig {
	return DraftConfig{
		Prelude: []DraftStep{
			{Action: bracket.ActionBan, Team: bracket.TeamRed},
			{Action: bracket.ActionBan, Team: bracket.TeamBlue},
			{Action: bracket.ActionProtect, Team: bracket.TeamRed},
			{Action: bracket.ActionProtect, Team: bracket.TeamBlue},
		},
		FirstPick: bracket.TeamRed,
	}
}

// stepAt returns the expected turn for a zero-based entry order, or
// ok=false once the draft is complete for the given best-of.
func (c DraftConfig) stepAt(order, bestOf int) (DraftStep, bool) {
	if order < len(c.Prelude) {
		return c.Prelude[order], true
	}
	pick := order - len(c.Prelude)
	if pick >= bestOf {
		return DraftStep{}, false
	}
	team := c.FirstPick
	if pick%2 == 1 {
		team = team.Opponent()
	}
	return DraftStep{Action: bracket.ActionPick, Team: team}, true
}

func (c DraftConfig) totalEntries(bestOf int) int {
	return len(c.Prelude) + bestOf
}

// DraftService runs the pick/ban phase of a match. The draft log is
// append-only; draft state is derived from it, never stored.
type DraftService struct {
	db       *sqlx.DB
	store    *store.BracketStore
	notifier notify.Notifier
	logger   zerolog.Logger

	Config DraftConfig
}

func NewDraftService(db *sqlx.DB, st *store.BracketStore, notifier notify.Notifier, logger zerolog.Logger) *DraftService {
	return &DraftService{
		db:       db,
		store:    st,
		notifier: notifier,
		logger:   logger,
		Config:   DefaultDraftConfig(),
	}
}

// StartDraft moves a fully seated match into play so the draft can
// begin. Referees and operators only.
func (s *DraftService) StartDraft(ctx context.Context, matchID uuid.UUID) error {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("failed to get match: %w", err)
	}
	if err := s.authorizeOfficial(ctx, match); err != nil {
		return err
	}
	if match.Status != bracket.MatchPending {
		return &bracket.IntegrityError{MatchID: matchID, Detail: fmt.Sprintf("cannot start draft from status %s", match.Status)}
	}
	if _, _, ok := match.Teams(); !ok {
		return &bracket.IntegrityError{MatchID: matchID, Detail: "cannot start draft before both slots resolve"}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	match.Status = bracket.MatchInProgress
	match.StartedAt = &now
	if err := s.store.UpdateMatchTx(ctx, tx, match); err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	return tx.Commit()
}

// SubmitPickBan validates one draft action against the turn protocol
// and the mappool, then appends it to the log. Callers state the order
// they believe comes next; a stale order means they acted on an old
// view of the log and the submission is rejected, not reapplied. The
// entry that covers the last pick locks the draft.
func (s *DraftService) SubmitPickBan(ctx context.Context, matchID, teamID, mapID uuid.UUID, action bracket.PickBanAction, order int) (bracket.DraftState, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return "", fmt.Errorf("failed to get match: %w", err)
	}
	if err := s.authorizeDraftActor(ctx, match, teamID); err != nil {
		return "", err
	}
	if match.Status != bracket.MatchInProgress {
		return "", &bracket.DraftProtocolError{MatchID: matchID, Detail: fmt.Sprintf("draft is not active in status %s", match.Status)}
	}
	color, ok := match.ColorOf(teamID)
	if !ok {
		return "", &bracket.DraftProtocolError{MatchID: matchID, Detail: fmt.Sprintf("team %s is not a participant", teamID)}
	}
	if match.RoundID == nil {
		return "", &bracket.IntegrityError{MatchID: matchID, Detail: "match has no round"}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	round, err := s.store.GetRoundTx(ctx, tx, *match.RoundID)
	if err != nil {
		return "", fmt.Errorf("failed to get round: %w", err)
	}
	if round.MappoolID == nil {
		return "", &bracket.IntegrityError{MatchID: matchID, Detail: "round has no mappool"}
	}

	entries, err := s.store.GetPickBansTx(ctx, tx, matchID)
	if err != nil {
		return "", fmt.Errorf("failed to get draft log: %w", err)
	}

	if expected := len(entries); order != expected {
		return "", &bracket.DraftProtocolError{
			MatchID:       matchID,
			ExpectedOrder: expected,
			ActualOrder:   order,
			Detail:        fmt.Sprintf("stale draft order %d, next entry is %d", order, expected),
		}
	}
	step, more := s.Config.stepAt(order, round.BestOf)
	if !more {
		return "", &bracket.DraftProtocolError{MatchID: matchID, Detail: "draft is locked"}
	}
	if step.Team != color || step.Action != action {
		return "", &bracket.DraftProtocolError{
			MatchID:        matchID,
			ExpectedOrder:  order,
			ActualOrder:    order,
			ExpectedTeam:   step.Team,
			ActualTeam:     color,
			ExpectedAction: step.Action,
			ActualAction:   action,
		}
	}

	if err := s.checkMapLegal(ctx, tx, round, entries, mapID, action, matchID); err != nil {
		return "", err
	}

	entry := bracket.PickBan{
		ID:        uuid.New(),
		MatchID:   matchID,
		MapID:     mapID,
		Team:      color,
		Action:    action,
		Order:     order,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendPickBanTx(ctx, tx, &entry); err != nil {
		return "", fmt.Errorf("failed to append draft entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	state := bracket.DraftDrafting
	if order+1 == s.Config.totalEntries(round.BestOf) {
		state = bracket.DraftLocked
		event := notify.NewEvent(notify.EventDraftLocked, match.BracketID, matchID, map[string]any{
			"entries": order + 1,
		})
		if err := s.notifier.Publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("match_id", matchID.String()).Msg("failed to publish draft lock")
		}
	}
	return state, nil
}

// checkMapLegal enforces pool membership and the reuse rules: banned
// and picked maps are dead for the rest of the draft, protected maps
// stay pickable but cannot be protected or banned again.
func (s *DraftService) checkMapLegal(ctx context.Context, tx *sqlx.Tx, round *bracket.Round, entries []bracket.PickBan, mapID uuid.UUID, action bracket.PickBanAction, matchID uuid.UUID) error {
	maps, err := s.store.GetMapsByMappoolTx(ctx, tx, *round.MappoolID)
	if err != nil {
		return fmt.Errorf("failed to get mappool: %w", err)
	}
	inPool := false
	for _, m := range maps {
		if m.ID == mapID {
			inPool = true
			break
		}
	}
	if !inPool {
		return &bracket.DraftProtocolError{MatchID: matchID, Detail: fmt.Sprintf("map %s is not in the round mappool", mapID)}
	}

	for _, e := range entries {
		if e.MapID != mapID {
			continue
		}
		if action == bracket.ActionPick && e.Action == bracket.ActionProtect {
			continue
		}
		return &bracket.DraftProtocolError{
			MatchID: matchID,
			Detail:  fmt.Sprintf("map %s was already used by a %s", mapID, e.Action),
		}
	}
	return nil
}

// DraftStateOf derives the draft state from the log.
func (s *DraftService) DraftStateOf(ctx context.Context, matchID uuid.UUID) (bracket.DraftState, []bracket.PickBan, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get match: %w", err)
	}
	entries, err := s.store.GetPickBans(ctx, matchID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get draft log: %w", err)
	}
	if len(entries) == 0 && match.Status == bracket.MatchPending {
		return bracket.DraftNotStarted, entries, nil
	}

	bestOf := 0
	if match.RoundID != nil {
		round, err := s.store.GetRound(ctx, *match.RoundID)
		if err != nil {
			return "", nil, fmt.Errorf("failed to get round: %w", err)
		}
		bestOf = round.BestOf
	}
	if len(entries) >= s.Config.totalEntries(bestOf) {
		return bracket.DraftLocked, entries, nil
	}
	return bracket.DraftDrafting, entries, nil
}

// authorizeOfficial admits operators and the assigned referee.
func (s *DraftService) authorizeOfficial(ctx context.Context, match *bracket.Match) error {
	p, ok := identity.FromContext(ctx)
	if !ok {
		return &bracket.AuthorizationError{Required: "authenticated principal"}
	}
	if p.IsOperator() {
		return nil
	}
	if p.HasRole(bracket.RoleReferee) && match.RefereeID != nil && *match.RefereeID == p.ID {
		return nil
	}
	return &bracket.AuthorizationError{PrincipalID: p.ID, Required: "operator or assigned referee"}
}

// authorizeDraftActor additionally admits players on the acting team's
// roster.
func (s *DraftService) authorizeDraftActor(ctx context.Context, match *bracket.Match, teamID uuid.UUID) error {
	p, ok := identity.FromContext(ctx)
	if !ok {
		return &bracket.AuthorizationError{Required: "authenticated principal"}
	}
	if p.IsOperator() {
		return nil
	}
	if p.HasRole(bracket.RoleReferee) && match.RefereeID != nil && *match.RefereeID == p.ID {
		return nil
	}
	onTeam, err := s.store.IsPlayerOnTeam(ctx, p.ID, teamID)
	if err != nil {
		return fmt.Errorf("failed to check roster: %w", err)
	}
	if onTeam {
		return nil
	}
	return &bracket.AuthorizationError{PrincipalID: p.ID, Required: "operator, assigned referee, or roster member"}
}
