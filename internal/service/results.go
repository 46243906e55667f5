package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/osuops/tourney/internal/bracket"
	"github.com/osuops/tourney/internal/identity"
	"github.com/osuops/tourney/internal/store"
	"github.com/rs/zerolog"
)

// MapScore is one reported map outcome.
type MapScore struct {
	MapID         uuid.UUID
	TeamRedScore  int
	TeamBlueScore int
	PickedByTeam  *bracket.TeamColor
}

// ResultOutcome reports the aggregate state after a map result lands.
// Decided means one side reached the round's majority; completing the
// match is a separate, explicit step.
type ResultOutcome struct {
	RedWins  int
	BlueWins int
	Decided  bool
	WinnerID *uuid.UUID
}

// ResultService records per-map scores and derives match scores from
// them. The result log is append-only: dispute corrections re-report a
// map at a later play order and the latest entry per map counts.
type ResultService struct {
	db     *sqlx.DB
	store  *store.BracketStore
	logger zerolog.Logger
}

func NewResultService(db *sqlx.DB, st *store.BracketStore, logger zerolog.Logger) *ResultService {
	return &ResultService{db: db, store: st, logger: logger}
}

// RecordMapResult appends one map score and recomputes the match score.
// Referees and operators only. Ties are rejected outright: the scoring
// system has its own tie-breaking upstream.
func (s *ResultService) RecordMapResult(ctx context.Context, matchID uuid.UUID, score MapScore) (*ResultOutcome, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	if err := s.authorize(ctx, match); err != nil {
		return nil, err
	}
	if match.Status != bracket.MatchInProgress && match.Status != bracket.MatchDisputed {
		return nil, &bracket.IntegrityError{MatchID: matchID, Detail: fmt.Sprintf("cannot record results in status %s", match.Status)}
	}
	if score.TeamRedScore == score.TeamBlueScore {
		return nil, &bracket.InvalidScoreError{
			MatchID:   matchID,
			MapID:     score.MapID,
			RedScore:  score.TeamRedScore,
			BlueScore: score.TeamBlueScore,
			Detail:    "map scores cannot tie",
		}
	}

	red, ok1 := match.TeamOf(bracket.TeamRed)
	blue, ok2 := match.TeamOf(bracket.TeamBlue)
	if !ok1 || !ok2 {
		return nil, &bracket.IntegrityError{MatchID: matchID, Detail: "cannot record results before both slots resolve"}
	}
	mapWinner := red
	if score.TeamBlueScore > score.TeamRedScore {
		mapWinner = blue
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := s.store.GetMapResultsTx(ctx, tx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get map results: %w", err)
	}

	order := 0
	for _, r := range existing {
		if r.Order >= order {
			order = r.Order + 1
		}
	}
	result := bracket.MapResult{
		ID:            uuid.New(),
		MatchID:       matchID,
		MapID:         score.MapID,
		Order:         order,
		TeamRedScore:  score.TeamRedScore,
		TeamBlueScore: score.TeamBlueScore,
		WinnerID:      mapWinner,
		PickedByTeam:  score.PickedByTeam,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.AppendMapResultTx(ctx, tx, &result); err != nil {
		return nil, fmt.Errorf("failed to append map result: %w", err)
	}

	redWins, blueWins := bracket.WinCounts(append(existing, result), red, blue)
	match.Score1, match.Score2 = redWins, blueWins
	if match.Status == bracket.MatchDisputed {
		// A correcting entry settles the dispute.
		match.Status = bracket.MatchInProgress
		if err := s.store.ResolveSchedulingIssuesTx(ctx, tx, matchID); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpdateMatchTx(ctx, tx, match); err != nil {
		return nil, fmt.Errorf("failed to update match score: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	outcome := &ResultOutcome{RedWins: redWins, BlueWins: blueWins}
	if match.RoundID != nil {
		round, err := s.store.GetRound(ctx, *match.RoundID)
		if err != nil {
			return nil, fmt.Errorf("failed to get round: %w", err)
		}
		majority := round.Majority()
		switch {
		case redWins >= majority:
			outcome.Decided = true
			outcome.WinnerID = &red
		case blueWins >= majority:
			outcome.Decided = true
			outcome.WinnerID = &blue
		}
	}
	return outcome, nil
}

// DisputeMatch freezes a match pending adjudication. Further results
// are still accepted (corrections) and clear the dispute.
func (s *ResultService) DisputeMatch(ctx context.Context, matchID uuid.UUID, reason string) error {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return fmt.Errorf("failed to get match: %w", err)
	}
	if err := s.authorize(ctx, match); err != nil {
		return err
	}
	if match.Status != bracket.MatchInProgress {
		return &bracket.IntegrityError{MatchID: matchID, Detail: fmt.Sprintf("cannot dispute a match in status %s", match.Status)}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	match.Status = bracket.MatchDisputed
	if err := s.store.UpdateMatchTx(ctx, tx, match); err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	issue := &store.SchedulingIssue{
		ID:         uuid.New(),
		MatchID:    matchID,
		Reason:     "dispute",
		Detail:     reason,
		ReportedAt: time.Now().UTC(),
	}
	if err := s.store.ReportSchedulingIssueTx(ctx, tx, issue); err != nil {
		return fmt.Errorf("failed to record dispute: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Warn().Str("match_id", matchID.String()).Str("reason", reason).Msg("match disputed")
	return nil
}

// Results returns the raw append-only log plus the derived win counts.
func (s *ResultService) Results(ctx context.Context, matchID uuid.UUID) ([]bracket.MapResult, *ResultOutcome, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get match: %w", err)
	}
	results, err := s.store.GetMapResults(ctx, matchID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get map results: %w", err)
	}
	outcome := &ResultOutcome{}
	if red, ok1 := match.TeamOf(bracket.TeamRed); ok1 {
		if blue, ok2 := match.TeamOf(bracket.TeamBlue); ok2 {
			outcome.RedWins, outcome.BlueWins = bracket.WinCounts(results, red, blue)
		}
	}
	return results, outcome, nil
}

func (s *ResultService) authorize(ctx context.Context, match *bracket.Match) error {
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
