package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/osuops/tourney/internal/bracket"
	"github.com/osuops/tourney/internal/notify"
	"github.com/osuops/tourney/internal/store"
	"github.com/rs/zerolog"
)

// ProgressionService owns match completion and everything downstream of
// it: winner/loser propagation along the dependency graph, bye
// auto-completion, the grand finals reset shortcut, and lazy pairing of
// the next swiss round.
type ProgressionService struct {
	db       *sqlx.DB
	store    *store.BracketStore
	notifier notify.Notifier
	logger   zerolog.Logger

	// Pairer decides swiss pairings. Swappable for custom formats.
	Pairer SwissPairer
}

func NewProgressionService(db *sqlx.DB, st *store.BracketStore, notifier notify.Notifier, logger zerolog.Logger) *ProgressionService {
	return &ProgressionService{
		db:       db,
		store:    st,
		notifier: notifier,
		logger:   logger,
		Pairer:   DefaultSwissPairer{},
	}
}

// CompleteMatch records a winner and cascades every consequence in a
// single transaction. Events are published only after commit.
func (s *ProgressionService) CompleteMatch(ctx context.Context, matchID, winnerID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var events []notify.Event
	if err := s.completeMatchTx(ctx, tx, matchID, winnerID, &events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.publish(ctx, events)
	return nil
}

// ForfeitMatch resolves a no-show: the present team advances exactly as
// a winner would, but the match is marked NO_SHOW for the record.
func (s *ProgressionService) ForfeitMatch(ctx context.Context, matchID, absentTeamID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	match, err := s.store.GetMatchTx(ctx, tx, matchID)
	if err != nil {
		return fmt.Errorf("failed to get match: %w", err)
	}
	t1, t2, ok := match.Teams()
	if !ok {
		return &bracket.IntegrityError{MatchID: matchID, Detail: "cannot forfeit before both slots resolve"}
	}
	var winner uuid.UUID
	switch absentTeamID {
	case t1:
		winner = t2
	case t2:
		winner = t1
	default:
		return &bracket.IntegrityError{MatchID: matchID, Detail: fmt.Sprintf("team %s is not a participant", absentTeamID)}
	}

	var events []notify.Event
	if err := s.completeLoadedAs(ctx, tx, match, winner, bracket.MatchNoShow, &events); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.publish(ctx, events)
	return nil
}

func (s *ProgressionService) publish(ctx context.Context, events []notify.Event) {
	for _, event := range events {
		if err := s.notifier.Publish(ctx, event); err != nil {
			s.logger.Warn().Err(err).
				Str("event_type", string(event.Type)).
				Str("match_id", event.MatchID.String()).
				Msg("failed to publish event")
		}
	}
}

func (s *ProgressionService) completeMatchTx(ctx context.Context, tx *sqlx.Tx, matchID, winnerID uuid.UUID, events *[]notify.Event) error {
	match, err := s.store.GetMatchTx(ctx, tx, matchID)
	if err != nil {
		return fmt.Errorf("failed to get match: %w", err)
	}
	return s.completeLoaded(ctx, tx, match, winnerID, events)
}

func (s *ProgressionService) completeLoaded(ctx context.Context, tx *sqlx.Tx, m *bracket.Match, winnerID uuid.UUID, events *[]notify.Event) error {
	return s.completeLoadedAs(ctx, tx, m, winnerID, bracket.MatchCompleted, events)
}

func (s *ProgressionService) completeLoadedAs(ctx context.Context, tx *sqlx.Tx, m *bracket.Match, winnerID uuid.UUID, finalStatus bracket.MatchStatus, events *[]notify.Event) error {
	if m.Status == bracket.MatchCompleted || m.Status == bracket.MatchNoShow {
		return &bracket.IntegrityError{MatchID: m.ID, Detail: "match is already completed"}
	}
	// Byes complete the moment their team is known; everything else has
	// to be started (or under dispute) before a winner can be recorded.
	if finalStatus == bracket.MatchCompleted && !m.IsBye && m.Status == bracket.MatchPending {
		return &bracket.IntegrityError{MatchID: m.ID, Detail: "match has not started"}
	}
	if !m.HasTeam(winnerID) {
		return &bracket.IntegrityError{MatchID: m.ID, Detail: fmt.Sprintf("winner %s is not a participant", winnerID)}
	}

	now := time.Now().UTC()
	m.WinnerID = &winnerID
	m.Status = finalStatus
	m.CompletedAt = &now
	if err := s.store.UpdateMatchTx(ctx, tx, m); err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	*events = append(*events, notify.NewEvent(notify.EventMatchCompleted, m.BracketID, m.ID, map[string]any{
		"winner_id": winnerID.String(),
	}))

	if m.WinnerToMatchID != nil {
		if err := s.propagate(ctx, tx, m, *m.WinnerToMatchID, true, winnerID, events); err != nil {
			return err
		}
	}
	if m.LoserToMatchID != nil {
		loser, ok := m.LoserID()
		if !ok {
			return &bracket.IntegrityError{MatchID: m.ID, Detail: "loser edge present but match produced no loser"}
		}
		if err := s.propagate(ctx, tx, m, *m.LoserToMatchID, false, loser, events); err != nil {
			return err
		}
	}

	// Grand finals with a bracket reset: both reset slots hang off this
	// match. If the winners-side champion (slot 1) takes the first set
	// the reset is moot and completes immediately in their favor.
	if m.BracketSide == bracket.GrandFinalsSide &&
		m.WinnerToMatchID != nil && m.LoserToMatchID != nil &&
		*m.WinnerToMatchID == *m.LoserToMatchID {
		if champ, ok := m.Slot1.TeamID(); ok && champ == winnerID {
			reset, err := s.store.GetMatchTx(ctx, tx, *m.WinnerToMatchID)
			if err != nil {
				return fmt.Errorf("failed to get reset match: %w", err)
			}
			// The reset set is never played in this outcome, so it skips
			// the started gate and completes directly.
			reset.Status = bracket.MatchInProgress
			if err := s.completeLoaded(ctx, tx, reset, winnerID, events); err != nil {
				return err
			}
		}
	}

	if m.RoundID != nil {
		if err := s.maybePairNextSwissRound(ctx, tx, m, events); err != nil {
			return err
		}
	}
	return nil
}

// propagate fills the slot in the target match that waits on the
// source's outcome. A missing or already-filled slot is an integrity
// violation and aborts the whole cascade.
func (s *ProgressionService) propagate(ctx context.Context, tx *sqlx.Tx, src *bracket.Match, targetID uuid.UUID, takesWinner bool, teamID uuid.UUID, events *[]notify.Event) error {
	target, err := s.store.GetMatchTx(ctx, tx, targetID)
	if err != nil {
		return fmt.Errorf("failed to get downstream match: %w", err)
	}

	found, alreadySet := target.ResolveSlotFrom(src.ID, takesWinner, teamID)
	if !found {
		return &bracket.IntegrityError{MatchID: targetID, Detail: fmt.Sprintf("no slot waiting on match %s", src.ID)}
	}
	if alreadySet {
		return &bracket.IntegrityError{MatchID: targetID, Detail: fmt.Sprintf("slot fed by match %s is already resolved", src.ID)}
	}
	if err := s.store.UpdateMatchTx(ctx, tx, target); err != nil {
		return fmt.Errorf("failed to update downstream match: %w", err)
	}

	// A bye completes the moment its real team arrives.
	if target.IsBye && target.Status != bracket.MatchCompleted {
		return s.completeLoaded(ctx, tx, target, teamID, events)
	}
	return nil
}

// maybePairNextSwissRound materializes the next swiss round once every
// match of the current one has finished.
func (s *ProgressionService) maybePairNextSwissRound(ctx context.Context, tx *sqlx.Tx, m *bracket.Match, events *[]notify.Event) error {
	b, err := s.store.GetBracketTx(ctx, tx, m.BracketID)
	if err != nil {
		return fmt.Errorf("failed to get bracket: %w", err)
	}
	if b.Type != bracket.Swiss {
		return nil
	}

	unfinished, err := s.store.CountUnfinishedInRoundTx(ctx, tx, *m.RoundID)
	if err != nil {
		return err
	}
	if unfinished > 0 {
		return nil
	}

	round, err := s.store.GetRoundTx(ctx, tx, *m.RoundID)
	if err != nil {
		return fmt.Errorf("failed to get round: %w", err)
	}
	if round.Order <= 1 {
		return nil // final swiss round
	}
	next, err := s.store.GetRoundByOrderTx(ctx, tx, b.ID, round.Order-1)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get next round: %w", err)
	}
	existing, err := s.store.GetMatchesByRoundTx(ctx, tx, next.ID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	teams, err := s.store.GetTeamsByTournamentTx(ctx, tx, b.TournamentID)
	if err != nil {
		return fmt.Errorf("failed to get teams: %w", err)
	}
	all, err := s.store.GetMatchesByBracketTx(ctx, tx, b.ID)
	if err != nil {
		return err
	}

	standings, played := swissStandings(teams, all)
	pairs, bye, err := s.Pairer.PairRound(standings, played)
	if err != nil {
		return fmt.Errorf("swiss pairing failed: %w", err)
	}

	matches, byeWins := buildSwissRound(b, next, pairs, bye)
	if err := s.store.CreateMatches(ctx, tx, matches); err != nil {
		return fmt.Errorf("failed to create swiss round: %w", err)
	}
	s.logger.Info().
		Str("bracket_id", b.ID.String()).
		Int("round_order", next.Order).
		Int("matches", len(matches)).
		Msg("paired next swiss round")

	for _, bw := range byeWins {
		if err := s.completeMatchTx(ctx, tx, bw.MatchID, bw.TeamID, events); err != nil {
			return err
		}
	}
	return nil
}
