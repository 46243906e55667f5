package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/osuops/tourney/internal/bracket"
)

// UpsertPlayerAvailability replaces a player's windows for a round.
// One record per (player, round); a fresh submission supersedes the
// previous one entirely.
func (s *BracketStore) UpsertPlayerAvailability(ctx context.Context, tx *sqlx.Tx, a *bracket.PlayerAvailability) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO player_availability (id, player_id, round_id, time_slots, created_at, updated_at)
		VALUES (:id, :player_id, :round_id, :time_slots, :created_at, :updated_at)
		ON CONFLICT (player_id, round_id) DO UPDATE SET time_slots = excluded.time_slots, updated_at = excluded.updated_at`, a)
	return err
}

func (s *BracketStore) GetPlayerAvailabilityByRound(ctx context.Context, roundID uuid.UUID) ([]bracket.PlayerAvailability, error) {
	var records []bracket.PlayerAvailability
	err := s.db.SelectContext(ctx, &records, `SELECT * FROM player_availability WHERE round_id = ?`, roundID)
	return records, err
}

func (s *BracketStore) CreateRefereeAvailability(ctx context.Context, tx *sqlx.Tx, a *bracket.RefereeAvailability) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO referee_availability (id, referee_id, round_id, week_start, time_slots, max_matches, created_at, updated_at)
		VALUES (:id, :referee_id, :round_id, :week_start, :time_slots, :max_matches, :created_at, :updated_at)`, a)
	return err
}

// GetRefereeAvailabilityForRound returns records scoped to the round
// plus general (unscoped) records, oldest first so creation order can
// break assignment ties.
func (s *BracketStore) GetRefereeAvailabilityForRound(ctx context.Context, roundID uuid.UUID) ([]bracket.RefereeAvailability, error) {
	var records []bracket.RefereeAvailability
	err := s.db.SelectContext(ctx, &records, `SELECT * FROM referee_availability
		WHERE round_id = ? OR round_id IS NULL ORDER BY created_at`, roundID)
	return records, err
}

// CountRefereeAssignmentsTx counts matches already assigned to a
// referee within a round. Read inside the scheduling transaction so a
// concurrent assignment cannot slip past the cap (compare-and-set).
func (s *BracketStore) CountRefereeAssignmentsTx(ctx context.Context, tx *sqlx.Tx, refereeID, roundID uuid.UUID) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM matches WHERE referee_id = ? AND round_id = ?`, refereeID, roundID)
	return n, err
}

// GetRefereeScheduleTx lists the referee's scheduled, not yet completed
// matches for overlap checks.
func (s *BracketStore) GetRefereeScheduleTx(ctx context.Context, tx *sqlx.Tx, refereeID uuid.UUID) ([]bracket.Match, error) {
	var rows []matchRow
	err := tx.SelectContext(ctx, &rows, `SELECT * FROM matches WHERE referee_id = ?
		AND scheduled_at IS NOT NULL AND status IN (?, ?)`,
		refereeID, bracket.MatchPending, bracket.MatchInProgress)
	if err != nil {
		return nil, err
	}
	return toMatches(rows), nil
}

// SchedulingIssue is an operator-queue entry for a match the scheduler
// could not place.
type SchedulingIssue struct {
	ID         uuid.UUID `db:"id"`
	MatchID    uuid.UUID `db:"match_id"`
	Reason     string    `db:"reason"`
	Detail     string    `db:"detail"`
	Resolved   bool      `db:"resolved"`
	ReportedAt time.Time `db:"reported_at"`
}

func (s *BracketStore) ReportSchedulingIssueTx(ctx context.Context, tx *sqlx.Tx, issue *SchedulingIssue) error {
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}
	if issue.ReportedAt.IsZero() {
		issue.ReportedAt = time.Now().UTC()
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO scheduling_issues (id, match_id, reason, detail, resolved, reported_at)
		VALUES (:id, :match_id, :reason, :detail, :resolved, :reported_at)`, issue)
	return err
}

func (s *BracketStore) GetOpenSchedulingIssues(ctx context.Context) ([]SchedulingIssue, error) {
	var issues []SchedulingIssue
	err := s.db.SelectContext(ctx, &issues, `SELECT * FROM scheduling_issues WHERE resolved = 0 ORDER BY reported_at`)
	return issues, err
}

// ResolveSchedulingIssuesTx marks all open issues for a match resolved,
// called when the match finally gets a time.
func (s *BracketStore) ResolveSchedulingIssuesTx(ctx context.Context, tx *sqlx.Tx, matchID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `UPDATE scheduling_issues SET resolved = 1 WHERE match_id = ? AND resolved = 0`, matchID)
	return err
}
