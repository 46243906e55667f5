package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/osuops/tourney/internal/bracket"
)

// matchRow is the persisted shape of a match: team slots flattened into
// the nullable column pairs the schema uses.
type matchRow struct {
	ID        uuid.UUID  `db:"id"`
	BracketID uuid.UUID  `db:"bracket_id"`
	RoundID   *uuid.UUID `db:"round_id"`

	RoundNumber int                 `db:"round_number"`
	MatchNumber int                 `db:"match_number"`
	BracketSide bracket.BracketSide `db:"bracket_side"`

	Team1ID           *uuid.UUID `db:"team_1_id"`
	Team1FromMatchID  *uuid.UUID `db:"team_1_from_match_id"`
	Team1FromIsWinner bool       `db:"team_1_from_is_winner"`
	Team2ID           *uuid.UUID `db:"team_2_id"`
	Team2FromMatchID  *uuid.UUID `db:"team_2_from_match_id"`
	Team2FromIsWinner bool       `db:"team_2_from_is_winner"`

	Score1   int                 `db:"score_1"`
	Score2   int                 `db:"score_2"`
	WinnerID *uuid.UUID          `db:"winner_id"`
	Status   bracket.MatchStatus `db:"status"`

	WinnerToMatchID *uuid.UUID `db:"winner_to_match_id"`
	LoserToMatchID  *uuid.UUID `db:"loser_to_match_id"`
	IsBye           bool       `db:"is_bye"`

	RefereeID   *uuid.UUID `db:"referee_id"`
	ScheduledAt *time.Time `db:"scheduled_at"`
	StartedAt   *time.Time `db:"started_at"`
	CompletedAt *time.Time `db:"completed_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func newMatchRow(m *bracket.Match) matchRow {
	t1, f1, w1 := m.Slot1.Columns()
	t2, f2, w2 := m.Slot2.Columns()
	return matchRow{
		ID:                m.ID,
		BracketID:         m.BracketID,
		RoundID:           m.RoundID,
		RoundNumber:       m.RoundNumber,
		MatchNumber:       m.MatchNumber,
		BracketSide:       m.BracketSide,
		Team1ID:           t1,
		Team1FromMatchID:  f1,
		Team1FromIsWinner: w1,
		Team2ID:           t2,
		Team2FromMatchID:  f2,
		Team2FromIsWinner: w2,
		Score1:            m.Score1,
		Score2:            m.Score2,
		WinnerID:          m.WinnerID,
		Status:            m.Status,
		WinnerToMatchID:   m.WinnerToMatchID,
		LoserToMatchID:    m.LoserToMatchID,
		IsBye:             m.IsBye,
		RefereeID:         m.RefereeID,
		ScheduledAt:       m.ScheduledAt,
		StartedAt:         m.StartedAt,
		CompletedAt:       m.CompletedAt,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func (r matchRow) toMatch() bracket.Match {
	return bracket.Match{
		ID:              r.ID,
		BracketID:       r.BracketID,
		RoundID:         r.RoundID,
		RoundNumber:     r.RoundNumber,
		MatchNumber:     r.MatchNumber,
		BracketSide:     r.BracketSide,
		Slot1:           bracket.RestoreSlot(r.Team1ID, r.Team1FromMatchID, r.Team1FromIsWinner),
		Slot2:           bracket.RestoreSlot(r.Team2ID, r.Team2FromMatchID, r.Team2FromIsWinner),
		Score1:          r.Score1,
		Score2:          r.Score2,
		WinnerID:        r.WinnerID,
		Status:          r.Status,
		WinnerToMatchID: r.WinnerToMatchID,
		LoserToMatchID:  r.LoserToMatchID,
		IsBye:           r.IsBye,
		RefereeID:       r.RefereeID,
		ScheduledAt:     r.ScheduledAt,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func toMatches(rows []matchRow) []bracket.Match {
	matches := make([]bracket.Match, len(rows))
	for i, r := range rows {
		matches[i] = r.toMatch()
	}
	return matches
}

const matchInsert = `INSERT INTO matches (id, bracket_id, round_id, round_number, match_number, bracket_side,
		team_1_id, team_1_from_match_id, team_1_from_is_winner,
		team_2_id, team_2_from_match_id, team_2_from_is_winner,
		score_1, score_2, winner_id, status, winner_to_match_id, loser_to_match_id, is_bye,
		referee_id, scheduled_at, started_at, completed_at, created_at, updated_at)
	VALUES (:id, :bracket_id, :round_id, :round_number, :match_number, :bracket_side,
		:team_1_id, :team_1_from_match_id, :team_1_from_is_winner,
		:team_2_id, :team_2_from_match_id, :team_2_from_is_winner,
		:score_1, :score_2, :winner_id, :status, :winner_to_match_id, :loser_to_match_id, :is_bye,
		:referee_id, :scheduled_at, :started_at, :completed_at, :created_at, :updated_at)`

func (s *BracketStore) CreateMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error {
	if len(matches) == 0 {
		return nil
	}
	// Forward edges reference matches inserted later in the same batch.
	if _, err := tx.ExecContext(ctx, `PRAGMA defer_foreign_keys = ON`); err != nil {
		return err
	}
	rows := make([]matchRow, len(matches))
	for i := range matches {
		rows[i] = newMatchRow(&matches[i])
	}
	_, err := tx.NamedExecContext(ctx, matchInsert, rows)
	return err
}

func (s *BracketStore) GetMatch(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	var row matchRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM matches WHERE id = ?`, id); err != nil {
		return nil, err
	}
	m := row.toMatch()
	return &m, nil
}

func (s *BracketStore) GetMatchTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Match, error) {
	var row matchRow
	if err := tx.GetContext(ctx, &row, `SELECT * FROM matches WHERE id = ?`, id); err != nil {
		return nil, err
	}
	m := row.toMatch()
	return &m, nil
}

func (s *BracketStore) UpdateMatchTx(ctx context.Context, tx *sqlx.Tx, m *bracket.Match) error {
	m.UpdatedAt = time.Now().UTC()
	row := newMatchRow(m)
	_, err := tx.NamedExecContext(ctx, `UPDATE matches SET
		team_1_id = :team_1_id, team_1_from_match_id = :team_1_from_match_id, team_1_from_is_winner = :team_1_from_is_winner,
		team_2_id = :team_2_id, team_2_from_match_id = :team_2_from_match_id, team_2_from_is_winner = :team_2_from_is_winner,
		score_1 = :score_1, score_2 = :score_2, winner_id = :winner_id, status = :status,
		referee_id = :referee_id, scheduled_at = :scheduled_at, started_at = :started_at, completed_at = :completed_at,
		updated_at = :updated_at
		WHERE id = :id`, row)
	return err
}

func (s *BracketStore) GetMatchesByBracket(ctx context.Context, bracketID uuid.UUID) ([]bracket.Match, error) {
	var rows []matchRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM matches WHERE bracket_id = ?
		ORDER BY round_number DESC, bracket_side, match_number`, bracketID)
	if err != nil {
		return nil, err
	}
	return toMatches(rows), nil
}

func (s *BracketStore) GetMatchesByRoundTx(ctx context.Context, tx *sqlx.Tx, roundID uuid.UUID) ([]bracket.Match, error) {
	var rows []matchRow
	err := tx.SelectContext(ctx, &rows, `SELECT * FROM matches WHERE round_id = ? ORDER BY match_number`, roundID)
	if err != nil {
		return nil, err
	}
	return toMatches(rows), nil
}

func (s *BracketStore) GetMatchesByBracketTx(ctx context.Context, tx *sqlx.Tx, bracketID uuid.UUID) ([]bracket.Match, error) {
	var rows []matchRow
	err := tx.SelectContext(ctx, &rows, `SELECT * FROM matches WHERE bracket_id = ?
		ORDER BY round_number DESC, bracket_side, match_number`, bracketID)
	if err != nil {
		return nil, err
	}
	return toMatches(rows), nil
}

// CountUnfinishedInRoundTx counts matches in a round that have not
// reached a terminal status. Zero means the round is done (the Swiss
// pairing trigger).
func (s *BracketStore) CountUnfinishedInRoundTx(ctx context.Context, tx *sqlx.Tx, roundID uuid.UUID) (int, error) {
	var n int
	err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM matches WHERE round_id = ? AND status NOT IN (?, ?)`,
		roundID, bracket.MatchCompleted, bracket.MatchNoShow)
	return n, err
}

// GetSchedulableMatches lists matches ready for the scheduler: pending,
// unscheduled, both team slots resolved.
func (s *BracketStore) GetSchedulableMatches(ctx context.Context, bracketID uuid.UUID) ([]bracket.Match, error) {
	var rows []matchRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM matches WHERE bracket_id = ?
		AND status = ? AND scheduled_at IS NULL
		AND team_1_id IS NOT NULL AND team_2_id IS NOT NULL
		ORDER BY round_number DESC, match_number`, bracketID, bracket.MatchPending)
	if err != nil {
		return nil, err
	}
	return toMatches(rows), nil
}
