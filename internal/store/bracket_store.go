package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/osuops/tourney/internal/bracket"
)

// BracketStore owns persistence for brackets, rounds, matches, draft
// logs, map results, rosters and availability. Reads go through the db
// handle; writes take a *sqlx.Tx so services control the transaction
// boundary.
type BracketStore struct {
	db *sqlx.DB
}

func NewBracketStore(db *sqlx.DB) *BracketStore {
	return &BracketStore{db: db}
}

func (s *BracketStore) CreateBracket(ctx context.Context, tx *sqlx.Tx, b *bracket.Bracket) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO brackets (id, tournament_id, name, bracket_type, is_active, grand_finals_reset, created_at, updated_at)
		VALUES (:id, :tournament_id, :name, :bracket_type, :is_active, :grand_finals_reset, :created_at, :updated_at)`, b)
	return err
}

// DeactivateBrackets clears the active flag for a tournament so a new
// bracket can claim it without tripping the unique index.
func (s *BracketStore) DeactivateBrackets(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `UPDATE brackets SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE tournament_id = ?`, tournamentID)
	return err
}

func (s *BracketStore) GetBracket(ctx context.Context, id uuid.UUID) (*bracket.Bracket, error) {
	var b bracket.Bracket
	err := s.db.GetContext(ctx, &b, `SELECT * FROM brackets WHERE id = ?`, id)
	return &b, err
}

func (s *BracketStore) GetBracketTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Bracket, error) {
	var b bracket.Bracket
	err := tx.GetContext(ctx, &b, `SELECT * FROM brackets WHERE id = ?`, id)
	return &b, err
}

func (s *BracketStore) GetActiveBracket(ctx context.Context, tournamentID uuid.UUID) (*bracket.Bracket, error) {
	var b bracket.Bracket
	err := s.db.GetContext(ctx, &b, `SELECT * FROM brackets WHERE tournament_id = ? AND is_active = 1`, tournamentID)
	return &b, err
}

func (s *BracketStore) CreateRounds(ctx context.Context, tx *sqlx.Tx, rounds []bracket.Round) error {
	if len(rounds) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO rounds (id, bracket_id, mappool_id, name, round_order, best_of, week_start, created_at, updated_at)
		VALUES (:id, :bracket_id, :mappool_id, :name, :round_order, :best_of, :week_start, :created_at, :updated_at)`, rounds)
	return err
}

func (s *BracketStore) GetRound(ctx context.Context, id uuid.UUID) (*bracket.Round, error) {
	var r bracket.Round
	err := s.db.GetContext(ctx, &r, `SELECT * FROM rounds WHERE id = ?`, id)
	return &r, err
}

func (s *BracketStore) GetRoundTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Round, error) {
	var r bracket.Round
	err := tx.GetContext(ctx, &r, `SELECT * FROM rounds WHERE id = ?`, id)
	return &r, err
}

func (s *BracketStore) GetRounds(ctx context.Context, bracketID uuid.UUID) ([]bracket.Round, error) {
	var rounds []bracket.Round
	err := s.db.SelectContext(ctx, &rounds, `SELECT * FROM rounds WHERE bracket_id = ? ORDER BY round_order DESC`, bracketID)
	return rounds, err
}

func (s *BracketStore) GetRoundByOrderTx(ctx context.Context, tx *sqlx.Tx, bracketID uuid.UUID, order int) (*bracket.Round, error) {
	var r bracket.Round
	err := tx.GetContext(ctx, &r, `SELECT * FROM rounds WHERE bracket_id = ? AND round_order = ?`, bracketID, order)
	return &r, err
}
