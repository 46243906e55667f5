package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/osuops/tourney/internal/bracket"
)

func (s *BracketStore) CreateMappool(ctx context.Context, tx *sqlx.Tx, pool *bracket.Mappool) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO mappools (id, tournament_id, name, created_at)
		VALUES (:id, :tournament_id, :name, :created_at)`, pool)
	return err
}

func (s *BracketStore) CreateMaps(ctx context.Context, tx *sqlx.Tx, maps []bracket.Map) error {
	if len(maps) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO maps (id, mappool_id, slot, title, created_at)
		VALUES (:id, :mappool_id, :slot, :title, :created_at)`, maps)
	return err
}

func (s *BracketStore) GetMapsByMappool(ctx context.Context, mappoolID uuid.UUID) ([]bracket.Map, error) {
	var maps []bracket.Map
	err := s.db.SelectContext(ctx, &maps, `SELECT * FROM maps WHERE mappool_id = ? ORDER BY slot`, mappoolID)
	return maps, err
}

func (s *BracketStore) GetMapsByMappoolTx(ctx context.Context, tx *sqlx.Tx, mappoolID uuid.UUID) ([]bracket.Map, error) {
	var maps []bracket.Map
	err := tx.SelectContext(ctx, &maps, `SELECT * FROM maps WHERE mappool_id = ? ORDER BY slot`, mappoolID)
	return maps, err
}

// AppendPickBanTx appends one draft log entry. The unique index on
// (match_id, entry_order) backstops the in-transaction order check.
func (s *BracketStore) AppendPickBanTx(ctx context.Context, tx *sqlx.Tx, pb *bracket.PickBan) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO pick_bans (id, match_id, map_id, team, action, entry_order, created_at)
		VALUES (:id, :match_id, :map_id, :team, :action, :entry_order, :created_at)`, pb)
	return err
}

func (s *BracketStore) GetPickBans(ctx context.Context, matchID uuid.UUID) ([]bracket.PickBan, error) {
	var log []bracket.PickBan
	err := s.db.SelectContext(ctx, &log, `SELECT * FROM pick_bans WHERE match_id = ? ORDER BY entry_order`, matchID)
	return log, err
}

func (s *BracketStore) GetPickBansTx(ctx context.Context, tx *sqlx.Tx, matchID uuid.UUID) ([]bracket.PickBan, error) {
	var log []bracket.PickBan
	err := tx.SelectContext(ctx, &log, `SELECT * FROM pick_bans WHERE match_id = ? ORDER BY entry_order`, matchID)
	return log, err
}

func (s *BracketStore) AppendMapResultTx(ctx context.Context, tx *sqlx.Tx, r *bracket.MapResult) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO map_results (id, match_id, map_id, play_order, team_red_score, team_blue_score, winner_id, picked_by_team, created_at)
		VALUES (:id, :match_id, :map_id, :play_order, :team_red_score, :team_blue_score, :winner_id, :picked_by_team, :created_at)`, r)
	return err
}

func (s *BracketStore) GetMapResults(ctx context.Context, matchID uuid.UUID) ([]bracket.MapResult, error) {
	var results []bracket.MapResult
	err := s.db.SelectContext(ctx, &results, `SELECT * FROM map_results WHERE match_id = ? ORDER BY play_order`, matchID)
	return results, err
}

func (s *BracketStore) GetMapResultsTx(ctx context.Context, tx *sqlx.Tx, matchID uuid.UUID) ([]bracket.MapResult, error) {
	var results []bracket.MapResult
	err := tx.SelectContext(ctx, &results, `SELECT * FROM map_results WHERE match_id = ? ORDER BY play_order`, matchID)
	return results, err
}
