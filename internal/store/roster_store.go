package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/osuops/tourney/internal/bracket"
)

func (s *BracketStore) CreateTeams(ctx context.Context, tx *sqlx.Tx, teams []bracket.Team) error {
	if len(teams) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO teams (id, tournament_id, name, seed, created_at)
		VALUES (:id, :tournament_id, :name, :seed, :created_at)`, teams)
	return err
}

func (s *BracketStore) GetTeam(ctx context.Context, id uuid.UUID) (*bracket.Team, error) {
	var t bracket.Team
	err := s.db.GetContext(ctx, &t, `SELECT * FROM teams WHERE id = ?`, id)
	return &t, err
}

func (s *BracketStore) GetTeamsByTournament(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Team, error) {
	var teams []bracket.Team
	err := s.db.SelectContext(ctx, &teams, `SELECT * FROM teams WHERE tournament_id = ? ORDER BY seed`, tournamentID)
	return teams, err
}

func (s *BracketStore) GetTeamsByTournamentTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID) ([]bracket.Team, error) {
	var teams []bracket.Team
	err := tx.SelectContext(ctx, &teams, `SELECT * FROM teams WHERE tournament_id = ? ORDER BY seed`, tournamentID)
	return teams, err
}

func (s *BracketStore) CreatePlayers(ctx context.Context, tx *sqlx.Tx, players []bracket.Player) error {
	if len(players) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO players (id, team_id, name, created_at)
		VALUES (:id, :team_id, :name, :created_at)`, players)
	return err
}

func (s *BracketStore) GetPlayersByTeam(ctx context.Context, teamID uuid.UUID) ([]bracket.Player, error) {
	var players []bracket.Player
	err := s.db.SelectContext(ctx, &players, `SELECT * FROM players WHERE team_id = ? ORDER BY name`, teamID)
	return players, err
}

// IsPlayerOnTeam reports roster membership for draft authorization.
func (s *BracketStore) IsPlayerOnTeam(ctx context.Context, playerID, teamID uuid.UUID) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM players WHERE id = ? AND team_id = ?`, playerID, teamID)
	return n > 0, err
}

func (s *BracketStore) CreateStaff(ctx context.Context, tx *sqlx.Tx, members []bracket.Staff) error {
	if len(members) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO staff (id, tournament_id, name, roles, created_at)
		VALUES (:id, :tournament_id, :name, :roles, :created_at)`, members)
	return err
}

func (s *BracketStore) GetStaff(ctx context.Context, id uuid.UUID) (*bracket.Staff, error) {
	var m bracket.Staff
	err := s.db.GetContext(ctx, &m, `SELECT * FROM staff WHERE id = ?`, id)
	return &m, err
}
