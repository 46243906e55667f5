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

// BracketService builds bracket topologies over a tournament's roster
// and owns the supporting entities (teams, staff, mappools).
type BracketService struct {
	db          *sqlx.DB
	store       *store.BracketStore
	progression *ProgressionService
	logger      zerolog.Logger
}

func NewBracketService(db *sqlx.DB, st *store.BracketStore, progression *ProgressionService, logger zerolog.Logger) *BracketService {
	return &BracketService{db: db, store: st, progression: progression, logger: logger}
}

type TeamInput struct {
	Name    string
	Seed    int
	Players []string
}

// CreateRoster registers the competing teams and their players. Seeds
// must be dense starting at 1; the topology builder trusts them.
func (s *BracketService) CreateRoster(ctx context.Context, tournamentID uuid.UUID, inputs []TeamInput) ([]bracket.Team, error) {
	if err := s.authorizeOperator(ctx); err != nil {
		return nil, err
	}
	seen := make(map[int]bool, len(inputs))
	for _, in := range inputs {
		if in.Seed < 1 || in.Seed > len(inputs) || seen[in.Seed] {
			return nil, fmt.Errorf("seeds must be 1..%d without repeats, got %d", len(inputs), in.Seed)
		}
		seen[in.Seed] = true
	}

	now := time.Now().UTC()
	teams := make([]bracket.Team, len(inputs))
	var players []bracket.Player
	for i, in := range inputs {
		teams[i] = bracket.Team{
			ID:           uuid.New(),
			TournamentID: tournamentID,
			Name:         in.Name,
			Seed:         in.Seed,
			CreatedAt:    now,
		}
		for _, name := range in.Players {
			players = append(players, bracket.Player{
				ID:        uuid.New(),
				TeamID:    teams[i].ID,
				Name:      name,
				CreatedAt: now,
			})
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.store.CreateTeams(ctx, tx, teams); err != nil {
		return nil, fmt.Errorf("failed to create teams: %w", err)
	}
	if err := s.store.CreatePlayers(ctx, tx, players); err != nil {
		return nil, fmt.Errorf("failed to create players: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return teams, nil
}

// CreateStaff registers tournament staff with their roles.
func (s *BracketService) CreateStaff(ctx context.Context, tournamentID uuid.UUID, members []bracket.Staff) error {
	if err := s.authorizeOperator(ctx); err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range members {
		if members[i].ID == uuid.Nil {
			members[i].ID = uuid.New()
		}
		members[i].TournamentID = tournamentID
		members[i].CreatedAt = now
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.store.CreateStaff(ctx, tx, members); err != nil {
		return fmt.Errorf("failed to create staff: %w", err)
	}
	return tx.Commit()
}

type MapInput struct {
	Slot  string
	Title string
}

// CreateMappool registers a pool and its maps for use by rounds.
func (s *BracketService) CreateMappool(ctx context.Context, tournamentID uuid.UUID, name string, maps []MapInput) (*bracket.Mappool, error) {
	if err := s.authorizeOperator(ctx); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	pool := &bracket.Mappool{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		Name:         name,
		CreatedAt:    now,
	}
	rows := make([]bracket.Map, len(maps))
	for i, in := range maps {
		rows[i] = bracket.Map{
			ID:        uuid.New(),
			MappoolID: pool.ID,
			Slot:      in.Slot,
			Title:     in.Title,
			CreatedAt: now,
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := s.store.CreateMappool(ctx, tx, pool); err != nil {
		return nil, fmt.Errorf("failed to create mappool: %w", err)
	}
	if err := s.store.CreateMaps(ctx, tx, rows); err != nil {
		return nil, fmt.Errorf("failed to create maps: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return pool, nil
}

type CreateBracketInput struct {
	TournamentID     uuid.UUID
	Name             string
	Type             bracket.BracketType
	GrandFinalsReset bool
	DefaultBestOf    int
	Rounds           []RoundSpec
	SwissRounds      int
}

// CreateBracket builds and persists a full topology over the
// tournament's seeded teams, deactivating any previous bracket. Byes
// complete before the transaction commits, so the returned bracket is
// immediately playable.
func (s *BracketService) CreateBracket(ctx context.Context, input CreateBracketInput) (*bracket.Bracket, error) {
	if err := s.authorizeOperator(ctx); err != nil {
		return nil, err
	}

	teams, err := s.store.GetTeamsByTournament(ctx, input.TournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get teams: %w", err)
	}
	seeds := make([]uuid.UUID, len(teams))
	for i, t := range teams {
		seeds[i] = t.ID
	}

	now := time.Now().UTC()
	b := &bracket.Bracket{
		ID:               uuid.New(),
		TournamentID:     input.TournamentID,
		Name:             input.Name,
		Type:             input.Type,
		IsActive:         true,
		GrandFinalsReset: input.GrandFinalsReset,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	topo, err := BuildTopology(BuildParams{
		Bracket:       b,
		Seeds:         seeds,
		DefaultBestOf: input.DefaultBestOf,
		Rounds:        input.Rounds,
		SwissRounds:   input.SwissRounds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build topology: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.store.DeactivateBrackets(ctx, tx, input.TournamentID); err != nil {
		return nil, fmt.Errorf("failed to deactivate brackets: %w", err)
	}
	if err := s.store.CreateBracket(ctx, tx, b); err != nil {
		return nil, fmt.Errorf("failed to create bracket: %w", err)
	}
	if err := s.store.CreateRounds(ctx, tx, topo.Rounds); err != nil {
		return nil, fmt.Errorf("failed to create rounds: %w", err)
	}
	if err := s.store.CreateMatches(ctx, tx, topo.Matches); err != nil {
		return nil, fmt.Errorf("failed to create matches: %w", err)
	}

	var events []notify.Event
	for _, bw := range topo.ByeWins {
		if err := s.progression.completeMatchTx(ctx, tx, bw.MatchID, bw.TeamID, &events); err != nil {
			return nil, fmt.Errorf("failed to complete bye: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.progression.publish(ctx, events)

	s.logger.Info().
		Str("bracket_id", b.ID.String()).
		Str("type", string(b.Type)).
		Int("teams", len(teams)).
		Int("matches", len(topo.Matches)).
		Msg("created bracket")
	return b, nil
}

// BracketView is everything a rendering layer needs in one shape.
type BracketView struct {
	Bracket *bracket.Bracket
	Rounds  []bracket.Round
	Matches []bracket.Match
}

func (s *BracketService) GetBracketView(ctx context.Context, bracketID uuid.UUID) (*BracketView, error) {
	b, err := s.store.GetBracket(ctx, bracketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bracket: %w", err)
	}
	rounds, err := s.store.GetRounds(ctx, bracketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rounds: %w", err)
	}
	matches, err := s.store.GetMatchesByBracket(ctx, bracketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get matches: %w", err)
	}
	return &BracketView{Bracket: b, Rounds: rounds, Matches: matches}, nil
}

func (s *BracketService) GetActiveBracket(ctx context.Context, tournamentID uuid.UUID) (*bracket.Bracket, error) {
	return s.store.GetActiveBracket(ctx, tournamentID)
}

func (s *BracketService) authorizeOperator(ctx context.Context) error {
	p, ok := identity.FromContext(ctx)
	if !ok {
		return &bracket.AuthorizationError{Required: "authenticated principal"}
	}
	if !p.IsOperator() {
		return &bracket.AuthorizationError{PrincipalID: p.ID, Required: "operator"}
	}
	return nil
}
