package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/osuops/tourney/internal/bracket"
	"github.com/osuops/tourney/internal/identity"
	"github.com/osuops/tourney/internal/notify"
	"github.com/osuops/tourney/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:")
	require.NoError(t, err, "Failed to connect to in-memory DB")

	database.SetMaxOpenConns(1)

	_, err = database.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"sqlite3",
		driver,
	)
	require.NoError(t, err, "Failed to create migrate instance")

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to apply migrations")
	}

	return database
}

type testEnv struct {
	db          *sqlx.DB
	store       *store.BracketStore
	progression *ProgressionService
	brackets    *BracketService
	drafts      *DraftService
	results     *ResultService
	scheduler   *SchedulerService
	clock       *clockwork.FakeClock

	// ctx carries an operator principal
	ctx context.Context
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	logger := zerolog.Nop()
	st := store.NewBracketStore(db)
	notifier := notify.NewLogNotifier(logger)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	progression := NewProgressionService(db, st, notifier, logger)
	env := &testEnv{
		db:          db,
		store:       st,
		progression: progression,
		brackets:    NewBracketService(db, st, progression, logger),
		drafts:      NewDraftService(db, st, notifier, logger),
		results:     NewResultService(db, st, logger),
		scheduler:   NewSchedulerService(db, st, notifier, clock, logger),
		clock:       clock,
		ctx: identity.WithPrincipal(context.Background(), identity.Principal{
			ID:    uuid.New(),
			Roles: bracket.RoleList{bracket.RoleAdmin},
		}),
	}
	return env
}

// seedTeams registers n teams seeded 1..n with two players each.
func seedTeams(t *testing.T, env *testEnv, n int) (uuid.UUID, []bracket.Team) {
	t.Helper()

	tournamentID := uuid.New()
	inputs := make([]TeamInput, n)
	for i := range inputs {
		inputs[i] = TeamInput{
			Name:    fmt.Sprintf("Team %d", i+1),
			Seed:    i + 1,
			Players: []string{fmt.Sprintf("p%d-a", i+1), fmt.Sprintf("p%d-b", i+1)},
		}
	}
	teams, err := env.brackets.CreateRoster(env.ctx, tournamentID, inputs)
	require.NoError(t, err)
	return tournamentID, teams
}

func makeBracket(t *testing.T, env *testEnv, input CreateBracketInput) *bracket.Bracket {
	t.Helper()
	b, err := env.brackets.CreateBracket(env.ctx, input)
	require.NoError(t, err)
	return b
}

// matchAt finds the match at a round order and match number.
func matchAt(t *testing.T, env *testEnv, bracketID uuid.UUID, roundOrder, matchNumber int) *bracket.Match {
	t.Helper()
	matches, err := env.store.GetMatchesByBracket(context.Background(), bracketID)
	require.NoError(t, err)
	for i := range matches {
		if matches[i].RoundNumber == roundOrder && matches[i].MatchNumber == matchNumber {
			return &matches[i]
		}
	}
	t.Fatalf("no match at round order %d number %d", roundOrder, matchNumber)
	return nil
}

func reloadMatch(t *testing.T, env *testEnv, id uuid.UUID) *bracket.Match {
	t.Helper()
	m, err := env.store.GetMatch(context.Background(), id)
	require.NoError(t, err)
	return m
}

// startMatch puts a pending match into play, as the draft start would.
func startMatch(t *testing.T, env *testEnv, id uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	tx, err := env.db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	m, err := env.store.GetMatchTx(ctx, tx, id)
	require.NoError(t, err)
	require.Equal(t, bracket.MatchPending, m.Status)
	now := time.Now().UTC()
	m.Status = bracket.MatchInProgress
	m.StartedAt = &now
	require.NoError(t, env.store.UpdateMatchTx(ctx, tx, m))
	require.NoError(t, tx.Commit())
}

// winMatch starts a pending match and records its winner.
func winMatch(t *testing.T, env *testEnv, id, winnerID uuid.UUID) {
	t.Helper()
	startMatch(t, env, id)
	require.NoError(t, env.progression.CompleteMatch(env.ctx, id, winnerID))
}
