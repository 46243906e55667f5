package store

import (
	"context"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/osuops/tourney/internal/bracket"
	"github.com/osuops/tourney/internal/utils"
	"github.com/stretchr/testify/assert"
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

func inTx(t *testing.T, db *sqlx.DB, fn func(tx *sqlx.Tx)) {
	t.Helper()
	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func makeTestBracket(t *testing.T, db *sqlx.DB, st *BracketStore) (*bracket.Bracket, *bracket.Round) {
	t.Helper()
	now := time.Now().UTC()
	b := &bracket.Bracket{
		ID:           uuid.New(),
		TournamentID: uuid.New(),
		Name:         "test",
		Type:         bracket.SingleElimination,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	round := &bracket.Round{
		ID:        uuid.New(),
		BracketID: b.ID,
		Name:      "Final",
		Order:     1,
		BestOf:    5,
		CreatedAt: now,
		UpdatedAt: now,
	}
	inTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, st.CreateBracket(context.Background(), tx, b))
		require.NoError(t, st.CreateRounds(context.Background(), tx, []bracket.Round{*round}))
	})
	return b, round
}

func TestMatchSlotRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	st := NewBracketStore(db)
	ctx := context.Background()

	b, round := makeTestBracket(t, db, st)
	teamID := uuid.New()
	inTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, st.CreateTeams(ctx, tx, []bracket.Team{
			{ID: teamID, TournamentID: b.TournamentID, Name: "team", Seed: 1, CreatedAt: time.Now().UTC()},
		}))
	})

	now := time.Now().UTC()
	feeder := bracket.Match{
		ID:          uuid.New(),
		BracketID:   b.ID,
		RoundID:     &round.ID,
		RoundNumber: 1,
		MatchNumber: 1,
		BracketSide: bracket.WinnersSide,
		Slot1:       bracket.DirectSlot(teamID),
		Slot2:       bracket.EmptySlot(),
		Status:      bracket.MatchPending,
		IsBye:       true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	target := bracket.Match{
		ID:          uuid.New(),
		BracketID:   b.ID,
		RoundID:     &round.ID,
		RoundNumber: 1,
		MatchNumber: 2,
		BracketSide: bracket.WinnersSide,
		Slot1:       bracket.DeferredSlot(feeder.ID, true),
		Slot2:       bracket.DeferredSlot(feeder.ID, false),
		Status:      bracket.MatchPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	feeder.WinnerToMatchID = &target.ID
	feeder.LoserToMatchID = &target.ID

	// The feeder references a match created later in the same batch.
	inTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, st.CreateMatches(ctx, tx, []bracket.Match{feeder, target}))
	})

	got, err := st.GetMatch(ctx, target.ID)
	require.NoError(t, err)
	from, takesWinner, ok := got.Slot1.Source()
	require.True(t, ok)
	assert.Equal(t, feeder.ID, from)
	assert.True(t, takesWinner)
	from, takesWinner, ok = got.Slot2.Source()
	require.True(t, ok)
	assert.Equal(t, feeder.ID, from)
	assert.False(t, takesWinner)
	assert.False(t, got.Slot1.IsResolved())

	gotFeeder, err := st.GetMatch(ctx, feeder.ID)
	require.NoError(t, err)
	f1, ok := gotFeeder.Slot1.TeamID()
	require.True(t, ok)
	assert.Equal(t, teamID, f1)
	assert.True(t, gotFeeder.Slot2.IsEmpty())
	assert.True(t, gotFeeder.IsBye)

	// Resolution survives an update round trip.
	found, already := got.ResolveSlotFrom(feeder.ID, true, teamID)
	require.True(t, found)
	require.False(t, already)
	inTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, st.UpdateMatchTx(ctx, tx, got))
	})
	got, err = st.GetMatch(ctx, target.ID)
	require.NoError(t, err)
	resolved, ok := got.Slot1.TeamID()
	require.True(t, ok)
	assert.Equal(t, teamID, resolved)
	_, _, stillDeferred := got.Slot1.Source()
	assert.True(t, stillDeferred, "resolved slots keep their feeder reference")
}

func TestOneActiveBracketPerTournament(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	st := NewBracketStore(db)
	ctx := context.Background()

	b, _ := makeTestBracket(t, db, st)

	second := &bracket.Bracket{
		ID:           uuid.New(),
		TournamentID: b.TournamentID,
		Name:         "replacement",
		Type:         bracket.DoubleElimination,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	err = st.CreateBracket(ctx, tx, second)
	assert.Error(t, err, "two active brackets for one tournament")
	require.NoError(t, tx.Rollback())

	inTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, st.DeactivateBrackets(ctx, tx, b.TournamentID))
		require.NoError(t, st.CreateBracket(ctx, tx, second))
	})

	active, err := st.GetActiveBracket(ctx, b.TournamentID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestUpsertPlayerAvailabilityReplaces(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	st := NewBracketStore(db)
	ctx := context.Background()

	b, round := makeTestBracket(t, db, st)
	teamID := uuid.New()
	playerID := uuid.New()
	now := time.Now().UTC()
	inTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, st.CreateTeams(ctx, tx, []bracket.Team{
			{ID: teamID, TournamentID: b.TournamentID, Name: "team", Seed: 1, CreatedAt: now},
		}))
		require.NoError(t, st.CreatePlayers(ctx, tx, []bracket.Player{
			{ID: playerID, TeamID: teamID, Name: "player", CreatedAt: now},
		}))
	})

	slot := bracket.TimeSlot{Start: now.Add(time.Hour), End: now.Add(3 * time.Hour)}
	later := bracket.TimeSlot{Start: now.Add(5 * time.Hour), End: now.Add(6 * time.Hour)}

	for _, slots := range []bracket.TimeSlots{{slot}, {later}} {
		inTx(t, db, func(tx *sqlx.Tx) {
			require.NoError(t, st.UpsertPlayerAvailability(ctx, tx, &bracket.PlayerAvailability{
				ID:        uuid.New(),
				PlayerID:  playerID,
				RoundID:   round.ID,
				Slots:     slots,
				CreatedAt: now,
				UpdatedAt: now,
			}))
		})
	}

	all, err := st.GetPlayerAvailabilityByRound(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, all, 1, "second submission replaces the first")
	require.Len(t, all[0].Slots, 1)
	assert.True(t, all[0].Slots[0].Start.Equal(later.Start))
}

func TestRefereeAvailabilityScoping(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	st := NewBracketStore(db)
	ctx := context.Background()

	b, round := makeTestBracket(t, db, st)
	now := time.Now().UTC()
	ref := bracket.Staff{
		ID:           uuid.New(),
		TournamentID: b.TournamentID,
		Name:         "ref",
		Roles:        bracket.RoleList{bracket.RoleReferee, bracket.RoleCommentator},
		CreatedAt:    now,
	}
	inTx(t, db, func(tx *sqlx.Tx) {
		require.NoError(t, st.CreateStaff(ctx, tx, []bracket.Staff{ref}))
		// One global record and one scoped to an unrelated round id
		// should both be filtered correctly.
		require.NoError(t, st.CreateRefereeAvailability(ctx, tx, &bracket.RefereeAvailability{
			ID:         uuid.New(),
			RefereeID:  ref.ID,
			Slots:      bracket.TimeSlots{{Start: now, End: now.Add(time.Hour)}},
			MaxMatches: utils.Ptr(3),
			CreatedAt:  now,
			UpdatedAt:  now,
		}))
	})

	got, err := st.GetRefereeAvailabilityForRound(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, got, 1, "global availability applies to every round")
	require.NotNil(t, got[0].MaxMatches)
	assert.Equal(t, 3, *got[0].MaxMatches)

	loaded, err := st.GetStaff(ctx, ref.ID)
	require.NoError(t, err)
	assert.True(t, loaded.Roles.Has(bracket.RoleReferee))
	assert.True(t, loaded.Roles.Has(bracket.RoleCommentator))
	assert.False(t, loaded.Roles.Has(bracket.RoleAdmin))
}
