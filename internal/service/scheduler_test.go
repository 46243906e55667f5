package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/osuops/tourney/internal/bracket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// schedulerFixture is a two-team bracket with one unscheduled match,
// one referee, and the round id handy for availability submissions.
type schedulerFixture struct {
	env     *testEnv
	match   *bracket.Match
	round   bracket.Round
	teams   []bracket.Team
	referee bracket.Staff
}

func newSchedulerFixture(t *testing.T, teamCount int) *schedulerFixture {
	t.Helper()

	env := newTestEnv(t)
	tournamentID, teams := seedTeams(t, env, teamCount)
	b := makeBracket(t, env, CreateBracketInput{
		TournamentID:  tournamentID,
		Name:          "main",
		Type:          bracket.SingleElimination,
		DefaultBestOf: 5,
	})

	rounds, err := env.store.GetRounds(context.Background(), b.ID)
	require.NoError(t, err)
	require.NotEmpty(t, rounds)
	first := rounds[0] // highest order = earliest stage

	referee := bracket.Staff{
		ID:    uuid.New(),
		Name:  "ref one",
		Roles: bracket.RoleList{bracket.RoleReferee},
	}
	require.NoError(t, env.brackets.CreateStaff(env.ctx, tournamentID, []bracket.Staff{referee}))

	f := &schedulerFixture{env: env, round: first, teams: teams, referee: referee}
	if teamCount == 2 {
		f.match = matchAt(t, env, b.ID, first.Order, 1)
	}
	return f
}

func day(t *testing.T, env *testEnv, hour int) time.Time {
	t.Helper()
	// The fake clock sits at midnight; the next day keeps everything in
	// the future.
	return env.clock.Now().UTC().Add(24 * time.Hour).Truncate(24 * time.Hour).Add(time.Duration(hour) * time.Hour)
}

func (f *schedulerFixture) submitTeam(t *testing.T, teamID uuid.UUID, slots []bracket.TimeSlot, onlyFirst bool) {
	t.Helper()
	players, err := f.env.store.GetPlayersByTeam(context.Background(), teamID)
	require.NoError(t, err)
	for i, p := range players {
		if onlyFirst && i > 0 {
			break
		}
		require.NoError(t, f.env.scheduler.SubmitPlayerAvailability(f.env.ctx, f.round.ID, p.ID, slots))
	}
}

func window(start, end time.Time) []bracket.TimeSlot {
	return []bracket.TimeSlot{{Start: start, End: end}}
}

func TestScheduleMatchDisjointThenOverlap(t *testing.T) {
	f := newSchedulerFixture(t, 2)
	env := f.env

	require.NoError(t, env.scheduler.SubmitRefereeAvailability(
		env.ctx, f.referee.ID, nil, window(day(t, env, 8), day(t, env, 18)), nil))

	f.submitTeam(t, f.teams[0].ID, window(day(t, env, 10), day(t, env, 12)), false)
	f.submitTeam(t, f.teams[1].ID, window(day(t, env, 14), day(t, env, 16)), false)

	_, err := env.scheduler.ScheduleMatch(env.ctx, f.match.ID)
	var unresolved *bracket.SchedulingUnresolved
	require.ErrorAs(t, err, &unresolved)

	issues, err := env.store.GetOpenSchedulingIssues(context.Background())
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, f.match.ID, issues[0].MatchID)

	// Team two widens its window; the overlap is 11:00-12:00.
	f.submitTeam(t, f.teams[1].ID, window(day(t, env, 11), day(t, env, 15)), false)

	at, err := env.scheduler.ScheduleMatch(env.ctx, f.match.ID)
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.Equal(t, day(t, env, 11), *at, "earliest feasible start wins")

	m := reloadMatch(t, env, f.match.ID)
	require.NotNil(t, m.ScheduledAt)
	assert.Equal(t, day(t, env, 11), m.ScheduledAt.UTC())
	require.NotNil(t, m.RefereeID)
	assert.Equal(t, f.referee.ID, *m.RefereeID)

	issues, err = env.store.GetOpenSchedulingIssues(context.Background())
	require.NoError(t, err)
	assert.Empty(t, issues, "scheduling resolves the open issue")
}

func TestScheduleMatchReportsMissingAvailability(t *testing.T) {
	f := newSchedulerFixture(t, 2)

	_, err := f.env.scheduler.ScheduleMatch(f.env.ctx, f.match.ID)
	var unresolved *bracket.SchedulingUnresolved
	require.ErrorAs(t, err, &unresolved)
	assert.Len(t, unresolved.MissingAvailability, 4, "every player of both rosters")
}

func TestScheduleMatchQuorum(t *testing.T) {
	f := newSchedulerFixture(t, 2)
	env := f.env
	env.scheduler.Config.TeamQuorum = 0.5

	// Only one player per roster submits; half the roster satisfies the
	// quorum.
	slots := window(day(t, env, 10), day(t, env, 12))
	f.submitTeam(t, f.teams[0].ID, slots, true)
	f.submitTeam(t, f.teams[1].ID, slots, true)

	at, err := env.scheduler.ScheduleMatch(env.ctx, f.match.ID)
	require.NoError(t, err)
	assert.Equal(t, day(t, env, 10), *at)
}

func TestScheduleMatchTooShortWindow(t *testing.T) {
	f := newSchedulerFixture(t, 2)
	env := f.env
	env.scheduler.Config.MatchDuration = 2 * time.Hour

	f.submitTeam(t, f.teams[0].ID, window(day(t, env, 10), day(t, env, 12)), false)
	f.submitTeam(t, f.teams[1].ID, window(day(t, env, 11), day(t, env, 13)), false)

	// The shared hour is shorter than the match.
	_, err := env.scheduler.ScheduleMatch(env.ctx, f.match.ID)
	var unresolved *bracket.SchedulingUnresolved
	require.ErrorAs(t, err, &unresolved)
}

func TestScheduleBracketBalancesReferees(t *testing.T) {
	f := newSchedulerFixture(t, 4)
	env := f.env

	secondRef := bracket.Staff{
		ID:    uuid.New(),
		Name:  "ref two",
		Roles: bracket.RoleList{bracket.RoleReferee},
	}
	require.NoError(t, env.brackets.CreateStaff(env.ctx, f.teams[0].TournamentID, []bracket.Staff{secondRef}))

	refWindow := window(day(t, env, 8), day(t, env, 18))
	require.NoError(t, env.scheduler.SubmitRefereeAvailability(env.ctx, f.referee.ID, nil, refWindow, nil))
	require.NoError(t, env.scheduler.SubmitRefereeAvailability(env.ctx, secondRef.ID, nil, refWindow, nil))

	slots := window(day(t, env, 10), day(t, env, 14))
	for _, team := range f.teams {
		f.submitTeam(t, team.ID, slots, false)
	}

	bracketID := f.round.BracketID
	scheduled, unresolvedCount, err := env.scheduler.ScheduleBracket(env.ctx, bracketID)
	require.NoError(t, err)
	assert.Equal(t, 2, scheduled, "both opening matches")
	assert.Equal(t, 0, unresolvedCount)

	matches, err := env.store.GetMatchesByBracket(context.Background(), bracketID)
	require.NoError(t, err)
	assigned := map[uuid.UUID]int{}
	for _, m := range matches {
		if m.RefereeID != nil {
			assigned[*m.RefereeID]++
		}
	}
	assert.Equal(t, 1, assigned[f.referee.ID])
	assert.Equal(t, 1, assigned[secondRef.ID])
}

func TestRefereeNotDoubleBookedOnOverlap(t *testing.T) {
	f := newSchedulerFixture(t, 4)
	env := f.env

	// One uncapped referee, two opening matches sharing one window.
	require.NoError(t, env.scheduler.SubmitRefereeAvailability(
		env.ctx, f.referee.ID, nil, window(day(t, env, 8), day(t, env, 18)), nil))

	slots := window(day(t, env, 10), day(t, env, 14))
	for _, team := range f.teams {
		f.submitTeam(t, team.ID, slots, false)
	}

	bracketID := f.round.BracketID
	scheduled, unresolvedCount, err := env.scheduler.ScheduleBracket(env.ctx, bracketID)
	require.NoError(t, err)
	assert.Equal(t, 2, scheduled)
	assert.Equal(t, 0, unresolvedCount)

	matches, err := env.store.GetMatchesByBracket(context.Background(), bracketID)
	require.NoError(t, err)
	withReferee := 0
	for _, m := range matches {
		if m.ScheduledAt == nil {
			continue
		}
		assert.Equal(t, day(t, env, 10), m.ScheduledAt.UTC())
		if m.RefereeID != nil {
			assert.Equal(t, f.referee.ID, *m.RefereeID)
			withReferee++
		}
	}
	assert.Equal(t, 1, withReferee, "both lobbies run at once, one referee cannot take both")

	// The uncovered match lands in the operator queue.
	issues, err := env.store.GetOpenSchedulingIssues(context.Background())
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "no referee available", issues[0].Reason)
}

func TestSchedulableGate(t *testing.T) {
	env := newTestEnv(t)
	tournamentID, _ := seedTeams(t, env, 4)
	b := makeBracket(t, env, CreateBracketInput{
		TournamentID:  tournamentID,
		Name:          "main",
		Type:          bracket.SingleElimination,
		DefaultBestOf: 5,
	})

	// The final has unresolved slots and cannot be scheduled.
	final := matchAt(t, env, b.ID, 1, 1)
	_, err := env.scheduler.ScheduleMatch(env.ctx, final.ID)
	var integrity *bracket.IntegrityError
	require.ErrorAs(t, err, &integrity)
}
