package service

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/osuops/tourney/internal/bracket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBracket(bt bracket.BracketType, reset bool) *bracket.Bracket {
	return &bracket.Bracket{
		ID:               uuid.New(),
		TournamentID:     uuid.New(),
		Name:             "test",
		Type:             bt,
		IsActive:         true,
		GrandFinalsReset: reset,
	}
}

func testSeeds(n int) []uuid.UUID {
	seeds := make([]uuid.UUID, n)
	for i := range seeds {
		seeds[i] = uuid.New()
	}
	return seeds
}

func TestGenerateRound1SeedOrder(t *testing.T) {
	testCases := []struct {
		name        string
		bracketSize int
		expected    [][2]int
	}{
		{
			name:        "bracket of 4",
			bracketSize: 4,
			expected:    [][2]int{{0, 3}, {1, 2}},
		},
		{
			name:        "bracket of 8",
			bracketSize: 8,
			expected:    [][2]int{{0, 7}, {3, 4}, {1, 6}, {2, 5}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, generateRound1Pairs(tc.bracketSize))
		})
	}
}

func TestSingleElimTopology(t *testing.T) {
	seeds := testSeeds(8)
	topo, err := BuildTopology(BuildParams{
		Bracket:       testBracket(bracket.SingleElimination, false),
		Seeds:         seeds,
		DefaultBestOf: 7,
	})
	require.NoError(t, err)

	assert.Len(t, topo.Rounds, 3)
	assert.Len(t, topo.Matches, 7)
	assert.Empty(t, topo.ByeWins)

	// Lower order = further along; the final is order 1.
	assert.Equal(t, 3, topo.Rounds[0].Order)
	assert.Equal(t, "Quarterfinals", topo.Rounds[0].Name)
	assert.Equal(t, "Final", topo.Rounds[2].Name)

	terminals := 0
	for _, m := range topo.Matches {
		if m.WinnerToMatchID == nil {
			terminals++
			assert.Equal(t, 1, m.RoundNumber)
		}
		assert.Nil(t, m.LoserToMatchID)
	}
	assert.Equal(t, 1, terminals)

	// Top seed opens against the bottom seed.
	first := topo.Matches[0]
	t1, _ := first.Slot1.TeamID()
	t2, _ := first.Slot2.TeamID()
	assert.Equal(t, seeds[0], t1)
	assert.Equal(t, seeds[7], t2)
}

func TestSingleElimPadsWithByes(t *testing.T) {
	seeds := testSeeds(6)
	topo, err := BuildTopology(BuildParams{
		Bracket:       testBracket(bracket.SingleElimination, false),
		Seeds:         seeds,
		DefaultBestOf: 7,
	})
	require.NoError(t, err)

	byes := 0
	for _, m := range topo.Matches {
		if m.IsBye {
			byes++
			assert.Equal(t, bracket.MatchInProgress, m.Status)
		}
	}
	assert.Equal(t, 2, byes)
	assert.Len(t, topo.ByeWins, 2)

	// The two top seeds get the byes.
	byeTeams := map[uuid.UUID]bool{}
	for _, bw := range topo.ByeWins {
		byeTeams[bw.TeamID] = true
	}
	assert.True(t, byeTeams[seeds[0]])
	assert.True(t, byeTeams[seeds[1]])
}

func TestDoubleElimTopology(t *testing.T) {
	topo, err := BuildTopology(BuildParams{
		Bracket:       testBracket(bracket.DoubleElimination, true),
		Seeds:         testSeeds(8),
		DefaultBestOf: 7,
	})
	require.NoError(t, err)

	// 7 winners + 6 losers + grand final + reset.
	assert.Len(t, topo.Matches, 15)
	// W1, L1, W2, L2, L3, W3, L4, GF.
	assert.Len(t, topo.Rounds, 8)

	var bySide = map[bracket.BracketSide]int{}
	terminals := 0
	for _, m := range topo.Matches {
		bySide[m.BracketSide]++
		if m.WinnerToMatchID == nil {
			terminals++
		}
	}
	assert.Equal(t, 7, bySide[bracket.WinnersSide])
	assert.Equal(t, 6, bySide[bracket.LosersSide])
	assert.Equal(t, 2, bySide[bracket.GrandFinalsSide])
	assert.Equal(t, 1, terminals)

	// Every winners-side match except the final feeds the losers
	// bracket.
	for _, m := range topo.Matches {
		if m.BracketSide == bracket.WinnersSide {
			assert.NotNil(t, m.LoserToMatchID)
		}
	}
}

func TestDoubleElimWithoutReset(t *testing.T) {
	topo, err := BuildTopology(BuildParams{
		Bracket:       testBracket(bracket.DoubleElimination, false),
		Seeds:         testSeeds(4),
		DefaultBestOf: 7,
	})
	require.NoError(t, err)

	// 3 winners + 2 losers + grand final.
	assert.Len(t, topo.Matches, 6)
	for _, m := range topo.Matches {
		if m.BracketSide == bracket.GrandFinalsSide {
			assert.Nil(t, m.WinnerToMatchID)
		}
	}
}

func TestRoundRobinTopology(t *testing.T) {
	topo, err := BuildTopology(BuildParams{
		Bracket:       testBracket(bracket.RoundRobin, false),
		Seeds:         testSeeds(5),
		DefaultBestOf: 5,
	})
	require.NoError(t, err)

	assert.Len(t, topo.Rounds, 1)
	assert.Len(t, topo.Matches, 10) // C(5,2)
	for _, m := range topo.Matches {
		assert.True(t, m.Slot1.IsResolved())
		assert.True(t, m.Slot2.IsResolved())
		assert.Nil(t, m.WinnerToMatchID)
		assert.Nil(t, m.LoserToMatchID)
	}
}

func TestSwissTopologyMaterializesRoundOneOnly(t *testing.T) {
	seeds := testSeeds(8)
	topo, err := BuildTopology(BuildParams{
		Bracket:       testBracket(bracket.Swiss, false),
		Seeds:         seeds,
		DefaultBestOf: 5,
		SwissRounds:   3,
	})
	require.NoError(t, err)

	assert.Len(t, topo.Rounds, 3)
	assert.Len(t, topo.Matches, 4)
	for _, m := range topo.Matches {
		assert.Equal(t, 3, m.RoundNumber, "all matches belong to the first round")
	}

	// Top half plays bottom half: 1v5, 2v6, 3v7, 4v8.
	for i, m := range topo.Matches {
		t1, _ := m.Slot1.TeamID()
		t2, _ := m.Slot2.TeamID()
		assert.Equal(t, seeds[i], t1)
		assert.Equal(t, seeds[i+4], t2)
	}
}

func TestSwissOddFieldGetsBye(t *testing.T) {
	seeds := testSeeds(5)
	topo, err := BuildTopology(BuildParams{
		Bracket:       testBracket(bracket.Swiss, false),
		Seeds:         seeds,
		DefaultBestOf: 5,
		SwissRounds:   3,
	})
	require.NoError(t, err)

	require.Len(t, topo.ByeWins, 1)
	assert.Equal(t, seeds[4], topo.ByeWins[0].TeamID, "lowest seed sits out round one")
}

func TestBuildTopologyRejectsBadInput(t *testing.T) {
	_, err := BuildTopology(BuildParams{
		Bracket: testBracket(bracket.SingleElimination, false),
		Seeds:   testSeeds(1),
	})
	assert.Error(t, err)

	_, err = BuildTopology(BuildParams{
		Bracket:       testBracket(bracket.SingleElimination, false),
		Seeds:         testSeeds(4),
		DefaultBestOf: 4,
	})
	assert.Error(t, err, "even best-of")
}

func TestTopologyWiringIsConsistent(t *testing.T) {
	for _, n := range []int{2, 3, 4, 6, 8, 16} {
		t.Run(fmt.Sprintf("%d teams", n), func(t *testing.T) {
			for _, bt := range []bracket.BracketType{bracket.SingleElimination, bracket.DoubleElimination} {
				topo, err := BuildTopology(BuildParams{
					Bracket:       testBracket(bt, true),
					Seeds:         testSeeds(n),
					DefaultBestOf: 7,
				})
				require.NoError(t, err, "%s with %d teams", bt, n)

				byID := map[uuid.UUID]bracket.Match{}
				for _, m := range topo.Matches {
					byID[m.ID] = m
				}
				for _, m := range topo.Matches {
					for _, sl := range []bracket.Slot{m.Slot1, m.Slot2} {
						if from, _, ok := sl.Source(); ok {
							_, exists := byID[from]
							assert.True(t, exists, "dangling deferred slot")
						}
					}
				}
			}
		})
	}
}
