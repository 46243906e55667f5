package service

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/osuops/tourney/internal/bracket"
)

// swissRoundOne creates every round record up front but materializes
// matches for round 1 only; later rounds are paired lazily once all
// matches of the previous round complete.
func (g *topologyGen) swissRoundOne(roundCount int) error {
	n := len(g.seeds)
	if roundCount == 0 {
		roundCount = ceilLog2(n)
	}
	for r := 1; r <= roundCount; r++ {
		g.addRound(fmt.Sprintf("Swiss Round %d", r))
	}

	round := &g.rounds[0]
	half := n / 2
	for i := 0; i < half; i++ {
		m := g.addMatch(round, bracket.WinnersSide, i+1)
		m.Slot1 = bracket.DirectSlot(g.seeds[i])
		m.Slot2 = bracket.DirectSlot(g.seeds[i+half])
	}
	if n%2 == 1 {
		m := g.addMatch(round, bracket.WinnersSide, half+1)
		m.Slot1 = bracket.DirectSlot(g.seeds[n-1])
		m.Slot2 = bracket.EmptySlot()
	}

	g.assignOrders()
	return nil
}

// SwissStanding is one team's record going into a pairing decision.
type SwissStanding struct {
	TeamID uuid.UUID
	Seed   int
	Wins   int
	Losses int
}

// SwissPairKey identifies an unordered pair of opponents. A bye is
// recorded with B set to uuid.Nil.
type SwissPairKey struct {
	A, B uuid.UUID
}

func NewSwissPairKey(a, b uuid.UUID) SwissPairKey {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return SwissPairKey{A: a, B: b}
}

// SwissPairer decides the pairings for the next swiss round. The bye
// team is non-nil when the field is odd.
type SwissPairer interface {
	PairRound(standings []SwissStanding, played map[SwissPairKey]bool) (pairs [][2]uuid.UUID, bye *uuid.UUID, err error)
}

// DefaultSwissPairer pairs within record groups, avoiding rematches by
// backtracking and breaking ties by seed proximity. When no
// rematch-free pairing exists it falls back to pairing in standings
// order.
type DefaultSwissPairer struct{}

func (DefaultSwissPairer) PairRound(standings []SwissStanding, played map[SwissPairKey]bool) ([][2]uuid.UUID, *uuid.UUID, error) {
	if len(standings) < 2 {
		return nil, nil, fmt.Errorf("cannot pair %d teams", len(standings))
	}

	sorted := make([]SwissStanding, len(standings))
	copy(sorted, standings)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Wins != sorted[j].Wins {
			return sorted[i].Wins > sorted[j].Wins
		}
		return sorted[i].Seed < sorted[j].Seed
	})

	var bye *uuid.UUID
	if len(sorted)%2 == 1 {
		// Bye goes to the lowest-standing team that has not had one.
		idx := len(sorted) - 1
		for i := len(sorted) - 1; i >= 0; i-- {
			if !played[NewSwissPairKey(sorted[i].TeamID, uuid.Nil)] {
				idx = i
				break
			}
		}
		id := sorted[idx].TeamID
		bye = &id
		sorted = append(sorted[:idx], sorted[idx+1:]...)
	}

	ids := make([]uuid.UUID, len(sorted))
	for i, s := range sorted {
		ids[i] = s.TeamID
	}

	pairs, ok := pairAvoidingRematches(ids, played)
	if !ok {
		pairs = pairs[:0]
		for i := 0; i < len(ids); i += 2 {
			pairs = append(pairs, [2]uuid.UUID{ids[i], ids[i+1]})
		}
	}
	return pairs, bye, nil
}

func pairAvoidingRematches(ids []uuid.UUID, played map[SwissPairKey]bool) ([][2]uuid.UUID, bool) {
	if len(ids) == 0 {
		return nil, true
	}
	first := ids[0]
	for i := 1; i < len(ids); i++ {
		if played[NewSwissPairKey(first, ids[i])] {
			continue
		}
		rest := make([]uuid.UUID, 0, len(ids)-2)
		rest = append(rest, ids[1:i]...)
		rest = append(rest, ids[i+1:]...)
		if tail, ok := pairAvoidingRematches(rest, played); ok {
			return append([][2]uuid.UUID{{first, ids[i]}}, tail...), true
		}
	}
	return nil, false
}

// swissStandings derives each team's record and the set of pairs that
// have already met from the completed matches of a swiss bracket.
func swissStandings(teams []bracket.Team, matches []bracket.Match) ([]SwissStanding, map[SwissPairKey]bool) {
	standings := make([]SwissStanding, len(teams))
	byTeam := make(map[uuid.UUID]*SwissStanding, len(teams))
	for i, t := range teams {
		standings[i] = SwissStanding{TeamID: t.ID, Seed: t.Seed}
		byTeam[t.ID] = &standings[i]
	}

	played := make(map[SwissPairKey]bool)
	for _, m := range matches {
		t1, hasT1 := m.Slot1.TeamID()
		t2, hasT2 := m.Slot2.TeamID()
		if m.IsBye && hasT1 {
			played[NewSwissPairKey(t1, uuid.Nil)] = true
		}
		if hasT1 && hasT2 {
			played[NewSwissPairKey(t1, t2)] = true
		}
		if m.Status != bracket.MatchCompleted || m.WinnerID == nil {
			continue
		}
		if w, ok := byTeam[*m.WinnerID]; ok {
			w.Wins++
		}
		if loser, ok := m.LoserID(); ok {
			if l, ok := byTeam[loser]; ok {
				l.Losses++
			}
		}
	}
	return standings, played
}

// buildSwissRound turns a pairing decision into persisted-ready match
// rows for the given round. Byes surface in the returned ByeWin list
// and are completed by the caller through the resolver.
func buildSwissRound(b *bracket.Bracket, round *bracket.Round, pairs [][2]uuid.UUID, bye *uuid.UUID) ([]bracket.Match, []ByeWin) {
	now := time.Now().UTC()
	matches := make([]bracket.Match, 0, len(pairs)+1)
	var byeWins []ByeWin
	for i, p := range pairs {
		matches = append(matches, bracket.Match{
			ID:          uuid.New(),
			BracketID:   b.ID,
			RoundID:     &round.ID,
			RoundNumber: round.Order,
			MatchNumber: i + 1,
			BracketSide: bracket.WinnersSide,
			Slot1:       bracket.DirectSlot(p[0]),
			Slot2:       bracket.DirectSlot(p[1]),
			Status:      bracket.MatchPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if bye != nil {
		m := bracket.Match{
			ID:          uuid.New(),
			BracketID:   b.ID,
			RoundID:     &round.ID,
			RoundNumber: round.Order,
			MatchNumber: len(pairs) + 1,
			BracketSide: bracket.WinnersSide,
			Slot1:       bracket.DirectSlot(*bye),
			Slot2:       bracket.EmptySlot(),
			Status:      bracket.MatchInProgress,
			IsBye:       true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		matches = append(matches, m)
		byeWins = append(byeWins, ByeWin{MatchID: m.ID, TeamID: *bye})
	}
	return matches, byeWins
}
