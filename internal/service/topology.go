package service

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/osuops/tourney/internal/bracket"
)

// RoundSpec overrides the defaults for one stage, applied in play
// order (earliest stage first).
type RoundSpec struct {
	Name      string
	BestOf    int
	MappoolID *uuid.UUID
	WeekStart *time.Time
}

type BuildParams struct {
	Bracket       *bracket.Bracket
	Seeds         []uuid.UUID // team ids in seed order, strongest first
	DefaultBestOf int         // odd; 7 when zero
	Rounds        []RoundSpec
	SwissRounds   int // SWISS only; ceil(log2(n)) when zero
}

// ByeWin is a bye match that must be auto-completed through the
// dependency resolver as soon as the topology is persisted.
type ByeWin struct {
	MatchID uuid.UUID
	TeamID  uuid.UUID
}

// Topology is a fully wired set of rounds and match skeletons. Matches
// appear in creation order; forward edges may point at matches later in
// the slice.
type Topology struct {
	Rounds  []bracket.Round
	Matches []bracket.Match
	ByeWins []ByeWin
}

// BuildTopology generates the match skeleton and dependency wiring for
// a bracket. The builder is pure: it touches no storage and owns no
// state. Non-power-of-two fields are padded with byes, never rejected.
func BuildTopology(params BuildParams) (*Topology, error) {
	n := len(params.Seeds)
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 teams, got %d", n)
	}
	bestOf := params.DefaultBestOf
	if bestOf == 0 {
		bestOf = 7
	}
	if bestOf%2 == 0 {
		return nil, fmt.Errorf("best-of must be odd, got %d", bestOf)
	}

	gen := &topologyGen{
		bracket:       params.Bracket,
		seeds:         params.Seeds,
		specs:         params.Rounds,
		defaultBestOf: bestOf,
		now:           time.Now().UTC(),
	}

	var err error
	switch params.Bracket.Type {
	case bracket.SingleElimination:
		err = gen.singleElim()
	case bracket.DoubleElimination:
		err = gen.doubleElim()
	case bracket.RoundRobin:
		err = gen.roundRobin()
	case bracket.Swiss:
		err = gen.swissRoundOne(params.SwissRounds)
	default:
		err = fmt.Errorf("unknown bracket type %q", params.Bracket.Type)
	}
	if err != nil {
		return nil, err
	}

	gen.normalizeByes()

	if err := gen.validate(); err != nil {
		return nil, err
	}

	return gen.topology(), nil
}

type topologyGen struct {
	bracket       *bracket.Bracket
	seeds         []uuid.UUID
	specs         []RoundSpec
	defaultBestOf int
	now           time.Time

	rounds  []bracket.Round
	matches []*bracket.Match
	dead    map[uuid.UUID]bool
	byeWins []ByeWin

	// losersFinal is set while building a double elimination bracket
	// with more than one winners round.
	losersFinal *bracket.Match
}

// addRound appends the next stage in play order; orders are assigned
// descending once the full list is known.
func (g *topologyGen) addRound(name string) *bracket.Round {
	spec := RoundSpec{}
	if i := len(g.rounds); i < len(g.specs) {
		spec = g.specs[i]
	}
	if spec.Name == "" {
		spec.Name = name
	}
	if spec.BestOf == 0 {
		spec.BestOf = g.defaultBestOf
	}
	g.rounds = append(g.rounds, bracket.Round{
		ID:        uuid.New(),
		BracketID: g.bracket.ID,
		MappoolID: spec.MappoolID,
		Name:      spec.Name,
		BestOf:    spec.BestOf,
		WeekStart: spec.WeekStart,
		CreatedAt: g.now,
		UpdatedAt: g.now,
	})
	return &g.rounds[len(g.rounds)-1]
}

func (g *topologyGen) addMatch(round *bracket.Round, side bracket.BracketSide, matchNumber int) *bracket.Match {
	m := &bracket.Match{
		ID:          uuid.New(),
		BracketID:   g.bracket.ID,
		RoundID:     &round.ID,
		MatchNumber: matchNumber,
		BracketSide: side,
		Slot1:       bracket.EmptySlot(),
		Slot2:       bracket.EmptySlot(),
		Status:      bracket.MatchPending,
		CreatedAt:   g.now,
		UpdatedAt:   g.now,
	}
	g.matches = append(g.matches, m)
	return m
}

// assignOrders numbers rounds descending so that lower order = further
// along the progression (the final is order 1), and stamps each match
// with its round's order.
func (g *topologyGen) assignOrders() {
	total := len(g.rounds)
	byID := make(map[uuid.UUID]int, total)
	for i := range g.rounds {
		g.rounds[i].Order = total - i
		byID[g.rounds[i].ID] = g.rounds[i].Order
	}
	for _, m := range g.matches {
		if m.RoundID != nil {
			m.RoundNumber = byID[*m.RoundID]
		}
	}
}

func ceilLog2(n int) int {
	return int(math.Ceil(math.Log2(float64(n))))
}

func elimRoundName(teamsLeft int) string {
	switch teamsLeft {
	case 2:
		return "Final"
	case 4:
		return "Semifinals"
	case 8:
		return "Quarterfinals"
	default:
		return fmt.Sprintf("Round of %d", teamsLeft)
	}
}

// generateRound1Pairs lays out seed indices so that top seeds meet as
// late as possible: {0,7},{3,4},{1,6},{2,5} for a bracket of 8.
func generateRound1Pairs(bracketSize int) [][2]int {
	if bracketSize == 0 {
		return [][2]int{}
	}

	seeds := []int{0}
	for len(seeds) < bracketSize {
		var next []int
		currentCount := len(seeds) * 2
		for _, seed := range seeds {
			next = append(next, seed)
			next = append(next, (currentCount-1)-seed)
		}
		seeds = next
	}

	pairs := make([][2]int, 0, bracketSize/2)
	for i := 0; i < len(seeds); i += 2 {
		pairs = append(pairs, [2]int{seeds[i], seeds[i+1]})
	}
	return pairs
}

// seedSlot returns a direct slot for a real seed index or an empty
// (bye) slot for a padding index.
func (g *topologyGen) seedSlot(idx int) bracket.Slot {
	if idx < len(g.seeds) {
		return bracket.DirectSlot(g.seeds[idx])
	}
	return bracket.EmptySlot()
}

// buildWinnersRounds creates the winners-side elimination tree and
// returns the matches grouped per stage, earliest first.
func (g *topologyGen) buildWinnersRounds(side bracket.BracketSide, nameFor func(teamsLeft int) string) [][]*bracket.Match {
	n := len(g.seeds)
	k := ceilLog2(n)
	bracketSize := 1 << k

	pairs := generateRound1Pairs(bracketSize)
	stages := make([][]*bracket.Match, k)
	for r := 1; r <= k; r++ {
		teamsLeft := bracketSize >> (r - 1)
		round := g.addRound(nameFor(teamsLeft))
		count := bracketSize >> r
		stage := make([]*bracket.Match, count)
		for i := 0; i < count; i++ {
			m := g.addMatch(round, side, i+1)
			if r == 1 {
				m.Slot1 = g.seedSlot(pairs[i][0])
				m.Slot2 = g.seedSlot(pairs[i][1])
			} else {
				left := stages[r-2][2*i]
				right := stages[r-2][2*i+1]
				m.Slot1 = bracket.DeferredSlot(left.ID, true)
				m.Slot2 = bracket.DeferredSlot(right.ID, true)
				left.WinnerToMatchID = &m.ID
				right.WinnerToMatchID = &m.ID
			}
			stage[i] = m
		}
		stages[r-1] = stage
	}
	return stages
}

func (g *topologyGen) singleElim() error {
	g.buildWinnersRounds(bracket.WinnersSide, elimRoundName)
	g.assignOrders()
	return nil
}

func (g *topologyGen) doubleElim() error {
	n := len(g.seeds)
	k := ceilLog2(n)

	winnersName := func(teamsLeft int) string {
		if teamsLeft == 2 {
			return "Winners Final"
		}
		if teamsLeft == 4 {
			return "Winners Semifinals"
		}
		return elimRoundName(teamsLeft)
	}

	// The losers bracket and grand finals interleave with the winners
	// rounds in play order: W1, then for each winners stage j+1 the
	// minor round L(2j-1) and major round L(2j) around it, then GF.
	winners := g.buildWinnersRoundsInterleaved(winnersName, k)

	winnersFinal := winners[k-1][0]

	gfRound := g.addRound("Grand Finals")
	gf := g.addMatch(gfRound, bracket.GrandFinalsSide, 1)
	gf.Slot1 = bracket.DeferredSlot(winnersFinal.ID, true)
	winnersFinal.WinnerToMatchID = &gf.ID

	if k == 1 {
		// Two teams: the "losers champion" is just the loser of the
		// only winners match.
		gf.Slot2 = bracket.DeferredSlot(winnersFinal.ID, false)
		winnersFinal.LoserToMatchID = &gf.ID
	} else {
		losersFinal := g.losersFinal
		gf.Slot2 = bracket.DeferredSlot(losersFinal.ID, true)
		losersFinal.WinnerToMatchID = &gf.ID
	}

	if g.bracket.GrandFinalsReset {
		reset := g.addMatch(gfRound, bracket.GrandFinalsSide, 2)
		reset.Slot1 = bracket.DeferredSlot(gf.ID, true)
		reset.Slot2 = bracket.DeferredSlot(gf.ID, false)
		gf.WinnerToMatchID = &reset.ID
		gf.LoserToMatchID = &reset.ID
	}

	g.assignOrders()
	return nil
}

func (g *topologyGen) buildWinnersRoundsInterleaved(nameFor func(int) string, k int) [][]*bracket.Match {
	bracketSize := 1 << k

	winners := make([][]*bracket.Match, k)

	// Winners round 1.
	w1Round := g.addRound(nameFor(bracketSize))
	w1 := make([]*bracket.Match, bracketSize/2)
	pairs := generateRound1Pairs(bracketSize)
	for i := range w1 {
		m := g.addMatch(w1Round, bracket.WinnersSide, i+1)
		m.Slot1 = g.seedSlot(pairs[i][0])
		m.Slot2 = g.seedSlot(pairs[i][1])
		w1[i] = m
	}
	winners[0] = w1

	var prevMajor []*bracket.Match // previous losers major round

	losersRound := 0
	for j := 1; j <= k-1; j++ {
		count := 1 << (k - 1 - j) // matches in each losers round of this block

		// Minor round: pairs losers round survivors (or W1 losers).
		losersRound++
		minorRoundRec := g.addRound(fmt.Sprintf("Losers Round %d", losersRound))
		minor := make([]*bracket.Match, count)
		for i := 0; i < count; i++ {
			m := g.addMatch(minorRoundRec, bracket.LosersSide, i+1)
			if j == 1 {
				left := w1[2*i]
				right := w1[2*i+1]
				m.Slot1 = bracket.DeferredSlot(left.ID, false)
				m.Slot2 = bracket.DeferredSlot(right.ID, false)
				left.LoserToMatchID = &m.ID
				right.LoserToMatchID = &m.ID
			} else {
				left := prevMajor[2*i]
				right := prevMajor[2*i+1]
				m.Slot1 = bracket.DeferredSlot(left.ID, true)
				m.Slot2 = bracket.DeferredSlot(right.ID, true)
				left.WinnerToMatchID = &m.ID
				right.WinnerToMatchID = &m.ID
			}
			minor[i] = m
		}

		// Winners stage j+1.
		wRound := g.addRound(nameFor(bracketSize >> j))
		stage := make([]*bracket.Match, count)
		for i := 0; i < count; i++ {
			m := g.addMatch(wRound, bracket.WinnersSide, i+1)
			left := winners[j-1][2*i]
			right := winners[j-1][2*i+1]
			m.Slot1 = bracket.DeferredSlot(left.ID, true)
			m.Slot2 = bracket.DeferredSlot(right.ID, true)
			left.WinnerToMatchID = &m.ID
			right.WinnerToMatchID = &m.ID
			stage[i] = m
		}
		winners[j] = stage

		// Major round: winners-stage drop-downs meet minor survivors.
		// Drop order alternates per round to delay rematches.
		losersRound++
		majorRoundRec := g.addRound(fmt.Sprintf("Losers Round %d", losersRound))
		major := make([]*bracket.Match, count)
		for i := 0; i < count; i++ {
			m := g.addMatch(majorRoundRec, bracket.LosersSide, i+1)
			drop := i
			if j%2 == 1 {
				drop = count - 1 - i
			}
			dropped := stage[drop]
			m.Slot1 = bracket.DeferredSlot(dropped.ID, false)
			m.Slot2 = bracket.DeferredSlot(minor[i].ID, true)
			dropped.LoserToMatchID = &m.ID
			minor[i].WinnerToMatchID = &m.ID
			major[i] = m
		}
		prevMajor = major
	}

	if len(prevMajor) == 1 {
		g.losersFinal = prevMajor[0]
	}
	return winners
}

func (g *topologyGen) roundRobin() error {
	round := g.addRound("Round Robin")
	num := 1
	for i := 0; i < len(g.seeds); i++ {
		for j := i + 1; j < len(g.seeds); j++ {
			m := g.addMatch(round, bracket.WinnersSide, num)
			m.Slot1 = bracket.DirectSlot(g.seeds[i])
			m.Slot2 = bracket.DirectSlot(g.seeds[j])
			num++
		}
	}
	g.assignOrders()
	return nil
}

// normalizeByes propagates padding through the wiring so every
// remaining match can eventually field two teams:
//   - a bye match produces no loser, so slots waiting on its loser
//     become empty themselves;
//   - a match with two empty slots can never happen and is pruned, its
//     dependents inheriting the emptiness;
//   - a bye whose real slot is already direct is queued for immediate
//     auto-completion through the resolver.
func (g *topologyGen) normalizeByes() {
	g.dead = make(map[uuid.UUID]bool)
	byID := make(map[uuid.UUID]*bracket.Match, len(g.matches))
	for _, m := range g.matches {
		byID[m.ID] = m
	}

	emptyLoserSlots := func(src *bracket.Match) bool {
		if src.LoserToMatchID == nil {
			return false
		}
		target, ok := byID[*src.LoserToMatchID]
		if !ok || g.dead[target.ID] {
			src.LoserToMatchID = nil
			return false
		}
		changed := false
		for _, sl := range []*bracket.Slot{&target.Slot1, &target.Slot2} {
			if from, takesWinner, ok := sl.Source(); ok && from == src.ID && !takesWinner {
				*sl = bracket.EmptySlot()
				changed = true
			}
		}
		src.LoserToMatchID = nil
		return changed
	}

	for changed := true; changed; {
		changed = false
		for _, m := range g.matches {
			if g.dead[m.ID] {
				continue
			}
			e1, e2 := m.Slot1.IsEmpty(), m.Slot2.IsEmpty()
			switch {
			case e1 && e2:
				// Unreachable match: dependents inherit the emptiness.
				g.dead[m.ID] = true
				for _, other := range g.matches {
					if g.dead[other.ID] {
						continue
					}
					for _, sl := range []*bracket.Slot{&other.Slot1, &other.Slot2} {
						if from, _, ok := sl.Source(); ok && from == m.ID {
							*sl = bracket.EmptySlot()
						}
					}
				}
				m.WinnerToMatchID = nil
				m.LoserToMatchID = nil
				changed = true
			case e1 || e2:
				// Bye: no loser will ever come out of this match.
				if !m.IsBye {
					m.IsBye = true
					changed = true
				}
				if emptyLoserSlots(m) {
					changed = true
				}
			}
		}
	}

	alive := g.matches[:0]
	for _, m := range g.matches {
		if !g.dead[m.ID] {
			alive = append(alive, m)
		}
	}
	g.matches = alive

	// Byes with their real team already known complete right after the
	// topology is persisted, through the same resolver path as every
	// other completion.
	for _, m := range g.matches {
		if !m.IsBye {
			continue
		}
		if team, ok := m.Slot1.TeamID(); ok {
			m.Status = bracket.MatchInProgress
			g.byeWins = append(g.byeWins, ByeWin{MatchID: m.ID, TeamID: team})
		} else if team, ok := m.Slot2.TeamID(); ok {
			m.Status = bracket.MatchInProgress
			g.byeWins = append(g.byeWins, ByeWin{MatchID: m.ID, TeamID: team})
		}
	}
}

// validate enforces the graph invariants at build time: edges and
// deferred slots reference each other consistently, the graph is
// acyclic, and elimination brackets have exactly one terminal match.
// Runtime completion trusts this and never re-checks for cycles.
func (g *topologyGen) validate() error {
	byID := make(map[uuid.UUID]*bracket.Match, len(g.matches))
	for _, m := range g.matches {
		byID[m.ID] = m
	}

	hasBackRef := func(target *bracket.Match, srcID uuid.UUID, takesWinner bool) bool {
		for _, sl := range []bracket.Slot{target.Slot1, target.Slot2} {
			if from, tw, ok := sl.Source(); ok && from == srcID && tw == takesWinner {
				return true
			}
		}
		return false
	}

	for _, m := range g.matches {
		for _, sl := range []bracket.Slot{m.Slot1, m.Slot2} {
			if from, _, ok := sl.Source(); ok {
				if _, exists := byID[from]; !exists {
					return fmt.Errorf("match %s: deferred slot references unknown match %s", m.ID, from)
				}
			}
		}
		if m.WinnerToMatchID != nil {
			target, ok := byID[*m.WinnerToMatchID]
			if !ok {
				return fmt.Errorf("match %s: winner edge to unknown match %s", m.ID, *m.WinnerToMatchID)
			}
			if !hasBackRef(target, m.ID, true) {
				return fmt.Errorf("match %s: winner edge target %s has no matching slot", m.ID, target.ID)
			}
		}
		if m.LoserToMatchID != nil {
			target, ok := byID[*m.LoserToMatchID]
			if !ok {
				return fmt.Errorf("match %s: loser edge to unknown match %s", m.ID, *m.LoserToMatchID)
			}
			if !hasBackRef(target, m.ID, false) {
				return fmt.Errorf("match %s: loser edge target %s has no matching slot", m.ID, target.ID)
			}
		}
	}

	// Cycle check via iterative DFS over forward edges.
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[uuid.UUID]int, len(g.matches))
	var visit func(id uuid.UUID) error
	visit = func(id uuid.UUID) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("match graph contains a cycle through %s", id)
		case done:
			return nil
		}
		state[id] = visiting
		m := byID[id]
		for _, next := range []*uuid.UUID{m.WinnerToMatchID, m.LoserToMatchID} {
			if next == nil {
				continue
			}
			if err := visit(*next); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for _, m := range g.matches {
		if err := visit(m.ID); err != nil {
			return err
		}
	}

	if g.bracket.Type == bracket.SingleElimination || g.bracket.Type == bracket.DoubleElimination {
		terminals := 0
		for _, m := range g.matches {
			if m.WinnerToMatchID == nil {
				terminals++
			}
		}
		if terminals != 1 {
			return fmt.Errorf("expected exactly 1 terminal match, found %d", terminals)
		}
	}

	return nil
}

func (g *topologyGen) topology() *Topology {
	matches := make([]bracket.Match, len(g.matches))
	for i, m := range g.matches {
		matches[i] = *m
	}
	return &Topology{
		Rounds:  g.rounds,
		Matches: matches,
		ByeWins: g.byeWins,
	}
}
