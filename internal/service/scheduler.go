package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/osuops/tourney/internal/bracket"
	"github.com/osuops/tourney/internal/identity"
	"github.com/osuops/tourney/internal/notify"
	"github.com/osuops/tourney/internal/store"
	"github.com/rs/zerolog"
)

type SchedulerConfig struct {
	// MatchDuration is the block of time a match reserves.
	MatchDuration time.Duration

	// TeamQuorum is the fraction of a roster that must be free for the
	// team to count as available. Zero means the full roster.
	TeamQuorum float64

	// TreatMissingAsFree counts players without an availability record
	// as free at all times instead of never.
	TreatMissingAsFree bool
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{MatchDuration: time.Hour}
}

// SchedulerService finds a common window for a match's two rosters and
// assigns a referee to it. Matches it cannot place land in the operator
// issue queue; nothing is retried automatically.
type SchedulerService struct {
	db       *sqlx.DB
	store    *store.BracketStore
	notifier notify.Notifier
	clock    clockwork.Clock
	logger   zerolog.Logger

	Config SchedulerConfig
}

func NewSchedulerService(db *sqlx.DB, st *store.BracketStore, notifier notify.Notifier, clock clockwork.Clock, logger zerolog.Logger) *SchedulerService {
	return &SchedulerService{
		db:       db,
		store:    st,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
		Config:   DefaultSchedulerConfig(),
	}
}

// SubmitPlayerAvailability records a player's free windows for a round,
// replacing any previous submission. Players submit for themselves;
// operators for anyone.
func (s *SchedulerService) SubmitPlayerAvailability(ctx context.Context, roundID, playerID uuid.UUID, slots []bracket.TimeSlot) error {
	p, ok := identity.FromContext(ctx)
	if !ok {
		return &bracket.AuthorizationError{Required: "authenticated principal"}
	}
	if !p.IsOperator() && p.ID != playerID {
		return &bracket.AuthorizationError{PrincipalID: p.ID, Required: "operator or the player themself"}
	}
	for _, slot := range slots {
		if !slot.Start.Before(slot.End) {
			return fmt.Errorf("invalid time slot: %s is not before %s", slot.Start, slot.End)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := s.store.UpsertPlayerAvailability(ctx, tx, &bracket.PlayerAvailability{
		ID:        uuid.New(),
		PlayerID:  playerID,
		RoundID:   roundID,
		Slots:     slots,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("failed to upsert availability: %w", err)
	}
	return tx.Commit()
}

// SubmitRefereeAvailability records a referee's windows, optionally
// scoped to a round and capped at a number of assignments.
func (s *SchedulerService) SubmitRefereeAvailability(ctx context.Context, refereeID uuid.UUID, roundID *uuid.UUID, slots []bracket.TimeSlot, maxMatches *int) error {
	p, ok := identity.FromContext(ctx)
	if !ok {
		return &bracket.AuthorizationError{Required: "authenticated principal"}
	}
	if !p.IsOperator() && p.ID != refereeID {
		return &bracket.AuthorizationError{PrincipalID: p.ID, Required: "operator or the referee themself"}
	}
	for _, slot := range slots {
		if !slot.Start.Before(slot.End) {
			return fmt.Errorf("invalid time slot: %s is not before %s", slot.Start, slot.End)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := s.store.CreateRefereeAvailability(ctx, tx, &bracket.RefereeAvailability{
		ID:         uuid.New(),
		RefereeID:  refereeID,
		RoundID:    roundID,
		Slots:      slots,
		MaxMatches: maxMatches,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return fmt.Errorf("failed to create referee availability: %w", err)
	}
	return tx.Commit()
}

// ScheduleMatch picks the earliest window both rosters share, assigns
// the least-loaded available referee, and stamps the match. A match
// with no common window becomes a SchedulingUnresolved and an open
// issue for the operators.
func (s *SchedulerService) ScheduleMatch(ctx context.Context, matchID uuid.UUID) (*time.Time, error) {
	match, err := s.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	if !match.Schedulable() {
		return nil, &bracket.IntegrityError{MatchID: matchID, Detail: "match is not schedulable"}
	}
	if match.RoundID == nil {
		return nil, &bracket.IntegrityError{MatchID: matchID, Detail: "match has no round"}
	}
	team1, team2, _ := match.Teams()

	w1, missing1, err := s.teamWindows(ctx, *match.RoundID, team1)
	if err != nil {
		return nil, err
	}
	w2, missing2, err := s.teamWindows(ctx, *match.RoundID, team2)
	if err != nil {
		return nil, err
	}

	missing := append(missing1, missing2...)
	candidates := intersectWindows(w1, w2)
	start, found := s.earliestStart(candidates)
	if !found {
		unresolved := &bracket.SchedulingUnresolved{
			MatchID:        matchID,
			Reason:         "no common window long enough for both teams",
			CheckedWindows: len(candidates),
			At:             s.clock.Now().UTC(),
		}
		if len(missing) > 0 {
			unresolved.Reason = "players without availability submissions"
			unresolved.MissingAvailability = missing
		}
		if err := s.reportUnresolved(ctx, matchID, unresolved); err != nil {
			return nil, err
		}
		return nil, unresolved
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	refereeID, err := s.pickReferee(ctx, tx, match, start)
	if err != nil {
		return nil, err
	}

	match.ScheduledAt = &start
	match.RefereeID = refereeID
	if err := s.store.UpdateMatchTx(ctx, tx, match); err != nil {
		return nil, fmt.Errorf("failed to update match: %w", err)
	}
	if err := s.store.ResolveSchedulingIssuesTx(ctx, tx, matchID); err != nil {
		return nil, err
	}
	if refereeID == nil {
		if err := s.store.ReportSchedulingIssueTx(ctx, tx, &store.SchedulingIssue{
			MatchID: matchID,
			Reason:  "no referee available",
			Detail:  fmt.Sprintf("scheduled for %s without a referee", start.Format(time.RFC3339)),
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	event := notify.NewEvent(notify.EventMatchScheduled, match.BracketID, matchID, map[string]any{
		"scheduled_at": start.Format(time.RFC3339),
	})
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("match_id", matchID.String()).Msg("failed to publish schedule event")
	}
	return &start, nil
}

// ScheduleBracket sweeps every schedulable match of a bracket. Matches
// that cannot be placed are reported and skipped, not fatal.
func (s *SchedulerService) ScheduleBracket(ctx context.Context, bracketID uuid.UUID) (scheduled, unresolved int, err error) {
	matches, err := s.store.GetSchedulableMatches(ctx, bracketID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list schedulable matches: %w", err)
	}
	for _, m := range matches {
		if _, err := s.ScheduleMatch(ctx, m.ID); err != nil {
			var u *bracket.SchedulingUnresolved
			if errors.As(err, &u) {
				unresolved++
				continue
			}
			return scheduled, unresolved, err
		}
		scheduled++
	}
	return scheduled, unresolved, nil
}

func (s *SchedulerService) reportUnresolved(ctx context.Context, matchID uuid.UUID, u *bracket.SchedulingUnresolved) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.store.ReportSchedulingIssueTx(ctx, tx, &store.SchedulingIssue{
		MatchID: matchID,
		Reason:  u.Reason,
		Detail:  u.Error(),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// teamWindows computes the windows during which enough of the roster is
// free, and lists the players it had to count as unavailable.
func (s *SchedulerService) teamWindows(ctx context.Context, roundID, teamID uuid.UUID) ([]bracket.TimeSlot, []uuid.UUID, error) {
	roster, err := s.store.GetPlayersByTeam(ctx, teamID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get roster: %w", err)
	}
	avail, err := s.store.GetPlayerAvailabilityByRound(ctx, roundID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get availability: %w", err)
	}
	byPlayer := make(map[uuid.UUID]bracket.TimeSlots, len(avail))
	for _, a := range avail {
		byPlayer[a.PlayerID] = a.Slots
	}

	var slotSets []bracket.TimeSlots
	var missing []uuid.UUID
	for _, player := range roster {
		slots, ok := byPlayer[player.ID]
		if !ok {
			missing = append(missing, player.ID)
			if !s.Config.TreatMissingAsFree {
				continue
			}
			// Free at all times.
			slots = nil
		}
		slotSets = append(slotSets, slots)
	}

	required := len(roster)
	if s.Config.TeamQuorum > 0 {
		required = int(float64(len(roster))*s.Config.TeamQuorum + 0.999999)
	}
	if s.Config.TreatMissingAsFree {
		// nil slot sets count everywhere; handled in the sweep below.
	} else if len(slotSets) < required {
		return nil, missing, nil
	}

	return quorumWindows(slotSets, required), missing, nil
}

// quorumWindows sweeps slot boundaries and keeps the stretches covered
// by at least required slot sets. A nil set counts as always free.
func quorumWindows(sets []bracket.TimeSlots, required int) []bracket.TimeSlot {
	alwaysFree := 0
	var boundaries []time.Time
	for _, set := range sets {
		if set == nil {
			alwaysFree++
			continue
		}
		for _, slot := range set {
			boundaries = append(boundaries, slot.Start, slot.End)
		}
	}
	if required <= alwaysFree {
		// Degenerate: no bounded windows to clip against.
		return nil
	}
	if len(boundaries) == 0 {
		return nil
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i].Before(boundaries[j]) })

	var windows []bracket.TimeSlot
	for i := 0; i+1 < len(boundaries); i++ {
		lo, hi := boundaries[i], boundaries[i+1]
		if !lo.Before(hi) {
			continue
		}
		count := alwaysFree
		for _, set := range sets {
			for _, slot := range set {
				if !lo.Before(slot.Start) && !hi.After(slot.End) {
					count++
					break
				}
			}
		}
		if count >= required {
			windows = append(windows, bracket.TimeSlot{Start: lo, End: hi})
		}
	}
	return mergeWindows(windows)
}

func mergeWindows(windows []bracket.TimeSlot) []bracket.TimeSlot {
	if len(windows) == 0 {
		return nil
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start.Before(windows[j].Start) })
	merged := windows[:1]
	for _, w := range windows[1:] {
		last := &merged[len(merged)-1]
		if !w.Start.After(last.End) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

func intersectWindows(a, b []bracket.TimeSlot) []bracket.TimeSlot {
	var out []bracket.TimeSlot
	for _, x := range a {
		for _, y := range b {
			if !x.Overlaps(y) {
				continue
			}
			start, end := x.Start, x.End
			if y.Start.After(start) {
				start = y.Start
			}
			if y.End.Before(end) {
				end = y.End
			}
			out = append(out, bracket.TimeSlot{Start: start, End: end})
		}
	}
	return mergeWindows(out)
}

// earliestStart picks the earliest feasible start: windows long enough
// for the configured duration, never in the past.
func (s *SchedulerService) earliestStart(windows []bracket.TimeSlot) (time.Time, bool) {
	now := s.clock.Now().UTC()
	best := time.Time{}
	found := false
	for _, w := range windows {
		start := w.Start
		if start.Before(now) {
			start = now
		}
		if !w.Contains(start, s.Config.MatchDuration) {
			continue
		}
		if !found || start.Before(best) {
			best = start
			found = true
		}
	}
	return best, found
}

// pickReferee selects the available referee with the fewest assignments
// in the round. Ties go to the earliest-submitted availability. nil
// means nobody can take it.
func (s *SchedulerService) pickReferee(ctx context.Context, tx *sqlx.Tx, match *bracket.Match, start time.Time) (*uuid.UUID, error) {
	avail, err := s.store.GetRefereeAvailabilityForRound(ctx, *match.RoundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get referee availability: %w", err)
	}

	var best *uuid.UUID
	bestLoad := -1
	seen := make(map[uuid.UUID]bool)
	for _, a := range avail {
		if seen[a.RefereeID] {
			continue
		}
		seen[a.RefereeID] = true

		covers := false
		for _, slot := range a.Slots {
			if slot.Contains(start, s.Config.MatchDuration) {
				covers = true
				break
			}
		}
		if !covers {
			continue
		}

		load, err := s.store.CountRefereeAssignmentsTx(ctx, tx, a.RefereeID, *match.RoundID)
		if err != nil {
			return nil, err
		}
		if a.MaxMatches != nil && load >= *a.MaxMatches {
			continue
		}
		booked, err := s.refereeBooked(ctx, tx, a.RefereeID, match.ID, start)
		if err != nil {
			return nil, err
		}
		if booked {
			continue
		}
		if bestLoad == -1 || load < bestLoad {
			id := a.RefereeID
			best = &id
			bestLoad = load
		}
	}
	return best, nil
}

// refereeBooked reports whether the referee already has a scheduled
// match whose reserved block overlaps [start, start+duration). One
// referee cannot run two lobbies at once.
func (s *SchedulerService) refereeBooked(ctx context.Context, tx *sqlx.Tx, refereeID, matchID uuid.UUID, start time.Time) (bool, error) {
	schedule, err := s.store.GetRefereeScheduleTx(ctx, tx, refereeID)
	if err != nil {
		return false, fmt.Errorf("failed to get referee schedule: %w", err)
	}
	candidate := bracket.TimeSlot{Start: start, End: start.Add(s.Config.MatchDuration)}
	for _, m := range schedule {
		if m.ID == matchID || m.ScheduledAt == nil {
			continue
		}
		held := bracket.TimeSlot{Start: *m.ScheduledAt, End: m.ScheduledAt.Add(s.Config.MatchDuration)}
		if held.Overlaps(candidate) {
			return true, nil
		}
	}
	return false, nil
}
