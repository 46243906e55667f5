package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventMatchCompleted EventType = "match.completed"
	EventMatchScheduled EventType = "match.scheduled"
	EventDraftLocked    EventType = "draft.locked"
)

// Event is a fire-and-forget notification emitted by the engine.
// Delivery and formatting are somebody else's problem.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Type       EventType      `json:"type"`
	BracketID  uuid.UUID      `json:"bracket_id"`
	MatchID    uuid.UUID      `json:"match_id"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func NewEvent(t EventType, bracketID, matchID uuid.UUID, payload map[string]any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		BracketID:  bracketID,
		MatchID:    matchID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// LogNotifier just logs events. Used in development and tests.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Publish(_ context.Context, event Event) error {
	n.logger.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.Type)).
		Str("match_id", event.MatchID.String()).
		Msg("publishing event")
	return nil
}
