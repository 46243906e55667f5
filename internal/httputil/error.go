package httputil

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/osuops/tourney/internal/bracket"
	"github.com/rs/zerolog/log"
)

type errorBody struct {
	Error  string         `json:"error"`
	Kind   string         `json:"kind,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// WriteError maps the engine's failure taxonomy onto HTTP statuses.
// Anything unrecognized is a 500 with the detail kept server-side.
func WriteError(w http.ResponseWriter, err error) {
	var (
		authErr   *bracket.AuthorizationError
		integrity *bracket.IntegrityError
		draftErr  *bracket.DraftProtocolError
		scoreErr  *bracket.InvalidScoreError
		schedErr  *bracket.SchedulingUnresolved
	)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.As(err, &authErr):
		writeError(w, http.StatusForbidden, errorBody{
			Error: authErr.Error(),
			Kind:  "authorization",
			Detail: map[string]any{
				"required": authErr.Required,
			},
		})
	case errors.As(err, &integrity):
		writeError(w, http.StatusConflict, errorBody{
			Error: integrity.Error(),
			Kind:  "integrity",
			Detail: map[string]any{
				"match_id": integrity.MatchID,
			},
		})
	case errors.As(err, &draftErr):
		writeError(w, http.StatusUnprocessableEntity, errorBody{
			Error: draftErr.Error(),
			Kind:  "draft_protocol",
			Detail: map[string]any{
				"expected_action": draftErr.ExpectedAction,
				"expected_team":   draftErr.ExpectedTeam,
			},
		})
	case errors.As(err, &scoreErr):
		writeError(w, http.StatusUnprocessableEntity, errorBody{
			Error: scoreErr.Error(),
			Kind:  "invalid_score",
		})
	case errors.As(err, &schedErr):
		writeError(w, http.StatusConflict, errorBody{
			Error: schedErr.Error(),
			Kind:  "scheduling_unresolved",
			Detail: map[string]any{
				"reason":               schedErr.Reason,
				"missing_availability": schedErr.MissingAvailability,
			},
		})
	default:
		log.Error().Err(err).Msg("internal server error")
		writeError(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
	}
}

func BadRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, errorBody{Error: msg})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	WriteJSON(w, status, body)
}
