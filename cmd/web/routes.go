package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/osuops/tourney/internal/bracket"
	"github.com/osuops/tourney/internal/httputil"
	"github.com/osuops/tourney/internal/middleware"
	"github.com/osuops/tourney/internal/service"
	"github.com/osuops/tourney/internal/store"
)

func newRouter(
	st *store.BracketStore,
	brackets *service.BracketService,
	progression *service.ProgressionService,
	drafts *service.DraftService,
	results *service.ResultService,
	scheduler *service.SchedulerService,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Principal(st))

	r.Get("/brackets/{bracketID}", func(w http.ResponseWriter, req *http.Request) {
		id, err := uuid.Parse(chi.URLParam(req, "bracketID"))
		if err != nil {
			httputil.BadRequest(w, "invalid bracket id")
			return
		}
		view, err := brackets.GetBracketView(req.Context(), id)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, view)
	})

	r.Get("/tournaments/{tournamentID}/brackets/active", func(w http.ResponseWriter, req *http.Request) {
		id, err := uuid.Parse(chi.URLParam(req, "tournamentID"))
		if err != nil {
			httputil.BadRequest(w, "invalid tournament id")
			return
		}
		b, err := brackets.GetActiveBracket(req.Context(), id)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, b)
	})

	r.Get("/matches/{matchID}/draft", func(w http.ResponseWriter, req *http.Request) {
		id, err := uuid.Parse(chi.URLParam(req, "matchID"))
		if err != nil {
			httputil.BadRequest(w, "invalid match id")
			return
		}
		state, entries, err := drafts.DraftStateOf(req.Context(), id)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"state":   state,
			"entries": entries,
		})
	})

	r.Get("/matches/{matchID}/results", func(w http.ResponseWriter, req *http.Request) {
		id, err := uuid.Parse(chi.URLParam(req, "matchID"))
		if err != nil {
			httputil.BadRequest(w, "invalid match id")
			return
		}
		log, outcome, err := results.Results(req.Context(), id)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"results": log,
			"score":   outcome,
		})
	})

	r.Get("/issues", func(w http.ResponseWriter, req *http.Request) {
		issues, err := st.GetOpenSchedulingIssues(req.Context())
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, issues)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequirePrincipal)

		r.Post("/tournaments/{tournamentID}/teams", func(w http.ResponseWriter, req *http.Request) {
			tournamentID, err := uuid.Parse(chi.URLParam(req, "tournamentID"))
			if err != nil {
				httputil.BadRequest(w, "invalid tournament id")
				return
			}
			var body struct {
				Teams []service.TeamInput `json:"teams"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				httputil.BadRequest(w, "invalid request body")
				return
			}
			teams, err := brackets.CreateRoster(req.Context(), tournamentID, body.Teams)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, teams)
		})

		r.Post("/tournaments/{tournamentID}/staff", func(w http.ResponseWriter, req *http.Request) {
			tournamentID, err := uuid.Parse(chi.URLParam(req, "tournamentID"))
			if err != nil {
				httputil.BadRequest(w, "invalid tournament id")
				return
			}
			var members []bracket.Staff
			if err := json.NewDecoder(req.Body).Decode(&members); err != nil {
				httputil.BadRequest(w, "invalid request body")
				return
			}
			if err := brackets.CreateStaff(req.Context(), tournamentID, members); err != nil {
				httputil.WriteError(w, err)
				return
			}
			w.WriteHeader(http.StatusCreated)
		})

		r.Post("/tournaments/{tournamentID}/mappools", func(w http.ResponseWriter, req *http.Request) {
			tournamentID, err := uuid.Parse(chi.URLParam(req, "tournamentID"))
			if err != nil {
				httputil.BadRequest(w, "invalid tournament id")
				return
			}
			var body struct {
				Name string             `json:"name"`
				Maps []service.MapInput `json:"maps"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				httputil.BadRequest(w, "invalid request body")
				return
			}
			pool, err := brackets.CreateMappool(req.Context(), tournamentID, body.Name, body.Maps)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, pool)
		})

		r.Post("/tournaments/{tournamentID}/brackets", func(w http.ResponseWriter, req *http.Request) {
			tournamentID, err := uuid.Parse(chi.URLParam(req, "tournamentID"))
			if err != nil {
				httputil.BadRequest(w, "invalid tournament id")
				return
			}
			var input service.CreateBracketInput
			if err := json.NewDecoder(req.Body).Decode(&input); err != nil {
				httputil.BadRequest(w, "invalid request body")
				return
			}
			input.TournamentID = tournamentID
			b, err := brackets.CreateBracket(req.Context(), input)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, b)
		})

		r.Post("/matches/{matchID}/complete", func(w http.ResponseWriter, req *http.Request) {
			matchID, err := uuid.Parse(chi.URLParam(req, "matchID"))
			if err != nil {
				httputil.BadRequest(w, "invalid match id")
				return
			}
			var body struct {
				WinnerID uuid.UUID `json:"winner_id"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				httputil.BadRequest(w, "invalid request body")
				return
			}
			if err := progression.CompleteMatch(req.Context(), matchID, body.WinnerID); err != nil {
				httputil.WriteError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/matches/{matchID}/forfeit", func(w http.ResponseWriter, req *http.Request) {
			matchID, err := uuid.Parse(chi.URLParam(req, "matchID"))
			if err != nil {
				httputil.BadRequest(w, "invalid match id")
				return
			}
			var body struct {
				AbsentTeamID uuid.UUID `json:"absent_team_id"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				httputil.BadRequest(w, "invalid request body")
				return
			}
			if err := progression.ForfeitMatch(req.Context(), matchID, body.AbsentTeamID); err != nil {
				httputil.WriteError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/matches/{matchID}/draft/start", func(w http.ResponseWriter, req *http.Request) {
			matchID, err := uuid.Parse(chi.URLParam(req, "matchID"))
			if err != nil {
				httputil.BadRequest(w, "invalid match id")
				return
			}
			if err := drafts.StartDraft(req.Context(), matchID); err != nil {
				httputil.WriteError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/matches/{matchID}/draft", func(w http.ResponseWriter, req *http.Request) {
			matchID, err := uuid.Parse(chi.URLParam(req, "matchID"))
			if err != nil {
				httputil.BadRequest(w, "invalid match id")
				return
			}
			var body struct {
				TeamID uuid.UUID             `json:"team_id"`
				MapID  uuid.UUID             `json:"map_id"`
				Action bracket.PickBanAction `json:"action"`
				Order  int                   `json:"order"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				httputil.BadRequest(w, "invalid request body")
				return
			}
			state, err := drafts.SubmitPickBan(req.Context(), matchID, body.TeamID, body.MapID, body.Action, body.Order)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]any{"state": state})
		})

		r.Post("/matches/{matchID}/results", func(w http.ResponseWriter, req *http.Request) {
			matchID, err := uuid.Parse(chi.URLParam(req, "matchID"))
			if err != nil {
				httputil.BadRequest(w, "invalid match id")
				return
			}
			var score service.MapScore
			if err := json.NewDecoder(req.Body).Decode(&score); err != nil {
				httputil.BadRequest(w, "invalid request body")
				return
			}
			outcome, err := results.RecordMapResult(req.Context(), matchID, score)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, outcome)
		})

		r.Post("/matches/{matchID}/dispute", func(w http.ResponseWriter, req *http.Request) {
			matchID, err := uuid.Parse(chi.URLParam(req, "matchID"))
			if err != nil {
				httputil.BadRequest(w, "invalid match id")
				return
			}
			var body struct {
				Reason string `json:"reason"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				httputil.BadRequest(w, "invalid request body")
				return
			}
			if err := results.DisputeMatch(req.Context(), matchID, body.Reason); err != nil {
				httputil.WriteError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/matches/{matchID}/schedule", func(w http.ResponseWriter, req *http.Request) {
			matchID, err := uuid.Parse(chi.URLParam(req, "matchID"))
			if err != nil {
				httputil.BadRequest(w, "invalid match id")
				return
			}
			at, err := scheduler.ScheduleMatch(req.Context(), matchID)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]any{"scheduled_at": at})
		})

		r.Post("/brackets/{bracketID}/schedule", func(w http.ResponseWriter, req *http.Request) {
			bracketID, err := uuid.Parse(chi.URLParam(req, "bracketID"))
			if err != nil {
				httputil.BadRequest(w, "invalid bracket id")
				return
			}
			scheduled, unresolved, err := scheduler.ScheduleBracket(req.Context(), bracketID)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, map[string]any{
				"scheduled":  scheduled,
				"unresolved": unresolved,
			})
		})

		r.Put("/rounds/{roundID}/availability/players/{playerID}", func(w http.ResponseWriter, req *http.Request) {
			roundID, err := uuid.Parse(chi.URLParam(req, "roundID"))
			if err != nil {
				httputil.BadRequest(w, "invalid round id")
				return
			}
			playerID, err := uuid.Parse(chi.URLParam(req, "playerID"))
			if err != nil {
				httputil.BadRequest(w, "invalid player id")
				return
			}
			var body struct {
				Slots []bracket.TimeSlot `json:"slots"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				httputil.BadRequest(w, "invalid request body")
				return
			}
			if err := scheduler.SubmitPlayerAvailability(req.Context(), roundID, playerID, body.Slots); err != nil {
				httputil.WriteError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Post("/referees/{refereeID}/availability", func(w http.ResponseWriter, req *http.Request) {
			refereeID, err := uuid.Parse(chi.URLParam(req, "refereeID"))
			if err != nil {
				httputil.BadRequest(w, "invalid referee id")
				return
			}
			var body struct {
				RoundID    *uuid.UUID         `json:"round_id"`
				Slots      []bracket.TimeSlot `json:"slots"`
				MaxMatches *int               `json:"max_matches"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				httputil.BadRequest(w, "invalid request body")
				return
			}
			if err := scheduler.SubmitRefereeAvailability(req.Context(), refereeID, body.RoundID, body.Slots, body.MaxMatches); err != nil {
				httputil.WriteError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}
