// Package api exposes HTTP handlers for the entry store and goal tracker.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/persistence"
)

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	entries *domain.EntryStore
	goals   *domain.GoalTracker
	log     zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(entries *domain.EntryStore, goals *domain.GoalTracker, log zerolog.Logger) *Handler {
	return &Handler{entries: entries, goals: goals, log: log}
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/entries", h.createEntry).Methods(http.MethodPost)
	v1.HandleFunc("/entries", h.listEntries).Methods(http.MethodGet)
	v1.HandleFunc("/entries/{id}", h.getEntry).Methods(http.MethodGet)
	v1.HandleFunc("/entries/{id}", h.replaceEntry).Methods(http.MethodPut)
	v1.HandleFunc("/entries/{id}", h.deleteEntry).Methods(http.MethodDelete)

	v1.HandleFunc("/goals", h.listGoals).Methods(http.MethodGet)
	v1.HandleFunc("/goals/{type}", h.setGoal).Methods(http.MethodPut)
	v1.HandleFunc("/goals/{type}", h.deleteGoal).Methods(http.MethodDelete)
	v1.HandleFunc("/goals/{type}/evaluation", h.evaluateGoal).Methods(http.MethodGet)
	v1.HandleFunc("/summary", h.summary).Methods(http.MethodGet)
}

// NewRouter builds the full API handler with middleware applied. CORS wraps
// the router so preflight requests never reach route matching.
func NewRouter(h *Handler, corsOrigin string) http.Handler {
	router := mux.NewRouter()
	router.Use(recoverMiddleware(h.log), requestLogger(h.log))
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "no such route")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	})
	h.RegisterRoutes(router)
	return cors(corsOrigin)(router)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	input, err := req.toNewEntry()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	entry, err := h.entries.Add(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/entries/"+entry.ID)
	writeJSON(w, http.StatusCreated, toEntryView(*entry))
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.entries.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryView(*entry))
}

func (h *Handler) replaceEntry(w http.ResponseWriter, r *http.Request) {
	var req EntryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	input, err := req.toNewEntry()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	expected := req.ExpectedVersion
	if raw := strings.Trim(r.Header.Get("If-Match"), `" `); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "If-Match must be an entry version")
			return
		}
		expected = parsed
	}

	entry, err := h.entries.Replace(r.Context(), mux.Vars(r)["id"], input, expected)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryView(*entry))
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.entries.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		query domain.EntryQuery
		err   error
	)
	if query.Range.From, err = parseOptionalDay("from", q.Get("from")); err != nil {
		h.fail(w, r, err)
		return
	}
	if query.Range.To, err = parseOptionalDay("to", q.Get("to")); err != nil {
		h.fail(w, r, err)
		return
	}
	if raw := q.Get("kind"); raw != "" {
		if query.Kind, err = domain.ParseEntryKind(raw); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if raw := q.Get("limit"); raw != "" {
		parsed, convErr := strconv.Atoi(raw)
		if convErr != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		query.Limit = parsed
	}
	if query.Cursor, err = persistence.DecodeCursor(q.Get("cursor")); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	entries, next, err := h.entries.List(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	items := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		items = append(items, toEntryView(e))
	}
	writeJSON(w, http.StatusOK, ListEntriesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) listGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := h.goals.Goals(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items := make([]GoalView, 0, len(goals))
	for _, g := range goals {
		items = append(items, toGoalView(g))
	}
	writeJSON(w, http.StatusOK, ListGoalsResponse{Items: items})
}

func (h *Handler) setGoal(w http.ResponseWriter, r *http.Request) {
	goalType, err := domain.ParseGoalType(mux.Vars(r)["type"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req GoalRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	goal, err := h.goals.SetGoal(r.Context(), domain.Goal{Type: goalType, TargetValue: req.TargetValue})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGoalView(*goal))
}

func (h *Handler) deleteGoal(w http.ResponseWriter, r *http.Request) {
	goalType, err := domain.ParseGoalType(mux.Vars(r)["type"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.goals.DeleteGoal(r.Context(), goalType); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) evaluateGoal(w http.ResponseWriter, r *http.Request) {
	goalType, err := domain.ParseGoalType(mux.Vars(r)["type"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	asOf, err := parseOptionalDay("as_of", r.URL.Query().Get("as_of"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	eval, err := h.goals.EvaluateType(r.Context(), goalType, asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluationView(*eval))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseOptionalDay("as_of", r.URL.Query().Get("as_of"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if asOf.IsZero() {
		asOf = h.goals.Today()
	}

	evals, err := h.goals.Summary(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := SummaryResponse{
		AsOf:  asOf.Format(domain.DateLayout),
		Goals: make([]EvaluationView, 0, len(evals)),
	}
	for _, e := range evals {
		resp.Goals = append(resp.Goals, toEvaluationView(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// fail maps domain errors onto HTTP statuses. Unexpected errors are logged
// and reported without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *domain.ValidationError
		conflict   *domain.ConflictError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_failed", validation.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "conflict", conflict.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "canceled", "request canceled")
	default:
		h.log.Error().Stack().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parseOptionalDay(field, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, nil
	}
	day, err := domain.ParseDay(raw)
	if err != nil {
		return time.Time{}, &domain.ValidationError{Field: field, Reason: "must use YYYY-MM-DD"}
	}
	return day, nil
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
