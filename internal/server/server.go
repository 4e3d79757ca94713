// Package server exposes stored runs as a read-only JSON API.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abhisek/papersmith/internal/store"
)

const defaultListLimit = 20

// Handler holds the repositories the API reads from.
type Handler struct {
	runs    store.RunRepo
	history store.HistoryRepo
}

// New creates a Handler.
func New(runs store.RunRepo, history store.HistoryRepo) *Handler {
	return &Handler{runs: runs, history: history}
}

// Router returns the API with recovery and request logging installed.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	h.Routes(r)
	return r
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/runs", h.handleListRuns)
	r.Route("/runs/{runID}", func(r chi.Router) {
		r.Get("/", h.handleRun)
		r.Get("/summary", h.handleSummary)
		r.Get("/exclusions", h.handleExclusions)
		r.Get("/papers/{studentID}", h.handlePaper)
	})
	r.Get("/students/{studentID}/history", h.handleHistory)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// loadRun writes a 404 and returns nil when the run does not exist.
func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) *store.Run {
	id := chi.URLParam(r, "runID")
	run, err := h.runs.Get(r.Context(), id)
	if err != nil {
		serverError(w, r, err)
		return nil
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run "+id+" not found")
		return nil
	}
	return run
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	run := h.loadRun(w, r)
	if run == nil {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	run := h.loadRun(w, r)
	if run == nil {
		return
	}
	rows, err := h.runs.Summary(r.Context(), run.ID)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   run.ID,
		"students": run.Students,
		"rows":     nonNil(rows),
	})
}

func (h *Handler) handleExclusions(w http.ResponseWriter, r *http.Request) {
	run := h.loadRun(w, r)
	if run == nil {
		return
	}
	ex, err := h.runs.Exclusions(r.Context(), run.ID)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(ex))
}

func (h *Handler) handlePaper(w http.ResponseWriter, r *http.Request) {
	run := h.loadRun(w, r)
	if run == nil {
		return
	}
	studentID := chi.URLParam(r, "studentID")
	items, err := h.runs.Paper(r.Context(), run.ID, studentID)
	if err != nil {
		serverError(w, r, err)
		return
	}
	profile, err := h.runs.Profile(r.Context(), run.ID, studentID)
	if err != nil {
		serverError(w, r, err)
		return
	}
	if len(items) == 0 && len(profile) == 0 {
		writeError(w, http.StatusNotFound, "no paper for student "+studentID+" in run "+run.ID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":     run.ID,
		"student_id": studentID,
		"profile":    nonNil(profile),
		"questions":  nonNil(items),
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentID")
	entries, err := h.history.Entries(r.Context(), studentID)
	if err != nil {
		serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"student_id": studentID,
		"entries":    nonNil(entries),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func serverError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
