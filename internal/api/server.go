// Package api exposes pipeline jobs and their artifacts over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/raphaelgruber/quizdeck/internal/config"
	"github.com/raphaelgruber/quizdeck/internal/metrics"
	"github.com/raphaelgruber/quizdeck/internal/models"
	"github.com/raphaelgruber/quizdeck/internal/pipeline"
	"github.com/raphaelgruber/quizdeck/internal/quiz"
	"github.com/raphaelgruber/quizdeck/internal/service"
	"github.com/raphaelgruber/quizdeck/internal/source"
)

// maxBodyBytes bounds job submissions; pasted text is the largest field.
const maxBodyBytes = 4 << 20

// Server serves the quizdeck HTTP API.
type Server struct {
	jobs    *service.JobManager
	store   *quiz.Store
	paths   config.Paths
	metrics *metrics.Collector
	logger  *slog.Logger
	router  chi.Router
}

// NewServer builds the router. Collector and logger may be nil.
func NewServer(jobs *service.JobManager, paths config.Paths, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	srv := &Server{
		jobs:    jobs,
		store:   quiz.NewStore(paths),
		paths:   paths,
		metrics: collector,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", srv.handleHealth)
		r.Get("/stats", srv.handleStats)

		r.Post("/jobs", srv.handleSubmitJob)
		r.Get("/jobs", srv.handleListJobs)
		r.Get("/jobs/{jobID}", srv.handleGetJob)

		r.Get("/quizzes/{sourceID}", srv.handleGetQuiz)
		r.Get("/quizzes/{sourceID}/pdf", srv.handleGetDocument)
		r.Post("/quizzes/{sourceID}/replay", srv.handleReplay)
	})

	srv.router = r
	return srv
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP API", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "quizdeck",
		"jobs":    len(s.jobs.ListJobs()),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeJSON(w, http.StatusOK, metrics.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var in pipeline.Input
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, models.KindInput, "invalid request body: "+err.Error())
		return
	}

	hasURL := strings.TrimSpace(in.VideoURL) != ""
	hasText := strings.TrimSpace(in.Text) != ""
	if hasURL == hasText {
		writeError(w, http.StatusBadRequest, models.KindInput, "exactly one of video_url or text is required")
		return
	}
	if hasURL {
		if _, ok := source.DeriveVideoID(in.VideoURL); !ok {
			writeError(w, http.StatusBadRequest, models.KindInput, "no video ID in video_url")
			return
		}
	}
	if in.QuestionCount != 0 && (in.QuestionCount < config.MinQuestions || in.QuestionCount > config.MaxQuestions) {
		writeError(w, http.StatusBadRequest, models.KindInput, "question_count must be between 5 and 50")
		return
	}

	job, err := s.jobs.Submit(in)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := s.sourceParam(w, r)
	if !ok {
		return
	}
	if _, err := os.Stat(s.paths.RawResponse(sourceID)); err != nil {
		writeError(w, http.StatusNotFound, models.KindInput, "no raw completion for source")
		return
	}

	job, err := s.jobs.SubmitReplay(sourceID, r.URL.Query().Get("deck"))
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSourceBusy):
		writeError(w, http.StatusConflict, models.KindInput, err.Error())
	case errors.Is(err, models.ErrInput):
		writeError(w, http.StatusBadRequest, models.KindInput, err.Error())
	default:
		s.logger.Error("submit job failed", "error", err)
		writeError(w, http.StatusInternalServerError, models.KindInternal, "internal error")
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.jobs.ListJobs()
	out := make([]service.JobView, 0, len(jobs))
	for _, job := range jobs {
		snap := job.Snapshot()
		// Lists stay small; fetch a job for its full result.
		snap.Result = nil
		out = append(out, snap)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job := s.jobs.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		writeError(w, http.StatusNotFound, "", "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := s.sourceParam(w, r)
	if !ok {
		return
	}
	set, err := s.store.Load(sourceID)
	if err != nil {
		if errors.Is(err, quiz.ErrNotFound) {
			writeError(w, http.StatusNotFound, "", "quiz not found")
			return
		}
		s.logger.Error("load quiz failed", "source_id", sourceID, "error", err)
		writeError(w, http.StatusInternalServerError, models.KindInternal, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"source_id": sourceID,
		"quiz_data": set,
	})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := s.sourceParam(w, r)
	if !ok {
		return
	}
	path := s.paths.Document(sourceID)
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "", "document not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, models.KindInternal, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+sourceID+`.pdf"`)
	http.ServeContent(w, r, sourceID+".pdf", info.ModTime(), f)
}

// sourceParam extracts and validates the sourceID path parameter.
func (s *Server) sourceParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	sourceID := chi.URLParam(r, "sourceID")
	if !source.ValidID(sourceID) {
		writeError(w, http.StatusBadRequest, models.KindInput, "invalid source id")
		return "", false
	}
	return sourceID, true
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	body := map[string]string{"error": msg}
	if kind != "" {
		body["kind"] = kind
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
