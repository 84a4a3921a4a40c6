package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/quizdeck/internal/artifact"
	"github.com/raphaelgruber/quizdeck/internal/config"
	"github.com/raphaelgruber/quizdeck/internal/metrics"
	"github.com/raphaelgruber/quizdeck/internal/models"
	"github.com/raphaelgruber/quizdeck/internal/pipeline"
	"github.com/raphaelgruber/quizdeck/internal/quiz"
	"github.com/raphaelgruber/quizdeck/internal/service"
)

// blockingRunner completes runs once released.
type blockingRunner struct {
	release chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, in pipeline.Input, obs pipeline.Observer) (*pipeline.Result, error) {
	obs(pipeline.StageEvent{SourceID: "abc123", Stage: pipeline.StageInit})
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &pipeline.Result{SourceID: "abc123"}, nil
}

func (b *blockingRunner) Replay(ctx context.Context, sourceID, _ string, obs pipeline.Observer) (*pipeline.Result, error) {
	return &pipeline.Result{SourceID: sourceID}, nil
}

type testEnv struct {
	srv    *Server
	paths  config.Paths
	runner *blockingRunner
	jobs   *service.JobManager
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	paths := config.NewPaths(t.TempDir())
	runner := &blockingRunner{release: make(chan struct{})}
	jobs := service.NewJobManager(runner, 2, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = jobs.Shutdown(ctx)
	})

	collector := metrics.NewCollector()
	collector.RecordTiming(metrics.OpExtract, 3*time.Millisecond)

	return &testEnv{
		srv:    NewServer(jobs, paths, collector, nil),
		paths:  paths,
		runner: runner,
		jobs:   jobs,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestHealthEndpoint(t *testing.T) {
	env := setupServer(t)
	w := env.do(t, "GET", "/api/v1/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "quizdeck", body["service"])
}

func TestStatsEndpoint(t *testing.T) {
	env := setupServer(t)
	w := env.do(t, "GET", "/api/v1/stats", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	extract, ok := body["extract"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, extract["count"])
}

func TestSubmitAndPollJob(t *testing.T) {
	env := setupServer(t)

	w := env.do(t, "POST", "/api/v1/jobs", map[string]any{
		"video_url":      "https://youtu.be/abc123",
		"question_count": 10,
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	job := decode[service.JobView](t, w)
	require.NotEmpty(t, job.ID)
	assert.Equal(t, service.JobTypeGenerate, job.Type)

	// Same source while the first job is active.
	w = env.do(t, "POST", "/api/v1/jobs", map[string]any{"video_url": "https://youtu.be/abc123"})
	assert.Equal(t, http.StatusConflict, w.Code)

	close(env.runner.release)

	require.Eventually(t, func() bool {
		w := env.do(t, "GET", "/api/v1/jobs/"+job.ID, nil)
		if w.Code != http.StatusOK {
			return false
		}
		return decode[service.JobView](t, w).Status == service.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	w = env.do(t, "GET", "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]service.JobView](t, w)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Result)
}

func TestSubmitJobValidation(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"empty", map[string]any{}},
		{"both", map[string]any{"video_url": "https://youtu.be/x", "text": "hi"}},
		{"bad url", map[string]any{"video_url": "https://example.com"}},
		{"count too high", map[string]any{"text": "hi", "question_count": 99}},
		{"unknown field", map[string]any{"text": "hi", "colour": "blue"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupServer(t)
			w := env.do(t, "POST", "/api/v1/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode[map[string]string](t, w)
			assert.Equal(t, models.KindInput, body["kind"])
		})
	}
}

func TestGetJobNotFound(t *testing.T) {
	env := setupServer(t)
	w := env.do(t, "GET", "/api/v1/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetQuiz(t *testing.T) {
	env := setupServer(t)
	set := models.QuizSet{{Question: "q", Answer: "a", Explanation: "e"}}
	_, err := quiz.NewStore(env.paths).Save("vid1", set)
	require.NoError(t, err)

	w := env.do(t, "GET", "/api/v1/quizzes/vid1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		SourceID string         `json:"source_id"`
		QuizData models.QuizSet `json:"quiz_data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "vid1", body.SourceID)
	assert.Equal(t, set, body.QuizData)

	w = env.do(t, "GET", "/api/v1/quizzes/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetQuizRejectsBadID(t *testing.T) {
	env := setupServer(t)
	w := env.do(t, "GET", "/api/v1/quizzes/bad.id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDocument(t *testing.T) {
	env := setupServer(t)
	require.NoError(t, artifact.WriteFile(env.paths.Document("vid1"), []byte("%PDF-1.3 fake")))

	w := env.do(t, "GET", "/api/v1/quizzes/vid1/pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.3 fake", w.Body.String())

	w = env.do(t, "GET", "/api/v1/quizzes/none/pdf", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplayEndpoint(t *testing.T) {
	env := setupServer(t)

	w := env.do(t, "POST", "/api/v1/quizzes/vid1/replay", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, os.MkdirAll(env.paths.RawResponsesDir(), 0o755))
	require.NoError(t, os.WriteFile(env.paths.RawResponse("vid1"), []byte(`{}`), 0o644))

	w = env.do(t, "POST", "/api/v1/quizzes/vid1/replay?deck=Mine", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	job := decode[service.JobView](t, w)
	assert.Equal(t, service.JobTypeReplay, job.Type)
	assert.Equal(t, "vid1", job.SourceID)
}
