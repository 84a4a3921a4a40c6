// Package service runs pipelines in the background for the HTTP server.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/quizdeck/internal/models"
	"github.com/raphaelgruber/quizdeck/internal/pipeline"
	"github.com/raphaelgruber/quizdeck/internal/source"
)

// ErrSourceBusy is returned when a job for the same source is still active.
var ErrSourceBusy = errors.New("source already has an active job")

// JobStatus represents the state of a background job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job types.
const (
	JobTypeGenerate = "generate"
	JobTypeReplay   = "replay"
)

// JobView is the lock-free state of a job, as returned by Snapshot and
// served over the API.
type JobView struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	Status      JobStatus        `json:"status"`
	Input       pipeline.Input   `json:"input"`
	SourceID    string           `json:"source_id,omitempty"`
	Stage       pipeline.Stage   `json:"stage,omitempty"`
	Progress    int              `json:"progress"`
	Total       int              `json:"total"`
	Result      *pipeline.Result `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	ErrorKind   string           `json:"error_kind,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Job is one background pipeline run. Its state is guarded by mu; read it
// through Snapshot.
type Job struct {
	JobView

	// sourceKey is the source ID known before the run starts, if any.
	sourceKey string
	mu        sync.RWMutex
}

// Runner executes pipeline runs and replays, reporting stages to obs.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input, obs pipeline.Observer) (*pipeline.Result, error)
	Replay(ctx context.Context, sourceID, deckName string, obs pipeline.Observer) (*pipeline.Result, error)
}

// pipelineRunner adapts a Pipeline to Runner.
type pipelineRunner struct {
	p *pipeline.Pipeline
}

// NewPipelineRunner wraps p so every job gets its own stage observer.
func NewPipelineRunner(p *pipeline.Pipeline) Runner {
	return pipelineRunner{p: p}
}

func (r pipelineRunner) Run(ctx context.Context, in pipeline.Input, obs pipeline.Observer) (*pipeline.Result, error) {
	return r.p.Observe(obs).Run(ctx, in)
}

func (r pipelineRunner) Replay(ctx context.Context, sourceID, deckName string, obs pipeline.Observer) (*pipeline.Result, error) {
	return r.p.Observe(obs).Replay(ctx, sourceID, deckName)
}

// JobManager tracks and runs background jobs.
type JobManager struct {
	runner      Runner
	jobs        map[string]*Job
	active      map[string]string // source key -> job ID
	mu          sync.RWMutex
	concurrency int
	sem         chan struct{}
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *slog.Logger
}

// NewJobManager creates a job manager running at most concurrency pipelines
// at once. A nil logger discards output.
func NewJobManager(runner Runner, concurrency int, logger *slog.Logger) *JobManager {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobManager{
		runner:      runner,
		jobs:        make(map[string]*Job),
		active:      make(map[string]string),
		concurrency: concurrency,
		sem:         make(chan struct{}, concurrency),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Concurrency returns the configured concurrency level.
func (m *JobManager) Concurrency() int {
	return m.concurrency
}

// Submit starts a generate job for in.
func (m *JobManager) Submit(in pipeline.Input) (*Job, error) {
	job := m.newJob(JobTypeGenerate, in, sourceKey(in))
	if err := m.register(job); err != nil {
		return nil, err
	}
	m.start(job, func(ctx context.Context, obs pipeline.Observer) (*pipeline.Result, error) {
		return m.runner.Run(ctx, in, obs)
	})
	return job, nil
}

// SubmitReplay starts a replay job for a source with a persisted raw
// completion.
func (m *JobManager) SubmitReplay(sourceID, deckName string) (*Job, error) {
	if strings.TrimSpace(sourceID) == "" {
		return nil, fmt.Errorf("%w: source id is required", models.ErrInput)
	}
	job := m.newJob(JobTypeReplay, pipeline.Input{DeckName: deckName}, sourceID)
	job.SourceID = sourceID
	if err := m.register(job); err != nil {
		return nil, err
	}
	m.start(job, func(ctx context.Context, obs pipeline.Observer) (*pipeline.Result, error) {
		return m.runner.Replay(ctx, sourceID, deckName, obs)
	})
	return job, nil
}

func (m *JobManager) newJob(jobType string, in pipeline.Input, key string) *Job {
	return &Job{
		JobView: JobView{
			ID:        uuid.New().String()[:8], // Short ID for convenience
			Type:      jobType,
			Status:    JobStatusPending,
			Input:     in,
			Total:     len(pipeline.Stages),
			StartedAt: time.Now(),
		},
		sourceKey: key,
	}
}

// register adds the job and claims its source key.
func (m *JobManager) register(job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.sourceKey != "" {
		if other, ok := m.active[job.sourceKey]; ok {
			return fmt.Errorf("%w: %s (job %s)", ErrSourceBusy, job.sourceKey, other)
		}
		m.active[job.sourceKey] = job.ID
	}
	m.jobs[job.ID] = job

	m.logger.Info("job created", "job_id", job.ID, "type", job.Type, "source_key", job.sourceKey)
	return nil
}

func (m *JobManager) release(job *Job) {
	if job.sourceKey == "" {
		return
	}
	m.mu.Lock()
	if m.active[job.sourceKey] == job.ID {
		delete(m.active, job.sourceKey)
	}
	m.mu.Unlock()
}

func (m *JobManager) start(job *Job, fn func(context.Context, pipeline.Observer) (*pipeline.Result, error)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.release(job)
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("job goroutine panicked", "job_id", job.ID, "panic", r)
				m.Fail(job, nil, fmt.Errorf("internal panic: %v", r))
			}
		}()

		select {
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
		case <-m.ctx.Done():
			m.Fail(job, nil, m.ctx.Err())
			return
		}

		m.SetRunning(job)
		result, err := fn(m.ctx, func(ev pipeline.StageEvent) { m.UpdateStage(job, ev) })
		if err != nil {
			m.Fail(job, result, err)
			return
		}
		m.Complete(job, result)
	}()
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all jobs, most recent first.
func (m *JobManager) ListJobs() []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}

	// Sort by start time descending (most recent first)
	slices.SortFunc(jobs, func(a, b *Job) int {
		return b.StartedAt.Compare(a.StartedAt)
	})

	return jobs
}

// SetRunning marks job as running.
func (m *JobManager) SetRunning(job *Job) {
	job.mu.Lock()
	job.Status = JobStatusRunning
	job.mu.Unlock()
}

// UpdateStage records a stage transition reported by the pipeline.
func (m *JobManager) UpdateStage(job *Job, ev pipeline.StageEvent) {
	job.mu.Lock()
	defer job.mu.Unlock()

	if ev.SourceID != "" {
		job.SourceID = ev.SourceID
	}
	if ev.Stage == pipeline.StageFailed {
		return
	}
	job.Stage = ev.Stage
	if ev.Stage == pipeline.StageDone {
		job.Progress = job.Total
	} else if i := ev.Stage.Index(); i >= 0 {
		job.Progress = i
	}
}

// Complete marks job as completed with result.
func (m *JobManager) Complete(job *Job, result *pipeline.Result) {
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.Result = result
	job.Progress = job.Total
	if result != nil {
		job.SourceID = result.SourceID
	}
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	warnings := 0
	if result != nil {
		warnings = len(result.Warnings)
	}
	m.logger.Info("job completed", "job_id", job.ID, "source_id", job.SourceID, "warnings", warnings)
}

// Fail marks job as failed. A partial result, if any, is kept for inspection.
func (m *JobManager) Fail(job *Job, result *pipeline.Result, err error) {
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Result = result
	job.Error = err.Error()
	job.ErrorKind = models.Kind(err)
	now := time.Now()
	job.CompletedAt = &now
	job.mu.Unlock()

	m.logger.Error("job failed", "job_id", job.ID, "kind", models.Kind(err), "error", err)
}

// Shutdown cancels running jobs and waits for them to finish or for ctx to
// expire.
func (m *JobManager) Shutdown(ctx context.Context) error {
	m.cancel()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() JobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.JobView
}

// sourceKey predicts the source ID for inputs whose ID is deterministic:
// video URLs and hinted text. Unhinted text always gets a fresh ID.
func sourceKey(in pipeline.Input) string {
	if id, ok := source.DeriveVideoID(in.VideoURL); ok {
		return id
	}
	if strings.TrimSpace(in.Text) != "" && models.Slugify(strings.TrimSpace(in.Hint)) != "" {
		return source.DeriveTextID(in.Hint)
	}
	return ""
}
