// Package pipeline drives a source through ingest, prompt building,
// completion, extraction and output fanout.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/quizdeck/internal/config"
	"github.com/raphaelgruber/quizdeck/internal/llm"
	"github.com/raphaelgruber/quizdeck/internal/metrics"
	"github.com/raphaelgruber/quizdeck/internal/models"
	"github.com/raphaelgruber/quizdeck/internal/output"
	"github.com/raphaelgruber/quizdeck/internal/prompt"
	"github.com/raphaelgruber/quizdeck/internal/quiz"
	"github.com/raphaelgruber/quizdeck/internal/source"
	"github.com/raphaelgruber/quizdeck/internal/transcript"
)

// Input is one pipeline request. Exactly one of VideoURL and Text is set.
type Input struct {
	VideoURL string `json:"video_url,omitempty"`
	Text     string `json:"text,omitempty"`
	// Hint names a text source; ignored for videos.
	Hint string `json:"hint,omitempty"`
	// DeckName is used when metadata cannot name the deck. Defaults to the
	// source ID.
	DeckName string `json:"deck_name,omitempty"`
	// QuestionCount of 0 selects the configured default.
	QuestionCount int `json:"question_count,omitempty"`
}

// Artifacts lists the files a run wrote. Empty fields were not written.
type Artifacts struct {
	Transcript  string `json:"transcript,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
	Quiz        string `json:"quiz,omitempty"`
	Document    string `json:"document,omitempty"`
}

// Result is the outcome of a run. On failure it carries the source ID and the
// artifacts written before the failing stage.
type Result struct {
	SourceID  string              `json:"source_id"`
	InputType models.InputKind    `json:"input_type,omitempty"`
	Deck      string              `json:"deck,omitempty"`
	QuizData  models.QuizSet      `json:"quiz_data,omitempty"`
	Artifacts Artifacts           `json:"artifacts"`
	Sinks     []output.SinkReport `json:"sinks,omitempty"`
	Warnings  []string            `json:"warnings,omitempty"`
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Pipeline runs sources through every stage. It is safe for concurrent use
// as long as concurrent runs have distinct source IDs.
type Pipeline struct {
	ingestor  *transcript.Ingestor
	builder   *prompt.Builder
	client    *llm.Client
	extractor quiz.Extractor
	store     *quiz.Store
	fanout    *output.Fanout
	paths     config.Paths

	defaultCount int
	logger       *slog.Logger
	metrics      *metrics.Collector
	observers    []Observer
}

// Deps are the stage implementations a pipeline is assembled from.
type Deps struct {
	Ingestor *transcript.Ingestor
	Builder  *prompt.Builder
	Client   *llm.Client
	Store    *quiz.Store
	Fanout   *output.Fanout
	Paths    config.Paths
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithObserver adds a stage observer.
func WithObserver(fn Observer) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.observers = append(p.observers, fn)
		}
	}
}

// WithLogger sets the base logger; each run derives a child with source_id.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records stage timings into collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(p *Pipeline) { p.metrics = collector }
}

// WithExtractor replaces the default whole-batch extractor.
func WithExtractor(e quiz.Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithQuestionCount sets the count used when Input.QuestionCount is 0.
func WithQuestionCount(n int) Option {
	return func(p *Pipeline) { p.defaultCount = n }
}

// New assembles a pipeline.
func New(deps Deps, opts ...Option) *Pipeline {
	p := &Pipeline{
		ingestor:     deps.Ingestor,
		builder:      deps.Builder,
		client:       deps.Client,
		extractor:    quiz.NewExtractor(),
		store:        deps.Store,
		fanout:       deps.Fanout,
		paths:        deps.Paths,
		defaultCount: 20,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fanout == nil {
		p.fanout = output.NewFanout(nil, nil, p.logger)
	}
	return p
}

// Observe returns a copy of the pipeline that also reports to fn. The copy
// shares every stage implementation with p.
func (p *Pipeline) Observe(fn Observer) *Pipeline {
	cp := *p
	cp.observers = append(append([]Observer(nil), p.observers...), fn)
	return &cp
}

// run carries per-invocation state.
type run struct {
	p      *Pipeline
	logger *slog.Logger
	result *Result
	stage  Stage
}

func (r *run) enter(stage Stage) {
	r.stage = stage
	r.logger.Debug("stage started", "stage", stage)
	r.p.emit(StageEvent{SourceID: r.result.SourceID, Stage: stage, At: time.Now()})
}

// fail reports err for the current stage and returns it annotated with the
// stage name. The taxonomy sentinel stays reachable through errors.Is.
func (r *run) fail(err error) error {
	r.logger.Error("pipeline failed", "stage", r.stage, "kind", models.Kind(err), "error", err)
	r.p.emit(StageEvent{SourceID: r.result.SourceID, Stage: StageFailed, Failed: r.stage, Err: err, At: time.Now()})
	return fmt.Errorf("%s: %w", r.stage, err)
}

func (p *Pipeline) emit(ev StageEvent) {
	for _, fn := range p.observers {
		fn(ev)
	}
}

// Run executes every stage for in. Stages up to extraction fail fast; output
// sinks fail soft and are reported in Result.Sinks and Result.Warnings. The
// result is non-nil whenever a source ID could be derived.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	src, count, err := p.resolve(in)
	if err != nil {
		p.logger.Error("invalid input", "error", err)
		p.emit(StageEvent{Stage: StageFailed, Failed: StageInit, Err: err, At: time.Now()})
		return nil, fmt.Errorf("%s: %w", StageInit, err)
	}
	defer p.metrics.Time(metrics.OpPipelineRun)()

	r := &run{
		p:      p,
		logger: p.logger.With("source_id", src.ID, "input_type", src.Kind),
		result: &Result{SourceID: src.ID, InputType: src.Kind},
	}
	r.enter(StageInit)
	r.logger.Info("pipeline started", "question_count", count)

	// Ingest
	r.enter(StageIngest)
	tr, meta, err := p.ingest(ctx, r, src, in.Text)
	if err != nil {
		return r.result, r.fail(err)
	}

	// BuildPrompt
	r.enter(StageBuildPrompt)
	qp, err := p.builder.Build(tr.Text(), count)
	if err != nil {
		return r.result, r.fail(err)
	}
	if qp.Truncated {
		r.result.warn("transcript truncated to %d characters", p.builder.MaxTranscriptChars)
		r.logger.Warn("transcript truncated", "max_chars", p.builder.MaxTranscriptChars)
	}

	// Complete
	r.enter(StageComplete)
	raw, err := p.client.Complete(ctx, qp, src)
	if err != nil {
		return r.result, r.fail(err)
	}
	rawPath, err := llm.SaveRaw(raw, p.paths.RawResponsesDir())
	if err != nil {
		return r.result, r.fail(err)
	}
	r.result.Artifacts.RawResponse = rawPath

	return p.finish(ctx, r, raw, meta, in.DeckName)
}

// Replay re-runs extraction and fanout from the raw completion persisted by
// an earlier run of sourceID. Use it to recover from a schema violation once
// the extractor or the response file has been fixed.
func (p *Pipeline) Replay(ctx context.Context, sourceID, deckName string) (*Result, error) {
	rawPath := p.paths.RawResponse(sourceID)
	raw, err := llm.LoadRaw(rawPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: no raw completion for %s", models.ErrInput, sourceID)
		}
		p.logger.Error("replay failed", "source_id", sourceID, "error", err)
		return nil, err
	}
	defer p.metrics.Time(metrics.OpPipelineRun)()

	kind := models.InputKind(raw.Metadata.InputType)
	r := &run{
		p:      p,
		logger: p.logger.With("source_id", sourceID, "input_type", kind, "replay", true),
		result: &Result{SourceID: sourceID, InputType: kind},
	}
	r.result.Artifacts.RawResponse = rawPath
	r.logger.Info("replaying from raw completion", "path", rawPath)

	meta, err := p.ingestor.LoadMetadata(sourceID)
	if err != nil {
		r.logger.Warn("stored metadata unreadable", "error", err)
		meta = nil
	}
	if meta != nil {
		r.result.Artifacts.Metadata = p.paths.Metadata(sourceID)
	}

	return p.finish(ctx, r, raw, meta, deckName)
}

// finish runs the extract and fanout stages shared by Run and Replay.
func (p *Pipeline) finish(ctx context.Context, r *run, raw *llm.RawCompletion, meta *models.SourceMetadata, deckName string) (*Result, error) {
	sourceID := r.result.SourceID

	// Extract
	r.enter(StageExtract)
	stop := p.metrics.Time(metrics.OpExtract)
	set, err := p.extractor.Extract(raw.Content())
	stop()
	if err != nil {
		return r.result, r.fail(err)
	}
	quizPath, err := p.store.Save(sourceID, set)
	if err != nil {
		return r.result, r.fail(err)
	}
	r.result.QuizData = set
	r.result.Artifacts.Quiz = quizPath
	r.logger.Info("quiz extracted", "items", len(set), "path", quizPath)

	// Fanout
	r.enter(StageFanout)
	fallback := strings.TrimSpace(deckName)
	if fallback == "" {
		fallback = sourceID
	}
	deck := output.DeckName(meta, fallback)
	if !meta.HasDeckName() && r.result.InputType == models.InputVideo {
		r.result.warn("metadata unavailable; deck name fell back to %q", deck)
	}
	r.result.Deck = deck

	r.result.Sinks = p.fanout.Run(ctx, set, sourceID, deck)
	for _, s := range r.result.Sinks {
		switch {
		case s.Skipped:
		case s.OK && s.Sink == output.SinkDocument:
			r.result.Artifacts.Document = s.Path
		case !s.OK:
			r.result.warn("%s sink failed: %s", s.Sink, s.Error)
		}
		if s.Cards != nil && s.Cards.Failed > 0 && s.OK {
			r.result.warn("%d of %d flashcards failed", s.Cards.Failed, len(set))
		}
	}

	r.enter(StageDone)
	r.logger.Info("pipeline finished", "deck", deck, "warnings", len(r.result.Warnings))
	return r.result, nil
}

// resolve validates in and derives the source identity and question count.
func (p *Pipeline) resolve(in Input) (models.Source, int, error) {
	hasURL := strings.TrimSpace(in.VideoURL) != ""
	hasText := strings.TrimSpace(in.Text) != ""

	count := in.QuestionCount
	if count == 0 {
		count = p.defaultCount
	}
	if count < p.builder.MinQuestions || count > p.builder.MaxQuestions {
		return models.Source{}, 0, fmt.Errorf("%w: question count %d outside [%d, %d]",
			models.ErrInput, count, p.builder.MinQuestions, p.builder.MaxQuestions)
	}

	switch {
	case hasURL && hasText:
		return models.Source{}, 0, fmt.Errorf("%w: provide a video URL or text, not both", models.ErrInput)
	case hasURL:
		src, err := source.NewVideoSource(strings.TrimSpace(in.VideoURL))
		return src, count, err
	case hasText:
		return source.NewTextSource(in.Hint), count, nil
	default:
		if in.Text != "" {
			return models.Source{}, 0, fmt.Errorf("%w: text is empty", models.ErrInput)
		}
		return models.Source{}, 0, fmt.Errorf("%w: a video URL or text is required", models.ErrInput)
	}
}

// ingest obtains and persists the transcript, plus metadata for videos.
func (p *Pipeline) ingest(ctx context.Context, r *run, src models.Source, text string) (models.Transcript, *models.SourceMetadata, error) {
	defer p.metrics.Time(metrics.OpIngest)()

	var (
		tr   models.Transcript
		meta *models.SourceMetadata
		err  error
	)
	if src.IsVideo() {
		tr, err = p.ingestor.FetchTranscript(ctx, src)
		if err != nil {
			return tr, nil, err
		}
		meta = p.ingestor.FetchMetadata(ctx, src)
	} else {
		tr = models.TextTranscript(strings.TrimSpace(text))
	}

	path, err := p.ingestor.PersistTranscript(tr, src.ID)
	if err != nil {
		return tr, nil, err
	}
	r.result.Artifacts.Transcript = path

	if meta != nil {
		path, err := p.ingestor.PersistMetadata(meta, src.ID)
		if err != nil {
			// Metadata only names the deck; losing the file is not fatal.
			r.logger.Warn("could not persist metadata", "error", err)
			r.result.warn("metadata not persisted: %v", err)
		} else {
			r.result.Artifacts.Metadata = path
		}
	}
	return tr, meta, nil
}
