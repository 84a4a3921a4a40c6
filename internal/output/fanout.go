package output

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/raphaelgruber/quizdeck/internal/models"
)

// Sink names reported in SinkReport.
const (
	SinkDocument   = "document"
	SinkFlashcards = "flashcards"
)

// SinkReport is the outcome of one output sink.
type SinkReport struct {
	Sink    string         `json:"sink"`
	OK      bool           `json:"ok"`
	Skipped bool           `json:"skipped,omitempty"`
	Path    string         `json:"path,omitempty"`
	Cards   *PublishReport `json:"cards,omitempty"`
	Error   string         `json:"error,omitempty"`
	Err     error          `json:"-"`
}

// Fanout runs the document and flashcard sinks independently. A nil renderer
// or publisher disables that sink.
type Fanout struct {
	renderer  *Renderer
	publisher *Publisher
	logger    *slog.Logger
}

// NewFanout creates a fanout over the given sinks.
func NewFanout(renderer *Renderer, publisher *Publisher, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Fanout{
		renderer:  renderer,
		publisher: publisher,
		logger:    logger,
	}
}

// Run drives both sinks concurrently and waits for both. Reports are returned
// in a fixed order (document, flashcards). One sink failing never cancels
// the other.
func (f *Fanout) Run(ctx context.Context, set models.QuizSet, sourceID, deckName string) []SinkReport {
	reports := []SinkReport{
		{Sink: SinkDocument},
		{Sink: SinkFlashcards},
	}

	var wg sync.WaitGroup
	run := func(r *SinkReport, fn func(*SinkReport) error) {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.fail(fmt.Errorf("%w: %s: panic: %v", models.ErrSinkFailure, r.Sink, rec))
				f.logger.Error("sink panicked", "sink", r.Sink, "source_id", sourceID, "panic", rec)
			}
		}()
		if err := fn(r); err != nil {
			r.fail(err)
			f.logger.Warn("sink failed", "sink", r.Sink, "source_id", sourceID, "error", err)
			return
		}
		r.OK = true
	}

	if f.renderer != nil {
		wg.Add(1)
		go run(&reports[0], func(r *SinkReport) error {
			path, err := f.renderer.Render(set, sourceID)
			r.Path = path
			return err
		})
	} else {
		reports[0].Skipped = true
	}

	if f.publisher != nil {
		wg.Add(1)
		go run(&reports[1], func(r *SinkReport) error {
			report, err := f.publisher.Publish(ctx, set, deckName, sourceID)
			r.Cards = &report
			return err
		})
	} else {
		reports[1].Skipped = true
	}

	wg.Wait()
	return reports
}

func (r *SinkReport) fail(err error) {
	r.OK = false
	r.Err = err
	r.Error = err.Error()
}
