package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/raphaelgruber/quizdeck/internal/metrics"
	"github.com/raphaelgruber/quizdeck/internal/models"
)

// AppTag is attached to every note the publisher creates.
const AppTag = "quizdeck"

// PublishReport summarizes one deck publication.
type PublishReport struct {
	Deck       string   `json:"deck"`
	Added      int      `json:"added"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// Publisher pushes quiz items to a deck service as flashcards.
type Publisher struct {
	decks   DeckService
	logger  *slog.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	created map[string]bool
}

// NewPublisher creates a publisher. Logger and collector may be nil.
func NewPublisher(decks DeckService, logger *slog.Logger, collector *metrics.Collector) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{
		decks:   decks,
		logger:  logger,
		metrics: collector,
		created: make(map[string]bool),
	}
}

// DeckName returns "{author}::{title}" when metadata carries both, else the
// fallback unchanged.
func DeckName(meta *models.SourceMetadata, fallback string) string {
	if meta.HasDeckName() {
		return meta.Author + "::" + meta.Title
	}
	return fallback
}

// Publish ensures the deck exists, then adds one note per item in order.
// A failed card is logged and skipped. The returned error matches
// models.ErrSinkFailure when the deck cannot be created or no card was
// accepted at all.
func (p *Publisher) Publish(ctx context.Context, set models.QuizSet, deckName, sourceID string) (PublishReport, error) {
	report := PublishReport{Deck: deckName}
	if deckName == "" {
		return report, fmt.Errorf("%w: flashcards: empty deck name", models.ErrSinkFailure)
	}
	defer p.metrics.Time(metrics.OpPublishDeck)()

	logger := p.logger.With("source_id", sourceID, "deck", deckName)

	if err := p.ensureDeck(ctx, deckName); err != nil {
		logger.Warn("could not create deck; is the deck service running?", "error", err)
		return report, fmt.Errorf("%w: flashcards: create deck: %w", models.ErrSinkFailure, err)
	}

	tags := []string{AppTag}
	if sourceID != "" {
		tags = append(tags, sourceID)
	}

	for i, item := range set {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%w: flashcards: %w", models.ErrSinkFailure, err)
		}

		err := p.decks.AddNote(ctx, Note{
			Deck:  deckName,
			Front: item.Question,
			Back:  item.FlashcardBack(),
			Tags:  tags,
		})
		switch {
		case err == nil:
			report.Added++
		case errors.Is(err, ErrDuplicateNote):
			report.Duplicates++
			logger.Debug("card already in deck", "card", i+1)
		default:
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("card %d: %v", i+1, err))
			logger.Warn("failed to add card", "card", i+1, "error", err)
		}
	}

	logger.Info("published flashcards",
		"added", report.Added,
		"duplicates", report.Duplicates,
		"failed", report.Failed)

	if report.Failed > 0 && report.Added == 0 && report.Duplicates == 0 {
		return report, fmt.Errorf("%w: flashcards: all %d cards failed", models.ErrSinkFailure, report.Failed)
	}
	return report, nil
}

// ensureDeck creates the deck once per publisher. The deck service is
// idempotent too, so a restart only costs one extra call.
func (p *Publisher) ensureDeck(ctx context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.created[name] {
		return nil
	}
	if err := p.decks.CreateDeck(ctx, name); err != nil {
		return err
	}
	p.created[name] = true
	return nil
}
