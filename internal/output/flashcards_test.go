package output

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/quizdeck/internal/models"
)

func TestDeckName(t *testing.T) {
	tests := []struct {
		name     string
		meta     *models.SourceMetadata
		fallback string
		want     string
	}{
		{"both present", &models.SourceMetadata{Title: "Water Cycle", Author: "SciChannel"}, "fb", "SciChannel::Water Cycle"},
		{"nil metadata", nil, "My Deck", "My Deck"},
		{"missing author", &models.SourceMetadata{Title: "Water Cycle"}, "vid123", "vid123"},
		{"missing title", &models.SourceMetadata{Author: "SciChannel"}, "vid123", "vid123"},
		{"fallback verbatim", nil, "  Spaced::Deck ", "  Spaced::Deck "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeckName(tt.meta, tt.fallback))
		})
	}
}

func TestPublishAddsCardsInOrder(t *testing.T) {
	fake := newFakeAnki()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := NewPublisher(NewAnkiClient(srv.URL), nil, nil)
	report, err := p.Publish(context.Background(), sampleSet(3), "Deck::Sub", "vid123")
	require.NoError(t, err)

	assert.Equal(t, PublishReport{Deck: "Deck::Sub", Added: 3}, report)
	assert.Equal(t, []string{"createDeck", "addNote", "addNote", "addNote"}, fake.actions())

	note := fake.requests[1]["params"].(map[string]any)["note"].(map[string]any)
	fields := note["fields"].(map[string]any)
	assert.Equal(t, "Question A", fields["Front"])
	assert.Equal(t, "Answer A Explanation: Because A", fields["Back"])
	assert.Equal(t, []any{"quizdeck", "vid123"}, note["tags"])
}

func TestPublishCreatesDeckOnce(t *testing.T) {
	fake := newFakeAnki()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := NewPublisher(NewAnkiClient(srv.URL), nil, nil)
	ctx := context.Background()

	_, err := p.Publish(ctx, sampleSet(1), "Deck", "a")
	require.NoError(t, err)
	report, err := p.Publish(ctx, sampleSet(1), "Deck", "a")
	require.NoError(t, err)

	creates := 0
	for _, a := range fake.actions() {
		if a == "createDeck" {
			creates++
		}
	}
	assert.Equal(t, 1, creates)
	assert.Len(t, fake.decks, 1)
	// Same question twice is refused by the deck service.
	assert.Equal(t, 1, report.Duplicates)
}

func TestPublishSkipsFailedCards(t *testing.T) {
	fake := newFakeAnki()
	fake.failNote = func(front string) string {
		if front == "Question B" {
			return "collection is not available"
		}
		return ""
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := NewPublisher(NewAnkiClient(srv.URL), nil, nil)
	report, err := p.Publish(context.Background(), sampleSet(3), "Deck", "vid")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Added)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.True(t, strings.HasPrefix(report.Errors[0], "card 2:"))
	assert.True(t, fake.fronts["Question C"])
}

func TestPublishAllCardsFail(t *testing.T) {
	fake := newFakeAnki()
	fake.failNote = func(string) string { return "collection is not available" }
	srv := httptest.NewServer(fake)
	defer srv.Close()

	p := NewPublisher(NewAnkiClient(srv.URL), nil, nil)
	report, err := p.Publish(context.Background(), sampleSet(2), "Deck", "vid")
	assert.ErrorIs(t, err, models.ErrSinkFailure)
	assert.Equal(t, 2, report.Failed)
}

type failingDecks struct{}

func (failingDecks) CreateDeck(context.Context, string) error { return errors.New("connection refused") }
func (failingDecks) AddNote(context.Context, Note) error      { return nil }

func TestPublishDeckCreationFailure(t *testing.T) {
	p := NewPublisher(failingDecks{}, nil, nil)
	report, err := p.Publish(context.Background(), sampleSet(2), "Deck", "vid")
	assert.ErrorIs(t, err, models.ErrSinkFailure)
	assert.Zero(t, report.Added)

	// Failure is not cached as success.
	assert.Empty(t, p.created)
}

func TestPublishEmptyDeckName(t *testing.T) {
	p := NewPublisher(failingDecks{}, nil, nil)
	_, err := p.Publish(context.Background(), sampleSet(1), "", "vid")
	assert.ErrorIs(t, err, models.ErrSinkFailure)
}
