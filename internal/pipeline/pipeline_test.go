package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/quizdeck/internal/config"
	"github.com/raphaelgruber/quizdeck/internal/llm"
	"github.com/raphaelgruber/quizdeck/internal/metrics"
	"github.com/raphaelgruber/quizdeck/internal/models"
	"github.com/raphaelgruber/quizdeck/internal/transcript"
)

const waterCycleText = `The water cycle describes how water moves through the environment.
Energy from the sun heats water in oceans and lakes, causing evaporation.
Water vapor rises, cools and condenses into clouds.
When droplets grow heavy they fall as precipitation.
Water then collects in rivers, lakes and groundwater before evaporating again.`

func quizReply(n int) string {
	items := make([]map[string]string, n)
	for i := range items {
		items[i] = map[string]string{
			"question":    fmt.Sprintf("Water cycle question %d?", i+1),
			"answer":      fmt.Sprintf("Answer %d.", i+1),
			"explanation": fmt.Sprintf("Explanation %d.", i+1),
		}
	}
	data, _ := json.MarshalIndent(items, "", "  ")
	return "Here is the quiz.\n\n```json\n" + string(data) + "\n```\n"
}

// stubCompleter returns canned replies and counts calls.
type stubCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	lastReq llm.Request
}

func (s *stubCompleter) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Completion{Content: s.reply, Model: "stub-model", StopReason: "stop"}, nil
}

// stubProvider serves captions and metadata from memory.
type stubProvider struct {
	segments []models.Segment
	meta     *models.SourceMetadata
	err      error
	metaErr  error
}

func (s *stubProvider) Fetch(context.Context, string) ([]models.Segment, error) {
	return s.segments, s.err
}

func (s *stubProvider) FetchMetadata(context.Context, string) (*models.SourceMetadata, error) {
	if s.metaErr != nil {
		return nil, s.metaErr
	}
	return s.meta, nil
}

// ankiRecorder accepts every AnkiConnect call and remembers decks and fronts.
type ankiRecorder struct {
	mu     sync.Mutex
	decks  []string
	fronts []string
}

func (a *ankiRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
		Params struct {
			Deck string `json:"deck"`
			Note struct {
				Fields map[string]string `json:"fields"`
			} `json:"note"`
		} `json:"params"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	a.mu.Lock()
	switch req.Action {
	case "createDeck":
		a.decks = append(a.decks, req.Params.Deck)
	case "addNote":
		a.fronts = append(a.fronts, req.Params.Note.Fields["Front"])
	}
	a.mu.Unlock()

	_, _ = w.Write([]byte(`{"result": 1, "error": null}`))
}

type fixture struct {
	cfg       config.Config
	provider  *stubProvider
	completer *stubCompleter
	anki      *ankiRecorder
	collector *metrics.Collector
	pipeline  *Pipeline
	events    []StageEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	anki := &ankiRecorder{}
	srv := httptest.NewServer(anki)
	t.Cleanup(srv.Close)

	f := &fixture{
		cfg: config.Config{
			DataDir:            t.TempDir(),
			LLMProvider:        config.ProviderOpenAI,
			LLMModel:           "stub-model",
			Temperature:        0.7,
			MaxRetries:         2,
			BackoffBase:        0,
			QuestionCount:      5,
			MaxTranscriptChars: 60000,
			DeckServiceURL:     srv.URL,
		},
		provider: &stubProvider{
			segments: []models.Segment{{Text: "Evaporation moves water upward."}, {Text: "Condensation forms clouds."}},
			meta:     &models.SourceMetadata{Title: "The Water Cycle", Author: "SciChannel"},
		},
		completer: &stubCompleter{reply: quizReply(5)},
		anki:      anki,
		collector: metrics.NewCollector(),
	}
	f.build()
	return f
}

func (f *fixture) build() {
	f.pipeline = Assemble(f.cfg, f.provider, f.completer, nil, f.collector,
		WithObserver(func(ev StageEvent) { f.events = append(f.events, ev) }))
}

func (f *fixture) stages() []Stage {
	var out []Stage
	for _, ev := range f.events {
		out = append(out, ev.Stage)
	}
	return out
}

func TestRunTextEndToEnd(t *testing.T) {
	f := newFixture(t)
	paths := f.cfg.Paths()

	res, err := f.pipeline.Run(context.Background(), Input{
		Text:     waterCycleText,
		Hint:     "Water Cycle Notes",
		DeckName: "Science::Water",
	})
	require.NoError(t, err)

	assert.Equal(t, "text_water-cycle-notes", res.SourceID)
	assert.Equal(t, models.InputText, res.InputType)
	require.Len(t, res.QuizData, 5)
	assert.Equal(t, "Water cycle question 1?", res.QuizData[0].Question)
	assert.Empty(t, res.Warnings)

	for _, path := range []string{
		paths.Transcript(res.SourceID),
		paths.RawResponse(res.SourceID),
		paths.Quiz(res.SourceID),
		paths.Document(res.SourceID),
	} {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}
	assert.Equal(t, paths.Document(res.SourceID), res.Artifacts.Document)
	assert.Empty(t, res.Artifacts.Metadata)

	// Text sources keep the caller's deck name.
	assert.Equal(t, "Science::Water", res.Deck)
	assert.Equal(t, []string{"Science::Water"}, f.anki.decks)
	assert.Len(t, f.anki.fronts, 5)

	assert.Equal(t, []Stage{StageInit, StageIngest, StageBuildPrompt, StageComplete, StageExtract, StageFanout, StageDone}, f.stages())

	// The transcript reached the prompt.
	assert.Contains(t, f.completer.lastReq.User, "causing evaporation")
	assert.Contains(t, f.completer.lastReq.User, "exactly 5")

	snap := f.collector.Snapshot()
	assert.EqualValues(t, 1, snap.PipelineRun.Count)
	assert.EqualValues(t, 1, snap.LLMGenerate.Count)
}

func TestRunVideoUsesMetadataDeck(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Run(context.Background(), Input{
		VideoURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s",
		DeckName: "ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "dQw4w9WgXcQ", res.SourceID)
	assert.Equal(t, "SciChannel::The Water Cycle", res.Deck)
	assert.NotEmpty(t, res.Artifacts.Metadata)
	assert.Empty(t, res.Warnings)

	data, err := os.ReadFile(f.cfg.Paths().Transcript(res.SourceID))
	require.NoError(t, err)
	assert.Equal(t, "Evaporation moves water upward.\nCondensation forms clouds.\n", string(data))
}

func TestRunMetadataFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	f.provider.metaErr = errors.New("oembed 500")

	res, err := f.pipeline.Run(context.Background(), Input{VideoURL: "https://youtu.be/abc123"})
	require.NoError(t, err)

	assert.Equal(t, "abc123", res.Deck)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "metadata unavailable")
}

func TestRunCaptionsDisabled(t *testing.T) {
	f := newFixture(t)
	f.provider.err = transcript.ErrNoCaptions

	res, err := f.pipeline.Run(context.Background(), Input{VideoURL: "https://youtu.be/nocaps"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTranscriptUnavailable)
	assert.Equal(t, models.KindTranscriptUnavailable, models.Kind(err))

	require.NotNil(t, res)
	assert.Equal(t, "nocaps", res.SourceID)
	assert.Zero(t, f.completer.calls)

	_, statErr := os.Stat(f.cfg.Paths().RawResponse("nocaps"))
	assert.True(t, os.IsNotExist(statErr))

	last := f.events[len(f.events)-1]
	assert.Equal(t, StageFailed, last.Stage)
	assert.Equal(t, StageIngest, last.Failed)
	assert.NotContains(t, f.stages(), StageBuildPrompt)
}

func TestRunInputErrors(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"nothing", Input{}},
		{"blank text", Input{Text: "   \n\t"}},
		{"both", Input{VideoURL: "https://youtu.be/abc", Text: "hello"}},
		{"bad url", Input{VideoURL: "https://example.com/video"}},
		{"too few questions", Input{Text: "hello", QuestionCount: 4}},
		{"too many questions", Input{Text: "hello", QuestionCount: 51}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.pipeline.Run(context.Background(), tt.in)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, models.ErrInput)
			assert.Zero(t, f.completer.calls)
		})
	}
}

func TestRunCompletionUnavailable(t *testing.T) {
	f := newFixture(t)
	f.completer.err = errors.New("connection reset")

	res, err := f.pipeline.Run(context.Background(), Input{Text: waterCycleText, Hint: "wc"})
	assert.ErrorIs(t, err, models.ErrCompletionUnavailable)
	assert.Equal(t, 2, f.completer.calls)
	require.NotNil(t, res)
	assert.NotEmpty(t, res.Artifacts.Transcript)
	assert.Empty(t, res.Artifacts.RawResponse)
}

func TestRunSchemaViolationKeepsRawThenReplay(t *testing.T) {
	f := newFixture(t)
	paths := f.cfg.Paths()
	f.completer.reply = "```json\n" + `[{"question": "q1", "answer": "a1"}]` + "\n```"

	res, err := f.pipeline.Run(context.Background(), Input{Text: waterCycleText, Hint: "broken"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrSchemaViolation)
	require.NotNil(t, res)

	rawPath := paths.RawResponse(res.SourceID)
	assert.Equal(t, rawPath, res.Artifacts.RawResponse)
	_, statErr := os.Stat(paths.Quiz(res.SourceID))
	assert.True(t, os.IsNotExist(statErr))

	// A human fixes the stored response, then replays.
	raw, err := llm.LoadRaw(rawPath)
	require.NoError(t, err)
	raw.Choices[0].Message.Content = quizReply(5)
	_, err = llm.SaveRaw(raw, paths.RawResponsesDir())
	require.NoError(t, err)

	f.events = nil
	replayed, err := f.pipeline.Replay(context.Background(), res.SourceID, "Recovered")
	require.NoError(t, err)
	assert.Len(t, replayed.QuizData, 5)
	assert.Equal(t, "Recovered", replayed.Deck)
	assert.Equal(t, models.InputText, replayed.InputType)
	assert.Equal(t, []Stage{StageExtract, StageFanout, StageDone}, f.stages())
	assert.Equal(t, 1, f.completer.calls)
}

func TestReplayMissingRaw(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Replay(context.Background(), "never-ran", "")
	assert.ErrorIs(t, err, models.ErrInput)
}

func TestReplayUsesStoredMetadata(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline.Run(context.Background(), Input{VideoURL: "https://youtu.be/vid42"})
	require.NoError(t, err)

	replayed, err := f.pipeline.Replay(context.Background(), res.SourceID, "")
	require.NoError(t, err)
	assert.Equal(t, "SciChannel::The Water Cycle", replayed.Deck)
}

func TestRunSinkFailuresAreSoft(t *testing.T) {
	f := newFixture(t)
	// Point the deck service at a closed server.
	srv := httptest.NewServer(http.NotFoundHandler())
	f.cfg.DeckServiceURL = srv.URL
	srv.Close()
	f.build()

	res, err := f.pipeline.Run(context.Background(), Input{Text: waterCycleText, Hint: "soft"})
	require.NoError(t, err)
	require.Len(t, res.QuizData, 5)

	require.Len(t, res.Sinks, 2)
	assert.True(t, res.Sinks[0].OK)
	assert.False(t, res.Sinks[1].OK)
	assert.ErrorIs(t, res.Sinks[1].Err, models.ErrSinkFailure)

	require.Len(t, res.Warnings, 1)
	assert.True(t, strings.HasPrefix(res.Warnings[0], "flashcards sink failed"))
}

func TestRunDisabledSinks(t *testing.T) {
	f := newFixture(t)
	f.cfg.DisableAnki = true
	f.cfg.DisablePDF = true
	f.build()

	res, err := f.pipeline.Run(context.Background(), Input{Text: waterCycleText, Hint: "quiet"})
	require.NoError(t, err)
	assert.Empty(t, res.Artifacts.Document)
	assert.Empty(t, f.anki.decks)
	for _, s := range res.Sinks {
		assert.True(t, s.Skipped)
	}
}

func TestRunTruncationWarning(t *testing.T) {
	f := newFixture(t)
	f.cfg.MaxTranscriptChars = 100
	f.build()

	res, err := f.pipeline.Run(context.Background(), Input{Text: waterCycleText, Hint: "long"})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "truncated")
	assert.NotContains(t, f.completer.lastReq.User, "groundwater")
}

func TestObserveDoesNotMutateOriginal(t *testing.T) {
	f := newFixture(t)
	var extra []Stage
	observed := f.pipeline.Observe(func(ev StageEvent) { extra = append(extra, ev.Stage) })

	_, err := observed.Run(context.Background(), Input{Text: waterCycleText, Hint: "obs"})
	require.NoError(t, err)
	assert.Len(t, extra, 7)
	assert.Len(t, f.events, 7)

	f.events = nil
	extra = nil
	_, err = f.pipeline.Run(context.Background(), Input{Text: waterCycleText, Hint: "obs2"})
	require.NoError(t, err)
	assert.Len(t, f.events, 7)
	assert.Empty(t, extra)
}

func TestConcurrentRunsDistinctSources(t *testing.T) {
	f := newFixture(t)
	f.cfg.DisableAnki = true
	f.pipeline = Assemble(f.cfg, f.provider, f.completer, nil, nil)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.pipeline.Run(context.Background(), Input{Text: waterCycleText, Hint: fmt.Sprintf("run %d", i)})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err)
		set, err := os.ReadFile(f.cfg.Paths().Quiz(fmt.Sprintf("text_run-%d", i)))
		require.NoError(t, err)
		assert.Contains(t, string(set), "Water cycle question 5?")
	}
}
