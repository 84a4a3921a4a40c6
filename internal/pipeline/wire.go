package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/quizdeck/internal/config"
	"github.com/raphaelgruber/quizdeck/internal/llm"
	"github.com/raphaelgruber/quizdeck/internal/metrics"
	"github.com/raphaelgruber/quizdeck/internal/output"
	"github.com/raphaelgruber/quizdeck/internal/prompt"
	"github.com/raphaelgruber/quizdeck/internal/quiz"
	"github.com/raphaelgruber/quizdeck/internal/transcript"
)

// FromConfig wires the production stages: YouTube captions, the configured
// completion provider, the PDF builder and AnkiConnect. Sinks disabled in cfg
// are skipped. Extra options are applied after the defaults.
func FromConfig(ctx context.Context, cfg config.Config, logger *slog.Logger, collector *metrics.Collector, opts ...Option) (*Pipeline, error) {
	model, err := llm.NewModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create completion model: %w", err)
	}
	return Assemble(cfg, transcript.NewYouTubeProvider(cfg.TranscriptLang), model, logger, collector, opts...), nil
}

// Assemble builds a pipeline from cfg around the given transcript provider
// and completer.
func Assemble(cfg config.Config, provider transcript.Provider, completer llm.Completer, logger *slog.Logger, collector *metrics.Collector, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	paths := cfg.Paths()

	client := llm.NewClient(completer, llm.ClientConfig{
		ModelID:     cfg.LLMModel,
		Temperature: cfg.Temperature,
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
	}, logger, collector)

	var renderer *output.Renderer
	if !cfg.DisablePDF {
		renderer = output.NewRenderer(output.NewPDFBuilder(), paths, logger, collector)
	}
	var publisher *output.Publisher
	if !cfg.DisableAnki {
		publisher = output.NewPublisher(output.NewAnkiClient(cfg.DeckServiceURL), logger, collector)
	}

	deps := Deps{
		Ingestor: transcript.NewIngestor(provider, paths, logger),
		Builder:  prompt.NewBuilder(cfg.MaxTranscriptChars),
		Client:   client,
		Store:    quiz.NewStore(paths),
		Fanout:   output.NewFanout(renderer, publisher, logger),
		Paths:    paths,
	}

	base := []Option{
		WithLogger(logger),
		WithMetrics(collector),
		WithQuestionCount(cfg.QuestionCount),
	}
	return New(deps, append(base, opts...)...)
}
