package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/raphaelgruber/quizdeck/internal/artifact"
	"github.com/raphaelgruber/quizdeck/internal/metrics"
	"github.com/raphaelgruber/quizdeck/internal/models"
	"github.com/raphaelgruber/quizdeck/internal/prompt"
)

// ClientConfig controls model selection and the retry loop.
type ClientConfig struct {
	ModelID     string
	Temperature float64
	// MaxRetries is the total number of attempts, at least 1.
	MaxRetries int
	// BackoffBase is multiplied by the attempt number between attempts.
	BackoffBase time.Duration
}

// Client sends quiz prompts with bounded retry.
type Client struct {
	completer Completer
	cfg       ClientConfig
	logger    *slog.Logger
	metrics   *metrics.Collector
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewClient creates a completion client. Logger and collector may be nil.
func NewClient(c Completer, cfg ClientConfig, logger *slog.Logger, collector *metrics.Collector) *Client {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		completer: c,
		cfg:       cfg,
		logger:    logger,
		metrics:   collector,
		sleep:     sleepContext,
	}
}

// Complete sends the prompt, retrying transport and provider errors up to
// MaxRetries attempts with linear backoff. Fatal provider errors stop the
// loop immediately. Every failure path returns models.ErrCompletionUnavailable.
func (c *Client) Complete(ctx context.Context, p prompt.QuizPrompt, src models.Source) (*RawCompletion, error) {
	req := Request{System: p.System, User: p.User, Temperature: c.cfg.Temperature}
	logger := c.logger.With("source_id", src.ID, "model", c.cfg.ModelID)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		logger.Info("sending completion request", "attempt", attempt, "max_attempts", c.cfg.MaxRetries)

		start := time.Now()
		resp, err := c.completer.Complete(ctx, req)
		duration := time.Since(start)

		if err == nil {
			c.metrics.RecordLLMUsage(metrics.OpLLMGenerate, duration, resp.InputTokens, resp.OutputTokens)
			logger.Info("completion received",
				"attempt", attempt,
				"duration_ms", duration.Milliseconds(),
				"input_tokens", resp.InputTokens,
				"output_tokens", resp.OutputTokens,
			)
			return newRawCompletion(resp, c.cfg.ModelID, src), nil
		}

		c.metrics.RecordTiming(metrics.OpLLMFailure, duration)
		lastErr = err
		logger.Warn("completion attempt failed", "attempt", attempt, "error", err)

		if errors.Is(err, ErrFatalAPI) {
			return nil, fmt.Errorf("%w: %w", models.ErrCompletionUnavailable, err)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrCompletionUnavailable, ctx.Err())
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		backoff := c.cfg.BackoffBase * time.Duration(attempt)
		if err := c.sleep(ctx, backoff); err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrCompletionUnavailable, err)
		}
	}

	return nil, fmt.Errorf("%w: %d attempts failed: %w", models.ErrCompletionUnavailable, c.cfg.MaxRetries, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RawCompletion is the persisted provider response. The layout follows the
// chat-completions shape so the files read like provider dumps, with a
// metadata envelope added.
type RawCompletion struct {
	Model          string         `json:"model"`
	Choices        []RawChoice    `json:"choices"`
	Usage          RawUsage       `json:"usage"`
	GenerationInfo map[string]any `json:"generation_info,omitempty"`
	Metadata       RawMetadata    `json:"metadata"`
}

// RawChoice is one response choice.
type RawChoice struct {
	Message      RawMessage `json:"message"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// RawMessage is the assistant message body.
type RawMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RawUsage carries token counts when the provider reports them.
type RawUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// RawMetadata ties the response to its source.
type RawMetadata struct {
	SourceID  string `json:"source_id"`
	InputType string `json:"input_type"`
	Timestamp string `json:"timestamp"`
}

func newRawCompletion(c *Completion, modelID string, src models.Source) *RawCompletion {
	model := c.Model
	if model == "" {
		model = modelID
	}
	return &RawCompletion{
		Model: model,
		Choices: []RawChoice{{
			Message:      RawMessage{Role: "assistant", Content: c.Content},
			FinishReason: c.StopReason,
		}},
		Usage:          RawUsage{PromptTokens: c.InputTokens, CompletionTokens: c.OutputTokens},
		GenerationInfo: jsonSafe(c.GenerationInfo),
		Metadata: RawMetadata{
			SourceID:  src.ID,
			InputType: string(src.Kind),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// Content returns the first choice's message body.
func (r *RawCompletion) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// jsonSafe drops generation info values that cannot be encoded, so a
// provider quirk never blocks persisting the response.
func jsonSafe(info map[string]any) map[string]any {
	if len(info) == 0 {
		return nil
	}
	out := make(map[string]any, len(info))
	for k, v := range info {
		if _, err := json.Marshal(v); err == nil {
			out[k] = v
		}
	}
	return out
}

// SaveRaw writes the response to <dir>/<source_id>.json, creating dir if
// needed. Files are keyed by source ID, so only a rerun of the same source
// replaces an earlier response.
func SaveRaw(raw *RawCompletion, dir string) (string, error) {
	if raw.Metadata.SourceID == "" {
		return "", fmt.Errorf("raw completion has no source id")
	}
	path := filepath.Join(dir, raw.Metadata.SourceID+".json")
	if err := artifact.WriteJSON(path, raw); err != nil {
		return "", fmt.Errorf("save raw completion: %w", err)
	}
	return path, nil
}

// LoadRaw reads a response saved by SaveRaw.
func LoadRaw(path string) (*RawCompletion, error) {
	var raw RawCompletion
	if err := artifact.ReadJSON(path, &raw); err != nil {
		return nil, fmt.Errorf("load raw completion: %w", err)
	}
	return &raw, nil
}
