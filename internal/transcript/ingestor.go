package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/raphaelgruber/quizdeck/internal/artifact"
	"github.com/raphaelgruber/quizdeck/internal/config"
	"github.com/raphaelgruber/quizdeck/internal/models"
)

// Ingestor obtains transcripts and metadata and writes them under the data dir.
type Ingestor struct {
	provider Provider
	paths    config.Paths
	logger   *slog.Logger
}

// NewIngestor creates an ingestor. A nil logger discards output.
func NewIngestor(provider Provider, paths config.Paths, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Ingestor{provider: provider, paths: paths, logger: logger}
}

// FetchTranscript returns the transcript for a video source. Missing captions
// and empty transcripts both fail with models.ErrTranscriptUnavailable.
func (i *Ingestor) FetchTranscript(ctx context.Context, src models.Source) (models.Transcript, error) {
	if !src.IsVideo() {
		return models.Transcript{}, fmt.Errorf("%w: source %s is not a video", models.ErrInput, src.ID)
	}

	i.logger.Info("fetching transcript", "source_id", src.ID)
	segments, err := i.provider.Fetch(ctx, src.ID)
	if err != nil {
		// Transport failures are as terminal as missing captions: there is
		// nothing to build a prompt from.
		return models.Transcript{}, fmt.Errorf("%w: %v", models.ErrTranscriptUnavailable, err)
	}

	tr := models.Transcript{Segments: segments}
	if tr.IsEmpty() {
		return models.Transcript{}, fmt.Errorf("%w: transcript for %s is empty", models.ErrTranscriptUnavailable, src.ID)
	}

	i.logger.Info("transcript fetched", "source_id", src.ID, "segments", len(segments))
	return tr, nil
}

// FetchMetadata is best effort: on failure it logs a warning and returns nil.
func (i *Ingestor) FetchMetadata(ctx context.Context, src models.Source) *models.SourceMetadata {
	if !src.IsVideo() {
		return nil
	}
	meta, err := i.provider.FetchMetadata(ctx, src.URL)
	if err != nil {
		i.logger.Warn("metadata unavailable, continuing without it", "source_id", src.ID, "error", err)
		return nil
	}
	return meta
}

// PersistTranscript writes raw/transcripts/<id>.txt, one segment per line.
// Reruns for the same source overwrite the file.
func (i *Ingestor) PersistTranscript(tr models.Transcript, sourceID string) (string, error) {
	path := i.paths.Transcript(sourceID)
	if err := artifact.WriteFile(path, []byte(tr.Text()+"\n")); err != nil {
		return "", fmt.Errorf("persist transcript: %w", err)
	}
	i.logger.Info("transcript saved", "source_id", sourceID, "path", path)
	return path, nil
}

// PersistMetadata writes intermediate/metadata/<id>.json. Provider fields are
// written at the top level next to title and author.
func (i *Ingestor) PersistMetadata(meta *models.SourceMetadata, sourceID string) (string, error) {
	if meta == nil {
		return "", nil
	}

	doc := make(map[string]any, len(meta.Extra)+2)
	for k, v := range meta.Extra {
		doc[k] = v
	}
	doc["title"] = meta.Title
	doc["author"] = meta.Author

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	path := i.paths.Metadata(sourceID)
	if err := artifact.WriteFile(path, data); err != nil {
		return "", fmt.Errorf("persist metadata: %w", err)
	}
	i.logger.Info("metadata saved", "source_id", sourceID, "path", path)
	return path, nil
}

// LoadMetadata reads previously persisted metadata. Returns nil when absent.
func (i *Ingestor) LoadMetadata(sourceID string) (*models.SourceMetadata, error) {
	data, err := os.ReadFile(i.paths.Metadata(sourceID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return metadataFromMap(raw), nil
}
