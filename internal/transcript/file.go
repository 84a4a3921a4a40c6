package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/quizdeck/internal/models"
	"github.com/raphaelgruber/quizdeck/internal/source"
)

// FileProvider serves transcripts that were fetched ahead of time:
// <dir>/<video_id>.txt (one caption line per line) and optionally
// <dir>/<video_id>.json metadata with title and author.
type FileProvider struct {
	dir string
}

// Compile-time check that FileProvider implements Provider.
var _ Provider = (*FileProvider)(nil)

// NewFileProvider creates a provider reading from dir.
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{dir: dir}
}

// Fetch reads <dir>/<videoID>.txt.
func (p *FileProvider) Fetch(_ context.Context, videoID string) ([]models.Segment, error) {
	f, err := os.Open(filepath.Join(p.dir, videoID+".txt"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: no transcript file for %s", ErrNoCaptions, videoID)
	}
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var segments []models.Segment
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		segments = append(segments, models.Segment{Text: scanner.Text()})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return segments, nil
}

// FetchMetadata reads <dir>/<videoID>.json.
func (p *FileProvider) FetchMetadata(_ context.Context, videoURL string) (*models.SourceMetadata, error) {
	id, ok := source.DeriveVideoID(videoURL)
	if !ok {
		return nil, fmt.Errorf("no video ID in %q", videoURL)
	}

	data, err := os.ReadFile(filepath.Join(p.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return metadataFromMap(raw), nil
}

// metadataFromMap accepts both our own field names and the channel/uploader
// keys used by common downloader dumps.
func metadataFromMap(raw map[string]any) *models.SourceMetadata {
	meta := &models.SourceMetadata{Extra: raw}
	meta.Title = firstString(raw, "title")
	meta.Author = firstString(raw, "author", "channel", "author_name", "uploader")
	return meta
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
