// Package transcript fetches and persists transcripts and source metadata.
package transcript

import (
	"context"
	"errors"

	"github.com/raphaelgruber/quizdeck/internal/models"
)

// ErrNoCaptions is returned by providers when a video has no transcript,
// either because captions are disabled or none exist for the language.
var ErrNoCaptions = errors.New("no captions available")

// Provider fetches captions and metadata for a video.
type Provider interface {
	// Fetch returns the caption segments for a video, in playback order.
	Fetch(ctx context.Context, videoID string) ([]models.Segment, error)

	// FetchMetadata returns title and author for a video URL.
	FetchMetadata(ctx context.Context, videoURL string) (*models.SourceMetadata, error)
}
