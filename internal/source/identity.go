// Package source derives stable identifiers for pipeline inputs.
package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/quizdeck/internal/models"
)

// videoIDPattern keeps IDs filesystem-safe; anything else is rejected.
var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// sourceIDPattern also admits the longer text IDs derived from hints.
var sourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,200}$`)

// maxSlugLen bounds the hint part of text IDs. Slugs are ASCII.
const maxSlugLen = 80

// textSeq guards against two IDs generated within the same second sharing a
// prefix and, in the unlikely case, a uuid fragment.
var textSeq atomic.Uint64

// DeriveVideoID extracts the video ID from one of the supported URL shapes:
//
//	https://youtu.be/<id>
//	https://www.youtube.com/watch?v=<id>
//	https://www.youtube.com/embed/<id>
//
// It returns false for anything else and never panics.
func DeriveVideoID(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}

	var id string
	switch {
	case strings.EqualFold(u.Hostname(), "youtu.be"):
		id = firstPathSegment(u.Path)
	case strings.TrimSuffix(u.Path, "/") == "/watch":
		id = u.Query().Get("v")
	case strings.HasPrefix(u.Path, "/embed/"):
		id = firstPathSegment(strings.TrimPrefix(u.Path, "/embed"))
	}

	if !videoIDPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

func firstPathSegment(p string) string {
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		p = p[:i]
	}
	return p
}

// DeriveTextID returns an ID for freeform text. A hint is slugified into
// "text_<slug>"; without a usable hint it is "text_<timestamp>_<8 hex>_<seq>",
// unique within the process.
func DeriveTextID(hint string) string {
	slug := models.Slugify(strings.TrimSpace(hint))
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	if slug != "" {
		return "text_" + slug
	}
	seq := textSeq.Add(1)
	return fmt.Sprintf("text_%s_%s_%d",
		time.Now().UTC().Format("20060102T150405"),
		uuid.New().String()[:8],
		seq,
	)
}

// ValidID reports whether id is safe to use as an artifact file name.
func ValidID(id string) bool {
	return sourceIDPattern.MatchString(id)
}

// NewVideoSource builds a video source from a URL.
func NewVideoSource(rawURL string) (models.Source, error) {
	if strings.TrimSpace(rawURL) == "" {
		return models.Source{}, fmt.Errorf("%w: video URL is empty", models.ErrInput)
	}
	id, ok := DeriveVideoID(rawURL)
	if !ok {
		return models.Source{}, fmt.Errorf("%w: no video ID in URL %q", models.ErrInput, rawURL)
	}
	return models.Source{ID: id, Kind: models.InputVideo, URL: rawURL}, nil
}

// NewTextSource builds a text source. The text itself is validated by the
// pipeline; only the identity is derived here.
func NewTextSource(hint string) models.Source {
	return models.Source{ID: DeriveTextID(hint), Kind: models.InputText}
}
