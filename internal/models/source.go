// Package models defines the data structures shared by the quizdeck pipeline.
package models

// InputKind distinguishes video transcripts from pasted text.
type InputKind string

const (
	InputVideo InputKind = "video"
	InputText  InputKind = "text"
)

// Source identifies one unit of input. The ID is the join key for every
// artifact a run writes (transcript, metadata, raw response, quiz, document).
type Source struct {
	ID   string    `json:"source_id"`
	Kind InputKind `json:"input_type"`
	// URL is set for video sources only.
	URL string `json:"url,omitempty"`
}

// IsVideo reports whether the source came from a video URL.
func (s Source) IsVideo() bool {
	return s.Kind == InputVideo
}

// SourceMetadata is the optional title/author pair known for video sources.
// Extra keeps any additional provider fields so the persisted file stays
// faithful to what the provider returned.
type SourceMetadata struct {
	Title  string         `json:"title"`
	Author string         `json:"author"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// HasDeckName reports whether both parts of an author::title deck are known.
func (m *SourceMetadata) HasDeckName() bool {
	return m != nil && m.Title != "" && m.Author != ""
}
