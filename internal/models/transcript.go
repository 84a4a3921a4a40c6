package models

import "strings"

// Segment is one timed caption fragment. Start and Duration are seconds.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Transcript is an ordered list of segments. Pasted text is a single segment.
type Transcript struct {
	Segments []Segment `json:"segments"`
}

// TextTranscript wraps freeform text as a one-segment transcript.
func TextTranscript(text string) Transcript {
	return Transcript{Segments: []Segment{{Text: text}}}
}

// Text joins all segments with newlines, in order. No segment is dropped,
// including blank ones, so line numbers map back to segments.
func (t Transcript) Text() string {
	parts := make([]string, len(t.Segments))
	for i, s := range t.Segments {
		parts[i] = s.Text
	}
	return strings.Join(parts, "\n")
}

// IsEmpty reports whether the transcript carries no non-blank text.
func (t Transcript) IsEmpty() bool {
	for _, s := range t.Segments {
		if strings.TrimSpace(s.Text) != "" {
			return false
		}
	}
	return true
}
