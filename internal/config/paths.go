package config

import "path/filepath"

// Paths is the on-disk artifact layout. Every artifact is keyed by source ID,
// so concurrent runs for different sources never touch the same file.
type Paths struct {
	Root string
}

// NewPaths creates the layout rooted at dataDir.
func NewPaths(dataDir string) Paths {
	return Paths{Root: dataDir}
}

// TranscriptsDir holds raw/transcripts/<id>.txt.
func (p Paths) TranscriptsDir() string {
	return filepath.Join(p.Root, "raw", "transcripts")
}

// MetadataDir holds intermediate/metadata/<id>.json.
func (p Paths) MetadataDir() string {
	return filepath.Join(p.Root, "intermediate", "metadata")
}

// RawResponsesDir holds raw/openai_responses/<id>.json.
func (p Paths) RawResponsesDir() string {
	return filepath.Join(p.Root, "raw", "openai_responses")
}

// ProcessedDir holds processed/<id>.json.
func (p Paths) ProcessedDir() string {
	return filepath.Join(p.Root, "processed")
}

// DocumentsDir holds processed/pdf_ready/<id>.pdf.
func (p Paths) DocumentsDir() string {
	return filepath.Join(p.Root, "processed", "pdf_ready")
}

func (p Paths) Transcript(sourceID string) string {
	return filepath.Join(p.TranscriptsDir(), sourceID+".txt")
}

func (p Paths) Metadata(sourceID string) string {
	return filepath.Join(p.MetadataDir(), sourceID+".json")
}

func (p Paths) RawResponse(sourceID string) string {
	return filepath.Join(p.RawResponsesDir(), sourceID+".json")
}

func (p Paths) Quiz(sourceID string) string {
	return filepath.Join(p.ProcessedDir(), sourceID+".json")
}

func (p Paths) Document(sourceID string) string {
	return filepath.Join(p.DocumentsDir(), sourceID+".pdf")
}
