// Package output renders validated quizzes into printable documents and
// flashcard decks.
package output

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/raphaelgruber/quizdeck/internal/artifact"
)

// BlockKind is the layout role of a Block.
type BlockKind int

const (
	BlockTitle BlockKind = iota
	BlockParagraph
	BlockSpacer
	BlockPageBreak
)

// Text styles understood by the document builder.
const (
	StyleNormal = ""
	StyleItalic = "I"
	StyleBold   = "B"
)

// Block is one layout element. Height is only meaningful for spacers and is
// expressed in points.
type Block struct {
	Kind   BlockKind
	Text   string
	Style  string
	Height float64
}

// DocumentBuilder lays out blocks and writes the finished document to path.
type DocumentBuilder interface {
	Build(blocks []Block, path string) error
}

// PDFBuilder renders blocks to an A4 PDF with the core Helvetica font.
type PDFBuilder struct {
	Title  string
	Author string
}

// Compile-time check that PDFBuilder implements DocumentBuilder.
var _ DocumentBuilder = (*PDFBuilder)(nil)

// NewPDFBuilder creates a PDF builder with default document properties.
func NewPDFBuilder() *PDFBuilder {
	return &PDFBuilder{Title: "Open-Ended Quiz", Author: "quizdeck"}
}

const (
	titleSize     = 18.0
	titleLine     = 24.0
	paragraphSize = 11.0
	paragraphLine = 15.0
	pageMargin    = 56.0
)

// Build writes the blocks as a PDF. The file is only replaced once the whole
// document rendered without error.
func (b *PDFBuilder) Build(blocks []Block, path string) error {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle(b.Title, true)
	pdf.SetAuthor(b.Author, true)

	// Core fonts are cp1252; quiz text is UTF-8.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()
	for _, block := range blocks {
		switch block.Kind {
		case BlockTitle:
			pdf.SetFont("Helvetica", "B", titleSize)
			pdf.MultiCell(0, titleLine, tr(block.Text), "", "C", false)
			pdf.Ln(titleLine / 2)
		case BlockParagraph:
			pdf.SetFont("Helvetica", pdfStyle(block.Style), paragraphSize)
			pdf.MultiCell(0, paragraphLine, tr(block.Text), "", "L", false)
		case BlockSpacer:
			pdf.Ln(block.Height)
		case BlockPageBreak:
			pdf.AddPage()
		default:
			return fmt.Errorf("unknown block kind %d", block.Kind)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := artifact.WriteFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func pdfStyle(style string) string {
	switch strings.ToUpper(style) {
	case StyleItalic, StyleBold, "BI", "IB":
		return strings.ToUpper(style)
	default:
		return ""
	}
}
