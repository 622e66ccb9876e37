package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"kensho/pkg/domain"
)

// pdfFonts are the built-in font families an export may request.
var pdfFonts = map[string]string{
	"helvetica": "Helvetica",
	"arial":     "Helvetica",
	"times":     "Times",
	"serif":     "Times",
	"courier":   "Courier",
	"mono":      "Courier",
}

const defaultPDFFont = "Helvetica"

// ResolveFont maps a requested font name to a built-in family, falling
// back to Helvetica for anything unknown.
func ResolveFont(name string) string {
	if f, ok := pdfFonts[strings.ToLower(strings.TrimSpace(name))]; ok {
		return f
	}
	return defaultPDFFont
}

// BuildPDF renders the note as a PDF document. The creation date is
// pinned to the note's timestamp so repeated exports are identical.
func BuildPDF(note domain.StudyNote, font string) ([]byte, error) {
	family := ResolveFont(font)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(note.CreatedAt.UTC())
	pdf.SetTitle(note.Title, true)
	pdf.SetMargins(18, 18, 18)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	title := note.Title
	if title == "" {
		title = "Study Note"
	}
	pdf.SetFont(family, "B", 18)
	pdf.MultiCell(0, 9, tr(title), "", "L", false)
	pdf.Ln(2)

	pdf.SetFont(family, "", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.MultiCell(0, 5, tr(pdfMetaLine(note)), "", "L", false)
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	section := func(heading string) {
		pdf.SetFont(family, "B", 13)
		pdf.MultiCell(0, 7, tr(heading), "", "L", false)
		pdf.Ln(1)
		pdf.SetFont(family, "", 11)
	}

	if note.Summary != "" {
		section("Summary")
		pdf.MultiCell(0, 5.5, tr(note.Summary), "", "L", false)
		pdf.Ln(4)
	}

	if len(note.KeyConcepts) > 0 {
		section("Key Concepts")
		for _, kc := range note.KeyConcepts {
			pdf.SetFont(family, "B", 11)
			pdf.MultiCell(0, 5.5, tr(kc.Concept), "", "L", false)
			pdf.SetFont(family, "", 11)
			pdf.MultiCell(0, 5.5, tr(kc.Explanation), "", "L", false)
			pdf.Ln(2)
		}
		pdf.Ln(2)
	}

	if len(note.StudyQuestions) > 0 {
		section("Study Questions")
		for i, q := range note.StudyQuestions {
			pdf.MultiCell(0, 5.5, tr(fmt.Sprintf("%d. %s", i+1, q)), "", "L", false)
			pdf.Ln(1)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &Error{Format: "pdf", Err: err}
	}
	return buf.Bytes(), nil
}

// pdfMetaLine is the grey line under the title: source, creation date,
// difficulty and study time.
func pdfMetaLine(note domain.StudyNote) string {
	return fmt.Sprintf("%s  |  Created %s  |  %s  |  %s",
		capitalize(string(note.SourceType)),
		note.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		capitalize(string(note.DifficultyLevel)),
		FormatStudyTime(note.EstimatedStudyTime))
}
