// Package export renders study notes as downloadable Markdown and PDF
// documents.
package export

import (
	"fmt"
	"strings"

	"kensho/pkg/domain"
)

// Content types served with exported documents.
const (
	MarkdownContentType = "text/markdown; charset=UTF-8"
	PDFContentType      = "application/pdf"
)

// Error wraps a failure while rendering an export.
type Error struct {
	Format string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("generate %s export: %v", e.Format, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// BuildMarkdown renders the note as a Markdown document.
func BuildMarkdown(note domain.StudyNote) []byte {
	var lines []string
	title := note.Title
	if title == "" {
		title = "Study Note"
	}
	lines = append(lines, "# "+title, "")
	if note.Summary != "" {
		lines = append(lines, "## Summary", note.Summary, "")
	}
	if len(note.KeyConcepts) > 0 {
		lines = append(lines, "## Key Concepts")
		for _, kc := range note.KeyConcepts {
			lines = append(lines, fmt.Sprintf("- **%s**: %s", kc.Concept, kc.Explanation))
		}
		lines = append(lines, "")
	}
	if len(note.StudyQuestions) > 0 {
		lines = append(lines, "## Study Questions")
		for _, q := range note.StudyQuestions {
			lines = append(lines, "- "+q)
		}
		lines = append(lines, "")
	}
	if note.Transcript != "" {
		lines = append(lines, "## Transcript", "```", note.Transcript, "```", "")
	}
	lines = append(lines, "---")
	lines = append(lines, "**Source**: "+capitalize(string(note.SourceType)))
	if !note.CreatedAt.IsZero() {
		lines = append(lines, "**Created**: "+note.CreatedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	if note.DifficultyLevel != "" {
		lines = append(lines, "**Difficulty**: "+capitalize(string(note.DifficultyLevel)))
	}
	lines = append(lines, "**Estimated Study Time**: "+FormatStudyTime(note.EstimatedStudyTime))
	return []byte(strings.Join(lines, "\n") + "\n")
}

// Filename derives a slugged download name from the note title.
func Filename(note domain.StudyNote, ext string) string {
	base := slug(note.Title)
	if base == "" {
		base = "study-note"
	}
	return base + "." + strings.TrimPrefix(ext, ".")
}

// FormatStudyTime renders minutes the way the notes display them:
// "45 minutes", "1 hour 30 minutes", "2 hours".
func FormatStudyTime(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return fmt.Sprintf("%d minutes", minutes)
	}
	hours := minutes / 60
	rem := minutes % 60
	out := fmt.Sprintf("%d hour", hours)
	if hours > 1 {
		out += "s"
	}
	if rem > 0 {
		out += fmt.Sprintf(" %d minutes", rem)
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func slug(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
