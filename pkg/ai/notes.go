package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"kensho/pkg/domain"
)

// GeneratedNotes is the structured study material produced from a transcript.
type GeneratedNotes struct {
	Summary            string              `json:"summary"`
	KeyConcepts        []domain.KeyConcept `json:"key_concepts"`
	StudyQuestions     []string            `json:"study_questions"`
	DifficultyLevel    string              `json:"difficulty_level"`
	EstimatedStudyTime int                 `json:"estimated_study_time"`
}

// NotesGenerator turns raw source text into study notes via Gemini.
type NotesGenerator struct {
	client      *GeminiClient
	model       string
	temperature float64
	maxTokens   int
}

// NewNotesGenerator builds a generator with a fixed model.
func NewNotesGenerator(client *GeminiClient, model string, temperature float64, maxTokens int) *NotesGenerator {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	if temperature <= 0 {
		temperature = 0.4
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &NotesGenerator{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Generate produces validated study notes for the given source text.
func (g *NotesGenerator) Generate(ctx context.Context, sourceType domain.SourceType, text string) (GeneratedNotes, error) {
	raw, err := g.client.GenerateJSON(ctx, g.model, buildNotesPrompt(sourceType, text), GenerationConfig{
		Temperature:     g.temperature,
		MaxOutputTokens: g.maxTokens,
		ResponseSchema:  notesSchema(),
	})
	if err != nil {
		return GeneratedNotes{}, err
	}

	var notes GeneratedNotes
	cleaned := stripCodeFence(raw)
	if err := json.Unmarshal([]byte(cleaned), &notes); err != nil {
		return GeneratedNotes{}, &InvalidJSONError{Raw: raw, Err: err}
	}
	normalizeNotes(&notes, text)
	if notes.Summary == "" {
		return GeneratedNotes{}, &InvalidJSONError{Raw: raw, Err: fmt.Errorf("missing summary")}
	}
	return notes, nil
}

func buildNotesPrompt(sourceType domain.SourceType, text string) string {
	var source string
	switch sourceType {
	case domain.SourceYouTube:
		source = "transcript of a YouTube video"
	case domain.SourceAudio:
		source = "transcript of an audio recording"
	default:
		source = "passage of learning material"
	}
	var b strings.Builder
	b.WriteString("You are an expert educator. Analyze the following ")
	b.WriteString(source)
	b.WriteString(" and produce structured study notes.\n\n")
	b.WriteString("Requirements:\n")
	b.WriteString("- summary: a thorough summary in plain prose, 2-4 paragraphs\n")
	b.WriteString("- key_concepts: the most important concepts, each with a short explanation\n")
	b.WriteString("- study_questions: 5 to 10 open-ended questions that test understanding\n")
	b.WriteString("- difficulty_level: beginner, intermediate, or advanced\n")
	b.WriteString("- estimated_study_time: minutes a student needs to study this material\n\n")
	b.WriteString("Material:\n")
	b.WriteString(text)
	return b.String()
}

func notesSchema() map[string]any {
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"summary": map[string]any{"type": "STRING"},
			"key_concepts": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type": "OBJECT",
					"properties": map[string]any{
						"concept":     map[string]any{"type": "STRING"},
						"explanation": map[string]any{"type": "STRING"},
					},
					"required": []string{"concept", "explanation"},
				},
			},
			"study_questions": map[string]any{
				"type":     "ARRAY",
				"items":    map[string]any{"type": "STRING"},
				"minItems": 5,
				"maxItems": 10,
			},
			"difficulty_level": map[string]any{
				"type": "STRING",
				"enum": []string{"beginner", "intermediate", "advanced"},
			},
			"estimated_study_time": map[string]any{"type": "INTEGER"},
		},
		"required": []string{
			"summary", "key_concepts", "study_questions",
			"difficulty_level", "estimated_study_time",
		},
	}
}

// normalizeNotes trims fields, drops empties and fills safe defaults so
// callers never see nil slices or out-of-range values.
func normalizeNotes(n *GeneratedNotes, sourceText string) {
	n.Summary = strings.TrimSpace(n.Summary)

	concepts := make([]domain.KeyConcept, 0, len(n.KeyConcepts))
	for _, kc := range n.KeyConcepts {
		kc.Concept = strings.TrimSpace(kc.Concept)
		kc.Explanation = strings.TrimSpace(kc.Explanation)
		if kc.Concept != "" {
			concepts = append(concepts, kc)
		}
	}
	n.KeyConcepts = concepts

	questions := make([]string, 0, len(n.StudyQuestions))
	for _, q := range n.StudyQuestions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	n.StudyQuestions = questions

	if !domain.ValidDifficulty(domain.Difficulty(n.DifficultyLevel)) {
		n.DifficultyLevel = string(domain.DifficultyIntermediate)
	}
	if n.EstimatedStudyTime <= 0 {
		n.EstimatedStudyTime = estimateStudyTime(sourceText)
	}
}

// estimateStudyTime approximates minutes of study from word count,
// assuming a 200 wpm reading pace and two review passes.
func estimateStudyTime(text string) int {
	words := len(strings.Fields(text))
	minutes := (words + 199) / 200 * 3
	if minutes < 5 {
		minutes = 5
	}
	return minutes
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
