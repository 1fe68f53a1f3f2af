package reasoning

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashureev/symptom-intake/internal/domain"
)

const notReported = "Not reported."

// Scripted walks the schema checklist in order and finishes once every
// question has been answered. Its compiler fills each field from the
// answers to the questions that target it. It needs no network.
type Scripted struct {
	schema *Schema
}

// NewScripted creates a scripted policy and compiler. A nil schema uses
// DefaultSchema.
func NewScripted(schema *Schema) *Scripted {
	if schema == nil {
		schema = DefaultSchema()
	}
	return &Scripted{schema: schema}
}

// Decide implements the interview policy.
func (s *Scripted) Decide(_ context.Context, transcript []domain.Message) (domain.Decision, error) {
	turns := domain.CountUserTurns(transcript)
	switch {
	case turns == 0:
		return domain.Decision{}, fmt.Errorf("scripted policy: transcript has no user message")
	case turns == 1:
		return domain.Ask(s.schema.OpeningQuestion(firstUserText(transcript))), nil
	case turns-2 < len(s.schema.Checklist):
		return domain.Ask(s.schema.Checklist[turns-2].Text), nil
	default:
		return domain.Finish(), nil
	}
}

// Compile implements the report compiler. It is a pure function of transcript.
func (s *Scripted) Compile(_ context.Context, transcript []domain.Message) (domain.StructuredReport, error) {
	symptom := strings.TrimSpace(firstUserText(transcript))
	if symptom == "" {
		return domain.StructuredReport{}, fmt.Errorf("scripted compiler: transcript has no user message")
	}

	answers := make(map[string][]string)
	var pending []string
	agentTurns := 0
	firstUser := true
	for _, m := range transcript {
		switch m.Role {
		case domain.RoleAgent:
			pending = s.fieldsForQuestion(agentTurns)
			agentTurns++
		case domain.RoleUser:
			if firstUser {
				firstUser = false
				continue
			}
			text := strings.TrimSpace(m.Text)
			for _, key := range pending {
				answers[key] = append(answers[key], text)
			}
			pending = nil
		}
	}

	report := domain.StructuredReport{
		Title:      s.schema.ReportTitle(symptom),
		Disclaimer: s.schema.Disclaimer,
		Sections:   make([]domain.ReportSection, 0, len(s.schema.Fields)),
	}
	for _, f := range s.schema.Fields {
		var content string
		switch f.Key {
		case "chief_complaint":
			content = "Patient reports: " + symptom
		case "summary":
			content = s.summarize(symptom, answers)
		default:
			content = strings.Join(answers[f.Key], " ")
		}
		if content == "" {
			content = notReported
		}
		report.Sections = append(report.Sections, domain.ReportSection{Key: f.Key, Heading: f.Heading, Content: content})
	}
	return report, nil
}

// fieldsForQuestion returns the fields informed by the n-th agent question.
func (s *Scripted) fieldsForQuestion(n int) []string {
	if n == 0 {
		return s.schema.Opening.Fields
	}
	if n-1 < len(s.schema.Checklist) {
		return s.schema.Checklist[n-1].Fields
	}
	return nil
}

func (s *Scripted) summarize(symptom string, answers map[string][]string) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Patient presents with %s.", strings.TrimSuffix(symptom, ".")))
	for _, f := range s.schema.Fields {
		if vals := answers[f.Key]; len(vals) > 0 && f.Key != "summary" {
			parts = append(parts, fmt.Sprintf("%s: %s", f.Heading, strings.Join(vals, " ")))
		}
	}
	return strings.Join(parts, " ")
}
