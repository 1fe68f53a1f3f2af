// Package reasoning implements the interview policy and report compiler,
// either on top of an llm.Completer or as a deterministic script.
package reasoning

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/symptom-intake/internal/domain"
)

//go:embed default_schema.yaml
var defaultSchemaYAML []byte

const symptomPlaceholder = "{symptom}"

// Field is one entry of the report.
type Field struct {
	Key         string `yaml:"key" json:"key"`
	Heading     string `yaml:"heading" json:"heading"`
	Description string `yaml:"description" json:"description"`
}

// Question is a scripted interview question and the report fields its
// answer informs.
type Question struct {
	Text   string   `yaml:"text" json:"text"`
	Fields []string `yaml:"fields" json:"fields"`
}

// Schema is a deployment's report field set and interview checklist.
type Schema struct {
	Title          string     `yaml:"title" json:"title"`
	Disclaimer     string     `yaml:"disclaimer" json:"disclaimer"`
	ClosingMessage string     `yaml:"closing_message" json:"closing_message"`
	Fields         []Field    `yaml:"fields" json:"fields"`
	Opening        Question   `yaml:"opening" json:"opening"`
	Checklist      []Question `yaml:"checklist" json:"checklist"`
}

// DefaultSchema returns the schema embedded in the binary.
func DefaultSchema() *Schema {
	s, err := ParseSchema(defaultSchemaYAML)
	if err != nil {
		panic("reasoning: invalid embedded schema: " + err.Error())
	}
	return s
}

// LoadSchema reads a schema file. An empty path returns DefaultSchema.
func LoadSchema(path string) (*Schema, error) {
	if path == "" {
		return DefaultSchema(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report schema: %w", err)
	}
	s, err := ParseSchema(data)
	if err != nil {
		return nil, fmt.Errorf("report schema %s: %w", path, err)
	}
	return s, nil
}

// ParseSchema decodes and validates YAML schema data.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if s.Disclaimer == "" {
		s.Disclaimer = domain.DefaultDisclaimer
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks field keys are present and unique and that questions
// reference known fields.
func (s *Schema) Validate() error {
	if s.Title == "" {
		return fmt.Errorf("schema title is required")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema needs at least one field")
	}
	seen := make(map[string]bool, len(s.Fields))
	for i, f := range s.Fields {
		if strings.TrimSpace(f.Key) == "" || strings.TrimSpace(f.Heading) == "" {
			return fmt.Errorf("field %d: key and heading are required", i)
		}
		if seen[f.Key] {
			return fmt.Errorf("duplicate field key %q", f.Key)
		}
		seen[f.Key] = true
	}
	if strings.TrimSpace(s.Opening.Text) == "" {
		return fmt.Errorf("opening question is required")
	}
	for _, q := range append([]Question{s.Opening}, s.Checklist...) {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("checklist question text is required")
		}
		for _, k := range q.Fields {
			if !seen[k] {
				return fmt.Errorf("question %q references unknown field %q", q.Text, k)
			}
		}
	}
	return nil
}

// Field returns the field registered under key.
func (s *Schema) Field(key string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// OpeningQuestion renders the first question for symptom.
func (s *Schema) OpeningQuestion(symptom string) string {
	return strings.ReplaceAll(s.Opening.Text, symptomPlaceholder, strings.TrimSpace(symptom))
}

// Topics lists the checklist question texts in order.
func (s *Schema) Topics() []string {
	out := make([]string, 0, len(s.Checklist))
	for _, q := range s.Checklist {
		out = append(out, q.Text)
	}
	return out
}

// ReportTitle builds the title for the interview started with symptom.
func (s *Schema) ReportTitle(symptom string) string {
	symptom = strings.TrimSpace(symptom)
	if symptom == "" {
		return s.Title
	}
	return fmt.Sprintf("%s for %s", s.Title, symptom)
}
