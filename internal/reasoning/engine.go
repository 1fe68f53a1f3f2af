package reasoning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/symptom-intake/internal/domain"
	"github.com/ashureev/symptom-intake/internal/llm"
)

// Observer receives one callback per completion call.
type Observer interface {
	ObserveReasoning(op string, d time.Duration, promptTokens int, err error)
}

// EngineConfig tunes the LLM-backed engine.
type EngineConfig struct {
	MaxTokens int
	Observer  Observer
}

// Engine implements the interview policy and report compiler on an LLM.
type Engine struct {
	llm       llm.Completer
	schema    *Schema
	maxTokens int
	observer  Observer
}

// NewEngine creates an engine. A nil schema uses DefaultSchema.
func NewEngine(c llm.Completer, schema *Schema, cfg EngineConfig) *Engine {
	if schema == nil {
		schema = DefaultSchema()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	return &Engine{llm: c, schema: schema, maxTokens: cfg.MaxTokens, observer: cfg.Observer}
}

type decideReply struct {
	Complete bool   `json:"complete"`
	Question string `json:"question"`
}

// Decide asks the model for the next question or a completion signal.
func (e *Engine) Decide(ctx context.Context, transcript []domain.Message) (domain.Decision, error) {
	reply, err := e.complete(ctx, "decide", llm.Request{
		System:      interviewerSystemPrompt,
		Prompt:      renderDecidePrompt(e.schema, transcript),
		JSON:        true,
		MaxTokens:   e.maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return domain.Decision{}, err
	}

	var d decideReply
	if err := decodeJSONObject(reply, &d); err != nil {
		return domain.Decision{}, fmt.Errorf("decision: %w", err)
	}
	if d.Complete {
		return domain.Finish(), nil
	}
	q := strings.TrimSpace(d.Question)
	if q == "" {
		return domain.Decision{}, fmt.Errorf("decision: continue without a question")
	}
	return domain.Ask(q), nil
}

type compileReply struct {
	Title      string `json:"report_title"`
	Disclaimer string `json:"safety_disclaimer"`
	Sections   []struct {
		Key     string `json:"key"`
		Heading string `json:"heading"`
		Content string `json:"content"`
	} `json:"sections"`
}

// Compile asks the model for the report and validates it against the schema.
// Every schema field must be present with content; otherwise the whole
// report is rejected.
func (e *Engine) Compile(ctx context.Context, transcript []domain.Message) (domain.StructuredReport, error) {
	reply, err := e.complete(ctx, "compile", llm.Request{
		System:      compilerSystemPrompt,
		Prompt:      renderCompilePrompt(e.schema, transcript),
		JSON:        true,
		MaxTokens:   e.maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return domain.StructuredReport{}, err
	}

	var r compileReply
	if err := decodeJSONObject(reply, &r); err != nil {
		return domain.StructuredReport{}, fmt.Errorf("report: %w", err)
	}

	byKey := make(map[string]string, len(r.Sections))
	for _, sec := range r.Sections {
		key := e.resolveKey(sec.Key, sec.Heading)
		if key == "" {
			continue
		}
		if content := strings.TrimSpace(sec.Content); content != "" {
			byKey[key] = content
		}
	}

	report := domain.StructuredReport{
		Title:      strings.TrimSpace(r.Title),
		Disclaimer: e.schema.Disclaimer,
		Sections:   make([]domain.ReportSection, 0, len(e.schema.Fields)),
	}
	if report.Title == "" {
		report.Title = e.schema.ReportTitle(firstUserText(transcript))
	}
	var missing []string
	for _, f := range e.schema.Fields {
		content, ok := byKey[f.Key]
		if !ok {
			missing = append(missing, f.Key)
			continue
		}
		report.Sections = append(report.Sections, domain.ReportSection{Key: f.Key, Heading: f.Heading, Content: content})
	}
	if len(missing) > 0 {
		return domain.StructuredReport{}, fmt.Errorf("report: missing fields %s", strings.Join(missing, ", "))
	}
	return report, nil
}

// resolveKey maps a returned section onto a schema key, by key first and
// heading second.
func (e *Engine) resolveKey(key, heading string) string {
	key = strings.TrimSpace(key)
	if _, ok := e.schema.Field(key); ok {
		return key
	}
	for _, f := range e.schema.Fields {
		if strings.EqualFold(strings.TrimSpace(heading), f.Heading) {
			return f.Key
		}
	}
	return ""
}

func (e *Engine) complete(ctx context.Context, op string, req llm.Request) (string, error) {
	start := time.Now()
	out, err := e.llm.Complete(ctx, req)
	if e.observer != nil {
		e.observer.ObserveReasoning(op, time.Since(start), llm.CountTokens(req.System+req.Prompt), err)
	}
	if err != nil {
		return "", fmt.Errorf("%s via %s: %w", op, e.llm.Name(), err)
	}
	return out, nil
}
