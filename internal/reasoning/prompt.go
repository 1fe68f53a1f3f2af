package reasoning

import (
	"fmt"
	"strings"

	"github.com/ashureev/symptom-intake/internal/domain"
)

const interviewerSystemPrompt = `You are a careful, empathetic medical intake assistant. You are not a physician.
You interview a patient about a single symptom by asking one open-ended question at a time.
You never offer a diagnosis, an interpretation or medical advice.`

const compilerSystemPrompt = `You are a clinical documentation specialist. You turn intake interview
transcripts into concise, factual, non-diagnostic reports for a clinician.
You only record what the patient said. You never add diagnostic opinions.`

func renderTranscript(transcript []domain.Message) string {
	var b strings.Builder
	for _, m := range transcript {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderDecidePrompt(s *Schema, transcript []domain.Message) string {
	var b strings.Builder
	b.WriteString("Decide the next step of this symptom intake interview.\n\n")
	b.WriteString("Topics to cover, in order:\n")
	fmt.Fprintf(&b, "- %s\n", s.OpeningQuestion(firstUserText(transcript)))
	for _, t := range s.Topics() {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	b.WriteString("\nConversation so far:\n---\n")
	b.WriteString(renderTranscript(transcript))
	b.WriteString("\n---\n\n")
	b.WriteString(`If any topic above has not been answered yet, ask about the next one as a single question.
When every topic has been answered, finish the interview.
Reply with ONLY a JSON object, no markdown:
{"complete": false, "question": "<the next question>"}
or
{"complete": true}`)
	return b.String()
}

func renderCompilePrompt(s *Schema, transcript []domain.Message) string {
	var b strings.Builder
	b.WriteString("Write a structured, non-diagnostic symptom report from this interview.\n")
	b.WriteString("Only include information stated in the conversation. Write \"Not reported\" for anything the patient did not mention.\n\n")
	b.WriteString("Conversation:\n---\n")
	b.WriteString(renderTranscript(transcript))
	b.WriteString("\n---\n\n")
	b.WriteString("The report must contain exactly these sections:\n")
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "- key %q, heading %q: %s\n", f.Key, f.Heading, f.Description)
	}
	fmt.Fprintf(&b, `
Reply with ONLY a JSON object, no markdown:
{
  "report_title": %q,
  "safety_disclaimer": %q,
  "sections": [{"key": "<key>", "heading": "<heading>", "content": "<text>"}]
}`, s.ReportTitle(firstUserText(transcript)), s.Disclaimer)
	return b.String()
}

func firstUserText(transcript []domain.Message) string {
	for _, m := range transcript {
		if m.Role == domain.RoleUser {
			return m.Text
		}
	}
	return ""
}
