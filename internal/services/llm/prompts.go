package llm

import (
	"fmt"
	"strings"
)

const chatSystemPrompt = `You are a cautious health-information assistant.
You answer general questions about symptoms, self-care, and when to seek
professional help. You never diagnose, never prescribe, and you recommend
contacting a clinician or emergency services whenever symptoms sound urgent.
Keep answers short and plainly worded.`

const predictSystemPrompt = `You are a medical triage assistant. Given a
patient's symptoms, age, and gender, list the most plausible conditions with
a likelihood for each, general self-care advice, and a disclaimer that this
is not a diagnosis. Respond with JSON only, matching the schema you are
given. Use likelihood values "high", "medium", or "low".`

func buildPredictPrompt(input PredictionInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symptoms: %s\n", strings.Join(input.Symptoms, ", "))
	fmt.Fprintf(&b, "Age: %d\n", input.Age)
	gender := strings.TrimSpace(input.Gender)
	if gender == "" {
		gender = "unspecified"
	}
	fmt.Fprintf(&b, "Gender: %s\n", gender)
	b.WriteString("List plausible conditions for this patient.")
	return b.String()
}
