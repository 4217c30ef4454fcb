package oracle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the wall-clock format embedded in every prompt
const TimeLayout = "2006-01-02 15:04:05 MST"

const systemPrompt = "You are a boolean rule checker. Reply with exactly one word: True or False. Do not explain."

// Prompt is the rendered oracle request
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders the context payload, the current time in loc and the
// combined rule text into a single judgement request.
func BuildPrompt(payload map[string]interface{}, ruleText string, asOf time.Time, loc *time.Location) (*Prompt, error) {
	if loc == nil {
		loc = time.UTC
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	data, err := marshalContext(payload, "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize gating context: %w", err)
	}

	var b strings.Builder
	b.WriteString("All rules must be satisfied.\n\n")
	b.WriteString("JSON data:\n")
	b.Write(data)
	b.WriteString("\n\nCurrent date and time:\n> ")
	b.WriteString(asOf.In(loc).Format(TimeLayout))
	b.WriteString("\n\nRules:\n")
	b.WriteString(ruleText)
	b.WriteString("\n\nDoes the data satisfy every rule? Answer in one word.")

	return &Prompt{System: systemPrompt, User: b.String()}, nil
}

// marshalContext serializes payload without HTML escaping, so the model and
// the injection guard see the same characters the user supplied.
func marshalContext(payload interface{}, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(payload); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
