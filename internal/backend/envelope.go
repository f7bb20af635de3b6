package backend

import (
	"encoding/json"
	"strings"
)

// envelopeInstructions is appended to every stage's system prompt so
// the model answers in a decodable shape.
const envelopeInstructions = `Respond with a single JSON object:
{
  "narration": ["short lines describing your analysis as you work"],
  "structured": { ... your structured contribution, per your role ... },
  "handoff": "one line summarizing what you pass to the next analyst"
}
Output ONLY the JSON object, no markdown fences, no commentary.`

// envelope mirrors the JSON the model is instructed to emit.
// Narration tolerates both a string and a list of strings.
type envelope struct {
	Narration  json.RawMessage `json:"narration"`
	Structured json.RawMessage `json:"structured"`
	Handoff    string          `json:"handoff"`
}

// DecodeEnvelope parses a completion into a Reply. When the content
// is not envelope JSON the whole text becomes narration: free-form
// output is degraded, never discarded.
func DecodeEnvelope(content string) Reply {
	trimmed := strings.TrimSpace(content)
	trimmed = stripFences(trimmed)

	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return Reply{
			Narration: splitNarration(content),
			RawText:   content,
		}
	}

	reply := Reply{
		Narration: decodeNarration(env.Narration),
		Handoff:   strings.TrimSpace(env.Handoff),
		RawText:   content,
	}
	if isJSONValue(env.Structured) {
		reply.Structured = env.Structured
	}
	return reply
}

func decodeNarration(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return trimLines(lines)
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return splitNarration(single)
	}
	return nil
}

func splitNarration(text string) []string {
	return trimLines(strings.Split(text, "\n"))
}

func trimLines(lines []string) []string {
	var out []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// stripFences removes a markdown code fence wrapper if the model
// added one despite the instructions.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// isJSONValue reports whether raw holds a non-null JSON value.
func isJSONValue(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null" && trimmed != "{}"
}
