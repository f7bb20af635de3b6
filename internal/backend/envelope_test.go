package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeEnvelopeStructured(t *testing.T) {
	content := `{
  "narration": ["checking imports", "classifying entry points"],
  "structured": {"code_type": "script", "risk_areas": ["input_handling"]},
  "handoff": "passing classification downstream"
}`
	reply := DecodeEnvelope(content)

	assert.Equal(t, []string{"checking imports", "classifying entry points"}, reply.Narration)
	assert.JSONEq(t, `{"code_type": "script", "risk_areas": ["input_handling"]}`, string(reply.Structured))
	assert.Equal(t, "passing classification downstream", reply.Handoff)
}

func TestDecodeEnvelopeNarrationAsString(t *testing.T) {
	content := `{"narration": "line one\nline two", "handoff": "done"}`
	reply := DecodeEnvelope(content)

	assert.Equal(t, []string{"line one", "line two"}, reply.Narration)
	assert.Empty(t, reply.Structured)
}

func TestDecodeEnvelopeFreeTextDegrades(t *testing.T) {
	content := "The code uses eval() on raw user input.\nThat is dangerous."
	reply := DecodeEnvelope(content)

	assert.Equal(t, []string{"The code uses eval() on raw user input.", "That is dangerous."}, reply.Narration)
	assert.Empty(t, reply.Structured)
	assert.Empty(t, reply.Handoff)
	assert.Equal(t, content, reply.RawText)
}

func TestDecodeEnvelopeStripsFences(t *testing.T) {
	content := "```json\n{\"narration\": [\"a\"], \"structured\": {\"k\": 1}, \"handoff\": \"h\"}\n```"
	reply := DecodeEnvelope(content)

	assert.Equal(t, []string{"a"}, reply.Narration)
	assert.JSONEq(t, `{"k": 1}`, string(reply.Structured))
}

func TestDecodeEnvelopeNullStructured(t *testing.T) {
	reply := DecodeEnvelope(`{"narration": ["a"], "structured": null, "handoff": ""}`)
	assert.Empty(t, reply.Structured)
}
