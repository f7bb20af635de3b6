package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secpipe-io/secpipe/pkg/shared/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Backend.BaseURL = server.URL
	cfg.Backend.Model = "test-model"
	cfg.Backend.APIKeyEnv = "SECPIPE_TEST_API_KEY"
	cfg.Backend.StageTimeout = 5 * time.Second
	return NewClient(cfg, hclog.NewNullLogger())
}

func completion(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	}
}

func TestRespondDecodesEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])

		json.NewEncoder(w).Encode(completion(`{"narration": ["scanning"], "structured": {"code_type": "script"}, "handoff": "next"}`))
	})

	reply, err := client.Respond(context.Background(), Request{
		Stage:        "Triage Agent",
		Instructions: "classify the code",
		Context:      "x = 1",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"scanning"}, reply.Narration)
	assert.Equal(t, "next", reply.Handoff)
	assert.JSONEq(t, `{"code_type": "script"}`, string(reply.Structured))
}

func TestRespondFreeTextIsNotFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completion("plain prose, no JSON here"))
	})

	reply, err := client.Respond(context.Background(), Request{Stage: "Code Review Agent"})
	require.NoError(t, err)
	assert.NotEmpty(t, reply.Narration)
	assert.Empty(t, reply.Structured)
}

func TestRespondEmptyCompletionIsFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	_, err := client.Respond(context.Background(), Request{Stage: "Triage Agent"})
	assert.Error(t, err)
}

func TestRespondHTTPErrorIsFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "model overloaded"}})
	})

	_, err := client.Respond(context.Background(), Request{Stage: "Red Team Agent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}
