// Package backend talks to the reasoning service that powers the
// analysis stages. The pipeline only depends on the Backend
// interface; the shipped implementation speaks the OpenAI-compatible
// chat completions protocol.
package backend

import (
	"context"
	"encoding/json"
)

// Request carries one stage's instructions plus the accumulated
// pipeline context.
type Request struct {
	Stage        string
	Instructions string
	Context      string
}

// Reply is a stage's raw contribution before role-specific parsing.
// Structured is empty when the backend produced free text only; that
// is recoverable downstream and not an error.
type Reply struct {
	Narration  []string
	Structured json.RawMessage
	Handoff    string
	RawText    string
}

// Backend produces a stage reply from a request. An error return is a
// fatal stage failure: the backend could not produce any usable
// output.
type Backend interface {
	Respond(ctx context.Context, req Request) (Reply, error)
}
