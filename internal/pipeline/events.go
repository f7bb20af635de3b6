package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/secpipe-io/secpipe/internal/findings"
	"github.com/secpipe-io/secpipe/internal/report"
)

// EventType names match the wire contract consumed by observers.
type EventType string

const (
	EventAgentStart       EventType = "agent_start"
	EventAgentThought     EventType = "agent_thought"
	EventToolCalled       EventType = "tool_called"
	EventFinding          EventType = "semgrep_finding"
	EventAgentComplete    EventType = "agent_complete"
	EventHandoff          EventType = "handoff"
	EventAnalysisComplete EventType = "analysis_complete"
	EventError            EventType = "error"
)

// Event is one record on a run's stream. Payload holds the
// type-specific payload struct below.
type Event struct {
	Type    EventType
	Payload any
}

type AgentStartPayload struct {
	Agent string `json:"agent"`
	Step  int    `json:"step"`
	Total int    `json:"total"`
}

type AgentThoughtPayload struct {
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

type ToolCalledPayload struct {
	Agent string `json:"agent"`
	Tool  string `json:"tool"`
}

// FindingPayload reuses the finding wire shape directly.
type FindingPayload = findings.Finding

type AgentCompletePayload struct {
	Agent     string `json:"agent"`
	Step      int    `json:"step"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

type HandoffPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Summary string `json:"summary"`
}

type AnalysisCompletePayload = *report.Report

type ErrorPayload struct {
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

// Stream is the ordered, push-based event channel for one run. One
// subscriber drains it; it is closed exactly once, after the terminal
// event.
type Stream struct {
	ch        chan Event
	closeOnce sync.Once
}

const streamBuffer = 64

func newStream() *Stream {
	return &Stream{ch: make(chan Event, streamBuffer)}
}

// Events returns the receive side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// publish delivers an event in order. It gives up when the
// subscriber's context is gone so a vanished observer cannot wedge
// the producer.
func (s *Stream) publish(ctx context.Context, event Event) bool {
	select {
	case s.ch <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// terminalPublishGrace bounds how long a terminal event waits for a
// slow observer before the stream is abandoned.
const terminalPublishGrace = 2 * time.Second

// publishTerminal delivers a final event without relying on the
// subscriber's context, which may already be cancelled. A connected
// but slow observer gets a grace period to free buffer space; only a
// truly gone observer loses the event.
func (s *Stream) publishTerminal(event Event) {
	timer := time.NewTimer(terminalPublishGrace)
	defer timer.Stop()
	select {
	case s.ch <- event:
	case <-timer.C:
	}
}

func (s *Stream) close() {
	s.closeOnce.Do(func() {
		close(s.ch)
	})
}
