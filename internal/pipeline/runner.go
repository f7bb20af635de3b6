package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/secpipe-io/secpipe/internal/backend"
	"github.com/secpipe-io/secpipe/internal/scanner"
)

// StageError is a fatal stage failure: the reasoning backend could
// not produce any usable output. Distinct from tool unavailability,
// which is absorbed inside the stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// runStage executes one stage: tool invocation first when the stage
// declares one, then the reasoning call, with narration and findings
// pushed to the stream as they are captured. The stage's state is
// mutated only here.
func (o *Orchestrator) runStage(ctx context.Context, run *Run, spec StageSpec, state *StageState, stream *Stream) error {
	if err := state.transition(StageRunning); err != nil {
		return &StageError{Stage: spec.Name, Err: err}
	}
	state.StartedAt = time.Now()

	stream.publish(ctx, Event{Type: EventAgentStart, Payload: AgentStartPayload{
		Agent: spec.Name,
		Step:  state.Ordinal,
		Total: TotalStages,
	}})

	fellBack := false
	if spec.UsesTool {
		fellBack = o.runStageTool(ctx, run, spec, state, stream)
	}

	reply, err := o.backend.Respond(ctx, backend.Request{
		Stage:        spec.Name,
		Instructions: spec.Instructions,
		Context:      buildStageContext(run, spec, state.Ordinal),
	})
	if err != nil {
		failErr := state.transition(StageFailed)
		if failErr != nil {
			o.logger.Error("stage state corrupted", "stage", spec.Name, "error", failErr)
		}
		return &StageError{Stage: spec.Name, Err: err}
	}

	for _, line := range reply.Narration {
		state.Narration = append(state.Narration, line)
		stream.publish(ctx, Event{Type: EventAgentThought, Payload: AgentThoughtPayload{
			Agent: spec.Name,
			Text:  line,
		}})
	}

	output := parseStageOutput(spec.Role, reply.Structured, reply.RawText)
	if spec.Role == RoleStaticAnalysis {
		output.Static = &StaticAnalysisOutput{
			Findings: state.Findings,
			FellBack: fellBack,
		}
	}
	state.Output = output
	state.Handoff = reply.Handoff
	state.Elapsed = time.Since(state.StartedAt)

	if err := state.transition(StageComplete); err != nil {
		return &StageError{Stage: spec.Name, Err: err}
	}

	stream.publish(ctx, Event{Type: EventAgentComplete, Payload: AgentCompletePayload{
		Agent:     spec.Name,
		Step:      state.Ordinal,
		ElapsedMS: state.Elapsed.Milliseconds(),
	}})

	o.logger.Info("stage complete",
		"run", run.ID,
		"stage", spec.Name,
		"step", state.Ordinal,
		"elapsed", state.Elapsed,
		"findings", len(state.Findings),
	)
	return nil
}

// runStageTool performs the stage's static-analysis invocation.
// Returns true when the tool was unavailable and the stage fell back
// to manual analysis; the fallback is recorded in narration, never
// swallowed.
func (o *Orchestrator) runStageTool(ctx context.Context, run *Run, spec StageSpec, state *StageState, stream *Stream) bool {
	toolName := o.scanner.ToolName()
	state.ToolCalls = append(state.ToolCalls, toolName)
	stream.publish(ctx, Event{Type: EventToolCalled, Payload: ToolCalledPayload{
		Agent: spec.Name,
		Tool:  toolName,
	}})

	outcome := o.scanner.Scan(ctx, run.Code)
	switch outcome.Status {
	case scanner.StatusFindings:
		state.Findings = append(state.Findings, outcome.Findings...)
		for _, finding := range outcome.Findings {
			stream.publish(ctx, Event{Type: EventFinding, Payload: finding})
		}
		o.narrate(ctx, state, spec, stream, fmt.Sprintf("%s scan finished with %d findings.", toolName, len(outcome.Findings)))
	case scanner.StatusEmpty:
		o.narrate(ctx, state, spec, stream, fmt.Sprintf("%s scan finished with no findings.", toolName))
	case scanner.StatusUnavailable:
		o.logger.Warn("static-analysis tool unavailable", "run", run.ID, "tool", toolName, "reason", outcome.Reason)
		o.narrate(ctx, state, spec, stream, fmt.Sprintf("%s was unavailable (%s); falling back to manual analysis.", toolName, outcome.Reason))
		return true
	}
	return false
}

func (o *Orchestrator) narrate(ctx context.Context, state *StageState, spec StageSpec, stream *Stream, line string) {
	state.Narration = append(state.Narration, line)
	stream.publish(ctx, Event{Type: EventAgentThought, Payload: AgentThoughtPayload{
		Agent: spec.Name,
		Text:  line,
	}})
}
