package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/secpipe-io/secpipe/internal/backend"
	"github.com/secpipe-io/secpipe/internal/guardrail"
	"github.com/secpipe-io/secpipe/internal/report"
	"github.com/secpipe-io/secpipe/internal/scanner"
	"github.com/secpipe-io/secpipe/pkg/shared/config"
)

// ScanTool is the static-analysis surface the pipeline drives.
// Satisfied by scanner.Adapter; tests substitute scripted outcomes.
type ScanTool interface {
	ToolName() string
	Scan(ctx context.Context, code string) scanner.Outcome
}

// Orchestrator drives a submission through the fixed stage sequence,
// streaming events to the run's observer as they happen.
type Orchestrator struct {
	cfg     *config.Config
	logger  hclog.Logger
	backend backend.Backend
	scanner ScanTool
}

func NewOrchestrator(cfg *config.Config, logger hclog.Logger, b backend.Backend, tool ScanTool) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		logger:  logger,
		backend: b,
		scanner: tool,
	}
}

// Run gates the submission and, if accepted, starts the pipeline in
// the background. The returned stream carries every event for the
// run and is closed when the run terminates. A rejected submission
// yields a stream holding a single error event; no run is created.
func (o *Orchestrator) Run(ctx context.Context, code string) *Stream {
	stream := newStream()

	if err := guardrail.Evaluate(guardrail.Payload{Code: code}); err != nil {
		var rej *guardrail.RejectionError
		payload := ErrorPayload{Message: err.Error()}
		if errors.As(err, &rej) {
			payload.Reason = rej.Reason
		}
		o.logger.Warn("submission rejected", "reason", payload.Reason)
		stream.publishTerminal(Event{Type: EventError, Payload: payload})
		stream.close()
		return stream
	}

	run := newRun(code)
	o.logger.Info("analysis started", "run", run.ID, "bytes", len(code))

	go o.execute(ctx, run, stream)
	return stream
}

// execute walks the stage sequence in order, fail-stop. The stream is
// always closed on return.
func (o *Orchestrator) execute(ctx context.Context, run *Run, stream *Stream) {
	defer stream.close()

	run.Phase = RunRunning
	for i, spec := range stageSpecs {
		if err := ctx.Err(); err != nil {
			o.failRun(run, stream, fmt.Errorf("analysis cancelled: %w", err))
			return
		}

		state := run.stageState(i + 1)
		if err := o.runStage(ctx, run, spec, state, stream); err != nil {
			o.failRun(run, stream, err)
			return
		}

		if i < len(stageSpecs)-1 {
			next := stageSpecs[i+1]
			stream.publish(ctx, Event{Type: EventHandoff, Payload: HandoffPayload{
				From:    spec.Name,
				To:      next.Name,
				Summary: handoffSummary(state, next),
			}})
		}
	}

	result, err := o.assembleReport(run)
	if err != nil {
		o.failRun(run, stream, fmt.Errorf("report assembly: %w", err))
		return
	}

	run.Result = result
	run.Phase = RunCompleted
	o.logger.Info("analysis complete", "run", run.ID, "issues", len(result.Issues))
	stream.publish(ctx, Event{Type: EventAnalysisComplete, Payload: result})
}

// failRun records the terminal error and emits it. Findings are
// streamed at capture time, so everything the run produced precedes
// the error event.
func (o *Orchestrator) failRun(run *Run, stream *Stream, err error) {
	run.Phase = RunFailed
	run.Err = err
	o.logger.Error("analysis failed", "run", run.ID, "error", err)
	stream.publishTerminal(Event{Type: EventError, Payload: ErrorPayload{Message: err.Error()}})
}

// assembleReport folds every stage's structured output into the
// final report. Missing or degraded synthesizer output is handled by
// the report builder, never fatal on its own.
func (o *Orchestrator) assembleReport(run *Run) (*report.Report, error) {
	input := report.AggregateInput{}

	for _, state := range run.Stages {
		input.Narration = append(input.Narration, state.Narration...)
		out := state.Output
		switch {
		case out.Triage != nil:
			input.CodeType = out.Triage.CodeType
			input.RiskAreas = out.Triage.RiskAreas
		case out.RedTeam != nil:
			input.ExploitScenarios = append(input.ExploitScenarios, out.RedTeam.Scenarios...)
		case out.BlueTeam != nil:
			input.RemediationPriority = append(input.RemediationPriority, out.BlueTeam.RemediationPriority...)
		case out.Synthesis != nil:
			input.SynthStructured = out.Synthesis.Structured
			input.SynthFreeText = out.Synthesis.FreeText
		}
	}

	result := report.Build(input)
	if err := report.Validate(result); err != nil {
		return nil, err
	}
	return result, nil
}

// Analyze runs the pipeline to completion, draining the stream, and
// returns the final report. Intended for callers that do not observe
// events, such as the one-shot CLI path.
func (o *Orchestrator) Analyze(ctx context.Context, code string) (*report.Report, error) {
	stream := o.Run(ctx, code)

	var result *report.Report
	var runErr error
	for event := range stream.Events() {
		switch event.Type {
		case EventAnalysisComplete:
			if r, ok := event.Payload.(*report.Report); ok {
				result = r
			}
		case EventError:
			if p, ok := event.Payload.(ErrorPayload); ok {
				runErr = errors.New(p.Message)
			}
		}
	}
	if runErr != nil {
		return nil, runErr
	}
	if result == nil {
		return nil, errors.New("analysis ended without a report")
	}
	return result, nil
}
