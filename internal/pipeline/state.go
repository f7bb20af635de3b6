package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/secpipe-io/secpipe/internal/findings"
	"github.com/secpipe-io/secpipe/internal/report"
)

// StageStatus is the per-stage lifecycle state.
type StageStatus string

const (
	StagePending  StageStatus = "pending"
	StageRunning  StageStatus = "running"
	StageComplete StageStatus = "complete"
	StageFailed   StageStatus = "failed"
)

// complete and failed are terminal.
var allowedStageTransitions = map[StageStatus]map[StageStatus]struct{}{
	StagePending: {
		StageRunning: {},
	},
	StageRunning: {
		StageComplete: {},
		StageFailed:   {},
	},
	StageComplete: {},
	StageFailed:   {},
}

// ValidateStageTransition reports whether from -> to is a legal stage
// status transition.
func ValidateStageTransition(from, to StageStatus) error {
	targets, ok := allowedStageTransitions[from]
	if !ok {
		return fmt.Errorf("invalid stage status: %q", from)
	}
	if _, ok := targets[to]; !ok {
		return fmt.Errorf("invalid stage transition: %s -> %s", from, to)
	}
	return nil
}

// StageState tracks one stage of a run. It is mutated only by the
// stage runner executing that stage.
type StageState struct {
	Name      string
	Ordinal   int // 1-based position in the fixed stage order
	Status    StageStatus
	Narration []string
	ToolCalls []string
	Findings  []findings.Finding
	StartedAt time.Time
	Elapsed   time.Duration
	Handoff   string
	Output    StageOutput
}

func (s *StageState) transition(to StageStatus) error {
	if err := ValidateStageTransition(s.Status, to); err != nil {
		return fmt.Errorf("stage %q: %w", s.Name, err)
	}
	s.Status = to
	return nil
}

// RunPhase is the run-level lifecycle state.
type RunPhase string

const (
	RunCreated     RunPhase = "created"
	RunGateChecked RunPhase = "gate_checked"
	RunRunning     RunPhase = "running"
	RunCompleted   RunPhase = "completed"
	RunFailed      RunPhase = "failed"
)

// Run is one end-to-end pipeline execution. It is owned exclusively
// by the orchestrator goroutine handling the request; runs share no
// mutable state.
type Run struct {
	ID     string
	Code   string
	Phase  RunPhase
	Stages []*StageState
	Result *report.Report
	Err    error
}

func newRun(code string) *Run {
	run := &Run{
		ID:    uuid.NewString(),
		Code:  code,
		Phase: RunGateChecked,
	}
	for i, spec := range stageSpecs {
		run.Stages = append(run.Stages, &StageState{
			Name:    spec.Name,
			Ordinal: i + 1,
			Status:  StagePending,
		})
	}
	return run
}

// stageState returns the state slot for a spec's ordinal.
func (r *Run) stageState(ordinal int) *StageState {
	return r.Stages[ordinal-1]
}
