package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStageTransition(t *testing.T) {
	cases := []struct {
		name string
		from StageStatus
		to   StageStatus
		ok   bool
	}{
		{"pending to running", StagePending, StageRunning, true},
		{"running to complete", StageRunning, StageComplete, true},
		{"running to failed", StageRunning, StageFailed, true},
		{"pending to complete skips running", StagePending, StageComplete, false},
		{"pending to failed skips running", StagePending, StageFailed, false},
		{"complete is terminal", StageComplete, StageRunning, false},
		{"failed is terminal", StageFailed, StageRunning, false},
		{"no self loop", StageRunning, StageRunning, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateStageTransition(tc.from, tc.to)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewRunStages(t *testing.T) {
	run := newRun("print('hi')")

	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunGateChecked, run.Phase)
	require.Len(t, run.Stages, TotalStages)

	for i, state := range run.Stages {
		assert.Equal(t, i+1, state.Ordinal)
		assert.Equal(t, StagePending, state.Status)
		assert.Equal(t, stageSpecs[i].Name, state.Name)
	}
	assert.Same(t, run.Stages[2], run.stageState(3))
}

func TestStreamCloseAfterPublish(t *testing.T) {
	stream := newStream()

	require.True(t, stream.publish(context.Background(), Event{Type: EventAgentStart}))
	stream.close()
	stream.close() // idempotent

	event, ok := <-stream.Events()
	require.True(t, ok)
	assert.Equal(t, EventAgentStart, event.Type)

	_, ok = <-stream.Events()
	assert.False(t, ok)
}

// A slow observer that is still draining must receive the terminal
// event even when the buffer is full at publish time.
func TestStreamPublishTerminalSlowObserver(t *testing.T) {
	stream := newStream()
	for i := 0; i < streamBuffer; i++ {
		require.True(t, stream.publish(context.Background(), Event{Type: EventAgentThought}))
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		<-stream.Events()
	}()

	stream.publishTerminal(Event{Type: EventError})
	stream.close()

	var last Event
	for event := range stream.Events() {
		last = event
	}
	assert.Equal(t, EventError, last.Type)
}

// A departed observer must not block the publisher.
func TestStreamPublishCancelledSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream := newStream()
	for i := 0; i < streamBuffer; i++ {
		require.True(t, stream.publish(context.Background(), Event{Type: EventAgentThought}))
	}
	assert.False(t, stream.publish(ctx, Event{Type: EventAgentThought}))
}
