package client

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkazancev/comfyui-go/workflow"
)

// scriptedSource plays back a fixed event sequence, then returns finalErr.
type scriptedSource struct {
	events   []Event
	finalErr error
}

func (s *scriptedSource) NextEvent() (Event, error) {
	if len(s.events) == 0 {
		if s.finalErr == nil {
			return nil, io.EOF
		}
		return nil, s.finalErr
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func strPtr(s string) *string { return &s }

func testGraph(ids ...string) *workflow.Graph {
	g := workflow.NewGraph()
	for _, id := range ids {
		g.AddNode(id, &workflow.Node{ClassType: "KSampler", Inputs: map[string]any{}})
	}
	return g
}

func TestTrackerCompletesOnTerminalExecuting(t *testing.T) {
	var progress [][2]int
	var counts [][2]int
	tracker := NewTracker("job-1", testGraph("a", "b", "c", "d"), &TrackerCallbacks{
		OnSamplerProgress: func(value, max int) { progress = append(progress, [2]int{value, max}) },
		OnNodeDone:        func(done, total int) { counts = append(counts, [2]int{done, total}) },
	}, nil)
	assert.Equal(t, StateSubmitted, tracker.State())

	src := &scriptedSource{events: []Event{
		ProgressEvent{Value: 1, Max: 20},
		CachedEvent{NodeIDs: []string{"a", "b"}, PromptID: "job-1"},
		ExecutingEvent{NodeID: strPtr("c"), PromptID: "job-1"},
		ExecutingEvent{NodeID: nil, PromptID: "job-1"},
	}}
	require.NoError(t, tracker.Track(context.Background(), src))

	assert.Equal(t, StateCompleted, tracker.State())
	assert.Equal(t, 3, tracker.DoneCount())
	assert.Equal(t, [][2]int{{1, 20}}, progress)
	assert.Equal(t, [][2]int{{1, 4}, {2, 4}, {3, 4}}, counts)
}

func TestTrackerIgnoresForeignJob(t *testing.T) {
	tracker := NewTracker("job-1", testGraph("a"), nil, nil)
	src := &scriptedSource{
		events: []Event{
			// A terminal event for someone else's job must not complete ours,
			// and its executing nodes must not count as ours.
			ExecutingEvent{NodeID: strPtr("x"), PromptID: "job-2"},
			ExecutingEvent{NodeID: nil, PromptID: "job-2"},
		},
		finalErr: errors.New("connection reset"),
	}
	err := tracker.Track(context.Background(), src)
	require.Error(t, err)
	assert.Equal(t, StateFailed, tracker.State())
	assert.Equal(t, 0, tracker.DoneCount())
}

func TestTrackerFailsWhenStreamEnds(t *testing.T) {
	tracker := NewTracker("job-1", testGraph("a", "b"), nil, nil)
	src := &scriptedSource{events: []Event{
		CachedEvent{NodeIDs: []string{"a"}, PromptID: "job-1"},
	}}
	err := tracker.Track(context.Background(), src)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, StateFailed, tracker.State())
	assert.Equal(t, 1, tracker.DoneCount())
}

func TestTrackerFailsOnCancelledContext(t *testing.T) {
	tracker := NewTracker("job-1", testGraph("a"), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tracker.Track(ctx, &scriptedSource{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, tracker.State())
}

func TestTrackerDuplicateNodesCountOnce(t *testing.T) {
	var counts [][2]int
	tracker := NewTracker("job-1", testGraph("a", "b"), &TrackerCallbacks{
		OnNodeDone: func(done, total int) { counts = append(counts, [2]int{done, total}) },
	}, nil)

	src := &scriptedSource{events: []Event{
		CachedEvent{NodeIDs: []string{"a", "a"}, PromptID: "job-1"},
		ExecutingEvent{NodeID: strPtr("a"), PromptID: "job-1"},
		ExecutingEvent{NodeID: nil, PromptID: "job-1"},
	}}
	require.NoError(t, tracker.Track(context.Background(), src))
	assert.Equal(t, [][2]int{{1, 2}}, counts)
	assert.Equal(t, 1, tracker.DoneCount())
}

func TestTrackerZeroNodeGraphCompletesOnlyOnTerminalEvent(t *testing.T) {
	// Done-count can never reach a total of zero "early"; completion still
	// waits for the terminal executing event.
	tracker := NewTracker("job-1", workflow.NewGraph(), nil, nil)
	src := &scriptedSource{events: []Event{
		ProgressEvent{Value: 1, Max: 1},
		ExecutingEvent{NodeID: nil, PromptID: "job-1"},
	}}
	require.NoError(t, tracker.Track(context.Background(), src))
	assert.Equal(t, StateCompleted, tracker.State())
	assert.Equal(t, 0, tracker.DoneCount())
}

func TestJobStateString(t *testing.T) {
	assert.Equal(t, "submitted", StateSubmitted.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "failed", StateFailed.String())
}
