package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dkazancev/comfyui-go/workflow"
)

// JobState is the lifecycle position of one tracked submission.
type JobState int

const (
	StateSubmitted JobState = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s JobState) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("JobState(%d)", int(s))
	}
}

// EventSource yields execution events for a tracked job. *Channel satisfies
// it.
type EventSource interface {
	NextEvent() (Event, error)
}

// TrackerCallbacks observe tracking. All fields are optional; nil fields are
// simply not called.
type TrackerCallbacks struct {
	// OnSamplerProgress receives the raw step counter of the executing
	// sampling node.
	OnSamplerProgress func(value, max int)
	// OnNodeDone receives the running done/total node counts whenever a node
	// finishes or is served from cache. Informational only; done reaching
	// total does not finish the job.
	OnNodeDone func(done, total int)
}

// Tracker drives the state machine for one submission over one channel:
// Submitted, Running while events arrive, then Completed when the server
// reports the prompt finished, or Failed when the stream dies first.
type Tracker struct {
	jobID     string
	total     int
	done      map[string]struct{}
	state     JobState
	callbacks TrackerCallbacks
	logger    *slog.Logger
}

// NewTracker tracks the prompt id returned by Submit. The graph is the
// snapshot that was submitted; its node count becomes the total reported
// through OnNodeDone.
func NewTracker(jobID string, graph *workflow.Graph, callbacks *TrackerCallbacks, logger *slog.Logger) *Tracker {
	if callbacks == nil {
		callbacks = &TrackerCallbacks{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	total := 0
	if graph != nil {
		total = graph.Len()
	}
	return &Tracker{
		jobID:     jobID,
		total:     total,
		done:      make(map[string]struct{}),
		state:     StateSubmitted,
		callbacks: *callbacks,
		logger:    logger,
	}
}

// State reports the tracker's current lifecycle position.
func (t *Tracker) State() JobState {
	return t.state
}

// DoneCount is the number of distinct nodes observed finished so far.
func (t *Tracker) DoneCount() int {
	return len(t.done)
}

// Track consumes events from src until the job completes or the stream
// fails. It returns nil only from the Completed state; a stream error or
// cancellation while running leaves the tracker Failed and returns the
// cause, so callers can tell a failed run apart from a completed run that
// produced nothing.
func (t *Tracker) Track(ctx context.Context, src EventSource) error {
	t.state = StateRunning
	for {
		if err := ctx.Err(); err != nil {
			t.state = StateFailed
			return fmt.Errorf("tracking %s: %w", t.jobID, err)
		}
		event, err := src.NextEvent()
		if err != nil {
			t.state = StateFailed
			return fmt.Errorf("tracking %s: %w", t.jobID, err)
		}
		if t.apply(event) {
			t.state = StateCompleted
			return nil
		}
	}
}

// apply folds one event into the tracker. True means the terminal event for
// this job arrived.
func (t *Tracker) apply(event Event) bool {
	switch event := event.(type) {
	case ProgressEvent:
		t.logger.Info("sampler step", "value", event.Value, "max", event.Max)
		if t.callbacks.OnSamplerProgress != nil {
			t.callbacks.OnSamplerProgress(event.Value, event.Max)
		}
	case CachedEvent:
		for _, id := range event.NodeIDs {
			t.markDone(id)
		}
	case ExecutingEvent:
		// A shared socket can in principle carry another submission's
		// events; nothing from a foreign prompt id may touch this job.
		if event.PromptID != t.jobID {
			return false
		}
		if event.NodeID == nil {
			return true
		}
		t.markDone(*event.NodeID)
	}
	return false
}

func (t *Tracker) markDone(id string) {
	if _, ok := t.done[id]; ok {
		return
	}
	t.done[id] = struct{}{}
	t.logger.Info("node finished", "node", id, "done", len(t.done), "total", t.total)
	if t.callbacks.OnNodeDone != nil {
		t.callbacks.OnNodeDone(len(t.done), t.total)
	}
}
