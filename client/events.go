package client

import "encoding/json"

// Event is one server-pushed execution message. The concrete types cover
// the frames the tracking protocol consumes; everything else the server
// broadcasts (queue status, execution_start, binary previews) is dropped at
// the channel.
type Event interface {
	eventType() string
}

// ProgressEvent carries the sampler's step counter inside the executing
// node. The counter restarts with each sampling node; it is forwarded, not
// validated.
type ProgressEvent struct {
	Value int `json:"value"`
	Max   int `json:"max"`
}

// CachedEvent lists nodes the server satisfied from cache and will not
// execute again.
type CachedEvent struct {
	NodeIDs  []string `json:"nodes"`
	PromptID string   `json:"prompt_id"`
}

// ExecutingEvent announces the node the server moved on to. A nil NodeID
// means the prompt has finished executing.
type ExecutingEvent struct {
	NodeID   *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

func (ProgressEvent) eventType() string  { return "progress" }
func (CachedEvent) eventType() string    { return "execution_cached" }
func (ExecutingEvent) eventType() string { return "executing" }

// decodeEvent parses one websocket text frame. Frames outside the tracked
// union decode to (nil, nil).
func decodeEvent(frame []byte) (Event, error) {
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, err
	}

	switch envelope.Type {
	case "progress":
		ev := ProgressEvent{}
		if err := json.Unmarshal(envelope.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case "execution_cached":
		ev := CachedEvent{}
		if err := json.Unmarshal(envelope.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case "executing":
		ev := ExecutingEvent{}
		if err := json.Unmarshal(envelope.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, nil
	}
}
