package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dkazancev/comfyui-go/workflow"
)

// ErrChannelClosed distinguishes reads failing because Close was called
// from reads failing because the server went away.
var ErrChannelClosed = errors.New("channel closed")

// Channel carries the execution events of jobs submitted with its client
// id. One logical job at a time: Submit, drain events until the job
// terminates, Close. Close must run on every exit path or the server keeps
// feeding events to a dead listener.
type Channel struct {
	client   *Client
	clientID string
	conn     *websocket.Conn

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// OpenChannel dials the server's event socket with a fresh correlation
// token, so events for this channel's submissions never mix with another
// channel's.
func (c *Client) OpenChannel(ctx context.Context) (*Channel, error) {
	clientID := uuid.New().String()
	wsURL := fmt.Sprintf("ws://%s/ws?clientId=%s", c.serverAddress, clientID)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", c.serverAddress, err)
	}
	c.logger.Info("websocket connected", "server", c.serverAddress, "client_id", clientID)
	return &Channel{client: c, clientID: clientID, conn: conn}, nil
}

// ClientID returns the channel's correlation token. Uploads that should be
// attributed to this channel's job pass it as the upload client id.
func (ch *Channel) ClientID() string {
	return ch.clientID
}

type promptError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// Submit queues the graph for execution under this channel's client id and
// returns the server-assigned prompt id. A rejection surfaces the server's
// error message.
func (ch *Channel) Submit(ctx context.Context, graph *workflow.Graph) (string, error) {
	payload := struct {
		Prompt   *workflow.Graph `json:"prompt"`
		ClientID string          `json:"client_id"`
	}{graph, ch.clientID}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.client.url("/prompt"), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ch.client.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("queue prompt: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("queue prompt: %w", err)
	}

	var result struct {
		PromptID string       `json:"prompt_id"`
		Error    *promptError `json:"error"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("queue prompt: %s: %w", resp.Status, err)
	}
	if result.PromptID == "" {
		if result.Error != nil {
			return "", fmt.Errorf("queue prompt rejected: %s", result.Error.Message)
		}
		return "", fmt.Errorf("queue prompt: %s", resp.Status)
	}

	ch.client.logger.Info("prompt queued", "prompt_id", result.PromptID, "client_id", ch.clientID)
	return result.PromptID, nil
}

// NextEvent blocks until the server pushes the next protocol event. Binary
// frames (inline previews) and message types outside the protocol are read
// and dropped. After Close the error wraps ErrChannelClosed; with a receive
// timeout configured on the client, an expired deadline is a transport
// error.
func (ch *Channel) NextEvent() (Event, error) {
	for {
		if ch.closed.Load() {
			return nil, ErrChannelClosed
		}
		if t := ch.client.recvTimeout; t > 0 {
			if err := ch.conn.SetReadDeadline(time.Now().Add(t)); err != nil {
				return nil, fmt.Errorf("receive event: %w", err)
			}
		}
		msgType, frame, err := ch.conn.ReadMessage()
		if err != nil {
			if ch.closed.Load() {
				return nil, fmt.Errorf("receive event: %w", ErrChannelClosed)
			}
			return nil, fmt.Errorf("receive event: %w", err)
		}
		if msgType != websocket.TextMessage {
			continue
		}
		event, err := decodeEvent(frame)
		if err != nil {
			ch.client.logger.Error("undecodable event frame", "error", err)
			continue
		}
		if event == nil {
			continue
		}
		return event, nil
	}
}

// Close releases the socket. Idempotent; a concurrent NextEvent unblocks
// with an error wrapping ErrChannelClosed. Closing while a job is running
// aborts tracking on the client side only; no interrupt is sent to the
// server.
func (ch *Channel) Close() error {
	ch.closeOnce.Do(func() {
		ch.closed.Store(true)
		ch.closeErr = ch.conn.Close()
	})
	return ch.closeErr
}
