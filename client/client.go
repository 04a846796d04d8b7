package client

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultServerAddress is where a locally run ComfyUI server listens.
const DefaultServerAddress = "127.0.0.1:8188"

// Client talks to one ComfyUI server over HTTP, and opens per-job event
// channels over its websocket endpoint. A Client is safe for concurrent use;
// each concurrently running job gets its own Channel.
type Client struct {
	serverAddress string
	httpClient    *http.Client
	logger        *slog.Logger
	recvTimeout   time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the transport used for the REST endpoints.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger replaces the logger, which otherwise is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithReceiveTimeout bounds each websocket receive. When it expires the
// channel read fails and the tracked job goes to Failed. Unset, receives
// block until the server sends or the channel is closed, which is the
// server's native contract.
func WithReceiveTimeout(d time.Duration) Option {
	return func(c *Client) { c.recvTimeout = d }
}

// New creates a client for the server at address (host:port). An empty
// address means DefaultServerAddress.
func New(serverAddress string, opts ...Option) *Client {
	if serverAddress == "" {
		serverAddress = DefaultServerAddress
	}
	c := &Client{
		serverAddress: serverAddress,
		httpClient:    &http.Client{},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServerAddress returns the host:port this client targets.
func (c *Client) ServerAddress() string {
	return c.serverAddress
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("http://%s%s", c.serverAddress, path)
}
