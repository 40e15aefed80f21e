package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"
)

const (
	// defaultInitialBackoff is the first reconnect delay after a failed dial.
	defaultInitialBackoff = 1 * time.Second

	// defaultMaxBackoff caps the exponential reconnect delay.
	defaultMaxBackoff = 16 * time.Second

	// writeTimeout bounds a single Broadcast write. A write that cannot
	// complete within this window leaves its remainder queued for an
	// opportunistic flush on the next broadcast.
	writeTimeout = 50 * time.Millisecond

	// maxQueuedBytes bounds the pending-write queue. When a slow observer
	// lets the queue grow past this, the whole queue is dropped — events are
	// best-effort.
	maxQueuedBytes = 256 << 10

	// commandBuffer is the capacity of the inbound command channel.
	commandBuffer = 16
)

// Client connects to the observer's unix socket server, delivers outbound
// events, and surfaces inbound commands. All methods are safe for concurrent
// use; Broadcast never blocks beyond writeTimeout and never returns an error.
type Client struct {
	path     string
	commands chan Command

	initialBackoff time.Duration
	maxBackoff     time.Duration

	// OnConnect, when non-nil, is invoked after every successful dial
	// (including reconnects). Used for metrics.
	OnConnect func()

	mu    sync.Mutex
	conn  net.Conn
	queue []byte
}

// Option configures a Client.
type Option func(*Client)

// WithBackoff overrides the reconnect delays. Used by tests to keep retries
// fast.
func WithBackoff(initial, max time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = initial
		c.maxBackoff = max
	}
}

// New creates a Client for the observer socket at path. The client does not
// connect until Run is called.
func New(path string, opts ...Option) *Client {
	c := &Client{
		path:           path,
		commands:       make(chan Command, commandBuffer),
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Commands returns the channel of inbound observer commands. Malformed lines
// never appear here; they are dropped with a logged warning.
func (c *Client) Commands() <-chan Command {
	return c.commands
}

// Run maintains the connection until ctx is cancelled: dial, read commands
// until disconnect, back off exponentially (reset after every successful
// connect), repeat. Always returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	backoff := c.initialBackoff
	for {
		conn, err := (&net.Dialer{}).DialContext(ctx, "unix", c.path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Debug("channel dial failed, retrying", "path", c.path, "backoff", backoff, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}

		slog.Info("channel connected", "path", c.path)
		backoff = c.initialBackoff
		if c.OnConnect != nil {
			c.OnConnect()
		}

		c.setConn(conn)
		c.readLoop(ctx, conn)
		c.dropConn(conn)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Debug("channel disconnected, reconnecting", "path", c.path)
	}
}

// Broadcast serialises v as one NDJSON line and sends it to the observer.
// Best-effort by contract: a no-op when disconnected, and a write that would
// block queues its remainder instead of stalling the caller.
func (c *Client) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("channel: dropping unmarshallable event", "err", err)
		return
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	c.queue = append(c.queue, data...)
	if len(c.queue) > maxQueuedBytes {
		slog.Warn("channel: observer not draining, dropping queued events", "bytes", len(c.queue))
		c.queue = nil
		return
	}
	c.flushLocked()
}

// flushLocked writes as much of the queue as the connection accepts within
// writeTimeout. Callers hold c.mu.
func (c *Client) flushLocked() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	n, err := c.conn.Write(c.queue)
	c.queue = c.queue[n:]
	if len(c.queue) == 0 {
		c.queue = nil
	}
	if err != nil && !isTimeout(err) {
		// A broken pipe; closing wakes the read loop, which handles teardown.
		_ = c.conn.Close()
	}
}

// readLoop delivers parsed commands until the connection drops or ctx is
// cancelled. The bufio.Scanner buffers partial reads, so frame boundaries are
// independent of transport chunking.
func (c *Client) readLoop(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cmd, err := ParseCommand(line)
		if err != nil {
			slog.Warn("channel: dropping bad command line", "err", err)
			continue
		}
		select {
		case c.commands <- cmd:
		case <-ctx.Done():
			return
		}
	}
}

// setConn installs a freshly dialled connection.
func (c *Client) setConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.queue = nil
}

// dropConn tears down conn and discards any queued data for it.
func (c *Client) dropConn(conn net.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = conn.Close()
	if c.conn == conn {
		c.conn = nil
		c.queue = nil
	}
}

// isTimeout reports whether err is a deadline-exceeded network error.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
