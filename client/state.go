package client

// State is the resilience layer's connection state. Transitions are
// driven by the run loop: stream open/close, retry timers, and the
// retry ceiling.
type State int

const (
	// StateConnecting means a stream open is in progress.
	StateConnecting State = iota

	// StateConnected means the stream is live and envelopes flow.
	StateConnected

	// StateRetrying means the last attempt failed and a backoff timer
	// is pending.
	StateRetrying

	// StateFallbackPolling means the retry ceiling was reached;
	// periodic cache invalidation has replaced streaming.
	StateFallbackPolling

	// StateClosed means Close was called; the client is torn down.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRetrying:
		return "retrying"
	case StateFallbackPolling:
		return "fallback_polling"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Status is the user-facing connectivity indicator. Degraded modes are
// reported here rather than surfaced as errors: data stays available
// through fallback polling or the last cached state.
type Status string

const (
	StatusLive         Status = "Live"
	StatusConnecting   Status = "Connecting..."
	StatusReconnecting Status = "Reconnecting..."
	StatusPollingMode  Status = "Polling Mode"
	StatusDisconnected Status = "Disconnected"
)

// Status returns the indicator for the current state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == StateFallbackPolling:
		return StatusPollingMode
	case c.state == StateRetrying && c.retryCount < c.maxRetries:
		return StatusReconnecting
	case c.state == StateRetrying:
		// Errored with no retry left; polling has not taken over yet.
		return StatusDisconnected
	case c.state == StateClosed:
		return StatusDisconnected
	case c.state == StateConnected:
		return StatusLive
	default:
		return StatusConnecting
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RetryCount returns the consecutive failed attempt count. It resets
// to zero on every successful open.
func (c *Client) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// setState transitions the connection state. StateClosed is terminal:
// the run loop may race Close between its ctx check and the
// cancellation taking effect, and must not resurrect a closed client.
func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state != StateClosed || s == StateClosed {
		c.state = s
	}
	c.mu.Unlock()
}
