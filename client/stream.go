package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"
)

// stream opens the SSE endpoint and consumes it until the connection
// drops, the watchdog force-closes it, or ctx is canceled. A nil
// return means the server ended the stream cleanly (e.g. shutdown);
// the run loop treats both the same way.
func (c *Client) stream(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.streamCancel = cancel
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("client: build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: open stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: stream rejected: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return fmt.Errorf("client: unexpected content type %q", ct)
	}

	// Open succeeded: reset the retry budget and arm the watchdog.
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = StateConnected
	}
	c.retryCount = 0
	c.lastHeartbeat = time.Now()
	c.mu.Unlock()
	c.logger.Info("stream connected", slog.String("url", c.url))

	go c.watchStaleness(streamCtx, cancel)

	return c.readEvents(resp.Body)
}

// watchStaleness force-closes the stream when no envelope (heartbeat
// included) has arrived within the heartbeat timeout. This catches
// silent network stalls that never surface as connection errors, such
// as an intermediary buffering the response.
func (c *Client) watchStaleness(ctx context.Context, forceClose context.CancelFunc) {
	interval := c.heartbeatTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			stale := time.Since(c.lastHeartbeat) > c.heartbeatTimeout
			c.mu.Unlock()
			if stale {
				c.logger.Warn("stream appears stale, forcing reconnect",
					slog.Duration("timeout", c.heartbeatTimeout),
				)
				forceClose()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// readEvents parses the SSE byte stream. Each event's data lines are
// accumulated until the blank-line terminator, then dispatched. A
// malformed event is logged and skipped; it never ends the stream.
func (c *Client) readEvents(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Bytes()

		if len(line) == 0 {
			if data.Len() > 0 {
				c.dispatch(data.Bytes())
				data.Reset()
			}
			continue
		}
		if line[0] == ':' {
			continue // comment
		}
		if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.Write(bytes.TrimPrefix(rest, []byte(" ")))
		}
		// Other SSE fields (event:, id:, retry:) are not used by this
		// protocol and are ignored.
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("client: read stream: %w", err)
	}
	return nil
}
