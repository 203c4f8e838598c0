package remote

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/explorer/pkg/protocol"
)

const (
	reconnectMin = 1 * time.Second
	reconnectMax = 30 * time.Second
)

// Subscribe connects to GET /fs/events and delivers change events until
// ctx is done, reconnecting with backoff. Both channels are closed when
// the subscription ends. Connection errors are reported without blocking.
func (c *Client) Subscribe(ctx context.Context) (<-chan protocol.SSEEvent, <-chan error) {
	events := make(chan protocol.SSEEvent, 100)
	errs := make(chan error, 1)

	go c.subscribeLoop(ctx, events, errs)

	return events, errs
}

func (c *Client) subscribeLoop(ctx context.Context, events chan<- protocol.SSEEvent, errs chan<- error) {
	defer close(events)
	defer close(errs)

	delay := reconnectMin
	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := c.stream(ctx, events)
		if ctx.Err() != nil {
			return
		}
		if connected {
			delay = reconnectMin
		}

		select {
		case errs <- err:
		default:
		}
		c.logger.Warn("Event stream interrupted",
			zap.Error(err),
			zap.Duration("reconnect_in", delay))

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > reconnectMax {
			delay = reconnectMax
		}
	}
}

// stream reads one SSE connection. connected reports whether the server
// accepted the subscription.
func (c *Client) stream(ctx context.Context, events chan<- protocol.SSEEvent) (connected bool, err error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/fs/events", nil, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	c.logger.Info("Event stream connected", zap.String("url", c.baseURL))

	scanner := bufio.NewScanner(resp.Body)
	var eventType, data string

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if data != "" {
				var ev protocol.SSEEvent
				if err := json.Unmarshal([]byte(data), &ev); err != nil {
					c.logger.Debug("Malformed event dropped", zap.String("data", data))
				} else {
					if ev.Type == "" {
						ev.Type = eventType
					}
					select {
					case events <- ev:
					case <-ctx.Done():
						return true, nil
					}
				}
			}
			eventType, data = "", ""
		case strings.HasPrefix(line, ":"):
			// keepalive
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		return true, fmt.Errorf("read: %w", err)
	}
	return true, fmt.Errorf("connection closed")
}
