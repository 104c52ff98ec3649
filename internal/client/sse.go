package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"ms-delivery/internal/models"
)

// Subscribe opens the server's change stream. The channel closes when the
// stream ends; callers resubscribe on their next poll.
func (c *HTTP) Subscribe(ctx context.Context, orderID string) (<-chan models.ChangeEvent, error) {
	if c.Feed != nil {
		return c.Feed.Subscribe(ctx, orderID)
	}

	path := "/api/orders/stream"
	if orderID != "" {
		path += "?order_id=" + url.QueryEscape(orderID)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	// The stream outlives the request timeout on c.Client.
	streamClient := &http.Client{Transport: c.Client.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, errorFromResponse(resp.StatusCode, raw)
	}

	out := make(chan models.ChangeEvent, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		if err := readEvents(ctx, resp.Body, out); err != nil && ctx.Err() == nil {
			c.Logger.Warn("CLIENT", fmt.Sprintf("Change stream ended: %v", err))
		}
	}()
	return out, nil
}

// readEvents parses text/event-stream frames and forwards "change" events.
func readEvents(ctx context.Context, body io.Reader, out chan<- models.ChangeEvent) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event string
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if event == "change" && data.Len() > 0 {
				var ev models.ChangeEvent
				if err := json.Unmarshal([]byte(data.String()), &ev); err == nil {
					select {
					case out <- ev:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// heartbeat
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}
