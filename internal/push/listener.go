package push

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/api"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/pkg/log"
)

// ConnState is the listener's explicit connection state. Keeping it (and
// the attempt counter) as fields rather than closure variables makes
// teardown and reconnect behavior observable in tests.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Listener consumes the server-sent event stream for one job id and
// forwards every parsed message to a callback. It holds at most one live
// connection; on transport errors it reconnects with linear-exponential
// backoff (base delay x attempt number) up to maxAttempts, then abandons
// the stream silently and leaves correctness to the fallback poller.
type Listener struct {
	streamURL   func(jobID string) string
	httpClient  *http.Client
	maxAttempts int
	backoffBase time.Duration

	mu       sync.Mutex
	state    ConnState
	attempts int
}

// NewListener creates a listener. streamURL maps a job id to its SSE
// endpoint (api.Client.EventsURL). The HTTP client must not carry an
// overall timeout, the stream is long-lived by design.
func NewListener(streamURL func(jobID string) string, maxAttempts int, backoffBase time.Duration) *Listener {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	return &Listener{
		streamURL:   streamURL,
		httpClient:  &http.Client{},
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
	}
}

// State returns the current connection state.
func (l *Listener) State() ConnState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Listen blocks consuming the stream for jobID until ctx is canceled, the
// server terminates the stream cleanly, or reconnect attempts are
// exhausted. Canceling ctx is the deterministic teardown: the connection
// closes and no further onEvent call is made afterwards.
func (l *Listener) Listen(ctx context.Context, jobID string, onEvent func(api.JobEvent)) error {
	defer l.setState(StateDisconnected)

	for {
		if ctx.Err() != nil {
			return nil
		}

		l.setState(StateConnecting)
		terminated, err := l.consume(ctx, jobID, onEvent)
		l.setState(StateDisconnected)

		if ctx.Err() != nil || terminated {
			return nil
		}

		l.mu.Lock()
		l.attempts++
		attempt := l.attempts
		l.mu.Unlock()

		if attempt > l.maxAttempts {
			// Give up silently; the poller is the backstop.
			log.Warn("Event stream for job %s gave up after %d reconnect attempts: %v",
				jobID, l.maxAttempts, err)
			return nil
		}

		delay := l.backoffBase * time.Duration(attempt)
		log.Debug("Event stream for job %s dropped, reconnecting in %s (attempt %d/%d)",
			jobID, delay, attempt, l.maxAttempts)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// consume opens one connection and reads messages until the stream ends.
// It returns terminated=true when the server closed the stream cleanly,
// meaning no reconnect should be scheduled.
func (l *Listener) consume(ctx context.Context, jobID string, onEvent func(api.JobEvent)) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.streamURL(jobID), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))
		return false, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	// Connection is live; reset the reconnect budget.
	l.mu.Lock()
	l.state = StateConnected
	l.attempts = 0
	l.mu.Unlock()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			// Blank line terminates one event.
			l.dispatch(ctx, jobID, data.String(), onEvent)
			data.Reset()
			continue
		}
		if strings.HasPrefix(line, "data:") {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		// Comment and id/event lines are ignored.
	}
	if data.Len() > 0 {
		l.dispatch(ctx, jobID, data.String(), onEvent)
	}

	if err := scanner.Err(); err != nil {
		return false, err
	}
	// Clean EOF: the server finished the stream.
	return true, nil
}

func (l *Listener) dispatch(ctx context.Context, jobID, payload string, onEvent func(api.JobEvent)) {
	if payload == "" || ctx.Err() != nil {
		return
	}
	var ev api.JobEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		// Malformed messages never kill the stream.
		log.Warn("Dropping unparseable event for job %s: %v", jobID, err)
		return
	}
	onEvent(ev)
}

func (l *Listener) setState(state ConnState) {
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
}
