package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/api"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/pkg/log"
)

// StatusFetcher is the one API call the poller needs.
type StatusFetcher interface {
	JobStatus(ctx context.Context, jobID string) (*api.StatusResponse, error)
}

// Callbacks receive the poller's classified outcomes. OnStatus fires for
// every successful status response; OnExpired fires once when the server
// no longer knows the job (HTTP 404); OnFailure fires once when the
// attempt ceiling is exhausted.
type Callbacks struct {
	OnStatus  func(st *api.StatusResponse)
	OnExpired func(reason string)
	OnFailure func(err error)
}

// Poller is the pull-based correctness backstop: it re-queries job status
// on a fixed interval while the push channel may be silent. Transient
// failures never stop it; only a terminal status, an unknown job, the
// attempt ceiling, or cancellation do.
type Poller struct {
	client      StatusFetcher
	interval    time.Duration
	maxAttempts int
}

// New creates a poller. maxAttempts 0 means poll indefinitely while the
// job is still processing; both knobs come from configuration.
func New(client StatusFetcher, interval time.Duration, maxAttempts int) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		client:      client,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Run polls until a stop condition is reached or ctx is canceled.
// Cancellation is the normal disarm path and returns nil.
func (p *Poller) Run(ctx context.Context, jobID string, cb Callbacks) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		attempts++
		st, err := p.client.JobStatus(ctx, jobID)
		switch {
		case err == nil:
			if cb.OnStatus != nil {
				cb.OnStatus(st)
			}
			if st.Status == "error" || (st.Ready && st.Status == "done") {
				return nil
			}
		case api.IsNotFound(err):
			// The server forgot the job; retrying cannot help.
			if cb.OnExpired != nil {
				cb.OnExpired("job expired on server")
			}
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			log.Warn("Status poll for job %s failed (attempt %d): %v", jobID, attempts, err)
		}

		if p.maxAttempts > 0 && attempts >= p.maxAttempts {
			if cb.OnFailure != nil {
				cb.OnFailure(&api.Error{
					Status: 0,
					Code:   api.CodePollingTimeout,
					Message: fmt.Sprintf("no terminal status after %d poll attempts (%s apart)",
						attempts, p.interval),
				})
			}
			return nil
		}
	}
}
