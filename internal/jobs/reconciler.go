package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/api"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/poll"
	"github.com/shubham-khandelwal2304/pdf2csv-frontend/pkg/log"
)

// PushListener is the push-side observer for one job id.
type PushListener interface {
	Listen(ctx context.Context, jobID string, onEvent func(api.JobEvent)) error
}

// StatusPoller is the pull-side observer for one job id.
type StatusPoller interface {
	Run(ctx context.Context, jobID string, cb poll.Callbacks) error
}

// Outcome is the final word on one tracked job: either a terminal record,
// or an error for jobs that vanished server-side before finishing.
type Outcome struct {
	Record Record
	Err    error
}

// Reconciler owns the single authoritative in-memory view of the active
// job. Push and poll updates both funnel through it — never directly into
// the store — and the same merge rule applies regardless of which source
// reported first. Once a job reaches a terminal state both observers are
// disarmed and no further mutation is accepted for that job id.
type Reconciler struct {
	store    *LocalStore
	listener PushListener
	poller   StatusPoller
	onChange func(Record)
	now      func() time.Time

	mu      sync.Mutex
	current *Record
	cancel  context.CancelFunc
	group   *errgroup.Group
	outcome chan Outcome
}

type ReconcilerOption func(*Reconciler)

// WithOnChange registers a callback invoked with a snapshot after every
// accepted state change (UI refreshes, progress printing).
func WithOnChange(fn func(Record)) ReconcilerOption {
	return func(r *Reconciler) { r.onChange = fn }
}

func NewReconciler(store *LocalStore, listener PushListener, poller StatusPoller, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:    store,
		listener: listener,
		poller:   poller,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Track seeds state for a freshly submitted job and arms both observers.
// Any previously observed job is torn down first.
func (r *Reconciler) Track(jobID, filename string, exec *api.ExecutionInfo) Record {
	now := r.now().UTC()
	rec := Record{
		JobID:     jobID,
		Filename:  filename,
		Status:    StatusProcessing,
		Execution: exec,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.store.Put(jobID, rec)

	r.mu.Lock()
	r.teardownLocked()
	r.current = cloneRecord(&rec)
	r.outcome = make(chan Outcome, 1)
	r.armLocked(jobID)
	r.mu.Unlock()

	r.notify(rec)
	return rec
}

// Complete records a job that finished synchronously: the upload
// response already carried a download URL, so there is nothing to
// observe. The record goes straight to done.
func (r *Reconciler) Complete(jobID, filename, downloadURL string, exec *api.ExecutionInfo) Record {
	now := r.now().UTC()
	rec := Record{
		JobID:       jobID,
		Filename:    filename,
		Status:      StatusDone,
		Ready:       true,
		DownloadURL: downloadURL,
		Execution:   exec,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.store.Put(jobID, rec)

	r.mu.Lock()
	r.teardownLocked()
	r.current = cloneRecord(&rec)
	r.outcome = make(chan Outcome, 1)
	r.outcome <- Outcome{Record: rec}
	r.mu.Unlock()

	r.notify(rec)
	return rec
}

// Resume re-arms observation for a stored job. Terminal jobs load into
// the in-memory view without arming anything.
func (r *Reconciler) Resume(jobID string) (*Record, error) {
	rec := r.store.Get(jobID)
	if rec == nil {
		return nil, fmt.Errorf("no local record for job %s", jobID)
	}

	r.mu.Lock()
	r.teardownLocked()
	r.current = cloneRecord(rec)
	r.outcome = make(chan Outcome, 1)
	if rec.Status.Terminal() {
		r.outcome <- Outcome{Record: *rec}
	} else {
		r.armLocked(jobID)
	}
	r.mu.Unlock()

	log.Info("Resumed observation of job %s (status %s)", jobID, rec.Status)
	return cloneRecord(rec), nil
}

// Rehydrate loads persisted history after a restart. If exactly one
// stored job is still processing it is resumed automatically; everything
// else is returned for manual resume.
func (r *Reconciler) Rehydrate() (*Record, []Record) {
	all := r.store.ListAll()

	var inflight []string
	for _, rec := range all {
		if rec.Status == StatusProcessing {
			inflight = append(inflight, rec.JobID)
		}
	}
	if len(inflight) != 1 {
		return nil, all
	}

	resumed, err := r.Resume(inflight[0])
	if err != nil {
		log.Warn("Failed to auto-resume job %s: %v", inflight[0], err)
		return nil, all
	}
	return resumed, all
}

// Snapshot returns a copy of the current in-memory view, nil when idle.
func (r *Reconciler) Snapshot() *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneRecord(r.current)
}

// WaitTerminal blocks until the actively tracked job reaches its outcome
// or ctx is canceled.
func (r *Reconciler) WaitTerminal(ctx context.Context) (Outcome, error) {
	r.mu.Lock()
	ch := r.outcome
	r.mu.Unlock()

	if ch == nil {
		return Outcome{}, fmt.Errorf("no job is being tracked")
	}
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case out := <-ch:
		return out, nil
	}
}

// Reset clears the in-memory view and disarms observers without touching
// persisted history.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	r.teardownLocked()
	r.current = nil
	r.outcome = nil
	r.mu.Unlock()
}

// Close disarms observers and waits for their goroutines to drain.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.teardownLocked()
	group := r.group
	r.group = nil
	r.mu.Unlock()

	if group != nil {
		_ = group.Wait()
	}
}

// armLocked starts the push listener and fallback poller for jobID under
// one cancelable group. Callers hold r.mu.
func (r *Reconciler) armLocked(jobID string) {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	group, gctx := errgroup.WithContext(ctx)
	r.group = group

	if r.listener != nil {
		group.Go(func() error {
			return r.listener.Listen(gctx, jobID, func(ev api.JobEvent) {
				r.applyEvent(jobID, ev)
			})
		})
	}
	if r.poller != nil {
		group.Go(func() error {
			return r.poller.Run(gctx, jobID, poll.Callbacks{
				OnStatus:  func(st *api.StatusResponse) { r.applyStatus(jobID, st) },
				OnExpired: func(reason string) { r.expire(jobID, reason) },
				OnFailure: func(err error) { r.fail(jobID, err) },
			})
		})
	}
}

// teardownLocked cancels the active observers. Callers hold r.mu; the
// goroutines exit asynchronously and are drained in Close.
func (r *Reconciler) teardownLocked() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Reconciler) applyEvent(jobID string, ev api.JobEvent) {
	if ev.JobID != "" && ev.JobID != jobID {
		log.Warn("Ignoring event for job %s while observing %s", ev.JobID, jobID)
		return
	}
	r.apply(jobID, PatchFromEvent(ev))
}

func (r *Reconciler) applyStatus(jobID string, st *api.StatusResponse) {
	r.apply(jobID, PatchFromStatus(st))
}

// apply is the single reconciliation entry point for both sources. The
// check-and-persist runs under the lock so a stale report can never land
// after teardown or after a terminal write.
func (r *Reconciler) apply(jobID string, p Patch) {
	r.mu.Lock()
	if r.current == nil || r.current.JobID != jobID {
		r.mu.Unlock()
		return
	}
	merged, changed := applyReport(*r.current, p)
	if !changed {
		r.mu.Unlock()
		return
	}
	merged.UpdatedAt = r.now().UTC()
	r.current = &merged

	terminal := merged.Status.Terminal()
	var out chan Outcome
	if terminal {
		r.teardownLocked()
		out = r.outcome
	}
	r.store.Update(jobID, p)
	r.mu.Unlock()

	r.notify(merged)
	if terminal && out != nil {
		select {
		case out <- Outcome{Record: merged}:
		default:
		}
	}
}

// expire handles the unrecoverable 404 path: purge the job locally and
// reset to the pre-upload state so the user is never stuck on a dead job.
func (r *Reconciler) expire(jobID, reason string) {
	r.mu.Lock()
	if r.current == nil || r.current.JobID != jobID {
		r.mu.Unlock()
		return
	}
	r.teardownLocked()
	out := r.outcome
	r.current = nil
	r.store.Delete(jobID)
	r.mu.Unlock()

	log.Warn("Job %s: %s; removed from local history", jobID, reason)
	if out != nil {
		select {
		case out <- Outcome{Err: &api.Error{
			Status:  404,
			Code:    api.CodeJobExpired,
			Message: fmt.Sprintf("conversion job expired on the server (%s); it was removed from local history", reason),
		}}:
		default:
		}
	}
}

// fail records an observation failure (e.g. poll ceiling exhausted) as a
// terminal error so the state survives a reload.
func (r *Reconciler) fail(jobID string, err error) {
	status := StatusError
	message := err.Error()
	r.apply(jobID, Patch{Status: &status, Error: &message})
}

func (r *Reconciler) notify(rec Record) {
	if r.onChange != nil {
		r.onChange(rec)
	}
}
