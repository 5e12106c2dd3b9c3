package jobs

import (
	"time"

	"github.com/shubham-khandelwal2304/pdf2csv-frontend/internal/api"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions may occur.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Record is the persisted view of one conversion job.
type Record struct {
	JobID       string             `json:"jobId"`
	Filename    string             `json:"filename,omitempty"`
	Status      Status             `json:"status"`
	Ready       bool               `json:"ready"`
	Execution   *api.ExecutionInfo `json:"execution,omitempty"`
	DownloadURL string             `json:"downloadUrl,omitempty"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Patch is a partial update. Nil fields leave the current value
// untouched; both the push and the poll path express their reports as a
// Patch so one merge rule covers them identically.
type Patch struct {
	Filename    *string
	Status      *Status
	Ready       *bool
	Execution   *api.ExecutionInfo
	DownloadURL *string
	Error       *string
}

// merge shallow-merges p over r. It never drops fields absent from the
// patch and never stamps timestamps; callers own UpdatedAt.
func (r Record) merge(p Patch) Record {
	if p.Filename != nil {
		r.Filename = *p.Filename
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Ready != nil {
		r.Ready = *p.Ready
	}
	if p.Execution != nil {
		r.Execution = p.Execution
	}
	if p.DownloadURL != nil {
		r.DownloadURL = *p.DownloadURL
	}
	if p.Error != nil {
		r.Error = *p.Error
	}
	return r
}

// applyReport merges a push/poll report into rec. Terminal records are
// immutable: the first terminal write wins and every later report is
// dropped, which makes interleaved push/poll delivery idempotent and
// commutative.
func applyReport(rec Record, p Patch) (Record, bool) {
	if rec.Status.Terminal() {
		return rec, false
	}
	return rec.merge(p), true
}

// PatchFromEvent converts one SSE message into a Patch.
func PatchFromEvent(ev api.JobEvent) Patch {
	var p Patch
	if ev.Status != "" {
		s := Status(ev.Status)
		p.Status = &s
	}
	if ev.Ready {
		ready := true
		p.Ready = &ready
	}
	if ev.DownloadURL != "" {
		p.DownloadURL = &ev.DownloadURL
	}
	if ev.Error != "" {
		p.Error = &ev.Error
	}
	if ev.Execution != nil {
		p.Execution = ev.Execution
	}
	return p
}

// PatchFromStatus converts one poll response into a Patch.
func PatchFromStatus(st *api.StatusResponse) Patch {
	var p Patch
	if st == nil {
		return p
	}
	if st.Status != "" {
		s := Status(st.Status)
		p.Status = &s
	}
	if st.Ready {
		ready := true
		p.Ready = &ready
	}
	if st.DownloadURL != "" {
		p.DownloadURL = &st.DownloadURL
	}
	if st.Error != "" {
		p.Error = &st.Error
	}
	if st.Execution != nil {
		p.Execution = st.Execution
	}
	return p
}

func cloneRecord(rec *Record) *Record {
	if rec == nil {
		return nil
	}
	tmp := *rec
	return &tmp
}
