package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shubham-khandelwal2304/pdf2csv-frontend/pkg/log"
)

// Storage keys: one entry per job plus one ordered id index.
const (
	jobKeyPrefix = "job_"
	indexKey     = "pdf_csv_jobs"
)

// KV is the durable key/value backend under the job store
// (persistence.SQLiteStore in production, an in-memory map in tests).
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// LocalStore persists job records and a bounded most-recent-first id
// index. Every operation is synchronous and infallible from the caller's
// side: backend failures and corrupt entries degrade to a no-op plus a
// logged warning, never an error. That keeps storage trouble out of the
// user-facing flow.
type LocalStore struct {
	kv      KV
	maxJobs int
	now     func() time.Time

	mu sync.Mutex
}

func NewLocalStore(kv KV, maxJobs int) *LocalStore {
	if maxJobs <= 0 {
		maxJobs = 10
	}
	return &LocalStore{
		kv:      kv,
		maxJobs: maxJobs,
		now:     time.Now,
	}
}

// Put persists rec under its job id, overwriting any previous record,
// and front-inserts the id into the index (dedup, capped at maxJobs;
// evicted ids lose their record entry too).
func (s *LocalStore) Put(jobID string, rec Record) {
	if jobID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writeRecord(jobID, rec)

	index := s.readIndex()
	next := make([]string, 0, len(index)+1)
	next = append(next, jobID)
	for _, id := range index {
		if id != jobID {
			next = append(next, id)
		}
	}
	for _, evicted := range next[min(len(next), s.maxJobs):] {
		s.deleteKey(jobKeyPrefix + evicted)
	}
	s.writeIndex(next[:min(len(next), s.maxJobs)])
}

// Get returns the stored record, or nil for missing or unparseable data.
// Corruption is logged and treated as absence, never an error.
func (s *LocalStore) Get(jobID string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRecord(jobID)
}

// Update shallow-merges patch over the current record (an empty record if
// none is stored), stamps UpdatedAt, and writes the result back. Fields
// absent from the patch are never lost. Returns the merged snapshot.
func (s *LocalStore) Update(jobID string, patch Patch) *Record {
	if jobID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.readRecord(jobID)
	if current == nil {
		current = &Record{JobID: jobID, CreatedAt: s.now().UTC()}
	}
	merged := current.merge(patch)
	merged.UpdatedAt = s.now().UTC()
	s.writeRecord(jobID, merged)
	return &merged
}

// ListAll maps the index to records in recency order, skipping any id
// whose record is missing or corrupt.
func (s *LocalStore) ListAll() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.readIndex()
	ret := make([]Record, 0, len(index))
	for _, id := range index {
		if rec := s.readRecord(id); rec != nil {
			ret = append(ret, *rec)
		}
	}
	return ret
}

// Delete removes the record and its index entry.
func (s *LocalStore) Delete(jobID string) {
	if jobID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteKey(jobKeyPrefix + jobID)

	index := s.readIndex()
	next := make([]string, 0, len(index))
	for _, id := range index {
		if id != jobID {
			next = append(next, id)
		}
	}
	s.writeIndex(next)
}

// SweepExpired removes every record created before now-maxAge, along with
// ids whose record is already gone, and rewrites the index keeping the
// survivors in their original relative order. Returns the number of
// removed entries.
func (s *LocalStore) SweepExpired(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().UTC().Add(-maxAge)
	index := s.readIndex()
	survivors := make([]string, 0, len(index))
	removed := 0

	for _, id := range index {
		rec := s.readRecord(id)
		if rec == nil || rec.CreatedAt.Before(cutoff) {
			s.deleteKey(jobKeyPrefix + id)
			removed++
			continue
		}
		survivors = append(survivors, id)
	}

	if removed > 0 {
		s.writeIndex(survivors)
		log.Info("Swept %d expired job record(s) from local store", removed)
	}
	return removed
}

// Index returns the raw ordered id list, most recent first.
func (s *LocalStore) Index() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIndex()
}

func (s *LocalStore) readRecord(jobID string) *Record {
	raw, ok, err := s.kv.Get(context.Background(), jobKeyPrefix+jobID)
	if err != nil {
		log.Warn("Failed to read job %s from local store: %v", jobID, err)
		return nil
	}
	if !ok {
		return nil
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Warn("Corrupt record for job %s in local store, treating as absent: %v", jobID, err)
		return nil
	}
	return &rec
}

func (s *LocalStore) writeRecord(jobID string, rec Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		log.Warn("Failed to serialize job %s: %v", jobID, err)
		return
	}
	if err := s.kv.Put(context.Background(), jobKeyPrefix+jobID, string(payload)); err != nil {
		log.Warn("Failed to persist job %s: %v", jobID, err)
	}
}

func (s *LocalStore) readIndex() []string {
	raw, ok, err := s.kv.Get(context.Background(), indexKey)
	if err != nil {
		log.Warn("Failed to read job index: %v", err)
		return nil
	}
	if !ok {
		return nil
	}
	var index []string
	if err := json.Unmarshal([]byte(raw), &index); err != nil {
		log.Warn("Corrupt job index, resetting: %v", err)
		return nil
	}
	return index
}

func (s *LocalStore) writeIndex(index []string) {
	payload, err := json.Marshal(index)
	if err != nil {
		log.Warn("Failed to serialize job index: %v", err)
		return
	}
	if err := s.kv.Put(context.Background(), indexKey, string(payload)); err != nil {
		log.Warn("Failed to persist job index: %v", err)
	}
}

func (s *LocalStore) deleteKey(key string) {
	if err := s.kv.Delete(context.Background(), key); err != nil {
		log.Warn("Failed to delete %s from local store: %v", key, err)
	}
}
