package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLedger keeps jobs in process memory. Used when no database is
// configured and in tests.
type MemoryLedger struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{jobs: make(map[string]*Job), now: time.Now}
}

func (m *MemoryLedger) Create(ctx context.Context, req CreateRequest) (string, error) {
	id := NewJobID()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id] = &Job{
		ID:         id,
		Status:     StatusPending,
		Scenes:     req.Scenes,
		Parameters: req.Parameters,
		SeedImage:  req.SeedImage,
		ClipURIs:   []string{},
		CreatedAt:  m.now().UTC(),
	}
	return id, nil
}

func (m *MemoryLedger) Update(ctx context.Context, id string, u Update) error {
	if err := validateUpdate(u); err != nil {
		return fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %w %s", ErrUpdateFailed, ErrNotFound, id)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, ErrAlreadyTerminal)
	}
	done := m.now().UTC()
	job.Status = u.Status
	if u.ClipURIs != nil {
		job.ClipURIs = append([]string(nil), u.ClipURIs...)
	}
	job.FinalVideoURI = u.FinalVideoURI
	job.TrackedVideoURI = u.TrackedVideoURI
	job.ThumbnailURI = u.ThumbnailURI
	job.ErrorMessage = u.ErrorMessage
	job.GenerationTimeSeconds = u.GenerationTimeSeconds
	job.CompletedAt = &done
	return nil
}

func (m *MemoryLedger) Get(ctx context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cp := *job
	cp.ClipURIs = append([]string(nil), job.ClipURIs...)
	return &cp, nil
}
