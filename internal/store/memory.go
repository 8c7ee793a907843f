package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vk/gridci/internal/model"
)

// MemoryStore is a mutex-guarded in-memory Store. It is created fresh for
// each one-shot CLI run and for tests; nothing survives process exit.
type MemoryStore struct {
	mu         sync.RWMutex
	runs       map[int64]*model.Run
	jobRuns    map[int64]*model.JobRun
	runNumbers map[string]int64
	nextRunID  int64
	nextJobID  int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:       make(map[int64]*model.Run),
		jobRuns:    make(map[int64]*model.JobRun),
		runNumbers: make(map[string]int64),
	}
}

// CreateRun implements Store.
func (s *MemoryStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRunID++
	run.ID = s.nextRunID
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	clone := *run
	s.runs[run.ID] = &clone
	return nil
}

// GetRun implements Store.
func (s *MemoryStore) GetRun(ctx context.Context, id int64) (*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *run
	return &clone, nil
}

// ListRuns implements Store.
func (s *MemoryStore) ListRuns(ctx context.Context, limit int) ([]*model.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*model.Run, 0, len(s.runs))
	for _, run := range s.runs {
		clone := *run
		runs = append(runs, &clone)
	}
	// Newest first; IDs are monotonic so they break creation-time ties.
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// UpdateRunStatus implements Store.
func (s *MemoryStore) UpdateRunStatus(ctx context.Context, id int64, status model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	now := time.Now().UTC()
	if status == model.StatusRunning && run.StartedAt == nil {
		run.StartedAt = &now
	}
	if status.Terminal() && run.FinishedAt == nil {
		run.FinishedAt = &now
	}
	return nil
}

// NextRunNumber implements Store.
func (s *MemoryStore) NextRunNumber(ctx context.Context, workflowName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runNumbers[workflowName]++
	return s.runNumbers[workflowName], nil
}

// CreateJobRun implements Store.
func (s *MemoryStore) CreateJobRun(ctx context.Context, jr *model.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[jr.RunID]; !ok {
		return ErrNotFound
	}
	s.nextJobID++
	jr.ID = s.nextJobID
	clone := *jr
	s.jobRuns[jr.ID] = &clone
	return nil
}

// UpdateJobRun implements Store.
func (s *MemoryStore) UpdateJobRun(ctx context.Context, jr *model.JobRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobRuns[jr.ID]; !ok {
		return ErrNotFound
	}
	clone := *jr
	s.jobRuns[jr.ID] = &clone
	return nil
}

// GetJobRuns implements Store.
func (s *MemoryStore) GetJobRuns(ctx context.Context, runID int64) ([]*model.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobRuns []*model.JobRun
	for _, jr := range s.jobRuns {
		if jr.RunID == runID {
			clone := *jr
			jobRuns = append(jobRuns, &clone)
		}
	}
	sort.Slice(jobRuns, func(i, j int) bool { return jobRuns[i].ID < jobRuns[j].ID })
	return jobRuns, nil
}

// CancelPendingRuns implements Store.
func (s *MemoryStore) CancelPendingRuns(ctx context.Context, group string, exceptID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cancelled []int64
	now := time.Now().UTC()
	for _, run := range s.runs {
		if run.ID != exceptID && run.ConcurrencyGroup == group && run.Status == model.StatusPending {
			run.Status = model.StatusCancelled
			run.FinishedAt = &now
			cancelled = append(cancelled, run.ID)
		}
	}
	sort.Slice(cancelled, func(i, j int) bool { return cancelled[i] < cancelled[j] })
	return cancelled, nil
}

// Close implements Store. It is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
