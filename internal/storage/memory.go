package storage

import (
	"context"
	"sync"

	"fieldnet/internal/model"
)

type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]model.RunRecord
	rows map[string][]model.Row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]model.RunRecord),
		rows: make(map[string][]model.Row),
	}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = make(map[string]model.RunRecord)
	s.rows = make(map[string][]model.Row)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return copyRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, copyRun(run))
	}
	return out, nil
}

func (s *MemoryStore) AppendRows(_ context.Context, runID string, rows []model.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		s.rows[runID] = append(s.rows[runID], model.Row{
			Time:   row.Time,
			Values: append([]float64(nil), row.Values...),
		})
	}
	return nil
}

func (s *MemoryStore) GetRows(_ context.Context, runID string) ([]model.Row, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.rows[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.Row, 0, len(rows))
	for _, row := range rows {
		copied = append(copied, model.Row{
			Time:   row.Time,
			Values: append([]float64(nil), row.Values...),
		})
	}
	return copied, true, nil
}

func copyRun(run model.RunRecord) model.RunRecord {
	run.Columns = append([]string(nil), run.Columns...)
	if run.Parameters != nil {
		params := make(map[string]string, len(run.Parameters))
		for k, v := range run.Parameters {
			params[k] = v
		}
		run.Parameters = params
	}
	return run
}
