package attendance

import (
	"context"
	"sync"

	"labattend/internal/model"
)

// MemoryRepository keeps records in process memory, in append order.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []model.Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Append(_ context.Context, records []model.Record) error {
	r.mu.Lock()
	r.records = append(r.records, records...)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) List(_ context.Context, f Filter) ([]model.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Record
	skipped := 0
	for _, rec := range r.records {
		if f.StudentID != "" && rec.StudentID != f.StudentID {
			continue
		}
		if f.Lab != "" && rec.Lab != f.Lab {
			continue
		}
		if skipped < f.Offset {
			skipped++
			continue
		}
		out = append(out, rec)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
