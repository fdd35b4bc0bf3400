package semantic

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/aitutor/pdf-tutor/engine/domain"
)

// Index is the vector index contract shared by VectorStore and MemoryIndex.
type Index interface {
	EnsureReady(ctx context.Context) error
	Upsert(ctx context.Context, records []domain.EmbeddingRecord) error
	Search(ctx context.Context, vector []float32, filter domain.SearchFilter, topK int) ([]domain.RetrievalResult, error)
	DeleteByDocument(ctx context.Context, docID string) error
	DeleteByIDs(ctx context.Context, unitIDs []string) error
	Count(ctx context.Context, filter domain.SearchFilter) (int, error)
	Info(ctx context.Context) (IndexInfo, error)
}

var (
	_ Index = (*VectorStore)(nil)
	_ Index = (*MemoryIndex)(nil)
)

// MemoryIndex is an in-process Index used by tests and by the CLI when no
// Qdrant address is configured.
type MemoryIndex struct {
	mu      sync.RWMutex
	name    string
	dims    int
	records map[string]domain.EmbeddingRecord
}

// NewMemoryIndex creates an empty index of the given dimension.
func NewMemoryIndex(name string, dims int) *MemoryIndex {
	return &MemoryIndex{name: name, dims: dims, records: make(map[string]domain.EmbeddingRecord)}
}

func (m *MemoryIndex) EnsureReady(context.Context) error { return nil }

func (m *MemoryIndex) Upsert(_ context.Context, records []domain.EmbeddingRecord) error {
	for _, r := range records {
		if m.dims > 0 && len(r.Vector) != m.dims {
			return fmt.Errorf("semantic: upsert %s: vector has %d dims, index has %d", r.ID, len(r.Vector), m.dims)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *MemoryIndex) Search(_ context.Context, vector []float32, filter domain.SearchFilter, topK int) ([]domain.RetrievalResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]domain.RetrievalResult, 0, len(m.records))
	for _, r := range m.records {
		if filter.DocumentID != "" && r.Metadata.DocumentID != filter.DocumentID {
			continue
		}
		results = append(results, domain.RetrievalResult{Unit: r.Metadata.Unit(), Score: cosine(vector, r.Vector)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Unit.ID < results[j].Unit.ID
	})
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MemoryIndex) DeleteByDocument(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.records {
		if r.Metadata.DocumentID == docID {
			delete(m.records, id)
		}
	}
	return nil
}

func (m *MemoryIndex) DeleteByIDs(_ context.Context, unitIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range unitIDs {
		delete(m.records, id)
	}
	return nil
}

func (m *MemoryIndex) Count(_ context.Context, filter domain.SearchFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if filter.DocumentID == "" {
		return len(m.records), nil
	}
	n := 0
	for _, r := range m.records {
		if r.Metadata.DocumentID == filter.DocumentID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryIndex) Info(ctx context.Context) (IndexInfo, error) {
	n, _ := m.Count(ctx, domain.SearchFilter{})
	return IndexInfo{Name: m.name, Dims: m.dims, Metric: "Cosine", Points: n, Status: "Green", Backend: "memory"}, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
