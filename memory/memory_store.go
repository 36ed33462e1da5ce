package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	chronicleerrors "github.com/habiliai/chronicle/errors"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// InMemoryStore is an ephemeral Store used in tests and for stores opened
// with SqliteEnabled=false. Nothing survives Close.
type InMemoryStore struct {
	mu      sync.RWMutex
	writeMu sync.Mutex

	records map[uint]*Record
	vectors map[uint]*VectorEntry

	nextID        uint
	lastCommit    time.Time
	highWaterMark uint
}

// NewInMemoryStore creates a new in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[uint]*Record),
		vectors: make(map[uint]*VectorEntry),
	}
}

// Append implements Store.Append
func (s *InMemoryStore) Append(ctx context.Context, record *Record) error {
	if strings.TrimSpace(record.Content) == "" {
		return errors.Wrapf(chronicleerrors.ErrValidation, "content must not be empty")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Before(s.lastCommit) {
		now = s.lastCommit
	}
	s.lastCommit = now

	s.nextID++
	record.ID = s.nextID
	record.CreatedAt = now
	if record.Source == "" {
		record.Source = SourceUnknown
	}

	s.records[record.ID] = record.clone()
	return nil
}

// Get implements Store.Get
func (s *InMemoryStore) Get(ctx context.Context, id uint) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[id]
	if !exists {
		return nil, errors.Wrapf(chronicleerrors.ErrNotFound, "record %d", id)
	}
	return record.clone(), nil
}

// Scan implements Store.Scan
func (s *InMemoryStore) Scan(ctx context.Context, filter Filter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Record
	for _, record := range s.records {
		if filter.Matches(record) {
			results = append(results, record.clone())
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].ID > results[j].ID
	})

	return results, nil
}

// Count implements Store.Count
func (s *InMemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.records)), nil
}

// Stats implements Store.Stats
func (s *InMemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		Total:    int64(len(s.records)),
		Indexed:  int64(len(s.vectors)),
		BySource: map[string]int64{},
		ByTag:    map[string]int64{},
	}
	for _, record := range s.records {
		stats.BySource[record.Source]++
		for _, tag := range record.Tags {
			stats.ByTag[tag]++
		}
	}
	return stats, nil
}

// UpsertVector implements Store.UpsertVector
func (s *InMemoryStore) UpsertVector(ctx context.Context, entry *VectorEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vector := make([]float32, len(entry.Vector))
	copy(vector, entry.Vector)

	s.vectors[entry.RecordID] = &VectorEntry{
		RecordID:    entry.RecordID,
		Model:       entry.Model,
		ContentHash: entry.ContentHash,
		Vector:      vector,
	}
	return nil
}

// RemoveVector implements Store.RemoveVector
func (s *InMemoryStore) RemoveVector(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vectors, id)
	return nil
}

// DropVectors implements Store.DropVectors
func (s *InMemoryStore) DropVectors(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = make(map[uint]*VectorEntry)
	return nil
}

// Nearest implements Store.Nearest. Scores all vectors against the query in
// one matrix multiplication.
func (s *InMemoryStore) Nearest(ctx context.Context, query []float32, k int) ([]ScoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) == 0 || k <= 0 {
		return []ScoredRecord{}, nil
	}

	var entries []*VectorEntry
	for _, entry := range s.vectors {
		if len(entry.Vector) == len(query) {
			entries = append(entries, entry)
		}
	}
	if len(entries) == 0 {
		return []ScoredRecord{}, nil
	}

	dim := len(query)
	queryVec := make([]float64, dim)
	var queryNorm float64
	for i, v := range query {
		queryVec[i] = float64(v)
		queryNorm += float64(v) * float64(v)
	}

	data := make([]float64, len(entries)*dim)
	norms := make([]float64, len(entries))
	for i, entry := range entries {
		for j, v := range entry.Vector {
			data[i*dim+j] = float64(v)
			norms[i] += float64(v) * float64(v)
		}
	}

	queryVector := mat.NewVecDense(dim, queryVec)
	vectorMatrix := mat.NewDense(len(entries), dim, data)

	var products mat.VecDense
	products.MulVec(vectorMatrix, queryVector)

	results := make([]ScoredRecord, 0, len(entries))
	for i, entry := range entries {
		record, exists := s.records[entry.RecordID]
		if !exists {
			continue
		}
		score := cosineFromDot(products.AtVec(i), queryNorm, norms[i])
		results = append(results, ScoredRecord{
			Record: record.clone(),
			Score:  score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Record.CreatedAt.Equal(results[j].Record.CreatedAt) {
			return results[i].Record.CreatedAt.After(results[j].Record.CreatedAt)
		}
		return results[i].Record.ID > results[j].Record.ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// MissingVectors implements Store.MissingVectors
func (s *InMemoryStore) MissingVectors(ctx context.Context, afterID uint) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*Record
	for id, record := range s.records {
		if id <= afterID {
			continue
		}
		if _, indexed := s.vectors[id]; indexed {
			continue
		}
		results = append(results, record.clone())
	}

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

// VectorEntries implements Store.VectorEntries
func (s *InMemoryStore) VectorEntries(ctx context.Context) ([]*VectorEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]*VectorEntry, 0, len(s.vectors))
	for _, entry := range s.vectors {
		vector := make([]float32, len(entry.Vector))
		copy(vector, entry.Vector)
		entries = append(entries, &VectorEntry{
			RecordID:    entry.RecordID,
			Model:       entry.Model,
			ContentHash: entry.ContentHash,
			Vector:      vector,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RecordID < entries[j].RecordID })
	return entries, nil
}

// HighWaterMark implements Store.HighWaterMark
func (s *InMemoryStore) HighWaterMark(ctx context.Context) (uint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.highWaterMark, nil
}

// SetHighWaterMark implements Store.SetHighWaterMark
func (s *InMemoryStore) SetHighWaterMark(ctx context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highWaterMark = id
	return nil
}

// Verify implements Store.Verify
func (s *InMemoryStore) Verify(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, entry := range s.vectors {
		record, exists := s.records[id]
		if !exists {
			return errors.Wrapf(chronicleerrors.ErrCorruptIndex, "vector for nonexistent record %d", id)
		}
		if contentHash(record.Content) != entry.ContentHash {
			return errors.Wrapf(chronicleerrors.ErrCorruptIndex, "stale content hash for record %d", id)
		}
	}
	return nil
}

// Close implements Store.Close
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[uint]*Record)
	s.vectors = make(map[uint]*VectorEntry)
	return nil
}

func cosineFromDot(dot, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var (
	_ Store = (*InMemoryStore)(nil)
)
