package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process Store with exact cosine search. It honors the
// same ordering and scoping contract as the Postgres implementation and is
// the reference the engine tests run against.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]Record   // chunk id -> record
	byDoc     map[string][]string // document id -> chunk ids
}

// NewMemory creates an in-memory vector store for vectors of the given
// dimension.
func NewMemory(dimension int) *Memory {
	return &Memory{
		dimension: dimension,
		records:   make(map[string]Record),
		byDoc:     make(map[string][]string),
	}
}

// InsertBatch upserts records, replacing any existing chunk with the same id.
func (m *Memory) InsertBatch(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range records {
		if len(rec.Vector) != m.dimension {
			return fmt.Errorf("chunk %s: vector dimension %d, store dimension %d", rec.Chunk.ID, len(rec.Vector), m.dimension)
		}
		if rec.Chunk.ID == "" {
			return fmt.Errorf("chunk id is required")
		}

		if prev, ok := m.records[rec.Chunk.ID]; ok {
			// Replacement may move the chunk between documents.
			if prev.Chunk.DocumentID != rec.Chunk.DocumentID {
				m.unlinkLocked(prev.Chunk)
				m.byDoc[rec.Chunk.DocumentID] = append(m.byDoc[rec.Chunk.DocumentID], rec.Chunk.ID)
			}
		} else {
			m.byDoc[rec.Chunk.DocumentID] = append(m.byDoc[rec.Chunk.DocumentID], rec.Chunk.ID)
		}
		m.records[rec.Chunk.ID] = rec
	}
	return nil
}

func (m *Memory) unlinkLocked(c Chunk) {
	ids := m.byDoc[c.DocumentID]
	for i, id := range ids {
		if id == c.ID {
			m.byDoc[c.DocumentID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// Search scans the scoped chunks and returns the topK closest.
func (m *Memory) Search(ctx context.Context, documentIDs []string, queryVector []float32, topK int) ([]Result, error) {
	if topK <= 0 || len(documentIDs) == 0 {
		return nil, nil
	}
	if len(queryVector) != m.dimension {
		return nil, fmt.Errorf("query vector dimension %d, store dimension %d", len(queryVector), m.dimension)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Result
	for _, docID := range documentIDs {
		for _, chunkID := range m.byDoc[docID] {
			rec := m.records[chunkID]
			results = append(results, Result{
				Chunk:    rec.Chunk,
				Distance: CosineDistance(queryVector, rec.Vector),
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		if results[i].Chunk.Position != results[j].Chunk.Position {
			return results[i].Chunk.Position < results[j].Chunk.Position
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteDocument removes all chunks of a document.
func (m *Memory) DeleteDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, chunkID := range m.byDoc[documentID] {
		delete(m.records, chunkID)
	}
	delete(m.byDoc, documentID)
	return nil
}

// Count returns the number of chunks stored for a document.
func (m *Memory) Count(ctx context.Context, documentID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byDoc[documentID]), nil
}

// Ping always succeeds.
func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// CosineDistance computes 1 - cosine similarity. Zero vectors are treated
// as maximally distant rather than dividing by zero.
func CosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

var _ Store = (*Memory)(nil)
