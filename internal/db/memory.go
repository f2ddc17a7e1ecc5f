package db

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"wiki_harvester/internal/models"
)

type memoryDocument struct {
	data      []byte
	hash      string
	updatedAt int64
	writes    int
}

// MemoryStore keeps documents in process memory. Datasets round-trip through
// JSON, so readers never share state with writers.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*memoryDocument
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*memoryDocument)}
}

func (m *MemoryStore) Write(_ context.Context, key string, dataset interface{}) error {
	hash, data, err := datasetHash(dataset)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().Unix()
	if doc, ok := m.docs[key]; ok && doc.hash == hash {
		doc.updatedAt = now
		return nil
	}

	writes := 0
	if doc, ok := m.docs[key]; ok {
		writes = doc.writes
	}
	m.docs[key] = &memoryDocument{data: data, hash: hash, updatedAt: now, writes: writes + 1}
	return nil
}

func (m *MemoryStore) Read(_ context.Context, key string, out interface{}) error {
	m.mu.RLock()
	doc, ok := m.docs[key]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := json.Unmarshal(doc.data, out); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, key)
	return nil
}

func (m *MemoryStore) matching(pattern string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid key pattern %q: %w", pattern, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for k := range m.docs {
		if re.MatchString(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) FindRevisions(ctx context.Context, pattern string, limit int) ([]models.RevisionDocument, error) {
	keys, err := m.matching(pattern)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	docs := make([]models.RevisionDocument, 0, len(keys))
	for _, k := range keys {
		var dataset []models.Revision
		if err := m.Read(ctx, k, &dataset); err != nil {
			return nil, err
		}
		docs = append(docs, models.RevisionDocument{Key: k, Dataset: dataset})
	}
	return docs, nil
}

func (m *MemoryStore) Count(_ context.Context, pattern string) (int64, error) {
	keys, err := m.matching(pattern)
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

// Writes reports how many times the dataset under key actually changed.
func (m *MemoryStore) Writes(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if doc, ok := m.docs[key]; ok {
		return doc.writes
	}
	return 0
}

// Keys lists every stored key in order.
func (m *MemoryStore) Keys() []string {
	keys, _ := m.matching("")
	return keys
}
