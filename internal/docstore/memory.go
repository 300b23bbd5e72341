package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Backend. It copies documents on the way in and
// out so callers never share maps with the store.
type Memory struct {
	mu          sync.RWMutex
	collections map[Path]map[string]Document
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[Path]map[string]Document)}
}

func (m *Memory) List(ctx context.Context, path Path) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := make([]Document, 0, len(m.collections[path]))
	for _, doc := range m.collections[path] {
		cp, err := copyDocument(doc)
		if err != nil {
			return nil, err
		}
		docs = append(docs, cp)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (m *Memory) Get(ctx context.Context, path Path, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[path][id]
	if !ok {
		return nil, ErrNotFound
	}
	cp, err := copyDocument(doc)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

func (m *Memory) Put(ctx context.Context, path Path, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp, err := copyDocument(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	coll, ok := m.collections[path]
	if !ok {
		coll = make(map[string]Document)
		m.collections[path] = coll
	}
	coll[doc.ID] = cp
	return nil
}

func (m *Memory) Delete(ctx context.Context, path Path, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[path][id]; !ok {
		return ErrNotFound
	}
	delete(m.collections[path], id)
	return nil
}

func (m *Memory) Replace(ctx context.Context, path Path, docs []Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	coll := make(map[string]Document, len(docs))
	for _, doc := range docs {
		cp, err := copyDocument(doc)
		if err != nil {
			return err
		}
		coll[doc.ID] = cp
	}
	m.mu.Lock()
	m.collections[path] = coll
	m.mu.Unlock()
	return nil
}

func copyDocument(doc Document) (Document, error) {
	raw, err := json.Marshal(doc.Fields)
	if err != nil {
		return Document{}, fmt.Errorf("encode document %s: %w", doc.ID, err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Document{}, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	doc.Fields = fields
	return doc, nil
}
