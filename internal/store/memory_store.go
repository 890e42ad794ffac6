package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
)

// MemoryStore is an in-memory DesignStore for tests and ephemeral sessions.
type MemoryStore struct {
	mu      sync.RWMutex
	designs map[string]*Design
	images  map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		designs: make(map[string]*Design),
		images:  make(map[string][]byte),
	}
}

// Create implements DesignStore.
func (m *MemoryStore) Create(ctx context.Context, d *Design) (*Design, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneDesign(d)
	if cp.ID == "" {
		cp.ID = diagram.NewDesignID()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.Visibility == "" {
		cp.Visibility = VisibilityPrivate
	}
	m.designs[cp.ID] = cp
	return cloneDesign(cp), nil
}

// Get implements DesignStore.
func (m *MemoryStore) Get(ctx context.Context, designID string) (*Design, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.designs[designID]
	if !ok {
		return nil, ErrDesignNotFound
	}
	return cloneDesign(d), nil
}

// Save implements DesignStore.
func (m *MemoryStore) Save(ctx context.Context, designID string, nodes []diagram.Node, edges []diagram.Edge) (*Design, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.designs[designID]
	if !ok {
		return nil, ErrDesignNotFound
	}
	d.Nodes = append([]diagram.Node(nil), nodes...)
	d.Edges = normalizeEdgeLabels(edges)
	d.UpdatedAt = time.Now().UTC()
	return cloneDesign(d), nil
}

// Delete implements DesignStore.
func (m *MemoryStore) Delete(ctx context.Context, designID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.designs[designID]; !ok {
		return ErrDesignNotFound
	}
	delete(m.designs, designID)
	delete(m.images, designID)
	return nil
}

// List implements DesignStore.
func (m *MemoryStore) List(ctx context.Context) ([]DesignSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summaries := make([]DesignSummary, 0, len(m.designs))
	for _, d := range m.designs {
		summaries = append(summaries, d.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// PutImage implements DesignStore.
func (m *MemoryStore) PutImage(ctx context.Context, designID string, png []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.designs[designID]; !ok {
		return ErrDesignNotFound
	}
	m.images[designID] = append([]byte(nil), png...)
	return nil
}

// GetImage implements DesignStore.
func (m *MemoryStore) GetImage(ctx context.Context, designID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	img, ok := m.images[designID]
	if !ok {
		return nil, ErrDesignNotFound
	}
	return append([]byte(nil), img...), nil
}

// Close implements DesignStore.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.designs = nil
	m.images = nil
	return nil
}

func cloneDesign(d *Design) *Design {
	cp := *d
	cp.Nodes = append([]diagram.Node(nil), d.Nodes...)
	cp.Edges = append([]diagram.Edge(nil), d.Edges...)
	for i := range cp.Nodes {
		cp.Nodes[i].Data.Handles = append([]diagram.Handle(nil), d.Nodes[i].Data.Handles...)
	}
	return &cp
}
