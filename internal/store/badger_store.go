package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
)

// Key prefixes for different data types
const (
	prefixDesign = "d:" // design documents
	prefixImage  = "img:" // snapshot rasters
)

// BadgerStore is a BadgerDB-backed DesignStore.
type BadgerStore struct {
	mu sync.RWMutex
	db *badger.DB
}

// NewBadgerStore creates an uninitialized BadgerDB store.
func NewBadgerStore() *BadgerStore {
	return &BadgerStore{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerStore) Initialize(path string, readOnly bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithLoggingLevel(badger.ERROR)
	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	var err error
	b.db, err = badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w", err)
	}
	return nil
}

// Close releases all resources held by the store.
func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// Create implements DesignStore.
func (b *BadgerStore) Create(ctx context.Context, d *Design) (*Design, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *d
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

	if err := b.putDesign(&cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Get implements DesignStore.
func (b *BadgerStore) Get(ctx context.Context, designID string) (*Design, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.getDesign(designID)
}

// Save implements DesignStore. The node and edge arrays replace the stored
// ones wholesale; the returned copy is canonical.
func (b *BadgerStore) Save(ctx context.Context, designID string, nodes []diagram.Node, edges []diagram.Edge) (*Design, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, err := b.getDesign(designID)
	if err != nil {
		return nil, err
	}
	d.Nodes = append([]diagram.Node(nil), nodes...)
	d.Edges = normalizeEdgeLabels(edges)
	d.UpdatedAt = time.Now().UTC()

	if err := b.putDesign(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Delete implements DesignStore.
func (b *BadgerStore) Delete(ctx context.Context, designID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(designKey(designID)); err == badger.ErrKeyNotFound {
			return ErrDesignNotFound
		} else if err != nil {
			return fmt.Errorf("getting design: %w", err)
		}
		if err := txn.Delete(designKey(designID)); err != nil {
			return err
		}
		err := txn.Delete(imageKey(designID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// List implements DesignStore. Results are ordered by most recent update.
func (b *BadgerStore) List(ctx context.Context) ([]DesignSummary, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var summaries []DesignSummary

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixDesign)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var d Design
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			}); err != nil {
				continue
			}
			summaries = append(summaries, d.Summary())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// PutImage implements DesignStore.
func (b *BadgerStore) PutImage(ctx context.Context, designID string, png []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.getDesign(designID); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(imageKey(designID), png)
	})
}

// GetImage implements DesignStore.
func (b *BadgerStore) GetImage(ctx context.Context, designID string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var png []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(imageKey(designID))
		if err == badger.ErrKeyNotFound {
			return ErrDesignNotFound
		}
		if err != nil {
			return err
		}
		png, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return png, nil
}

func (b *BadgerStore) getDesign(designID string) (*Design, error) {
	var d Design
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(designKey(designID))
		if err == badger.ErrKeyNotFound {
			return ErrDesignNotFound
		}
		if err != nil {
			return fmt.Errorf("getting design: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &d)
		})
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (b *BadgerStore) putDesign(d *Design) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshaling design: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(designKey(d.ID), data)
	})
}

func designKey(id string) []byte {
	return []byte(prefixDesign + id)
}

func imageKey(id string) []byte {
	return []byte(prefixImage + id)
}

// normalizeEdgeLabels applies the default directional glyph to edges saved
// without a label, so loads never hand the editor an unlabeled edge.
func normalizeEdgeLabels(edges []diagram.Edge) []diagram.Edge {
	out := append([]diagram.Edge(nil), edges...)
	for i := range out {
		if out[i].Label == "" {
			out[i].Label = diagram.DefaultEdgeLabel
		}
	}
	return out
}
