// Package store provides design persistence for FlowSketch.
//
// It defines the DesignStore interface that all persistence implementations
// must satisfy, along with the Design document type exchanged with them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
)

// Visibility controls whether a design shows up in public listings.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// Design is the persisted aggregate: the graph plus its metadata. The node
// and edge arrays are always persisted wholesale, never partially.
type Design struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Prompt     string         `json:"prompt"`
	Visibility Visibility     `json:"visibility"`
	Nodes      []diagram.Node `json:"nodes"`
	Edges      []diagram.Edge `json:"edges"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// DesignSummary is the listing row for a design.
type DesignSummary struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Prompt     string     `json:"prompt"`
	Visibility Visibility `json:"visibility"`
	NodeCount  int        `json:"nodeCount"`
	EdgeCount  int        `json:"edgeCount"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// ErrDesignNotFound is returned for lookups of unknown design IDs.
var ErrDesignNotFound = errors.New("store: design not found")

// DesignStore defines the interface for design persistence.
//
// Implementations must be safe for concurrent use.
type DesignStore interface {
	// Create persists a new design and returns the stored copy.
	Create(ctx context.Context, d *Design) (*Design, error)

	// Get returns a design by ID, or ErrDesignNotFound.
	Get(ctx context.Context, designID string) (*Design, error)

	// Save replaces a design's node and edge arrays and returns the
	// canonical stored copy, which callers adopt as their new state.
	Save(ctx context.Context, designID string, nodes []diagram.Node, edges []diagram.Edge) (*Design, error)

	// Delete removes a design and its snapshot image.
	Delete(ctx context.Context, designID string) error

	// List returns summaries of all designs.
	List(ctx context.Context) ([]DesignSummary, error)

	// PutImage stores the design's snapshot raster.
	PutImage(ctx context.Context, designID string, png []byte) error

	// GetImage returns the design's snapshot raster, or ErrDesignNotFound.
	GetImage(ctx context.Context, designID string) ([]byte, error)

	// Close releases all resources held by the store.
	Close() error
}

// NewDesign builds an empty design with metadata defaults applied.
func NewDesign(title, prompt string) *Design {
	now := time.Now().UTC()
	return &Design{
		ID:         diagram.NewDesignID(),
		Title:      title,
		Prompt:     prompt,
		Visibility: VisibilityPrivate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Summary derives the listing row for a design.
func (d *Design) Summary() DesignSummary {
	return DesignSummary{
		ID:         d.ID,
		Title:      d.Title,
		Prompt:     d.Prompt,
		Visibility: d.Visibility,
		NodeCount:  len(d.Nodes),
		EdgeCount:  len(d.Edges),
		UpdatedAt:  d.UpdatedAt,
	}
}
