// Package placement provides collision-aware positioning for newly
// inserted diagram nodes.
//
// New nodes are dropped somewhere inside the visible viewport without
// overlapping existing nodes. The search is bounded random sampling: cheap,
// guaranteed to terminate, and good enough at diagram scale — it makes no
// attempt at optimal packing.
package placement

import (
	"errors"
	"math/rand"
	"time"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
)

// Rect is an axis-aligned rectangle in graph coordinates.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// NodeRect returns the node's occupied rectangle.
func NodeRect(n *diagram.Node) Rect {
	x, y, w, h := n.Rect()
	return Rect{X: x, Y: y, Width: w, Height: h}
}

// Intersects reports whether two rectangles overlap on both axes. All four
// comparisons are strict, so rectangles that merely touch do not collide.
func Intersects(a, b Rect) bool {
	return a.X < b.X+b.Width &&
		a.X+a.Width > b.X &&
		a.Y < b.Y+b.Height &&
		a.Y+a.Height > b.Y
}

// Viewport is the visible window in graph coordinates: the pan origin and
// the screen dimensions divided by the zoom factor.
type Viewport struct {
	OriginX float64
	OriginY float64
	Width   float64
	Height  float64
}

// DefaultMaxAttempts bounds the sampling loop.
const DefaultMaxAttempts = 500

// ErrNoFreePosition is returned when no non-colliding slot was found within
// the attempt budget. The caller must surface the condition and must not
// insert the node.
var ErrNoFreePosition = errors.New("placement: no free position found")

// Engine finds free positions for new nodes.
type Engine struct {
	rng         *rand.Rand
	maxAttempts int
}

// NewEngine creates an engine with a time-seeded source and the default
// attempt budget.
func NewEngine() *Engine {
	return NewEngineWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewEngineWithSource creates an engine with an explicit random source, for
// deterministic tests.
func NewEngineWithSource(src rand.Source) *Engine {
	return &Engine{rng: rand.New(src), maxAttempts: DefaultMaxAttempts}
}

// SetMaxAttempts overrides the attempt budget. Values below 1 are ignored.
func (e *Engine) SetMaxAttempts(n int) {
	if n >= 1 {
		e.maxAttempts = n
	}
}

// FindFreePosition samples uniformly random positions inside the viewport
// until one does not intersect any occupied rectangle, or the attempt
// budget is exhausted.
func (e *Engine) FindFreePosition(occupied []Rect, vp Viewport, size diagram.Size) (diagram.Position, error) {
	spanX := vp.Width - size.Width
	spanY := vp.Height - size.Height
	if spanX < 0 {
		spanX = 0
	}
	if spanY < 0 {
		spanY = 0
	}

	for try := 0; try < e.maxAttempts; try++ {
		candidate := Rect{
			X:      vp.OriginX + e.rng.Float64()*spanX,
			Y:      vp.OriginY + e.rng.Float64()*spanY,
			Width:  size.Width,
			Height: size.Height,
		}
		collides := false
		for _, o := range occupied {
			if Intersects(candidate, o) {
				collides = true
				break
			}
		}
		if !collides {
			return diagram.Position{X: candidate.X, Y: candidate.Y}, nil
		}
	}
	return diagram.Position{}, ErrNoFreePosition
}

// OccupiedRects collects the occupied rectangles of all nodes in a graph,
// read as a point-in-time snapshot at call time.
func OccupiedRects(g *diagram.Graph) []Rect {
	nodes := g.Nodes()
	rects := make([]Rect, 0, len(nodes))
	for i := range nodes {
		rects = append(rects, NodeRect(&nodes[i]))
	}
	return rects
}
