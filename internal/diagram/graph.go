// Package diagram: in-memory graph store.
//
// Graph is a lightweight, map-backed store of Node and Edge instances with
// O(1) lookups by ID and adjacency indexes so that cascade deletes scale
// with the affected edges rather than the whole edge set. Node insertion
// order is preserved for stable serialization.
package diagram

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Validation failures returned by mutation operations. The attempted
// mutation is discarded and the prior state is preserved unchanged.
var (
	ErrDuplicateNode  = errors.New("diagram: node id already present")
	ErrNodeNotFound   = errors.New("diagram: node not found")
	ErrEdgeNotFound   = errors.New("diagram: edge not found")
	ErrUnknownVariant = errors.New("diagram: unknown variant")
	ErrDanglingEdge   = errors.New("diagram: edge references a missing node")
	ErrUnknownHandle  = errors.New("diagram: edge references a missing handle")
	ErrBadHandleRef   = errors.New("diagram: malformed handle reference")
)

// Graph is the canonical mutable node/edge collection. It is the single
// source of truth for a design's structure; no other component holds a
// divergent copy of the node or edge arrays.
//
// Removing a node cascades to every edge where it appears as source or
// target, so the handle-reference and endpoint invariants hold at all times.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	edges map[string]*Edge

	// order preserves node insertion order for serialization.
	order []string

	// Adjacency indexes, kept in sync by insert/remove helpers.
	outgoing map[string]map[string]*Edge
	incoming map[string]map[string]*Edge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		edges:    make(map[string]*Edge),
		outgoing: make(map[string]map[string]*Edge),
		incoming: make(map[string]map[string]*Edge),
	}
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Node returns a copy of the node with the given ID, or nil.
func (g *Graph) Node(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	cp := *n
	cp.Data.Handles = append([]Handle(nil), n.Data.Handles...)
	return &cp
}

// Edge returns a copy of the edge with the given ID, or nil.
func (g *Graph) Edge(id string) *Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[id]
	if !ok {
		return nil
	}
	cp := *e
	return &cp
}

// Nodes returns the nodes in insertion order. The returned slice holds
// copies; mutating it does not touch the store.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		n := g.nodes[id]
		cp := *n
		cp.Data.Handles = append([]Handle(nil), n.Data.Handles...)
		out = append(out, cp)
	}
	return out
}

// Edges returns copies of all edges, ordered by the insertion order of
// their source node so serialization is stable.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, 0, len(g.edges))
	for _, id := range g.order {
		for _, e := range g.sortedOutgoing(id) {
			out = append(out, *e)
		}
	}
	// Edges whose source node vanished mid-hydration should not exist, but
	// guard against returning fewer edges than the store holds.
	if len(out) != len(g.edges) {
		out = out[:0]
		for _, e := range g.edges {
			out = append(out, *e)
		}
	}
	return out
}

func (g *Graph) sortedOutgoing(nodeID string) []*Edge {
	m := g.outgoing[nodeID]
	if len(m) == 0 {
		return nil
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Edge, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

// InsertNode adds a node. The node's ID must not already be present, and
// its variant must come from the catalog.
func (g *Graph) InsertNode(node *Node) error {
	if node == nil || node.ID == "" {
		return ErrNodeNotFound
	}
	if !KnownVariant(node.Data.Variant) {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, node.Data.Variant)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[node.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
	}
	cp := *node
	if cp.Type == "" {
		cp.Type = NodeType
	}
	cp.Data.Handles = append([]Handle(nil), node.Data.Handles...)
	g.nodes[cp.ID] = &cp
	g.order = append(g.order, cp.ID)
	return nil
}

// NodePatch is a partial update for UpdateNode. Nil fields are left as-is,
// so applying the same patch twice yields the same state as applying it once.
type NodePatch struct {
	Position *Position
	Width    *float64
	Height   *float64
	Label    *string
	Color    *string
	Handles  *[]Handle
}

// UpdateNode merges a patch into the node. A missing ID is a no-op, not an
// error: the UI may issue trailing move events for a node deleted mid-drag.
func (g *Graph) UpdateNode(id string, patch NodePatch) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	if patch.Position != nil {
		n.Position = *patch.Position
	}
	if patch.Width != nil && *patch.Width > 0 {
		n.Width = *patch.Width
	}
	if patch.Height != nil && *patch.Height > 0 {
		n.Height = *patch.Height
	}
	if patch.Label != nil {
		n.Data.Label = *patch.Label
	}
	if patch.Color != nil {
		n.Data.Color = *patch.Color
	}
	if patch.Handles != nil {
		n.Data.Handles = append([]Handle(nil), (*patch.Handles)...)
	}
}

// MoveNode repositions a node. Missing IDs are a no-op.
func (g *Graph) MoveNode(id string, pos Position) {
	g.UpdateNode(id, NodePatch{Position: &pos})
}

// ResizeNode sets explicit node dimensions. Handle offsets are fractions of
// the side length, so handles stay attached through the resize.
func (g *Graph) ResizeNode(id string, size Size) {
	g.UpdateNode(id, NodePatch{Width: &size.Width, Height: &size.Height})
}

// SetSizeClass applies a size-class preset to a node.
func (g *Graph) SetSizeClass(id string, class SizeClass) error {
	dims, ok := SizeClassDims[class]
	if !ok {
		return fmt.Errorf("diagram: unknown size class %q", class)
	}
	g.ResizeNode(id, dims)
	return nil
}

// RelabelNode replaces the node's label. Missing IDs are a no-op.
func (g *Graph) RelabelNode(id, label string) {
	g.UpdateNode(id, NodePatch{Label: &label})
}

// RecolorNode replaces the node's fill color. Edges whose stroke was
// captured from this node's prior color are not updated; edge color is a
// snapshot taken at edge creation.
func (g *Graph) RecolorNode(id, color string) {
	g.UpdateNode(id, NodePatch{Color: &color})
}

// DeleteNode removes a node and cascade-deletes every edge that references
// it as source or target. Returns false if the node did not exist.
func (g *Graph) DeleteNode(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[id]; !ok {
		return false
	}
	delete(g.nodes, id)
	for i, oid := range g.order {
		if oid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	g.cascadeEdgesForNode(id)
	return true
}

// InsertEdge validates and adds an edge. Both endpoint nodes must exist,
// and both handle references must follow the wire grammar and resolve to a
// handle the endpoint node actually exposes. Self-loops are permitted.
func (g *Graph) InsertEdge(edge *Edge) error {
	if edge == nil || edge.ID == "" {
		return ErrEdgeNotFound
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.insertEdgeLocked(edge)
}

func (g *Graph) insertEdgeLocked(edge *Edge) error {
	src, ok := g.nodes[edge.Source]
	if !ok {
		return fmt.Errorf("%w: source %s", ErrDanglingEdge, edge.Source)
	}
	dst, ok := g.nodes[edge.Target]
	if !ok {
		return fmt.Errorf("%w: target %s", ErrDanglingEdge, edge.Target)
	}

	srcBase, srcRole, ok := ParseHandleRef(edge.SourceHandle)
	if !ok || srcRole != RoleSource {
		return fmt.Errorf("%w: %q", ErrBadHandleRef, edge.SourceHandle)
	}
	dstBase, dstRole, ok := ParseHandleRef(edge.TargetHandle)
	if !ok || dstRole != RoleTarget {
		return fmt.Errorf("%w: %q", ErrBadHandleRef, edge.TargetHandle)
	}
	if !src.HasHandle(srcBase) {
		return fmt.Errorf("%w: %s on node %s", ErrUnknownHandle, srcBase, src.ID)
	}
	if !dst.HasHandle(dstBase) {
		return fmt.Errorf("%w: %s on node %s", ErrUnknownHandle, dstBase, dst.ID)
	}

	cp := *edge
	if cp.Label == "" {
		cp.Label = DefaultEdgeLabel
	}
	if old, exists := g.edges[cp.ID]; exists {
		delete(g.outgoing[old.Source], cp.ID)
		delete(g.incoming[old.Target], cp.ID)
	}
	g.edges[cp.ID] = &cp
	if g.outgoing[cp.Source] == nil {
		g.outgoing[cp.Source] = make(map[string]*Edge)
	}
	g.outgoing[cp.Source][cp.ID] = &cp
	if g.incoming[cp.Target] == nil {
		g.incoming[cp.Target] = make(map[string]*Edge)
	}
	g.incoming[cp.Target][cp.ID] = &cp
	return nil
}

// Connect builds and inserts an edge between two handles, capturing the
// stroke color from the source node's current color. Handle arguments are
// base handle IDs; the role suffixes are applied here.
func (g *Graph) Connect(sourceID, sourceHandle, targetID, targetHandle string) (*Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	src, ok := g.nodes[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: source %s", ErrDanglingEdge, sourceID)
	}
	edge := &Edge{
		ID:           NewEdgeID(),
		Source:       sourceID,
		Target:       targetID,
		SourceHandle: HandleRef(StripRole(sourceHandle), RoleSource),
		TargetHandle: HandleRef(StripRole(targetHandle), RoleTarget),
		Label:        DefaultEdgeLabel,
		Style: EdgeStyle{
			Stroke:      src.Data.Color,
			StrokeWidth: DefaultEdgeStrokeWidth,
		},
	}
	if err := g.insertEdgeLocked(edge); err != nil {
		return nil, err
	}
	return g.edges[edge.ID], nil
}

// DeleteEdge removes an edge. Returns false if it did not exist.
func (g *Graph) DeleteEdge(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.edges[id]
	if !ok {
		return false
	}
	delete(g.edges, id)
	delete(g.outgoing[e.Source], id)
	delete(g.incoming[e.Target], id)
	return true
}

// RelabelEdge replaces an edge's label. Missing IDs are a no-op.
func (g *Graph) RelabelEdge(id, label string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.edges[id]; ok {
		if label == "" {
			label = DefaultEdgeLabel
		}
		e.Label = label
	}
}

// AddHandle appends a handle to the node's bottom edge. Fails with
// ErrHandleLimit at the per-node cap and ErrNodeNotFound for unknown IDs.
func (g *Graph) AddHandle(nodeID string, role HandleRole) (Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[nodeID]
	if !ok {
		return Handle{}, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}
	return n.AddHandle(role)
}

// RemoveLastHandle pops the node's most recently added handle and
// cascade-deletes every edge that referenced it, so no edge is left
// pointing at a handle that no longer exists.
func (g *Graph) RemoveLastHandle(nodeID string) (Handle, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[nodeID]
	if !ok {
		return Handle{}, false
	}
	removed, ok := n.RemoveLastHandle()
	if !ok {
		return Handle{}, false
	}
	for id, e := range g.edges {
		if StripRole(e.SourceHandle) == removed.ID || StripRole(e.TargetHandle) == removed.ID {
			delete(g.edges, id)
			delete(g.outgoing[e.Source], id)
			delete(g.incoming[e.Target], id)
		}
	}
	return removed, true
}

// Replace swaps the graph's entire contents for the given arrays, as after
// a hydration or a save round trip that returned a canonical copy. Either
// all of the input is applied or none of it.
func (g *Graph) Replace(nodes []Node, edges []Edge) error {
	staged := NewGraph()
	for i := range nodes {
		n := nodes[i]
		if err := staged.InsertNode(&n); err != nil {
			return err
		}
	}
	for i := range edges {
		e := edges[i]
		if err := staged.InsertEdge(&e); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = staged.nodes
	g.edges = staged.edges
	g.order = staged.order
	g.outgoing = staged.outgoing
	g.incoming = staged.incoming
	return nil
}

// Bounds returns the bounding box of all nodes. ok is false for an empty
// graph.
func (g *Graph) Bounds() (minX, minY, maxX, maxY float64, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.nodes) == 0 {
		return 0, 0, 0, 0, false
	}
	first := true
	for _, n := range g.nodes {
		x, y, w, h := n.Rect()
		if first {
			minX, minY, maxX, maxY = x, y, x+w, y+h
			first = false
			continue
		}
		if x < minX {
			minX = x
		}
		if y < minY {
			minY = y
		}
		if x+w > maxX {
			maxX = x + w
		}
		if y+h > maxY {
			maxY = y + h
		}
	}
	return minX, minY, maxX, maxY, true
}

// cascadeEdgesForNode removes all edges where the node is source or target.
// Must be called with the write lock held.
func (g *Graph) cascadeEdgesForNode(nodeID string) {
	if out, ok := g.outgoing[nodeID]; ok {
		for _, e := range out {
			delete(g.edges, e.ID)
			delete(g.incoming[e.Target], e.ID)
		}
		delete(g.outgoing, nodeID)
	}
	if in, ok := g.incoming[nodeID]; ok {
		for _, e := range in {
			delete(g.edges, e.ID)
			delete(g.outgoing[e.Source], e.ID)
		}
		delete(g.incoming, nodeID)
	}
}

