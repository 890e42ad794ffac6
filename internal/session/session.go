// Package session provides the graph mutation session: the dirty-tracking
// state machine that sits between the canonical graph store and whatever
// surface edits it.
//
// A session distinguishes programmatic hydration from genuine user edits,
// gates saving on real unsaved changes, and drives the snapshot settle
// timer so a raster capture only fires once the graph has stopped moving.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/flowsketch/flowsketch-go/internal/diagram"
	"github.com/flowsketch/flowsketch-go/internal/placement"
	"github.com/flowsketch/flowsketch-go/internal/snapshot"
	"github.com/flowsketch/flowsketch-go/internal/store"
)

// State is the session lifecycle state.
type State string

const (
	// StateHydrating: the initial remote load is in progress. Mutations
	// applied by the load path never flip the dirty flag.
	StateHydrating State = "hydrating"

	// StateClean: the graph matches what the store last acknowledged.
	StateClean State = "clean"

	// StateDirty: structural edits exist that have not been persisted.
	StateDirty State = "dirty"

	// StateSaving: a save is in flight. Further saves are rejected; edits
	// are accepted and leave the session dirty once the save completes.
	StateSaving State = "saving"

	// StateError: hydration failed. The session must not be presented as
	// an empty-but-editable design.
	StateError State = "error"
)

var (
	// ErrNotDirty is returned by Save when there is nothing to persist or
	// a save is already in flight.
	ErrNotDirty = errors.New("session: no unsaved changes")

	// ErrNotEditable is returned for mutations attempted before hydration
	// completed or after it failed.
	ErrNotEditable = errors.New("session: graph is not editable in this state")
)

// DesignSource is the slice of the design store a session needs.
// Both store.DesignStore implementations and the remote client satisfy it.
type DesignSource interface {
	Get(ctx context.Context, designID string) (*store.Design, error)
	Save(ctx context.Context, designID string, nodes []diagram.Node, edges []diagram.Edge) (*store.Design, error)
	PutImage(ctx context.Context, designID string, png []byte) error
}

// Capturer renders the graph to a raster. snapshot.Renderer satisfies it.
type Capturer interface {
	RenderPNG(nodes []diagram.Node, edges []diagram.Edge) ([]byte, error)
}

// Option configures a Session.
type Option func(*Session)

// WithCapturer enables snapshot capture with the given renderer.
func WithCapturer(c Capturer) Option {
	return func(s *Session) { s.capturer = c }
}

// WithSettle overrides the snapshot settle windows.
func WithSettle(settle, initial time.Duration) Option {
	return func(s *Session) {
		s.settle = settle
		s.initialSettle = initial
	}
}

// WithPlacementEngine overrides the placement engine, for deterministic
// placement in tests.
func WithPlacementEngine(e *placement.Engine) Option {
	return func(s *Session) { s.placer = e }
}

// WithLogger overrides the logger used for swallowed snapshot failures.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(s *Session) { s.logf = logf }
}

// Session wraps the graph with change tracking and the save/snapshot flow.
//
// All mutation methods are synchronous and run to completion; the only
// suspension points are the remote load, the remote save, and the snapshot
// settle-and-upload, each an independent asynchronous operation.
type Session struct {
	mu sync.Mutex

	designID string
	source   DesignSource
	graph    *diagram.Graph
	placer   *placement.Engine

	state             State
	editedWhileSaving bool

	title  string
	prompt string

	// Ephemeral view state; never persisted, never dirties the session.
	viewport placement.Viewport
	selected string

	capturer      Capturer
	scheduler     *snapshot.Scheduler
	settle        time.Duration
	initialSettle time.Duration
	logf          func(format string, args ...any)
}

// New creates a session for a design. The session starts in Hydrating and
// must be hydrated before it accepts edits.
func New(designID string, source DesignSource, opts ...Option) *Session {
	s := &Session{
		designID:      designID,
		source:        source,
		graph:         diagram.NewGraph(),
		placer:        placement.NewEngine(),
		state:         StateHydrating,
		settle:        snapshot.DefaultSettle,
		initialSettle: snapshot.DefaultInitialSettle,
		logf:          log.Printf,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.capturer != nil {
		s.scheduler = snapshot.NewScheduler(s.settle, s.captureAndUpload)
	}
	return s
}

// DesignID returns the design this session edits.
func (s *Session) DesignID() string { return s.designID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dirty reports whether unsaved structural edits exist.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateDirty || s.editedWhileSaving
}

// CanSave reports whether the save action should be enabled: only when the
// session is dirty and no save is already in flight.
func (s *Session) CanSave() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateDirty
}

// Graph exposes the canonical graph for reading. Mutations must go through
// the session so dirty tracking stays correct.
func (s *Session) Graph() *diagram.Graph { return s.graph }

// Title returns the design title loaded at hydration.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Prompt returns the generation prompt loaded at hydration.
func (s *Session) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

// Hydrate loads the design from the source and populates the graph. On
// success the session is Clean and an initial snapshot capture is armed.
// On failure the session is Error and stays uneditable.
func (s *Session) Hydrate(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateHydrating && s.state != StateError {
		s.mu.Unlock()
		return fmt.Errorf("session: hydrate in state %s", s.state)
	}
	s.state = StateHydrating
	s.mu.Unlock()

	d, err := s.source.Get(ctx, s.designID)
	if err != nil {
		s.mu.Lock()
		s.state = StateError
		s.mu.Unlock()
		return fmt.Errorf("loading design %s: %w", s.designID, err)
	}

	if err := s.graph.Replace(d.Nodes, d.Edges); err != nil {
		s.mu.Lock()
		s.state = StateError
		s.mu.Unlock()
		return fmt.Errorf("hydrating design %s: %w", s.designID, err)
	}

	s.mu.Lock()
	s.title = d.Title
	s.prompt = d.Prompt
	s.state = StateClean
	s.mu.Unlock()

	if s.scheduler != nil {
		s.scheduler.Schedule(s.initialSettle)
	}
	return nil
}

// HydrateFromGenerated populates the graph from an AI generation result
// instead of a stored design. The graph arrives complete or not at all, and
// the session ends up Clean, exactly as after a remote load.
func (s *Session) HydrateFromGenerated(title, prompt string, nodes []diagram.Node, edges []diagram.Edge) error {
	s.mu.Lock()
	if s.state != StateHydrating && s.state != StateError {
		s.mu.Unlock()
		return fmt.Errorf("session: hydrate in state %s", s.state)
	}
	s.mu.Unlock()

	if err := s.graph.Replace(nodes, edges); err != nil {
		s.mu.Lock()
		s.state = StateError
		s.mu.Unlock()
		return fmt.Errorf("applying generated graph: %w", err)
	}

	s.mu.Lock()
	s.title = title
	s.prompt = prompt
	s.state = StateClean
	s.mu.Unlock()

	if s.scheduler != nil {
		s.scheduler.Schedule(s.initialSettle)
	}
	return nil
}

// SetViewport records the current pan/zoom window. View changes never dirty
// the session.
func (s *Session) SetViewport(vp placement.Viewport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = vp
}

// Viewport returns the current view window.
func (s *Session) Viewport() placement.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

// SelectNode records the selection. Selection never dirties the session.
func (s *Session) SelectNode(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = id
}

// SelectedNode returns the current selection.
func (s *Session) SelectedNode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// editable reports whether mutations are accepted in the current state.
func editable(st State) bool {
	return st == StateClean || st == StateDirty || st == StateSaving
}

// markEdited flips the dirty flag after a successful structural mutation
// and pushes out any pending snapshot capture. Must not hold s.mu.
func (s *Session) markEdited() {
	s.mu.Lock()
	switch s.state {
	case StateClean:
		s.state = StateDirty
	case StateSaving:
		// This edit is not part of the in-flight payload; the session
		// returns to Dirty when that save completes.
		s.editedWhileSaving = true
	}
	s.mu.Unlock()

	if s.scheduler != nil {
		s.scheduler.Touch()
	}
}

func (s *Session) checkEditable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !editable(s.state) {
		return fmt.Errorf("%w: %s", ErrNotEditable, s.state)
	}
	return nil
}

// AddNode inserts a new node of the given variant at a collision-free
// position inside the current viewport. Placement exhaustion returns
// placement.ErrNoFreePosition and inserts nothing.
func (s *Session) AddNode(variant diagram.Variant) (*diagram.Node, error) {
	if err := s.checkEditable(); err != nil {
		return nil, err
	}
	if !diagram.KnownVariant(variant) {
		return nil, fmt.Errorf("%w: %q", diagram.ErrUnknownVariant, variant)
	}

	occupied := placement.OccupiedRects(s.graph)
	pos, err := s.placer.FindFreePosition(occupied, s.Viewport(), diagram.Size{
		Width:  diagram.DefaultNodeWidth,
		Height: diagram.DefaultNodeHeight,
	})
	if err != nil {
		return nil, err
	}

	node := diagram.NewNode(s.designID, variant, pos)
	if err := s.graph.InsertNode(node); err != nil {
		return nil, err
	}
	s.markEdited()
	return node, nil
}

// MoveNode repositions a node.
func (s *Session) MoveNode(id string, pos diagram.Position) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	if s.graph.Node(id) == nil {
		return nil // trailing move for a node deleted mid-drag
	}
	s.graph.MoveNode(id, pos)
	s.markEdited()
	return nil
}

// ResizeNode sets explicit node dimensions.
func (s *Session) ResizeNode(id string, size diagram.Size) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	if s.graph.Node(id) == nil {
		return nil
	}
	s.graph.ResizeNode(id, size)
	s.markEdited()
	return nil
}

// SetSizeClass applies a size preset to a node.
func (s *Session) SetSizeClass(id string, class diagram.SizeClass) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	if err := s.graph.SetSizeClass(id, class); err != nil {
		return err
	}
	s.markEdited()
	return nil
}

// Connect creates an edge between two handles, capturing the stroke color
// from the source node.
func (s *Session) Connect(sourceID, sourceHandle, targetID, targetHandle string) (*diagram.Edge, error) {
	if err := s.checkEditable(); err != nil {
		return nil, err
	}
	edge, err := s.graph.Connect(sourceID, sourceHandle, targetID, targetHandle)
	if err != nil {
		return nil, err
	}
	s.markEdited()
	return edge, nil
}

// DeleteNode removes a node and its edges.
func (s *Session) DeleteNode(id string) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	if !s.graph.DeleteNode(id) {
		return nil
	}
	s.markEdited()
	return nil
}

// DeleteEdge removes an edge.
func (s *Session) DeleteEdge(id string) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	if !s.graph.DeleteEdge(id) {
		return nil
	}
	s.markEdited()
	return nil
}

// RelabelNode replaces a node's label.
func (s *Session) RelabelNode(id, label string) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	if s.graph.Node(id) == nil {
		return nil
	}
	s.graph.RelabelNode(id, label)
	s.markEdited()
	return nil
}

// RecolorNode replaces a node's fill color. Edge strokes captured from the
// prior color are left as they are.
func (s *Session) RecolorNode(id, color string) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	if s.graph.Node(id) == nil {
		return nil
	}
	s.graph.RecolorNode(id, color)
	s.markEdited()
	return nil
}

// AddHandle appends a handle to a node's bottom edge, within the per-node cap.
func (s *Session) AddHandle(nodeID string, role diagram.HandleRole) (diagram.Handle, error) {
	if err := s.checkEditable(); err != nil {
		return diagram.Handle{}, err
	}
	h, err := s.graph.AddHandle(nodeID, role)
	if err != nil {
		return diagram.Handle{}, err
	}
	s.markEdited()
	return h, nil
}

// RemoveLastHandle pops a node's most recently added handle, cascading any
// dependent edges.
func (s *Session) RemoveLastHandle(nodeID string) (diagram.Handle, error) {
	if err := s.checkEditable(); err != nil {
		return diagram.Handle{}, err
	}
	h, ok := s.graph.RemoveLastHandle(nodeID)
	if !ok {
		return diagram.Handle{}, nil
	}
	s.markEdited()
	return h, nil
}

// Save pushes the graph to the source and adopts the returned canonical
// copy. Only allowed while Dirty; a save already in flight or a clean
// session returns ErrNotDirty.
//
// Edits that land while the save is in transit are not part of the payload;
// the session lands on Dirty instead of Clean so they are picked up by the
// next save cycle. On failure the session returns to Dirty and the caller
// may retry; nothing is retried automatically.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateDirty {
		s.mu.Unlock()
		return ErrNotDirty
	}
	s.state = StateSaving
	s.editedWhileSaving = false
	s.mu.Unlock()

	nodes := s.graph.Nodes()
	edges := s.graph.Edges()

	saved, err := s.source.Save(ctx, s.designID, nodes, edges)
	if err != nil {
		s.mu.Lock()
		s.state = StateDirty
		s.mu.Unlock()
		return fmt.Errorf("saving design %s: %w", s.designID, err)
	}

	s.mu.Lock()
	if s.editedWhileSaving {
		// Newer edits exist; keep them instead of the canonical copy and
		// stay dirty for the next save cycle.
		s.editedWhileSaving = false
		s.state = StateDirty
		s.mu.Unlock()
	} else {
		s.mu.Unlock()
		if err := s.graph.Replace(saved.Nodes, saved.Edges); err != nil {
			// A canonical copy that fails validation is a server bug;
			// keep the local graph rather than corrupt it.
			s.logf("session: rejecting canonical copy for %s: %v", s.designID, err)
		}
		s.mu.Lock()
		s.state = StateClean
		s.mu.Unlock()
	}

	if s.scheduler != nil {
		s.scheduler.Schedule(s.settle)
	}
	return nil
}

// CaptureSnapshot renders and uploads a snapshot immediately, bypassing the
// settle timer. Used by callers that already know the graph is stable.
func (s *Session) CaptureSnapshot() error {
	if s.capturer == nil {
		return errors.New("session: no capturer configured")
	}
	png, err := s.capturer.RenderPNG(s.graph.Nodes(), s.graph.Edges())
	if err != nil {
		return err
	}
	return s.source.PutImage(context.Background(), s.designID, png)
}

// captureAndUpload is the settle-timer callback. The snapshot is a derived
// artifact: failures are logged and swallowed, never surfaced as errors.
func (s *Session) captureAndUpload() {
	if err := s.CaptureSnapshot(); err != nil {
		s.logf("session: snapshot capture for %s skipped: %v", s.designID, err)
	}
}

// Dispose cancels any pending snapshot capture. The session must not be
// used afterwards.
func (s *Session) Dispose() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
