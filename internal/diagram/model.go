// Package diagram provides the graph data model for FlowSketch.
//
// It defines the node and edge types that represent architecture diagram
// components (databases, queues, compute, etc.) and the connections between
// them, along with the closed variant catalog that binds each component kind
// to its default name, icon token, and fill color.
package diagram

import (
	"strings"

	"github.com/google/uuid"
)

// Variant is the closed set of component kinds a node can have.
type Variant string

const (
	VariantCloud      Variant = "cloud"
	VariantDatabase   Variant = "database"
	VariantQueue      Variant = "queue"
	VariantCompute    Variant = "compute"
	VariantStorage    Variant = "storage"
	VariantAPI        Variant = "api"
	VariantUser       Variant = "user"
	VariantDecision   Variant = "decision"
	VariantStart      Variant = "start"
	VariantEnd        Variant = "end"
	VariantAnnotation Variant = "annotation"
)

// VariantInfo carries the static display data bound to a variant.
type VariantInfo struct {
	// DefaultName is the display name assigned to new nodes of this variant.
	DefaultName string

	// Icon is the icon token understood by rendering clients.
	Icon string

	// Color is the hex fill color.
	Color string
}

// Variants is the variant catalog. It is a fixed configuration table shared
// with the AI generator: both sides must agree on keys and colors exactly or
// generated graphs render with unknown-variant fallbacks.
var Variants = map[Variant]VariantInfo{
	VariantCloud:      {DefaultName: "Cloud", Icon: "FaCloud", Color: "#A0E7E5"},
	VariantDatabase:   {DefaultName: "Database", Icon: "FaDatabase", Color: "#B4F8C8"},
	VariantQueue:      {DefaultName: "Queue", Icon: "MdQueue", Color: "#FBE7C6"},
	VariantCompute:    {DefaultName: "Compute", Icon: "FaMicrochip", Color: "#FFAEBC"},
	VariantStorage:    {DefaultName: "Storage", Icon: "FaHdd", Color: "#B28DFF"},
	VariantAPI:        {DefaultName: "API", Icon: "AiOutlineApi", Color: "#FFDFD3"},
	VariantUser:       {DefaultName: "User", Icon: "FaUser", Color: "#E0C3FC"},
	VariantDecision:   {DefaultName: "Decision", Icon: "FaQuestionCircle", Color: "#C3FBD8"},
	VariantStart:      {DefaultName: "Start", Icon: "FaPlay", Color: "#DEF9C4"},
	VariantEnd:        {DefaultName: "End", Icon: "FaStop", Color: "#FFC9DE"},
	VariantAnnotation: {DefaultName: "Annotation", Icon: "FaRegComment", Color: "#D3E4CD"},
}

// KnownVariant reports whether v is part of the catalog.
func KnownVariant(v Variant) bool {
	_, ok := Variants[v]
	return ok
}

// SizeClass is a visual size preset for nodes.
type SizeClass string

const (
	SizeSmall  SizeClass = "small"
	SizeMedium SizeClass = "medium"
	SizeLarge  SizeClass = "large"
)

// SizeClassDims maps each size class to its node dimensions.
var SizeClassDims = map[SizeClass]Size{
	SizeSmall:  {Width: 225, Height: 100},
	SizeMedium: {Width: 250, Height: 120},
	SizeLarge:  {Width: 300, Height: 140},
}

// Default node dimensions, used when a node has no explicit size and as the
// footprint for collision-aware placement of new nodes.
const (
	DefaultNodeWidth  = 225
	DefaultNodeHeight = 100
)

// Position is a point in graph (unscaled) coordinate space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a node's bounding-box dimensions.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NodeData is the display payload of a node.
type NodeData struct {
	// Variant is the component kind; one of the catalog keys.
	Variant Variant `json:"variant"`

	// Name is the variant's default display name.
	Name string `json:"name"`

	// Label is the user-editable display text, independent of Name.
	Label string `json:"label"`

	// Color is the hex fill color, seeded from the variant catalog.
	Color string `json:"color"`

	// Icon is the icon token.
	Icon string `json:"icon"`

	// Handles lists the node's connection points. Empty means the default
	// six-handle layout is in effect.
	Handles []Handle `json:"handles,omitempty"`
}

// Node represents one architecture component on the canvas.
type Node struct {
	// ID is the unique identifier, stable for the node's lifetime.
	ID string `json:"id"`

	// Type is the renderer node type; always "baseNode".
	Type string `json:"type"`

	// Position is the top-left corner in graph coordinates.
	Position Position `json:"position"`

	// Width and Height are the bounding-box dimensions.
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	// Data is the display payload.
	Data NodeData `json:"data"`
}

// Rect returns the node's bounding rectangle, falling back to the default
// dimensions when the node has no explicit size.
func (n *Node) Rect() (x, y, w, h float64) {
	w, h = n.Width, n.Height
	if w <= 0 {
		w = DefaultNodeWidth
	}
	if h <= 0 {
		h = DefaultNodeHeight
	}
	return n.Position.X, n.Position.Y, w, h
}

// EdgeStyle is the stroke styling captured for an edge at creation time.
type EdgeStyle struct {
	Stroke      string  `json:"stroke"`
	StrokeWidth float64 `json:"strokeWidth"`
}

// DefaultEdgeLabel is the directional glyph used when an edge has no label.
const DefaultEdgeLabel = "→"

// DefaultEdgeStrokeWidth is the stroke width applied to new edges.
const DefaultEdgeStrokeWidth = 6

// Edge represents a directed connection between two node handles.
type Edge struct {
	// ID is the unique identifier.
	ID string `json:"id"`

	// Source and Target are node IDs.
	Source string `json:"source"`
	Target string `json:"target"`

	// SourceHandle and TargetHandle are wire-format handle references,
	// carrying the -source / -target role suffix.
	SourceHandle string `json:"sourceHandle"`
	TargetHandle string `json:"targetHandle"`

	// Label is the display text; defaults to a directional glyph.
	Label string `json:"label"`

	// Style is the stroke styling, captured from the source node's color
	// when the edge was created. It is not re-derived on later recolor.
	Style EdgeStyle `json:"style"`
}

// NodeType is the renderer type assigned to every node.
const NodeType = "baseNode"

// NewNodeID mints a node ID scoped to a design. The design ID prefix keeps
// IDs unique across designs that are merged into a single canvas.
func NewNodeID(designID string) string {
	return "node-" + designID + "-" + shortID()
}

// NewEdgeID mints an edge ID.
func NewEdgeID() string {
	return "edge-" + shortID()
}

// NewDesignID mints a design ID.
func NewDesignID() string {
	return uuid.NewString()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// NewNode builds a node of the given variant at a position, using the
// catalog defaults for name, icon, and color. Returns nil for variants
// outside the catalog.
func NewNode(designID string, variant Variant, pos Position) *Node {
	info, ok := Variants[variant]
	if !ok {
		return nil
	}
	return &Node{
		ID:       NewNodeID(designID),
		Type:     NodeType,
		Position: pos,
		Width:    DefaultNodeWidth,
		Height:   DefaultNodeHeight,
		Data: NodeData{
			Variant: variant,
			Name:    info.DefaultName,
			Label:   info.DefaultName,
			Color:   info.Color,
			Icon:    info.Icon,
		},
	}
}
