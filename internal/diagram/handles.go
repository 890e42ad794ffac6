package diagram

import (
	"fmt"
	"regexp"
	"strings"
)

// Side is the node edge a handle sits on.
type Side string

const (
	SideLeft   Side = "left"
	SideRight  Side = "right"
	SideTop    Side = "top"
	SideBottom Side = "bottom"
)

// HandleRole determines which edge endpoints a handle can serve. A "both"
// handle expands at render time into two logical endpoints sharing the same
// geometric slot, suffixed -source and -target.
type HandleRole string

const (
	RoleSource HandleRole = "source"
	RoleTarget HandleRole = "target"
	RoleBoth   HandleRole = "both"
)

// Handle is a named connection point on a node's boundary.
type Handle struct {
	// ID is the base handle identifier: "{nodeId}-{slot}". Edges reference
	// it with a -source or -target suffix appended.
	ID string `json:"id"`

	// Side is the node edge the handle sits on.
	Side Side `json:"side"`

	// Offset is the fraction along the side, so handles stay attached to
	// their edge when the node is resized.
	Offset float64 `json:"offset"`

	// Role is which endpoint kinds the handle serves.
	Role HandleRole `json:"role"`
}

// MaxHandles caps how many handles a node can carry in total.
const MaxHandles = 7

// ErrHandleLimit is returned when adding a handle would exceed MaxHandles.
var ErrHandleLimit = fmt.Errorf("diagram: handle limit of %d reached", MaxHandles)

// DefaultHandles synthesizes the canonical six-handle layout for a node:
// one handle centered on each of the left and right sides, and two handles
// on each of the top and bottom sides at 25% and 75% of the width.
func DefaultHandles(nodeID string) []Handle {
	return []Handle{
		{ID: nodeID + "-left", Side: SideLeft, Offset: 0.5, Role: RoleBoth},
		{ID: nodeID + "-right", Side: SideRight, Offset: 0.5, Role: RoleBoth},
		{ID: nodeID + "-top-1", Side: SideTop, Offset: 0.25, Role: RoleBoth},
		{ID: nodeID + "-top-2", Side: SideTop, Offset: 0.75, Role: RoleBoth},
		{ID: nodeID + "-bottom-1", Side: SideBottom, Offset: 0.25, Role: RoleBoth},
		{ID: nodeID + "-bottom-2", Side: SideBottom, Offset: 0.75, Role: RoleBoth},
	}
}

// Handles returns the node's effective handle set: the explicit list when
// present, otherwise the default layout.
func (n *Node) Handles() []Handle {
	if len(n.Data.Handles) > 0 {
		return n.Data.Handles
	}
	return DefaultHandles(n.ID)
}

// HasHandle reports whether the node exposes a handle with the given base ID.
func (n *Node) HasHandle(baseID string) bool {
	for _, h := range n.Handles() {
		if h.ID == baseID {
			return true
		}
	}
	return false
}

// AddHandle appends a new handle on the bottom edge, taking the next free
// bottom slot number. Handles added beyond the two defaults are re-spaced
// evenly along the bottom so they stay readable as more are added.
// Returns ErrHandleLimit once the node carries MaxHandles handles.
func (n *Node) AddHandle(role HandleRole) (Handle, error) {
	handles := n.Handles()
	if len(handles) >= MaxHandles {
		return Handle{}, ErrHandleLimit
	}
	if role == "" {
		role = RoleBoth
	}

	slot := 0
	for _, h := range handles {
		if h.Side == SideBottom {
			slot++
		}
	}
	h := Handle{
		ID:   fmt.Sprintf("%s-bottom-%d", n.ID, slot+1),
		Side: SideBottom,
		Role: role,
	}
	handles = append(handles, h)

	respaceAddedBottom(n.ID, handles)
	n.Data.Handles = handles
	return h, nil
}

// RemoveLastHandle pops the most recently added handle and returns it.
// The second return is false when only the default layout remains.
//
// Callers owning edges must cascade-delete any edge referencing the removed
// handle; Graph.RemoveLastHandle does this.
func (n *Node) RemoveLastHandle() (Handle, bool) {
	handles := n.Data.Handles
	if len(handles) <= len(DefaultHandles(n.ID)) {
		// Never pops below the default layout. A node hydrated with an
		// explicit copy of the defaults behaves the same as one without.
		if len(handles) == 0 || isDefaultLayout(n.ID, handles) {
			return Handle{}, false
		}
	}
	last := handles[len(handles)-1]
	handles = handles[:len(handles)-1]
	respaceAddedBottom(n.ID, handles)
	n.Data.Handles = handles
	return last, true
}

// respaceAddedBottom distributes the non-default bottom handles evenly
// along the bottom edge. Default handles keep their 25%/75% slots.
func respaceAddedBottom(nodeID string, handles []Handle) {
	defaults := map[string]bool{}
	for _, d := range DefaultHandles(nodeID) {
		defaults[d.ID] = true
	}
	var added []*Handle
	for i := range handles {
		if handles[i].Side == SideBottom && !defaults[handles[i].ID] {
			added = append(added, &handles[i])
		}
	}
	for i, h := range added {
		h.Offset = float64(i+1) / float64(len(added)+1)
	}
}

func isDefaultLayout(nodeID string, handles []Handle) bool {
	defaults := DefaultHandles(nodeID)
	if len(handles) != len(defaults) {
		return false
	}
	for i, h := range handles {
		if h.ID != defaults[i].ID {
			return false
		}
	}
	return true
}

// HandlePoint returns the handle's anchor point in graph coordinates,
// derived from the node's current bounding box. Width-relative offsets mean
// the point follows the node through resizes.
func (n *Node) HandlePoint(h Handle) Position {
	x, y, w, hgt := n.Rect()
	switch h.Side {
	case SideLeft:
		return Position{X: x, Y: y + hgt*h.Offset}
	case SideRight:
		return Position{X: x + w, Y: y + hgt*h.Offset}
	case SideTop:
		return Position{X: x + w*h.Offset, Y: y}
	default:
		return Position{X: x + w*h.Offset, Y: y + hgt}
	}
}

// handleRefPattern is the wire grammar for edge handle references:
// {nodeId}-{slot}-{source|target}, slot ∈ {left, right, top-N, bottom-N}.
var handleRefPattern = regexp.MustCompile(`^(.+)-(left|right|top-[0-9]+|bottom-[0-9]+)-(source|target)$`)

// ParseHandleRef splits a wire handle reference into its base handle ID and
// role suffix. ok is false when the reference does not match the grammar.
func ParseHandleRef(ref string) (baseID string, role HandleRole, ok bool) {
	m := handleRefPattern.FindStringSubmatch(ref)
	if m == nil {
		return "", "", false
	}
	return m[1] + "-" + m[2], HandleRole(m[3]), true
}

// HandleRef builds the wire reference for a handle in the given role.
func HandleRef(baseID string, role HandleRole) string {
	return baseID + "-" + string(role)
}

// ValidHandleRef reports whether ref follows the wire grammar and, when the
// owning node is known, whether the node actually exposes the handle.
func ValidHandleRef(ref string) bool {
	_, _, ok := ParseHandleRef(ref)
	return ok
}

// StripRole removes a trailing -source/-target suffix if present.
func StripRole(ref string) string {
	if base, _, ok := ParseHandleRef(ref); ok {
		return base
	}
	return strings.TrimSuffix(strings.TrimSuffix(ref, "-source"), "-target")
}
