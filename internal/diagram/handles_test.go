package diagram

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHandles(t *testing.T) {
	t.Parallel()

	handles := DefaultHandles("n1")
	require.Len(t, handles, 6)

	assert.Equal(t, "n1-left", handles[0].ID)
	assert.Equal(t, SideLeft, handles[0].Side)
	assert.Equal(t, 0.5, handles[0].Offset)

	assert.Equal(t, "n1-top-1", handles[2].ID)
	assert.Equal(t, 0.25, handles[2].Offset)
	assert.Equal(t, "n1-top-2", handles[3].ID)
	assert.Equal(t, 0.75, handles[3].Offset)

	assert.Equal(t, "n1-bottom-1", handles[4].ID)
	assert.Equal(t, "n1-bottom-2", handles[5].ID)

	for _, h := range handles {
		assert.Equal(t, RoleBoth, h.Role)
	}
}

func TestNodeHandles(t *testing.T) {
	t.Parallel()

	t.Run("DefaultsWhenEmpty", func(t *testing.T) {
		t.Parallel()
		n := NewNode("d1", VariantCloud, Position{})
		assert.Equal(t, DefaultHandles(n.ID), n.Handles())
		assert.True(t, n.HasHandle(n.ID+"-left"))
		assert.False(t, n.HasHandle(n.ID+"-middle"))
	})

	t.Run("ExplicitList", func(t *testing.T) {
		t.Parallel()
		n := Node{ID: "n1", Data: NodeData{Variant: VariantCloud, Handles: []Handle{
			{ID: "n1-left", Side: SideLeft, Offset: 0.5, Role: RoleBoth},
		}}}
		assert.Len(t, n.Handles(), 1)
		assert.False(t, n.HasHandle("n1-right"))
	})
}

func TestAddHandle(t *testing.T) {
	t.Parallel()

	t.Run("TakesNextBottomSlot", func(t *testing.T) {
		t.Parallel()
		n := NewNode("d1", VariantCompute, Position{})

		h, err := n.AddHandle(RoleBoth)
		require.NoError(t, err)
		assert.Equal(t, n.ID+"-bottom-3", h.ID)
		assert.Equal(t, SideBottom, h.Side)
		assert.Len(t, n.Handles(), 7)
	})

	t.Run("LimitAtSeven", func(t *testing.T) {
		t.Parallel()
		n := NewNode("d1", VariantCompute, Position{})

		_, err := n.AddHandle(RoleBoth)
		require.NoError(t, err)
		_, err = n.AddHandle(RoleBoth)
		assert.ErrorIs(t, err, ErrHandleLimit)
		assert.Len(t, n.Handles(), 7)
	})

	t.Run("SparseNodeTakesFiveMore", func(t *testing.T) {
		t.Parallel()
		// A node hydrated with only two handles has room for five additions.
		n := Node{ID: "n1", Data: NodeData{Variant: VariantCompute, Handles: []Handle{
			{ID: "n1-left", Side: SideLeft, Offset: 0.5, Role: RoleBoth},
			{ID: "n1-right", Side: SideRight, Offset: 0.5, Role: RoleBoth},
		}}}

		for i := 0; i < 5; i++ {
			_, err := n.AddHandle(RoleBoth)
			require.NoError(t, err, "add %d", i+1)
		}
		_, err := n.AddHandle(RoleBoth)
		assert.ErrorIs(t, err, ErrHandleLimit)
		assert.Len(t, n.Handles(), MaxHandles)
	})

	t.Run("AddedHandlesRespaced", func(t *testing.T) {
		t.Parallel()
		n := Node{ID: "n1", Data: NodeData{Variant: VariantCompute, Handles: []Handle{
			{ID: "n1-left", Side: SideLeft, Offset: 0.5, Role: RoleBoth},
			{ID: "n1-bottom-1", Side: SideBottom, Offset: 0.25, Role: RoleBoth},
			{ID: "n1-bottom-2", Side: SideBottom, Offset: 0.75, Role: RoleBoth},
		}}}

		a, err := n.AddHandle(RoleBoth)
		require.NoError(t, err)
		b, err := n.AddHandle(RoleBoth)
		require.NoError(t, err)
		c, err := n.AddHandle(RoleBoth)
		require.NoError(t, err)

		offsets := map[string]float64{}
		for _, h := range n.Handles() {
			offsets[h.ID] = h.Offset
		}
		// Default bottom slots keep their positions; only additions respace.
		assert.InDelta(t, 0.25, offsets["n1-bottom-1"], 1e-9)
		assert.InDelta(t, 0.75, offsets["n1-bottom-2"], 1e-9)
		assert.InDelta(t, 0.25, offsets[a.ID], 1e-9)
		assert.InDelta(t, 0.50, offsets[b.ID], 1e-9)
		assert.InDelta(t, 0.75, offsets[c.ID], 1e-9)
	})
}

func TestRemoveLastHandle(t *testing.T) {
	t.Parallel()

	t.Run("PopsMostRecent", func(t *testing.T) {
		t.Parallel()
		n := NewNode("d1", VariantCompute, Position{})
		added, err := n.AddHandle(RoleBoth)
		require.NoError(t, err)

		removed, ok := n.RemoveLastHandle()
		require.True(t, ok)
		assert.Equal(t, added.ID, removed.ID)
		assert.Len(t, n.Handles(), 6)
	})

	t.Run("NeverBelowDefaults", func(t *testing.T) {
		t.Parallel()
		n := NewNode("d1", VariantCompute, Position{})

		_, ok := n.RemoveLastHandle()
		assert.False(t, ok)

		// The same holds once the defaults are materialized explicitly.
		n.Data.Handles = DefaultHandles(n.ID)
		_, ok = n.RemoveLastHandle()
		assert.False(t, ok)
		assert.Len(t, n.Handles(), 6)
	})
}

func TestHandlePoint(t *testing.T) {
	t.Parallel()

	n := Node{ID: "n1", Position: Position{X: 100, Y: 50}, Width: 200, Height: 100}

	left := n.HandlePoint(Handle{Side: SideLeft, Offset: 0.5})
	assert.Equal(t, Position{X: 100, Y: 100}, left)

	right := n.HandlePoint(Handle{Side: SideRight, Offset: 0.5})
	assert.Equal(t, Position{X: 300, Y: 100}, right)

	top := n.HandlePoint(Handle{Side: SideTop, Offset: 0.25})
	assert.Equal(t, Position{X: 150, Y: 50}, top)

	bottom := n.HandlePoint(Handle{Side: SideBottom, Offset: 0.75})
	assert.Equal(t, Position{X: 250, Y: 150}, bottom)
}

func TestParseHandleRef(t *testing.T) {
	t.Parallel()

	t.Run("Valid", func(t *testing.T) {
		t.Parallel()
		cases := []struct {
			ref  string
			base string
			role HandleRole
		}{
			{"node-a-left-source", "node-a-left", RoleSource},
			{"node-a-right-target", "node-a-right", RoleTarget},
			{"node-a-top-1-source", "node-a-top-1", RoleSource},
			{"node-a-bottom-12-target", "node-a-bottom-12", RoleTarget},
		}
		for _, tc := range cases {
			base, role, ok := ParseHandleRef(tc.ref)
			require.True(t, ok, tc.ref)
			assert.Equal(t, tc.base, base)
			assert.Equal(t, tc.role, role)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		t.Parallel()
		for _, ref := range []string{
			"",
			"node-a-left",
			"node-a-left-both",
			"node-a-middle-source",
			"-left-source",
		} {
			_, _, ok := ParseHandleRef(ref)
			assert.False(t, ok, fmt.Sprintf("expected %q to be rejected", ref))
		}
	})
}

func TestHandleRefHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "n1-left-source", HandleRef("n1-left", RoleSource))
	assert.Equal(t, "n1-left", StripRole("n1-left-source"))
	assert.Equal(t, "n1-left", StripRole("n1-left-target"))
	assert.Equal(t, "n1-left", StripRole("n1-left"))
	assert.True(t, ValidHandleRef("n1-bottom-3-target"))
	assert.False(t, ValidHandleRef("n1-bottom-target"))
}
