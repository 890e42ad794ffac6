package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedGraph(t *testing.T) (*Graph, *Node, *Node) {
	t.Helper()
	g := NewGraph()
	a := NewNode("d1", VariantAPI, Position{X: 0, Y: 0})
	b := NewNode("d1", VariantDatabase, Position{X: 500, Y: 0})
	require.NoError(t, g.InsertNode(a))
	require.NoError(t, g.InsertNode(b))
	return g, a, b
}

func TestNewGraph(t *testing.T) {
	t.Parallel()

	g := NewGraph()

	assert.NotNil(t, g)
	assert.Equal(t, 0, g.NodeCount())
	assert.Equal(t, 0, g.EdgeCount())
}

func TestGraph_InsertNode(t *testing.T) {
	t.Parallel()

	t.Run("InsertSingle", func(t *testing.T) {
		t.Parallel()
		g := NewGraph()
		n := NewNode("d1", VariantCloud, Position{X: 10, Y: 20})

		require.NoError(t, g.InsertNode(n))

		assert.Equal(t, 1, g.NodeCount())
		got := g.Node(n.ID)
		require.NotNil(t, got)
		assert.Equal(t, n.ID, got.ID)
		assert.Equal(t, VariantCloud, got.Data.Variant)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		t.Parallel()
		g := NewGraph()
		n := NewNode("d1", VariantCloud, Position{})

		require.NoError(t, g.InsertNode(n))
		err := g.InsertNode(n)

		assert.ErrorIs(t, err, ErrDuplicateNode)
		assert.Equal(t, 1, g.NodeCount())
	})

	t.Run("UnknownVariant", func(t *testing.T) {
		t.Parallel()
		g := NewGraph()
		n := &Node{ID: "n1", Data: NodeData{Variant: "mainframe"}}

		assert.ErrorIs(t, g.InsertNode(n), ErrUnknownVariant)
		assert.Equal(t, 0, g.NodeCount())
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		t.Parallel()
		g := NewGraph()
		n := NewNode("d1", VariantCloud, Position{})
		require.NoError(t, g.InsertNode(n))

		got := g.Node(n.ID)
		got.Data.Label = "mutated"

		assert.NotEqual(t, "mutated", g.Node(n.ID).Data.Label)
	})
}

func TestGraph_InsertionOrder(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	var ids []string
	for i := 0; i < 5; i++ {
		n := NewNode("d1", VariantCompute, Position{X: float64(i) * 300})
		require.NoError(t, g.InsertNode(n))
		ids = append(ids, n.ID)
	}

	nodes := g.Nodes()
	require.Len(t, nodes, 5)
	for i, n := range nodes {
		assert.Equal(t, ids[i], n.ID)
	}
}

func TestGraph_UpdateNode(t *testing.T) {
	t.Parallel()

	t.Run("PartialPatch", func(t *testing.T) {
		t.Parallel()
		g, a, _ := seedGraph(t)

		label := "Gateway"
		g.UpdateNode(a.ID, NodePatch{Label: &label})

		got := g.Node(a.ID)
		assert.Equal(t, "Gateway", got.Data.Label)
		assert.Equal(t, a.Data.Color, got.Data.Color)
		assert.Equal(t, a.Position, got.Position)
	})

	t.Run("Idempotent", func(t *testing.T) {
		t.Parallel()
		g, a, _ := seedGraph(t)

		patch := NodePatch{Position: &Position{X: 42, Y: 7}}
		g.UpdateNode(a.ID, patch)
		first := g.Node(a.ID)
		g.UpdateNode(a.ID, patch)
		second := g.Node(a.ID)

		assert.Equal(t, first, second)
	})

	t.Run("MissingIDIsNoop", func(t *testing.T) {
		t.Parallel()
		g, _, _ := seedGraph(t)
		label := "ghost"

		g.UpdateNode("node-d1-gone", NodePatch{Label: &label})

		assert.Equal(t, 2, g.NodeCount())
	})

	t.Run("RejectsNonPositiveSize", func(t *testing.T) {
		t.Parallel()
		g, a, _ := seedGraph(t)
		zero := 0.0

		g.UpdateNode(a.ID, NodePatch{Width: &zero})

		assert.Equal(t, float64(DefaultNodeWidth), g.Node(a.ID).Width)
	})
}

func TestGraph_SetSizeClass(t *testing.T) {
	t.Parallel()

	g, a, _ := seedGraph(t)

	require.NoError(t, g.SetSizeClass(a.ID, SizeLarge))
	got := g.Node(a.ID)
	assert.Equal(t, 300.0, got.Width)
	assert.Equal(t, 140.0, got.Height)

	assert.Error(t, g.SetSizeClass(a.ID, "enormous"))
}

func TestGraph_Connect(t *testing.T) {
	t.Parallel()

	t.Run("MintsStyledEdge", func(t *testing.T) {
		t.Parallel()
		g, a, b := seedGraph(t)

		edge, err := g.Connect(a.ID, a.ID+"-right", b.ID, b.ID+"-left")
		require.NoError(t, err)

		assert.Equal(t, a.ID, edge.Source)
		assert.Equal(t, b.ID, edge.Target)
		assert.Equal(t, a.ID+"-right-source", edge.SourceHandle)
		assert.Equal(t, b.ID+"-left-target", edge.TargetHandle)
		assert.Equal(t, DefaultEdgeLabel, edge.Label)
		assert.Equal(t, a.Data.Color, edge.Style.Stroke)
		assert.Equal(t, float64(DefaultEdgeStrokeWidth), edge.Style.StrokeWidth)
		assert.Equal(t, 1, g.EdgeCount())
	})

	t.Run("StrokeIsSnapshotAtCreation", func(t *testing.T) {
		t.Parallel()
		g, a, b := seedGraph(t)

		edge, err := g.Connect(a.ID, a.ID+"-right", b.ID, b.ID+"-left")
		require.NoError(t, err)
		g.RecolorNode(a.ID, "#123456")

		assert.Equal(t, a.Data.Color, g.Edge(edge.ID).Style.Stroke)
	})

	t.Run("AcceptsSuffixedHandles", func(t *testing.T) {
		t.Parallel()
		g, a, b := seedGraph(t)

		edge, err := g.Connect(a.ID, a.ID+"-right-source", b.ID, b.ID+"-left-target")
		require.NoError(t, err)
		assert.Equal(t, a.ID+"-right-source", edge.SourceHandle)
	})

	t.Run("SelfLoop", func(t *testing.T) {
		t.Parallel()
		g, a, _ := seedGraph(t)

		_, err := g.Connect(a.ID, a.ID+"-right", a.ID, a.ID+"-left")
		assert.NoError(t, err)
	})

	t.Run("MissingSource", func(t *testing.T) {
		t.Parallel()
		g, _, b := seedGraph(t)

		_, err := g.Connect("node-d1-gone", "node-d1-gone-right", b.ID, b.ID+"-left")
		assert.ErrorIs(t, err, ErrDanglingEdge)
	})
}

func TestGraph_InsertEdge(t *testing.T) {
	t.Parallel()

	t.Run("ValidatesEndpoints", func(t *testing.T) {
		t.Parallel()
		g, a, _ := seedGraph(t)

		err := g.InsertEdge(&Edge{
			ID:           "e1",
			Source:       a.ID,
			Target:       "node-d1-gone",
			SourceHandle: a.ID + "-right-source",
			TargetHandle: "node-d1-gone-left-target",
		})
		assert.ErrorIs(t, err, ErrDanglingEdge)
		assert.Equal(t, 0, g.EdgeCount())
	})

	t.Run("ValidatesHandleGrammar", func(t *testing.T) {
		t.Parallel()
		g, a, b := seedGraph(t)

		err := g.InsertEdge(&Edge{
			ID:           "e1",
			Source:       a.ID,
			Target:       b.ID,
			SourceHandle: a.ID + "-right", // missing role suffix
			TargetHandle: b.ID + "-left-target",
		})
		assert.ErrorIs(t, err, ErrBadHandleRef)
	})

	t.Run("ValidatesRoleDirection", func(t *testing.T) {
		t.Parallel()
		g, a, b := seedGraph(t)

		err := g.InsertEdge(&Edge{
			ID:           "e1",
			Source:       a.ID,
			Target:       b.ID,
			SourceHandle: a.ID + "-right-target", // wrong role for source side
			TargetHandle: b.ID + "-left-target",
		})
		assert.ErrorIs(t, err, ErrBadHandleRef)
	})

	t.Run("ValidatesHandleExists", func(t *testing.T) {
		t.Parallel()
		g, a, b := seedGraph(t)

		err := g.InsertEdge(&Edge{
			ID:           "e1",
			Source:       a.ID,
			Target:       b.ID,
			SourceHandle: a.ID + "-bottom-9-source",
			TargetHandle: b.ID + "-left-target",
		})
		assert.ErrorIs(t, err, ErrUnknownHandle)
	})

	t.Run("FillsDefaultLabel", func(t *testing.T) {
		t.Parallel()
		g, a, b := seedGraph(t)

		require.NoError(t, g.InsertEdge(&Edge{
			ID:           "e1",
			Source:       a.ID,
			Target:       b.ID,
			SourceHandle: a.ID + "-right-source",
			TargetHandle: b.ID + "-left-target",
		}))
		assert.Equal(t, DefaultEdgeLabel, g.Edge("e1").Label)
	})
}

func TestGraph_DeleteNode(t *testing.T) {
	t.Parallel()

	t.Run("CascadesEdges", func(t *testing.T) {
		t.Parallel()
		g, a, b := seedGraph(t)
		c := NewNode("d1", VariantQueue, Position{X: 1000})
		require.NoError(t, g.InsertNode(c))

		_, err := g.Connect(a.ID, a.ID+"-right", b.ID, b.ID+"-left")
		require.NoError(t, err)
		_, err = g.Connect(b.ID, b.ID+"-right", c.ID, c.ID+"-left")
		require.NoError(t, err)
		surviving, err := g.Connect(a.ID, a.ID+"-bottom-1", c.ID, c.ID+"-left")
		require.NoError(t, err)

		assert.True(t, g.DeleteNode(b.ID))

		assert.Equal(t, 2, g.NodeCount())
		assert.Equal(t, 1, g.EdgeCount())
		assert.NotNil(t, g.Edge(surviving.ID))
	})

	t.Run("MissingNode", func(t *testing.T) {
		t.Parallel()
		g, _, _ := seedGraph(t)
		assert.False(t, g.DeleteNode("node-d1-gone"))
	})
}

func TestGraph_DeleteEdge(t *testing.T) {
	t.Parallel()

	g, a, b := seedGraph(t)
	edge, err := g.Connect(a.ID, a.ID+"-right", b.ID, b.ID+"-left")
	require.NoError(t, err)

	assert.True(t, g.DeleteEdge(edge.ID))
	assert.Equal(t, 0, g.EdgeCount())
	assert.False(t, g.DeleteEdge(edge.ID))
	// Endpoint nodes survive.
	assert.Equal(t, 2, g.NodeCount())
}

func TestGraph_RelabelEdge(t *testing.T) {
	t.Parallel()

	g, a, b := seedGraph(t)
	edge, err := g.Connect(a.ID, a.ID+"-right", b.ID, b.ID+"-left")
	require.NoError(t, err)

	g.RelabelEdge(edge.ID, "reads from")
	assert.Equal(t, "reads from", g.Edge(edge.ID).Label)

	g.RelabelEdge(edge.ID, "")
	assert.Equal(t, DefaultEdgeLabel, g.Edge(edge.ID).Label)
}

func TestGraph_RemoveLastHandleCascades(t *testing.T) {
	t.Parallel()

	g, a, b := seedGraph(t)

	added, err := g.AddHandle(a.ID, RoleBoth)
	require.NoError(t, err)

	// One edge through the added handle, one through a default handle.
	doomed, err := g.Connect(a.ID, added.ID, b.ID, b.ID+"-left")
	require.NoError(t, err)
	surviving, err := g.Connect(a.ID, a.ID+"-right", b.ID, b.ID+"-left")
	require.NoError(t, err)

	removed, ok := g.RemoveLastHandle(a.ID)
	require.True(t, ok)
	assert.Equal(t, added.ID, removed.ID)

	assert.Nil(t, g.Edge(doomed.ID))
	assert.NotNil(t, g.Edge(surviving.ID))
	assert.Equal(t, 1, g.EdgeCount())
}

func TestGraph_Replace(t *testing.T) {
	t.Parallel()

	t.Run("SwapsContents", func(t *testing.T) {
		t.Parallel()
		g, _, _ := seedGraph(t)

		n := NewNode("d2", VariantUser, Position{})
		require.NoError(t, g.Replace([]Node{*n}, nil))

		assert.Equal(t, 1, g.NodeCount())
		assert.Equal(t, 0, g.EdgeCount())
		assert.NotNil(t, g.Node(n.ID))
	})

	t.Run("AllOrNothing", func(t *testing.T) {
		t.Parallel()
		g, a, _ := seedGraph(t)

		n := NewNode("d2", VariantUser, Position{})
		bad := Edge{
			ID:           "e1",
			Source:       n.ID,
			Target:       "node-d2-gone",
			SourceHandle: n.ID + "-right-source",
			TargetHandle: "node-d2-gone-left-target",
		}
		err := g.Replace([]Node{*n}, []Edge{bad})

		require.Error(t, err)
		// The previous contents are untouched.
		assert.Equal(t, 2, g.NodeCount())
		assert.NotNil(t, g.Node(a.ID))
		assert.Nil(t, g.Node(n.ID))
	})
}

func TestGraph_Bounds(t *testing.T) {
	t.Parallel()

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()
		g := NewGraph()
		_, _, _, _, ok := g.Bounds()
		assert.False(t, ok)
	})

	t.Run("SpansAllNodes", func(t *testing.T) {
		t.Parallel()
		g := NewGraph()
		a := NewNode("d1", VariantCloud, Position{X: -100, Y: 50})
		b := NewNode("d1", VariantCloud, Position{X: 400, Y: 300})
		require.NoError(t, g.InsertNode(a))
		require.NoError(t, g.InsertNode(b))

		minX, minY, maxX, maxY, ok := g.Bounds()
		require.True(t, ok)
		assert.Equal(t, -100.0, minX)
		assert.Equal(t, 50.0, minY)
		assert.Equal(t, 400.0+DefaultNodeWidth, maxX)
		assert.Equal(t, 300.0+DefaultNodeHeight, maxY)
	})
}

func TestGraph_EdgesOrdering(t *testing.T) {
	t.Parallel()

	g, a, b := seedGraph(t)
	c := NewNode("d1", VariantQueue, Position{X: 1000})
	require.NoError(t, g.InsertNode(c))

	e1, err := g.Connect(b.ID, b.ID+"-right", c.ID, c.ID+"-left")
	require.NoError(t, err)
	e2, err := g.Connect(a.ID, a.ID+"-right", b.ID, b.ID+"-left")
	require.NoError(t, err)

	edges := g.Edges()
	require.Len(t, edges, 2)
	// Ordered by source node insertion order, not edge creation order.
	assert.Equal(t, e2.ID, edges[0].ID)
	assert.Equal(t, e1.ID, edges[1].ID)
}
