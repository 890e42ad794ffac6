package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariantCatalog(t *testing.T) {
	t.Parallel()

	assert.Len(t, Variants, 11)
	assert.Equal(t, "#A0E7E5", Variants[VariantCloud].Color)
	assert.Equal(t, "#B4F8C8", Variants[VariantDatabase].Color)
	assert.Equal(t, "FaMicrochip", Variants[VariantCompute].Icon)
	assert.Equal(t, "API", Variants[VariantAPI].DefaultName)

	assert.True(t, KnownVariant(VariantQueue))
	assert.False(t, KnownVariant("mainframe"))
	assert.False(t, KnownVariant(""))
}

func TestSizeClassDims(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Size{Width: 225, Height: 100}, SizeClassDims[SizeSmall])
	assert.Equal(t, Size{Width: 250, Height: 120}, SizeClassDims[SizeMedium])
	assert.Equal(t, Size{Width: 300, Height: 140}, SizeClassDims[SizeLarge])
}

func TestNewNode(t *testing.T) {
	t.Parallel()

	t.Run("CatalogDefaults", func(t *testing.T) {
		t.Parallel()
		n := NewNode("d1", VariantDatabase, Position{X: 100, Y: 200})

		require.NotNil(t, n)
		assert.True(t, strings.HasPrefix(n.ID, "node-d1-"))
		assert.Equal(t, NodeType, n.Type)
		assert.Equal(t, Position{X: 100, Y: 200}, n.Position)
		assert.Equal(t, float64(DefaultNodeWidth), n.Width)
		assert.Equal(t, float64(DefaultNodeHeight), n.Height)
		assert.Equal(t, VariantDatabase, n.Data.Variant)
		assert.Equal(t, "Database", n.Data.Name)
		assert.Equal(t, "Database", n.Data.Label)
		assert.Equal(t, "#B4F8C8", n.Data.Color)
		assert.Equal(t, "FaDatabase", n.Data.Icon)
		assert.Empty(t, n.Data.Handles)
	})

	t.Run("UnknownVariant", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, NewNode("d1", "mainframe", Position{}))
	})
}

func TestNodeRect(t *testing.T) {
	t.Parallel()

	t.Run("ExplicitSize", func(t *testing.T) {
		t.Parallel()
		n := Node{Position: Position{X: 10, Y: 20}, Width: 300, Height: 140}
		x, y, w, h := n.Rect()
		assert.Equal(t, []float64{10, 20, 300, 140}, []float64{x, y, w, h})
	})

	t.Run("DefaultSize", func(t *testing.T) {
		t.Parallel()
		n := Node{Position: Position{X: 10, Y: 20}}
		_, _, w, h := n.Rect()
		assert.Equal(t, float64(DefaultNodeWidth), w)
		assert.Equal(t, float64(DefaultNodeHeight), h)
	})
}

func TestIDMinting(t *testing.T) {
	t.Parallel()

	nodeID := NewNodeID("design-a")
	assert.True(t, strings.HasPrefix(nodeID, "node-design-a-"))
	assert.NotEqual(t, nodeID, NewNodeID("design-a"))

	edgeID := NewEdgeID()
	assert.True(t, strings.HasPrefix(edgeID, "edge-"))
	assert.NotEqual(t, edgeID, NewEdgeID())

	assert.NotEmpty(t, NewDesignID())
	assert.NotEqual(t, NewDesignID(), NewDesignID())
}
