package quadtree

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeIdParentChild(t *testing.T) {
	parent, err := ParseNodeId("r12321")
	require.NoError(t, err)
	child, err := ParseNodeId("r123210")
	require.NoError(t, err)

	got, ok := child.ParentId()
	assert.True(t, ok)
	assert.Equal(t, parent, got)

	_, ok = RootId().ParentId()
	assert.False(t, ok)
}

func TestNodeIdChildIndex(t *testing.T) {
	id, err := ParseNodeId("r123321")
	require.NoError(t, err)
	assert.Equal(t, 1, id.ChildIndex())

	id, err = ParseNodeId("r123323")
	require.NoError(t, err)
	assert.Equal(t, 3, id.ChildIndex())

	assert.Equal(t, -1, RootId().ChildIndex())
}

func TestNodeIdStringRoundTrip(t *testing.T) {
	for _, s := range []string{"r", "r0", "r123323"} {
		id, err := ParseNodeId(s)
		require.NoError(t, err)
		assert.Equal(t, s, id.String())
	}
	_, err := ParseNodeId("r4")
	assert.Error(t, err)
	_, err = ParseNodeId("x0")
	assert.Error(t, err)
}

func TestSpatialNodeIdFromNodeId(t *testing.T) {
	id, err := ParseNodeId("r301")
	require.NoError(t, err)
	assert.Equal(t, NewSpatialNodeId(3, 4, 5), id.ToSpatial())
}

func TestSpatialConversionRoundTrip(t *testing.T) {
	for _, s := range []string{"r", "r0", "r123323"} {
		id, err := ParseNodeId(s)
		require.NoError(t, err)
		assert.Equal(t, id, id.ToSpatial().ToNodeId())
	}
}

func TestSpatialNeighbors(t *testing.T) {
	id := NewSpatialNodeId(2, 0, 0)

	_, ok := id.Neighbor(Left)
	assert.False(t, ok)
	_, ok = id.Neighbor(Bottom)
	assert.False(t, ok)

	right, ok := id.Neighbor(Right)
	require.True(t, ok)
	assert.Equal(t, NewSpatialNodeId(2, 1, 0), right)

	topRight, ok := id.Neighbor(TopRight)
	require.True(t, ok)
	assert.Equal(t, NewSpatialNodeId(2, 1, 1), topRight)

	corner := NewSpatialNodeId(2, 3, 3)
	_, ok = corner.Neighbor(Right)
	assert.False(t, ok)
	_, ok = corner.Neighbor(Top)
	assert.False(t, ok)
}

func TestRectChildren(t *testing.T) {
	root := RootNode(NewRect(mgl64.Vec2{0, 0}, 4))

	c0 := root.Child(0)
	assert.Equal(t, mgl64.Vec2{0, 0}, c0.BoundingRect.Min())
	assert.Equal(t, 2.0, c0.BoundingRect.EdgeLength())

	c1 := root.Child(1)
	assert.Equal(t, mgl64.Vec2{0, 2}, c1.BoundingRect.Min())

	c2 := root.Child(2)
	assert.Equal(t, mgl64.Vec2{2, 0}, c2.BoundingRect.Min())

	c3 := root.Child(3)
	assert.Equal(t, mgl64.Vec2{2, 2}, c3.BoundingRect.Min())
	assert.Equal(t, uint8(1), c3.Level())
}
