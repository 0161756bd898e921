package geom

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAabbIntersectsAabb(t *testing.T) {
	a := NewAabb(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{2, 2, 2})
	overlapping := NewAabb(mgl64.Vec3{1, 1, 1}, mgl64.Vec3{3, 3, 3})
	disjoint := NewAabb(mgl64.Vec3{5, 5, 5}, mgl64.Vec3{6, 6, 6})
	touching := NewAabb(mgl64.Vec3{2, 0, 0}, mgl64.Vec3{3, 2, 2})

	assert.Equal(t, Cross, a.IntersectsAabb(&overlapping))
	assert.Equal(t, Out, a.IntersectsAabb(&disjoint))
	assert.Equal(t, Cross, a.IntersectsAabb(&touching))
}

func TestObbSeparatingAxes(t *testing.T) {
	halfExtent := mgl64.Vec3{1, 2, 3}

	zeroRot := NewObb(mgl64.QuatIdent(), mgl64.Vec3{}, halfExtent)
	// An axis-aligned box contributes no axes beyond the world axes.
	assert.Len(t, zeroRot.separatingAxes, 3)

	fortyFive := NewObb(mgl64.QuatRotate(math.Pi/4, mgl64.Vec3{0, 0, 1}), mgl64.Vec3{}, halfExtent)
	// Rotation about z: only the rotated x/y join; every cross product is
	// degenerate or parallel to an axis already present.
	assert.Len(t, fortyFive.separatingAxes, 5)

	arbitrary := NewObb(
		mgl64.QuatRotate(0.123, mgl64.Vec3{0.2, 0.5, -0.7}.Normalize()),
		mgl64.Vec3{},
		halfExtent,
	)
	assert.Len(t, arbitrary.separatingAxes, 15)
}

func TestObbIntersectsAabb(t *testing.T) {
	halfExtent := mgl64.Vec3{1, 2, 3}
	bbox := NewAabb(mgl64.Vec3{0.5, 1, -3}, mgl64.Vec3{1.5, 3, 3})

	zeroRot := NewObb(mgl64.QuatIdent(), mgl64.Vec3{}, halfExtent)
	assert.Equal(t, Cross, zeroRot.IntersectsAabb(&bbox))

	fortyFive := NewObb(mgl64.QuatRotate(math.Pi/4, mgl64.Vec3{0, 0, 1}), mgl64.Vec3{}, halfExtent)
	assert.Equal(t, Out, fortyFive.IntersectsAabb(&bbox))
}

func TestObbContains(t *testing.T) {
	obb := NewObb(
		mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1}),
		mgl64.Vec3{10, 0, 0},
		mgl64.Vec3{1, 2, 0.5},
	)
	// After the 90 degree rotation the long side points along world x.
	assert.True(t, obb.Contains(mgl64.Vec3{10, 0, 0}))
	assert.True(t, obb.Contains(mgl64.Vec3{11.9, 0, 0}))
	assert.False(t, obb.Contains(mgl64.Vec3{10, 1.5, 0}))
}

func TestFrustumIntersectsAabb(t *testing.T) {
	// Eye at origin looking down -z with a quarter-angle frustum.
	worldFromEye := mgl64.Ident4()
	frustum, err := NewPerspectiveFrustum(worldFromEye, -0.5, 0.5, -0.5, 0.5, 1, 4)
	require.NoError(t, err)

	inside := NewAabb(mgl64.Vec3{-0.1, -0.1, -2.5}, mgl64.Vec3{0.1, 0.1, -2})
	assert.Equal(t, In, frustum.IntersectsAabb(&inside))
	assert.True(t, frustum.Contains(inside.Min()))
	assert.True(t, frustum.Contains(inside.Max()))

	behind := NewAabb(mgl64.Vec3{-0.1, -0.1, 2}, mgl64.Vec3{0.1, 0.1, 3})
	assert.Equal(t, Out, frustum.IntersectsAabb(&behind))

	crossing := NewAabb(mgl64.Vec3{-0.1, -0.1, -2}, mgl64.Vec3{5, 0.1, -1.5})
	assert.Equal(t, Cross, frustum.IntersectsAabb(&crossing))

	// A box enclosing the whole frustum has no corner inside any plane pair
	// fully, but must not be culled.
	enclosing := NewAabb(mgl64.Vec3{-100, -100, -100}, mgl64.Vec3{100, 100, 100})
	assert.Equal(t, Cross, frustum.IntersectsAabb(&enclosing))
}

func TestFrustumFromMatrixRejectsSingular(t *testing.T) {
	var singular mgl64.Mat4
	_, err := FrustumFromMatrix(singular)
	assert.Error(t, err)
}

func TestFrustumCornersRoundTrip(t *testing.T) {
	frustum, err := NewPerspectiveFrustum(mgl64.Ident4(), -0.5, 0.5, -0.5, 0.5, 1, 4)
	require.NoError(t, err)
	for _, corner := range frustum.Corners() {
		clip := mgl64.TransformCoordinate(corner, frustum.ClipFromWorld())
		for i := 0; i < 3; i++ {
			assert.InDelta(t, 1.0, math.Abs(clip[i]), 1e-9)
		}
	}
}

func TestClosedInterval(t *testing.T) {
	interval, err := ParseClosedInterval("1.5,3")
	require.NoError(t, err)
	assert.True(t, interval.Contains(1.5))
	assert.True(t, interval.Contains(3))
	assert.False(t, interval.Contains(3.1))

	_, err = ParseClosedInterval("3")
	assert.Error(t, err)
	_, err = ParseClosedInterval("4,1")
	assert.Error(t, err)
}

func TestBoundingCube(t *testing.T) {
	aabb := NewAabb(mgl64.Vec3{-1, 0, 2}, mgl64.Vec3{1, 5, 3})
	cube := BoundingCube(&aabb)
	assert.Equal(t, mgl64.Vec3{-1, 0, 2}, cube.Min())
	assert.Equal(t, 5.0, cube.EdgeLength())

	child := cube.Child(0b101)
	assert.Equal(t, mgl64.Vec3{-1 + 2.5, 0, 2 + 2.5}, child.Min())
	assert.Equal(t, 2.5, child.EdgeLength())
}
