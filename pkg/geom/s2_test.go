package geom

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/assert"
)

func TestS2CellUnionContains(t *testing.T) {
	anchor := mgl64.Vec3{1, 0, 0}
	union := NewS2CellUnion([]s2.CellID{cellIDFromVec(anchor).Parent(10)})

	assert.True(t, union.Contains(anchor))
	assert.False(t, union.Contains(mgl64.Vec3{0, 1, 0}))
	assert.False(t, union.Contains(mgl64.Vec3{-1, 0, 0}))
}

func TestS2CellUnionIntersectsAabb(t *testing.T) {
	anchor := mgl64.Vec3{1, 0, 0}
	union := NewS2CellUnion([]s2.CellID{cellIDFromVec(anchor).Parent(10)})

	near := NewAabb(mgl64.Vec3{0.99, -0.001, -0.001}, mgl64.Vec3{1.01, 0.001, 0.001})
	assert.Equal(t, Cross, union.IntersectsAabb(&near))

	far := NewAabb(mgl64.Vec3{-1.01, -0.001, -0.001}, mgl64.Vec3{-0.99, 0.001, 0.001})
	assert.Equal(t, Out, union.IntersectsAabb(&far))
}
