package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"container/heap"
	"io"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/point"
)

// Tree is a read handle onto a built octree: the parsed meta plus the data
// provider serving node streams. The on-disk tree is immutable once its meta
// exists, so any number of Trees may be open concurrently.
type Tree struct {
	provider DataProvider
	meta     *Meta
	cache    *NodeCache
}

// NodeData is the raw payload of one node, suitable for direct upload by a
// renderer.
type NodeData struct {
	Meta     NodeMeta
	Position []byte
	Color    []byte
}

// Open reads the meta descriptor from dir and returns a tree handle.
func Open(dir string) (*Tree, error) {
	return NewTree(&OnDiskDataProvider{Directory: dir})
}

// NewTree builds a tree handle on top of an arbitrary data provider.
func NewTree(provider DataProvider) (*Tree, error) {
	meta, err := provider.Meta()
	if err != nil {
		return nil, err
	}
	return &Tree{provider: provider, meta: meta, cache: NewNodeCache(DefaultCachedNodes)}, nil
}

// Meta exposes the full descriptor, e.g. for service shells.
func (t *Tree) Meta() *Meta { return t.meta }

// BoundingBox returns the bounds recorded in meta.
func (t *Tree) BoundingBox() geom.Aabb { return t.meta.BoundingBox }

// rootCube returns the cube spanned over the bounding box.
func (t *Tree) rootCube() geom.Cube {
	bbox := t.meta.BoundingBox
	return geom.BoundingCube(&bbox)
}

// NodesInLocation walks the tree from the root and returns the ids of all
// materialized nodes whose cubes intersect the query location.
func (t *Tree) NodesInLocation(location *Location) []NodeId {
	var result []NodeId
	open := []Node{RootNode(t.rootCube())}
	for len(open) > 0 {
		node := open[len(open)-1]
		open = open[:len(open)-1]
		if _, ok := t.meta.Nodes[node.Id]; !ok {
			continue
		}
		aabb := node.BoundingCube.ToAabb()
		if location.IntersectsAabb(&aabb) == geom.Out {
			continue
		}
		result = append(result, node.Id)
		for i := 0; i < 8; i++ {
			open = append(open, node.Child(i))
		}
	}
	return result
}

// PointsInNode streams the selected points of one node, using the batch
// cache when it already holds all requested attributes.
func (t *Tree) PointsInNode(query *PointQuery, id NodeId, batchSize int) (*FilteredIterator, error) {
	nodeMeta, ok := t.meta.Nodes[id]
	if !ok {
		return nil, errors.Wrapf(point.ErrNodeNotFound, "node %s", id)
	}
	inner, err := newCachedNodeIterator(t, id, nodeMeta.NumPoints, query.Attributes, batchSize)
	if err != nil {
		return nil, err
	}
	return NewFilteredIterator(query, inner), nil
}

// Points streams all points selected by query through a parallel batched
// traversal of this tree. Zero values pick the iterator defaults.
func (t *Tree) Points(query *PointQuery, batchSize, numThreads, bufferSize int) *ParallelIterator {
	return NewParallelIterator([]*Tree{t}, query, batchSize, numThreads, bufferSize)
}

// NodeData returns the raw position and color bytes of a node.
func (t *Tree) NodeData(id NodeId) (*NodeData, error) {
	nodeMeta, ok := t.meta.Nodes[id]
	if !ok {
		return nil, errors.Wrapf(point.ErrNodeNotFound, "node %s", id)
	}
	readers, err := t.provider.Data(id.String(), []string{"position", "color"})
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()
	position, err := io.ReadAll(readers["position"])
	if err != nil {
		return nil, errors.Wrapf(err, "reading position of node %s", id)
	}
	color, err := io.ReadAll(readers["color"])
	if err != nil {
		return nil, errors.Wrapf(err, "reading color of node %s", id)
	}
	return &NodeData{Meta: nodeMeta, Position: position, Color: color}, nil
}

// clipPointToHemicube clamps a clip-space point to the visible volume
// [-1, 1]^2 x [0, 1].
func clipPointToHemicube(p mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{
		geom.Clamp(p.X(), -1, 1),
		geom.Clamp(p.Y(), -1, 1),
		geom.Clamp(p.Z(), 0, 1),
	}
}

// relativeSizeOnScreen projects the cube's corners through the matrix and
// measures the area of their clamped 2D bound. The unit is clip-space area,
// proportional (not equal) to pixels: good enough to order nodes without
// threading the viewport size through every call.
func relativeSizeOnScreen(cube *geom.Cube, clipFromWorld mgl64.Mat4) float64 {
	aabb := cube.ToAabb()
	corners := aabb.Corners()
	bound := geom.NewAabb(
		clipPointToHemicube(mgl64.TransformCoordinate(corners[0], clipFromWorld)),
		clipPointToHemicube(mgl64.TransformCoordinate(corners[1], clipFromWorld)),
	)
	for _, corner := range corners[2:] {
		bound.Grow(clipPointToHemicube(mgl64.TransformCoordinate(corner, clipFromWorld)))
	}
	d := bound.Diag()
	return d.X() * d.Y()
}

type openNode struct {
	node         Node
	relation     geom.Relation
	sizeOnScreen float64
}

type openNodeHeap []openNode

func (h openNodeHeap) Len() int { return len(h) }
func (h openNodeHeap) Less(i, j int) bool { return h[i].sizeOnScreen > h[j].sizeOnScreen }
func (h openNodeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *openNodeHeap) Push(x interface{}) { *h = append(*h, x.(openNode)) }
func (h *openNodeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// VisibleNodes returns the ids of all materialized nodes visible through the
// given clip-from-world matrix, largest screen size first. Nodes fully inside
// the frustum are expanded without further culling tests.
func (t *Tree) VisibleNodes(clipFromWorld mgl64.Mat4) ([]NodeId, error) {
	frustum, err := geom.FrustumFromMatrix(clipFromWorld)
	if err != nil {
		return nil, errors.Wrap(point.ErrInvalidInput, err.Error())
	}

	open := &openNodeHeap{}
	root := RootNode(t.rootCube())
	rootAabb := root.BoundingCube.ToAabb()
	if relation := frustum.IntersectsAabb(&rootAabb); relation != geom.Out {
		t.maybePushNode(open, root, relation, clipFromWorld)
	}

	var visible []NodeId
	for open.Len() > 0 {
		current := heap.Pop(open).(openNode)
		switch current.relation {
		case geom.Cross:
			for i := 0; i < 8; i++ {
				child := current.node.Child(i)
				aabb := child.BoundingCube.ToAabb()
				relation := frustum.IntersectsAabb(&aabb)
				if relation == geom.Out {
					continue
				}
				t.maybePushNode(open, child, relation, clipFromWorld)
			}
		case geom.In:
			// The parent is fully inside, so are the children.
			for i := 0; i < 8; i++ {
				t.maybePushNode(open, current.node.Child(i), geom.In, clipFromWorld)
			}
		}
		visible = append(visible, current.node.Id)
	}
	return visible, nil
}

func (t *Tree) maybePushNode(open *openNodeHeap, node Node, relation geom.Relation, clipFromWorld mgl64.Mat4) {
	if _, ok := t.meta.Nodes[node.Id]; !ok {
		return
	}
	heap.Push(open, openNode{
		node:         node,
		relation:     relation,
		sizeOnScreen: relativeSizeOnScreen(&node.BoundingCube, clipFromWorld),
	})
}
