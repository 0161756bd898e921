package octree

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/pointgrid/pointgrid/pkg/elog"
	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/point"
)

// MaxPointsPerLeaf bounds the size of a leaf node. A node receiving more
// points is split, unless its cube already reached the resolution.
const MaxPointsPerLeaf int64 = 100_000

// BuildOptions configure an octree build.
type BuildOptions struct {
	// OutputDirectory receives the node streams and the meta descriptor.
	OutputDirectory string

	// Resolution is the worst-case quantization error of stored positions,
	// in world units.
	Resolution float64

	// BoundingBox must contain every input point. The root cube is the
	// smallest cube covering it.
	BoundingBox geom.Aabb

	// NumWorkers bounds build parallelism. Zero means GOMAXPROCS.
	NumWorkers int
}

// Build ingests the source into an immutable on-disk octree: a streaming
// recursive split into capacity-bounded leaves, then level-by-level upward
// subsampling, and finally the meta descriptor. On error partial node files
// may remain but no meta is written, so the directory holds no tree.
func Build(view elog.View, source point.Source, opts BuildOptions) (*Meta, error) {
	if view == nil {
		view = elog.NullView{}
	}
	if opts.Resolution <= 0 {
		return nil, errors.Wrap(point.ErrInvalidInput, "resolution must be positive")
	}
	diag := opts.BoundingBox.Diag()
	if diag.X() <= 0 && diag.Y() <= 0 && diag.Z() <= 0 {
		return nil, errors.Wrap(point.ErrInvalidInput, "bounding box is empty")
	}
	if err := os.MkdirAll(opts.OutputDirectory, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating output directory")
	}

	// A node at peak fan-out holds up to 8 open writers per worker.
	AttemptIncreasingRlimitToMax(view)

	b := &builder{
		view:       view,
		provider:   &OnDiskDataProvider{Directory: opts.OutputDirectory},
		meta:       NewMeta(opts.BoundingBox, opts.Resolution),
		rootCube:   geom.BoundingCube(&opts.BoundingBox),
		numWorkers: opts.NumWorkers,
	}
	if b.numWorkers <= 0 {
		b.numWorkers = runtime.GOMAXPROCS(0)
	}
	b.sem = make(chan struct{}, b.numWorkers)

	view.Infof("creating octree structure in %s", opts.OutputDirectory)
	if err := b.splitPhase(source); err != nil {
		return nil, err
	}
	if err := b.subsamplePhase(); err != nil {
		return nil, err
	}
	if err := b.writeMeta(); err != nil {
		return nil, err
	}
	return b.meta, nil
}

type builder struct {
	view       elog.View
	provider   *OnDiskDataProvider
	meta       *Meta
	rootCube   geom.Cube
	numWorkers int

	sem chan struct{}

	mu            sync.Mutex
	leaves        []NodeId
	finished      map[NodeId]int64
	firstErr      error
	sawIntensity  bool
	splitWg       sync.WaitGroup
}

func (b *builder) fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.firstErr == nil {
		b.firstErr = err
	}
}

func (b *builder) failed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.firstErr != nil
}

func (b *builder) addLeaf(id NodeId) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaves = append(b.leaves, id)
}

// splitPhase distributes the source over the tree. Independent subtrees split
// in parallel; the semaphore bounds concurrent splits while recursion fan-out
// happens outside the held slot.
func (b *builder) splitPhase(source point.Source) error {
	b.finished = make(map[NodeId]int64)
	b.splitWg.Add(1)
	go b.splitNode(RootId(), source)
	b.splitWg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.firstErr
}

func (b *builder) splitNode(id NodeId, source point.Source) {
	defer b.splitWg.Done()
	if b.failed() {
		return
	}
	b.sem <- struct{}{}
	oversized, err := b.split(id, source)
	<-b.sem
	if err != nil {
		b.fail(err)
		return
	}
	for _, childID := range oversized {
		childID := childID
		b.splitWg.Add(1)
		go func() {
			src, err := b.diskSource(childID)
			if err != nil {
				b.fail(err)
				b.splitWg.Done()
				return
			}
			b.splitNode(childID, src)
		}()
	}
}

// split streams one node's points into its eight children and classifies each
// child as leaf or further split work.
func (b *builder) split(id NodeId, source point.Source) ([]NodeId, error) {
	if size, ok := source.SizeHint(); ok {
		b.view.Infof("splitting %s with %d points (%.2fx the leaf bound)",
			id, size, float64(size)/float64(MaxPointsPerLeaf))
	} else {
		b.view.Infof("splitting %s with an unknown number of points", id)
	}

	node := Node{Id: id, BoundingCube: id.FindBoundingCube(b.rootCube)}
	var children [8]*NodeWriter
	closeChildren := func() {
		for _, w := range children {
			if w != nil {
				w.Close()
			}
		}
	}

	err := source.ForEach(func(p *point.Point) error {
		childIndex := node.ContainingChildIndex(p.Position)
		w := children[childIndex]
		if w == nil {
			child := node.Child(childIndex)
			encoding := NewPositionEncoding(&child.BoundingCube, b.meta.Resolution)
			var err error
			w, err = NewNodeWriter(b.provider.Stem(child.Id.String()), child.BoundingCube, encoding)
			if err != nil {
				return err
			}
			children[childIndex] = w
		}
		if p.HasIntensity {
			b.mu.Lock()
			b.sawIntensity = true
			b.mu.Unlock()
		}
		return w.WritePoint(p)
	})
	if err != nil {
		closeChildren()
		return nil, err
	}
	for _, w := range children {
		if w != nil {
			if err := w.Close(); err != nil {
				return nil, err
			}
		}
	}

	// This node's points all moved into children; its own streams only save
	// disk during processing, subsampling rewrites them anyway.
	b.removeNodeFiles(id)

	var oversized []NodeId
	for i, w := range children {
		if w == nil {
			continue
		}
		childID := id.ChildId(i)
		if b.shouldSplitNode(childID, w.NumWritten()) {
			oversized = append(oversized, childID)
		} else {
			b.addLeaf(childID)
		}
	}
	return oversized, nil
}

func (b *builder) shouldSplitNode(id NodeId, numPoints int64) bool {
	if numPoints <= MaxPointsPerLeaf {
		return false
	}
	cube := id.FindBoundingCube(b.rootCube)
	if cube.EdgeLength() <= b.meta.Resolution {
		b.view.Warnf("node %s with %d points (%.2fx the leaf bound) is too small to split, keeping all points",
			id, numPoints, float64(numPoints)/float64(MaxPointsPerLeaf))
		return false
	}
	return true
}

func (b *builder) removeNodeFiles(id NodeId) {
	stem := b.provider.Stem(id.String())
	// Removal errors are ignored; the root is never written, for example.
	for _, attribute := range []string{"position", "color", "intensity"} {
		_ = os.Remove(stem + "." + AttributeExtension(attribute))
	}
}

// diskSource reopens an on-disk node as a point source for re-splitting.
func (b *builder) diskSource(id NodeId) (point.Source, error) {
	numPoints, err := b.provider.NumberOfPoints(id.String())
	if err != nil {
		return nil, err
	}
	return &nodeSource{builder: b, id: id, numPoints: numPoints}, nil
}

type nodeSource struct {
	builder   *builder
	id        NodeId
	numPoints int64
}

func (s *nodeSource) SizeHint() (int, bool) { return int(s.numPoints), true }

func (s *nodeSource) ForEach(fn func(*point.Point) error) error {
	it, err := s.builder.openNodeIterator(s.id, s.numPoints)
	if err != nil {
		return err
	}
	defer it.Close()
	return it.ForEachPoint(fn)
}

// openNodeIterator opens a node mid-build, where no meta exists yet.
func (b *builder) openNodeIterator(id NodeId, numPoints int64) (*NodeIterator, error) {
	attributes := []string{"color"}
	if _, err := os.Stat(b.provider.Stem(id.String()) + "." + AttributeExtension("intensity")); err == nil {
		attributes = append(attributes, "intensity")
	}
	return NewNodeIterator(b.provider, b.meta, id, numPoints, attributes, NumPointsPerBatch)
}

// subsamplePhase walks levels from the deepest upward. Each parent pulls
// every 8th point out of its children into itself; the children are rewritten
// with the remaining 7/8. Siblings at a level subsample in parallel.
func (b *builder) subsamplePhase() error {
	deepest := 0
	for _, id := range b.leaves {
		if l := id.Level(); l > deepest {
			deepest = l
		}
	}

	nodesToSubsample := append([]NodeId(nil), b.leaves...)
	for level := deepest; level >= 1; level-- {
		var thisLevel, rest []NodeId
		for _, id := range nodesToSubsample {
			if id.Level() == level {
				thisLevel = append(thisLevel, id)
			} else {
				rest = append(rest, id)
			}
		}
		nodesToSubsample = rest

		parents := make(map[NodeId]struct{})
		for _, id := range thisLevel {
			parentID, _ := id.ParentId()
			parents[parentID] = struct{}{}
		}

		progress := b.view.NewProgress("building level "+strconv.Itoa(level-1), "nodes", int64(len(parents)))
		var g errgroup.Group
		g.SetLimit(b.numWorkers)
		for parentID := range parents {
			parentID := parentID
			g.Go(func() error {
				err := b.subsampleChildrenInto(parentID)
				progress.Increment(1)
				return err
			})
		}
		err := g.Wait()
		progress.Finish(err == nil)
		if err != nil {
			return err
		}

		for parentID := range parents {
			nodesToSubsample = append(nodesToSubsample, parentID)
		}
	}
	return nil
}

func (b *builder) subsampleChildrenInto(parentID NodeId) error {
	parentCube := parentID.FindBoundingCube(b.rootCube)
	parentWriter, err := NewNodeWriter(
		b.provider.Stem(parentID.String()),
		parentCube,
		NewPositionEncoding(&parentCube, b.meta.Resolution),
	)
	if err != nil {
		return err
	}
	parentClosed := false
	defer func() {
		if !parentClosed {
			parentWriter.Close()
		}
	}()

	for i := 0; i < 8; i++ {
		childID := parentID.ChildId(i)
		numPoints, err := b.provider.NumberOfPoints(childID.String())
		if point.IsNodeNotFound(err) {
			continue
		}
		if err != nil {
			return err
		}

		// All points go through memory because the child writer truncates
		// the very streams being read.
		points := make([]point.Point, 0, numPoints)
		it, err := b.openNodeIterator(childID, numPoints)
		if err != nil {
			return err
		}
		err = it.ForEachPoint(func(p *point.Point) error {
			points = append(points, *p)
			return nil
		})
		it.Close()
		if err != nil {
			return err
		}

		childCube := childID.FindBoundingCube(b.rootCube)
		childWriter, err := NewNodeWriter(
			b.provider.Stem(childID.String()),
			childCube,
			NewPositionEncoding(&childCube, b.meta.Resolution),
		)
		if err != nil {
			return err
		}
		for idx := range points {
			if idx%8 == 0 {
				err = parentWriter.WritePoint(&points[idx])
			} else {
				err = childWriter.WritePoint(&points[idx])
			}
			if err != nil {
				childWriter.Close()
				return err
			}
		}
		if err := childWriter.Close(); err != nil {
			return err
		}
		b.recordFinished(childID, childWriter.NumWritten())
	}

	parentClosed = true
	if err := parentWriter.Close(); err != nil {
		return err
	}
	if parentID.Level() == 0 {
		b.recordFinished(parentID, parentWriter.NumWritten())
	}
	return nil
}

func (b *builder) recordFinished(id NodeId, numPoints int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finished[id] = numPoints
}

func (b *builder) writeMeta() error {
	for id, numPoints := range b.finished {
		if numPoints == 0 {
			continue
		}
		cube, encoding := b.meta.EncodingForNode(id)
		b.meta.Nodes[id] = NodeMeta{
			NumPoints:        numPoints,
			PositionEncoding: encoding,
			BoundingCube:     cube,
		}
	}
	b.meta.AttributeTypes["color"] = point.U8Vec3
	if b.sawIntensity {
		b.meta.AttributeTypes["intensity"] = point.F32
	}
	return b.meta.WriteMetaFile(b.provider.Directory)
}
