package xray

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/pointgrid/pointgrid/pkg/elog"
	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/octree"
	"github.com/pointgrid/pointgrid/pkg/point"
	"github.com/pointgrid/pointgrid/pkg/quadtree"
)

// BuildOptions configure an x-ray pyramid build.
type BuildOptions struct {
	// OutputDirectory receives the tile PNGs and the meta descriptor.
	OutputDirectory string

	// Resolution is the world edge of one leaf pixel, in meters.
	Resolution float64

	// TileSizePx is the square tile edge in pixels.
	TileSizePx uint32

	// Coloring selects the per-pixel aggregation.
	Coloring StrategyKind

	// InpaintDistancePx, when at least 1, closes gaps of that radius in
	// the leaf tiles after rendering.
	InpaintDistancePx int

	// NumWorkers bounds build parallelism. Zero means GOMAXPROCS.
	NumWorkers int
}

// FindQuadtreeBoundingRectAndLevels snaps the octree bounds onto the smallest
// power-of-two square of whole tiles: the returned level is the smallest L
// such that tileSizeM * 2^L covers both XY extents.
func FindQuadtreeBoundingRectAndLevels(bbox *geom.Aabb, tileSizeM float64) (quadtree.Rect, uint8) {
	var levels uint8
	curSize := tileSizeM
	d := bbox.Diag()
	for curSize < d.X() || curSize < d.Y() {
		curSize *= 2
		levels++
	}
	min := mgl64.Vec2{bbox.Min().X(), bbox.Min().Y()}
	return quadtree.NewRect(min, curSize), levels
}

// TileImagePath returns the PNG path of the tile at id.
func TileImagePath(directory string, id quadtree.NodeId) string {
	return filepath.Join(directory, id.String()+"."+ImageFileExtension)
}

// BuildPyramid renders the leaf tiles of the x-ray quadtree from the octree,
// optionally inpaints them, merges them upward into the full pyramid and
// writes the meta descriptor last.
func BuildPyramid(view elog.View, tree *octree.Tree, opts BuildOptions) (*Meta, error) {
	if view == nil {
		view = elog.NullView{}
	}
	if opts.Resolution <= 0 || opts.TileSizePx == 0 {
		return nil, errors.Wrap(point.ErrInvalidInput, "resolution and tile size must be positive")
	}
	if err := os.MkdirAll(opts.OutputDirectory, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating output directory")
	}
	numWorkers := opts.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	bbox := tree.BoundingBox()
	boundingRect, deepestLevel := FindQuadtreeBoundingRectAndLevels(&bbox, float64(opts.TileSizePx)*opts.Resolution)

	meta := &Meta{
		Version:      CurrentVersion,
		BoundingRect: boundingRect,
		TileSize:     opts.TileSizePx,
		DeepestLevel: deepestLevel,
		Nodes:        make(map[quadtree.NodeId]struct{}),
	}

	leafIds, err := buildLeafLevel(view, tree, meta, &opts, numWorkers)
	if err != nil {
		return nil, err
	}
	for _, id := range leafIds {
		meta.Nodes[id] = struct{}{}
	}

	if opts.InpaintDistancePx >= 1 {
		if err := performInpainting(view, opts.OutputDirectory, opts.InpaintDistancePx, leafIds, numWorkers); err != nil {
			return nil, err
		}
	}

	if err := buildPyramid(view, meta, &opts, leafIds, numWorkers); err != nil {
		return nil, err
	}

	if err := meta.ToDisk(opts.OutputDirectory); err != nil {
		return nil, err
	}
	return meta, nil
}

// buildLeafLevel renders every tile of the deepest level. Tiles without
// points produce no file and are not recorded.
func buildLeafLevel(view elog.View, tree *octree.Tree, meta *Meta, opts *BuildOptions, numWorkers int) ([]quadtree.NodeId, error) {
	var tiles []quadtree.Node
	open := []quadtree.Node{quadtree.RootNode(meta.BoundingRect)}
	for len(open) > 0 {
		node := open[len(open)-1]
		open = open[:len(open)-1]
		if node.Level() == meta.DeepestLevel {
			tiles = append(tiles, node)
			continue
		}
		for i := 0; i < 4; i++ {
			open = append(open, node.Child(i))
		}
	}

	view.Infof("building level %d", meta.DeepestLevel)
	progress := view.NewProgress("rendering leaf tiles", "tiles", int64(len(tiles)))

	var mu sync.Mutex
	var created []quadtree.NodeId
	var g errgroup.Group
	g.SetLimit(numWorkers)
	for _, tile := range tiles {
		tile := tile
		g.Go(func() error {
			defer progress.Increment(1)
			ok, err := renderTile(tree, &tile, meta, opts)
			if err != nil {
				return err
			}
			if ok {
				mu.Lock()
				created = append(created, tile.Id)
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	progress.Finish(err == nil)
	return created, err
}

// renderTile streams the points of the tile's 3D column through a fresh
// coloring strategy and writes the raster. Returns false when the column
// held no points.
func renderTile(tree *octree.Tree, tile *quadtree.Node, meta *Meta, opts *BuildOptions) (bool, error) {
	strategy, err := opts.Coloring.NewStrategy()
	if err != nil {
		return false, err
	}

	bbox := tree.BoundingBox()
	rect := &tile.BoundingRect
	column := geom.NewAabb(
		mgl64.Vec3{rect.Min().X(), rect.Min().Y(), bbox.Min().Z()},
		mgl64.Vec3{rect.Max().X(), rect.Max().Y(), bbox.Max().Z()},
	)

	attributes := []string{"color"}
	if opts.Coloring.WantsIntensity() {
		attributes = append(attributes, "intensity")
	}
	query := &octree.PointQuery{
		Attributes: attributes,
		Location:   octree.AabbLocation(column),
	}

	size := opts.TileSizePx
	edge := rect.EdgeLength()
	zMin := bbox.Min().Z()
	zDim := bbox.Diag().Z()
	seenAny := false

	location := query.Location
	for _, id := range tree.NodesInLocation(&location) {
		it, err := tree.PointsInNode(query, id, octree.NumPointsPerBatch)
		if err != nil {
			return false, err
		}
		err = it.Drain(func(batch *point.PointsBatch) error {
			colors, err := point.U8Vec3Values(batch.Attributes["color"])
			if err != nil {
				return err
			}
			var intensities []float32
			if data, ok := batch.Attributes["intensity"]; ok {
				if intensities, err = point.F32Values(data); err != nil {
					return err
				}
			}
			var p point.Point
			for i, pos := range batch.Position {
				seenAny = true
				p.Position = pos
				p.Color = point.Color{R: colors[i][0], G: colors[i][1], B: colors[i][2], A: 255}
				if intensities != nil {
					p.Intensity = intensities[i]
					p.HasIntensity = true
				}
				// The image x axis aligns with world x, but rasters
				// grow downward, so world y flips.
				x := discretize((pos.X()-rect.Min().X())/edge, size)
				y := discretize(1-(pos.Y()-rect.Min().Y())/edge, size)
				var z uint32
				if zDim > 0 {
					z = discretize((pos.Z()-zMin)/zDim, NumZBuckets)
				}
				strategy.ProcessDiscretizedPoint(&p, x, y, z)
			}
			return nil
		})
		if err != nil {
			return false, err
		}
	}
	if !seenAny {
		return false, nil
	}

	img := image.NewNRGBA(image.Rect(0, 0, int(size), int(size)))
	for y := uint32(0); y < size; y++ {
		for x := uint32(0); x < size; x++ {
			c := strategy.PixelColor(x, y)
			i := img.PixOffset(int(x), int(y))
			img.Pix[i+0] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = c.A
		}
	}
	return true, savePng(img, TileImagePath(opts.OutputDirectory, tile.Id))
}

// discretize maps a normalized coordinate into [0, buckets).
func discretize(norm float64, buckets uint32) uint32 {
	v := int64(norm * float64(buckets))
	if v < 0 {
		v = 0
	}
	if v >= int64(buckets) {
		v = int64(buckets) - 1
	}
	return uint32(v)
}

// buildParent assembles the 2Nx2N canvas from up to four child tiles. Child 1
// lands top-left, child 0 bottom-left, child 3 top-right and child 2 bottom
// right: raster y grows downward while world y grows upward.
func buildParent(children [4]*image.NRGBA, tileSize uint32) *image.NRGBA {
	n := int(tileSize)
	canvas := image.NewNRGBA(image.Rect(0, 0, 2*n, 2*n))
	for _, placement := range []struct {
		child int
		x, y  int
	}{
		{1, 0, 0},
		{0, 0, n},
		{3, n, 0},
		{2, n, n},
	} {
		img := children[placement.child]
		if img == nil {
			continue
		}
		rect := image.Rect(placement.x, placement.y, placement.x+n, placement.y+n)
		draw.Draw(canvas, rect, img, image.Point{}, draw.Src)
	}
	return canvas
}

// buildPyramid merges tiles upward level by level. A parent exists iff at
// least one of its four children exists.
func buildPyramid(view elog.View, meta *Meta, opts *BuildOptions, leafIds []quadtree.NodeId, numWorkers int) error {
	parents := make(map[quadtree.NodeId]struct{})
	for _, id := range leafIds {
		if parentID, ok := id.ParentId(); ok {
			parents[parentID] = struct{}{}
		}
	}

	for level := int(meta.DeepestLevel) - 1; level >= 0; level-- {
		view.Infof("building level %d", level)
		progress := view.NewProgress("merging level "+strconv.Itoa(level), "tiles", int64(len(parents)))

		var mu sync.Mutex
		nextParents := make(map[quadtree.NodeId]struct{})
		var g errgroup.Group
		g.SetLimit(numWorkers)
		for id := range parents {
			id := id
			g.Go(func() error {
				defer progress.Increment(1)
				var children [4]*image.NRGBA
				for i := 0; i < 4; i++ {
					img, err := loadPng(TileImagePath(opts.OutputDirectory, id.ChildId(i)))
					if os.IsNotExist(errors.Cause(err)) {
						continue
					}
					if err != nil {
						return err
					}
					children[i] = img
				}
				canvas := buildParent(children, opts.TileSizePx)
				tile := imaging.Resize(canvas, int(opts.TileSizePx), int(opts.TileSizePx), imaging.Lanczos)
				if err := savePng(tile, TileImagePath(opts.OutputDirectory, id)); err != nil {
					return err
				}
				mu.Lock()
				meta.Nodes[id] = struct{}{}
				if parentID, ok := id.ParentId(); ok {
					nextParents[parentID] = struct{}{}
				}
				mu.Unlock()
				return nil
			})
		}
		err := g.Wait()
		progress.Finish(err == nil)
		if err != nil {
			return err
		}
		parents = nextParents
	}
	return nil
}

func savePng(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return errors.Wrapf(err, "encoding %s", path)
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}

func loadPng(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba, nil
	}
	converted := image.NewNRGBA(img.Bounds())
	draw.Draw(converted, img.Bounds(), img, img.Bounds().Min, draw.Src)
	return converted, nil
}
