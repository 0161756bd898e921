package xray

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"image"
	"image/draw"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/pointgrid/pointgrid/pkg/elog"
	"github.com/pointgrid/pointgrid/pkg/quadtree"
)

// The inpainting pass closes small gaps in the leaf tiles. Every leaf is
// stitched together with halves and quarters of its eight spatial neighbors
// into a double-size canvas, the canvas alpha mask is morphologically closed
// (Chebyshev norm) and the newly opened pixels are synthesized from the
// nearest opaque pixels. Canvases are then blended pairwise across tile
// seams, horizontally before vertically, and cropped back over the leaf.

const inpaintExtension = "inpaint.png"

func inpaintImagePath(directory string, spatial quadtree.SpatialNodeId) string {
	return TileImagePath(directory, spatial.ToNodeId()) + "." + inpaintExtension
}

// performInpainting runs the four inpainting steps over all leaf tiles. The
// neighbor blends mutate two adjacent canvases at once, so each blending step
// runs its even-coordinate tiles to completion before the odd ones; that
// partitioning is what keeps two workers from writing the same file.
func performInpainting(view elog.View, directory string, distancePx int, leafIds []quadtree.NodeId, numWorkers int) error {
	spatialIds := make([]quadtree.SpatialNodeId, 0, len(leafIds))
	for _, id := range leafIds {
		spatialIds = append(spatialIds, id.ToSpatial())
	}

	steps := []struct {
		message   string
		partition func(quadtree.SpatialNodeId) bool
		run       func(quadtree.SpatialNodeId) error
	}{
		{
			message:   "creating inpaint images",
			partition: func(quadtree.SpatialNodeId) bool { return false },
			run: func(id quadtree.SpatialNodeId) error {
				return createInpaintImage(directory, id, distancePx)
			},
		},
		{
			message:   "horizontally blending inpaint images",
			partition: func(id quadtree.SpatialNodeId) bool { return id.X()%2 == 0 },
			run: func(id quadtree.SpatialNodeId) error {
				return blendWithRight(directory, id)
			},
		},
		{
			message:   "vertically blending inpaint images",
			partition: func(id quadtree.SpatialNodeId) bool { return id.Y()%2 == 0 },
			run: func(id quadtree.SpatialNodeId) error {
				return blendWithBottom(directory, id)
			},
		},
		{
			message:   "applying inpainting",
			partition: func(quadtree.SpatialNodeId) bool { return false },
			run: func(id quadtree.SpatialNodeId) error {
				return applyInpainting(directory, id)
			},
		},
	}

	for _, step := range steps {
		progress := view.NewProgress(step.message, "tiles", int64(len(spatialIds)))
		var first, second []quadtree.SpatialNodeId
		for _, id := range spatialIds {
			if step.partition(id) {
				first = append(first, id)
			} else {
				second = append(second, id)
			}
		}
		var err error
		for _, part := range [][]quadtree.SpatialNodeId{first, second} {
			var g errgroup.Group
			g.SetLimit(numWorkers)
			for _, id := range part {
				id := id
				g.Go(func() error {
					defer progress.Increment(1)
					return step.run(id)
				})
			}
			if err = g.Wait(); err != nil {
				break
			}
		}
		progress.Finish(err == nil)
		if err != nil {
			return err
		}
	}
	return nil
}

func tileImage(directory string, spatial quadtree.SpatialNodeId) (*image.NRGBA, error) {
	img, err := loadPng(TileImagePath(directory, spatial.ToNodeId()))
	if os.IsNotExist(errors.Cause(err)) {
		return nil, nil
	}
	return img, err
}

func neighborImage(directory string, spatial quadtree.SpatialNodeId, dir quadtree.Direction) (*image.NRGBA, error) {
	neighbor, ok := spatial.Neighbor(dir)
	if !ok {
		return nil, nil
	}
	return tileImage(directory, neighbor)
}

// stitchedImage assembles a 2Wx2H canvas: the leaf in the center, framed by
// halves and quarters of its eight neighbors. Missing neighbors stay
// transparent.
func stitchedImage(directory string, spatial quadtree.SpatialNodeId) (*image.NRGBA, error) {
	current, err := tileImage(directory, spatial)
	if current == nil || err != nil {
		return nil, err
	}
	w := current.Bounds().Dx() / 2
	h := current.Bounds().Dy() / 2

	canvas := image.NewNRGBA(image.Rect(0, 0, 4*w, 4*h))
	draw.Draw(canvas, image.Rect(w, h, 3*w, 3*h), current, image.Point{}, draw.Src)

	copyRegion := func(dir quadtree.Direction, srcX, srcY, width, height, dstX, dstY int) error {
		img, err := neighborImage(directory, spatial, dir)
		if img == nil || err != nil {
			return err
		}
		dst := image.Rect(dstX, dstY, dstX+width, dstY+height)
		draw.Draw(canvas, dst, img, image.Point{X: srcX, Y: srcY}, draw.Src)
		return nil
	}

	for _, region := range []struct {
		dir                                quadtree.Direction
		srcX, srcY, width, height, dstX, dstY int
	}{
		{quadtree.TopLeft, w, h, w, h, 0, 0},
		{quadtree.Top, 0, h, 2 * w, h, w, 0},
		{quadtree.TopRight, 0, h, w, h, 3 * w, 0},
		{quadtree.Right, 0, 0, w, 2 * h, 3 * w, h},
		{quadtree.BottomRight, 0, 0, w, h, 3 * w, 3 * h},
		{quadtree.Bottom, 0, 0, 2 * w, h, w, 3 * h},
		{quadtree.BottomLeft, w, 0, w, h, 0, 3 * h},
		{quadtree.Left, w, 0, w, 2 * h, 0, h},
	} {
		if err := copyRegion(region.dir, region.srcX, region.srcY, region.width, region.height, region.dstX, region.dstY); err != nil {
			return nil, err
		}
	}
	return canvas, nil
}

func createInpaintImage(directory string, spatial quadtree.SpatialNodeId, distancePx int) error {
	canvas, err := stitchedImage(directory, spatial)
	if canvas == nil || err != nil {
		return err
	}
	inpainted := inpaint(canvas, distancePx)
	return savePng(inpainted, inpaintImagePath(directory, spatial))
}

// inpaint closes the alpha mask with the given Chebyshev radius and fills the
// newly opened pixels from their nearest opaque pixels.
func inpaint(img *image.NRGBA, distancePx int) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			mask[y*w+x] = img.Pix[img.PixOffset(x, y)+3] > 0
		}
	}
	closed := erode(dilate(mask, w, h, distancePx), w, h, distancePx)

	// Multi-source BFS from the opaque region: each pixel opened by the
	// closing takes the color of its nearest opaque pixel (Chebyshev
	// distance, ties resolved by visit order).
	type coord struct{ x, y int }
	source := make([]coord, w*h)
	var frontier []coord
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if mask[y*w+x] {
				source[y*w+x] = coord{x, y}
				frontier = append(frontier, coord{x, y})
			} else {
				source[y*w+x] = coord{-1, -1}
			}
		}
	}
	out := image.NewNRGBA(bounds)
	copy(out.Pix, img.Pix)
	for len(frontier) > 0 {
		var next []coord
		for _, c := range frontier {
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := c.x+dx, c.y+dy
					if nx < 0 || nx >= w || ny < 0 || ny >= h {
						continue
					}
					i := ny*w + nx
					if mask[i] || source[i].x >= 0 || !closed[i] {
						continue
					}
					source[i] = source[c.y*w+c.x]
					src := out.PixOffset(source[i].x, source[i].y)
					dst := out.PixOffset(nx, ny)
					copy(out.Pix[dst:dst+4], out.Pix[src:src+4])
					next = append(next, coord{nx, ny})
				}
			}
		}
		frontier = next
	}
	return out
}

// dilate grows the mask by radius in the Chebyshev norm, separably: a
// horizontal max filter followed by a vertical one.
func dilate(mask []bool, w, h, radius int) []bool {
	horizontal := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for dx := -radius; dx <= radius; dx++ {
				nx := x + dx
				if nx >= 0 && nx < w && mask[y*w+nx] {
					horizontal[y*w+x] = true
					break
				}
			}
		}
	}
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny >= 0 && ny < h && horizontal[ny*w+x] {
					out[y*w+x] = true
					break
				}
			}
		}
	}
	return out
}

// erode shrinks the mask by radius in the Chebyshev norm. Pixels outside the
// canvas count as set so the border is not eaten.
func erode(mask []bool, w, h, radius int) []bool {
	horizontal := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			keep := true
			for dx := -radius; dx <= radius; dx++ {
				nx := x + dx
				if nx >= 0 && nx < w && !mask[y*w+nx] {
					keep = false
					break
				}
			}
			horizontal[y*w+x] = keep
		}
	}
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			keep := true
			for dy := -radius; dy <= radius; dy++ {
				ny := y + dy
				if ny >= 0 && ny < h && !horizontal[ny*w+x] {
					keep = false
					break
				}
			}
			out[y*w+x] = keep
		}
	}
	return out
}

func loadInpaintImage(directory string, spatial quadtree.SpatialNodeId) (*image.NRGBA, string, error) {
	path := inpaintImagePath(directory, spatial)
	img, err := loadPng(path)
	if os.IsNotExist(errors.Cause(err)) {
		return nil, "", nil
	}
	return img, path, err
}

func loadNeighborInpaintImage(directory string, spatial quadtree.SpatialNodeId, dir quadtree.Direction) (*image.NRGBA, string, error) {
	neighbor, ok := spatial.Neighbor(dir)
	if !ok {
		return nil, "", nil
	}
	return loadInpaintImage(directory, neighbor)
}

func interpolatePixels(a, b *image.NRGBA, ax, ay, bx, by int, aWeight float64) {
	ai := a.PixOffset(ax, ay)
	bi := b.PixOffset(bx, by)
	for c := 0; c < 4; c++ {
		v := uint8(float64(a.Pix[ai+c])*aWeight + float64(b.Pix[bi+c])*(1-aWeight) + 0.5)
		a.Pix[ai+c] = v
		b.Pix[bi+c] = v
	}
}

// blendWithRight linearly interpolates the right half of this canvas with the
// left half of the right neighbor's canvas, weight growing with the column.
func blendWithRight(directory string, spatial quadtree.SpatialNodeId) error {
	current, currentPath, err := loadInpaintImage(directory, spatial)
	if current == nil || err != nil {
		return err
	}
	right, rightPath, err := loadNeighborInpaintImage(directory, spatial, quadtree.Right)
	if right == nil || err != nil {
		return err
	}
	width := current.Bounds().Dx() / 2
	height := current.Bounds().Dy()
	for i := 0; i < width; i++ {
		rightWeight := float64(i) / float64(width-1)
		for j := 0; j < height; j++ {
			interpolatePixels(right, current, i, j, width+i, j, rightWeight)
		}
	}
	if err := savePng(current, currentPath); err != nil {
		return err
	}
	return savePng(right, rightPath)
}

// blendWithBottom is the vertical counterpart of blendWithRight, run after
// all horizontal blends.
func blendWithBottom(directory string, spatial quadtree.SpatialNodeId) error {
	current, currentPath, err := loadInpaintImage(directory, spatial)
	if current == nil || err != nil {
		return err
	}
	bottom, bottomPath, err := loadNeighborInpaintImage(directory, spatial, quadtree.Bottom)
	if bottom == nil || err != nil {
		return err
	}
	width := current.Bounds().Dx()
	height := current.Bounds().Dy() / 2
	for j := 0; j < height; j++ {
		bottomWeight := float64(j) / float64(height-1)
		for i := 0; i < width; i++ {
			interpolatePixels(bottom, current, i, j, i, height+j, bottomWeight)
		}
	}
	if err := savePng(current, currentPath); err != nil {
		return err
	}
	return savePng(bottom, bottomPath)
}

// applyInpainting crops the canvas center back over the leaf tile and drops
// the temporary.
func applyInpainting(directory string, spatial quadtree.SpatialNodeId) error {
	canvas, canvasPath, err := loadInpaintImage(directory, spatial)
	if canvas == nil || err != nil {
		return err
	}
	w := canvas.Bounds().Dx()
	h := canvas.Bounds().Dy()
	tile := image.NewNRGBA(image.Rect(0, 0, w/2, h/2))
	draw.Draw(tile, tile.Bounds(), canvas, image.Point{X: w / 4, Y: h / 4}, draw.Src)
	if err := savePng(tile, TileImagePath(directory, spatial.ToNodeId())); err != nil {
		return err
	}
	return errors.Wrapf(os.Remove(canvasPath), "removing %s", canvasPath)
}
