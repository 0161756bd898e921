package cli

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/octree"
	"github.com/pointgrid/pointgrid/pkg/point"
)

func buildCmd() *cobra.Command {
	var (
		output     string
		resolution float64
		intensity  bool
		bboxFlag   []float64
	)

	cmd := &cobra.Command{
		Use:   "build RAW_FILE",
		Short: "Build an octree from a raw point stream",
		Long: "Build ingests a headerless little-endian raw point file " +
			"(3x float64 position, 3x uint8 color, optionally one float32 intensity " +
			"per record) and writes an immutable octree into the output directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := &point.RawFileSource{Path: args[0], HasIntensity: intensity}

			var bbox geom.Aabb
			switch len(bboxFlag) {
			case 0:
				var numPoints int64
				var err error
				bbox, numPoints, err = octree.FindBoundingBox(log, source)
				if err != nil {
					return err
				}
				log.Infof("input holds %d points", numPoints)
			case 6:
				bbox = geom.NewAabb(
					mgl64.Vec3{bboxFlag[0], bboxFlag[1], bboxFlag[2]},
					mgl64.Vec3{bboxFlag[3], bboxFlag[4], bboxFlag[5]},
				)
			default:
				return errors.New("--bounding-box needs 6 values: minx,miny,minz,maxx,maxy,maxz")
			}

			meta, err := octree.Build(log, source, octree.BuildOptions{
				OutputDirectory: output,
				Resolution:      resolution,
				BoundingBox:     bbox,
				NumWorkers:      numWorkers(),
			})
			if err != nil {
				return err
			}
			log.Printf("built octree with %d nodes in %s", len(meta.Nodes), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "octree_out", "output directory")
	cmd.Flags().Float64Var(&resolution, "resolution", 0.001, "smallest distance between two points")
	cmd.Flags().BoolVar(&intensity, "intensity", false, "records carry a float32 intensity")
	cmd.Flags().Float64SliceVar(&bboxFlag, "bounding-box", nil, "explicit bounds, otherwise derived from the input")
	return cmd
}
