package cli

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pointgrid/pointgrid/pkg/geom"
	"github.com/pointgrid/pointgrid/pkg/octree"
	"github.com/pointgrid/pointgrid/pkg/point"
)

func queryCmd() *cobra.Command {
	var (
		bboxFlag   []float64
		attributes []string
		filters    []string
		batchSize  int
		threads    int
		bufferSize int
	)

	cmd := &cobra.Command{
		Use:   "query OCTREE_DIR",
		Short: "Stream points out of an octree and report counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := octree.Open(args[0])
			if err != nil {
				return err
			}

			location := octree.AllPointsLocation()
			if len(bboxFlag) == 6 {
				location = octree.AabbLocation(geom.NewAabb(
					mgl64.Vec3{bboxFlag[0], bboxFlag[1], bboxFlag[2]},
					mgl64.Vec3{bboxFlag[3], bboxFlag[4], bboxFlag[5]},
				))
			} else if len(bboxFlag) != 0 {
				return errors.New("--bounding-box needs 6 values: minx,miny,minz,maxx,maxy,maxz")
			}

			intervals := make(map[string]geom.ClosedInterval)
			for _, f := range filters {
				name, bounds, ok := strings.Cut(f, "=")
				if !ok {
					return errors.Errorf("filter %q is not of the form attribute=lo,hi", f)
				}
				interval, err := geom.ParseClosedInterval(bounds)
				if err != nil {
					return err
				}
				intervals[name] = interval
			}

			query := &octree.PointQuery{
				Attributes:      attributes,
				Location:        location,
				FilterIntervals: intervals,
			}
			it := octree.NewParallelIterator([]*octree.Tree{tree}, query, batchSize, threads, bufferSize)

			var numPoints, numBatches int64
			err = it.TryForEachBatch(func(batch *point.PointsBatch) error {
				numPoints += int64(batch.Len())
				numBatches++
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("%d points in %d batches\n", numPoints, numBatches)
			return nil
		},
	}

	cmd.Flags().Float64SliceVar(&bboxFlag, "bounding-box", nil, "restrict to an axis-aligned box")
	cmd.Flags().StringSliceVar(&attributes, "attributes", []string{"color"}, "attribute columns to read")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "keep points with attribute=lo,hi")
	cmd.Flags().IntVar(&batchSize, "batch-size", octree.NumPointsPerBatch, "points per delivered batch")
	cmd.Flags().IntVar(&threads, "threads", 0, "worker threads (0 = all cores)")
	cmd.Flags().IntVar(&bufferSize, "buffer-size", 4, "in-flight batch bound")
	return cmd
}
