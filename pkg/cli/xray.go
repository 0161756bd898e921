package cli

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"github.com/spf13/cobra"

	"github.com/pointgrid/pointgrid/pkg/octree"
	"github.com/pointgrid/pointgrid/pkg/xray"
)

func xrayCmd() *cobra.Command {
	var (
		output          string
		resolution      float64
		tileSize        uint32
		strategy        string
		minIntensity    float64
		maxIntensity    float64
		maxStddev       float64
		inpaintDistance int
	)

	cmd := &cobra.Command{
		Use:   "xray OCTREE_DIR",
		Short: "Build a 2D x-ray image pyramid from an octree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := octree.Open(args[0])
			if err != nil {
				return err
			}
			meta, err := xray.BuildPyramid(log, tree, xray.BuildOptions{
				OutputDirectory: output,
				Resolution:      resolution,
				TileSizePx:      tileSize,
				Coloring: xray.StrategyKind{
					Name:         strategy,
					MinIntensity: float32(minIntensity),
					MaxIntensity: float32(maxIntensity),
					MaxStddev:    float32(maxStddev),
				},
				InpaintDistancePx: inpaintDistance,
				NumWorkers:        numWorkers(),
			})
			if err != nil {
				return err
			}
			log.Printf("built x-ray pyramid with %d tiles at %d levels in %s",
				len(meta.Nodes), meta.DeepestLevel+1, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "xray_out", "output directory")
	cmd.Flags().Float64Var(&resolution, "resolution", 0.01, "meters per leaf pixel")
	cmd.Flags().Uint32Var(&tileSize, "tile-size", 256, "tile edge in pixels")
	cmd.Flags().StringVar(&strategy, "coloring-strategy", "xray",
		"one of xray, colored, intensity, height_stddev")
	cmd.Flags().Float64Var(&minIntensity, "min-intensity", 1, "intensity mapped to black")
	cmd.Flags().Float64Var(&maxIntensity, "max-intensity", 256, "intensity mapped to white")
	cmd.Flags().Float64Var(&maxStddev, "max-stddev", 1, "stddev clamp of the height_stddev strategy")
	cmd.Flags().IntVar(&inpaintDistance, "inpaint-distance", 0, "close gaps up to this pixel radius")
	return cmd
}
