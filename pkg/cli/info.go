package cli

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2021 the pointgrid authors
 */

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pointgrid/pointgrid/pkg/octree"
)

func infoCmd() *cobra.Command {
	var nodes bool

	cmd := &cobra.Command{
		Use:   "info OCTREE_DIR",
		Short: "Print the meta descriptor of an octree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := octree.Open(args[0])
			if err != nil {
				return err
			}
			meta := tree.Meta()
			bbox := meta.BoundingBox

			var totalPoints int64
			deepest := 0
			for id, node := range meta.Nodes {
				totalPoints += node.NumPoints
				if l := id.Level(); l > deepest {
					deepest = l
				}
			}

			fmt.Printf("version:     %d\n", meta.Version)
			fmt.Printf("resolution:  %g\n", meta.Resolution)
			fmt.Printf("bounds:      %v to %v\n", bbox.Min(), bbox.Max())
			fmt.Printf("nodes:       %d (deepest level %d)\n", len(meta.Nodes), deepest)
			fmt.Printf("points:      %d\n", totalPoints)
			attributes := make([]string, 0, len(meta.AttributeTypes))
			for name, dataType := range meta.AttributeTypes {
				attributes = append(attributes, fmt.Sprintf("%s (%s)", name, dataType))
			}
			sort.Strings(attributes)
			fmt.Printf("attributes:  %v\n", attributes)

			if nodes {
				ids := make([]octree.NodeId, 0, len(meta.Nodes))
				for id := range meta.Nodes {
					ids = append(ids, id)
				}
				sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
				for _, id := range ids {
					node := meta.Nodes[id]
					fmt.Printf("  %-12s %9d points, %s\n", id, node.NumPoints, node.PositionEncoding)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&nodes, "nodes", false, "also list every node")
	return cmd
}
