package cmd

import (
	"fmt"

	"github.com/urfave/cli"
	"github.com/wbrbr/tinybvh/bvh/meshgen"
	"github.com/wbrbr/tinybvh/vmath"
)

// meshForContext builds the synthetic mesh named by the "mesh" flag, sized
// by "n". It is the CLI's only source of geometry: there is no scene file
// loader here, by design.
func meshForContext(ctx *cli.Context) ([]vmath.Vec4, error) {
	n := ctx.Int("n")
	switch name := ctx.String("mesh"); name {
	case "triangle":
		return meshgen.Triangle(), nil
	case "cube":
		return meshgen.Cube(1), nil
	case "grid":
		if n <= 0 {
			n = 8
		}
		return meshgen.Grid(n, 1, 0.1), nil
	case "sliver":
		if n <= 0 {
			n = 8
		}
		return meshgen.SliverAndClusters(100, n), nil
	default:
		return nil, fmt.Errorf("unknown mesh %q (want triangle, cube, grid or sliver)", name)
	}
}
