package main

import (
	"os"

	"github.com/urfave/cli"
	"github.com/wbrbr/tinybvh/cmd"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "bvhtool"
	app.Usage = "build, convert and trace a BVH over a synthetic mesh"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "build",
			Usage: "build a tree over a synthetic mesh and report its statistics",
			Description: `
Generate a synthetic mesh, build it into a BVH with either the binned-SAH
builder or the spatial-split (SBVH) builder, optionally convert it to an
alternate node layout and/or run the insertion-based optimizer on it, then
fire a batch of rays through the result and print a statistics table.`,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "mesh",
					Value: "grid",
					Usage: "synthetic mesh to build over: triangle, cube, grid or sliver",
				},
				cli.IntFlag{
					Name:  "n",
					Value: 8,
					Usage: "mesh size parameter (grid side length, or cluster size for sliver)",
				},
				cli.StringFlag{
					Name:  "builder",
					Value: "sah",
					Usage: "builder to use: sah (binned SAH) or sbvh (spatial-split)",
				},
				cli.StringFlag{
					Name:  "convert",
					Value: "none",
					Usage: "convert the built tree to an alternate layout before tracing: none, ailalaine, altsoa, verbose, bvh4, bvh4gpu, bvh8",
				},
				cli.IntFlag{
					Name:  "optimize",
					Value: 0,
					Usage: "number of insertion-based optimizer passes to run before tracing",
				},
				cli.IntFlag{
					Name:  "rays",
					Value: 1024,
					Usage: "number of rays to fire through the tree",
				},
			},
			Action: cmd.BuildTree,
		},
	}

	app.Run(os.Args)
}
