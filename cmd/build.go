package cmd

import (
	"bytes"
	"fmt"
	"math/rand"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
	"github.com/wbrbr/tinybvh/bvh"
	"github.com/wbrbr/tinybvh/vmath"
)

// layoutByName maps the CLI's --convert flag to a bvh.Layout, the way
// findDevice in the teacher's debug command resolves a name to a concrete
// value before handing it to the library.
func layoutByName(name string) (bvh.Layout, error) {
	switch name {
	case "", "none":
		return 0, nil
	case "ailalaine":
		return bvh.AilaLaine, nil
	case "altsoa":
		return bvh.AltSoA, nil
	case "verbose":
		return bvh.Verbose, nil
	case "bvh4":
		return bvh.BasicBVH4, nil
	case "bvh4gpu":
		return bvh.BVH4GPU, nil
	case "bvh8":
		return bvh.BasicBVH8, nil
	default:
		return 0, fmt.Errorf("unknown layout %q", name)
	}
}

// BuildTree is the "build" command's action: generate a synthetic mesh,
// build a tree with either builder, optionally convert it to an alternate
// layout and/or run the optimizer, fire a batch of rays through it and
// print a stats table.
func BuildTree(ctx *cli.Context) error {
	setupLogging(ctx)

	verts, err := meshForContext(ctx)
	if err != nil {
		return err
	}
	primCount := uint32(len(verts) / 3)

	tree := bvh.New()
	switch builder := ctx.String("builder"); builder {
	case "sah":
		tree.Build(verts, primCount)
	case "sbvh":
		tree.BuildHQ(verts, primCount)
	default:
		return fmt.Errorf("unknown builder %q (want sah or sbvh)", builder)
	}

	layout := bvh.Wald32
	if name := ctx.String("convert"); name != "" && name != "none" {
		target, err := layoutByName(name)
		if err != nil {
			return err
		}
		if target == bvh.BVH4GPU {
			tree.Convert(bvh.Wald32, bvh.BasicBVH4, false)
			tree.Convert(bvh.BasicBVH4, bvh.BVH4GPU, false)
		} else {
			tree.Convert(bvh.Wald32, target, false)
		}
		layout = target
	}

	if passes := ctx.Int("optimize"); passes > 0 {
		if layout != bvh.Verbose {
			tree.Convert(bvh.Wald32, bvh.Verbose, false)
			layout = bvh.Verbose
		}
		for i := 0; i < passes; i++ {
			tree.Optimize()
		}
		tree.Convert(bvh.Verbose, bvh.Wald32, false)
		layout = bvh.Wald32
	}

	hits := traceRays(tree, verts, layout, ctx.Int("rays"))
	logger.Noticef("traced %d rays, %d hits", ctx.Int("rays"), hits)

	displayStats(tree.Stats(), hits, ctx.Int("rays"))
	return nil
}

// traceRays fires n rays from random points above the mesh's bounding
// region straight down the -y axis, counting hits. It exists purely to
// exercise Intersect end to end; it is not a benchmark harness.
func traceRays(tree *bvh.BVH, verts []vmath.Vec4, layout bvh.Layout, n int) int {
	if layout != bvh.Wald32 && layout != bvh.AilaLaine && layout != bvh.BasicBVH4 && layout != bvh.BasicBVH8 {
		return 0
	}
	bmin, bmax := boundsOf(verts)
	rng := rand.New(rand.NewSource(1))
	hits := 0
	for i := 0; i < n; i++ {
		x := bmin[0] + rng.Float32()*(bmax[0]-bmin[0])
		z := bmin[2] + rng.Float32()*(bmax[2]-bmin[2])
		origin := vmath.XYZ(x, bmax[1]+1, z)
		dir := vmath.XYZ(0, -1, 0)
		ray := bvh.NewRay(origin, dir, 1e30)
		tree.Intersect(&ray, layout)
		if ray.Hit.T < 1e30 {
			hits++
		}
	}
	return hits
}

func boundsOf(verts []vmath.Vec4) (vmath.Vec3, vmath.Vec3) {
	bmin, bmax := vmath.Splat3(1e30), vmath.Splat3(-1e30)
	for _, v := range verts {
		p := v.Vec3()
		bmin = vmath.MinVec3(bmin, p)
		bmax = vmath.MaxVec3(bmax, p)
	}
	return bmin, bmax
}

func displayStats(st bvh.Stats, hits, rays int) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Nodes", "Leaves", "Max depth", "SAH cost", "Build time", "Hits"})
	table.Append([]string{
		fmt.Sprintf("%d", st.NodeCount),
		fmt.Sprintf("%d", st.LeafCount),
		fmt.Sprintf("%d", st.MaxDepth),
		fmt.Sprintf("%.3f", st.SAHCost),
		fmt.Sprintf("%s", st.BuildDuration),
		fmt.Sprintf("%d/%d", hits, rays),
	})
	table.Render()
	logger.Noticef("tree statistics\n%s", buf.String())
}
