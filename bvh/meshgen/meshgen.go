// Package meshgen builds small, procedural triangle meshes for exercising
// the bvh package's builders, converters and traversal kernels without
// depending on an external model loader. Nothing here renders or touches
// the filesystem: every function returns a flat vertex buffer ready to
// hand to bvh.BVH.Build or bvh.BVH.BuildHQ.
package meshgen

import "github.com/wbrbr/tinybvh/vmath"

// Triangle builds the single-triangle mesh used as the universal base
// case in the bvh package's tests: one leaf, one node.
func Triangle() []vmath.Vec4 {
	return []vmath.Vec4{
		vmath.XYZ(0, 0, 0).Vec4(0),
		vmath.XYZ(1, 0, 0).Vec4(0),
		vmath.XYZ(0, 1, 0).Vec4(0),
	}
}

// Cube returns the 12 triangles (2 per face) of an axis-aligned cube
// centered at the origin, with side length 2*halfExtent.
func Cube(halfExtent float32) []vmath.Vec4 {
	e := halfExtent
	corners := [8]vmath.Vec3{
		vmath.XYZ(-e, -e, -e), vmath.XYZ(e, -e, -e), vmath.XYZ(e, e, -e), vmath.XYZ(-e, e, -e),
		vmath.XYZ(-e, -e, e), vmath.XYZ(e, -e, e), vmath.XYZ(e, e, e), vmath.XYZ(-e, e, e),
	}
	// index pairs per face, wound consistently (outward-facing normal not
	// required: the BVH doesn't care about winding).
	faces := [6][4]int{
		{0, 1, 2, 3}, // back
		{5, 4, 7, 6}, // front
		{4, 0, 3, 7}, // left
		{1, 5, 6, 2}, // right
		{3, 2, 6, 7}, // top
		{4, 5, 1, 0}, // bottom
	}
	out := make([]vmath.Vec4, 0, 36)
	for _, f := range faces {
		a, b, c, d := corners[f[0]], corners[f[1]], corners[f[2]], corners[f[3]]
		out = append(out, a.Vec4(0), b.Vec4(0), c.Vec4(0))
		out = append(out, a.Vec4(0), c.Vec4(0), d.Vec4(0))
	}
	return out
}

// Grid returns n*n non-overlapping right-triangle pairs (2*n*n triangles
// total) tiling a unit-cell grid in the z=0 plane, spaced with a small
// gap so adjacent cells never touch. Useful for exercising the builder's
// object-split path over a geometry with an obvious optimal partition.
func Grid(n int, cellSize, gap float32) []vmath.Vec4 {
	stride := cellSize + gap
	out := make([]vmath.Vec4, 0, n*n*6)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			ox, oy := float32(x)*stride, float32(y)*stride
			p0 := vmath.XYZ(ox, oy, 0)
			p1 := vmath.XYZ(ox+cellSize, oy, 0)
			p2 := vmath.XYZ(ox, oy+cellSize, 0)
			p3 := vmath.XYZ(ox+cellSize, oy+cellSize, 0)
			out = append(out, p0.Vec4(0), p1.Vec4(0), p2.Vec4(0))
			out = append(out, p1.Vec4(0), p3.Vec4(0), p2.Vec4(0))
		}
	}
	return out
}

// SliverAndClusters builds a scene built to provoke spatial splits: one
// triangle spans the whole scene along the x axis (-span to +span) while
// two small, dense, well-separated clusters start at x = -span/2 and
// x = +span/2. An object split alone must
// either inflate a child to the sliver's full extent or duplicate work
// across clusters; a spatial split can clip the sliver away from the
// clusters instead. clusterSize sets each cluster's triangle count.
func SliverAndClusters(span float32, clusterSize int) []vmath.Vec4 {
	out := []vmath.Vec4{
		vmath.XYZ(-span, -0.01, -0.01).Vec4(0),
		vmath.XYZ(span, -0.01, -0.01).Vec4(0),
		vmath.XYZ(0, 0.01, 0.01).Vec4(0),
	}
	appendCluster := func(cx float32) {
		for i := 0; i < clusterSize; i++ {
			x := cx + float32(i)*0.1
			out = append(out,
				vmath.XYZ(x, 0, 0).Vec4(0),
				vmath.XYZ(x+0.05, 0, 0).Vec4(0),
				vmath.XYZ(x, 0.05, 0).Vec4(0),
			)
		}
	}
	appendCluster(-span / 2)
	appendCluster(span / 2)
	return out
}
