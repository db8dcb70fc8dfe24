package bvh

import (
	"testing"

	"github.com/wbrbr/tinybvh/vmath"
)

func TestBuildHQSingleTriangle(t *testing.T) {
	verts := triVerts([][3]vmath.Vec3{
		{vmath.XYZ(0, 0, 0), vmath.XYZ(1, 0, 0), vmath.XYZ(0, 1, 0)},
	})

	b := New()
	b.BuildHQ(verts, 1)

	if b.Refittable {
		t.Fatalf("BuildHQ must clear Refittable")
	}
	root := &b.BVHNode[0]
	if !root.IsLeaf() || root.TriCount != 1 {
		t.Fatalf("single triangle should collapse to one leaf; got TriCount=%d", root.TriCount)
	}
}

// TestBuildHQSpatialSplitKeepsAllTriangles builds over the case spatial
// splits exist for: a long thin triangle straddling two dense,
// well-separated clusters of small triangles, where BuildHQ may clip the
// straddler into the SBVH's extra fragment slots. It checks that every
// input triangle still appears in some leaf once fragment indices have
// been remapped to primitive indices.
func TestBuildHQSpatialSplitKeepsAllTriangles(t *testing.T) {
	var tris [][3]vmath.Vec3
	// a sliver spanning the entire scene on the x axis
	tris = append(tris, [3]vmath.Vec3{
		vmath.XYZ(-100, -0.01, -0.01), vmath.XYZ(100, -0.01, -0.01), vmath.XYZ(0, 0.01, 0.01),
	})
	// a tight cluster near x=-50
	for i := 0; i < 8; i++ {
		x := -50 + float32(i)*0.1
		tris = append(tris, [3]vmath.Vec3{
			vmath.XYZ(x, 0, 0), vmath.XYZ(x+0.05, 0, 0), vmath.XYZ(x, 0.05, 0),
		})
	}
	// a tight cluster near x=+50
	for i := 0; i < 8; i++ {
		x := 50 + float32(i)*0.1
		tris = append(tris, [3]vmath.Vec3{
			vmath.XYZ(x, 0, 0), vmath.XYZ(x+0.05, 0, 0), vmath.XYZ(x, 0.05, 0),
		})
	}
	verts := triVerts(tris)

	b := New()
	b.BuildHQ(verts, uint32(len(tris)))

	seen := map[uint32]bool{}
	walkHQLeaves(b, 0, seen)
	for i := range tris {
		if !seen[uint32(i)] {
			t.Fatalf("triangle %d missing from SBVH leaves", i)
		}
	}
}

func walkHQLeaves(b *BVH, nodeIdx uint32, seen map[uint32]bool) {
	node := &b.BVHNode[nodeIdx]
	if node.IsLeaf() {
		for i := uint32(0); i < node.TriCount; i++ {
			seen[b.TriIdx[node.LeftFirst+i]] = true
		}
		return
	}
	walkHQLeaves(b, node.LeftFirst, seen)
	walkHQLeaves(b, node.LeftFirst+1, seen)
}

func TestClipFragProducesBoundedFragment(t *testing.T) {
	verts := triVerts([][3]vmath.Vec3{
		{vmath.XYZ(0, 0, 0), vmath.XYZ(10, 0, 0), vmath.XYZ(0, 10, 0)},
	})
	orig := Fragment{BMin: vmath.XYZ(0, 0, 0), BMax: vmath.XYZ(10, 10, 0), PrimIdx: 0}
	var out Fragment
	minDim := vmath.XYZ(1e-7, 1e-7, 1e-7)

	ok := clipFrag(verts, orig, &out, vmath.XYZ(0, 0, 0), vmath.XYZ(5, 10, 0), minDim)
	if !ok {
		t.Fatalf("expected clip against the left half to succeed")
	}
	if out.BMax[0] > 5.0001 {
		t.Fatalf("clipped fragment escapes the clip box on x: %v", out.BMax)
	}

	ok = clipFrag(verts, orig, &out, vmath.XYZ(20, 20, 0), vmath.XYZ(30, 30, 0), minDim)
	if ok {
		t.Fatalf("expected clip against a disjoint box to fail")
	}
}
