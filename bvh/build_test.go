package bvh

import (
	"testing"

	"github.com/wbrbr/tinybvh/vmath"
)

func triVerts(tris [][3]vmath.Vec3) []vmath.Vec4 {
	out := make([]vmath.Vec4, 0, len(tris)*3)
	for _, t := range tris {
		for _, v := range t {
			out = append(out, v.Vec4(0))
		}
	}
	return out
}

func TestBuildSingleTriangle(t *testing.T) {
	verts := triVerts([][3]vmath.Vec3{
		{vmath.XYZ(0, 0, 0), vmath.XYZ(1, 0, 0), vmath.XYZ(0, 1, 0)},
	})

	b := New()
	b.Build(verts, 1)

	root := &b.BVHNode[0]
	if !root.IsLeaf() {
		t.Fatalf("single triangle must collapse to a single leaf root")
	}
	if root.TriCount != 1 {
		t.Fatalf("expected TriCount 1; got %d", root.TriCount)
	}
	if root.AabbMin != vmath.XYZ(0, 0, 0) || root.AabbMax != vmath.XYZ(1, 1, 0) {
		t.Fatalf("unexpected root bounds: %v %v", root.AabbMin, root.AabbMax)
	}
}

func TestBuildTwoCoplanarTriangles(t *testing.T) {
	verts := triVerts([][3]vmath.Vec3{
		{vmath.XYZ(0, 0, 0), vmath.XYZ(1, 0, 0), vmath.XYZ(0, 1, 0)},
		{vmath.XYZ(5, 0, 0), vmath.XYZ(6, 0, 0), vmath.XYZ(5, 1, 0)},
	})

	b := New()
	b.Build(verts, 2)

	root := &b.BVHNode[0]
	if root.AabbMin != vmath.XYZ(0, 0, 0) || root.AabbMax != vmath.XYZ(6, 1, 0) {
		t.Fatalf("unexpected root bounds: %v %v", root.AabbMin, root.AabbMax)
	}

	leafCount, triSeen := countLeaves(b, 0, map[uint32]bool{})
	if leafCount < 1 {
		t.Fatalf("expected at least one leaf")
	}
	if len(triSeen) != 2 {
		t.Fatalf("expected both original triangles to be referenced by some leaf; got %d distinct", len(triSeen))
	}
}

func TestBuildManyTrianglesPartitionsAllIndices(t *testing.T) {
	var tris [][3]vmath.Vec3
	for i := 0; i < 64; i++ {
		x := float32(i)
		tris = append(tris, [3]vmath.Vec3{
			vmath.XYZ(x, 0, 0), vmath.XYZ(x+1, 0, 0), vmath.XYZ(x, 1, 0),
		})
	}
	verts := triVerts(tris)

	b := New()
	b.Build(verts, uint32(len(tris)))

	_, triSeen := countLeaves(b, 0, map[uint32]bool{})
	if len(triSeen) != len(tris) {
		t.Fatalf("expected all %d triangles to be referenced by some leaf; saw %d distinct", len(tris), len(triSeen))
	}
	for i := range tris {
		if !triSeen[uint32(i)] {
			t.Fatalf("triangle %d missing from leaves", i)
		}
	}

	assertBoundsContainChildren(t, b, 0)
}

func countLeaves(b *BVH, nodeIdx uint32, seen map[uint32]bool) (int, map[uint32]bool) {
	node := &b.BVHNode[nodeIdx]
	if node.IsLeaf() {
		for i := uint32(0); i < node.TriCount; i++ {
			seen[b.TriIdx[node.LeftFirst+i]] = true
		}
		return 1, seen
	}
	l, _ := countLeaves(b, node.LeftFirst, seen)
	r, _ := countLeaves(b, node.LeftFirst+1, seen)
	return l + r, seen
}

func assertBoundsContainChildren(t *testing.T, b *BVH, nodeIdx uint32) {
	node := &b.BVHNode[nodeIdx]
	if node.IsLeaf() {
		return
	}
	left := &b.BVHNode[node.LeftFirst]
	right := &b.BVHNode[node.LeftFirst+1]
	for axis := 0; axis < 3; axis++ {
		if left.AabbMin[axis] < node.AabbMin[axis]-1e-4 || left.AabbMax[axis] > node.AabbMax[axis]+1e-4 {
			t.Fatalf("left child escapes parent bounds on axis %d", axis)
		}
		if right.AabbMin[axis] < node.AabbMin[axis]-1e-4 || right.AabbMax[axis] > node.AabbMax[axis]+1e-4 {
			t.Fatalf("right child escapes parent bounds on axis %d", axis)
		}
	}
	assertBoundsContainChildren(t, b, node.LeftFirst)
	assertBoundsContainChildren(t, b, node.LeftFirst+1)
}
