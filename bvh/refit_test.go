package bvh

import (
	"testing"

	"github.com/wbrbr/tinybvh/vmath"
)

func TestRefitTracksMovedVertices(t *testing.T) {
	verts := triVerts([][3]vmath.Vec3{
		{vmath.XYZ(0, 0, 0), vmath.XYZ(1, 0, 0), vmath.XYZ(0, 1, 0)},
		{vmath.XYZ(5, 0, 0), vmath.XYZ(6, 0, 0), vmath.XYZ(5, 1, 0)},
	})
	b := New()
	b.Build(verts, 2)

	// move the second triangle far away and refit in place.
	verts[3] = vmath.XYZ(50, 50, 50).Vec4(0)
	verts[4] = vmath.XYZ(51, 50, 50).Vec4(0)
	verts[5] = vmath.XYZ(50, 51, 50).Vec4(0)
	b.Refit()

	root := &b.BVHNode[0]
	if root.AabbMax[0] < 50 {
		t.Fatalf("expected root bounds to grow to cover the moved triangle; got %v", root.AabbMax)
	}
}

func TestSAHCostAndNodeCount(t *testing.T) {
	b, _ := buildGrid(64)

	cost := b.SAHCost(0)
	if cost <= 0 {
		t.Fatalf("expected a positive SAH cost; got %f", cost)
	}

	count := b.NodeCount(0)
	if count < 1 || uint32(count) > b.usedBVHNodes {
		t.Fatalf("NodeCount %d out of plausible range [1, %d]", count, b.usedBVHNodes)
	}
}
