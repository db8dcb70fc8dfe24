package bvh

import (
	"testing"

	"github.com/wbrbr/tinybvh/vmath"
)

func TestOptimizeRequiresVerboseLayout(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Optimize to panic before a Verbose conversion")
		}
	}()
	b, _ := buildGrid(16)
	b.Optimize()
}

func TestOptimizePreservesTriangleCoverage(t *testing.T) {
	b, _ := buildGrid(64)
	b.Convert(Wald32, Verbose, false)

	before := sahCostVerbose(b)

	for i := 0; i < 50; i++ {
		b.Optimize()
	}

	seen := map[uint32]bool{}
	walkVerboseLeaves(b, 0, seen)
	if len(seen) != 64 {
		t.Fatalf("optimize pass lost triangles; saw %d distinct", len(seen))
	}

	after := sahCostVerbose(b)
	t.Logf("SAH cost before=%f after=%f", before, after)
}

func walkVerboseLeaves(b *BVH, idx uint32, seen map[uint32]bool) {
	n := &b.verbose[idx]
	if n.IsLeaf() {
		for i := uint32(0); i < n.TriCount; i++ {
			seen[b.TriIdx[n.FirstTri+i]] = true
		}
		return
	}
	walkVerboseLeaves(b, n.Left, seen)
	walkVerboseLeaves(b, n.Right, seen)
}

func sahCostVerbose(b *BVH) float32 {
	var total float32
	for i := uint32(0); i < b.usedVerbose; i++ {
		n := &b.verbose[i]
		if n.IsLeaf() {
			total += 2.0 * sa(n.AabbMin, n.AabbMax) * float32(n.TriCount)
		}
	}
	return total
}

func TestFindBestNewPositionReturnsNodeInRange(t *testing.T) {
	b, _ := buildGrid(64)
	b.Convert(Wald32, Verbose, false)

	leafIdx := uint32(0)
	for i := uint32(0); i < b.usedVerbose; i++ {
		if b.verbose[i].IsLeaf() && b.verbose[i].Parent != verboseRootSentinel {
			leafIdx = i
			break
		}
	}
	best := b.FindBestNewPosition(leafIdx)
	if best >= b.usedVerbose {
		t.Fatalf("FindBestNewPosition returned an out-of-range node %d", best)
	}
}

func TestRefitAfterBuildHQPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Refit to panic on a BuildHQ tree")
		}
	}()
	verts := triVerts([][3]vmath.Vec3{
		{vmath.XYZ(0, 0, 0), vmath.XYZ(1, 0, 0), vmath.XYZ(0, 1, 0)},
	})
	b := New()
	b.BuildHQ(verts, 1)
	b.Refit()
}
