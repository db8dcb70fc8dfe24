package bvh

import (
	"testing"

	"github.com/wbrbr/tinybvh/vmath"
)

func buildGrid(n int) (*BVH, []vmath.Vec4) {
	var tris [][3]vmath.Vec3
	for i := 0; i < n; i++ {
		x := float32(i)
		tris = append(tris, [3]vmath.Vec3{
			vmath.XYZ(x, 0, 0), vmath.XYZ(x+1, 0, 0), vmath.XYZ(x, 1, 0),
		})
	}
	verts := triVerts(tris)
	b := New()
	b.Build(verts, uint32(n))
	return b, verts
}

func TestConvertWald32ToAilaLaine(t *testing.T) {
	b, _ := buildGrid(32)
	b.Convert(Wald32, AilaLaine, false)
	if b.usedAltNodes == 0 {
		t.Fatalf("expected AilaLaine nodes to be populated")
	}
	if b.Rebuildable {
		t.Fatalf("Convert must clear Rebuildable")
	}
	total := countAltTris(b, 0)
	if total != 32 {
		t.Fatalf("expected 32 triangles reachable through AilaLaine leaves; got %d", total)
	}
}

func countAltTris(b *BVH, idx uint32) uint32 {
	n := &b.altNode[idx]
	if n.IsLeaf() {
		return n.TriCount
	}
	return countAltTris(b, n.Left) + countAltTris(b, n.Right)
}

func TestConvertWald32ToVerboseAndBack(t *testing.T) {
	b, _ := buildGrid(40)
	b.Convert(Wald32, Verbose, false)
	if b.verbose[0].Parent != verboseRootSentinel {
		t.Fatalf("root's parent must be the sentinel")
	}

	b2, _ := buildGrid(40)
	b2.Convert(Wald32, Verbose, false)
	b2.convertVerboseToWald32()
	if countBVH2Tris(b2, 0) != 40 {
		t.Fatalf("round trip through Verbose lost triangles")
	}
}

func countBVH2Tris(b *BVH, idx uint32) uint32 {
	n := &b.BVHNode[idx]
	if n.IsLeaf() {
		return n.TriCount
	}
	return countBVH2Tris(b, n.LeftFirst) + countBVH2Tris(b, n.LeftFirst+1)
}

func TestConvertWald32ToBVH4Collapses(t *testing.T) {
	b, _ := buildGrid(64)
	b.Convert(Wald32, BasicBVH4, false)

	root := &b.bvh4Node[0]
	if root.ChildCount < 2 || root.ChildCount > 4 {
		t.Fatalf("expected root to collapse to between 2 and 4 children; got %d", root.ChildCount)
	}
}

func TestConvertBVH4ToGPUProducesNonEmptyBlob(t *testing.T) {
	b, _ := buildGrid(16)
	b.Convert(Wald32, BasicBVH4, false)
	b.Convert(BasicBVH4, BVH4GPU, false)

	if len(b.bvh4Alt.Data) == 0 {
		t.Fatalf("expected a non-empty GPU blob")
	}
	// 16 unit triangles in a row split into a balanced tree of depth 4, so
	// the collapsed root has four interior children of 4 triangles each,
	// and each of those has four single-triangle leaf children.
	childInfo := b.bvh4Alt.Data[3]
	for lane := 0; lane < 4; lane++ {
		bits := vmath.FloatToBits(childInfo[lane])
		if bits&childInfoLeafBit != 0 || bits == 0 {
			t.Fatalf("expected root lane %d to address an interior child block; got %#x", lane, bits)
		}
	}
	childBlock := vmath.FloatToBits(childInfo[0])
	grandInfo := b.bvh4Alt.Data[childBlock+3]
	foundLeaf := false
	for lane := 0; lane < 4; lane++ {
		bits := vmath.FloatToBits(grandInfo[lane])
		if bits&childInfoLeafBit != 0 {
			foundLeaf = true
		}
	}
	if !foundLeaf {
		t.Fatalf("expected at least one leaf-tagged child in the first child block's childInfo word")
	}
}

func TestConvertInvalidEdgePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Convert to panic on an unsupported layout edge")
		}
	}()
	b, _ := buildGrid(4)
	b.Convert(AilaLaine, BasicBVH8, false)
}
