package bvh

import (
	"testing"

	"github.com/wbrbr/tinybvh/vmath"
)

func buildScene() (*BVH, []vmath.Vec4) {
	var tris [][3]vmath.Vec3
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			fx, fy := float32(x)*3, float32(y)*3
			tris = append(tris, [3]vmath.Vec3{
				vmath.XYZ(fx, fy, 0), vmath.XYZ(fx+1, fy, 0), vmath.XYZ(fx, fy+1, 0),
			})
		}
	}
	verts := triVerts(tris)
	b := New()
	b.Build(verts, uint32(len(tris)))
	return b, verts
}

func TestIntersectWald32HitsExpectedTriangle(t *testing.T) {
	b, _ := buildScene()
	ray := NewRay(vmath.XYZ(0.2, 0.2, -10), vmath.XYZ(0, 0, 1), missT)
	b.Intersect(&ray, Wald32)
	if ray.Hit.Prim != 0 {
		t.Fatalf("expected to hit triangle 0; got %d (t=%f)", ray.Hit.Prim, ray.Hit.T)
	}

	miss := NewRay(vmath.XYZ(100, 100, -10), vmath.XYZ(0, 0, 1), missT)
	b.Intersect(&miss, Wald32)
	if miss.Hit.T != missT {
		t.Fatalf("expected a miss; got t=%f", miss.Hit.T)
	}
}

func TestIntersectAilaLaineMatchesWald32(t *testing.T) {
	b, _ := buildScene()
	b.Convert(Wald32, AilaLaine, false)

	rays := []Ray{
		NewRay(vmath.XYZ(0.2, 0.2, -10), vmath.XYZ(0, 0, 1), missT),
		NewRay(vmath.XYZ(9.2, 9.2, -10), vmath.XYZ(0, 0, 1), missT),
		NewRay(vmath.XYZ(100, 100, -10), vmath.XYZ(0, 0, 1), missT),
	}
	for i, r := range rays {
		wald := r
		alt := r
		b.Intersect(&wald, Wald32)
		b.Intersect(&alt, AilaLaine)
		if wald.Hit.Prim != alt.Hit.Prim || wald.Hit.T != alt.Hit.T {
			t.Fatalf("ray %d: Wald32 and AilaLaine disagree: %+v vs %+v", i, wald.Hit, alt.Hit)
		}
	}
}

func TestIntersectBasicBVH4MatchesWald32(t *testing.T) {
	b, _ := buildScene()
	b.Convert(Wald32, BasicBVH4, false)

	rays := []Ray{
		NewRay(vmath.XYZ(0.2, 0.2, -10), vmath.XYZ(0, 0, 1), missT),
		NewRay(vmath.XYZ(6.2, 6.2, -10), vmath.XYZ(0, 0, 1), missT),
	}
	for i, r := range rays {
		wald := r
		bvh4 := r
		b.Intersect(&wald, Wald32)
		b.Intersect(&bvh4, BasicBVH4)
		if wald.Hit.Prim != bvh4.Hit.Prim {
			t.Fatalf("ray %d: Wald32 and BasicBVH4 disagree: prim %d vs %d", i, wald.Hit.Prim, bvh4.Hit.Prim)
		}
	}
}

func TestIntersectTriBarycentricsInRange(t *testing.T) {
	verts := triVerts([][3]vmath.Vec3{
		{vmath.XYZ(0, 0, 0), vmath.XYZ(1, 0, 0), vmath.XYZ(0, 1, 0)},
	})
	b := New()
	b.Build(verts, 1)

	ray := NewRay(vmath.XYZ(0.2, 0.2, -1), vmath.XYZ(0, 0, 1), missT)
	b.IntersectTri(&ray, 0)
	if ray.Hit.T != 1 {
		t.Fatalf("expected unit distance hit; got %f", ray.Hit.T)
	}
	if ray.Hit.U+ray.Hit.V > 1.0001 || ray.Hit.U < 0 || ray.Hit.V < 0 {
		t.Fatalf("barycentric coords out of range: u=%f v=%f", ray.Hit.U, ray.Hit.V)
	}
}

func TestIntersectAABBSlabTest(t *testing.T) {
	ray := NewRay(vmath.XYZ(0.5, 0.5, -5), vmath.XYZ(0, 0, 1), missT)
	dist := IntersectAABB(&ray, vmath.XYZ(0, 0, 0), vmath.XYZ(1, 1, 1))
	if dist != 5 {
		t.Fatalf("expected slab test distance 5; got %f", dist)
	}

	miss := NewRay(vmath.XYZ(5, 5, -5), vmath.XYZ(0, 0, 1), missT)
	if dist := IntersectAABB(&miss, vmath.XYZ(0, 0, 0), vmath.XYZ(1, 1, 1)); dist != missT {
		t.Fatalf("expected a miss; got %f", dist)
	}
}
