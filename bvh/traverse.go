package bvh

import "github.com/wbrbr/tinybvh/vmath"

// Intersect finds the closest hit for ray against the tree in the given
// layout, updating ray.Hit in place, and returns the number of traversal
// steps taken (leaf visits plus interior node visits) -- useful to
// visualize traversal cost. AltSoA has no single-ray kernel here: the
// reference this package is grounded on only traverses that layout with
// SIMD comparisons, so AltSoA is conversion-only in this port.
func (b *BVH) Intersect(ray *Ray, layout Layout) int {
	switch layout {
	case Wald32:
		return b.intersectWald32(ray)
	case AilaLaine:
		return b.intersectAilaLaine(ray)
	case BasicBVH4:
		return b.intersectBasicBVH4(ray)
	case BasicBVH8:
		return b.intersectBasicBVH8(ray)
	default:
		panicPrecondition("Intersect", "no single-ray kernel for layout "+layout.String())
		return 0
	}
}

func (b *BVH) intersectWald32(ray *Ray) int {
	node := &b.BVHNode[0]
	var stack [64]*Node
	stackPtr := 0
	steps := 0
	for {
		steps++
		if node.IsLeaf() {
			for i := uint32(0); i < node.TriCount; i++ {
				b.IntersectTri(ray, b.TriIdx[node.LeftFirst+i])
			}
			if stackPtr == 0 {
				break
			}
			stackPtr--
			node = stack[stackPtr]
			continue
		}
		child1 := &b.BVHNode[node.LeftFirst]
		child2 := &b.BVHNode[node.LeftFirst+1]
		dist1 := intersectAABBNode(ray, child1.AabbMin, child1.AabbMax)
		dist2 := intersectAABBNode(ray, child2.AabbMin, child2.AabbMax)
		if dist1 > dist2 {
			dist1, dist2 = dist2, dist1
			child1, child2 = child2, child1
		}
		if dist1 == missT {
			if stackPtr == 0 {
				break
			}
			stackPtr--
			node = stack[stackPtr]
		} else {
			node = child1
			if dist2 != missT {
				stack[stackPtr] = child2
				stackPtr++
			}
		}
	}
	return steps
}

func (b *BVH) intersectAilaLaine(ray *Ray) int {
	node := &b.altNode[0]
	var stack [64]*NodeAlt
	stackPtr := 0
	steps := 0
	for {
		steps++
		if node.IsLeaf() {
			for i := uint32(0); i < node.TriCount; i++ {
				b.IntersectTri(ray, b.TriIdx[node.FirstTri+i])
			}
			if stackPtr == 0 {
				break
			}
			stackPtr--
			node = stack[stackPtr]
			continue
		}
		lmin := node.LMin.Sub(ray.O)
		lmax := node.LMax.Sub(ray.O)
		rmin := node.RMin.Sub(ray.O)
		rmax := node.RMax.Sub(ray.O)
		dist1, dist2 := missT, missT

		t1a, t2a := lmin.MulV(ray.RD), lmax.MulV(ray.RD)
		tmina := maxf3(minf(t1a[0], t2a[0]), minf(t1a[1], t2a[1]), minf(t1a[2], t2a[2]))
		tmaxa := minf3(maxf(t1a[0], t2a[0]), maxf(t1a[1], t2a[1]), maxf(t1a[2], t2a[2]))
		if tmaxa >= tmina && tmina < ray.Hit.T && tmaxa >= 0 {
			dist1 = tmina
		}

		t1b, t2b := rmin.MulV(ray.RD), rmax.MulV(ray.RD)
		tminb := maxf3(minf(t1b[0], t2b[0]), minf(t1b[1], t2b[1]), minf(t1b[2], t2b[2]))
		tmaxb := minf3(maxf(t1b[0], t2b[0]), maxf(t1b[1], t2b[1]), maxf(t1b[2], t2b[2]))
		if tmaxb >= tminb && tminb < ray.Hit.T && tmaxb >= 0 {
			dist2 = tminb
		}

		lidx, ridx := node.Left, node.Right
		if dist1 > dist2 {
			dist1, dist2 = dist2, dist1
			lidx, ridx = ridx, lidx
		}
		if dist1 == missT {
			if stackPtr == 0 {
				break
			}
			stackPtr--
			node = stack[stackPtr]
		} else {
			node = &b.altNode[lidx]
			if dist2 != missT {
				stack[stackPtr] = &b.altNode[ridx]
				stackPtr++
			}
		}
	}
	return steps
}

// intersectBasicBVH4 and intersectBasicBVH8 are deliberately unsorted,
// brute-force child visits: they exist to validate the wide-node
// conversion, not to be fast.
func (b *BVH) intersectBasicBVH4(ray *Ray) int {
	node := &b.bvh4Node[0]
	var stack [64]*Node4
	stackPtr := 0
	steps := 0
	for {
		steps++
		if node.IsLeaf() {
			for i := uint32(0); i < node.TriCount; i++ {
				b.IntersectTri(ray, b.TriIdx[node.FirstTri+i])
			}
		} else {
			for i := uint32(0); i < node.ChildCount; i++ {
				child := &b.bvh4Node[node.Child[i]]
				if intersectAABBNode(ray, child.AabbMin, child.AabbMax) < missT {
					stack[stackPtr] = child
					stackPtr++
				}
			}
		}
		if stackPtr == 0 {
			break
		}
		stackPtr--
		node = stack[stackPtr]
	}
	return steps
}

func (b *BVH) intersectBasicBVH8(ray *Ray) int {
	node := &b.bvh8Node[0]
	var stack [128]*Node8
	stackPtr := 0
	steps := 0
	for {
		steps++
		if node.IsLeaf() {
			for i := uint32(0); i < node.TriCount; i++ {
				b.IntersectTri(ray, b.TriIdx[node.FirstTri+i])
			}
		} else {
			for i := uint32(0); i < node.ChildCount; i++ {
				child := &b.bvh8Node[node.Child[i]]
				if intersectAABBNode(ray, child.AabbMin, child.AabbMax) < missT {
					stack[stackPtr] = child
					stackPtr++
				}
			}
		}
		if stackPtr == 0 {
			break
		}
		stackPtr--
		node = stack[stackPtr]
	}
	return steps
}

// IntersectTri runs the Moeller-Trumbore ray/triangle test against
// primitive idx, updating ray.Hit if it is the closest hit seen so far.
func (b *BVH) IntersectTri(ray *Ray, idx uint32) {
	vertIdx := idx * 3
	v0 := b.Verts[vertIdx].Vec3()
	edge1 := b.Verts[vertIdx+1].Vec3().Sub(v0)
	edge2 := b.Verts[vertIdx+2].Vec3().Sub(v0)
	h := ray.D.Cross(edge2)
	a := edge1.Dot(h)
	if absf(a) < parallelEps {
		return
	}
	f := 1.0 / a
	s := ray.O.Sub(v0)
	u := f * s.Dot(h)
	if u < 0 || u > 1 {
		return
	}
	q := s.Cross(edge1)
	v := f * ray.D.Dot(q)
	if v < 0 || u+v > 1 {
		return
	}
	t := f * edge2.Dot(q)
	if t > 0 && t < ray.Hit.T {
		ray.Hit.T, ray.Hit.U, ray.Hit.V, ray.Hit.Prim = t, u, v, idx
	}
}

// IntersectAABB runs the slab test against [aabbMin, aabbMax] for ray,
// returning the near-plane distance, or the miss sentinel (1e30) if the
// box is missed or lies entirely behind the ray or beyond the current hit.
func IntersectAABB(ray *Ray, aabbMin, aabbMax vmath.Vec3) float32 {
	return intersectAABBNode(ray, aabbMin, aabbMax)
}

func intersectAABBNode(ray *Ray, aabbMin, aabbMax vmath.Vec3) float32 {
	tx1 := (aabbMin[0] - ray.O[0]) * ray.RD[0]
	tx2 := (aabbMax[0] - ray.O[0]) * ray.RD[0]
	tmin, tmax := minf(tx1, tx2), maxf(tx1, tx2)
	ty1 := (aabbMin[1] - ray.O[1]) * ray.RD[1]
	ty2 := (aabbMax[1] - ray.O[1]) * ray.RD[1]
	tmin = maxf(tmin, minf(ty1, ty2))
	tmax = minf(tmax, maxf(ty1, ty2))
	tz1 := (aabbMin[2] - ray.O[2]) * ray.RD[2]
	tz2 := (aabbMax[2] - ray.O[2]) * ray.RD[2]
	tmin = maxf(tmin, minf(tz1, tz2))
	tmax = minf(tmax, maxf(tz1, tz2))
	if tmax >= tmin && tmin < ray.Hit.T && tmax >= 0 {
		return tmin
	}
	return missT
}

func minf(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minf3(a, b, c float32) float32 { return minf(minf(a, b), c) }
func maxf3(a, b, c float32) float32 { return maxf(maxf(a, b), c) }

func absf(a float32) float32 {
	if a < 0 {
		return -a
	}
	return a
}
