package bvh

import "github.com/wbrbr/tinybvh/vmath"

// packetStackEntry mirrors the packed (node, first<<8|last) stack entries
// the reference packet traverser keeps; Go gets to use a struct instead of
// packing two values into one word.
type packetStackEntry struct {
	node        uint32
	first, last int
}

// Intersect256Rays traverses a Wald32 tree with a fixed 256-ray packet,
// culling subtrees against the packet's bounding frustum before falling
// back to per-ray tests. rays must have length 256 and share a common
// origin; corner rays 0, 51, 204 and 255 define the frustum, following
// Overbeck et al.'s "Large Ray Packets for Real-Time Whitted Ray Tracing".
// This is a scalar reference implementation: a production renderer would
// vectorize the inner slab tests.
func (b *BVH) Intersect256Rays(rays []*Ray) {
	if len(rays) != 256 {
		panicPrecondition("Intersect256Rays", "packet must contain exactly 256 rays")
	}

	O := rays[0].O
	p0 := rays[0].O.Add(rays[0].D)
	p1 := rays[51].O.Add(rays[51].D)
	p2 := rays[204].O.Add(rays[204].D)
	p3 := rays[255].O.Add(rays[255].D)

	plane0 := p0.Sub(O).Cross(p0.Sub(p2)).Normalize()
	plane1 := p3.Sub(O).Cross(p3.Sub(p1)).Normalize()
	plane2 := p1.Sub(O).Cross(p1.Sub(p0)).Normalize()
	plane3 := p2.Sub(O).Cross(p2.Sub(p3)).Normalize()

	sign := func(v vmath.Vec3) (x, y, z int) {
		return signAxis(v[0], 0), signAxis(v[1], 1), signAxis(v[2], 2)
	}
	sign0x, sign0y, sign0z := sign(plane0)
	sign1x, sign1y, sign1z := sign(plane1)
	sign2x, sign2y, sign2z := sign(plane2)
	sign3x, sign3y, sign3z := sign(plane3)

	d0, d1 := O.Dot(plane0), O.Dot(plane1)
	d2, d3 := O.Dot(plane2), O.Dot(plane3)

	first, last := 0, 255
	node := &b.BVHNode[0]
	var stack [64]packetStackEntry
	stackPtr := 0

traverse:
	for {
		if node.IsLeaf() {
			for j := uint32(0); j < node.TriCount; j++ {
				idx := b.TriIdx[node.LeftFirst+j]
				vid := idx * 3
				v0 := b.Verts[vid].Vec3()
				edge1 := b.Verts[vid+1].Vec3().Sub(v0)
				edge2 := b.Verts[vid+2].Vec3().Sub(v0)
				s := O.Sub(v0)
				for i := first; i <= last; i++ {
					ray := rays[i]
					h := ray.D.Cross(edge2)
					a := edge1.Dot(h)
					if absf(a) < parallelEps {
						continue
					}
					f := 1.0 / a
					u := f * s.Dot(h)
					if u < 0 || u > 1 {
						continue
					}
					q := s.Cross(edge1)
					v := f * ray.D.Dot(q)
					if v < 0 || u+v > 1 {
						continue
					}
					t := f * edge2.Dot(q)
					if t <= 0 || t >= ray.Hit.T {
						continue
					}
					ray.Hit.T, ray.Hit.U, ray.Hit.V, ray.Hit.Prim = t, u, v, idx
				}
			}
			if stackPtr == 0 {
				break
			}
			stackPtr--
			node = &b.BVHNode[stack[stackPtr].node]
			first, last = stack[stackPtr].first, stack[stackPtr].last
			continue
		}

		left := &b.BVHNode[node.LeftFirst]
		right := &b.BVHNode[node.LeftFirst+1]

		visitLeft, distLeft, leftFirst, leftLast := packetVisitChild(rays, O, left,
			plane0, plane1, plane2, plane3, d0, d1, d2, d3,
			sign0x, sign0y, sign0z, sign1x, sign1y, sign1z, sign2x, sign2y, sign2z, sign3x, sign3y, sign3z,
			first, last)
		visitRight, distRight, rightFirst, rightLast := packetVisitChild(rays, O, right,
			plane0, plane1, plane2, plane3, d0, d1, d2, d3,
			sign0x, sign0y, sign0z, sign1x, sign1y, sign1z, sign2x, sign2y, sign2z, sign3x, sign3y, sign3z,
			first, last)

		switch {
		case visitLeft && visitRight:
			if distLeft < distRight {
				stack[stackPtr] = packetStackEntry{node: node.LeftFirst + 1, first: rightFirst, last: rightLast}
				stackPtr++
				node, first, last = left, leftFirst, leftLast
			} else {
				stack[stackPtr] = packetStackEntry{node: node.LeftFirst, first: leftFirst, last: leftLast}
				stackPtr++
				node, first, last = right, rightFirst, rightLast
			}
		case visitLeft:
			node, first, last = left, leftFirst, leftLast
		case visitRight:
			node, first, last = right, rightFirst, rightLast
		default:
			if stackPtr == 0 {
				break traverse
			}
			stackPtr--
			node = &b.BVHNode[stack[stackPtr].node]
			first, last = stack[stackPtr].first, stack[stackPtr].last
		}
	}
}

func signAxis(v float32, axis int) int {
	if v < 0 {
		return axis + 3
	}
	return axis
}

// packetVisitChild decides whether the packet's active [first,last] range
// intersects child, narrowing the range along the way. It mirrors the
// reference's three-stage test: early-in on the first ray, early-out
// against the four frustum planes, and a last-resort linear scan to
// shrink [first,last] to the rays that actually hit.
func packetVisitChild(
	rays []*Ray, O vmath.Vec3, child *Node,
	plane0, plane1, plane2, plane3 vmath.Vec3,
	d0, d1, d2, d3 float32,
	s0x, s0y, s0z, s1x, s1y, s1z, s2x, s2y, s2z, s3x, s3y, s3z int,
	first, last int,
) (visit bool, dist float32, newFirst, newLast int) {
	o1 := child.AabbMin.Sub(O)
	o2 := child.AabbMax.Sub(O)

	tmin, tmax := packetSlab(rays[first], o1, o2)
	if tmax >= tmin && tmin < rays[first].Hit.T && tmax >= 0 {
		return true, tmin, first, last
	}

	bounds := [6]float32{o1[0], o1[1], o1[2], o2[0], o2[1], o2[2]}
	pt0 := vmath.XYZ(bounds[s0x], bounds[s0y], bounds[s0z])
	pt1 := vmath.XYZ(bounds[s1x], bounds[s1y], bounds[s1z])
	pt2 := vmath.XYZ(bounds[s2x], bounds[s2y], bounds[s2z])
	pt3 := vmath.XYZ(bounds[s3x], bounds[s3y], bounds[s3z])
	if pt0.Dot(plane0) > d0 || pt1.Dot(plane1) > d1 || pt2.Dot(plane2) > d2 || pt3.Dot(plane3) > d3 {
		return false, missT, first, last
	}

	newFirst, newLast = first, last
	dist = missT
	for ; newFirst <= newLast; newFirst++ {
		tmin, tmax := packetSlab(rays[newFirst], o1, o2)
		if tmax >= tmin && tmin < rays[newFirst].Hit.T && tmax >= 0 {
			dist = tmin
			break
		}
	}
	for ; newLast >= newFirst; newLast-- {
		tmin, tmax := packetSlab(rays[newLast], o1, o2)
		if tmax >= tmin && tmin < rays[newLast].Hit.T && tmax >= 0 {
			break
		}
	}
	return newLast >= newFirst, dist, newFirst, newLast
}

func packetSlab(ray *Ray, o1, o2 vmath.Vec3) (tmin, tmax float32) {
	t1 := o1.MulV(ray.RD)
	t2 := o2.MulV(ray.RD)
	tmin = maxf3(minf(t1[0], t2[0]), minf(t1[1], t2[1]), minf(t1[2], t2[2]))
	tmax = minf3(maxf(t1[0], t2[0]), maxf(t1[1], t2[1]), maxf(t1[2], t2[2]))
	return
}
