package bvh

import (
	"time"

	"github.com/wbrbr/tinybvh/vmath"
)

// hqTask mirrors the work-stack entries build.go uses, but BuildHQ also
// needs to track the [sliceStart, sliceEnd) triIdx range a subtree is
// allowed to grow into, since spatial splits append new fragments.
type hqTask struct {
	node             uint32
	sliceStart, sliceEnd uint32
}

// BuildHQ constructs a spatial-split BVH (SBVH) over primCount triangles.
// Besides the object splits Build considers, BuildHQ also evaluates
// spatial splits that clip straddling triangles into multiple fragments,
// at the cost of a slack allocation (primCount/4 extra slots) and
// considerably higher build time. The resulting tree traverses faster but
// cannot be refit: Refittable is false on return.
func (b *BVH) BuildHQ(verts []vmath.Vec4, primCount uint32) {
	if !b.Rebuildable {
		panicPrecondition("BuildHQ", "tree has been converted to an alternate layout; rebuild requires a fresh BVH")
	}
	start := time.Now()

	slack := primCount >> 2
	spaceNeeded := primCount * 3
	b.ensureNodeCapacity(spaceNeeded)
	idxCount := primCount + slack
	b.TriIdx = ensureU32Capacity(b.TriIdx, idxCount)
	b.Fragment = ensureFragCapacity(b.Fragment, idxCount)

	b.Verts = verts
	b.TriCount = primCount
	b.IdxCount = idxCount

	triIdxA := b.TriIdx
	triIdxB := make([]uint32, idxCount)

	newNodePtr := uint32(2)
	nextFrag := primCount

	root := &b.BVHNode[0]
	root.LeftFirst, root.TriCount = 0, primCount
	root.AabbMin, root.AabbMax = vmath.Splat3(1e30), vmath.Splat3(-1e30)

	for i := uint32(0); i < primCount; i++ {
		v0, v1, v2 := verts[i*3], verts[i*3+1], verts[i*3+2]
		bmin := vmath.MinVec3(vmath.MinVec3(v0.Vec3(), v1.Vec3()), v2.Vec3())
		bmax := vmath.MaxVec3(vmath.MaxVec3(v0.Vec3(), v1.Vec3()), v2.Vec3())
		b.Fragment[i] = Fragment{BMin: bmin, BMax: bmax, PrimIdx: i}
		root.AabbMin = vmath.MinVec3(root.AabbMin, bmin)
		root.AabbMax = vmath.MaxVec3(root.AabbMax, bmax)
		triIdxA[i] = i
	}

	rootArea := root.AabbMax.Sub(root.AabbMin).HalfArea()
	minDim := root.AabbMax.Sub(root.AabbMin).Mul(sahMinDimHQ)

	var task [256]hqTask
	taskCount := 0
	nodeIdx := uint32(0)
	sliceStart, sliceEnd := uint32(0), idxCount

	for {
		for {
			node := &b.BVHNode[nodeIdx]

			bestAxis, bestPos, splitCost, bestLMin, bestLMax, bestRMin, bestRMax := b.findObjectSplitHQ(node, triIdxA, minDim)

			budget := sliceEnd - sliceStart
			spatial := false
			spatialUnion := bestLMax.Sub(bestRMin)
			spatialOverlap := spatialUnion.HalfArea() / rootArea
			if budget > node.TriCount && splitCost < missT && spatialOverlap > 1e-5 {
				sAxis, sPos, sCost, sLMin, sLMax, sRMin, sRMax, ok := b.findSpatialSplit(node, triIdxA, minDim, budget, splitCost)
				if ok {
					spatial = true
					bestAxis, bestPos, splitCost = sAxis, sPos, sCost
					bestLMin, bestLMax, bestRMin, bestRMax = sLMin, sLMax, sRMin, sRMax
					bestLMax[bestAxis] = bestRMin[bestAxis]
				}
			}

			if splitCost >= node.NodeCost() {
				break
			}

			A, Bp := sliceStart, sliceEnd
			src := node.LeftFirst
			if spatial {
				planeDist := (node.AabbMax[bestAxis] - node.AabbMin[bestAxis]) / (float32(BVHBINS) * 0.9999)
				rPlaneDist := 1.0 / planeDist
				nodeMin := node.AabbMin[bestAxis]
				for i := uint32(0); i < node.TriCount; i++ {
					fragIdx := triIdxA[src]
					src++
					bin1 := int((b.Fragment[fragIdx].BMin[bestAxis] - nodeMin) * rPlaneDist)
					bin2 := int((b.Fragment[fragIdx].BMax[bestAxis] - nodeMin) * rPlaneDist)
					switch {
					case bin2 <= bestPos:
						triIdxB[A] = fragIdx
						A++
					case bin1 > bestPos:
						Bp--
						triIdxB[Bp] = fragIdx
					default:
						orig := b.Fragment[fragIdx]
						var newFrag Fragment
						rMin := vmath.MaxVec3(bestRMin, node.AabbMin)
						rMax := vmath.MinVec3(bestRMax, node.AabbMax)
						if clipFrag(b.Verts, orig, &newFrag, rMin, rMax, minDim) {
							b.Fragment[nextFrag] = newFrag
							Bp--
							triIdxB[Bp] = nextFrag
							nextFrag++
						}
						lMin := vmath.MaxVec3(bestLMin, node.AabbMin)
						lMax := vmath.MinVec3(bestLMax, node.AabbMax)
						var clippedOrig Fragment
						if clipFrag(b.Verts, orig, &clippedOrig, lMin, lMax, minDim) {
							b.Fragment[fragIdx] = clippedOrig
							triIdxB[A] = fragIdx
							A++
						}
					}
				}
			} else {
				rpd := safeBinScale(node.AabbMax[bestAxis] - node.AabbMin[bestAxis])
				nmin := node.AabbMin[bestAxis]
				for i := uint32(0); i < node.TriCount; i++ {
					fr := triIdxA[src+i]
					f := &b.Fragment[fr]
					centroid := (f.BMin[bestAxis] + f.BMax[bestAxis]) * 0.5
					bi := vmath.ClampI(int((centroid-nmin)*rpd), 0, BVHBINS-1)
					if bi <= bestPos {
						triIdxB[A] = fr
						A++
					} else {
						Bp--
						triIdxB[Bp] = fr
					}
				}
			}

			copy(triIdxA[sliceStart:sliceEnd], triIdxB[sliceStart:sliceEnd])

			leftCount := A - sliceStart
			rightCount := sliceEnd - Bp
			if leftCount == 0 || rightCount == 0 {
				break
			}

			leftChildIdx, rightChildIdx := newNodePtr, newNodePtr+1
			newNodePtr += 2
			b.BVHNode[leftChildIdx] = Node{AabbMin: bestLMin, AabbMax: bestLMax, LeftFirst: sliceStart, TriCount: leftCount}
			b.BVHNode[rightChildIdx] = Node{AabbMin: bestRMin, AabbMax: bestRMax, LeftFirst: Bp, TriCount: rightCount}
			node.LeftFirst, node.TriCount = leftChildIdx, 0

			mid := (A + Bp) >> 1
			task[taskCount] = hqTask{node: rightChildIdx, sliceStart: mid, sliceEnd: sliceEnd}
			taskCount++
			sliceEnd = mid
			nodeIdx = leftChildIdx
		}
		if taskCount == 0 {
			break
		}
		taskCount--
		nodeIdx = task[taskCount].node
		sliceStart = task[taskCount].sliceStart
		sliceEnd = task[taskCount].sliceEnd
	}

	for i := uint32(0); i < idxCount; i++ {
		triIdxA[i] = b.Fragment[triIdxA[i]].PrimIdx
	}

	b.usedBVHNodes = newNodePtr
	b.Refittable = false
	b.buildDuration = time.Since(start)

	buildLogger.Debugf("BuildHQ: %d tris, %d nodes, %d fragments used, %s", primCount, newNodePtr, nextFrag, b.buildDuration)
}

// findObjectSplitHQ is findObjectSplit specialized to read through an
// explicit triIdx buffer (BuildHQ double-buffers triIdx across partitions,
// so it cannot reuse b.TriIdx directly mid-build).
func (b *BVH) findObjectSplitHQ(node *Node, triIdx []uint32, minDim vmath.Vec3) (axis, pos int, cost float32, lMin, lMax, rMin, rMax vmath.Vec3) {
	var binMin, binMax [3][BVHBINS]vmath.Vec3
	var count [3][BVHBINS]int
	for a := 0; a < 3; a++ {
		for i := 0; i < BVHBINS; i++ {
			binMin[a][i] = vmath.Splat3(1e30)
			binMax[a][i] = vmath.Splat3(-1e30)
		}
	}

	extent := node.AabbMax.Sub(node.AabbMin)
	rpd := vmath.XYZ(safeBinScale(extent[0]), safeBinScale(extent[1]), safeBinScale(extent[2]))
	nmin := node.AabbMin

	for i := uint32(0); i < node.TriCount; i++ {
		fi := triIdx[node.LeftFirst+i]
		f := &b.Fragment[fi]
		centroid := f.BMin.Add(f.BMax).Mul(0.5)
		bx := vmath.ClampI(int((centroid[0]-nmin[0])*rpd[0]), 0, BVHBINS-1)
		by := vmath.ClampI(int((centroid[1]-nmin[1])*rpd[1]), 0, BVHBINS-1)
		bz := vmath.ClampI(int((centroid[2]-nmin[2])*rpd[2]), 0, BVHBINS-1)

		binMin[0][bx] = vmath.MinVec3(binMin[0][bx], f.BMin)
		binMax[0][bx] = vmath.MaxVec3(binMax[0][bx], f.BMax)
		count[0][bx]++
		binMin[1][by] = vmath.MinVec3(binMin[1][by], f.BMin)
		binMax[1][by] = vmath.MaxVec3(binMax[1][by], f.BMax)
		count[1][by]++
		binMin[2][bz] = vmath.MinVec3(binMin[2][bz], f.BMin)
		binMax[2][bz] = vmath.MaxVec3(binMax[2][bz], f.BMax)
		count[2][bz]++
	}

	cost = missT
	for a := 0; a < 3; a++ {
		if extent[a] <= minDim[a] {
			continue
		}
		var lBMin, rBMin, lBMax, rBMax [BVHBINS - 1]vmath.Vec3
		var anl, anr [BVHBINS - 1]float32
		l1, l2 := vmath.Splat3(1e30), vmath.Splat3(-1e30)
		r1, r2 := vmath.Splat3(1e30), vmath.Splat3(-1e30)
		lN, rN := 0, 0
		for i := 0; i < BVHBINS-1; i++ {
			l1 = vmath.MinVec3(l1, binMin[a][i])
			l2 = vmath.MaxVec3(l2, binMax[a][i])
			lBMin[i], lBMax[i] = l1, l2
			r1 = vmath.MinVec3(r1, binMin[a][BVHBINS-1-i])
			r2 = vmath.MaxVec3(r2, binMax[a][BVHBINS-1-i])
			rBMin[BVHBINS-2-i], rBMax[BVHBINS-2-i] = r1, r2

			lN += count[a][i]
			rN += count[a][BVHBINS-1-i]
			if lN == 0 {
				anl[i] = missT
			} else {
				anl[i] = l2.Sub(l1).HalfArea() * float32(lN)
			}
			if rN == 0 {
				anr[BVHBINS-2-i] = missT
			} else {
				anr[BVHBINS-2-i] = r2.Sub(r1).HalfArea() * float32(rN)
			}
		}
		for i := 0; i < BVHBINS-1; i++ {
			c := anl[i] + anr[i]
			if c < cost {
				cost, axis, pos = c, a, i
				lMin, lMax, rMin, rMax = lBMin[i], lBMax[i], rBMin[i], rBMax[i]
			}
		}
	}
	return
}

// findSpatialSplit evaluates spatial-split candidates on each axis whose
// extent clears minDim, clipping fragments into whichever bins they
// straddle. It reports ok=false if no candidate improves on currentCost.
func (b *BVH) findSpatialSplit(node *Node, triIdx []uint32, minDim vmath.Vec3, budget uint32, currentCost float32) (axis, pos int, cost float32, lMin, lMax, rMin, rMax vmath.Vec3, ok bool) {
	cost = currentCost
	for a := 0; a < 3; a++ {
		if node.AabbMax[a]-node.AabbMin[a] <= minDim[a] {
			continue
		}
		var binMin, binMax [BVHBINS]vmath.Vec3
		for i := 0; i < BVHBINS; i++ {
			binMin[i] = vmath.Splat3(1e30)
			binMax[i] = vmath.Splat3(-1e30)
		}
		var countIn, countOut [BVHBINS]uint32

		planeDist := (node.AabbMax[a] - node.AabbMin[a]) / (float32(BVHBINS) * 0.9999)
		rPlaneDist := 1.0 / planeDist
		nodeMin := node.AabbMin[a]

		for i := uint32(0); i < node.TriCount; i++ {
			fragIdx := triIdx[node.LeftFirst+i]
			f := &b.Fragment[fragIdx]
			bin1 := vmath.ClampI(int((f.BMin[a]-nodeMin)*rPlaneDist), 0, BVHBINS-1)
			bin2 := vmath.ClampI(int((f.BMax[a]-nodeMin)*rPlaneDist), 0, BVHBINS-1)
			countIn[bin1]++
			countOut[bin2]++
			if bin2 == bin1 {
				binMin[bin1] = vmath.MinVec3(binMin[bin1], f.BMin)
				binMax[bin1] = vmath.MaxVec3(binMax[bin1], f.BMax)
				continue
			}
			for j := bin1; j <= bin2; j++ {
				bmin, bmax := node.AabbMin, node.AabbMax
				bmin[a] = nodeMin + planeDist*float32(j)
				if j == BVHBINS-2 {
					bmax[a] = node.AabbMax[a]
				} else {
					bmax[a] = bmin[a] + planeDist
				}
				var tmpFrag Fragment
				if !clipFrag(b.Verts, *f, &tmpFrag, bmin, bmax, minDim) {
					continue
				}
				binMin[j] = vmath.MinVec3(binMin[j], tmpFrag.BMin)
				binMax[j] = vmath.MaxVec3(binMax[j], tmpFrag.BMax)
			}
		}

		var lBMin, rBMin, lBMax, rBMax [BVHBINS - 1]vmath.Vec3
		var anl, anr [BVHBINS]float32
		var nl, nr [BVHBINS - 1]uint32
		l1, l2 := vmath.Splat3(1e30), vmath.Splat3(-1e30)
		r1, r2 := vmath.Splat3(1e30), vmath.Splat3(-1e30)
		lN, rN := uint32(0), uint32(0)
		for i := 0; i < BVHBINS-1; i++ {
			l1 = vmath.MinVec3(l1, binMin[i])
			r1 = vmath.MinVec3(r1, binMin[BVHBINS-1-i])
			l2 = vmath.MaxVec3(l2, binMax[i])
			r2 = vmath.MaxVec3(r2, binMax[BVHBINS-1-i])
			lBMin[i], rBMin[BVHBINS-2-i] = l1, r1
			lBMax[i], rBMax[BVHBINS-2-i] = l2, r2
			lN += countIn[i]
			rN += countOut[BVHBINS-1-i]
			nl[i], nr[BVHBINS-2-i] = lN, rN
			if lN == 0 {
				anl[i] = missT
			} else {
				anl[i] = l2.Sub(l1).HalfArea() * float32(lN)
			}
			if rN == 0 {
				anr[BVHBINS-2-i] = missT
			} else {
				anr[BVHBINS-2-i] = r2.Sub(r1).HalfArea() * float32(rN)
			}
		}
		for i := 0; i < BVHBINS-1; i++ {
			c := anl[i] + anr[i]
			if c < cost && nl[i]+nr[i] < budget {
				ok = true
				cost, axis, pos = c, a, i
				lMin, lMax, rMin, rMax = lBMin[i], lBMax[i], rBMin[i], rBMax[i]
			}
		}
	}
	return
}

// clipFrag clips orig's originating triangle against the box
// [bmin,bmax] ∩ orig's own box, using Sutherland-Hodgman against the six
// bounding planes in turn. It reports false if the clip box and orig's box
// do not overlap, or if the clip produces an empty polygon.
func clipFrag(verts []vmath.Vec4, orig Fragment, newFrag *Fragment, bmin, bmax, minDim vmath.Vec3) bool {
	bmin = vmath.MaxVec3(bmin, orig.BMin)
	bmax = vmath.MinVec3(bmax, orig.BMax)
	extent := bmax.Sub(bmin)
	if extent[0] < 0 || extent[1] < 0 || extent[2] < 0 {
		return false // the clip box misses orig's box: nothing is left to clip
	}

	vidx := orig.PrimIdx * 3
	var vin, vout [10]vmath.Vec3
	vin[0], vin[1], vin[2] = verts[vidx].Vec3(), verts[vidx+1].Vec3(), verts[vidx+2].Vec3()
	nIn := 3

	for a := 0; a < 3; a++ {
		eps := minDim[a]
		if extent[a] <= eps {
			continue
		}
		l, r := bmin[a], bmax[a]

		nOut := 0
		for v := 0; v < nIn; v++ {
			v0, v1 := vin[v], vin[(v+1)%nIn]
			v0in, v1in := v0[a] >= l-eps, v1[a] >= l-eps
			if !v0in && !v1in {
				continue
			}
			if v0in != v1in {
				c := v0.Add(v1.Sub(v0).Mul((l - v0[a]) / (v1[a] - v0[a])))
				c[a] = l
				vout[nOut] = c
				nOut++
			}
			if v1in {
				vout[nOut] = v1
				nOut++
			}
		}

		nIn = 0
		for v := 0; v < nOut; v++ {
			v0, v1 := vout[v], vout[(v+1)%nOut]
			v0in, v1in := v0[a] <= r+eps, v1[a] <= r+eps
			if !v0in && !v1in {
				continue
			}
			if v0in != v1in {
				c := v0.Add(v1.Sub(v0).Mul((r - v0[a]) / (v1[a] - v0[a])))
				c[a] = r
				vin[nIn] = c
				nIn++
			}
			if v1in {
				vin[nIn] = v1
				nIn++
			}
		}
	}

	mn, mx := vmath.Splat3(1e30), vmath.Splat3(-1e30)
	for i := 0; i < nIn; i++ {
		mn = vmath.MinVec3(mn, vin[i])
		mx = vmath.MaxVec3(mx, vin[i])
	}
	newFrag.PrimIdx = orig.PrimIdx
	newFrag.BMin = vmath.MaxVec3(mn, bmin)
	newFrag.BMax = vmath.MinVec3(mx, bmax)
	newFrag.Clipped = 1
	return nIn > 0
}
