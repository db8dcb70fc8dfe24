package bvh

import (
	"time"

	"github.com/wbrbr/tinybvh/log"
	"github.com/wbrbr/tinybvh/vmath"
)

var buildLogger = log.New("bvh")

// Build constructs a binned-SAH BVH over primCount triangles read from
// verts (3 consecutive vmath.Vec4 per triangle; the w lane is ignored on
// input). verts is borrowed for the lifetime of the tree: the BVH neither
// copies nor frees it. primCount must be >= 1 and len(verts) >= 3*primCount.
//
// This is the reference builder: no SIMD, single-threaded. It yields a
// tree whose leaves partition [0, primCount) of TriIdx and whose node
// AABBs tightly bound the triangles they cover.
func (b *BVH) Build(verts []vmath.Vec4, primCount uint32) {
	if !b.Rebuildable {
		panicPrecondition("Build", "tree has been converted to an alternate layout; rebuild requires a fresh BVH")
	}
	start := time.Now()

	spaceNeeded := primCount * 2 // upper limit: a full binary tree over primCount leaves
	b.ensureNodeCapacity(spaceNeeded)
	b.TriIdx = ensureU32Capacity(b.TriIdx, primCount)
	b.Fragment = ensureFragCapacity(b.Fragment, primCount)

	b.Verts = verts
	b.TriCount = primCount
	b.IdxCount = primCount

	newNodePtr := uint32(2)
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
		b.TriIdx[i] = i
	}

	minDim := root.AabbMax.Sub(root.AabbMin).Mul(sahMinDimSAH)

	var task [256]uint32
	taskCount := 0
	nodeIdx := uint32(0)

	for {
		for {
			node := &b.BVHNode[nodeIdx]
			bestAxis, bestPos, splitCost, bestLMin, bestLMax, bestRMin, bestRMax := b.findObjectSplit(node, minDim)

			if splitCost >= node.NodeCost() {
				break // not splitting is better
			}

			leftCount := b.partitionInPlace(node, bestAxis, bestPos)
			rightCount := node.TriCount - leftCount
			if leftCount == 0 || rightCount == 0 {
				break // should not happen; guards against a degenerate split
			}

			lci, rci := newNodePtr, newNodePtr+1
			newNodePtr += 2
			b.BVHNode[lci] = Node{AabbMin: bestLMin, AabbMax: bestLMax, LeftFirst: node.LeftFirst, TriCount: leftCount}
			b.BVHNode[rci] = Node{AabbMin: bestRMin, AabbMax: bestRMax, LeftFirst: node.LeftFirst + leftCount, TriCount: rightCount}
			node.LeftFirst, node.TriCount = lci, 0

			task[taskCount] = rci
			taskCount++
			nodeIdx = lci
		}
		if taskCount == 0 {
			break
		}
		taskCount--
		nodeIdx = task[taskCount]
	}
	b.usedBVHNodes = newNodePtr
	b.Refittable = true
	b.buildDuration = time.Since(start)

	buildLogger.Debugf("Build: %d tris, %d nodes, %s", primCount, newNodePtr, b.buildDuration)
}

// findObjectSplit evaluates BVHBINS-1 candidate split positions on each of
// the three axes (skipping axes whose extent is below minDim) and returns
// the best one found, via per-bin AABB accumulation and a left/right prefix
// sweep. The cost returned is unweighted half-area*count; the leaf-cost
// constant it is compared against uses the same metric, so it cancels.
func (b *BVH) findObjectSplit(node *Node, minDim vmath.Vec3) (axis int, pos int, cost float32, lMin, lMax, rMin, rMax vmath.Vec3) {
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
		fi := b.TriIdx[node.LeftFirst+i]
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

// partitionInPlace swaps node's TriIdx range so that fragments binning at
// or below bestPos on bestAxis come first; it returns the resulting left
// count.
func (b *BVH) partitionInPlace(node *Node, bestAxis, bestPos int) uint32 {
	extent := node.AabbMax.Sub(node.AabbMin)
	rpd := safeBinScale(extent[bestAxis])
	nmin := node.AabbMin[bestAxis]

	j := node.LeftFirst + node.TriCount
	src := node.LeftFirst
	for i := uint32(0); i < node.TriCount; i++ {
		fi := b.TriIdx[src]
		f := &b.Fragment[fi]
		centroid := (f.BMin[bestAxis] + f.BMax[bestAxis]) * 0.5
		bin := vmath.ClampI(int((centroid-nmin)*rpd), 0, BVHBINS-1)
		if bin <= bestPos {
			src++
		} else {
			j--
			b.TriIdx[src], b.TriIdx[j] = b.TriIdx[j], b.TriIdx[src]
		}
	}
	return src - node.LeftFirst
}

func safeBinScale(extent float32) float32 {
	if extent <= 0 {
		return 0
	}
	return float32(BVHBINS) / extent
}

func (b *BVH) ensureNodeCapacity(spaceNeeded uint32) {
	if uint32(cap(b.BVHNode)) < spaceNeeded {
		b.BVHNode = make([]Node, spaceNeeded)
	} else {
		b.BVHNode = b.BVHNode[:spaceNeeded]
	}
	// node 1 remains unused, for cache line alignment with node 0.
	b.BVHNode[1] = Node{}
}

func ensureU32Capacity(s []uint32, n uint32) []uint32 {
	if uint32(cap(s)) < n {
		return make([]uint32, n)
	}
	return s[:n]
}

func ensureFragCapacity(s []Fragment, n uint32) []Fragment {
	if uint32(cap(s)) < n {
		return make([]Fragment, n)
	}
	return s[:n]
}
