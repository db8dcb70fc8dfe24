package bvh

import "github.com/wbrbr/tinybvh/vmath"

// optTaskCap bounds FindBestNewPosition's branch-and-bound task queue;
// the reference uses the same fixed-size array rather than growing a
// slice, since the queue never holds more than a handful of live
// candidates at realistic tree depths.
const optTaskCap = 512

// Optimize applies one step of "Fast Insertion-Based Optimization of
// Bounding Volume Hierarchies": it snips a random, non-root-adjacent
// subtree loose and reinserts its two children wherever the branch-and-
// bound search finds the cheapest new parent. The tree must already be in
// Verbose layout (see Convert). Call repeatedly for a better tree; each
// call rewires only a handful of nodes, but its reinsertion search and the
// refits up to the root still grow with the tree.
func (b *BVH) Optimize() {
	if b.usedVerbose == 0 {
		panicPrecondition("Optimize", "tree must be converted to Verbose layout first")
	}

	var nid uint32
	for {
		b.optSeed ^= b.optSeed << 13
		b.optSeed ^= b.optSeed >> 17
		b.optSeed ^= b.optSeed << 5
		nid = 2 + b.optSeed%(b.usedVerbose-2)
		n := &b.verbose[nid]
		if n.Parent == 0 || n.IsLeaf() {
			continue
		}
		if b.verbose[n.Parent].Parent == 0 {
			continue
		}
		break
	}

	n := &b.verbose[nid]
	p := &b.verbose[n.Parent]
	pid := n.Parent
	x1 := p.Parent
	x2 := p.Left
	if p.Left == nid {
		x2 = p.Right
	}
	if b.verbose[x1].Left == pid {
		b.verbose[x1].Left = x2
	} else {
		b.verbose[x1].Right = x2
	}
	b.verbose[x2].Parent = x1

	l, r := n.Left, n.Right

	b.RefitUpVerbose(x1)
	b.reinsertNodeVerbose(l, pid, x1)
	b.reinsertNodeVerbose(r, nid, x1)
}

// RefitUpVerbose recomputes the AABBs of nodeIdx and every ancestor up to
// the root, stopping at the Verbose root sentinel.
func (b *BVH) RefitUpVerbose(nodeIdx uint32) {
	for nodeIdx != verboseRootSentinel {
		node := &b.verbose[nodeIdx]
		left := &b.verbose[node.Left]
		right := &b.verbose[node.Right]
		node.AabbMin = vmath.MinVec3(left.AabbMin, right.AabbMin)
		node.AabbMax = vmath.MaxVec3(left.AabbMax, right.AabbMax)
		nodeIdx = node.Parent
	}
}

// FindBestNewPosition searches the Verbose tree for the cheapest node to
// become Lid's new sibling, using the branch-and-bound priority search
// from "Fast Insertion-Based Optimization of Bounding Volume Hierarchies":
// explore the candidate with the highest 1/Ci first, and prune any branch
// whose induced cost already exceeds the best found.
func (b *BVH) FindBestNewPosition(lid uint32) uint32 {
	l := &b.verbose[lid]
	saL := sa(l.AabbMin, l.AabbMax)

	const epsilon = 1e-10
	var taskNode [optTaskCap]uint32
	var taskCi, taskInvCi [optTaskCap]float32
	tasks := 1
	taskNode[0], taskCi[0], taskInvCi[0] = 0, 0, 1/epsilon

	cBest := missT
	xBest := uint32(0)

	for tasks > 0 {
		maxInvCi := float32(0)
		bestTask := 0
		for j := 0; j < tasks; j++ {
			if taskInvCi[j] > maxInvCi {
				maxInvCi = taskInvCi[j]
				bestTask = j
			}
		}
		xid := taskNode[bestTask]
		ciLX := taskCi[bestTask]
		tasks--
		taskNode[bestTask] = taskNode[tasks]
		taskCi[bestTask] = taskCi[tasks]
		taskInvCi[bestTask] = taskInvCi[tasks]

		x := &b.verbose[xid]
		if ciLX+saL >= cBest {
			break
		}
		cdLX := sa(vmath.MinVec3(l.AabbMin, x.AabbMin), vmath.MaxVec3(l.AabbMax, x.AabbMax))
		cLX := ciLX + cdLX
		if cLX < cBest {
			cBest, xBest = cLX, xid
		}
		ci := cLX - sa(x.AabbMin, x.AabbMax)
		if ci+saL < cBest && !x.IsLeaf() {
			taskNode[tasks], taskCi[tasks], taskInvCi[tasks] = x.Left, ci, 1/(ci+epsilon)
			tasks++
			taskNode[tasks], taskCi[tasks], taskInvCi[tasks] = x.Right, ci, 1/(ci+epsilon)
			tasks++
		}
	}
	return xBest
}

// reinsertNodeVerbose finds the best new position for Lid and grafts it
// back in under a fresh internal node reusing slot Nid, falling back to
// origin if the best position found is the root or a child of the root.
func (b *BVH) reinsertNodeVerbose(lid, nid, origin uint32) {
	xBest := b.FindBestNewPosition(lid)
	if xBest == 0 || b.verbose[xBest].Parent == 0 {
		xBest = origin
	}
	x1 := b.verbose[xBest].Parent

	n := &b.verbose[nid]
	n.Left, n.Right = xBest, lid
	n.AabbMin = vmath.MinVec3(b.verbose[xBest].AabbMin, b.verbose[lid].AabbMin)
	n.AabbMax = vmath.MaxVec3(b.verbose[xBest].AabbMax, b.verbose[lid].AabbMax)
	n.Parent = x1

	if b.verbose[x1].Left == xBest {
		b.verbose[x1].Left = nid
	} else {
		b.verbose[x1].Right = nid
	}
	b.verbose[xBest].Parent = nid
	b.verbose[lid].Parent = nid

	b.RefitUpVerbose(nid)
}
