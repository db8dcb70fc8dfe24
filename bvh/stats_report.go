package bvh

import "time"

// Stats is a snapshot of a built tree's shape and cost, intended for
// logging and the CLI's summary table; it carries no behavior of its own.
type Stats struct {
	NodeCount     int
	LeafCount     int
	MaxDepth      int
	SAHCost       float32
	BuildDuration time.Duration
}

// Stats summarizes the Wald32 tree rooted at node 0.
func (b *BVH) Stats() Stats {
	nodeCount, leafCount, maxDepth := b.walkStats(0, 0)
	return Stats{
		NodeCount:     nodeCount,
		LeafCount:     leafCount,
		MaxDepth:      maxDepth,
		SAHCost:       b.SAHCost(0),
		BuildDuration: b.buildDuration,
	}
}

func (b *BVH) walkStats(nodeIdx uint32, depth int) (nodeCount, leafCount, maxDepth int) {
	n := &b.BVHNode[nodeIdx]
	if n.IsLeaf() {
		return 1, 1, depth
	}
	lNodes, lLeaves, lDepth := b.walkStats(n.LeftFirst, depth+1)
	rNodes, rLeaves, rDepth := b.walkStats(n.LeftFirst+1, depth+1)
	maxD := lDepth
	if rDepth > maxD {
		maxD = rDepth
	}
	return 1 + lNodes + rNodes, lLeaves + rLeaves, maxD
}
