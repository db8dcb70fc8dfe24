package bvh

// SAHCost computes the surface-area-heuristic cost of the subtree rooted
// at nodeIdx (0 for the whole tree), normalized by the root's surface
// area. Lower is better; it is the metric the builders themselves
// minimize, so it is the natural way to compare trees built over the same
// geometry by different builders or after optimization passes.
func (b *BVH) SAHCost(nodeIdx uint32) float32 {
	n := &b.BVHNode[nodeIdx]
	if n.IsLeaf() {
		return n.SurfaceArea() * float32(n.TriCount)
	}
	cost := 3.0*n.SurfaceArea() + b.SAHCost(n.LeftFirst) + b.SAHCost(n.LeftFirst+1)
	if nodeIdx == 0 {
		return cost / n.SurfaceArea()
	}
	return cost
}

// NodeCount counts the nodes in the subtree rooted at nodeIdx (0 for the
// whole tree). For a freshly built tree this is usedBVHNodes-1 (node 1 is
// always unused padding). Converting to BasicBVH4/BasicBVH8 does not change
// it: the collapse works on separate node pools, and NodeCount only walks
// the Wald32 layout.
func (b *BVH) NodeCount(nodeIdx uint32) int {
	n := &b.BVHNode[nodeIdx]
	count := 1
	if !n.IsLeaf() {
		count += b.NodeCount(n.LeftFirst) + b.NodeCount(n.LeftFirst+1)
	}
	return count
}
