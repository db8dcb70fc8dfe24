package bvh

import "github.com/wbrbr/tinybvh/vmath"

// Refit recomputes every node's AABB bottom-up from the current vertex
// positions, without touching topology. It is the cheap path for animated
// meshes whose connectivity doesn't change frame to frame; repeated
// refitting degrades tree quality over time, so rebuild periodically.
// Refit panics if the tree was built with BuildHQ: spatial splits leave
// fragments whose bounds don't correspond 1:1 with a single triangle's
// current position, so a bottom-up refit can't recover a valid tree.
func (b *BVH) Refit() {
	if !b.Refittable {
		panicPrecondition("Refit", "tree was built with spatial splits (BuildHQ) and cannot be refit")
	}
	for i := int(b.usedBVHNodes) - 1; i >= 0; i-- {
		node := &b.BVHNode[i]
		if node.IsLeaf() {
			aabbMin, aabbMax := vmath.Splat3(1e30), vmath.Splat3(-1e30)
			for j := uint32(0); j < node.TriCount; j++ {
				vertIdx := b.TriIdx[node.LeftFirst+j] * 3
				for k := uint32(0); k < 3; k++ {
					v := b.Verts[vertIdx+k].Vec3()
					aabbMin = vmath.MinVec3(aabbMin, v)
					aabbMax = vmath.MaxVec3(aabbMax, v)
				}
			}
			node.AabbMin, node.AabbMax = aabbMin, aabbMax
			continue
		}
		left := &b.BVHNode[node.LeftFirst]
		right := &b.BVHNode[node.LeftFirst+1]
		node.AabbMin = vmath.MinVec3(left.AabbMin, right.AabbMin)
		node.AabbMax = vmath.MaxVec3(left.AabbMax, right.AabbMax)
	}
}
