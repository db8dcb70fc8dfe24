package bvh

import "github.com/wbrbr/tinybvh/vmath"

// Convert rewrites the tree built by Build/BuildHQ (always in the
// canonical Wald32 layout) into one of the alternate node layouts, or
// converts a Verbose tree produced by the optimizer back to Wald32.
//
// Only the edges below are defined; any other (from, to) pair is a
// programmer error and panics. A successful conversion clears
// Rebuildable: a tree that has changed layout cannot be safely rebuilt
// in place, since the alternate layouts alias or discard information
// Build/BuildHQ depend on.
func (b *BVH) Convert(from, to Layout, deleteOriginal bool) {
	switch {
	case from == Wald32 && to == AilaLaine:
		b.convertWald32ToAilaLaine()
	case from == Wald32 && to == AltSoA:
		b.convertWald32ToAltSoA()
	case from == Wald32 && to == Verbose:
		b.convertWald32ToVerbose()
	case from == Wald32 && to == BasicBVH4:
		b.convertWald32ToBVH4()
	case from == BasicBVH4 && to == BVH4GPU:
		b.convertBVH4ToGPU()
	case from == Wald32 && to == BasicBVH8:
		b.convertWald32ToBVH8()
	case from == Verbose && to == Wald32:
		b.convertVerboseToWald32()
	default:
		panicPrecondition("Convert", "unsupported layout conversion "+from.String()+" -> "+to.String())
	}
	if deleteOriginal {
		b.discardLayout(from)
	}
	b.Rebuildable = false
}

func (b *BVH) discardLayout(l Layout) {
	switch l {
	case Wald32:
		b.BVHNode = nil
		b.usedBVHNodes = 0
	case AilaLaine:
		b.altNode = nil
		b.usedAltNodes = 0
	case AltSoA:
		b.alt2Node = nil
		b.usedAlt2Nodes = 0
	case Verbose:
		b.verbose = nil
		b.usedVerbose = 0
	case BasicBVH4:
		b.bvh4Node = nil
		b.usedBVH4Nodes = 0
	case BasicBVH8:
		b.bvh8Node = nil
		b.usedBVH8Nodes = 0
	}
}

// convStackEntry mirrors the two-value stack the tiny_bvh conversions push
// (a child index to resume at plus a slot to patch with the freshly
// allocated node index), shared by the Wald32 -> {AilaLaine, AltSoA}
// conversions.
type convStackEntry struct {
	parentIdx, srcSibling uint32
}

func (b *BVH) convertWald32ToAilaLaine() {
	spaceNeeded := b.usedBVHNodes
	if uint32(cap(b.altNode)) < spaceNeeded {
		b.altNode = make([]NodeAlt, spaceNeeded)
	} else {
		b.altNode = b.altNode[:spaceNeeded]
		for i := range b.altNode {
			b.altNode[i] = NodeAlt{}
		}
	}

	newAltNode, nodeIdx := uint32(0), uint32(0)
	var stack []convStackEntry
	for {
		node := &b.BVHNode[nodeIdx]
		idx := newAltNode
		newAltNode++
		if node.IsLeaf() {
			b.altNode[idx].TriCount = node.TriCount
			b.altNode[idx].FirstTri = node.LeftFirst
			if len(stack) == 0 {
				break
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			nodeIdx = top.srcSibling
			b.altNode[top.parentIdx].Right = newAltNode
		} else {
			left := &b.BVHNode[node.LeftFirst]
			right := &b.BVHNode[node.LeftFirst+1]
			b.altNode[idx].LMin, b.altNode[idx].RMin = left.AabbMin, right.AabbMin
			b.altNode[idx].LMax, b.altNode[idx].RMax = left.AabbMax, right.AabbMax
			b.altNode[idx].Left = newAltNode
			stack = append(stack, convStackEntry{parentIdx: idx, srcSibling: node.LeftFirst + 1})
			nodeIdx = node.LeftFirst
		}
	}
	b.usedAltNodes = newAltNode
}

func (b *BVH) convertWald32ToAltSoA() {
	spaceNeeded := b.usedBVHNodes
	if uint32(cap(b.alt2Node)) < spaceNeeded {
		b.alt2Node = make([]NodeAlt2, spaceNeeded)
	} else {
		b.alt2Node = b.alt2Node[:spaceNeeded]
		for i := range b.alt2Node {
			b.alt2Node[i] = NodeAlt2{}
		}
	}

	newAlt2Node, nodeIdx := uint32(0), uint32(0)
	var stack []convStackEntry
	for {
		node := &b.BVHNode[nodeIdx]
		idx := newAlt2Node
		newAlt2Node++
		if node.IsLeaf() {
			b.alt2Node[idx].TriCount = node.TriCount
			b.alt2Node[idx].FirstTri = node.LeftFirst
			if len(stack) == 0 {
				break
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			nodeIdx = top.srcSibling
			b.alt2Node[top.parentIdx].Right = newAlt2Node
		} else {
			left := &b.BVHNode[node.LeftFirst]
			right := &b.BVHNode[node.LeftFirst+1]
			b.alt2Node[idx].Xxxx = [4]float32{left.AabbMin[0], left.AabbMax[0], right.AabbMin[0], right.AabbMax[0]}
			b.alt2Node[idx].Yyyy = [4]float32{left.AabbMin[1], left.AabbMax[1], right.AabbMin[1], right.AabbMax[1]}
			b.alt2Node[idx].Zzzz = [4]float32{left.AabbMin[2], left.AabbMax[2], right.AabbMin[2], right.AabbMax[2]}
			b.alt2Node[idx].Left = newAlt2Node
			stack = append(stack, convStackEntry{parentIdx: idx, srcSibling: node.LeftFirst + 1})
			nodeIdx = node.LeftFirst
		}
	}
	b.usedAlt2Nodes = newAlt2Node
}

func (b *BVH) convertWald32ToVerbose() {
	spaceNeeded := b.usedBVHNodes
	if uint32(cap(b.verbose)) < spaceNeeded {
		b.verbose = make([]NodeVerbose, spaceNeeded)
	} else {
		b.verbose = b.verbose[:spaceNeeded]
		for i := range b.verbose {
			b.verbose[i] = NodeVerbose{}
		}
	}

	nodeIdx, parent := uint32(0), verboseRootSentinel
	type entry struct{ nodeIdx, parent uint32 }
	var stack []entry
	for {
		node := &b.BVHNode[nodeIdx]
		dst := &b.verbose[nodeIdx]
		dst.AabbMin, dst.AabbMax = node.AabbMin, node.AabbMax
		dst.TriCount, dst.Parent = node.TriCount, parent
		if node.IsLeaf() {
			dst.FirstTri = node.LeftFirst
			if len(stack) == 0 {
				break
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			nodeIdx, parent = top.nodeIdx, top.parent
		} else {
			dst.Left = node.LeftFirst
			dst.Right = node.LeftFirst + 1
			stack = append(stack, entry{nodeIdx: node.LeftFirst + 1, parent: nodeIdx})
			parent = nodeIdx
			nodeIdx = node.LeftFirst
		}
	}
	// siblings reference each other once both are known.
	for i := uint32(0); i < spaceNeeded; i++ {
		n := &b.verbose[i]
		if n.Parent == verboseRootSentinel {
			continue
		}
		p := &b.verbose[n.Parent]
		if p.Left == i {
			n.Sibling = p.Right
		} else {
			n.Sibling = p.Left
		}
	}
	b.usedVerbose = spaceNeeded
}

func (b *BVH) convertWald32ToBVH4() {
	spaceNeeded := b.usedBVHNodes
	if uint32(cap(b.bvh4Node)) < spaceNeeded {
		b.bvh4Node = make([]Node4, spaceNeeded)
	} else {
		b.bvh4Node = b.bvh4Node[:spaceNeeded]
		for i := range b.bvh4Node {
			b.bvh4Node[i] = Node4{}
		}
	}

	for i := uint32(0); i < b.usedBVHNodes; i++ {
		if i == 1 {
			continue // padding slot, never used
		}
		orig := &b.BVHNode[i]
		n4 := &b.bvh4Node[i]
		n4.AabbMin, n4.AabbMax = orig.AabbMin, orig.AabbMax
		if orig.IsLeaf() {
			n4.TriCount, n4.FirstTri = orig.TriCount, orig.LeftFirst
		} else {
			n4.Child[0], n4.Child[1], n4.ChildCount = orig.LeftFirst, orig.LeftFirst+1, 2
		}
	}

	stack := []uint32{0}
	for len(stack) > 0 {
		nodeIdx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &b.bvh4Node[nodeIdx]
		for node.ChildCount < 4 {
			bestChild := -1
			bestChildSA := float32(0)
			for i := uint32(0); i < node.ChildCount; i++ {
				child := &b.bvh4Node[node.Child[i]]
				if !child.IsLeaf() && node.ChildCount-1+child.ChildCount <= 4 {
					childSA := sa(child.AabbMin, child.AabbMax)
					if childSA > bestChildSA {
						bestChild, bestChildSA = int(i), childSA
					}
				}
			}
			if bestChild == -1 {
				break
			}
			child := &b.bvh4Node[node.Child[bestChild]]
			node.Child[bestChild] = child.Child[0]
			for i := uint32(1); i < child.ChildCount; i++ {
				node.Child[node.ChildCount] = child.Child[i]
				node.ChildCount++
			}
		}
		for i := uint32(0); i < node.ChildCount; i++ {
			childIdx := node.Child[i]
			if !b.bvh4Node[childIdx].IsLeaf() {
				stack = append(stack, childIdx)
			}
		}
	}
	b.usedBVH4Nodes = b.usedBVHNodes // gaps remain at dead node slots
}

func (b *BVH) convertWald32ToBVH8() {
	spaceNeeded := b.usedBVHNodes
	if uint32(cap(b.bvh8Node)) < spaceNeeded {
		b.bvh8Node = make([]Node8, spaceNeeded)
	} else {
		b.bvh8Node = b.bvh8Node[:spaceNeeded]
		for i := range b.bvh8Node {
			b.bvh8Node[i] = Node8{}
		}
	}

	for i := uint32(0); i < b.usedBVHNodes; i++ {
		if i == 1 {
			continue
		}
		orig := &b.BVHNode[i]
		n8 := &b.bvh8Node[i]
		n8.AabbMin, n8.AabbMax = orig.AabbMin, orig.AabbMax
		if orig.IsLeaf() {
			n8.TriCount, n8.FirstTri = orig.TriCount, orig.LeftFirst
		} else {
			n8.Child[0], n8.Child[1], n8.ChildCount = orig.LeftFirst, orig.LeftFirst+1, 2
		}
	}

	stack := []uint32{0}
	for len(stack) > 0 {
		nodeIdx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := &b.bvh8Node[nodeIdx]
		for node.ChildCount < 8 {
			bestChild := -1
			bestChildSA := float32(0)
			for i := uint32(0); i < node.ChildCount; i++ {
				child := &b.bvh8Node[node.Child[i]]
				if !child.IsLeaf() && node.ChildCount-1+child.ChildCount <= 8 {
					childSA := sa(child.AabbMin, child.AabbMax)
					if childSA > bestChildSA {
						bestChild, bestChildSA = int(i), childSA
					}
				}
			}
			if bestChild == -1 {
				break
			}
			child := &b.bvh8Node[node.Child[bestChild]]
			node.Child[bestChild] = child.Child[0]
			for i := uint32(1); i < child.ChildCount; i++ {
				node.Child[node.ChildCount] = child.Child[i]
				node.ChildCount++
			}
		}
		for i := uint32(0); i < node.ChildCount; i++ {
			childIdx := node.Child[i]
			if !b.bvh8Node[childIdx].IsLeaf() {
				stack = append(stack, childIdx)
			}
		}
	}
	b.usedBVH8Nodes = b.usedBVHNodes
}

func (b *BVH) convertVerboseToWald32() {
	spaceNeeded := b.usedVerbose
	needed := b.TriCount * 2
	if uint32(cap(b.BVHNode)) < needed {
		b.BVHNode = make([]Node, needed)
	} else {
		b.BVHNode = b.BVHNode[:spaceNeeded]
		for i := range b.BVHNode {
			b.BVHNode[i] = Node{}
		}
	}

	type entry struct{ src, dst uint32 }
	srcIdx, dstIdx := uint32(0), uint32(0)
	newNodePtr := uint32(2)
	var stack []entry
	for {
		src := &b.verbose[srcIdx]
		dst := &b.BVHNode[dstIdx]
		dst.AabbMin, dst.AabbMax = src.AabbMin, src.AabbMax
		if src.IsLeaf() {
			dst.TriCount, dst.LeftFirst = src.TriCount, src.FirstTri
			if len(stack) == 0 {
				break
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			srcIdx, dstIdx = top.src, top.dst
		} else {
			dst.LeftFirst = newNodePtr
			srcRight := src.Right
			srcIdx, dstIdx = src.Left, newNodePtr
			newNodePtr++
			stack = append(stack, entry{src: srcRight, dst: newNodePtr})
			newNodePtr++
		}
	}
	b.usedBVHNodes = b.usedVerbose
}

// convertBVH4ToGPU packs a collapsed 4-wide tree (with gaps) into a
// contiguous quantized blob, inlining leaf triangle data so the whole
// tree is relocatable without pointer fixup.
func (b *BVH) convertBVH4ToGPU() {
	blocksNeeded := b.usedBVHNodes*4 + 6*b.TriCount
	if uint32(cap(b.bvh4Alt.Data)) < blocksNeeded {
		b.bvh4Alt.Data = make([]vmath.Vec4, blocksNeeded)
	} else {
		b.bvh4Alt.Data = b.bvh4Alt.Data[:blocksNeeded]
		for i := range b.bvh4Alt.Data {
			b.bvh4Alt.Data[i] = vmath.Vec4{}
		}
	}
	blob := b.bvh4Alt.Data

	type pending struct {
		patchVecIdx uint32 // blob index of the childInfo vec4 to patch
		patchLane   int    // which of its 4 lanes holds this child's info
		nodeIdx     uint32
	}
	nodeIdx := uint32(0)
	newAlt4Ptr := uint32(0)
	hasRetVal := false
	var retVecIdx uint32
	var retLane int
	var stack []pending

	for {
		node := &b.bvh4Node[nodeIdx]
		baseAlt4Ptr := newAlt4Ptr
		newAlt4Ptr += 4
		blob[baseAlt4Ptr] = node.AabbMin.Vec4(0)
		blob[baseAlt4Ptr+1] = node.AabbMax.Sub(node.AabbMin).Mul(1.0 / 255.0).Vec4(0)

		var childInfo [4]uint32
		var childNode [4]*Node4
		for i := 0; i < 4; i++ {
			childNode[i] = &b.bvh4Node[node.Child[i]]
		}

		for i := 0; i < 4; i++ {
			if !childNode[i].IsLeaf() {
				continue
			}
			childInfo[i] = (newAlt4Ptr - baseAlt4Ptr) & childInfoOffsetMask
			childInfo[i] |= (childNode[i].TriCount & childInfoTriCountMask) << childInfoTriCountSh
			childInfo[i] |= childInfoLeafBit
			for j := uint32(0); j < childNode[i].TriCount; j++ {
				t := b.TriIdx[childNode[i].FirstTri+j]
				v0 := b.Verts[t*3].Vec3().Vec4(vmath.BitsToFloat(t))
				blob[newAlt4Ptr] = v0
				newAlt4Ptr++
				blob[newAlt4Ptr] = b.Verts[t*3+1]
				newAlt4Ptr++
				blob[newAlt4Ptr] = b.Verts[t*3+2]
				newAlt4Ptr++
			}
		}
		for i := 0; i < 4; i++ {
			if childNode[i].IsLeaf() {
				continue
			}
			if node.Child[i] == 0 {
				childInfo[i] = 0
				continue
			}
			stack = append(stack, pending{patchVecIdx: baseAlt4Ptr + 3, patchLane: i, nodeIdx: node.Child[i]})
		}

		extent := node.AabbMax.Sub(node.AabbMin)
		scale := vmath.XYZ(quantScale(extent[0]), quantScale(extent[1]), quantScale(extent[2]))
		var bmin8, bmax8 [4]byte // packed xmin/xmax lanes (slot0/slot1 w-lane bytes)
		var slot2 [16]byte       // packed y/z min/max for all 4 children
		for i := 0; i < 4; i++ {
			if node.Child[i] == 0 && i > 0 {
				continue
			}
			c := childNode[i]
			relMin := c.AabbMin.Sub(node.AabbMin)
			relMax := c.AabbMax.Sub(node.AabbMin)
			bmin8[i] = quantFloor(relMin[0] * scale[0])
			bmax8[i] = quantCeil(relMax[0] * scale[0])
			slot2[i] = quantFloor(relMin[1] * scale[1])
			slot2[4+i] = quantCeil(relMax[1] * scale[1])
			slot2[8+i] = quantFloor(relMin[2] * scale[2])
			slot2[12+i] = quantCeil(relMax[2] * scale[2])
		}
		blob[baseAlt4Ptr] = packQuantBytes(blob[baseAlt4Ptr], bmin8)
		blob[baseAlt4Ptr+1] = packQuantBytes(blob[baseAlt4Ptr+1], bmax8)
		blob[baseAlt4Ptr+2] = vmath.XYZW(
			vmath.BitsToFloat(packBytes4(slot2[0], slot2[1], slot2[2], slot2[3])),
			vmath.BitsToFloat(packBytes4(slot2[4], slot2[5], slot2[6], slot2[7])),
			vmath.BitsToFloat(packBytes4(slot2[8], slot2[9], slot2[10], slot2[11])),
			vmath.BitsToFloat(packBytes4(slot2[12], slot2[13], slot2[14], slot2[15])),
		)
		blob[baseAlt4Ptr+3] = vmath.XYZW(
			vmath.BitsToFloat(childInfo[0]), vmath.BitsToFloat(childInfo[1]),
			vmath.BitsToFloat(childInfo[2]), vmath.BitsToFloat(childInfo[3]),
		)

		if hasRetVal {
			blob[retVecIdx][retLane] = vmath.BitsToFloat(baseAlt4Ptr)
		}
		if len(stack) == 0 {
			break
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodeIdx = top.nodeIdx
		retVecIdx, retLane, hasRetVal = top.patchVecIdx, top.patchLane, true
	}
	b.usedAlt4Blocks = newAlt4Ptr
}

func quantScale(extent float32) float32 {
	if extent > 1e-10 {
		return 254.999 / extent
	}
	return 0
}

func quantFloor(v float32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

func quantCeil(v float32) byte {
	return quantFloor(v + 0.999999)
}

func packBytes4(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// packQuantBytes overwrites v's w lane with four quantized bytes packed
// into its bit pattern, matching the C reference's aliasing of a bvhvec4's
// trailing word with a byte array.
func packQuantBytes(v vmath.Vec4, bytes [4]byte) vmath.Vec4 {
	v[3] = vmath.BitsToFloat(packBytes4(bytes[0], bytes[1], bytes[2], bytes[3]))
	return v
}
