// Package bvh builds and traverses Bounding Volume Hierarchies over
// triangle meshes for ray tracing. It provides a binned-SAH builder, a
// spatial-split (SBVH) builder, a set of alternative node layouts for
// different traversal strategies, and the traversal kernels, optimizer and
// refit pass that operate on them.
//
// The package is a header-library-style port: a single BVH value owns all
// of its buffers, builds are single-threaded and synchronous, and no
// operation here spawns goroutines or performs I/O. Callers that want
// parallelism build it at the ray-batch or scene-graph level.
package bvh

import (
	"time"

	"github.com/wbrbr/tinybvh/vmath"
)

// BVHBINS is the number of bins the SAH builder evaluates split candidates
// across, for every axis. This constant is baked into the binned split
// evaluator's prefix sweeps; changing it requires rederiving those sweeps.
const BVHBINS = 8

// Sentinel values shared by the slab test and Möller-Trumbore kernels.
const (
	missT        float32 = 1e30
	parallelEps  float32 = 1e-7
	sahMinDimSAH float32 = 1e-20 // minimum axis extent fraction considered by the binned SAH builder
	sahMinDimHQ  float32 = 1e-7  // minimum axis extent fraction considered by the SBVH builder
)

// Layout identifies one of the node representations a BVH can be converted
// to and traversed in.
type Layout int

const (
	Wald32 Layout = iota + 1
	AilaLaine
	AltSoA
	Verbose
	BasicBVH4
	BVH4GPU
	BasicBVH8
)

func (l Layout) String() string {
	switch l {
	case Wald32:
		return "Wald32"
	case AilaLaine:
		return "AilaLaine"
	case AltSoA:
		return "AltSoA"
	case Verbose:
		return "Verbose"
	case BasicBVH4:
		return "BasicBVH4"
	case BVH4GPU:
		return "BVH4GPU"
	case BasicBVH8:
		return "BasicBVH8"
	default:
		return "Unknown"
	}
}

// Node is the canonical 32-byte BVH node, as proposed by Ingo Wald. Root is
// always node 0; node 1 is reserved padding so that two nodes share a cache
// line boundary.
type Node struct {
	AabbMin   vmath.Vec3
	LeftFirst uint32
	AabbMax   vmath.Vec3
	TriCount  uint32
}

// IsLeaf reports whether n is a leaf. Empty leaves do not exist: a leaf
// always has TriCount >= 1.
func (n *Node) IsLeaf() bool { return n.TriCount > 0 }

// SurfaceArea returns half the surface area of the node's AABB, the metric
// every SAH cost comparison in this package uses.
func (n *Node) SurfaceArea() float32 { return sa(n.AabbMin, n.AabbMax) }

// NodeCost returns the node's contribution to SAHCost: SurfaceArea * triCount
// for a leaf, 0 for an interior node (its children account for their own
// cost; the node itself contributes via SAHCost's traversal term).
func (n *Node) NodeCost() float32 { return n.SurfaceArea() * float32(n.TriCount) }

// NodeAlt is the 64-byte "Aila & Laine" layout: it stores both children's
// bounds explicitly in the parent, trading size for one less indirection
// during traversal.
type NodeAlt struct {
	LMin               vmath.Vec3
	Left               uint32
	LMax               vmath.Vec3
	Right              uint32
	RMin               vmath.Vec3
	TriCount           uint32
	RMax               vmath.Vec3
	FirstTri           uint32
}

func (n *NodeAlt) IsLeaf() bool { return n.TriCount > 0 }

// NodeAlt2 is the SoA counterpart of NodeAlt: child bounds for both children
// are packed per-axis into 4-lane vectors (lmin, lmax, rmin, rmax) so a
// packed SIMD-style slab test can evaluate both children in one pass.
type NodeAlt2 struct {
	Xxxx, Yyyy, Zzzz [4]float32
	Left, Right       uint32
	TriCount, FirstTri uint32
}

func (n *NodeAlt2) IsLeaf() bool { return n.TriCount > 0 }

// NodeVerbose adds explicit left/right/parent/sibling links to the canonical
// node. It exists purely to support the optimizer's ascending refit and
// reinsertion search; the conversion back to Wald32 discards the links.
type NodeVerbose struct {
	AabbMin                       vmath.Vec3
	Left                          uint32
	AabbMax                       vmath.Vec3
	Right                         uint32
	TriCount, FirstTri            uint32
	Parent, Sibling               uint32
}

func (n *NodeVerbose) IsLeaf() bool { return n.TriCount > 0 }

// verboseRootSentinel marks the root's parent in the Verbose layout; it is
// never a valid node index.
const verboseRootSentinel uint32 = 0xFFFFFFFF

// Node4 is the 4-wide collapsed layout. An interior node lists up to four
// child node indices; a leaf lists its triangle range as usual.
type Node4 struct {
	AabbMin   vmath.Vec3
	FirstTri  uint32
	AabbMax   vmath.Vec3
	TriCount  uint32
	Child     [4]uint32
	ChildCount uint32
}

func (n *Node4) IsLeaf() bool { return n.TriCount > 0 }

// Node8 is the 8-wide counterpart of Node4.
type Node8 struct {
	AabbMin    vmath.Vec3
	FirstTri   uint32
	AabbMax    vmath.Vec3
	TriCount   uint32
	Child      [8]uint32
	ChildCount uint32
}

func (n *Node8) IsLeaf() bool { return n.TriCount > 0 }

// aabb8 is a quantized (8-bit per axis, per bound) child sub-box, relative
// to the owning node's aabbMin and scaled by the node's extent.
type aabb8 struct {
	XMin, YMin, ZMin byte
	XMax, YMax, ZMax byte
}

// The quantized 4-wide GPU layout (Node4GPUBlob) uses 64 bytes per node. It stores one absolute AABB (the node's own), four quantized
// child sub-boxes and four childInfo words; leaves' triangle data follows
// the node inline in the same buffer, making the whole tree one contiguous,
// relocatable blob.
//
// childInfo encoding:
//   - MSB set:   leaf. Bits 16-30: triangle count. Bits 0-15: relative
//     offset (in vec4s) to the first inlined triangle vertex.
//   - MSB clear: interior. The full 31 bits address the child's node block,
//     in vec4s from the start of the blob. Zero means "no child".
const (
	childInfoLeafBit    uint32 = 0x80000000
	childInfoTriCountSh        = 16
	childInfoTriCountMask      = 0x7FFF
	childInfoOffsetMask        = 0xFFFF
)

// Node4GPUBlob is the flat vec4 buffer backing the quantized 4-wide GPU
// layout: groups of 4 vmath.Vec4 per interior node (aabbMin+pad,
// extent/255+pad, packed quantized child bounds, childInfo words), followed
// inline by each leaf child's triangle data.
type Node4GPUBlob struct {
	Data []vmath.Vec4
}

// Fragment stores one primitive's AABB plus its originating primitive
// index. SBVH may append clipped fragments to the tail of the fragment
// array; fragments are never removed.
type Fragment struct {
	BMin    vmath.Vec3
	PrimIdx uint32
	BMax    vmath.Vec3
	Clipped uint32
}

// ValidBox reports whether the fragment holds a real (non-sentinel) box.
func (f *Fragment) ValidBox() bool { return f.BMin[0] < 1e30 }

// Intersection is a closest-hit record: distance, barycentric u/v and the
// original primitive index. It is designed to fit in four 32-bit words.
type Intersection struct {
	T, U, V float32
	Prim    uint32
}

// Ray is a single ray: origin, (unit) direction, reciprocal direction and
// the current closest hit. RD must be kept consistent with D; use NewRay
// to construct a ray so this invariant holds.
type Ray struct {
	O, D, RD vmath.Vec3
	Hit      Intersection
}

// NewRay builds a ray from an origin and (not necessarily normalized)
// direction, normalizing D and deriving a safe reciprocal direction. t sets
// the initial "no hit yet" distance (1e30 by convention).
func NewRay(origin, direction vmath.Vec3, t float32) Ray {
	d := direction.Normalize()
	return Ray{
		O:  origin,
		D:  d,
		RD: vmath.SafeReciprocal3(d),
		Hit: Intersection{
			T: t,
		},
	}
}

func sa(aabbMin, aabbMax vmath.Vec3) float32 {
	e := aabbMax.Sub(aabbMin)
	return e[0]*e[1] + e[1]*e[2] + e[2]*e[0]
}

// BVH owns one tree's worth of buffers: the input vertex borrow, the
// fragment and primitive-index arrays, the canonical node pool, and every
// alternate layout that has been converted to so far.
//
// A BVH is not safe for concurrent use: build/optimize/refit/convert are
// mutually exclusive with each other and with traversal on the same
// instance (see spec's concurrency model); callers that need parallel
// traversal must use one BVH per goroutine, or serialize mutation.
type BVH struct {
	Verts     []vmath.Vec4 // borrowed; not copied, not freed here
	TriCount  uint32
	Fragment  []Fragment
	TriIdx    []uint32
	IdxCount  uint32

	BVHNode []Node

	altNode  []NodeAlt
	alt2Node []NodeAlt2
	verbose  []NodeVerbose
	bvh4Node []Node4
	bvh8Node []Node8
	bvh4Alt  Node4GPUBlob

	usedBVHNodes   uint32
	usedAltNodes   uint32
	usedAlt2Nodes  uint32
	usedVerbose    uint32
	usedBVH4Nodes  uint32
	usedAlt4Blocks uint32
	usedBVH8Nodes  uint32

	// Rebuildable is false once any non-identity layout conversion has run;
	// a subsequent Build/BuildHQ must start from a fresh BVH.
	Rebuildable bool
	// Refittable is false after BuildHQ: spatial-split fragments break the
	// topology invariants Refit relies on.
	Refittable bool

	optSeed uint32 // xorshift state for Optimize's random subtree pick

	// buildDuration records how long the last Build/BuildHQ call took,
	// surfaced through Stats for diagnostics.
	buildDuration time.Duration
}

// New returns an empty BVH ready for Build or BuildHQ.
func New() *BVH {
	return &BVH{
		Rebuildable: true,
		Refittable:  true,
		optSeed:     0x12345678,
	}
}
