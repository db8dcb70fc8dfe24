package bvh

import "testing"

func TestStatsReportsConsistentCounts(t *testing.T) {
	b, verts := buildGrid(4)
	b.Build(verts, uint32(len(verts)/3))

	st := b.Stats()
	if st.NodeCount == 0 {
		t.Fatalf("expected non-zero node count")
	}
	if st.LeafCount == 0 || st.LeafCount > st.NodeCount {
		t.Fatalf("leaf count %d out of range for node count %d", st.LeafCount, st.NodeCount)
	}
	if st.MaxDepth == 0 && st.NodeCount > 1 {
		t.Fatalf("expected non-zero max depth for a multi-node tree")
	}
	if st.SAHCost <= 0 {
		t.Fatalf("expected positive SAH cost; got %f", st.SAHCost)
	}
	if st.BuildDuration <= 0 {
		t.Fatalf("expected a measured build duration")
	}
}
