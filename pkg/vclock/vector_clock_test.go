package vclock

import (
	"slices"
	"testing"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
)

func TestVectorClock(t *testing.T) {
	vc1 := New()
	vc1.Increment("A")

	vc2 := New()
	vc2.Increment("B")

	if vc1.Descends(vc2) {
		t.Error("vc1 不应该 descend vc2")
	}
	if !vc1.Concurrent(vc2) {
		t.Error("vc1 与 vc2 应该并发")
	}

	vc1.Merge(vc2)
	if !vc1.Descends(vc2) {
		t.Error("合并后 vc1 应该 descend vc2")
	}

	if vc1["A"] != 1 || vc1["B"] != 1 {
		t.Errorf("合并结果不正确: %v", vc1)
	}
}

func TestVectorClock_ObserveAndCovers(t *testing.T) {
	vc := New()
	vc.Observe("A", 5)
	vc.Observe("A", 3)
	vc.Observe("B", 0)

	if vc.Get("A") != 5 {
		t.Fatalf("Observe 不应降低计数器, got %d", vc.Get("A"))
	}
	if _, ok := vc["B"]; ok {
		t.Fatal("观察 seq 0 不应产生项")
	}
	if !vc.Covers("A", 5) || vc.Covers("A", 6) || vc.Covers("C", 1) {
		t.Fatalf("Covers 结果不正确: %v", vc)
	}
}

func TestVectorClock_CloneEqualNodes(t *testing.T) {
	vc := VectorClock{"b": 2, "a": 1}
	c := vc.Clone()
	c.Increment("a")

	if vc.Get("a") != 1 {
		t.Fatal("Clone 与原向量共享存储")
	}
	if vc.Equal(c) {
		t.Fatal("不同向量 Equal 返回 true")
	}
	if !slices.Equal(vc.Nodes(), []nodeid.ID{"a", "b"}) {
		t.Fatalf("Nodes 未排序: %v", vc.Nodes())
	}
}

func TestVectorClock_Validate(t *testing.T) {
	if err := (VectorClock{"a": 1}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (VectorClock{"": 1}).Validate(); err == nil {
		t.Fatal("empty node id should be rejected")
	}
	if err := (VectorClock{"a": 0}).Validate(); err == nil {
		t.Fatal("zero counter should be rejected")
	}
}
