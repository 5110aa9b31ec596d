package crdt

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
)

func TestGCounter_Basic(t *testing.T) {
	c := NewGCounter("node1")
	if c.Count() != 0 {
		t.Fatalf("预期 0, 实际得到 %v", c.Count())
	}
	c.Increment()
	c.IncrementBy(4)
	c.IncrementBy(0)
	if c.Count() != 5 {
		t.Fatalf("预期 5, 实际得到 %v", c.Count())
	}
	if c.Slot("node1") != 5 || c.Slot("other") != 0 {
		t.Fatalf("unexpected slots %v", c.Slots())
	}
}

// a=3, b=5 合并后为 8；自合并幂等。
func TestGCounter_MergeScenario(t *testing.T) {
	a := NewGCounter("a")
	b := NewGCounter("b")
	a.IncrementBy(3)
	b.IncrementBy(5)

	if err := a.Merge(b); err != nil {
		t.Fatal(err)
	}
	if a.Count() != 8 {
		t.Fatalf("预期 8, 实际得到 %d", a.Count())
	}
	if b.Count() != 5 {
		t.Fatal("merge must not mutate its argument")
	}

	before := mustBytes(t, a)
	if err := a.Merge(a.Clone()); err != nil {
		t.Fatal(err)
	}
	if a.Count() != 8 || !bytes.Equal(before, mustBytes(t, a)) {
		t.Fatal("self merge should be idempotent")
	}
}

// 任意合并顺序得到相同的结果。
func TestGCounter_MergeAllPermutations(t *testing.T) {
	a, b, c := NewGCounter("A"), NewGCounter("B"), NewGCounter("C")
	a.IncrementBy(2)
	b.IncrementBy(7)
	c.IncrementBy(11)
	replicas := []*GCounter{a, b, c}

	perms := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	var want []byte
	for _, p := range perms {
		acc := NewGCounter("observer")
		for _, i := range p {
			if err := acc.Merge(replicas[i]); err != nil {
				t.Fatal(err)
			}
		}
		got := mustBytes(t, acc)
		if want == nil {
			want = got
			continue
		}
		if !bytes.Equal(want, got) {
			t.Fatalf("permutation %v diverged", p)
		}
		if acc.Count() != 20 {
			t.Fatalf("预期 20, 实际得到 %d", acc.Count())
		}
	}
}

func TestGCounter_MergeTakesSlotMax(t *testing.T) {
	a := NewGCounter("a")
	a.IncrementBy(10)
	stale := a.Clone()
	a.IncrementBy(5)

	if err := a.Merge(stale); err != nil {
		t.Fatal(err)
	}
	if a.Count() != 15 {
		t.Fatalf("stale state must not lower the slot: %d", a.Count())
	}
}

func TestGCounter_Delta(t *testing.T) {
	a := NewGCounter("a")
	b := NewGCounter("b")
	a.IncrementBy(3)
	b.IncrementBy(4)
	if err := b.Merge(a); err != nil {
		t.Fatal(err)
	}
	a.IncrementBy(2)

	d := a.Delta(b.Summary())
	if len(d.Slots) != 1 || d.Slots["a"] != 5 {
		t.Fatalf("delta should carry only the advanced slot, got %v", d.Slots)
	}

	want := b.Clone()
	if err := want.Merge(a); err != nil {
		t.Fatal(err)
	}
	b.ApplyDelta(d)
	b.ApplyDelta(d)
	if !bytes.Equal(mustBytes(t, want), mustBytes(t, b)) {
		t.Fatal("apply_delta should equal a full merge")
	}

	if !a.Delta(b.Summary()).Empty() {
		t.Fatal("nothing left to send")
	}
}

func TestGCounter_DeltaBytes(t *testing.T) {
	a := NewGCounter("a")
	b := NewGCounter("b")
	a.IncrementBy(9)
	b.Increment()

	summary, err := b.EncodeSummary()
	if err != nil {
		t.Fatal(err)
	}
	delta, err := a.EncodeDelta(summary)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.MergeDeltaBytes(delta); err != nil {
		t.Fatal(err)
	}
	if b.Count() != 10 {
		t.Fatalf("预期 10, 实际得到 %d", b.Count())
	}
}

func TestGCounter_RoundTrip(t *testing.T) {
	c := NewGCounter("a")
	c.IncrementBy(42)
	other := NewGCounter("b")
	other.IncrementBy(7)
	_ = c.Merge(other)

	data := mustBytes(t, c)
	decoded, err := FromBytesGCounter(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Node() != "a" || decoded.Count() != 49 {
		t.Fatalf("unexpected decoded state: %s %d", decoded.Node(), decoded.Count())
	}
	if !bytes.Equal(data, mustBytes(t, decoded)) {
		t.Fatal("round trip must be byte identical")
	}
}

func TestGCounter_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		state gcounterState
	}{
		{"negative slot", gcounterState{Node: "a", Slots: []slotState{{Node: "b", Value: -1}}}},
		{"empty slot node", gcounterState{Node: "a", Slots: []slotState{{Node: "", Value: 1}}}},
		{"zero slot", gcounterState{Node: "a", Slots: []slotState{{Node: "b", Value: 0}}}},
		{"duplicate slot", gcounterState{Node: "a", Slots: []slotState{{Node: "b", Value: 1}, {Node: "b", Value: 2}}}},
		{"empty owner", gcounterState{Node: "", Slots: []slotState{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := marshal(&tt.state)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := FromBytesGCounter(data); !errors.Is(err, ErrInvalidData) {
				t.Fatalf("expected ErrInvalidData, got %v", err)
			}
		})
	}

	// 畸形 delta 不得修改接收者
	c := NewGCounter("a")
	c.IncrementBy(3)
	before := mustBytes(t, c)
	bad, _ := marshal(&slotsState{Slots: []slotState{{Node: "x", Value: -5}}})
	if err := c.MergeDeltaBytes(bad); err == nil {
		t.Fatal("expected rejection of negative slot in delta")
	}
	if !bytes.Equal(before, mustBytes(t, c)) {
		t.Fatal("receiver must be untouched after a rejected delta")
	}
}

func TestGCounter_Overflow(t *testing.T) {
	mustViolate := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if _, ok := recover().(PreconditionViolation); !ok {
				t.Fatalf("%s: expected PreconditionViolation on overflow", name)
			}
		}()
		fn()
	}

	c := NewGCounter("a")
	mustViolate("beyond int64", func() { c.IncrementBy(1 << 63) })
	if c.Count() != 0 {
		t.Fatalf("rejected increment must not change the slot, got %d", c.Count())
	}

	c.IncrementBy(math.MaxInt64)
	mustViolate("one past int64", func() { c.Increment() })
	if _, err := c.Bytes(); err != nil {
		t.Fatalf("max slot must stay encodable: %v", err)
	}
}

func TestGCounter_CountSaturates(t *testing.T) {
	merged := NewGCounter("a")
	for _, n := range []nodeid.ID{"a", "b", "c"} {
		other := NewGCounter(n)
		other.IncrementBy(math.MaxInt64)
		if err := merged.Merge(other); err != nil {
			t.Fatal(err)
		}
	}
	if merged.Count() != math.MaxUint64 {
		t.Fatalf("预期饱和到 MaxUint64, 实际得到 %d", merged.Count())
	}
}

func TestGCounter_WithNode(t *testing.T) {
	a := NewGCounter("a")
	a.IncrementBy(2)
	b := a.WithNode(nodeid.ID("b"))
	b.Increment()
	if b.Slot("a") != 2 || b.Slot("b") != 1 {
		t.Fatalf("unexpected slots %v", b.Slots())
	}
	if a.Slot("b") != 0 {
		t.Fatal("WithNode must copy")
	}
}
