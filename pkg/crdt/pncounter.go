package crdt

import (
	"math"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
	"github.com/shinyes/crdt_kit/pkg/vclock"
)

// PNCounter 实现正负计数器：一对 GCounter。
type PNCounter struct {
	pos *GCounter // 每个节点的增量
	neg *GCounter // 每个节点的减量
}

// NewPNCounter 创建一个新的 PNCounter。
func NewPNCounter(node nodeid.ID) *PNCounter {
	return &PNCounter{
		pos: NewGCounter(node),
		neg: NewGCounter(node),
	}
}

func (c *PNCounter) sealed() {}

func (c *PNCounter) Type() Type { return TypePNCounter }

func (c *PNCounter) mustInit() {
	if c.pos == nil || c.neg == nil {
		violate(TypePNCounter, "PNCounter must be created with NewPNCounter")
	}
}

func (c *PNCounter) Node() nodeid.ID { return c.pos.node }

func (c *PNCounter) Increment() { c.Add(1) }

// Decrement 增加 neg 中本地节点的槽位。
func (c *PNCounter) Decrement() { c.Add(-1) }

// Add 按符号增加 pos 或 neg 的本地槽位。
func (c *PNCounter) Add(n int64) {
	c.mustInit()
	switch {
	case n > 0:
		c.pos.IncrementBy(uint64(n))
	case n == math.MinInt64:
		violate(TypePNCounter, "slot overflow")
	case n < 0:
		c.neg.IncrementBy(uint64(-n))
	}
}

// Count 返回 pos.Count - neg.Count，结果饱和到 int64 范围。
func (c *PNCounter) Count() int64 {
	pos, neg := c.pos.Count(), c.neg.Count()
	if pos >= neg {
		if d := pos - neg; d <= math.MaxInt64 {
			return int64(d)
		}
		return math.MaxInt64
	}
	if d := neg - pos; d <= uint64(math.MaxInt64)+1 {
		return -int64(d-1) - 1
	}
	return math.MinInt64
}

func (c *PNCounter) Value() any { return c.Count() }

// Positive 返回增量计数器的副本。
func (c *PNCounter) Positive() *GCounter { return c.pos.Clone() }

// Negative 返回减量计数器的副本。
func (c *PNCounter) Negative() *GCounter { return c.neg.Clone() }

func (c *PNCounter) Merge(other CRDT) error {
	o, ok := other.(*PNCounter)
	if !ok || o == nil {
		return mismatch(TypePNCounter, other)
	}
	c.mustInit()
	c.pos.slots.Merge(o.pos.slots)
	c.neg.slots.Merge(o.neg.slots)
	return nil
}

func (c *PNCounter) Clone() *PNCounter {
	return &PNCounter{pos: c.pos.Clone(), neg: c.neg.Clone()}
}

// WithNode 返回一个以 node 为本地身份的副本。
func (c *PNCounter) WithNode(node nodeid.ID) *PNCounter {
	return &PNCounter{pos: c.pos.WithNode(node), neg: c.neg.WithNode(node)}
}

// PNSummary 是 PNCounter 的版本摘要。
type PNSummary struct {
	Pos vclock.VectorClock
	Neg vclock.VectorClock
}

// PNCounterDelta 只包含远端尚未观察到的槽位。
type PNCounterDelta struct {
	Pos GCounterDelta
	Neg GCounterDelta
}

func (d PNCounterDelta) Empty() bool { return d.Pos.Empty() && d.Neg.Empty() }

func (c *PNCounter) Summary() PNSummary {
	return PNSummary{Pos: c.pos.Summary(), Neg: c.neg.Summary()}
}

func (c *PNCounter) Delta(summary PNSummary) PNCounterDelta {
	return PNCounterDelta{
		Pos: c.pos.Delta(summary.Pos),
		Neg: c.neg.Delta(summary.Neg),
	}
}

func (c *PNCounter) ApplyDelta(d PNCounterDelta) {
	c.mustInit()
	c.pos.ApplyDelta(d.Pos)
	c.neg.ApplyDelta(d.Neg)
}

type pncounterState struct {
	Node nodeid.ID   `msgpack:"node"`
	Pos  []slotState `msgpack:"pos"`
	Neg  []slotState `msgpack:"neg"`
}

type pnSlotsState struct {
	Pos []slotState `msgpack:"pos"`
	Neg []slotState `msgpack:"neg"`
}

func (c *PNCounter) Bytes() ([]byte, error) {
	return marshal(&pncounterState{
		Node: c.pos.node,
		Pos:  encodeSlots(TypePNCounter, c.pos.slots),
		Neg:  encodeSlots(TypePNCounter, c.neg.slots),
	})
}

func FromBytesPNCounter(data []byte) (*PNCounter, error) {
	var state pncounterState
	if err := unmarshal(TypePNCounter, data, &state); err != nil {
		return nil, err
	}
	if err := state.Node.Validate(); err != nil {
		return nil, invalid(TypePNCounter, data, "owner: %v", err)
	}
	pos, neg, err := decodePNSlots(data, state.Pos, state.Neg)
	if err != nil {
		return nil, err
	}
	return &PNCounter{
		pos: &GCounter{node: state.Node, slots: pos},
		neg: &GCounter{node: state.Node, slots: neg},
	}, nil
}

func decodePNSlots(data []byte, pos, neg []slotState) (vclock.VectorClock, vclock.VectorClock, error) {
	p, err := decodeSlots(TypePNCounter, data, pos)
	if err != nil {
		return nil, nil, err
	}
	n, err := decodeSlots(TypePNCounter, data, neg)
	if err != nil {
		return nil, nil, err
	}
	return p, n, nil
}

func (c *PNCounter) encodeVectors(pos, neg vclock.VectorClock) ([]byte, error) {
	return marshal(&pnSlotsState{
		Pos: encodeSlots(TypePNCounter, pos),
		Neg: encodeSlots(TypePNCounter, neg),
	})
}

func decodePNVectors(data []byte) (vclock.VectorClock, vclock.VectorClock, error) {
	var state pnSlotsState
	if err := unmarshal(TypePNCounter, data, &state); err != nil {
		return nil, nil, err
	}
	return decodePNSlots(data, state.Pos, state.Neg)
}

func (c *PNCounter) EncodeSummary() ([]byte, error) {
	return c.encodeVectors(c.pos.slots, c.neg.slots)
}

func (c *PNCounter) EncodeDelta(summary []byte) ([]byte, error) {
	pos, neg, err := decodePNVectors(summary)
	if err != nil {
		return nil, err
	}
	d := c.Delta(PNSummary{Pos: pos, Neg: neg})
	return c.encodeVectors(d.Pos.Slots, d.Neg.Slots)
}

func (c *PNCounter) MergeDeltaBytes(delta []byte) error {
	pos, neg, err := decodePNVectors(delta)
	if err != nil {
		return err
	}
	c.ApplyDelta(PNCounterDelta{Pos: GCounterDelta{Slots: pos}, Neg: GCounterDelta{Slots: neg}})
	return nil
}
