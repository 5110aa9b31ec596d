package crdt

import (
	"math"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
	"github.com/shinyes/crdt_kit/pkg/vclock"
)

// GCounter 实现只增计数器。
// 每个节点只增加自己的槽位；合并取逐槽位最大值。
type GCounter struct {
	node  nodeid.ID          // 本地节点 (副本) 的 ID
	slots vclock.VectorClock // 每个节点的计数
}

// NewGCounter 创建一个新的 GCounter。
func NewGCounter(node nodeid.ID) *GCounter {
	if err := node.Validate(); err != nil {
		violate(TypeGCounter, err.Error())
	}
	return &GCounter{node: node, slots: vclock.New()}
}

func (c *GCounter) sealed() {}

func (c *GCounter) Type() Type { return TypeGCounter }

func (c *GCounter) mustInit() {
	if c.slots == nil {
		violate(TypeGCounter, "GCounter must be created with NewGCounter")
	}
}

// Node 返回本地节点 ID。
func (c *GCounter) Node() nodeid.ID { return c.node }

// Increment 将本地槽位加一。
func (c *GCounter) Increment() { c.IncrementBy(1) }

// IncrementBy 将本地槽位增加 n。
func (c *GCounter) IncrementBy(n uint64) {
	c.mustInit()
	if n == 0 {
		return
	}
	next := c.slots[c.node] + n
	// 槽位以 int64 传输
	if next < n || next > math.MaxInt64 {
		violate(TypeGCounter, "slot overflow")
	}
	c.slots[c.node] = next
}

// Count 返回所有槽位之和，超过 math.MaxUint64 时饱和。
func (c *GCounter) Count() uint64 {
	var total uint64
	for _, v := range c.slots {
		if total > math.MaxUint64-v {
			return math.MaxUint64
		}
		total += v
	}
	return total
}

func (c *GCounter) Value() any { return c.Count() }

// Slot 返回指定节点的槽位值。
func (c *GCounter) Slot(node nodeid.ID) uint64 { return c.slots.Get(node) }

// Slots 返回槽位副本。
func (c *GCounter) Slots() map[nodeid.ID]uint64 { return c.slots.Clone() }

func (c *GCounter) Merge(other CRDT) error {
	o, ok := other.(*GCounter)
	if !ok || o == nil {
		return mismatch(TypeGCounter, other)
	}
	c.mustInit()
	c.slots.Merge(o.slots)
	return nil
}

func (c *GCounter) Clone() *GCounter {
	return &GCounter{node: c.node, slots: c.slots.Clone()}
}

// WithNode 返回一个以 node 为本地身份的副本，用于将解码得到的状态交给新的所有者。
func (c *GCounter) WithNode(node nodeid.ID) *GCounter {
	clone := c.Clone()
	clone.node = node
	return clone
}

// Summary 返回版本摘要：每个节点的槽位值。
func (c *GCounter) Summary() vclock.VectorClock { return c.slots.Clone() }

// GCounterDelta 只包含远端尚未观察到的槽位。
type GCounterDelta struct {
	Slots vclock.VectorClock
}

// Empty 报告 delta 是否不包含任何内容。
func (d GCounterDelta) Empty() bool { return len(d.Slots) == 0 }

// Delta 返回 summary 未覆盖的槽位。
func (c *GCounter) Delta(summary vclock.VectorClock) GCounterDelta {
	return GCounterDelta{Slots: missingSlots(c.slots, summary)}
}

// ApplyDelta 等价于与仅包含 delta 内容的状态做完整合并。
func (c *GCounter) ApplyDelta(d GCounterDelta) {
	c.mustInit()
	c.slots.Merge(d.Slots)
}

type gcounterState struct {
	Node  nodeid.ID   `msgpack:"node"`
	Slots []slotState `msgpack:"slots"`
}

type slotsState struct {
	Slots []slotState `msgpack:"slots"`
}

func (c *GCounter) Bytes() ([]byte, error) {
	return marshal(&gcounterState{Node: c.node, Slots: encodeSlots(TypeGCounter, c.slots)})
}

func FromBytesGCounter(data []byte) (*GCounter, error) {
	var state gcounterState
	if err := unmarshal(TypeGCounter, data, &state); err != nil {
		return nil, err
	}
	if err := state.Node.Validate(); err != nil {
		return nil, invalid(TypeGCounter, data, "owner: %v", err)
	}
	slots, err := decodeSlots(TypeGCounter, data, state.Slots)
	if err != nil {
		return nil, err
	}
	return &GCounter{node: state.Node, slots: slots}, nil
}

func (c *GCounter) EncodeSummary() ([]byte, error) {
	return marshal(&slotsState{Slots: encodeSlots(TypeGCounter, c.slots)})
}

func (c *GCounter) EncodeDelta(summary []byte) ([]byte, error) {
	vc, err := decodeSlotVector(TypeGCounter, summary)
	if err != nil {
		return nil, err
	}
	d := c.Delta(vc)
	return marshal(&slotsState{Slots: encodeSlots(TypeGCounter, d.Slots)})
}

func (c *GCounter) MergeDeltaBytes(delta []byte) error {
	vc, err := decodeSlotVector(TypeGCounter, delta)
	if err != nil {
		return err
	}
	c.ApplyDelta(GCounterDelta{Slots: vc})
	return nil
}

func decodeSlotVector(t Type, data []byte) (vclock.VectorClock, error) {
	var state slotsState
	if err := unmarshal(t, data, &state); err != nil {
		return nil, err
	}
	return decodeSlots(t, data, state.Slots)
}
