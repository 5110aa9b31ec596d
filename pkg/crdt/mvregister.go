package crdt

import (
	"slices"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
	"github.com/shinyes/crdt_kit/pkg/vclock"
)

type mvEntry[T any] struct {
	Value T   `msgpack:"v"`
	Dot   Dot `msgpack:"d"`
}

// MVRegister 实现多值寄存器。
// 保存所有未被因果支配的 (值, 版本) 对；并发写入永远不会被静默丢弃。
type MVRegister[T any] struct {
	node    nodeid.ID
	entries []mvEntry[T]       // 按 Dot 排序
	context vclock.VectorClock // 已观察到的所有写入
}

// NewMVRegister 创建一个新的 MVRegister。
func NewMVRegister[T any](node nodeid.ID) *MVRegister[T] {
	if err := node.Validate(); err != nil {
		violate(TypeMVRegister, err.Error())
	}
	return &MVRegister[T]{node: node, context: vclock.New()}
}

func (r *MVRegister[T]) sealed() {}

func (r *MVRegister[T]) Type() Type { return TypeMVRegister }

func (r *MVRegister[T]) Node() nodeid.ID { return r.node }

// Set 写入新值，取代本地当前观察到的所有值。
func (r *MVRegister[T]) Set(value T) Dot {
	if r.context == nil {
		violate(TypeMVRegister, "MVRegister must be created with NewMVRegister")
	}
	d := Dot{Node: r.node, Seq: r.context.Increment(r.node)}
	r.entries = []mvEntry[T]{{Value: value, Dot: d}}
	return d
}

// Values 返回所有并发值，按版本确定性排序。
func (r *MVRegister[T]) Values() []T {
	out := make([]T, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Value
	}
	return out
}

func (r *MVRegister[T]) Value() any { return r.Values() }

// Conflicted 报告是否存在多个并发值。
func (r *MVRegister[T]) Conflicted() bool { return len(r.entries) > 1 }

func (r *MVRegister[T]) has(d Dot) bool {
	_, found := slices.BinarySearchFunc(r.entries, d, func(e mvEntry[T], d Dot) int {
		return CompareDots(e.Dot, d)
	})
	return found
}

// Merge 保留双方都持有的值，以及对方上下文尚未观察到的值。
func (r *MVRegister[T]) Merge(other CRDT) error {
	o, ok := other.(*MVRegister[T])
	if !ok || o == nil {
		return mismatch(TypeMVRegister, other)
	}
	if r.context == nil {
		violate(TypeMVRegister, "MVRegister must be created with NewMVRegister")
	}

	merged := make([]mvEntry[T], 0, len(r.entries)+len(o.entries))
	for _, e := range r.entries {
		if o.has(e.Dot) || !e.Dot.coveredBy(o.context) {
			merged = append(merged, e)
		}
	}
	for _, e := range o.entries {
		if r.has(e.Dot) {
			continue
		}
		if !e.Dot.coveredBy(r.context) {
			merged = append(merged, mvEntry[T]{Value: deepCopyValue(e.Value), Dot: e.Dot})
		}
	}
	slices.SortFunc(merged, func(a, b mvEntry[T]) int { return CompareDots(a.Dot, b.Dot) })

	r.entries = merged
	r.context.Merge(o.context)
	return nil
}

func (r *MVRegister[T]) Clone() *MVRegister[T] {
	entries := make([]mvEntry[T], len(r.entries))
	for i, e := range r.entries {
		entries[i] = mvEntry[T]{Value: deepCopyValue(e.Value), Dot: e.Dot}
	}
	return &MVRegister[T]{node: r.node, entries: entries, context: r.context.Clone()}
}

// WithNode 返回一个以 node 为本地身份的副本。
func (r *MVRegister[T]) WithNode(node nodeid.ID) *MVRegister[T] {
	if err := node.Validate(); err != nil {
		violate(TypeMVRegister, err.Error())
	}
	c := r.Clone()
	c.node = node
	return c
}

type mvState[T any] struct {
	Node    nodeid.ID    `msgpack:"node"`
	Entries []mvEntry[T] `msgpack:"entries"`
	Context []slotState  `msgpack:"ctx"`
}

func (r *MVRegister[T]) Bytes() ([]byte, error) {
	entries := r.entries
	if entries == nil {
		entries = []mvEntry[T]{}
	}
	return marshal(&mvState[T]{
		Node:    r.node,
		Entries: entries,
		Context: encodeSlots(TypeMVRegister, r.context),
	})
}

func FromBytesMVRegister[T any](data []byte) (*MVRegister[T], error) {
	var state mvState[T]
	if err := unmarshal(TypeMVRegister, data, &state); err != nil {
		return nil, err
	}
	if err := state.Node.Validate(); err != nil {
		return nil, invalid(TypeMVRegister, data, "owner: %v", err)
	}
	ctx, err := decodeSlots(TypeMVRegister, data, state.Context)
	if err != nil {
		return nil, err
	}

	perNode := make(map[nodeid.ID]struct{}, len(state.Entries))
	for i, e := range state.Entries {
		if err := e.Dot.validate(); err != nil {
			return nil, invalid(TypeMVRegister, data, "entry: %v", err)
		}
		if !e.Dot.coveredBy(ctx) {
			return nil, invalid(TypeMVRegister, data, "entry %s not covered by context", e.Dot)
		}
		// 同一节点的写入是顺序的，后写支配先写
		if _, dup := perNode[e.Dot.Node]; dup {
			return nil, invalid(TypeMVRegister, data, "dominated entry %s", e.Dot)
		}
		perNode[e.Dot.Node] = struct{}{}
		if i > 0 && CompareDots(state.Entries[i-1].Dot, e.Dot) >= 0 {
			return nil, invalid(TypeMVRegister, data, "entries not sorted")
		}
	}
	entries := state.Entries
	if entries == nil {
		entries = []mvEntry[T]{}
	}
	return &MVRegister[T]{node: state.Node, entries: entries, context: ctx}, nil
}
