package crdt

import (
	"slices"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
)

type rgaVertexState[T any] struct {
	ID      ID   `msgpack:"id"`
	Origin  ID   `msgpack:"o"`
	Value   T    `msgpack:"v"`
	Deleted bool `msgpack:"d"`
}

type rgaState[T any] struct {
	Node     nodeid.ID           `msgpack:"node"`
	Clock    uint64              `msgpack:"clock"`
	Vertices []rgaVertexState[T] `msgpack:"vertices"`
}

// Bytes 按 ID 排序输出所有元素，保证编码确定。
func (r *RGA[T]) Bytes() ([]byte, error) {
	r.mustInit()
	ids := make([]ID, 0, len(r.vertices))
	for id := range r.vertices {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, CompareIDs)

	state := &rgaState[T]{
		Node:     r.node,
		Clock:    r.maxSeq,
		Vertices: make([]rgaVertexState[T], len(ids)),
	}
	for i, id := range ids {
		v := r.vertices[id]
		state.Vertices[i] = rgaVertexState[T]{ID: id, Origin: v.origin, Value: v.value, Deleted: v.deleted}
	}
	return marshal(state)
}

func FromBytesRGA[T any](data []byte) (*RGA[T], error) {
	return decodeRGA[T](TypeRGA, data)
}

// decodeRGA 校验：ID 严格递增 (无重复)，锚点存在且序号小于元素序号 (无环)，
// 计数器不小于任何元素序号。
func decodeRGA[T any](t Type, data []byte) (*RGA[T], error) {
	var state rgaState[T]
	if err := unmarshal(t, data, &state); err != nil {
		return nil, err
	}
	if err := state.Node.Validate(); err != nil {
		return nil, invalid(t, data, "owner: %v", err)
	}

	r := NewRGA[T](state.Node)
	r.maxSeq = state.Clock
	for i, vs := range state.Vertices {
		if err := vs.ID.validate(); err != nil {
			return nil, invalid(t, data, "vertex: %v", err)
		}
		if i > 0 && CompareIDs(state.Vertices[i-1].ID, vs.ID) >= 0 {
			return nil, invalid(t, data, "vertices not sorted or duplicate id %s", vs.ID)
		}
		if vs.ID.Seq > state.Clock {
			return nil, invalid(t, data, "vertex %s exceeds clock %d", vs.ID, state.Clock)
		}
		if !vs.Origin.IsRoot() {
			if err := vs.Origin.validate(); err != nil {
				return nil, invalid(t, data, "origin: %v", err)
			}
			if vs.Origin.Seq >= vs.ID.Seq {
				return nil, invalid(t, data, "origin %s does not precede %s", vs.Origin, vs.ID)
			}
		}
		r.vertices[vs.ID] = &rgaVertex[T]{id: vs.ID, value: vs.Value, origin: vs.Origin, deleted: vs.Deleted}
	}
	for id, v := range r.vertices {
		if !v.origin.IsRoot() {
			if _, ok := r.vertices[v.origin]; !ok {
				return nil, invalid(t, data, "dangling origin %s for %s", v.origin, id)
			}
		}
		r.children[v.origin] = append(r.children[v.origin], id)
	}
	for origin := range r.children {
		slices.SortFunc(r.children[origin], siblingOrder)
	}
	return r, nil
}
