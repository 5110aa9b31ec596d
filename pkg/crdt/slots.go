package crdt

import (
	"math"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
	"github.com/shinyes/crdt_kit/pkg/vclock"
)

// slotState 是计数器槽位 / 版本向量项的线上格式。
// 值使用有符号整数传输，以便在解码时显式拒绝负数。
type slotState struct {
	Node  nodeid.ID `msgpack:"n"`
	Value int64     `msgpack:"v"`
}

func encodeSlots(t Type, vc vclock.VectorClock) []slotState {
	out := make([]slotState, 0, len(vc))
	for _, node := range vc.Nodes() {
		v := vc[node]
		if v == 0 {
			continue
		}
		if v > math.MaxInt64 {
			violate(t, "slot overflow for node "+string(node))
		}
		out = append(out, slotState{Node: node, Value: int64(v)})
	}
	return out
}

// decodeSlots 校验并还原槽位。拒绝负值、零值和重复节点，节点 ID 由 vclock.Validate 校验。
func decodeSlots(t Type, data []byte, slots []slotState) (vclock.VectorClock, error) {
	vc := make(vclock.VectorClock, len(slots))
	seen := make(map[nodeid.ID]struct{}, len(slots))
	for _, s := range slots {
		if s.Value < 0 {
			return nil, invalid(t, data, "negative slot %d for node %s", s.Value, s.Node)
		}
		if _, dup := seen[s.Node]; dup {
			return nil, invalid(t, data, "duplicate slot for node %s", s.Node)
		}
		seen[s.Node] = struct{}{}
		if s.Value == 0 {
			// encodeSlots 从不写出零槽位
			return nil, invalid(t, data, "zero slot for node %s", s.Node)
		}
		vc[s.Node] = uint64(s.Value)
	}
	if err := vc.Validate(); err != nil {
		return nil, invalid(t, data, "slot: %v", err)
	}
	return vc, nil
}

// missingSlots 返回 local 中高于 summary 的槽位。
func missingSlots(local, summary vclock.VectorClock) vclock.VectorClock {
	diff := vclock.New()
	for node, v := range local {
		if v > summary.Get(node) {
			diff[node] = v
		}
	}
	return diff
}
