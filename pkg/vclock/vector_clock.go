// Package vclock 实现版本向量，用作 delta 同步的版本摘要和因果上下文。
package vclock

import (
	"fmt"
	"maps"
	"slices"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
)

// VectorClock 表示一个版本向量。
// 映射 NodeID -> 计数器
type VectorClock map[nodeid.ID]uint64

func New() VectorClock {
	return make(VectorClock)
}

// Get 返回节点的计数器，不存在时为 0。
func (vc VectorClock) Get(node nodeid.ID) uint64 {
	return vc[node]
}

// Increment 将节点计数器加一并返回新值。
func (vc VectorClock) Increment(node nodeid.ID) uint64 {
	vc[node]++
	return vc[node]
}

// Observe 记录已观察到 (node, seq)。
func (vc VectorClock) Observe(node nodeid.ID, seq uint64) {
	if seq > vc[node] {
		vc[node] = seq
	}
}

// Covers 报告 (node, seq) 是否已被该向量观察到。
func (vc VectorClock) Covers(node nodeid.ID, seq uint64) bool {
	return seq <= vc[node]
}

func (vc VectorClock) Merge(other VectorClock) {
	for id, counter := range other {
		if counter > vc[id] {
			vc[id] = counter
		}
	}
}

// Descends 报告 vc 是否 >= other (逐项)。
// 偏序使得简单的比较变得复杂（存在并发情况），因此只提供 Descends。
func (vc VectorClock) Descends(other VectorClock) bool {
	for id, otherCtr := range other {
		if vc[id] < otherCtr {
			return false
		}
	}
	return true
}

// Concurrent 报告两个向量互不支配。
func (vc VectorClock) Concurrent(other VectorClock) bool {
	return !vc.Descends(other) && !other.Descends(vc)
}

// Equal 比较两个向量，忽略值为 0 的项。
func (vc VectorClock) Equal(other VectorClock) bool {
	return vc.Descends(other) && other.Descends(vc)
}

func (vc VectorClock) Clone() VectorClock {
	c := make(VectorClock, len(vc))
	maps.Copy(c, vc)
	return c
}

// Nodes 返回按 ID 排序的节点列表。
func (vc VectorClock) Nodes() []nodeid.ID {
	nodes := slices.Collect(maps.Keys(vc))
	slices.Sort(nodes)
	return nodes
}

// Validate 检查解码得到的向量。
func (vc VectorClock) Validate() error {
	for id, ctr := range vc {
		if err := id.Validate(); err != nil {
			return fmt.Errorf("version vector: %w", err)
		}
		if ctr == 0 {
			return fmt.Errorf("version vector: zero counter for node %s", id)
		}
	}
	return nil
}
