package crdt

import (
	"cmp"
	"fmt"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
)

// ID 唯一标识 RGA 中的一个元素。零值是虚拟根节点。
type ID struct {
	Seq  uint64    `msgpack:"s"`
	Node nodeid.ID `msgpack:"n"`
}

// Root 是所有副本共享的虚拟头节点。
var Root = ID{}

func (id ID) IsRoot() bool { return id == Root }

func (id ID) String() string {
	if id.IsRoot() {
		return "root"
	}
	return fmt.Sprintf("%d@%s", id.Seq, id.Node)
}

// CompareIDs 先比较序号，再比较节点。
func CompareIDs(a, b ID) int {
	if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
		return c
	}
	return nodeid.Compare(a.Node, b.Node)
}

func (id ID) validate() error {
	if id.Seq == 0 {
		return fmt.Errorf("id %s has zero sequence", id)
	}
	return id.Node.Validate()
}

type rgaVertex[T any] struct {
	id      ID
	value   T
	origin  ID // 插入时位于其后的元素
	deleted bool
}

// RGA 实现复制可增长数组 (Replicated Growable Array)。
//
// 每个元素记录插入时的锚点 (origin)，所有元素构成以 Root 为根的树；
// 同一锚点的兄弟按 (Seq 降序, Node 降序) 排列，先序遍历即为文档顺序。
// 删除只打墓碑，移动是墓碑加新插入。
type RGA[T any] struct {
	node     nodeid.ID
	vertices map[ID]*rgaVertex[T]
	children map[ID][]ID // origin -> 已排序的子节点
	maxSeq   uint64      // 已观察到的最大序号 (Lamport)

	// 缓存的先序遍历结果，结构变化后置空
	order   []ID
	visible []ID
}

// NewRGA 创建一个新的 RGA。
func NewRGA[T any](node nodeid.ID) *RGA[T] {
	if err := node.Validate(); err != nil {
		violate(TypeRGA, err.Error())
	}
	return &RGA[T]{
		node:     node,
		vertices: make(map[ID]*rgaVertex[T]),
		children: make(map[ID][]ID),
	}
}

func (r *RGA[T]) sealed() {}

func (r *RGA[T]) Type() Type { return TypeRGA }

func (r *RGA[T]) Node() nodeid.ID { return r.node }

func (r *RGA[T]) mustInit() {
	if r.vertices == nil || r.children == nil {
		violate(TypeRGA, "RGA must be created with NewRGA")
	}
}

// siblingOrder 按 (Seq 降序, Node 降序) 比较兄弟节点。
func siblingOrder(a, b ID) int {
	return -CompareIDs(a, b)
}
