package crdt

import (
	"errors"
	"slices"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
)

var (
	ErrIndexOutOfRange = errors.New("索引越界")
	ErrUnknownID       = errors.New("元素不存在")
)

func (r *RGA[T]) invalidate() {
	r.order = nil
	r.visible = nil
}

// ensureOrder 以先序遍历重建顺序缓存。
func (r *RGA[T]) ensureOrder() {
	if r.order != nil {
		return
	}
	r.order = make([]ID, 0, len(r.vertices))
	r.visible = make([]ID, 0, len(r.vertices))

	stack := []ID{Root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !id.IsRoot() {
			r.order = append(r.order, id)
			if !r.vertices[id].deleted {
				r.visible = append(r.visible, id)
			}
		}
		kids := r.children[id]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
}

// Len 返回可见元素个数。
func (r *RGA[T]) Len() int {
	r.ensureOrder()
	return len(r.visible)
}

// Get 返回第 index 个可见元素。
func (r *RGA[T]) Get(index int) (T, bool) {
	r.ensureOrder()
	if index < 0 || index >= len(r.visible) {
		var zero T
		return zero, false
	}
	return r.vertices[r.visible[index]].value, true
}

// At 返回第 index 个可见元素的 ID。
func (r *RGA[T]) At(index int) (ID, bool) {
	r.ensureOrder()
	if index < 0 || index >= len(r.visible) {
		return Root, false
	}
	return r.visible[index], true
}

// Lookup 按 ID 查找元素，包括已删除的元素。
func (r *RGA[T]) Lookup(id ID) (value T, deleted bool, ok bool) {
	v, ok := r.vertices[id]
	if !ok {
		return value, false, false
	}
	return v.value, v.deleted, true
}

// Values 按文档顺序返回可见值。
func (r *RGA[T]) Values() []T {
	r.ensureOrder()
	out := make([]T, len(r.visible))
	for i, id := range r.visible {
		out[i] = r.vertices[id].value
	}
	return out
}

func (r *RGA[T]) Value() any { return r.Values() }

// IDs 按文档顺序返回可见元素的 ID。
func (r *RGA[T]) IDs() []ID {
	r.ensureOrder()
	return slices.Clone(r.visible)
}

// Iterator 返回一个遍历当前可见值的迭代器。
// 迭代器基于调用时的快照，之后的修改不影响它。
func (r *RGA[T]) Iterator() func() (T, bool) {
	values := r.Values()
	i := 0
	return func() (T, bool) {
		if i >= len(values) {
			var zero T
			return zero, false
		}
		v := values[i]
		i++
		return v, true
	}
}

// Tombstones 返回墓碑数量。
func (r *RGA[T]) Tombstones() int {
	n := 0
	for _, v := range r.vertices {
		if v.deleted {
			n++
		}
	}
	return n
}

func (r *RGA[T]) Clone() *RGA[T] {
	return r.Fork(r.node)
}

// Fork 以新的节点身份克隆完整的因果副本。
// 序号计数器随之复制，新节点的插入不会与已观察到的元素冲突。
func (r *RGA[T]) Fork(node nodeid.ID) *RGA[T] {
	c := NewRGA[T](node)
	c.maxSeq = r.maxSeq
	for id, v := range r.vertices {
		c.vertices[id] = &rgaVertex[T]{
			id:      v.id,
			value:   deepCopyValue(v.value),
			origin:  v.origin,
			deleted: v.deleted,
		}
	}
	for origin, kids := range r.children {
		c.children[origin] = slices.Clone(kids)
	}
	return c
}
