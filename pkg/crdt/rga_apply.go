package crdt

import (
	"fmt"
	"slices"
)

// addChild 将 id 按兄弟顺序插入 origin 的子节点列表。
func (r *RGA[T]) addChild(origin, id ID) {
	kids := r.children[origin]
	pos, _ := slices.BinarySearchFunc(kids, id, siblingOrder)
	r.children[origin] = slices.Insert(kids, pos, id)
}

func (r *RGA[T]) insertAfter(anchor ID, value T) ID {
	r.maxSeq++
	id := ID{Seq: r.maxSeq, Node: r.node}
	r.vertices[id] = &rgaVertex[T]{id: id, value: value, origin: anchor}
	r.addChild(anchor, id)
	r.invalidate()
	return id
}

// InsertAfter 在 anchor 之后插入值。anchor 可以是 Root 或已删除的元素。
func (r *RGA[T]) InsertAfter(anchor ID, value T) (ID, error) {
	r.mustInit()
	if !anchor.IsRoot() {
		if _, ok := r.vertices[anchor]; !ok {
			return Root, fmt.Errorf("anchor %s: %w", anchor, ErrUnknownID)
		}
	}
	return r.insertAfter(anchor, value), nil
}

// anchorFor 返回在可见位置 index 插入时使用的锚点。
func (r *RGA[T]) anchorFor(index int) (ID, error) {
	r.ensureOrder()
	if index < 0 || index > len(r.visible) {
		return Root, fmt.Errorf("insert at %d (len %d): %w", index, len(r.visible), ErrIndexOutOfRange)
	}
	if index == 0 {
		return Root, nil
	}
	return r.visible[index-1], nil
}

// InsertAt 在可见位置 index 插入值，0 <= index <= Len()。
func (r *RGA[T]) InsertAt(index int, value T) (ID, error) {
	r.mustInit()
	anchor, err := r.anchorFor(index)
	if err != nil {
		return Root, err
	}
	return r.insertAfter(anchor, value), nil
}

// Remove 为元素打墓碑。重复删除是空操作。
func (r *RGA[T]) Remove(id ID) error {
	r.mustInit()
	v, ok := r.vertices[id]
	if !ok {
		return fmt.Errorf("remove %s: %w", id, ErrUnknownID)
	}
	if !v.deleted {
		v.deleted = true
		r.invalidate()
	}
	return nil
}

// RemoveAt 删除第 index 个可见元素并返回其 ID。
func (r *RGA[T]) RemoveAt(index int) (ID, error) {
	r.mustInit()
	id, ok := r.At(index)
	if !ok {
		return Root, fmt.Errorf("remove at %d (len %d): %w", index, r.Len(), ErrIndexOutOfRange)
	}
	r.vertices[id].deleted = true
	r.invalidate()
	return id, nil
}

// Move 将第 from 个可见元素移动到位置 to (按移除后的序列计算)。
// 原位置打墓碑，新位置以新 ID 插入。
func (r *RGA[T]) Move(from, to int) (ID, error) {
	r.mustInit()
	id, ok := r.At(from)
	if !ok {
		return Root, fmt.Errorf("move from %d (len %d): %w", from, r.Len(), ErrIndexOutOfRange)
	}
	if to < 0 || to > r.Len()-1 {
		return Root, fmt.Errorf("move to %d (len %d): %w", to, r.Len()-1, ErrIndexOutOfRange)
	}
	v := r.vertices[id]
	v.deleted = true
	r.invalidate()

	anchor, err := r.anchorFor(to)
	if err != nil {
		return Root, err
	}
	return r.insertAfter(anchor, deepCopyValue(v.value)), nil
}
