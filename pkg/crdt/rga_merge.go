package crdt

// Merge 合并另一个 RGA：元素取并集，墓碑取或。
func (r *RGA[T]) Merge(other CRDT) error {
	o, ok := other.(*RGA[T])
	if !ok || o == nil {
		return mismatch(TypeRGA, other)
	}
	r.mustInit()

	changed := false
	for id, remote := range o.vertices {
		if local, exists := r.vertices[id]; exists {
			if remote.deleted && !local.deleted {
				local.deleted = true
				changed = true
			}
			continue
		}
		r.vertices[id] = &rgaVertex[T]{
			id:      id,
			value:   deepCopyValue(remote.value),
			origin:  remote.origin,
			deleted: remote.deleted,
		}
		r.addChild(remote.origin, id)
		changed = true
	}
	r.maxSeq = max(r.maxSeq, o.maxSeq)
	if changed {
		r.invalidate()
	}
	return nil
}

// Compact 物理删除调用方确认已因果稳定的墓碑叶子节点，返回删除数量。
// 删除叶子后其父节点可能成为新的叶子，因此重复直到没有变化。
func (r *RGA[T]) Compact(stable func(ID) bool) int {
	r.mustInit()
	count := 0
	for {
		removed := 0
		for id, v := range r.vertices {
			if !v.deleted || len(r.children[id]) > 0 || !stable(id) {
				continue
			}
			r.detach(v)
			removed++
		}
		if removed == 0 {
			break
		}
		count += removed
	}
	if count > 0 {
		r.invalidate()
	}
	return count
}

func (r *RGA[T]) detach(v *rgaVertex[T]) {
	delete(r.vertices, v.id)
	delete(r.children, v.id)
	kids := r.children[v.origin]
	for i, k := range kids {
		if k == v.id {
			kids = append(kids[:i], kids[i+1:]...)
			break
		}
	}
	if len(kids) == 0 {
		delete(r.children, v.origin)
	} else {
		r.children[v.origin] = kids
	}
}
