package crdt

// TwoPSet 实现两阶段集合：added 与 removed 两个 GSet。
// 元素一旦进入 removed 就永远不再可见，即使再次添加。
type TwoPSet[T comparable] struct {
	added   *GSet[T]
	removed *GSet[T]
}

func NewTwoPSet[T comparable]() *TwoPSet[T] {
	return &TwoPSet[T]{added: NewGSet[T](), removed: NewGSet[T]()}
}

func (s *TwoPSet[T]) sealed() {}

func (s *TwoPSet[T]) Type() Type { return TypeTwoPSet }

func (s *TwoPSet[T]) mustInit() {
	if s.added == nil || s.removed == nil {
		violate(TypeTwoPSet, "TwoPSet must be created with NewTwoPSet")
	}
}

// Add 添加元素。已被移除的元素不会因此重新出现。
func (s *TwoPSet[T]) Add(element T) {
	s.mustInit()
	s.added.Add(element)
}

// Remove 移除当前可见的元素。元素不可见时返回 false 且不做修改。
func (s *TwoPSet[T]) Remove(element T) bool {
	s.mustInit()
	if !s.Contains(element) {
		return false
	}
	s.removed.Add(element)
	return true
}

func (s *TwoPSet[T]) Contains(element T) bool {
	if s.added == nil {
		return false
	}
	return s.added.Contains(element) && !s.removed.Contains(element)
}

// Removed 报告元素是否已被永久移除。
func (s *TwoPSet[T]) Removed(element T) bool {
	return s.removed != nil && s.removed.Contains(element)
}

func (s *TwoPSet[T]) Elements() []T {
	if s.added == nil {
		return []T{}
	}
	all := s.added.Elements()
	out := all[:0]
	for _, e := range all {
		if !s.removed.Contains(e) {
			out = append(out, e)
		}
	}
	return out
}

func (s *TwoPSet[T]) Len() int { return len(s.Elements()) }

func (s *TwoPSet[T]) ReadOnly() ReadOnlySet[T] { return AsReadOnlySet[T](s) }

func (s *TwoPSet[T]) Value() any { return s.Elements() }

func (s *TwoPSet[T]) Merge(other CRDT) error {
	o, ok := other.(*TwoPSet[T])
	if !ok || o == nil {
		return mismatch(TypeTwoPSet, other)
	}
	s.mustInit()
	s.added.union(o.added)
	s.removed.union(o.removed)
	return nil
}

func (s *TwoPSet[T]) Clone() *TwoPSet[T] {
	return &TwoPSet[T]{added: s.added.Clone(), removed: s.removed.Clone()}
}

type twoPSetState[T comparable] struct {
	Added   []T `msgpack:"added"`
	Removed []T `msgpack:"removed"`
}

func (s *TwoPSet[T]) Bytes() ([]byte, error) {
	s.mustInit()
	return marshal(&twoPSetState[T]{Added: s.added.Elements(), Removed: s.removed.Elements()})
}

func FromBytesTwoPSet[T comparable](data []byte) (*TwoPSet[T], error) {
	var state twoPSetState[T]
	if err := unmarshal(TypeTwoPSet, data, &state); err != nil {
		return nil, err
	}
	added, err := gsetFromElements(TypeTwoPSet, data, state.Added)
	if err != nil {
		return nil, err
	}
	removed, err := gsetFromElements(TypeTwoPSet, data, state.Removed)
	if err != nil {
		return nil, err
	}
	for _, e := range removed.elems.ToSlice() {
		if !added.Contains(e) {
			return nil, invalid(TypeTwoPSet, data, "removed element %v was never added", e)
		}
	}
	return &TwoPSet[T]{added: added, removed: removed}, nil
}
