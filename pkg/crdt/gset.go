package crdt

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// GSet 实现只增集合。合并即并集。
type GSet[T comparable] struct {
	elems mapset.Set[T]
}

// NewGSet 创建一个新的 GSet。
// 底层集合不带锁，与包内其他类型一样由宿主负责同步。
func NewGSet[T comparable]() *GSet[T] {
	return &GSet[T]{elems: mapset.NewThreadUnsafeSet[T]()}
}

func (s *GSet[T]) sealed() {}

func (s *GSet[T]) Type() Type { return TypeGSet }

func (s *GSet[T]) mustInit() {
	if s.elems == nil {
		violate(TypeGSet, "GSet must be created with NewGSet")
	}
}

// Add 添加元素，返回元素是否是新加入的。
func (s *GSet[T]) Add(element T) bool {
	s.mustInit()
	return s.elems.Add(element)
}

func (s *GSet[T]) Contains(element T) bool {
	return s.elems != nil && s.elems.Contains(element)
}

func (s *GSet[T]) Len() int {
	if s.elems == nil {
		return 0
	}
	return s.elems.Cardinality()
}

// Elements 返回按规范编码排序的元素。
func (s *GSet[T]) Elements() []T {
	if s.elems == nil {
		return []T{}
	}
	return sortCanonical(s.elems.ToSlice())
}

// ReadOnly 返回只读视图，持有者无法修改集合。
func (s *GSet[T]) ReadOnly() ReadOnlySet[T] { return AsReadOnlySet[T](s) }

func (s *GSet[T]) Value() any { return s.Elements() }

func (s *GSet[T]) Merge(other CRDT) error {
	o, ok := other.(*GSet[T])
	if !ok || o == nil {
		return mismatch(TypeGSet, other)
	}
	s.mustInit()
	s.union(o)
	return nil
}

func (s *GSet[T]) union(o *GSet[T]) {
	if o.elems == nil {
		return
	}
	o.elems.Each(func(e T) bool {
		s.elems.Add(e)
		return false
	})
}

func (s *GSet[T]) Clone() *GSet[T] {
	if s.elems == nil {
		return NewGSet[T]()
	}
	return &GSet[T]{elems: s.elems.Clone()}
}

type gsetState[T comparable] struct {
	Elements []T `msgpack:"elems"`
}

func (s *GSet[T]) Bytes() ([]byte, error) {
	return marshal(&gsetState[T]{Elements: s.Elements()})
}

func FromBytesGSet[T comparable](data []byte) (*GSet[T], error) {
	var state gsetState[T]
	if err := unmarshal(TypeGSet, data, &state); err != nil {
		return nil, err
	}
	return gsetFromElements(TypeGSet, data, state.Elements)
}

func gsetFromElements[T comparable](t Type, data []byte, elems []T) (*GSet[T], error) {
	s := NewGSet[T]()
	for _, e := range elems {
		if !s.elems.Add(e) {
			return nil, invalid(t, data, "duplicate element %v", e)
		}
	}
	return s, nil
}
