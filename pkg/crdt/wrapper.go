package crdt

// readOnlySequence 包装 RGA 以提供只读访问，调用方无法通过类型断言拿回可变实例。
type readOnlySequence[T any] struct {
	r *RGA[T]
}

func (w readOnlySequence[T]) Len() int                   { return w.r.Len() }
func (w readOnlySequence[T]) Get(index int) (T, bool)    { return w.r.Get(index) }
func (w readOnlySequence[T]) Values() []T                { return w.r.Values() }
func (w readOnlySequence[T]) Iterator() func() (T, bool) { return w.r.Iterator() }

// readOnlySet 包装集合类 CRDT 以提供只读访问。
type readOnlySet[T comparable] struct {
	s ReadOnlySet[T]
}

func (w readOnlySet[T]) Contains(element T) bool { return w.s.Contains(element) }
func (w readOnlySet[T]) Elements() []T           { return w.s.Elements() }
func (w readOnlySet[T]) Len() int                { return w.s.Len() }

// AsReadOnlySequence 返回 RGA 的只读视图。
func AsReadOnlySequence[T any](r *RGA[T]) ReadOnlySequence[T] {
	return readOnlySequence[T]{r: r}
}

// AsReadOnlySet 返回集合的只读视图。
func AsReadOnlySet[T comparable](s ReadOnlySet[T]) ReadOnlySet[T] {
	return readOnlySet[T]{s: s}
}
