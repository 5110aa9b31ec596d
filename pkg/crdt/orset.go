package crdt

import (
	"maps"
	"slices"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
	"github.com/shinyes/crdt_kit/pkg/vclock"
)

// ORSet 实现观察-移除 (Observed-Remove) 集合。
// 每次 add 生成唯一标签；remove 为当前观察到的该元素的所有标签写入墓碑。
// 并发的 add 与 remove：移除方未观察到的标签不会被移除 (add 胜出)。
type ORSet[T comparable] struct {
	node       nodeid.ID
	entries    map[Tag]T              // 存活标签 -> 元素
	index      map[T]map[Tag]struct{} // 元素 -> 存活标签
	tombstones map[Tag]Dot            // 已删除标签 -> 删除操作的 Dot
	context    vclock.VectorClock     // 已观察到的所有 add/remove
}

// NewORSet 创建一个新的 ORSet。
func NewORSet[T comparable](node nodeid.ID) *ORSet[T] {
	if err := node.Validate(); err != nil {
		violate(TypeORSet, err.Error())
	}
	return &ORSet[T]{
		node:       node,
		entries:    make(map[Tag]T),
		index:      make(map[T]map[Tag]struct{}),
		tombstones: make(map[Tag]Dot),
		context:    vclock.New(),
	}
}

func (s *ORSet[T]) sealed() {}

func (s *ORSet[T]) Type() Type { return TypeORSet }

func (s *ORSet[T]) Node() nodeid.ID { return s.node }

func (s *ORSet[T]) mustInit() {
	if s.entries == nil || s.context == nil {
		violate(TypeORSet, "ORSet must be created with NewORSet")
	}
}

func (s *ORSet[T]) link(tag Tag, element T) {
	s.entries[tag] = element
	tags := s.index[element]
	if tags == nil {
		tags = make(map[Tag]struct{})
		s.index[element] = tags
	}
	tags[tag] = struct{}{}
}

func (s *ORSet[T]) unlink(tag Tag) {
	element, ok := s.entries[tag]
	if !ok {
		return
	}
	delete(s.entries, tag)
	if tags := s.index[element]; tags != nil {
		delete(tags, tag)
		if len(tags) == 0 {
			delete(s.index, element)
		}
	}
}

// Add 添加一个元素并返回新生成的标签。
func (s *ORSet[T]) Add(element T) Tag {
	s.mustInit()
	tag := Tag{Node: s.node, Seq: s.context.Increment(s.node)}
	s.link(tag, element)
	return tag
}

// Remove 移除一个元素：为本地观察到的该元素的所有存活标签写入墓碑。
// 返回被移除的标签数量；元素不存在时不产生任何操作。
func (s *ORSet[T]) Remove(element T) int {
	s.mustInit()
	tags := s.index[element]
	if len(tags) == 0 {
		return 0
	}
	d := Dot{Node: s.node, Seq: s.context.Increment(s.node)}
	observed := slices.Collect(maps.Keys(tags))
	for _, tag := range observed {
		s.unlink(tag)
		s.tombstones[tag] = d
	}
	return len(observed)
}

func (s *ORSet[T]) Contains(element T) bool {
	return len(s.index[element]) > 0
}

// Tags 返回元素当前的存活标签 (已排序)。
func (s *ORSet[T]) Tags(element T) []Tag {
	tags := slices.Collect(maps.Keys(s.index[element]))
	slices.SortFunc(tags, CompareDots)
	return tags
}

// Tombstoned 报告标签是否已被移除。
func (s *ORSet[T]) Tombstoned(tag Tag) bool {
	_, ok := s.tombstones[tag]
	return ok
}

func (s *ORSet[T]) Len() int { return len(s.index) }

// Elements 返回按规范编码排序的存活元素。
func (s *ORSet[T]) Elements() []T {
	return sortCanonical(slices.Collect(maps.Keys(s.index)))
}

func (s *ORSet[T]) ReadOnly() ReadOnlySet[T] { return AsReadOnlySet[T](s) }

func (s *ORSet[T]) Value() any { return s.Elements() }

func (s *ORSet[T]) Merge(other CRDT) error {
	o, ok := other.(*ORSet[T])
	if !ok || o == nil {
		return mismatch(TypeORSet, other)
	}
	s.mustInit()
	s.join(o.entries, o.tombstones, o.context)
	return nil
}

// join 是 Merge 与 ApplyDelta 共用的路径。
func (s *ORSet[T]) join(entries map[Tag]T, tombstones map[Tag]Dot, context vclock.VectorClock) {
	for tag, d := range tombstones {
		s.unlink(tag)
		if cur, ok := s.tombstones[tag]; !ok || CompareDots(d, cur) < 0 {
			s.tombstones[tag] = d
		}
	}
	for tag, element := range entries {
		if _, live := s.entries[tag]; live {
			continue
		}
		if _, dead := s.tombstones[tag]; dead {
			continue
		}
		// 已观察到但既不存活也没有墓碑：墓碑已被压缩
		if tag.coveredBy(s.context) {
			continue
		}
		s.link(tag, element)
	}
	s.context.Merge(context)
}

func (s *ORSet[T]) Clone() *ORSet[T] {
	c := NewORSet[T](s.node)
	for tag, element := range s.entries {
		c.link(tag, element)
	}
	maps.Copy(c.tombstones, s.tombstones)
	c.context = s.context.Clone()
	return c
}

// WithNode 返回一个以 node 为本地身份的副本。新标签的序号从上下文中该节点的值继续。
func (s *ORSet[T]) WithNode(node nodeid.ID) *ORSet[T] {
	c := s.Clone()
	if err := node.Validate(); err != nil {
		violate(TypeORSet, err.Error())
	}
	c.node = node
	return c
}

// Summary 返回版本摘要：每个节点已观察到的最高序号。
func (s *ORSet[T]) Summary() vclock.VectorClock { return s.context.Clone() }

// ORSetDelta 只包含远端尚未观察到的标签与墓碑，以及发送方的上下文。
type ORSetDelta[T comparable] struct {
	Entries    map[Tag]T
	Tombstones map[Tag]Dot
	Context    vclock.VectorClock
}

func (d ORSetDelta[T]) Empty() bool {
	return len(d.Entries) == 0 && len(d.Tombstones) == 0
}

// Delta 返回 summary 未覆盖的部分。
func (s *ORSet[T]) Delta(summary vclock.VectorClock) ORSetDelta[T] {
	d := ORSetDelta[T]{
		Entries:    make(map[Tag]T),
		Tombstones: make(map[Tag]Dot),
		Context:    s.context.Clone(),
	}
	for tag, element := range s.entries {
		if !tag.coveredBy(summary) {
			d.Entries[tag] = element
		}
	}
	for tag, dot := range s.tombstones {
		if !dot.coveredBy(summary) {
			d.Tombstones[tag] = dot
		}
	}
	return d
}

// ApplyDelta 等价于与仅包含 delta 内容的状态做完整合并。
func (s *ORSet[T]) ApplyDelta(d ORSetDelta[T]) {
	s.mustInit()
	s.join(d.Entries, d.Tombstones, d.Context)
}

// Compact 删除调用方确认已因果稳定的墓碑，返回删除数量。
// 稳定性由外部协作者判定；上下文保留，已压缩的标签不会被旧副本复活。
func (s *ORSet[T]) Compact(stable func(Tag) bool) int {
	count := 0
	for tag := range s.tombstones {
		if stable(tag) {
			delete(s.tombstones, tag)
			count++
		}
	}
	return count
}

type orEntryState[T comparable] struct {
	Tag   Tag `msgpack:"t"`
	Value T   `msgpack:"v"`
}

type orTombState struct {
	Tag Tag `msgpack:"t"`
	Dot Dot `msgpack:"d"`
}

type orBody[T comparable] struct {
	Entries    []orEntryState[T] `msgpack:"entries"`
	Tombstones []orTombState     `msgpack:"tombs"`
	Context    []slotState       `msgpack:"ctx"`
}

type orsetState[T comparable] struct {
	Node       nodeid.ID         `msgpack:"node"`
	Entries    []orEntryState[T] `msgpack:"entries"`
	Tombstones []orTombState     `msgpack:"tombs"`
	Context    []slotState       `msgpack:"ctx"`
}

func newORSetState[T comparable](node nodeid.ID, b orBody[T]) *orsetState[T] {
	return &orsetState[T]{Node: node, Entries: b.Entries, Tombstones: b.Tombstones, Context: b.Context}
}

func (st *orsetState[T]) body() orBody[T] {
	return orBody[T]{Entries: st.Entries, Tombstones: st.Tombstones, Context: st.Context}
}

func encodeORBody[T comparable](entries map[Tag]T, tombstones map[Tag]Dot, ctx vclock.VectorClock) orBody[T] {
	b := orBody[T]{
		Entries:    make([]orEntryState[T], 0, len(entries)),
		Tombstones: make([]orTombState, 0, len(tombstones)),
		Context:    encodeSlots(TypeORSet, ctx),
	}
	for _, tag := range sortedTags(entries) {
		b.Entries = append(b.Entries, orEntryState[T]{Tag: tag, Value: entries[tag]})
	}
	for _, tag := range sortedTags(tombstones) {
		b.Tombstones = append(b.Tombstones, orTombState{Tag: tag, Dot: tombstones[tag]})
	}
	return b
}

func sortedTags[V any](m map[Tag]V) []Tag {
	tags := slices.Collect(maps.Keys(m))
	slices.SortFunc(tags, CompareDots)
	return tags
}

// decodeORBody 校验标签、墓碑和上下文的一致性。
func decodeORBody[T comparable](data []byte, b orBody[T]) (map[Tag]T, map[Tag]Dot, vclock.VectorClock, error) {
	ctx, err := decodeSlots(TypeORSet, data, b.Context)
	if err != nil {
		return nil, nil, nil, err
	}
	entries := make(map[Tag]T, len(b.Entries))
	for _, e := range b.Entries {
		if err := e.Tag.validate(); err != nil {
			return nil, nil, nil, invalid(TypeORSet, data, "tag: %v", err)
		}
		if !e.Tag.coveredBy(ctx) {
			return nil, nil, nil, invalid(TypeORSet, data, "tag %s not covered by context", e.Tag)
		}
		if _, dup := entries[e.Tag]; dup {
			return nil, nil, nil, invalid(TypeORSet, data, "duplicate tag %s", e.Tag)
		}
		entries[e.Tag] = e.Value
	}
	tombstones := make(map[Tag]Dot, len(b.Tombstones))
	for _, ts := range b.Tombstones {
		if err := ts.Tag.validate(); err != nil {
			return nil, nil, nil, invalid(TypeORSet, data, "tombstone tag: %v", err)
		}
		if err := ts.Dot.validate(); err != nil {
			return nil, nil, nil, invalid(TypeORSet, data, "tombstone dot: %v", err)
		}
		if !ts.Tag.coveredBy(ctx) {
			return nil, nil, nil, invalid(TypeORSet, data, "tombstone references unknown tag %s", ts.Tag)
		}
		if !ts.Dot.coveredBy(ctx) {
			return nil, nil, nil, invalid(TypeORSet, data, "tombstone dot %s not covered by context", ts.Dot)
		}
		if _, dup := tombstones[ts.Tag]; dup {
			return nil, nil, nil, invalid(TypeORSet, data, "duplicate tombstone %s", ts.Tag)
		}
		if _, live := entries[ts.Tag]; live {
			return nil, nil, nil, invalid(TypeORSet, data, "tag %s is both live and tombstoned", ts.Tag)
		}
		tombstones[ts.Tag] = ts.Dot
	}
	return entries, tombstones, ctx, nil
}

func (s *ORSet[T]) Bytes() ([]byte, error) {
	s.mustInit()
	return marshal(newORSetState(s.node, encodeORBody(s.entries, s.tombstones, s.context)))
}

func FromBytesORSet[T comparable](data []byte) (*ORSet[T], error) {
	var state orsetState[T]
	if err := unmarshal(TypeORSet, data, &state); err != nil {
		return nil, err
	}
	if err := state.Node.Validate(); err != nil {
		return nil, invalid(TypeORSet, data, "owner: %v", err)
	}
	entries, tombstones, ctx, err := decodeORBody(data, state.body())
	if err != nil {
		return nil, err
	}
	s := NewORSet[T](state.Node)
	for tag, element := range entries {
		s.link(tag, element)
	}
	s.tombstones = tombstones
	s.context = ctx
	return s, nil
}

func (s *ORSet[T]) EncodeSummary() ([]byte, error) {
	return marshal(&slotsState{Slots: encodeSlots(TypeORSet, s.context)})
}

func (s *ORSet[T]) EncodeDelta(summary []byte) ([]byte, error) {
	vc, err := decodeSlotVector(TypeORSet, summary)
	if err != nil {
		return nil, err
	}
	d := s.Delta(vc)
	body := encodeORBody(d.Entries, d.Tombstones, d.Context)
	return marshal(&body)
}

// DecodeORSetDelta 解码并校验 delta。
func DecodeORSetDelta[T comparable](data []byte) (ORSetDelta[T], error) {
	var body orBody[T]
	if err := unmarshal(TypeORSet, data, &body); err != nil {
		return ORSetDelta[T]{}, err
	}
	entries, tombstones, ctx, err := decodeORBody(data, body)
	if err != nil {
		return ORSetDelta[T]{}, err
	}
	return ORSetDelta[T]{Entries: entries, Tombstones: tombstones, Context: ctx}, nil
}

func (s *ORSet[T]) MergeDeltaBytes(delta []byte) error {
	d, err := DecodeORSetDelta[T](delta)
	if err != nil {
		return err
	}
	s.ApplyDelta(d)
	return nil
}
