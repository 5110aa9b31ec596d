package crdt

import (
	"github.com/shinyes/crdt_kit/pkg/hlc"
)

// LWWRegister 实现最后写入胜出 (Last-Write-Wins) 寄存器。
// 时间戳更大者胜出；时间戳包含节点 ID，因此相同物理/逻辑时间时节点 ID 较大者胜出。
type LWWRegister[T any] struct {
	clock     *hlc.Clock
	value     T
	timestamp hlc.Timestamp
}

// NewLWWRegister 创建一个新的 LWWRegister。clock 用于为本地写入打时间戳。
func NewLWWRegister[T any](clock *hlc.Clock) *LWWRegister[T] {
	return &LWWRegister[T]{clock: clock}
}

func (r *LWWRegister[T]) sealed() {}

func (r *LWWRegister[T]) Type() Type { return TypeLWWRegister }

// SetClock 为解码得到的寄存器关联本地时钟，并把时钟推进到已存时间戳之后，
// 使随后的本地写入胜出当前值。
func (r *LWWRegister[T]) SetClock(clock *hlc.Clock) {
	r.clock = clock
	if clock != nil && !r.timestamp.IsZero() {
		clock.Update(r.timestamp)
	}
}

// Set 使用本地时钟的当前时间写入值。
func (r *LWWRegister[T]) Set(value T) hlc.Timestamp {
	if r.clock == nil {
		violate(TypeLWWRegister, "Set requires a clock; use SetAt or SetClock")
	}
	ts := r.clock.Now()
	r.SetAt(value, ts)
	return ts
}

// SetAt 以给定时间戳写入值。只有当 (ts, value) 胜出当前状态时才生效，返回是否生效。
func (r *LWWRegister[T]) SetAt(value T, ts hlc.Timestamp) bool {
	if !r.wins(value, ts) {
		return false
	}
	r.value = value
	r.timestamp = ts
	return true
}

// wins 判断 (value, ts) 是否胜出当前状态。
// 时间戳完全相等 (同一节点同一计数器) 时比较值的规范编码，使规则成为全序。
func (r *LWWRegister[T]) wins(value T, ts hlc.Timestamp) bool {
	switch c := hlc.Compare(ts, r.timestamp); {
	case c > 0:
		return true
	case c < 0:
		return false
	default:
		if ts.IsZero() {
			return false
		}
		return compareCanonical(value, r.value) > 0
	}
}

// Get 返回当前值；从未写入时 ok 为 false。
func (r *LWWRegister[T]) Get() (value T, ok bool) {
	return r.value, !r.timestamp.IsZero()
}

func (r *LWWRegister[T]) Value() any { return r.value }

// Timestamp 返回当前值的时间戳。
func (r *LWWRegister[T]) Timestamp() hlc.Timestamp { return r.timestamp }

func (r *LWWRegister[T]) Merge(other CRDT) error {
	o, ok := other.(*LWWRegister[T])
	if !ok || o == nil {
		return mismatch(TypeLWWRegister, other)
	}
	if r.clock != nil && !o.timestamp.IsZero() {
		r.clock.Update(o.timestamp)
	}
	if r.wins(o.value, o.timestamp) {
		r.value = deepCopyValue(o.value)
		r.timestamp = o.timestamp
	}
	return nil
}

func (r *LWWRegister[T]) Clone() *LWWRegister[T] {
	return &LWWRegister[T]{
		clock:     r.clock,
		value:     deepCopyValue(r.value),
		timestamp: r.timestamp,
	}
}

type lwwState[T any] struct {
	Value     T             `msgpack:"value"`
	Timestamp hlc.Timestamp `msgpack:"ts"`
}

// Bytes 序列化 LWWRegister (不含时钟)。
func (r *LWWRegister[T]) Bytes() ([]byte, error) {
	return marshal(&lwwState[T]{Value: r.value, Timestamp: r.timestamp})
}

// FromBytesLWW 反序列化 LWWRegister。返回的寄存器没有时钟，需要 SetClock 后才能 Set。
func FromBytesLWW[T any](data []byte) (*LWWRegister[T], error) {
	var state lwwState[T]
	if err := unmarshal(TypeLWWRegister, data, &state); err != nil {
		return nil, err
	}
	if err := state.Timestamp.Validate(); err != nil {
		return nil, invalid(TypeLWWRegister, data, "%v", err)
	}
	return &LWWRegister[T]{value: state.Value, timestamp: state.Timestamp}, nil
}
