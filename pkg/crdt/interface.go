package crdt

import (
	"errors"

	"github.com/shinyes/crdt_kit/pkg/hlc"
	"github.com/shinyes/crdt_kit/pkg/nodeid"
)

// Type 标识 CRDT 的类型。
type Type byte

const (
	TypeGCounter    Type = 0x01
	TypePNCounter   Type = 0x02
	TypeLWWRegister Type = 0x03
	TypeMVRegister  Type = 0x04
	TypeGSet        Type = 0x05
	TypeTwoPSet     Type = 0x06
	TypeORSet       Type = 0x07
	TypeRGA         Type = 0x08
	TypeText        Type = 0x09
)

var typeNames = map[Type]string{
	TypeGCounter:    "gcounter",
	TypePNCounter:   "pncounter",
	TypeLWWRegister: "lww",
	TypeMVRegister:  "mvregister",
	TypeGSet:        "gset",
	TypeTwoPSet:     "2pset",
	TypeORSet:       "orset",
	TypeRGA:         "rga",
	TypeText:        "text",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Valid 报告 t 是否为已知类型。
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

var (
	ErrTypeMismatch = errors.New("CRDT 类型不匹配")
)

// CRDT 是所有 CRDT 实现的通用接口。
// 该接口是封闭的：只有本包中的九种类型实现它。
//
// 实现不做内部同步；宿主在多个 goroutine 间共享实例时需要自行加锁。
type CRDT interface {
	// Type 返回 CRDT 的类型。
	Type() Type

	// Value 返回 CRDT 的面向用户的值。
	Value() any

	// Merge 将另一个 CRDT 状态合并到此状态中。
	// 只修改接收者，从不修改参数。类型不匹配时返回错误且不做任何修改。
	Merge(other CRDT) error

	// Bytes 将 CRDT 状态序列化为字节 (确定性编码)。
	Bytes() ([]byte, error)

	adopt(node nodeid.ID, clock *hlc.Clock) CRDT
	decodeSame(data []byte) (CRDT, error)
	sealed()
}

// DeltaCRDT 扩展了 CRDT 以支持基于 Delta 的同步。
// 远端提供版本摘要，本地据此计算远端尚未观察到的差异。
type DeltaCRDT interface {
	CRDT

	// EncodeSummary 返回本地版本摘要的字节表示。
	EncodeSummary() ([]byte, error)

	// EncodeDelta 解码远端摘要并返回远端缺失部分的字节表示。
	EncodeDelta(summary []byte) ([]byte, error)

	// MergeDeltaBytes 解码并应用 delta。重复应用同一 delta 是空操作。
	MergeDeltaBytes(delta []byte) error
}

// ReadOnlySet 定义了集合类 CRDT 的只读接口。
type ReadOnlySet[T comparable] interface {
	Contains(element T) bool
	Elements() []T
	Len() int
}

// ReadOnlySequence 定义了 RGA 的只读接口。
type ReadOnlySequence[T any] interface {
	Len() int
	Get(index int) (T, bool)
	Values() []T
	Iterator() func() (T, bool)
}

var (
	_ ReadOnlySet[string]      = (*GSet[string])(nil)
	_ ReadOnlySet[string]      = (*TwoPSet[string])(nil)
	_ ReadOnlySet[string]      = (*ORSet[string])(nil)
	_ ReadOnlySequence[string] = (*RGA[string])(nil)

	_ DeltaCRDT = (*GCounter)(nil)
	_ DeltaCRDT = (*PNCounter)(nil)
	_ DeltaCRDT = (*ORSet[string])(nil)
	_ CRDT      = (*LWWRegister[string])(nil)
	_ CRDT      = (*MVRegister[string])(nil)
	_ CRDT      = (*Text)(nil)
)

func mismatch(want Type, other CRDT) error {
	if other == nil {
		return &ValidationError{CRDTType: want, Reason: "合并的 CRDT 不能为 nil", DataLength: -1}
	}
	return &MismatchError{Want: want, Got: other.Type()}
}
