package crdt

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidData 表示反序列化得到的状态格式错误或内部不一致。
	ErrInvalidData = errors.New("无效的 CRDT 数据")
	// ErrDeserialization 表示底层编码无法解析。
	ErrDeserialization = errors.New("CRDT 反序列化失败")
)

// ValidationError 描述被拒绝的远端状态。
// 校验只发生在反序列化边界，从不在 Merge 内部自动修正。
type ValidationError struct {
	CRDTType   Type
	Reason     string
	DataLength int // 小于 0 表示未知
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: 类型 %d", ErrInvalidData.Error(), e.CRDTType)
	if e.Reason != "" {
		fmt.Fprintf(&b, ", 原因: %s", e.Reason)
	}
	if e.DataLength >= 0 {
		fmt.Fprintf(&b, ", 数据长度: %d", e.DataLength)
	}
	return b.String()
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidData
}

func invalid(t Type, data []byte, format string, args ...any) error {
	return &ValidationError{CRDTType: t, Reason: fmt.Sprintf(format, args...), DataLength: len(data)}
}

// MismatchError 表示 Merge 的参数不是同一具体类型。
type MismatchError struct {
	Want Type
	Got  Type
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("cannot merge %s into %s", e.Got, e.Want)
}

func (e *MismatchError) Unwrap() error {
	return ErrTypeMismatch
}

// PreconditionViolation 是调用方绕过构造函数或破坏不变式时的 panic 值。
// 它是编程错误，不是可恢复的条件。
type PreconditionViolation struct {
	CRDTType Type
	Reason   string
}

func (p PreconditionViolation) Error() string {
	return fmt.Sprintf("crdt precondition violated: %s: %s", p.CRDTType, p.Reason)
}

func violate(t Type, reason string) {
	panic(PreconditionViolation{CRDTType: t, Reason: reason})
}
