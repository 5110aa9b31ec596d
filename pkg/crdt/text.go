package crdt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
)

// ErrInvalidUTF8 表示插入的字符串不是合法的 UTF-8。
var ErrInvalidUTF8 = errors.New("文本不是合法的 UTF-8")

// Text 是基于 RGA 的协同文本，每个字符 (rune) 一个元素。
type Text struct {
	seq *RGA[rune]
}

func NewText(node nodeid.ID) *Text {
	return &Text{seq: NewRGA[rune](node)}
}

func (t *Text) sealed() {}

func (t *Text) Type() Type { return TypeText }

func (t *Text) Node() nodeid.ID { return t.seq.node }

func (t *Text) mustInit() {
	if t.seq == nil {
		violate(TypeText, "Text must be created with NewText")
	}
}

// InsertStr 在字符位置 pos 插入字符串。s 必须是合法的 UTF-8，否则不做任何修改。
func (t *Text) InsertStr(pos int, s string) error {
	t.mustInit()
	if !utf8.ValidString(s) {
		return fmt.Errorf("insert at %d: %w", pos, ErrInvalidUTF8)
	}
	anchor, err := t.seq.anchorFor(pos)
	if err != nil {
		return err
	}
	for _, ch := range s {
		anchor = t.seq.insertAfter(anchor, ch)
	}
	return nil
}

// RemoveRange 删除 [start, end) 范围内的字符。
func (t *Text) RemoveRange(start, end int) error {
	t.mustInit()
	n := t.seq.Len()
	if start < 0 || end > n || start > end {
		return fmt.Errorf("remove range [%d, %d) (len %d): %w", start, end, n, ErrIndexOutOfRange)
	}
	if start == end {
		return nil
	}
	for _, id := range t.seq.visible[start:end] {
		t.seq.vertices[id].deleted = true
	}
	t.seq.invalidate()
	return nil
}

func (t *Text) String() string {
	if t.seq == nil {
		return ""
	}
	var b strings.Builder
	t.seq.ensureOrder()
	for _, id := range t.seq.visible {
		b.WriteRune(t.seq.vertices[id].value)
	}
	return b.String()
}

// Len 返回字符数。
func (t *Text) Len() int {
	if t.seq == nil {
		return 0
	}
	return t.seq.Len()
}

func (t *Text) Value() any { return t.String() }

// Sequence 返回底层 RGA 的只读视图。
func (t *Text) Sequence() ReadOnlySequence[rune] { return AsReadOnlySequence(t.seq) }

func (t *Text) Merge(other CRDT) error {
	o, ok := other.(*Text)
	if !ok || o == nil || o.seq == nil {
		return mismatch(TypeText, other)
	}
	t.mustInit()
	return t.seq.Merge(o.seq)
}

func (t *Text) Clone() *Text {
	return &Text{seq: t.seq.Clone()}
}

// Fork 以新的节点身份克隆完整的因果副本，用于独立编辑后再合并。
func (t *Text) Fork(node nodeid.ID) *Text {
	return &Text{seq: t.seq.Fork(node)}
}

// Compact 见 RGA.Compact。
func (t *Text) Compact(stable func(ID) bool) int {
	return t.seq.Compact(stable)
}

func (t *Text) Bytes() ([]byte, error) {
	t.mustInit()
	return t.seq.Bytes()
}

func FromBytesText(data []byte) (*Text, error) {
	seq, err := decodeRGA[rune](TypeText, data)
	if err != nil {
		return nil, err
	}
	return &Text{seq: seq}, nil
}
