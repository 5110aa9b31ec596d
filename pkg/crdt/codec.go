package crdt

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

// marshal 使用确定性的 MessagePack 编码 (map 键排序)。
// 两个副本持有相同状态时产生逐字节相同的输出。
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unmarshal 严格解码：拒绝未知字段和尾随字节。
func unmarshal(t Type, data []byte, v any) error {
	if data == nil {
		return &ValidationError{CRDTType: t, Reason: "输入数据为 nil", DataLength: 0}
	}
	if len(data) == 0 {
		return &ValidationError{CRDTType: t, Reason: "输入数据为空", DataLength: 0}
	}
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	dec.DisallowUnknownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDeserialization, t, err)
	}
	if r.Len() != 0 {
		return invalid(t, data, "尾随 %d 字节", r.Len())
	}
	return nil
}

// canonical 返回值的规范编码，用于对泛型元素进行全序排序。
func canonical[T any](v T) []byte {
	b, err := marshal(v)
	if err != nil {
		// 无法编码的元素类型不能出现在可复制的状态中
		panic(PreconditionViolation{Reason: fmt.Sprintf("element %T is not encodable: %v", v, err)})
	}
	return b
}

type keyedValue[T any] struct {
	key []byte
	val T
}

// sortCanonical 按规范编码对元素排序。
func sortCanonical[T any](elems []T) []T {
	keyed := make([]keyedValue[T], len(elems))
	for i, e := range elems {
		keyed[i] = keyedValue[T]{key: canonical(e), val: e}
	}
	slices.SortFunc(keyed, func(a, b keyedValue[T]) int {
		return bytes.Compare(a.key, b.key)
	})
	out := make([]T, len(elems))
	for i := range keyed {
		out[i] = keyed[i].val
	}
	return out
}

// compareCanonical 通过规范编码比较两个值。
func compareCanonical[T any](a, b T) int {
	return bytes.Compare(canonical(a), canonical(b))
}
