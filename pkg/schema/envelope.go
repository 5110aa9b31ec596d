// Package schema 提供版本信封与确定性的迁移链。
// 持久化或传输的状态总是带版本号，读取方在使用前将其升级到当前版本。
package schema

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrSchemaVersion 表示信封引用了无法识别的迁移路径。
	ErrSchemaVersion = errors.New("不支持的 schema 版本")
	// ErrMalformedEnvelope 表示信封本身无法解析。
	ErrMalformedEnvelope = errors.New("信封格式错误")
)

// Envelope 是带类型和版本的载荷外壳。
type Envelope struct {
	Kind    string `msgpack:"kind"`
	Version uint32 `msgpack:"ver"`
	Payload []byte `msgpack:"payload"`
}

// Bytes 编码信封。
func (e Envelope) Bytes() ([]byte, error) {
	if e.Kind == "" {
		return nil, fmt.Errorf("%w: 缺少 kind", ErrMalformedEnvelope)
	}
	if e.Version == 0 {
		return nil, &VersionError{Kind: e.Kind, Reason: "版本号不能为 0"}
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEnvelope 严格解码信封：拒绝未知字段和尾随字节。
// 版本号的合法性由 Registry 判定。
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if len(data) == 0 {
		return e, fmt.Errorf("%w: 输入为空", ErrMalformedEnvelope)
	}
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	dec.DisallowUnknownFields(true)
	if err := dec.Decode(&e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if r.Len() != 0 {
		return Envelope{}, fmt.Errorf("%w: 尾随 %d 字节", ErrMalformedEnvelope, r.Len())
	}
	if e.Kind == "" {
		return Envelope{}, fmt.Errorf("%w: 缺少 kind", ErrMalformedEnvelope)
	}
	return e, nil
}

// VersionError 描述无法识别的版本或迁移路径。不做任何猜测。
type VersionError struct {
	Kind    string
	Version uint32
	Current uint32
	Reason  string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("%s: kind=%q version=%d current=%d: %s",
		ErrSchemaVersion.Error(), e.Kind, e.Version, e.Current, e.Reason)
}

func (e *VersionError) Unwrap() error { return ErrSchemaVersion }
