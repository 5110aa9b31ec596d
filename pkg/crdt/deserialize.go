package crdt

import (
	"fmt"
	"strings"

	"github.com/shinyes/crdt_kit/pkg/schema"
)

// CodecVersion 是当前状态编码的版本。
const CodecVersion uint32 = 1

const kindPrefix = "crdt/"

var registries = func() map[Type]*schema.Registry {
	m := make(map[Type]*schema.Registry, len(typeNames))
	for t := range typeNames {
		m[t] = schema.NewRegistry(t.Kind(), CodecVersion)
	}
	return m
}()

// Kind 返回 t 在版本信封中使用的 kind，例如 "crdt/orset"。
func (t Type) Kind() string { return kindPrefix + t.String() }

// TypeOfKind 解析信封 kind。
func TypeOfKind(kind string) (Type, bool) {
	name, ok := strings.CutPrefix(kind, kindPrefix)
	if !ok {
		return 0, false
	}
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// Deserialize 按类型分发解码。泛型类型使用 string 元素。
func Deserialize(t Type, data []byte) (CRDT, error) {
	switch t {
	case TypeGCounter:
		return loaded[*GCounter](FromBytesGCounter(data))
	case TypePNCounter:
		return loaded[*PNCounter](FromBytesPNCounter(data))
	case TypeLWWRegister:
		return loaded[*LWWRegister[string]](FromBytesLWW[string](data))
	case TypeMVRegister:
		return loaded[*MVRegister[string]](FromBytesMVRegister[string](data))
	case TypeGSet:
		return loaded[*GSet[string]](FromBytesGSet[string](data))
	case TypeTwoPSet:
		return loaded[*TwoPSet[string]](FromBytesTwoPSet[string](data))
	case TypeORSet:
		return loaded[*ORSet[string]](FromBytesORSet[string](data))
	case TypeRGA:
		return loaded[*RGA[string]](FromBytesRGA[string](data))
	case TypeText:
		return loaded[*Text](FromBytesText(data))
	default:
		return nil, &ValidationError{CRDTType: t, Reason: "未知的 CRDT 类型", DataLength: len(data)}
	}
}

// loaded 避免把 nil 指针装进非 nil 接口。
func loaded[C CRDT](c C, err error) (CRDT, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Seal 将状态封装进版本信封。
func Seal(c CRDT) ([]byte, error) {
	if c == nil {
		return nil, &ValidationError{Reason: "CRDT 不能为 nil", DataLength: -1}
	}
	payload, err := c.Bytes()
	if err != nil {
		return nil, fmt.Errorf("seal %s: %w", c.Type(), err)
	}
	return registries[c.Type()].Encode(payload)
}

// OpenPayload 解开信封并升级到当前编码版本，返回类型和载荷。
func OpenPayload(data []byte) (Type, []byte, error) {
	env, err := schema.DecodeEnvelope(data)
	if err != nil {
		return 0, nil, err
	}
	t, ok := TypeOfKind(env.Kind)
	if !ok {
		return 0, nil, &schema.VersionError{Kind: env.Kind, Version: env.Version, Current: CodecVersion, Reason: "未知 kind"}
	}
	up, err := registries[t].Upgrade(env)
	if err != nil {
		return 0, nil, err
	}
	return t, up.Payload, nil
}

// Open 解开信封并以默认元素类型解码状态。
func Open(data []byte) (CRDT, error) {
	t, payload, err := OpenPayload(data)
	if err != nil {
		return nil, err
	}
	return Deserialize(t, payload)
}
