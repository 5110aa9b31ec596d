package sync

import (
	"bytes"
	"fmt"

	"github.com/shinyes/crdt_kit/pkg/crdt"
	"github.com/shinyes/crdt_kit/pkg/hlc"
	"github.com/shinyes/crdt_kit/pkg/nodeid"
	"github.com/vmihailenco/msgpack/v5"
)

// MessageKind 区分消息载荷。
type MessageKind uint8

const (
	// KindState 载荷是 crdt.Seal 封装的完整状态。
	KindState MessageKind = 1
	// KindDelta 载荷是 EncodeDelta 的输出。
	KindDelta MessageKind = 2
)

func (k MessageKind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindDelta:
		return "delta"
	default:
		return "unknown"
	}
}

// DigestEntry 描述一个实例的版本摘要。非 delta 类型的 Summary 为空。
type DigestEntry struct {
	Type    crdt.Type `msgpack:"type"`
	Summary []byte    `msgpack:"summary"`
}

// Digest 是副本的版本摘要，对端据此决定补发什么。
type Digest struct {
	Node    nodeid.ID              `msgpack:"node"`
	Clock   hlc.Timestamp          `msgpack:"clock"`
	Entries map[string]DigestEntry `msgpack:"entries"`
}

// Message 携带一个实例的 delta 或完整状态。
type Message struct {
	From    nodeid.ID     `msgpack:"from"`
	Clock   hlc.Timestamp `msgpack:"clock"`
	Name    string        `msgpack:"name"`
	Type    crdt.Type     `msgpack:"type"`
	Kind    MessageKind   `msgpack:"kind"`
	Payload []byte        `msgpack:"payload"`
}

func (d Digest) validate() error {
	if err := d.Node.Validate(); err != nil {
		return fmt.Errorf("%w: digest node: %v", ErrMalformedMessage, err)
	}
	if err := d.Clock.Validate(); err != nil {
		return fmt.Errorf("%w: digest clock: %v", ErrMalformedMessage, err)
	}
	for name, e := range d.Entries {
		if name == "" {
			return fmt.Errorf("%w: digest entry without name", ErrMalformedMessage)
		}
		if !e.Type.Valid() {
			return fmt.Errorf("%w: digest entry %q has unknown type %d", ErrMalformedMessage, name, e.Type)
		}
	}
	return nil
}

func (m Message) validate() error {
	if err := m.From.Validate(); err != nil {
		return fmt.Errorf("%w: sender: %v", ErrMalformedMessage, err)
	}
	if err := m.Clock.Validate(); err != nil {
		return fmt.Errorf("%w: clock: %v", ErrMalformedMessage, err)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: missing name", ErrMalformedMessage)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("%w: unknown type %d", ErrMalformedMessage, m.Type)
	}
	if m.Kind != KindState && m.Kind != KindDelta {
		return fmt.Errorf("%w: unknown kind %d", ErrMalformedMessage, m.Kind)
	}
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}
	return nil
}

// Bytes 确定性编码摘要。
func (d Digest) Bytes() ([]byte, error) {
	if d.Entries == nil {
		d.Entries = map[string]DigestEntry{}
	}
	return encode(&d)
}

// DecodeDigest 严格解码并校验摘要。
func DecodeDigest(data []byte) (Digest, error) {
	var d Digest
	if err := decode(data, &d); err != nil {
		return Digest{}, err
	}
	if err := d.validate(); err != nil {
		return Digest{}, err
	}
	return d, nil
}

// Bytes 确定性编码消息。
func (m Message) Bytes() ([]byte, error) {
	return encode(&m)
}

// DecodeMessage 严格解码并校验消息的外层字段。载荷在 Receive 时校验。
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := decode(data, &m); err != nil {
		return Message{}, err
	}
	if err := m.validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty input", ErrMalformedMessage)
	}
	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	dec.DisallowUnknownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedMessage, r.Len())
	}
	return nil
}
