package schema

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type profileV1 struct {
	Name string `msgpack:"name"`
}

type profileV2 struct {
	Name  string `msgpack:"name"`
	Email string `msgpack:"email"`
}

type profileV3 struct {
	First string `msgpack:"first"`
	Last  string `msgpack:"last"`
	Email string `msgpack:"email"`
}

func encode(t testing.TB, v any) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	require.NoError(t, enc.Encode(v))
	return buf.Bytes()
}

func profileRegistry(t testing.TB) *Registry {
	t.Helper()
	r := NewRegistry("user/profile", 3)
	require.NoError(t, r.Register(1, func(payload []byte) ([]byte, error) {
		var v1 profileV1
		if err := msgpack.Unmarshal(payload, &v1); err != nil {
			return nil, err
		}
		return encode(t, &profileV2{Name: v1.Name}), nil
	}))
	require.NoError(t, r.Register(2, func(payload []byte) ([]byte, error) {
		var v2 profileV2
		if err := msgpack.Unmarshal(payload, &v2); err != nil {
			return nil, err
		}
		first, last, _ := strings.Cut(v2.Name, " ")
		return encode(t, &profileV3{First: first, Last: last, Email: v2.Email}), nil
	}))
	return r
}

// 两个副本分别把同一个 v1 实体升级到 v3，结果逐字节相同。
func TestUpgrade_TwoReplicasConverge(t *testing.T) {
	stored, err := Envelope{Kind: "user/profile", Version: 1, Payload: encode(t, &profileV1{Name: "Ada Lovelace"})}.Bytes()
	require.NoError(t, err)

	left, err := profileRegistry(t).Decode(stored)
	require.NoError(t, err)
	right, err := profileRegistry(t).Decode(stored)
	require.NoError(t, err)
	assert.Equal(t, left, right)

	var v3 profileV3
	require.NoError(t, msgpack.Unmarshal(left, &v3))
	assert.Equal(t, profileV3{First: "Ada", Last: "Lovelace"}, v3)
}

func TestUpgrade_CurrentVersionIsIdentity(t *testing.T) {
	r := profileRegistry(t)
	payload := encode(t, &profileV3{First: "a"})
	data, err := r.Encode(payload)
	require.NoError(t, err)

	got, err := r.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestUpgrade_Rejects(t *testing.T) {
	full := profileRegistry(t)
	gappy := NewRegistry("user/profile", 3)
	require.NoError(t, gappy.Register(2, func(p []byte) ([]byte, error) { return p, nil }))

	tests := []struct {
		name string
		reg  *Registry
		env  Envelope
	}{
		{"unknown kind", full, Envelope{Kind: "user/other", Version: 1}},
		{"version zero", full, Envelope{Kind: "user/profile", Version: 0}},
		{"future version", full, Envelope{Kind: "user/profile", Version: 4}},
		{"gap in chain", gappy, Envelope{Kind: "user/profile", Version: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.reg.Upgrade(tt.env)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSchemaVersion))
			var ve *VersionError
			assert.True(t, errors.As(err, &ve))
		})
	}
	assert.True(t, errors.Is(gappy.Complete(), ErrSchemaVersion))
	assert.NoError(t, full.Complete())
}

func TestUpgrade_MigrationFailure(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry("k", 2)
	require.NoError(t, r.Register(1, func([]byte) ([]byte, error) { return nil, boom }))

	_, err := r.Upgrade(Envelope{Kind: "k", Version: 1})
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "migrate v1 -> v2")
}

func TestRegister_Validation(t *testing.T) {
	r := NewRegistry("k", 3)
	assert.True(t, errors.Is(r.Register(0, func(p []byte) ([]byte, error) { return p, nil }), ErrSchemaVersion))
	assert.True(t, errors.Is(r.Register(3, func(p []byte) ([]byte, error) { return p, nil }), ErrSchemaVersion))
	assert.Error(t, r.Register(1, nil))
	require.NoError(t, r.Register(1, func(p []byte) ([]byte, error) { return p, nil }))
	assert.Error(t, r.Register(1, func(p []byte) ([]byte, error) { return p, nil }), "duplicate")

	assert.Panics(t, func() { NewRegistry("", 1) })
	assert.Panics(t, func() { NewRegistry("k", 0) })
}

func TestDecodeEnvelope(t *testing.T) {
	data, err := Envelope{Kind: "k", Version: 2, Payload: []byte{1, 2}}.Bytes()
	require.NoError(t, err)
	env, err := DecodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, Envelope{Kind: "k", Version: 2, Payload: []byte{1, 2}}, env)

	for name, bad := range map[string][]byte{
		"empty":    nil,
		"garbage":  {0xc1},
		"trailing": append(append([]byte{}, data...), 0x00),
		"no kind":  encode(t, map[string]any{"kind": "", "ver": 1, "payload": []byte{}}),
		"extra":    encode(t, map[string]any{"kind": "k", "ver": 1, "payload": []byte{}, "x": 1}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeEnvelope(bad)
			assert.True(t, errors.Is(err, ErrMalformedEnvelope), "got %v", err)
		})
	}

	_, err = Envelope{Kind: "k"}.Bytes()
	assert.True(t, errors.Is(err, ErrSchemaVersion))
}
