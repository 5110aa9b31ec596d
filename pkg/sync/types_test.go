package sync

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shinyes/crdt_kit/pkg/crdt"
	"github.com/shinyes/crdt_kit/pkg/hlc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestDigestBytes(t *testing.T) {
	a := newTestReplica(t, "a")
	registerAll(t, a)
	edit(t, a)

	d, err := a.Digest()
	require.NoError(t, err)
	require.Len(t, d.Entries, 9)
	assert.NotEmpty(t, d.Entries["cart"].Summary)
	assert.Empty(t, d.Entries["doc"].Summary)

	first, err := d.Bytes()
	require.NoError(t, err)
	second, err := d.Bytes()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	decoded, err := DecodeDigest(first)
	require.NoError(t, err)
	assert.Equal(t, d.Node, decoded.Node)
	assert.Equal(t, d.Clock, decoded.Clock)
	assert.Equal(t, d.Entries["hits"], decoded.Entries["hits"])

	empty, err := Digest{Node: "b"}.Bytes()
	require.NoError(t, err)
	decoded, err = DecodeDigest(empty)
	require.NoError(t, err)
	assert.Empty(t, decoded.Entries)
}

func TestMessageBytes(t *testing.T) {
	m := Message{
		From:    "a",
		Clock:   hlc.Timestamp{Physical: 10, Logical: 2, Node: "a"},
		Name:    "hits",
		Type:    crdt.TypeGCounter,
		Kind:    KindDelta,
		Payload: []byte{0x80},
	}
	data, err := m.Bytes()
	require.NoError(t, err)

	decoded, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	valid, err := Message{From: "a", Name: "x", Type: crdt.TypeGSet, Kind: KindState, Payload: []byte{1}}.Bytes()
	require.NoError(t, err)

	withField := func(extra map[string]any) []byte {
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetSortMapKeys(true)
		require.NoError(t, enc.Encode(extra))
		return buf.Bytes()
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte{0xc1}},
		{"trailing", append(append([]byte{}, valid...), 0x00)},
		{"unknown field", withField(map[string]any{"from": "a", "name": "x", "type": 5, "kind": 1, "payload": []byte{1}, "extra": true})},
		{"bad kind", withField(map[string]any{"from": "a", "name": "x", "type": 5, "kind": 9, "payload": []byte{1}})},
		{"no name", withField(map[string]any{"from": "a", "type": 5, "kind": 1, "payload": []byte{1}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage(tt.data)
			assert.True(t, errors.Is(err, ErrMalformedMessage), "got %v", err)
		})
	}

	_, err = DecodeDigest(withField(map[string]any{"node": "", "entries": map[string]any{}}))
	assert.True(t, errors.Is(err, ErrMalformedMessage))
	_, err = DecodeDigest(withField(map[string]any{
		"node":    "a",
		"entries": map[string]any{"x": map[string]any{"type": 0x42}},
	}))
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}
