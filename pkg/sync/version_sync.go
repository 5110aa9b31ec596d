package sync

import (
	"bytes"

	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/shinyes/crdt_kit/pkg/crdt"
)

// Digest 构建本地所有实例的版本摘要。
func (r *Replica) Digest() (Digest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := Digest{
		Node:    r.node,
		Clock:   r.clock.Latest(),
		Entries: make(map[string]DigestEntry, len(r.instances)),
	}
	for name, c := range r.instances {
		e := DigestEntry{Type: c.Type()}
		if dc, ok := c.(crdt.DeltaCRDT); ok {
			summary, err := dc.EncodeSummary()
			if err != nil {
				return Digest{}, errors.Wrapf(err, "digest %s", name)
			}
			e.Summary = summary
		}
		d.Entries[name] = e
	}
	return d, nil
}

// Prepare 根据对端摘要生成需要补发的消息。
// 对端已知的 delta 类型实例只发送差异，其余实例发送完整状态。
// 摘要相同的 delta 实例与类型冲突的实例被跳过。
func (r *Replica) Prepare(peer Digest) ([]Message, error) {
	if err := peer.validate(); err != nil {
		return nil, errors.Wrap(err, "prepare")
	}
	if err := r.observe(peer.Clock); err != nil {
		return nil, errors.Wrapf(err, "prepare for %s", peer.Node)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.clock.Now()
	var out []Message
	for _, name := range r.names() {
		c := r.instances[name]
		msg := Message{From: r.node, Clock: ts, Name: name, Type: c.Type()}

		entry, known := peer.Entries[name]
		if known && entry.Type != c.Type() {
			level.Warn(r.logger).Log(
				"msg", "skipping instance with conflicting type",
				"peer", peer.Node,
				"name", name,
				"local", c.Type(),
				"remote", entry.Type,
			)
			continue
		}

		dc, isDelta := c.(crdt.DeltaCRDT)
		if known && isDelta && len(entry.Summary) > 0 {
			local, err := dc.EncodeSummary()
			if err != nil {
				return nil, errors.Wrapf(err, "prepare %s", name)
			}
			if bytes.Equal(local, entry.Summary) {
				continue
			}
			delta, err := dc.EncodeDelta(entry.Summary)
			if err != nil {
				return nil, errors.Wrapf(err, "prepare delta %s for %s", name, peer.Node)
			}
			msg.Kind, msg.Payload = KindDelta, delta
		} else {
			state, err := crdt.Seal(c)
			if err != nil {
				return nil, errors.Wrapf(err, "prepare state %s", name)
			}
			msg.Kind, msg.Payload = KindState, state
		}
		out = append(out, msg)
	}

	level.Debug(r.logger).Log("msg", "prepared sync messages", "peer", peer.Node, "count", len(out))
	return out, nil
}
