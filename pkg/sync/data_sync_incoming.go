package sync

import (
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/shinyes/crdt_kit/pkg/crdt"
)

// Receive 校验并应用一条消息。被拒绝的消息不会修改任何状态。
// 携带完整状态而本地尚未登记的实例会被采纳，泛型类型使用 string 元素；
// 其他元素类型需要先在本地 Register。
func (r *Replica) Receive(msg Message) error {
	if err := msg.validate(); err != nil {
		return r.reject(msg, "malformed", err)
	}
	if !msg.Clock.IsZero() {
		if err := r.clock.Check(msg.Clock); err != nil {
			return r.reject(msg, "clock", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	switch msg.Kind {
	case KindDelta:
		err = r.applyDelta(msg)
	default:
		err = r.mergeState(msg)
	}
	if err != nil {
		return err
	}
	if !msg.Clock.IsZero() {
		r.clock.Update(msg.Clock)
	}
	return nil
}

func (r *Replica) applyDelta(msg Message) error {
	c, ok := r.instances[msg.Name]
	if !ok {
		return r.reject(msg, "unknown", ErrUnknownInstance)
	}
	if c.Type() != msg.Type {
		return r.reject(msg, "type", &crdt.MismatchError{Want: c.Type(), Got: msg.Type})
	}
	dc, ok := c.(crdt.DeltaCRDT)
	if !ok {
		return r.reject(msg, "malformed", errors.Wrapf(ErrMalformedMessage, "%s has no delta form", c.Type()))
	}
	if err := dc.MergeDeltaBytes(msg.Payload); err != nil {
		return r.reject(msg, "invalid", err)
	}
	r.metrics.Deltas.With("type", c.Type().String()).Add(1)
	level.Debug(r.logger).Log("msg", "applied delta", "from", msg.From, "name", msg.Name)
	return nil
}

func (r *Replica) mergeState(msg Message) error {
	t, payload, err := crdt.OpenPayload(msg.Payload)
	if err != nil {
		return r.reject(msg, "version", err)
	}
	if t != msg.Type {
		return r.reject(msg, "type", &crdt.MismatchError{Want: msg.Type, Got: t})
	}

	c, ok := r.instances[msg.Name]
	if !ok {
		remote, err := crdt.Deserialize(t, payload)
		if err != nil {
			return r.reject(msg, "invalid", err)
		}
		r.instances[msg.Name] = crdt.Adopt(remote, r.node, r.clock)
		r.metrics.Merges.With("type", t.String()).Add(1)
		level.Info(r.logger).Log("msg", "adopted instance", "from", msg.From, "name", msg.Name, "type", t)
		return nil
	}

	if c.Type() != t {
		return r.reject(msg, "type", &crdt.MismatchError{Want: c.Type(), Got: t})
	}
	remote, err := crdt.DecodeAs(c, payload)
	if err != nil {
		return r.reject(msg, "invalid", err)
	}
	if err := c.Merge(remote); err != nil {
		return r.reject(msg, "type", err)
	}
	r.metrics.Merges.With("type", t.String()).Add(1)
	level.Debug(r.logger).Log("msg", "merged state", "from", msg.From, "name", msg.Name)
	return nil
}
