package sync

import (
	"testing"

	"github.com/shinyes/crdt_kit/pkg/crdt"
	"github.com/shinyes/crdt_kit/pkg/hlc"
	"github.com/shinyes/crdt_kit/pkg/nodeid"
	"github.com/stretchr/testify/require"
)

func newTestReplica(t *testing.T, node nodeid.ID, opts ...Option) *Replica {
	t.Helper()
	clock := hlc.New(node, hlc.WithWallClock(func() int64 { return 1_000 }))
	r, err := NewReplica(node, append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return r
}

// registerAll 在副本上登记每种类型各一个实例。
func registerAll(t *testing.T, r *Replica) {
	t.Helper()
	node := r.Node()
	instances := map[string]crdt.CRDT{
		"hits":     crdt.NewGCounter(node),
		"balance":  crdt.NewPNCounter(node),
		"title":    crdt.NewLWWRegister[string](nil),
		"owner":    crdt.NewMVRegister[string](node),
		"seen":     crdt.NewGSet[string](),
		"banned":   crdt.NewTwoPSet[string](),
		"cart":     crdt.NewORSet[string](node),
		"playlist": crdt.NewRGA[string](node),
		"doc":      crdt.NewText(node),
	}
	for name, c := range instances {
		require.NoError(t, r.Register(name, c))
	}
}

// edit 在每个实例上做一次带节点标记的本地修改。
func edit(t *testing.T, r *Replica) {
	t.Helper()
	tag := string(r.Node())
	ops := map[string]func(c crdt.CRDT) error{
		"hits":    func(c crdt.CRDT) error { c.(*crdt.GCounter).IncrementBy(uint64(len(tag)) + 2); return nil },
		"balance": func(c crdt.CRDT) error { c.(*crdt.PNCounter).Add(-int64(len(tag))); return nil },
		"title":   func(c crdt.CRDT) error { c.(*crdt.LWWRegister[string]).Set("title-" + tag); return nil },
		"owner":   func(c crdt.CRDT) error { c.(*crdt.MVRegister[string]).Set(tag); return nil },
		"seen":    func(c crdt.CRDT) error { c.(*crdt.GSet[string]).Add(tag); return nil },
		"banned": func(c crdt.CRDT) error {
			s := c.(*crdt.TwoPSet[string])
			s.Add(tag)
			s.Add("spam-" + tag)
			s.Remove("spam-" + tag)
			return nil
		},
		"cart": func(c crdt.CRDT) error { c.(*crdt.ORSet[string]).Add("item-" + tag); return nil },
		"playlist": func(c crdt.CRDT) error {
			_, err := c.(*crdt.RGA[string]).InsertAt(0, "song-"+tag)
			return err
		},
		"doc": func(c crdt.CRDT) error { return c.(*crdt.Text).InsertStr(0, tag+";") },
	}
	for name, op := range ops {
		require.NoError(t, r.Do(name, op), name)
	}
}

// values 收集所有实例的用户可见值。
func values(t *testing.T, r *Replica) map[string]any {
	t.Helper()
	out := make(map[string]any)
	for _, name := range r.Names() {
		require.NoError(t, r.Do(name, func(c crdt.CRDT) error {
			out[name] = c.Value()
			return nil
		}))
	}
	return out
}
