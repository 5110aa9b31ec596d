// Package sync 在宿主一侧协调 CRDT 副本之间的状态交换。
// 它不做任何 I/O：Digest、Prepare 与 Receive 产出和消费可编码的消息，
// 由宿主选择传输方式。
package sync

import (
	"slices"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/shinyes/crdt_kit/pkg/crdt"
	"github.com/shinyes/crdt_kit/pkg/hlc"
	"github.com/shinyes/crdt_kit/pkg/nodeid"
)

// Replica 持有一个节点的所有具名 CRDT 实例。
// 一把互斥锁串行化所有访问，实例本身不做同步。
type Replica struct {
	mu        sync.Mutex
	node      nodeid.ID
	clock     *hlc.Clock
	instances map[string]crdt.CRDT
	logger    log.Logger
	metrics   *Metrics
}

// Option 定制 Replica。
type Option func(*Replica)

// WithLogger 设置日志记录器，默认不输出。
func WithLogger(logger log.Logger) Option {
	return func(r *Replica) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics 设置计数器，默认丢弃。
func WithMetrics(m *Metrics) Option {
	return func(r *Replica) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithClock 使用外部时钟。时钟必须属于同一节点。
func WithClock(clock *hlc.Clock) Option {
	return func(r *Replica) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewReplica 为 node 创建副本。
func NewReplica(node nodeid.ID, opts ...Option) (*Replica, error) {
	if err := node.Validate(); err != nil {
		return nil, errors.Wrap(err, "new replica")
	}
	r := &Replica{
		node:      node,
		instances: make(map[string]crdt.CRDT),
		logger:    log.NewNopLogger(),
		metrics:   NewDiscardMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.clock == nil {
		r.clock = hlc.New(node)
	}
	if r.clock.Node() != node {
		return nil, errors.Wrapf(ErrForeignOwner, "clock belongs to %s, replica is %s", r.clock.Node(), node)
	}
	r.logger = log.With(r.logger, "node", node)
	return r, nil
}

// Node 返回副本所属节点。
func (r *Replica) Node() nodeid.ID { return r.node }

// Clock 返回副本共享的 HLC 时钟。
func (r *Replica) Clock() *hlc.Clock { return r.clock }

type owned interface {
	Node() nodeid.ID
}

type clocked interface {
	SetClock(*hlc.Clock)
}

// Register 以 name 登记实例。带节点身份的实例必须属于本副本；
// LWW 寄存器会被绑定到副本的时钟。
func (r *Replica) Register(name string, c crdt.CRDT) error {
	if name == "" {
		return errors.New("register: empty name")
	}
	if c == nil {
		return errors.Errorf("register %s: nil crdt", name)
	}
	if o, ok := c.(owned); ok && o.Node() != r.node {
		return errors.Wrapf(ErrForeignOwner, "register %s: owner %s", name, o.Node())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.instances[name]; dup {
		return errors.Wrapf(ErrDuplicateInstance, "register %s", name)
	}
	if lc, ok := c.(clocked); ok {
		lc.SetClock(r.clock)
	}
	r.instances[name] = c
	return nil
}

// Do 在持锁状态下对实例执行 fn。fn 不得在返回后保留 c。
func (r *Replica) Do(name string, fn func(c crdt.CRDT) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.instances[name]
	if !ok {
		return errors.Wrapf(ErrUnknownInstance, "do %s", name)
	}
	return fn(c)
}

// Snapshot 返回实例的信封封装状态。
func (r *Replica) Snapshot(name string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.instances[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownInstance, "snapshot %s", name)
	}
	data, err := crdt.Seal(c)
	if err != nil {
		return nil, errors.Wrapf(err, "snapshot %s", name)
	}
	return data, nil
}

// Names 返回已登记的实例名，按字典序。
func (r *Replica) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.names()
}

func (r *Replica) names() []string {
	names := make([]string, 0, len(r.instances))
	for name := range r.instances {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// observe 校验远端时间戳并用它推进本地时钟。
func (r *Replica) observe(ts hlc.Timestamp) error {
	if ts.IsZero() {
		return nil
	}
	_, err := r.clock.Observe(ts)
	return err
}

func (r *Replica) reject(msg Message, reason string, err error) error {
	r.metrics.Rejected.With("reason", reason).Add(1)
	level.Warn(r.logger).Log(
		"msg", "rejected sync message",
		"from", msg.From,
		"name", msg.Name,
		"kind", msg.Kind,
		"reason", reason,
		"err", err,
	)
	return errors.Wrapf(err, "receive %s from %s", msg.Name, msg.From)
}
