package hlc

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
)

// MaxPhysical 是可表示的最大物理时间 (毫秒)，即 Pack 使用的 48 位有符号范围的上限。
const MaxPhysical int64 = 1<<47 - 1

// ErrClockDrift 表示远端时间戳超前本地物理时间过多。
var ErrClockDrift = errors.New("hlc: remote timestamp too far in the future")

// Timestamp 是混合逻辑时钟的时间戳。
// 排序规则：先比较 Physical，再比较 Logical，最后比较 Node，均为升序。
type Timestamp struct {
	Physical int64     `msgpack:"p"` // 物理时间 (Unix 毫秒)
	Logical  uint32    `msgpack:"l"` // 逻辑计数器
	Node     nodeid.ID `msgpack:"n"` // 产生该时间戳的节点
}

// Compare 比较两个 HLC 时间戳。
// 返回值:
//   - 如果 a > b: 返回 1
//   - 如果 a == b: 返回 0
//   - 如果 a < b: 返回 -1
func Compare(a, b Timestamp) int {
	// 首先比较物理时间
	if a.Physical > b.Physical {
		return 1
	}
	if a.Physical < b.Physical {
		return -1
	}

	// 物理时间相等，比较逻辑时间
	if a.Logical > b.Logical {
		return 1
	}
	if a.Logical < b.Logical {
		return -1
	}

	return nodeid.Compare(a.Node, b.Node)
}

// After 报告 t 是否严格大于 other。
func (t Timestamp) After(other Timestamp) bool {
	return Compare(t, other) > 0
}

// IsZero 报告 t 是否为零值时间戳。
func (t Timestamp) IsZero() bool {
	return t.Physical == 0 && t.Logical == 0 && t.Node == ""
}

// Validate 检查从远端解码的时间戳。
func (t Timestamp) Validate() error {
	if t.IsZero() {
		return nil
	}
	if t.Physical < 0 {
		return fmt.Errorf("negative physical time %d", t.Physical)
	}
	if t.Physical > MaxPhysical {
		return fmt.Errorf("physical time %d exceeds %d", t.Physical, MaxPhysical)
	}
	if err := t.Node.Validate(); err != nil {
		return fmt.Errorf("timestamp node: %w", err)
	}
	return nil
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%d@%s", t.Physical, t.Logical, t.Node)
}

// Clock 代表混合逻辑时钟。
// 它保证单调递增，并跟踪因果关系。一个副本的所有 CRDT 实例可以共享同一个 Clock。
type Clock struct {
	mu     sync.Mutex
	node   nodeid.ID
	latest Timestamp // 当前已知的最大 HLC 时间戳
	wall   func() int64
	drift  int64 // 允许远端超前的最大毫秒数，0 表示不限制
}

// Option 定制 Clock。
type Option func(*Clock)

// WithWallClock 替换物理时间来源 (毫秒)。主要用于测试。
func WithWallClock(wall func() int64) Option {
	return func(c *Clock) {
		if wall != nil {
			c.wall = wall
		}
	}
}

// WithMaxDrift 限制 Check 与 Observe 接受的远端超前量 (毫秒)。
func WithMaxDrift(ms int64) Option {
	return func(c *Clock) {
		if ms > 0 {
			c.drift = ms
		}
	}
}

// New 为指定节点创建一个新的 HLC 时钟。
func New(node nodeid.ID, opts ...Option) *Clock {
	c := &Clock{
		node: node,
		wall: func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Node 返回时钟所属节点。
func (c *Clock) Node() nodeid.ID { return c.node }

// Latest 返回最近一次产生或观察到的时间戳 (不推进时钟)。
func (c *Clock) Latest() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// Now 返回当前的 HLC 时间戳，并更新内部状态。
// 它确保返回的时间戳严格大于任何先前返回的时间戳或更新的时间戳。
func (c *Clock) Now() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	phys := clampPhysical(c.wall())
	oldPhys, oldLogical := c.latest.Physical, c.latest.Logical

	var newPhys int64
	var newLogical uint64
	if phys > oldPhys {
		// 物理时间推进：重置逻辑计数
		newPhys = phys
		newLogical = 0
	} else {
		// 物理时间倒退或相等：增加逻辑计数
		newPhys = oldPhys
		newLogical = uint64(oldLogical) + 1
	}

	c.latest = c.pack(newPhys, newLogical)
	return c.latest
}

// Check 校验远端时间戳，并在设置了 WithMaxDrift 时拒绝超前过多的时间戳。
func (c *Clock) Check(remote Timestamp) error {
	if err := remote.Validate(); err != nil {
		return err
	}
	if c.drift > 0 && remote.Physical-clampPhysical(c.wall()) > c.drift {
		return fmt.Errorf("%w: %s is more than %dms ahead", ErrClockDrift, remote, c.drift)
	}
	return nil
}

// Observe 在 Check 通过后以 remote 推进时钟。
func (c *Clock) Observe(remote Timestamp) (Timestamp, error) {
	if err := c.Check(remote); err != nil {
		return Timestamp{}, err
	}
	return c.Update(remote), nil
}

// Update 根据接收到的远程时间戳推进本地时钟，并返回一个接收事件时间戳。
// 返回值严格大于之前的本地时间戳和 remote，本地时钟永远不会倒退。
// remote 应先通过 Validate；超出范围的物理时间按 MaxPhysical 处理。
func (c *Clock) Update(remote Timestamp) Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	remote.Physical = clampPhysical(remote.Physical)
	phys := clampPhysical(c.wall())
	oldPhys, oldLogical := c.latest.Physical, c.latest.Logical

	// newPhys = max(oldPhys, remotePhys, phys)
	newPhys := oldPhys
	if remote.Physical > newPhys {
		newPhys = remote.Physical
	}
	if phys > newPhys {
		newPhys = phys
	}

	var newLogical uint64
	switch {
	case newPhys == oldPhys && newPhys == remote.Physical:
		newLogical = uint64(max(oldLogical, remote.Logical)) + 1
	case newPhys == oldPhys:
		newLogical = uint64(oldLogical) + 1
	case newPhys == remote.Physical:
		newLogical = uint64(remote.Logical) + 1
	default:
		newLogical = 0
	}

	c.latest = c.pack(newPhys, newLogical)
	return c.latest
}

// pack 处理逻辑计数溢出：溢出时物理时间进位。
// 到达 MaxPhysical 后时钟停在最大值，不会回绕。
func (c *Clock) pack(phys int64, logical uint64) Timestamp {
	phys = clampPhysical(phys)
	if logical > math.MaxUint32 {
		if phys == MaxPhysical {
			logical = math.MaxUint32
		} else {
			phys++
			logical = 0
		}
	}
	return Timestamp{Physical: phys, Logical: uint32(logical), Node: c.node}
}

func clampPhysical(phys int64) int64 {
	switch {
	case phys < 0:
		return 0
	case phys > MaxPhysical:
		return MaxPhysical
	default:
		return phys
	}
}

// IsStale 判断 remote 的物理时间是否比 local 落后超过 maxDiffMs 毫秒。
func IsStale(remote, local Timestamp, maxDiffMs int64) bool {
	return local.Physical-remote.Physical > maxDiffMs
}

const (
	logicalBits = 16
	logicalMask = 0xFFFF
)

// Pack 将时间戳打包为 int64 (高 48 位物理毫秒，低 16 位逻辑计数)，节点信息被丢弃。
// 逻辑计数超过 16 位时饱和，物理时间限制在 [0, MaxPhysical]。用于向压缩钩子传递因果稳定下限。
func Pack(ts Timestamp) int64 {
	ts.Physical = clampPhysical(ts.Physical)
	logical := int64(ts.Logical)
	if logical > logicalMask {
		logical = logicalMask
	}
	return ts.Physical<<logicalBits | logical
}

// Unpack 是 Pack 的逆操作 (不含节点)。
func Unpack(packed int64) Timestamp {
	return Timestamp{
		Physical: packed >> logicalBits,
		Logical:  uint32(packed & logicalMask),
	}
}
