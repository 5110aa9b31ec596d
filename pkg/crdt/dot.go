package crdt

import (
	"cmp"
	"fmt"

	"github.com/shinyes/crdt_kit/pkg/nodeid"
	"github.com/shinyes/crdt_kit/pkg/vclock"
)

// Dot 是 (节点, 序号) 对，唯一标识一次本地操作。序号从 1 开始，永不复用。
type Dot struct {
	Node nodeid.ID `msgpack:"n"`
	Seq  uint64    `msgpack:"s"`
}

// Tag 是 ORSet 中每次 add 操作的唯一标签。
type Tag = Dot

func (d Dot) String() string { return fmt.Sprintf("%s:%d", d.Node, d.Seq) }

// CompareDots 先比较节点，再比较序号。
func CompareDots(a, b Dot) int {
	if c := nodeid.Compare(a.Node, b.Node); c != 0 {
		return c
	}
	return cmp.Compare(a.Seq, b.Seq)
}

// coveredBy 报告 dot 是否已被上下文观察到。
func (d Dot) coveredBy(vc vclock.VectorClock) bool {
	return vc.Covers(d.Node, d.Seq)
}

func (d Dot) validate() error {
	if err := d.Node.Validate(); err != nil {
		return err
	}
	if d.Seq == 0 {
		return fmt.Errorf("dot %s has zero sequence", d)
	}
	return nil
}
