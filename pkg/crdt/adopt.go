package crdt

import (
	"github.com/shinyes/crdt_kit/pkg/hlc"
	"github.com/shinyes/crdt_kit/pkg/nodeid"
)

// Adopt 把从远端解码得到的状态交给本地副本：以 node 为本地身份，
// LWW 寄存器绑定 clock。返回的是副本，c 本身不变。
func Adopt(c CRDT, node nodeid.ID, clock *hlc.Clock) CRDT {
	return c.adopt(node, clock)
}

// DecodeAs 以 template 的具体类型 (包括元素类型) 解码 data。
func DecodeAs(template CRDT, data []byte) (CRDT, error) {
	return template.decodeSame(data)
}

func (c *GCounter) adopt(node nodeid.ID, _ *hlc.Clock) CRDT  { return c.WithNode(node) }
func (c *PNCounter) adopt(node nodeid.ID, _ *hlc.Clock) CRDT { return c.WithNode(node) }

func (r *LWWRegister[T]) adopt(_ nodeid.ID, clock *hlc.Clock) CRDT {
	c := r.Clone()
	c.SetClock(clock)
	return c
}

func (r *MVRegister[T]) adopt(node nodeid.ID, _ *hlc.Clock) CRDT { return r.WithNode(node) }
func (s *GSet[T]) adopt(nodeid.ID, *hlc.Clock) CRDT             { return s.Clone() }
func (s *TwoPSet[T]) adopt(nodeid.ID, *hlc.Clock) CRDT          { return s.Clone() }
func (s *ORSet[T]) adopt(node nodeid.ID, _ *hlc.Clock) CRDT     { return s.WithNode(node) }
func (r *RGA[T]) adopt(node nodeid.ID, _ *hlc.Clock) CRDT       { return r.Fork(node) }
func (t *Text) adopt(node nodeid.ID, _ *hlc.Clock) CRDT         { return t.Fork(node) }

func (c *GCounter) decodeSame(data []byte) (CRDT, error) {
	return loaded[*GCounter](FromBytesGCounter(data))
}

func (c *PNCounter) decodeSame(data []byte) (CRDT, error) {
	return loaded[*PNCounter](FromBytesPNCounter(data))
}

func (r *LWWRegister[T]) decodeSame(data []byte) (CRDT, error) {
	return loaded[*LWWRegister[T]](FromBytesLWW[T](data))
}

func (r *MVRegister[T]) decodeSame(data []byte) (CRDT, error) {
	return loaded[*MVRegister[T]](FromBytesMVRegister[T](data))
}

func (s *GSet[T]) decodeSame(data []byte) (CRDT, error) {
	return loaded[*GSet[T]](FromBytesGSet[T](data))
}

func (s *TwoPSet[T]) decodeSame(data []byte) (CRDT, error) {
	return loaded[*TwoPSet[T]](FromBytesTwoPSet[T](data))
}

func (s *ORSet[T]) decodeSame(data []byte) (CRDT, error) {
	return loaded[*ORSet[T]](FromBytesORSet[T](data))
}

func (r *RGA[T]) decodeSame(data []byte) (CRDT, error) {
	return loaded[*RGA[T]](FromBytesRGA[T](data))
}

func (t *Text) decodeSame(data []byte) (CRDT, error) {
	return loaded[*Text](FromBytesText(data))
}
