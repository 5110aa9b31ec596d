package main

import (
	"fmt"
	"os"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/shinyes/crdt_kit/pkg/crdt"
	"github.com/shinyes/crdt_kit/pkg/hlc"
	"github.com/shinyes/crdt_kit/pkg/nodeid"
	"github.com/shinyes/crdt_kit/pkg/sync"
)

func main() {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = level.NewFilter(logger, level.AllowInfo())
	logger = log.With(logger, "ts", log.DefaultTimestampUTC)

	reg := prom.NewRegistry()
	m, err := sync.NewPrometheusMetrics(reg, "crdtkit")
	if err != nil {
		level.Error(logger).Log("msg", "failed to register metrics", "err", err)
		os.Exit(1)
	}

	fmt.Println("=== crdt_kit API 示例 ===")

	laptop := newReplica(logger, m, "laptop")
	phone := newReplica(logger, m, "phone")

	// 1. 两端离线编辑
	must(laptop.Do("cart", func(c crdt.CRDT) error {
		s := c.(*crdt.ORSet[string])
		s.Add("milk")
		s.Add("eggs")
		return nil
	}))
	must(laptop.Do("note", func(c crdt.CRDT) error { return c.(*crdt.Text).InsertStr(0, "buy food") }))
	must(phone.Do("title", func(c crdt.CRDT) error {
		c.(*crdt.LWWRegister[string]).Set("Weekend")
		return nil
	}))

	// 2. 经过字节边界交换一轮
	relay(logger, laptop, phone)
	relay(logger, phone, laptop)

	// 3. 并发修改：手机删除 milk，笔记本追加文字
	must(phone.Do("cart", func(c crdt.CRDT) error {
		c.(*crdt.ORSet[string]).Remove("milk")
		return nil
	}))
	must(laptop.Do("note", func(c crdt.CRDT) error { return c.(*crdt.Text).InsertStr(8, " today") }))

	relay(logger, laptop, phone)
	relay(logger, phone, laptop)

	for _, r := range []*sync.Replica{laptop, phone} {
		for _, name := range r.Names() {
			must(r.Do(name, func(c crdt.CRDT) error {
				fmt.Printf("%-7s %-5s %v\n", r.Node(), name, c.Value())
				return nil
			}))
		}
	}
}

func newReplica(logger log.Logger, m *sync.Metrics, name string) *sync.Replica {
	node := nodeid.ID(name + "-" + string(nodeid.New())[:8])
	clock := hlc.New(node, hlc.WithMaxDrift(time.Minute.Milliseconds()))
	r, err := sync.NewReplica(node, sync.WithClock(clock), sync.WithLogger(logger), sync.WithMetrics(m))
	must(err)
	must(r.Register("cart", crdt.NewORSet[string](node)))
	must(r.Register("note", crdt.NewText(node)))
	must(r.Register("title", crdt.NewLWWRegister[string](nil)))
	return r
}

// relay 把 src 生成的消息编码后交给 dst，模拟一次传输。
func relay(logger log.Logger, dst, src *sync.Replica) {
	digest, err := dst.Digest()
	must(err)
	wire, err := digest.Bytes()
	must(err)
	peer, err := sync.DecodeDigest(wire)
	must(err)

	msgs, err := sync.NewLoggingService(src, logger).Prepare(peer)
	must(err)
	for _, msg := range msgs {
		data, err := msg.Bytes()
		must(err)
		decoded, err := sync.DecodeMessage(data)
		must(err)
		must(dst.Receive(decoded))
	}
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
