package hlc

import (
	"errors"
	"math"
	"testing"
	"time"
)

// fixedWall 返回一个可手动推进的物理时钟。
func fixedWall(start int64) (*int64, Option) {
	now := start
	return &now, WithWallClock(func() int64 { return now })
}

func TestHLC_New(t *testing.T) {
	clock := New("a")
	if clock.Now().Physical == 0 {
		t.Fatal("新时钟的初始时间应大于 0")
	}
	if clock.Node() != "a" {
		t.Fatalf("节点不匹配: %s", clock.Node())
	}
}

func TestHLC_Monotonicity(t *testing.T) {
	clock := New("a")
	t1 := clock.Now()
	t2 := clock.Now()

	if !t2.After(t1) {
		t.Errorf("时钟非单调递增: t1=%v, t2=%v", t1, t2)
	}
	if t2.Physical < t1.Physical {
		t.Errorf("物理时间倒退")
	}
	if t2.Physical == t1.Physical && t2.Logical <= t1.Logical {
		t.Errorf("同一毫秒内的逻辑时间未增加")
	}
}

func TestHLC_WallClockGoesBackwards(t *testing.T) {
	wall, opt := fixedWall(1000)
	clock := New("a", opt)

	t1 := clock.Now()
	*wall = 500
	t2 := clock.Now()

	if !t2.After(t1) {
		t.Fatalf("物理时钟回拨后时间戳倒退: %v -> %v", t1, t2)
	}
	if t2.Physical != 1000 || t2.Logical != 1 {
		t.Fatalf("unexpected timestamp %v", t2)
	}
}

func TestHLC_Update(t *testing.T) {
	clock := New("a")

	// 模拟接收到来自未来的消息
	futurePhys := time.Now().Add(1 * time.Hour).UnixMilli()
	remote := Timestamp{Physical: futurePhys, Logical: 7, Node: "b"}

	recv := clock.Update(remote)
	if !recv.After(remote) {
		t.Errorf("接收事件时间戳应大于远端: %v <= %v", recv, remote)
	}

	now := clock.Now()
	if now.Physical < futurePhys {
		t.Errorf("时钟未追上将来时间。Got %d, want >= %d", now.Physical, futurePhys)
	}
}

func TestHLC_UpdateNeverMovesBackwards(t *testing.T) {
	_, opt := fixedWall(5000)
	clock := New("a", opt)
	before := clock.Now()

	// 远端时间戳较旧
	got := clock.Update(Timestamp{Physical: 10, Logical: 3, Node: "z"})
	if !got.After(before) {
		t.Fatalf("Update 使时钟倒退: %v -> %v", before, got)
	}
}

func TestHLC_EqualPhysicalTieBreak(t *testing.T) {
	_, optA := fixedWall(100)
	_, optB := fixedWall(100)
	a := New("a", optA)
	b := New("b", optB)

	ta := a.Now()
	tb := b.Now()
	if Compare(ta, tb) == 0 {
		t.Fatalf("不同节点的并发事件得到相同时间戳: %v", ta)
	}
	if !tb.After(ta) {
		t.Fatalf("相同物理与逻辑时间时应以节点 ID 决胜: %v vs %v", ta, tb)
	}
}

func TestHLC_Causality(t *testing.T) {
	// 节点 A
	clockA := New("a")
	tsA := clockA.Now()

	// 节点 B 接收到来自 A 的消息
	clockB := New("b")
	clockB.Update(tsA)

	tsB := clockB.Now()

	// tsB 应该 > tsA
	if !tsB.After(tsA) {
		t.Errorf("违反因果关系: tsB (%v) <= tsA (%v)", tsB, tsA)
	}
}

func TestLogicalRollover(t *testing.T) {
	_, opt := fixedWall(100)
	clock := New("a", opt)
	clock.latest = Timestamp{Physical: 100, Logical: math.MaxUint32, Node: "a"}

	ts := clock.Now()
	if ts.Physical != 101 || ts.Logical != 0 {
		t.Fatalf("逻辑计数溢出应进位到物理时间, got %v", ts)
	}
}

func TestPackUnpack(t *testing.T) {
	ts := Timestamp{Physical: 123456, Logical: 42, Node: "a"}
	got := Unpack(Pack(ts))
	if got.Physical != ts.Physical || got.Logical != ts.Logical {
		t.Fatalf("Pack/Unpack mismatch: %v -> %v", ts, got)
	}

	saturated := Unpack(Pack(Timestamp{Physical: 1, Logical: 1 << 20}))
	if saturated.Logical != 0xFFFF {
		t.Fatalf("logical should saturate, got %d", saturated.Logical)
	}
}

func TestTimestampValidate(t *testing.T) {
	tests := []struct {
		name    string
		ts      Timestamp
		wantErr bool
	}{
		{name: "zero", ts: Timestamp{}, wantErr: false},
		{name: "ok", ts: Timestamp{Physical: 1, Node: "a"}, wantErr: false},
		{name: "negative physical", ts: Timestamp{Physical: -1, Node: "a"}, wantErr: true},
		{name: "missing node", ts: Timestamp{Physical: 1}, wantErr: true},
		{name: "max physical", ts: Timestamp{Physical: MaxPhysical, Node: "a"}, wantErr: false},
		{name: "beyond pack range", ts: Timestamp{Physical: MaxPhysical + 1, Node: "a"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.ts.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdateNeverOverflows(t *testing.T) {
	_, opt := fixedWall(1000)
	clock := New("a", opt)
	before := clock.Now()

	// 超出范围的远端时间戳不能让时钟回绕
	got := clock.Update(Timestamp{Physical: math.MaxInt64, Logical: math.MaxUint32, Node: "b"})
	if got.Physical != MaxPhysical || Compare(got, before) <= 0 {
		t.Fatalf("clock must saturate at MaxPhysical without moving backwards, got %v", got)
	}
	next := clock.Now()
	if Compare(next, got) < 0 || next.Physical < 0 {
		t.Fatalf("clock moved backwards: %v -> %v", got, next)
	}
	if Pack(next) < 0 {
		t.Fatalf("Pack overflowed for %v: %d", next, Pack(next))
	}
}

func TestLogicalRolloverAtMaxPhysical(t *testing.T) {
	_, opt := fixedWall(100)
	clock := New("a", opt)
	clock.latest = Timestamp{Physical: MaxPhysical, Logical: math.MaxUint32, Node: "a"}

	ts := clock.Now()
	if ts.Physical != MaxPhysical || ts.Logical != math.MaxUint32 {
		t.Fatalf("进位不得越过 MaxPhysical, got %v", ts)
	}
}

func TestCheckAndObserve(t *testing.T) {
	_, opt := fixedWall(10_000)
	clock := New("a", opt, WithMaxDrift(500))

	if err := clock.Check(Timestamp{Physical: 10_400, Node: "b"}); err != nil {
		t.Fatalf("timestamp within drift rejected: %v", err)
	}
	if err := clock.Check(Timestamp{Physical: 10_501, Node: "b"}); !errors.Is(err, ErrClockDrift) {
		t.Fatalf("expected ErrClockDrift, got %v", err)
	}
	if err := clock.Check(Timestamp{Physical: MaxPhysical + 1, Node: "b"}); err == nil {
		t.Fatal("out of range physical time must be rejected")
	}

	before := clock.Latest()
	if _, err := clock.Observe(Timestamp{Physical: 99_999, Node: "b"}); err == nil {
		t.Fatal("Observe must reject a far-future timestamp")
	}
	if clock.Latest() != before {
		t.Fatal("rejected timestamp must not advance the clock")
	}

	remote := Timestamp{Physical: 10_200, Logical: 3, Node: "b"}
	got, err := clock.Observe(remote)
	if err != nil {
		t.Fatal(err)
	}
	if !got.After(remote) {
		t.Fatalf("observed timestamp %v must be after %v", got, remote)
	}

	// 未设置 WithMaxDrift 时不限制超前量
	if err := New("a", opt).Check(Timestamp{Physical: MaxPhysical, Node: "b"}); err != nil {
		t.Fatalf("unexpected error without drift limit: %v", err)
	}
}

func TestIsStale(t *testing.T) {
	local := Timestamp{Physical: 10_000, Node: "a"}
	if !IsStale(Timestamp{Physical: 4_000, Node: "b"}, local, 5_000) {
		t.Fatal("6s behind should be stale with a 5s limit")
	}
	if IsStale(Timestamp{Physical: 6_000, Node: "b"}, local, 5_000) {
		t.Fatal("4s behind should not be stale")
	}
}
