package schema

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Migration 将 v(n) 的载荷转换为 v(n+1)。必须是确定性的纯函数：
// 所有副本对同一输入得到逐字节相同的输出。
type Migration func(payload []byte) ([]byte, error)

// Registry 保存某个 kind 的迁移链 v1 -> v2 -> ... -> current。
// 注册通常在初始化阶段完成，之后可以并发读取。
type Registry struct {
	kind    string
	current uint32

	mu         sync.RWMutex
	migrations map[uint32]Migration // from -> from+1
}

// NewRegistry 创建一个迁移注册表。current 为 0 或 kind 为空属于编程错误。
func NewRegistry(kind string, current uint32) *Registry {
	if kind == "" || current == 0 {
		panic(fmt.Sprintf("schema: invalid registry kind=%q current=%d", kind, current))
	}
	return &Registry{kind: kind, current: current, migrations: make(map[uint32]Migration)}
}

func (r *Registry) Kind() string { return r.kind }

func (r *Registry) Current() uint32 { return r.current }

// Register 注册 from -> from+1 的迁移。
func (r *Registry) Register(from uint32, m Migration) error {
	if m == nil {
		return errors.Errorf("schema %s: nil migration from v%d", r.kind, from)
	}
	if from == 0 || from >= r.current {
		return &VersionError{Kind: r.kind, Version: from, Current: r.current, Reason: "迁移起点超出范围"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.migrations[from]; dup {
		return errors.Errorf("schema %s: migration from v%d already registered", r.kind, from)
	}
	r.migrations[from] = m
	return nil
}

// Complete 报告迁移链是否完整。
func (r *Registry) Complete() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for v := uint32(1); v < r.current; v++ {
		if _, ok := r.migrations[v]; !ok {
			return &VersionError{Kind: r.kind, Version: v, Current: r.current, Reason: "迁移链缺口"}
		}
	}
	return nil
}

// Upgrade 依次应用迁移直到当前版本。信封已是当前版本时原样返回。
func (r *Registry) Upgrade(env Envelope) (Envelope, error) {
	if env.Kind != r.kind {
		return Envelope{}, &VersionError{Kind: env.Kind, Version: env.Version, Current: r.current,
			Reason: fmt.Sprintf("未知 kind, 期望 %q", r.kind)}
	}
	if env.Version == 0 {
		return Envelope{}, &VersionError{Kind: env.Kind, Current: r.current, Reason: "版本号不能为 0"}
	}
	if env.Version > r.current {
		return Envelope{}, &VersionError{Kind: env.Kind, Version: env.Version, Current: r.current, Reason: "版本高于当前版本"}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for v := env.Version; v < r.current; v++ {
		if _, ok := r.migrations[v]; !ok {
			return Envelope{}, &VersionError{Kind: env.Kind, Version: v, Current: r.current, Reason: "迁移链缺口"}
		}
	}

	payload := env.Payload
	for v := env.Version; v < r.current; v++ {
		next, err := r.migrations[v](payload)
		if err != nil {
			return Envelope{}, errors.Wrapf(err, "schema %s: migrate v%d -> v%d", r.kind, v, v+1)
		}
		payload = next
	}
	return Envelope{Kind: r.kind, Version: r.current, Payload: payload}, nil
}

// Encode 以当前版本封装载荷。
func (r *Registry) Encode(payload []byte) ([]byte, error) {
	return Envelope{Kind: r.kind, Version: r.current, Payload: payload}.Bytes()
}

// Decode 解码信封并升级到当前版本，返回载荷。
func (r *Registry) Decode(data []byte) ([]byte, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	up, err := r.Upgrade(env)
	if err != nil {
		return nil, err
	}
	return up.Payload, nil
}
