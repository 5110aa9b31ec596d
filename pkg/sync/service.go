package sync

import (
	"github.com/pkg/errors"
)

// Service 是副本之间交换状态的协议面。*Replica 实现它，
// 日志与计数装饰器包装它。
type Service interface {
	Digest() (Digest, error)
	Prepare(peer Digest) ([]Message, error)
	Receive(msg Message) error
}

var _ Service = (*Replica)(nil)

// Pull 让 dst 从 src 拉取一轮：dst 的摘要交给 src，src 生成的消息交给 dst。
// 返回 dst 接受的消息数。遇到第一条被拒绝的消息即停止。
func Pull(dst, src Service) (int, error) {
	digest, err := dst.Digest()
	if err != nil {
		return 0, errors.Wrap(err, "pull")
	}
	msgs, err := src.Prepare(digest)
	if err != nil {
		return 0, errors.Wrap(err, "pull")
	}
	for i, msg := range msgs {
		if err := dst.Receive(msg); err != nil {
			return i, errors.Wrap(err, "pull")
		}
	}
	return len(msgs), nil
}

// Exchange 在 a 与 b 之间做一轮双向交换。
func Exchange(a, b Service) error {
	if _, err := Pull(a, b); err != nil {
		return err
	}
	_, err := Pull(b, a)
	return err
}
