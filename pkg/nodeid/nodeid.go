// Package nodeid 定义副本 (replica) 的身份标识。
package nodeid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxLength 是节点 ID 的最大字节长度。
const MaxLength = 256

// ID 是副本的全局唯一标识，在副本生命周期内不可变。
// ID 之间按字节序全序比较，用作所有 CRDT 的决胜规则 (tie-break)。
type ID string

// New 生成一个新的节点 ID (UUIDv7，失败时回退到 UUIDv4)。
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		return ID(uuid.NewString())
	}
	return ID(id.String())
}

// Validate 检查 ID 是否可用于 CRDT 状态。
func (id ID) Validate() error {
	if id == "" {
		return fmt.Errorf("node id cannot be empty")
	}
	if len(id) > MaxLength {
		return fmt.Errorf("node id too long: %d bytes, max %d", len(id), MaxLength)
	}
	return nil
}

func (id ID) String() string { return string(id) }

// Compare 比较两个 ID。返回 -1, 0 或 1。
func Compare(a, b ID) int {
	return strings.Compare(string(a), string(b))
}
