package crdt

// deepCopyValue 尝试对值进行深拷贝，主要处理 []byte 类型
func deepCopyValue[T any](value T) T {
	// 尝试处理 []byte 类型
	if bytesVal, ok := any(value).([]byte); ok {
		if bytesVal == nil {
			return value
		}
		copied := make([]byte, len(bytesVal))
		copy(copied, bytesVal)
		return any(copied).(T)
	}
	// 其他类型假设是不可变的或可以浅拷贝的
	return value
}
