package core

// IsZeroVector 全零向量是 embedding 失败时的降级值，存储与检索都据此跳过向量
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
