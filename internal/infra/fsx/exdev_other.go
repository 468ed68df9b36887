//go:build !unix

package fsx

// 非 unix 平台没有稳定的 EXDEV 判定，统一按普通 rename 错误处理。
func isEXDEV(error) bool { return false }
