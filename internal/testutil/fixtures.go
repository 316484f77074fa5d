// Package testutil 提供测试辅助工具
package testutil

import (
	"strings"
	"testing"
)

// AssertHelper 提供断言相关的测试辅助
type AssertHelper struct {
	t *testing.T
}

// NewAssertHelper 创建断言辅助器
func NewAssertHelper(t *testing.T) *AssertHelper {
	return &AssertHelper{t: t}
}

// NoError 断言没有错误
func (h *AssertHelper) NoError(err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
}

// Error 断言有错误
func (h *AssertHelper) Error(err error) {
	h.t.Helper()
	if err == nil {
		h.t.Fatal("expected error, got nil")
	}
}

// ErrorContains 断言错误信息包含指定子串
func (h *AssertHelper) ErrorContains(err error, substr string) {
	h.t.Helper()
	if err == nil {
		h.t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), substr) {
		h.t.Fatalf("error %q does not contain %q", err.Error(), substr)
	}
}

// Equal 断言相等
func (h *AssertHelper) Equal(expected, actual interface{}) {
	h.t.Helper()
	if expected != actual {
		h.t.Fatalf("expected %v, got %v", expected, actual)
	}
}

// True 断言为真
func (h *AssertHelper) True(condition bool) {
	h.t.Helper()
	if !condition {
		h.t.Fatal("expected true, got false")
	}
}
