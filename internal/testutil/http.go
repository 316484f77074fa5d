// Package testutil 提供测试辅助工具
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"time"
)

// rewriteTransport 把出站请求改写到测试服务器
// 用于让外部搜索服务客户端命中 httptest 服务器
type rewriteTransport struct {
	base *url.URL
	next http.RoundTripper
}

// RoundTrip 实现 http.RoundTripper 接口
func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cloned := *req
	u := *req.URL
	u.Scheme = t.base.Scheme
	u.Host = t.base.Host
	cloned.URL = &u
	return t.next.RoundTrip(&cloned)
}

// NewTestClient 创建指向测试服务器的 HTTP 客户端
func NewTestClient(ts *httptest.Server) *http.Client {
	return NewTestClientWithTimeout(ts, 5*time.Second)
}

// NewTestClientWithTimeout 创建带超时的测试 HTTP 客户端
func NewTestClientWithTimeout(ts *httptest.Server, timeout time.Duration) *http.Client {
	u, _ := url.Parse(ts.URL)
	return &http.Client{
		Timeout: timeout,
		Transport: &rewriteTransport{
			base: u,
			next: http.DefaultTransport,
		},
	}
}
