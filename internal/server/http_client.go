package server

import (
	"net"
	"net/http"
	"time"

	"github.com/feizhen/virtual-try-on/internal/config"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewGeneratorClient 返回调用生成后端的共享 http.Client。单次请求的超时由
// 调用方 context 控制，这里的 Timeout 只是兜底上限。
func NewGeneratorClient(cfg *config.Config) *http.Client {
	timeout := 600 * time.Second
	if cfg != nil && cfg.Gemini.RequestTimeout.DurationValue() > 0 {
		timeout = cfg.Gemini.RequestTimeout.DurationValue()
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: defaultTransport.Clone(),
	}
}
