// Package gemini implements remote.Generator on top of the Gemini
// generateContent REST endpoint, guarded by a circuit breaker.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/feizhen/virtual-try-on/internal/remote"
)

const (
	// DefaultBaseURL 是官方 Generative Language API 地址。
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultModel 是图像生成默认使用的模型。
	DefaultModel = "gemini-2.5-flash-image-preview"

	maxErrorBody = 4 << 10
)

var (
	// ErrBlocked 表示请求被安全策略拦截，不计入熔断失败。
	ErrBlocked = errors.New("gemini blocked the request")
	// ErrNoCandidates 表示响应中没有候选结果。
	ErrNoCandidates = errors.New("gemini returned no candidates")
	// ErrNoImage 表示候选结果中找不到图像数据。
	ErrNoImage = errors.New("no image found in gemini response")

	dataURLPattern = regexp.MustCompile(`data:image/[^;]+;base64,([A-Za-z0-9+/=]+)`)
)

// APIError 携带非 2xx 响应的状态码与错误信息。
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error: status=%d message=%s", e.StatusCode, e.Message)
}

// Config 描述 Gemini 客户端参数。
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	AuthHeader string

	// BreakerThreshold 为连续失败多少次后熔断，0 表示关闭熔断。
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

// Client 调用 generateContent 并从响应中提取图像字节。
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *logrus.Logger
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

// New 构建 Client；httpClient 为空时使用 http.DefaultClient。
func New(httpClient *http.Client, cfg Config, logger *logrus.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}

	c := &Client{httpClient: httpClient, cfg: cfg, logger: logger}
	if cfg.BreakerThreshold > 0 {
		cooldown := cfg.BreakerCooldown
		if cooldown <= 0 {
			cooldown = time.Minute
		}
		threshold := cfg.BreakerThreshold
		c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "gemini",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrBlocked)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"action":  "breaker_state",
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("circuit breaker state changed")
			},
		})
	}
	return c
}

// Configured 报告是否已配置 API Key。
func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

// Model 返回默认模型。
func (c *Client) Model() string {
	return c.cfg.Model
}

// BreakerState 返回熔断器状态，未启用时为 disabled。
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// Generate 实现 remote.Generator。熔断打开时直接返回 gobreaker.ErrOpenState。
func (c *Client) Generate(ctx context.Context, req remote.Request) ([]byte, error) {
	if !c.Configured() {
		return nil, remote.ErrNotConfigured
	}
	if c.breaker == nil {
		return c.generate(ctx, req)
	}
	return c.breaker.Execute(func() ([]byte, error) {
		return c.generate(ctx, req)
	})
}

func (c *Client) generate(ctx context.Context, req remote.Request) ([]byte, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.cfg.Model
	}

	body, err := json.Marshal(buildPayload(req))
	if err != nil {
		return nil, fmt.Errorf("encode gemini payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(model), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.applyAuth(httpReq)

	started := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"action":     "gemini_call",
		"model":      model,
		"status":     resp.StatusCode,
		"images":     len(req.Images),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Debug("gemini responded")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, readAPIError(resp)
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	return extractImage(parsed)
}

func (c *Client) endpoint(model string) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, url.PathEscape(model))
}

// applyAuth 默认使用 key 查询参数；配置 AuthHeader 时改为 Bearer 头，兼容自建代理。
func (c *Client) applyAuth(req *http.Request) {
	if header := strings.TrimSpace(c.cfg.AuthHeader); header != "" {
		req.Header.Set(header, "Bearer "+c.cfg.APIKey)
		return
	}
	query := req.URL.Query()
	query.Set("key", c.cfg.APIKey)
	req.URL.RawQuery = query.Encode()
}

func buildPayload(req remote.Request) generateRequest {
	parts := make([]requestPart, 0, len(req.Images)+1)
	parts = append(parts, requestPart{Text: req.Prompt})
	for _, img := range req.Images {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, requestPart{InlineData: &inlineBlob{
			MIMEType: mime,
			Data:     base64.StdEncoding.EncodeToString(img.Data),
		}})
	}

	cfg := generationConfig{ResponseMIMEType: "image/png"}
	if req.Seed != nil {
		seed := *req.Seed
		cfg.Seed = &seed
		cfg.RandomSeed = &seed
	}

	return generateRequest{
		Contents:           []content{{Role: "user", Parts: parts}},
		GenerationConfig:   cfg,
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
}

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(raw))

	var envelope errorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &APIError{StatusCode: resp.StatusCode, Message: message}
}

// extractImage 依次查找 inline 图像数据与文本中的 data URL。
func extractImage(resp generateResponse) ([]byte, error) {
	if len(resp.Candidates) == 0 {
		if reason := resp.blockReason(); reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrBlocked, reason)
		}
		return nil, ErrNoCandidates
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if blob := part.inline(); blob != nil && blob.Data != "" && strings.HasPrefix(blob.mimeType(), "image/") {
				data, err := base64.StdEncoding.DecodeString(blob.Data)
				if err == nil {
					return data, nil
				}
			}
			if part.Text == "" {
				continue
			}
			if match := dataURLPattern.FindStringSubmatch(part.Text); match != nil {
				if data, err := base64.StdEncoding.DecodeString(match[1]); err == nil {
					return data, nil
				}
			}
		}
	}

	return nil, fmt.Errorf("%w: finishReason=%s", ErrNoImage, resp.Candidates[0].FinishReason)
}
