package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/feizhen/virtual-try-on/internal/operation"
)

const supportedStorageTypes = "none|local|s3"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", fmt.Sprintf("无法识别的日志级别: %s", g.LogLevel))
	}
	if g.CacheCapacity <= 0 {
		return newFieldError("Global.CacheCapacity", "必须大于 0")
	}
	if g.MaxConcurrent <= 0 {
		return newFieldError("Global.MaxConcurrent", "必须大于 0")
	}
	if g.MinTimeout.DurationValue() <= 0 {
		return newFieldError("Global.MinTimeout", "必须大于 0")
	}
	if g.MaxTimeout.DurationValue() < g.MinTimeout.DurationValue() {
		return newFieldError("Global.MaxTimeout", "不能小于 MinTimeout")
	}
	if d := g.DefaultTimeout.DurationValue(); d < g.MinTimeout.DurationValue() || d > g.MaxTimeout.DurationValue() {
		return newFieldError("Global.DefaultTimeout", "必须位于 MinTimeout 与 MaxTimeout 之间")
	}
	if d := g.HeartbeatInterval.DurationValue(); d < 0 || d > MaxHeartbeatInterval {
		return newFieldError("Global.HeartbeatInterval", "必须在 0-60s，0 表示关闭")
	}
	if g.MaxUploadSize <= 0 {
		return newFieldError("Global.MaxUploadSize", "必须大于 0")
	}

	switch g.StorageType {
	case StorageNone:
	case StorageLocal:
		if strings.TrimSpace(g.StoragePath) == "" {
			return newFieldError("Global.StoragePath", "local 存储不能为空")
		}
	case StorageS3:
		if err := c.S3.validate(); err != nil {
			return err
		}
	default:
		return newFieldError("Global.StorageType", "仅支持 "+supportedStorageTypes)
	}

	if err := c.Gemini.validate(); err != nil {
		return err
	}

	seen := map[string]struct{}{}
	for i := range c.Operations {
		op := &c.Operations[i]
		key := strings.ToLower(strings.TrimSpace(op.Key))
		if key == "" {
			return newFieldError("Operation[].Key", "不能为空")
		}
		op.Key = key
		if _, exists := seen[key]; exists {
			return newFieldError(operationField(key, "Key"), "重复")
		}
		seen[key] = struct{}{}

		if _, ok := operation.Resolve(key); !ok {
			return newFieldError(operationField(key, "Key"), fmt.Sprintf("未注册操作: %s", key))
		}
		if t := op.Timeout.DurationValue(); t != 0 && (t < g.MinTimeout.DurationValue() || t > g.MaxTimeout.DurationValue()) {
			return newFieldError(operationField(key, "Timeout"), "必须位于 MinTimeout 与 MaxTimeout 之间")
		}
	}

	return nil
}

func (g GeminiConfig) validate() error {
	if err := validateBaseURL(g.BaseURL); err != nil {
		return fmt.Errorf("Gemini.BaseURL: %w", err)
	}
	if strings.TrimSpace(g.Model) == "" {
		return newFieldError("Gemini.Model", "不能为空")
	}
	if g.BreakerThreshold < 0 {
		return newFieldError("Gemini.BreakerThreshold", "不能为负数")
	}
	if g.RequestTimeout.DurationValue() < 0 {
		return newFieldError("Gemini.RequestTimeout", "不能为负数")
	}
	if strings.ContainsAny(g.AuthHeader, " :\r\n") {
		return newFieldError("Gemini.AuthHeader", "不是合法的 HTTP 头名称")
	}
	return nil
}

func (s S3Config) validate() error {
	if strings.TrimSpace(s.Bucket) == "" {
		return newFieldError("S3.Bucket", "s3 存储不能为空")
	}
	if (s.AccessKeyID == "") != (s.SecretAccessKey == "") {
		return newFieldError("S3.AccessKeyID/SecretAccessKey", "必须同时提供或同时留空")
	}
	if s.Endpoint != "" {
		if err := validateBaseURL(s.Endpoint); err != nil {
			return fmt.Errorf("S3.Endpoint: %w", err)
		}
	}
	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
