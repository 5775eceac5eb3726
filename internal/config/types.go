package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if seconds, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// 结果存储类型。
const (
	StorageNone  = "none"
	StorageLocal = "local"
	StorageS3    = "s3"
)

// MaxHeartbeatInterval 是心跳间隔允许的上限。
const MaxHeartbeatInterval = 60 * time.Second

// GlobalConfig 描述全局运行时行为，所有操作共享同一份参数。
type GlobalConfig struct {
	ListenPort        int      `mapstructure:"ListenPort"`
	LogLevel          string   `mapstructure:"LogLevel"`
	LogFilePath       string   `mapstructure:"LogFilePath"`
	LogMaxSize        int      `mapstructure:"LogMaxSize"`
	LogMaxBackups     int      `mapstructure:"LogMaxBackups"`
	LogCompress       bool     `mapstructure:"LogCompress"`
	CacheCapacity     int      `mapstructure:"CacheCapacity"`
	MaxConcurrent     int      `mapstructure:"MaxConcurrent"`
	DefaultTimeout    Duration `mapstructure:"DefaultTimeout"`
	MinTimeout        Duration `mapstructure:"MinTimeout"`
	MaxTimeout        Duration `mapstructure:"MaxTimeout"`
	HeartbeatInterval Duration `mapstructure:"HeartbeatInterval"`
	MaxUploadSize     int64    `mapstructure:"MaxUploadSize"`
	StorageType       string   `mapstructure:"StorageType"`
	StoragePath       string   `mapstructure:"StoragePath"`
}

// GeminiConfig 描述远程生成后端。APIKey 可由环境变量 GEMINI_API_KEY 覆盖。
type GeminiConfig struct {
	APIKey           string   `mapstructure:"APIKey"`
	BaseURL          string   `mapstructure:"BaseURL"`
	Model            string   `mapstructure:"Model"`
	AuthHeader       string   `mapstructure:"AuthHeader"`
	RequestTimeout   Duration `mapstructure:"RequestTimeout"`
	BreakerThreshold int      `mapstructure:"BreakerThreshold"`
	BreakerCooldown  Duration `mapstructure:"BreakerCooldown"`
}

// S3Config 描述 S3 兼容对象存储（如 TOS）的连接参数。
type S3Config struct {
	Endpoint        string `mapstructure:"Endpoint"`
	Region          string `mapstructure:"Region"`
	Bucket          string `mapstructure:"Bucket"`
	AccessKeyID     string `mapstructure:"AccessKeyID"`
	SecretAccessKey string `mapstructure:"SecretAccessKey"`
	Prefix          string `mapstructure:"Prefix"`
}

// OperationConfig 允许按操作覆盖模型、超时或直接禁用。
type OperationConfig struct {
	Key      string   `mapstructure:"Key"`
	Model    string   `mapstructure:"Model"`
	Timeout  Duration `mapstructure:"Timeout"`
	Disabled bool     `mapstructure:"Disabled"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global     GlobalConfig      `mapstructure:",squash"`
	Gemini     GeminiConfig      `mapstructure:"Gemini"`
	S3         S3Config          `mapstructure:"S3"`
	Operations []OperationConfig `mapstructure:"Operation"`
}

// Operation 返回指定操作的覆盖配置，未配置时 ok 为 false。
func (c *Config) Operation(key string) (OperationConfig, bool) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, op := range c.Operations {
		if op.Key == normalized {
			return op, true
		}
	}
	return OperationConfig{}, false
}

// EffectiveModel 返回操作生效的模型，未覆盖时回退到 Gemini.Model。
func (c *Config) EffectiveModel(key string) string {
	if op, ok := c.Operation(key); ok && op.Model != "" {
		return op.Model
	}
	return c.Gemini.Model
}

// EffectiveTimeout 返回请求未指定超时时使用的值，未覆盖时回退到全局 DefaultTimeout。
func (c *Config) EffectiveTimeout(key string) time.Duration {
	if op, ok := c.Operation(key); ok && op.Timeout.DurationValue() > 0 {
		return op.Timeout.DurationValue()
	}
	return c.Global.DefaultTimeout.DurationValue()
}

// OperationEnabled 报告操作是否未被禁用。
func (c *Config) OperationEnabled(key string) bool {
	op, ok := c.Operation(key)
	return !ok || !op.Disabled
}
