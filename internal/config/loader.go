package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量覆盖与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.BindEnv("Gemini.APIKey", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("绑定环境变量失败: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyGeminiDefaults(&cfg.Gemini)
	for i := range cfg.Operations {
		cfg.Operations[i].Key = strings.ToLower(strings.TrimSpace(cfg.Operations[i].Key))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Global.StorageType == StorageLocal {
		absStorage, err := filepath.Abs(cfg.Global.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析存储目录: %w", err)
		}
		cfg.Global.StoragePath = absStorage
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheCapacity", 96)
	v.SetDefault("MaxConcurrent", 8)
	v.SetDefault("DefaultTimeout", "60s")
	v.SetDefault("MinTimeout", "5s")
	v.SetDefault("MaxTimeout", "600s")
	v.SetDefault("HeartbeatInterval", "5s")
	v.SetDefault("MaxUploadSize", 20*1024*1024)
	v.SetDefault("StorageType", StorageNone)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("Gemini.BaseURL", "https://generativelanguage.googleapis.com")
	v.SetDefault("Gemini.Model", "gemini-2.5-flash-image-preview")
	v.SetDefault("Gemini.RequestTimeout", "600s")
	v.SetDefault("Gemini.BreakerThreshold", 5)
	v.SetDefault("Gemini.BreakerCooldown", "60s")
	v.SetDefault("S3.Region", "cn-beijing")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.DefaultTimeout.DurationValue() == 0 {
		g.DefaultTimeout = Duration(60 * time.Second)
	}
	if g.MinTimeout.DurationValue() == 0 {
		g.MinTimeout = Duration(5 * time.Second)
	}
	if g.MaxTimeout.DurationValue() == 0 {
		g.MaxTimeout = Duration(600 * time.Second)
	}
	g.StorageType = strings.ToLower(strings.TrimSpace(g.StorageType))
	if g.StorageType == "" {
		g.StorageType = StorageNone
	}
}

func applyGeminiDefaults(g *GeminiConfig) {
	g.APIKey = strings.TrimSpace(g.APIKey)
	g.BaseURL = strings.TrimRight(strings.TrimSpace(g.BaseURL), "/")
	if g.RequestTimeout.DurationValue() == 0 {
		g.RequestTimeout = Duration(600 * time.Second)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
