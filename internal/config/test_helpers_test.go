package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:        5000,
			LogLevel:          "info",
			CacheCapacity:     96,
			MaxConcurrent:     4,
			DefaultTimeout:    Duration(60 * time.Second),
			MinTimeout:        Duration(5 * time.Second),
			MaxTimeout:        Duration(600 * time.Second),
			HeartbeatInterval: Duration(5 * time.Second),
			MaxUploadSize:     1 << 20,
			StorageType:       StorageNone,
		},
		Gemini: GeminiConfig{
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-2.5-flash-image-preview",
		},
	}
}
