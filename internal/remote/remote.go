// Package remote declares the contract between request orchestration and the
// slow image generation backend, so backends and test fakes can be swapped
// without importing the service layer.
package remote

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured 表示生成后端缺少凭证等必要配置。
var ErrNotConfigured = errors.New("remote generator is not configured")

// Image 是一张已编码的输入图像。
type Image struct {
	MIMEType string
	Data     []byte
}

// Request 描述一次远程生成调用。Seed 为 nil 表示不固定随机种子。
type Request struct {
	Prompt  string
	Images  []Image
	Model   string
	Seed    *int64
	Timeout time.Duration
}

// Generator 执行一次生成并返回编码后的结果图像。
type Generator interface {
	Generate(ctx context.Context, req Request) ([]byte, error)
}

// GeneratorFunc 让普通函数满足 Generator。
type GeneratorFunc func(ctx context.Context, req Request) ([]byte, error)

// Generate makes GeneratorFunc satisfy Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}
