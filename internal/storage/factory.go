package storage

import (
	"context"
	"fmt"

	"github.com/feizhen/virtual-try-on/internal/config"
)

// New 按 StorageType 构建结果存储；none 返回 nil, nil，调用方据此跳过持久化。
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Global.StorageType {
	case config.StorageNone, "":
		return nil, nil
	case config.StorageLocal:
		return NewFileStore(cfg.Global.StoragePath)
	case config.StorageS3:
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Global.StorageType)
	}
}
