package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store 负责持久化生成结果，供 /api/v1/results/:id 下载。对象 key 均为 URL 路径风格：
//
//	results/<uuid>.png
//
// 结果写入后不会被回读进内存缓存。
type Store interface {
	// Get 返回一个可流式读取的对象。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, key string) (*ReadResult, error)

	// Put 写入对象并返回描述。本地实现通过临时文件 + rename 保证原子性。
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (*Object, error)

	// Remove 删除对象，不存在时不报错。
	Remove(ctx context.Context, key string) error
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ContentType string
	// Size 为 0 表示未知长度。
	Size    int64
	ModTime time.Time
}

// Object 描述一个已存储的结果。
type Object struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ModTime     time.Time `json:"mod_time"`
}

// ReadResult 组合 Object 与正文 Reader，便于 HTTP 层直接流式返回。
type ReadResult struct {
	Object Object
	Reader io.ReadCloser
}

// ErrNotFound 表示对象不存在。
var ErrNotFound = errors.New("stored result not found")

// ErrInvalidKey 表示 key 为空或试图逃逸根目录。
var ErrInvalidKey = errors.New("invalid storage key")

const resultPrefix = "results/"

// NewResultID 生成结果 ID。
func NewResultID() string {
	return uuid.NewString()
}

// ResultKey 把结果 ID 映射为对象 key；ID 非法时返回 ErrInvalidKey。
func ResultKey(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", ErrInvalidKey
	}
	return resultPrefix + parsed.String() + ".png", nil
}

// cleanKey 把 key 规整为不带前导 / 的相对路径，拒绝 ".." 逃逸。
func cleanKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", ErrInvalidKey
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
