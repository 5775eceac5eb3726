// Package fingerprint derives the deterministic digest that identifies a
// generation request: the canonical bytes of every input image in order,
// followed by the request parameters.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"

	"golang.org/x/sync/errgroup"
)

// ErrNoImages 表示调用方没有提供任何图像。
var ErrNoImages = errors.New("fingerprint requires at least one image")

// recordSeparator 写在每个参数之前，保证 ["a","b"] 与 ["ab"] 不会碰撞。
const recordSeparator = 0x1e

// maxParallelEncodes 限制同时进行的 PNG 编码数量。
const maxParallelEncodes = 4

// Encoder 把图像转换为规范字节，imagecodec.Codec 即为默认实现。
type Encoder interface {
	Encode(image.Image) ([]byte, error)
}

// Builder 负责图像规范化与摘要计算。
type Builder struct {
	encoder Encoder
}

// NewBuilder 返回使用指定编码器的 Builder。
func NewBuilder(encoder Encoder) *Builder {
	return &Builder{encoder: encoder}
}

// Canonicalize 并行编码所有图像，结果顺序与输入一致。
func (b *Builder) Canonicalize(images []image.Image) ([][]byte, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}

	out := make([][]byte, len(images))
	var g errgroup.Group
	g.SetLimit(maxParallelEncodes)
	for i, img := range images {
		g.Go(func() error {
			data, err := b.encoder.Encode(img)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Build 规范化图像后计算摘要。
func (b *Builder) Build(images []image.Image, params ...string) (string, error) {
	canonical, err := b.Canonicalize(images)
	if err != nil {
		return "", err
	}
	return Digest(canonical, params...)
}

// Digest 对已规范化的图像字节与参数计算 64 位十六进制 SHA-256。
// 图像先于参数写入，图像顺序属于摘要的一部分。
func Digest(canonical [][]byte, params ...string) (string, error) {
	if len(canonical) == 0 {
		return "", ErrNoImages
	}

	h := sha256.New()
	for _, data := range canonical {
		h.Write(data)
	}
	for _, param := range params {
		h.Write([]byte{recordSeparator})
		h.Write([]byte(param))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
