// Package imagecodec converts between in-memory images and the canonical
// lossless byte form used for fingerprinting and for uploads to the remote
// generator.
package imagecodec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	// 注册上传常见的解码格式。
	_ "image/gif"
	_ "image/jpeg"
)

// MIMEType 是 Encode 输出的内容类型。
const MIMEType = "image/png"

// ErrEmptyImage 表示图像为空或尺寸为 0。
var ErrEmptyImage = errors.New("image is empty")

// Codec 以固定压缩级别输出 RGB PNG，相同像素内容总是得到相同字节。
type Codec struct {
	encoder png.Encoder
}

// New 返回默认压缩级别的 Codec。
func New() *Codec {
	return &Codec{encoder: png.Encoder{CompressionLevel: png.DefaultCompression}}
}

// Encode 先把图像规范化为不透明 RGB 像素，再编码为 PNG。alpha 通道被丢弃，
// 因此调色板、YCbCr、RGBA 等不同内存表示只要像素一致就会得到同一结果。
func (c *Codec) Encode(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, ErrEmptyImage
	}

	canonical := toOpaqueNRGBA(img)
	var buf bytes.Buffer
	if err := c.encoder.Encode(&buf, canonical); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode 解析 PNG/JPEG/GIF 字节。
func (c *Codec) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// toOpaqueNRGBA 把任意图像复制到原点对齐的 NRGBA 画布，并将 alpha 固定为 255。
func toOpaqueNRGBA(img image.Image) *image.NRGBA {
	bounds := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			px.A = 0xff
			out.SetNRGBA(x-bounds.Min.X, y-bounds.Min.Y, px)
		}
	}
	return out
}
