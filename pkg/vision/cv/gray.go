package cv

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Gray 灰度强度缓冲区（行优先，取值范围通常为 0-255）
//
// 匹配过程中只读取，不修改调用方传入的缓冲区。
type Gray struct {
	Pix []float64
	W   int
	H   int
}

// NewGray 创建指定尺寸的全零灰度缓冲区
func NewGray(w, h int) *Gray {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Gray{Pix: make([]float64, w*h), W: w, H: h}
}

// NewGrayFromPix 使用已有像素切片创建灰度缓冲区
func NewGrayFromPix(w, h int, pix []float64) (*Gray, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("无效的图像尺寸: %dx%d", w, h)
	}
	if len(pix) != w*h {
		return nil, fmt.Errorf("像素数量不匹配: 期望 %d, 实际 %d", w*h, len(pix))
	}
	return &Gray{Pix: pix, W: w, H: h}, nil
}

// At 返回 (x, y) 处的强度
func (g *Gray) At(x, y int) float64 {
	return g.Pix[y*g.W+x]
}

// Set 设置 (x, y) 处的强度
func (g *Gray) Set(x, y int, v float64) {
	g.Pix[y*g.W+x] = v
}

// Bounds 返回缓冲区范围
func (g *Gray) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.W, g.H)
}

// Size 返回 (宽, 高)
func (g *Gray) Size() image.Point {
	return image.Point{X: g.W, Y: g.H}
}

// Empty 判断缓冲区是否为空
func (g *Gray) Empty() bool {
	return g == nil || g.W == 0 || g.H == 0
}

// Clone 深拷贝
func (g *Gray) Clone() *Gray {
	pix := make([]float64, len(g.Pix))
	copy(pix, g.Pix)
	return &Gray{Pix: pix, W: g.W, H: g.H}
}

// Crop 复制 r 区域（裁剪到缓冲区范围内）为新的缓冲区
func (g *Gray) Crop(r image.Rectangle) *Gray {
	r = r.Intersect(g.Bounds())
	dst := NewGray(r.Dx(), r.Dy())
	for y := 0; y < dst.H; y++ {
		copy(dst.Pix[y*dst.W:(y+1)*dst.W], g.Pix[(r.Min.Y+y)*g.W+r.Min.X:(r.Min.Y+y)*g.W+r.Max.X])
	}
	return dst
}

// Paste 将 src 写入到 (x, y) 起始位置，超出部分被忽略
func (g *Gray) Paste(src *Gray, x, y int) {
	r := image.Rect(x, y, x+src.W, y+src.H).Intersect(g.Bounds())
	for yy := r.Min.Y; yy < r.Max.Y; yy++ {
		for xx := r.Min.X; xx < r.Max.X; xx++ {
			g.Pix[yy*g.W+xx] = src.Pix[(yy-y)*src.W+(xx-x)]
		}
	}
}

// GrayFromImage 将 image.Image 转换为灰度缓冲区
// 使用 Rec.601 亮度权重，结果范围 0-255
func GrayFromImage(img image.Image) *Gray {
	b := img.Bounds()
	g := NewGray(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < g.H; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := src.Pix[off : off+g.W]
			for x, v := range row {
				g.Pix[y*g.W+x] = float64(v)
			}
		}
		return g
	}

	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			r, gg, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			g.Pix[y*g.W+x] = luminance(r, gg, bb)
		}
	}
	return g
}

// luminance 计算 16 位通道的亮度并映射到 0-255
func luminance(r, g, b uint32) float64 {
	return (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0
}

// GrayAt 返回 (x, y) 处按 8 位截断的灰度颜色
func (g *Gray) GrayAt(x, y int) color.Gray {
	v := math.Round(g.Pix[y*g.W+x])
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	return color.Gray{Y: uint8(v)}
}

// ToImage 转换为 8 位灰度图像
func (g *Gray) ToImage() *image.Gray {
	img := image.NewGray(g.Bounds())
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			img.SetGray(x, y, g.GrayAt(x, y))
		}
	}
	return img
}
