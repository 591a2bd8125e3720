// Package overlay 在源图像上绘制匹配框和得分标签
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
)

// Style 标注样式
type Style struct {
	Box       color.RGBA
	Label     color.RGBA
	LabelBg   color.RGBA
	Thickness int
	FontSize  float64
}

// DefaultStyle 默认样式
var DefaultStyle = Style{
	Box:       color.RGBA{R: 0, G: 200, B: 0, A: 255},
	Label:     color.RGBA{R: 255, G: 255, B: 255, A: 255},
	LabelBg:   color.RGBA{R: 0, G: 150, B: 0, A: 255},
	Thickness: 2,
	FontSize:  11,
}

var (
	labelFont     *truetype.Font
	labelFontErr  error
	labelFontOnce sync.Once
)

// loadFont 加载内置的 Go Regular 字体
func loadFont() (*truetype.Font, error) {
	labelFontOnce.Do(func() {
		labelFont, labelFontErr = freetype.ParseFont(goregular.TTF)
	})
	return labelFont, labelFontErr
}

// Draw 在 src 的 RGBA 副本上绘制所有候选
func Draw(src image.Image, cands []cv.MatchCandidate, tpl image.Point, style Style) (*image.RGBA, error) {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	f, err := loadFont()
	if err != nil {
		return nil, fmt.Errorf("加载字体失败: %w", err)
	}

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(f)
	c.SetFontSize(style.FontSize)
	c.SetClip(dst.Bounds())
	c.SetDst(dst)
	c.SetSrc(image.NewUniform(style.Label))
	c.SetHinting(font.HintingFull)

	lineH := int(c.PointToFixed(style.FontSize) >> 6)
	for i, cand := range cands {
		r := cand.Rect(tpl)
		strokeRect(dst, r, style.Box, style.Thickness)

		label := fmt.Sprintf("#%d %.3f", i+1, cand.Score)
		top := r.Min.Y - lineH - 4
		if top < 0 {
			top = r.Max.Y
		}
		bg := image.Rect(r.Min.X, top, r.Min.X+labelWidth(f, style.FontSize, label)+4, top+lineH+4)
		draw.Draw(dst, bg.Intersect(dst.Bounds()), image.NewUniform(style.LabelBg), image.Point{}, draw.Src)

		if _, err := c.DrawString(label, freetype.Pt(r.Min.X+2, top+lineH+1)); err != nil {
			return nil, fmt.Errorf("绘制标签失败: %w", err)
		}
	}
	return dst, nil
}

// strokeRect 绘制矩形边框，边框在 r 内侧
func strokeRect(dst *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	if thickness <= 0 {
		thickness = 1
	}
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), u, image.Point{}, draw.Src)
	}
}

// labelWidth 估算标签宽度（像素）
func labelWidth(f *truetype.Font, size float64, s string) int {
	face := truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72})
	defer face.Close()
	return font.MeasureString(face, s).Ceil()
}

// SavePNG 保存为 PNG 文件
func SavePNG(filename string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("保存图像失败: %w", err)
	}
	defer f.Close()
	return png.Encode(f, img)
}
