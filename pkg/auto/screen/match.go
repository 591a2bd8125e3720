package screen

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
)

// CaptureMeta 截图元信息
// 截图像素与屏幕逻辑坐标可能存在缩放（如 Retina），区域截图还带有偏移
type CaptureMeta struct {
	ScaleX float64
	ScaleY float64
	Offset image.Point
}

// BuildCaptureMeta 根据截图尺寸与期望的逻辑区域计算元信息
// region 为 nil 时表示全屏截图，screen 为屏幕逻辑尺寸
func BuildCaptureMeta(img image.Rectangle, region *image.Rectangle, screen image.Point) CaptureMeta {
	expected := screen
	meta := CaptureMeta{ScaleX: 1, ScaleY: 1}
	if region != nil {
		expected = region.Size()
		meta.Offset = region.Min
	}
	if expected.X > 0 && img.Dx() > 0 {
		meta.ScaleX = float64(img.Dx()) / float64(expected.X)
	}
	if expected.Y > 0 && img.Dy() > 0 {
		meta.ScaleY = float64(img.Dy()) / float64(expected.Y)
	}
	return meta
}

// ToScreen 将截图像素坐标换算为屏幕逻辑坐标
func (m CaptureMeta) ToScreen(p image.Point) image.Point {
	return image.Point{
		X: unscale(p.X, m.ScaleX) + m.Offset.X,
		Y: unscale(p.Y, m.ScaleY) + m.Offset.Y,
	}
}

func unscale(v int, factor float64) int {
	if factor <= 0 {
		return v
	}
	return int(math.Round(float64(v) / factor))
}

// Match 屏幕上的一个匹配结果
type Match struct {
	cv.MatchCandidate
	// Center 模板中心的屏幕逻辑坐标
	Center image.Point `json:"center"`
	// Bounds 模板覆盖的屏幕逻辑区域
	Bounds image.Rectangle `json:"bounds"`
}

// Locate 将截图上的候选换算为屏幕坐标
func Locate(cands []cv.MatchCandidate, tpl image.Point, meta CaptureMeta) []Match {
	out := make([]Match, 0, len(cands))
	for _, c := range cands {
		r := c.Rect(tpl)
		bounds := image.Rectangle{Min: meta.ToScreen(r.Min), Max: meta.ToScreen(r.Max)}
		out = append(out, Match{
			MatchCandidate: c,
			Center:         meta.ToScreen(image.Pt(c.X+tpl.X/2, c.Y+tpl.Y/2)),
			Bounds:         bounds,
		})
	}
	return out
}

// Capture 截取全屏或区域，返回灰度图与元信息
func Capture(region *image.Rectangle) (*cv.Gray, CaptureMeta, error) {
	var (
		img image.Image
		err error
	)
	if region != nil {
		img, err = CaptureRegion(*region)
	} else {
		img, err = CaptureScreen()
	}
	if err != nil {
		return nil, CaptureMeta{}, err
	}
	w, h := GetScreenSize()
	return cv.GrayFromImage(img), BuildCaptureMeta(img.Bounds(), region, image.Pt(w, h)), nil
}

// FindOnScreen 截屏后用金字塔匹配查找模板
func FindOnScreen(ctx context.Context, m *cv.PyramidMatcher, tpl *cv.Gray, region *image.Rectangle) ([]Match, error) {
	src, meta, err := Capture(region)
	if err != nil {
		return nil, err
	}
	report, err := m.Match(ctx, src, tpl)
	if err != nil {
		return nil, fmt.Errorf("屏幕匹配失败: %w", err)
	}
	return Locate(report.Candidates, tpl.Size(), meta), nil
}
