// Package cvmat 在 gocv.Mat 与 cv.Gray 之间转换，
// 并提供基于 OpenCV 的穷举匹配和标注，用于对照金字塔匹配结果。
package cvmat

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
)

// MatToGray 将 gocv.Mat 转换为灰度缓冲区
// 支持单通道、BGR 和 BGRA 的 8 位图像
func MatToGray(m gocv.Mat) (*cv.Gray, error) {
	if m.Empty() {
		return nil, cv.ErrEmptyImage
	}

	src := m
	switch m.Channels() {
	case 1:
	case 3, 4:
		code := gocv.ColorBGRToGray
		if m.Channels() == 4 {
			code = gocv.ColorBGRAToGray
		}
		src = gocv.NewMat()
		defer src.Close()
		gocv.CvtColor(m, &src, code)
	default:
		return nil, fmt.Errorf("不支持的通道数: %d", m.Channels())
	}

	g := cv.NewGray(src.Cols(), src.Rows())
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			g.Set(x, y, float64(src.GetUCharAt(y, x)))
		}
	}
	return g, nil
}

// GrayToMat 将灰度缓冲区转换为 8 位单通道 Mat，调用方负责 Close
func GrayToMat(g *cv.Gray) (gocv.Mat, error) {
	if g.Empty() {
		return gocv.NewMat(), cv.ErrEmptyImage
	}
	m := gocv.NewMatWithSize(g.H, g.W, gocv.MatTypeCV8UC1)
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			m.SetUCharAt(y, x, g.GrayAt(x, y).Y)
		}
	}
	return m, nil
}

// ReadGray 使用 OpenCV 读取灰度图像
func ReadGray(filename string) (*cv.Gray, error) {
	m := gocv.IMRead(filename, gocv.IMReadGrayScale)
	defer m.Close()
	if m.Empty() {
		return nil, fmt.Errorf("%w: %s", cv.ErrIO, filename)
	}
	return MatToGray(m)
}

// WriteImage 保存 Mat，格式由扩展名决定
func WriteImage(filename string, m gocv.Mat) error {
	if ok := gocv.IMWrite(filename, m); !ok {
		return fmt.Errorf("保存图像失败: %s", filename)
	}
	return nil
}

// PyrDown 使用 OpenCV pyrDown 降采样一层（reflect-101 边界）
// 输入按 8 位取整，输出同样为 8 位精度
func PyrDown(g *cv.Gray) (*cv.Gray, error) {
	src, err := GrayToMat(g)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.PyrDown(src, &dst, image.Point{}, gocv.BorderReflect101)
	return MatToGray(dst)
}

// MatchTemplate 使用 OpenCV TM_CCORR_NORMED 在整幅图像上计算得分
func MatchTemplate(search, tpl *cv.Gray) (*cv.ScoreSurface, error) {
	if search.Empty() || tpl.Empty() {
		return nil, cv.ErrEmptyImage
	}
	if tpl.W > search.W || tpl.H > search.H {
		return nil, &cv.TemplateLargerThanSearchError{
			SearchSize:   [2]int{search.W, search.H},
			TemplateSize: [2]int{tpl.W, tpl.H},
		}
	}

	srcMat, err := GrayToMat(search)
	if err != nil {
		return nil, err
	}
	defer srcMat.Close()
	tplMat, err := GrayToMat(tpl)
	if err != nil {
		return nil, err
	}
	defer tplMat.Close()

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()
	gocv.MatchTemplate(srcMat, tplMat, &result, gocv.TmCcorrNormed, mask)

	s := cv.NewScoreSurface(image.Rect(0, 0, result.Cols(), result.Rows()))
	for y := 0; y < result.Rows(); y++ {
		for x := 0; x < result.Cols(); x++ {
			v := float64(result.GetFloatAt(y, x))
			s.Set(x, y, min(max(v, -1), 1))
		}
	}
	return s, nil
}

// BestMatch 返回 OpenCV 穷举匹配的最佳位置
func BestMatch(search, tpl *cv.Gray) (cv.MatchCandidate, error) {
	s, err := MatchTemplate(search, tpl)
	if err != nil {
		return cv.MatchCandidate{}, err
	}
	loc, v := s.Max()
	return cv.MatchCandidate{X: loc.X, Y: loc.Y, Score: v}, nil
}

// 标注颜色
var (
	boxColor   = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	labelColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// Annotate 在图像副本上绘制匹配框和得分，返回 BGR Mat，调用方负责 Close
func Annotate(src *cv.Gray, cands []cv.MatchCandidate, tpl image.Point) (gocv.Mat, error) {
	gray, err := GrayToMat(src)
	if err != nil {
		return gray, err
	}
	defer gray.Close()

	out := gocv.NewMat()
	gocv.CvtColor(gray, &out, gocv.ColorGrayToBGR)

	for _, c := range cands {
		r := c.Rect(tpl)
		gocv.Rectangle(&out, r, boxColor, 2)

		label := fmt.Sprintf("%.3f", c.Score)
		size := gocv.GetTextSize(label, gocv.FontHersheySimplex, 0.4, 1)
		labelY := r.Min.Y - 4
		if labelY < size.Y {
			labelY = r.Max.Y + size.Y + 4
		}
		bg := image.Rect(r.Min.X, labelY-size.Y-2, r.Min.X+size.X+4, labelY+2)
		gocv.Rectangle(&out, bg, boxColor, -1)
		gocv.PutText(&out, label, image.Pt(r.Min.X+2, labelY), gocv.FontHersheySimplex, 0.4, labelColor, 1)
	}
	return out, nil
}
