package cv

import (
	"image"
	"math"
)

// varianceEps 零方差判定的相对容差
// 积分图的舍入误差与表中最大值成正比，因此同时按窗口能量和整表能量判定
const (
	varianceEps      = 1e-9
	integralRoundEps = 1e-12
)

// ScoreSurface 相关系数矩阵
//
// Rect 为模板左上角的放置范围（所在金字塔层的坐标），
// Scores 按行优先存储，范围之外的位置视为 0。
type ScoreSurface struct {
	Rect   image.Rectangle
	Scores []float64
}

// NewScoreSurface 创建全零的相关系数矩阵
func NewScoreSurface(r image.Rectangle) *ScoreSurface {
	r = r.Canon()
	return &ScoreSurface{Rect: r, Scores: make([]float64, r.Dx()*r.Dy())}
}

// At 返回放置位置 (x, y) 的得分
func (s *ScoreSurface) At(x, y int) float64 {
	if !(image.Point{X: x, Y: y}).In(s.Rect) {
		return 0
	}
	return s.Scores[s.offset(x, y)]
}

// Set 设置放置位置 (x, y) 的得分，超出范围时忽略
func (s *ScoreSurface) Set(x, y int, v float64) {
	if !(image.Point{X: x, Y: y}).In(s.Rect) {
		return
	}
	s.Scores[s.offset(x, y)] = v
}

func (s *ScoreSurface) offset(x, y int) int {
	return (y-s.Rect.Min.Y)*s.Rect.Dx() + (x - s.Rect.Min.X)
}

// Max 返回最大得分及其位置（并列时取行优先的第一个）
func (s *ScoreSurface) Max() (image.Point, float64) {
	best := math.Inf(-1)
	var loc image.Point
	w := s.Rect.Dx()
	for i, v := range s.Scores {
		if v > best {
			best = v
			loc = image.Point{X: s.Rect.Min.X + i%w, Y: s.Rect.Min.Y + i/w}
		}
	}
	if math.IsInf(best, -1) {
		return s.Rect.Min, 0
	}
	return loc, best
}

// Threshold 低于阈值的得分置零，其余保持原值（THRESH_TOZERO）
func (s *ScoreSurface) Threshold(t float64) *ScoreSurface {
	out := &ScoreSurface{Rect: s.Rect, Scores: make([]float64, len(s.Scores))}
	for i, v := range s.Scores {
		if v >= t && v > 0 {
			out.Scores[i] = v
		}
	}
	return out
}

// CountNonZero 统计非零得分数量
func (s *ScoreSurface) CountNonZero() int {
	n := 0
	for _, v := range s.Scores {
		if v != 0 {
			n++
		}
	}
	return n
}

// MergeMax 将 o 合并到 s，重叠处取较大值
func (s *ScoreSurface) MergeMax(o *ScoreSurface) {
	r := o.Rect.Intersect(s.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			v := o.Scores[o.offset(x, y)]
			i := s.offset(x, y)
			if v > s.Scores[i] {
				s.Scores[i] = v
			}
		}
	}
}

// templateStats 模板的零均值像素与能量
type templateStats struct {
	zero   []float64 // T - mean(T)
	mean   float64
	energy float64 // sum((T - mean)^2)
	raw    float64 // sum(T^2)
	flat   bool    // 零方差模板
	W, H   int
}

func newTemplateStats(tpl *Gray) *templateStats {
	n := float64(len(tpl.Pix))
	var sum, sumSq float64
	for _, v := range tpl.Pix {
		sum += v
		sumSq += v * v
	}
	mean := sum / n

	ts := &templateStats{zero: make([]float64, len(tpl.Pix)), mean: mean, raw: sumSq, W: tpl.W, H: tpl.H}
	for i, v := range tpl.Pix {
		d := v - mean
		ts.zero[i] = d
		ts.energy += d * d
	}
	ts.flat = ts.energy <= varianceEps*sumSq || ts.energy == 0 || sumSq == 0
	return ts
}

// windowIntegral 搜索窗口的积分图（含一行一列零边）
// 像素先减去窗口均值 mean 以降低累加误差，原始能量由平移量还原
type windowIntegral struct {
	pix   []float64 // 去均值后的窗口像素
	sum   []float64
	sumSq []float64
	mean  float64
	w, h  int
	round float64 // 舍入误差下限
}

func newWindowIntegral(search *Gray, win image.Rectangle) *windowIntegral {
	w, h := win.Dx(), win.Dy()
	var mean float64
	for y := win.Min.Y; y < win.Max.Y; y++ {
		for _, v := range search.Pix[y*search.W+win.Min.X : y*search.W+win.Max.X] {
			mean += v
		}
	}
	mean /= float64(w * h)

	wi := &windowIntegral{
		pix:   make([]float64, w*h),
		sum:   make([]float64, (w+1)*(h+1)),
		sumSq: make([]float64, (w+1)*(h+1)),
		mean:  mean,
		w:     w,
		h:     h,
	}
	stride := w + 1
	for y := 0; y < h; y++ {
		var rowSum, rowSq float64
		src := search.Pix[(win.Min.Y+y)*search.W+win.Min.X : (win.Min.Y+y)*search.W+win.Max.X]
		for x, v := range src {
			d := v - mean
			wi.pix[y*w+x] = d
			rowSum += d
			rowSq += d * d
			wi.sum[(y+1)*stride+x+1] = wi.sum[y*stride+x+1] + rowSum
			wi.sumSq[(y+1)*stride+x+1] = wi.sumSq[y*stride+x+1] + rowSq
		}
	}
	wi.round = integralRoundEps * wi.sumSq[len(wi.sumSq)-1]
	return wi
}

// rect 返回 [x, x+w) x [y, y+h) 的和与平方和（去均值后）
func (wi *windowIntegral) rect(x, y, w, h int) (float64, float64) {
	stride := wi.w + 1
	a := y*stride + x
	b := y*stride + x + w
	c := (y+h)*stride + x
	d := (y+h)*stride + x + w
	return wi.sum[d] - wi.sum[b] - wi.sum[c] + wi.sum[a],
		wi.sumSq[d] - wi.sumSq[b] - wi.sumSq[c] + wi.sumSq[a]
}

// Score 计算能量归一化互相关（TM_CCORR_NORMED）得分矩阵
//
//	score = sum(T*S) / sqrt(sum(T^2) * sum(S^2))
//
// roi 为 nil 时搜索整幅图像；否则仅在 roi（裁剪到图像范围）内搜索，
// 返回的矩阵位于原图坐标系中。零方差的模板或窗口得分为 0。
func Score(search, tpl *Gray, roi *image.Rectangle) (*ScoreSurface, error) {
	if search.Empty() || tpl.Empty() {
		return nil, ErrEmptyImage
	}
	win := search.Bounds()
	if roi != nil {
		win = roi.Canon().Intersect(win)
	}
	if err := checkTemplateFits(win.Dx(), win.Dy(), tpl.W, tpl.H); err != nil {
		return nil, err
	}
	return scoreWindow(search, newTemplateStats(tpl), win), nil
}

// scoreWindow 在已校验的窗口内计算得分
//
// 窗口像素 S = D + m（m 为积分图平移量），模板 T = Z + mu，sum(Z) = 0：
//
//	sum(T*S) = sum(Z*D) + mu*sum(D) + n*mu*m
//	sum(S^2) = sum(D^2) + 2*m*sum(D) + n*m^2
func scoreWindow(search *Gray, ts *templateStats, win image.Rectangle) *ScoreSurface {
	out := NewScoreSurface(image.Rect(
		win.Min.X, win.Min.Y,
		win.Max.X-ts.W+1, win.Max.Y-ts.H+1,
	))
	if ts.flat {
		return out
	}

	wi := newWindowIntegral(search, win)
	n := float64(ts.W * ts.H)
	m := wi.mean
	ow := out.Rect.Dx()
	oh := out.Rect.Dy()

	for y := 0; y < oh; y++ {
		for x := 0; x < ow; x++ {
			sumD, sumSq := wi.rect(x, y, ts.W, ts.H)
			varS := sumSq - sumD*sumD/n
			if varS <= varianceEps*sumSq+wi.round || varS <= 0 {
				continue
			}
			energyS := sumSq + 2*m*sumD + n*m*m
			if energyS <= 0 {
				continue
			}

			var cross float64
			for ty := 0; ty < ts.H; ty++ {
				srow := wi.pix[(y+ty)*wi.w+x : (y+ty)*wi.w+x+ts.W]
				trow := ts.zero[ty*ts.W : (ty+1)*ts.W]
				for tx, tv := range trow {
					cross += tv * srow[tx]
				}
			}
			cross += ts.mean*sumD + n*ts.mean*m

			score := cross / math.Sqrt(ts.raw*energyS)
			if score > 1 {
				score = 1
			} else if score < -1 {
				score = -1
			}
			out.Scores[y*ow+x] = score
		}
	}
	return out
}
