package cv

import (
	"image"
)

// DefaultRegionPadding 连通域外接矩形每侧额外扩展的像素数（细层坐标）
// 2 个细层像素对应 1 个粗层像素，用于吸收降采样丢失的半像素相位
const DefaultRegionPadding = 2

// region 得分矩阵中的一个 8 连通区域
type region struct {
	// Bounds 外接矩形（放置坐标）
	Bounds image.Rectangle
	// Peak 区域内得分最高的位置，并列时取行优先的第一个
	Peak      image.Point
	PeakScore float64
	Area      int
}

// neighbors8 8 邻域偏移
var neighbors8 = [8]image.Point{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// findRegions 按行优先扫描顺序提取满足 keep 的 8 连通区域
func findRegions(s *ScoreSurface, keep func(v float64) bool) []region {
	w, h := s.Rect.Dx(), s.Rect.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}
	visited := make([]bool, w*h)
	var (
		regions []region
		queue   []int
	)

	for start, v := range s.Scores {
		if visited[start] || !keep(v) {
			continue
		}
		visited[start] = true
		queue = append(queue[:0], start)

		sx, sy := start%w, start/w
		r := region{
			Bounds:    image.Rect(sx, sy, sx+1, sy+1),
			Peak:      image.Point{X: sx, Y: sy},
			PeakScore: v,
		}

		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			cx, cy := cur%w, cur/w
			val := s.Scores[cur]
			r.Area++
			r.Bounds = r.Bounds.Union(image.Rect(cx, cy, cx+1, cy+1))
			if val > r.PeakScore || (val == r.PeakScore && (cy < r.Peak.Y || (cy == r.Peak.Y && cx < r.Peak.X))) {
				r.PeakScore = val
				r.Peak = image.Point{X: cx, Y: cy}
			}

			for _, d := range neighbors8 {
				nx, ny := cx+d.X, cy+d.Y
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if visited[ni] || !keep(s.Scores[ni]) {
					continue
				}
				visited[ni] = true
				queue = append(queue, ni)
			}
		}

		r.Bounds = r.Bounds.Add(s.Rect.Min)
		r.Peak = r.Peak.Add(s.Rect.Min)
		regions = append(regions, r)
	}
	return regions
}

// Upsample2x 最近邻 2 倍上采样，每个得分展开为 2x2 块，结果裁剪到 clip
func (s *ScoreSurface) Upsample2x(clip image.Rectangle) *ScoreSurface {
	up := image.Rect(2*s.Rect.Min.X, 2*s.Rect.Min.Y, 2*s.Rect.Max.X, 2*s.Rect.Max.Y).Intersect(clip)
	out := NewScoreSurface(up)
	for y := up.Min.Y; y < up.Max.Y; y++ {
		for x := up.Min.X; x < up.Max.X; x++ {
			out.Scores[out.offset(x, y)] = s.At(x>>1, y>>1)
		}
	}
	return out
}

// placementDomain 模板在 bounds 内可放置的左上角范围
func placementDomain(bounds image.Rectangle, tpl image.Point) image.Rectangle {
	return image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X-tpl.X+1, bounds.Max.Y-tpl.Y+1)
}

// Propagate 将粗层得分映射为下一细层的搜索矩形
//
// coarse 按 threshold 截断后 2 倍上采样，提取 8 连通区域；每个区域的外接矩形
// 扩展 DefaultRegionPadding 后再向 +x/+y 方向扩展模板尺寸减一，并裁剪到 fine。
// fine 为细层搜索图像范围，tpl 为细层模板尺寸。没有区域时返回空切片。
func Propagate(coarse *ScoreSurface, threshold float64, fine image.Rectangle, tpl image.Point) []image.Rectangle {
	return PropagateWithPadding(coarse, threshold, fine, tpl, DefaultRegionPadding)
}

// PropagateWithPadding 同 Propagate，可指定区域扩展像素数
func PropagateWithPadding(coarse *ScoreSurface, threshold float64, fine image.Rectangle, tpl image.Point, padding int) []image.Rectangle {
	valid := placementDomain(fine, tpl)
	if valid.Empty() || coarse == nil {
		return nil
	}
	if padding < 0 {
		padding = 0
	}

	up := coarse.Threshold(threshold).Upsample2x(valid)
	regions := findRegions(up, func(v float64) bool { return v > 0 })

	rects := make([]image.Rectangle, 0, len(regions))
	for _, r := range regions {
		rects = append(rects, searchWindow(r.Bounds, padding, valid, fine, tpl))
	}
	return rects
}

// searchWindow 放置区域 -> 细层搜索窗口
func searchWindow(b image.Rectangle, padding int, valid, fine image.Rectangle, tpl image.Point) image.Rectangle {
	b = b.Inset(-padding).Intersect(valid)
	return image.Rect(b.Min.X, b.Min.Y, b.Max.X+tpl.X-1, b.Max.Y+tpl.Y-1).Intersect(fine)
}
