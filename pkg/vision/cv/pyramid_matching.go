package cv

import (
	"context"
	"fmt"
	"image"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zoeyai/pyrmatch/internal/logger"
)

// MatchCandidate 匹配候选（最细层坐标）
type MatchCandidate struct {
	// X, Y 模板左上角位置
	X int `json:"x"`
	Y int `json:"y"`
	// Score 最细层相关系数
	Score float64 `json:"score"`
}

// Point 返回左上角坐标
func (c MatchCandidate) Point() image.Point {
	return image.Point{X: c.X, Y: c.Y}
}

// Rect 返回模板覆盖的区域
func (c MatchCandidate) Rect(tpl image.Point) image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+tpl.X, c.Y+tpl.Y)
}

// LevelStats 单层匹配统计
type LevelStats struct {
	Level    int           `json:"level"`
	Width    int           `json:"width"`
	Height   int           `json:"height"`
	ROIs     int           `json:"rois"`
	Retained int           `json:"retained"`
	Elapsed  time.Duration `json:"elapsed"`
}

// MatchReport 一次金字塔匹配的完整结果
type MatchReport struct {
	Candidates []MatchCandidate `json:"candidates"`
	Levels     []LevelStats     `json:"levels"`
	// Depth 实际使用的层数，模板过小时低于请求的层数
	Depth int `json:"depth"`
	// StoppedAt 搜索结束时所在层
	StoppedAt int `json:"stopped_at"`
	// Completed 是否搜索到最细层
	Completed    bool          `json:"completed"`
	TemplateSize image.Point   `json:"template_size"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Found 是否找到匹配
func (r *MatchReport) Found() bool {
	return r != nil && len(r.Candidates) > 0
}

// PyramidMatcher 金字塔模板匹配器
//
// 先在最粗糙层全图计算 NCC，随后逐层把保留的得分区域传播为下一层的 ROI，
// 只在 ROI 内计算得分，直到原始分辨率。
type PyramidMatcher struct {
	opts Options
}

// NewPyramidMatcher 创建金字塔匹配器
func NewPyramidMatcher(opts ...MatchOption) (*PyramidMatcher, error) {
	o := DefaultMatchOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers()
	}
	return &PyramidMatcher{opts: o}, nil
}

// Options 返回生效的选项
func (m *PyramidMatcher) Options() Options {
	return m.opts
}

// Match 在 src 中查找 tpl 的全部匹配
// 未找到时返回空结果且 err 为 nil
func (m *PyramidMatcher) Match(ctx context.Context, src, tpl *Gray) (*MatchReport, error) {
	startTime := time.Now()

	if src.Empty() || tpl.Empty() {
		return nil, ErrEmptyImage
	}
	if err := checkTemplateFits(src.W, src.H, tpl.W, tpl.H); err != nil {
		return nil, err
	}

	srcPyr, tplPyr, err := m.buildPyramids(ctx, src, tpl)
	if err != nil {
		return nil, err
	}

	// 最粗糙层模板边长不足 MinTemplateSide 时减少层数
	lv := EffectiveLevels(src, tpl, m.opts.Levels)
	if lv < m.opts.Levels {
		logger.Debug("模板 %dx%d 过小，层数 %d -> %d", tpl.W, tpl.H, m.opts.Levels, lv)
		srcPyr = srcPyr[m.opts.Levels-lv:]
		tplPyr = tplPyr[m.opts.Levels-lv:]
	}
	report := &MatchReport{
		Candidates:   []MatchCandidate{},
		Depth:        lv,
		TemplateSize: tpl.Size(),
	}

	// 最粗糙层全图匹配
	retained, stats, err := m.scoreLevel(ctx, 0, srcPyr[0], tplPyr[0], nil)
	if err != nil {
		return nil, err
	}
	report.Levels = append(report.Levels, stats)

	level := 0
	for retained.CountNonZero() > 0 && level < lv {
		level++
		rois := PropagateWithPadding(retained, m.opts.CoarseThreshold,
			srcPyr[level].Bounds(), tplPyr[level].Size(), m.opts.RegionPadding)
		if len(rois) == 0 {
			retained = nil
			break
		}

		retained, stats, err = m.scoreLevel(ctx, level, srcPyr[level], tplPyr[level], rois)
		if err != nil {
			return nil, err
		}
		report.Levels = append(report.Levels, stats)
	}

	report.StoppedAt = level
	if retained != nil && level == lv {
		report.Completed = true
		report.Candidates = FindPeaks(retained, m.opts.FinalThreshold, m.opts.MaxResults)
	}
	report.Elapsed = time.Since(startTime)

	logger.LogEvent("PYR", report.Found(), float64(report.Elapsed.Microseconds())/1000,
		fmt.Sprintf("src=%dx%d tpl=%dx%d levels=%d stop=%d found=%d",
			src.W, src.H, tpl.W, tpl.H, lv, level, len(report.Candidates)))
	return report, nil
}

// buildPyramids 并行构建源图像和模板金字塔
func (m *PyramidMatcher) buildPyramids(ctx context.Context, src, tpl *Gray) (Pyramid, Pyramid, error) {
	var srcPyr, tplPyr Pyramid
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := BuildPyramid(src, m.opts.Levels)
		if err != nil {
			return fmt.Errorf("构建源图像金字塔失败: %w", err)
		}
		srcPyr = p
		return nil
	})
	g.Go(func() error {
		p, err := BuildPyramid(tpl, m.opts.Levels)
		if err != nil {
			return fmt.Errorf("构建模板金字塔失败: %w", err)
		}
		tplPyr = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return srcPyr, tplPyr, nil
}

// scoreLevel 计算一层的得分并截断
// rois 为 nil 时全图计算
func (m *PyramidMatcher) scoreLevel(ctx context.Context, level int, search, tpl *Gray, rois []image.Rectangle) (*ScoreSurface, LevelStats, error) {
	start := time.Now()
	stats := LevelStats{Level: level, Width: search.W, Height: search.H, ROIs: len(rois)}

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	ts := newTemplateStats(tpl)
	var merged *ScoreSurface

	if rois == nil {
		merged = scoreWindow(search, ts, search.Bounds())
		stats.ROIs = 1
	} else {
		merged = NewScoreSurface(placementDomain(search.Bounds(), tpl.Size()))
		parts := make([]*ScoreSurface, len(rois))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.opts.Workers)
		for i, roi := range rois {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := checkTemplateFits(roi.Dx(), roi.Dy(), tpl.W, tpl.H); err != nil {
					return err
				}
				parts[i] = scoreWindow(search, ts, roi)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, stats, err
		}
		// 按 ROI 顺序合并，重叠处取最大值
		for _, p := range parts {
			merged.MergeMax(p)
		}
	}

	retained := merged.Threshold(m.opts.CoarseThreshold)
	stats.Retained = retained.CountNonZero()
	stats.Elapsed = time.Since(start)

	logger.Debug("金字塔第 %d 层: 尺寸=%dx%d ROI=%d 保留=%d 耗时=%s",
		level, search.W, search.H, stats.ROIs, stats.Retained, stats.Elapsed)
	return retained, stats, nil
}

// FindPeaks 提取得分超过 threshold 的 8 连通区域峰值
// 结果按得分降序、再按 (Y, X) 排列；maxResults 为 0 表示不限制
func FindPeaks(s *ScoreSurface, threshold float64, maxResults int) []MatchCandidate {
	regions := findRegions(s, func(v float64) bool { return v > threshold })
	cands := make([]MatchCandidate, 0, len(regions))
	for _, r := range regions {
		cands = append(cands, MatchCandidate{X: r.Peak.X, Y: r.Peak.Y, Score: r.PeakScore})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		if cands[i].Y != cands[j].Y {
			return cands[i].Y < cands[j].Y
		}
		return cands[i].X < cands[j].X
	})
	if maxResults > 0 && len(cands) > maxResults {
		cands = cands[:maxResults]
	}
	return cands
}

// Match 金字塔模板匹配入口
// 未找到匹配时返回空切片和 nil 错误
func Match(src, tpl *Gray, levels int, coarseThreshold, finalThreshold float64) ([]MatchCandidate, error) {
	m, err := NewPyramidMatcher(
		WithLevels(levels),
		WithCoarseThreshold(coarseThreshold),
		WithFinalThreshold(finalThreshold),
	)
	if err != nil {
		return nil, err
	}
	report, err := m.Match(context.Background(), src, tpl)
	if err != nil {
		return nil, err
	}
	return report.Candidates, nil
}
