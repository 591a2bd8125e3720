package cv

import (
	"image"
	"time"
)

const (
	// MaxResultCount 单层模板匹配最大结果数量
	MaxResultCount = 10
)

// TemplateMatching 原始分辨率上的穷举模板匹配
// 不构建金字塔，用作金字塔匹配的对照
type TemplateMatching struct {
	imSearch  *Gray
	imSource  *Gray
	threshold float64
}

// NewTemplateMatching 创建模板匹配器
func NewTemplateMatching(search, source *Gray, threshold float64) *TemplateMatching {
	return &TemplateMatching{
		imSearch:  search,
		imSource:  source,
		threshold: threshold,
	}
}

// FindBestResult 查找最佳匹配结果
func (t *TemplateMatching) FindBestResult() (*MatchResult, error) {
	startTime := time.Now()

	result, err := Score(t.imSource, t.imSearch, nil)
	if err != nil {
		return nil, err
	}

	maxLoc, maxVal := result.Max()
	if maxVal < t.threshold {
		return nil, nil
	}
	c := MatchCandidate{X: maxLoc.X, Y: maxLoc.Y, Score: maxVal}
	return newMatchResult(c, t.imSearch.Size(), time.Since(startTime)), nil
}

// FindAllResults 查找所有匹配结果
func (t *TemplateMatching) FindAllResults() ([]*MatchResult, error) {
	startTime := time.Now()

	result, err := Score(t.imSource, t.imSearch, nil)
	if err != nil {
		return nil, err
	}

	w, h := t.imSearch.W, t.imSearch.H
	var results []*MatchResult

	for len(results) < MaxResultCount {
		maxLoc, maxVal := result.Max()
		if maxVal < t.threshold {
			break
		}

		c := MatchCandidate{X: maxLoc.X, Y: maxLoc.Y, Score: maxVal}
		results = append(results, newMatchResult(c, t.imSearch.Size(), time.Since(startTime)))

		// 屏蔽与已匹配窗口重叠的全部放置位置
		maskRect(result, image.Rect(maxLoc.X-w+1, maxLoc.Y-h+1, maxLoc.X+w, maxLoc.Y+h))
	}

	return results, nil
}

// maskRect 将 r 内的得分置为 -1
func maskRect(s *ScoreSurface, r image.Rectangle) {
	r = r.Intersect(s.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			s.Scores[s.offset(x, y)] = -1
		}
	}
}
