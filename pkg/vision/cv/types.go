package cv

import (
	"image"
	"time"
)

// Point 表示二维坐标点
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rectangle 表示矩形区域（四个角点）
type Rectangle struct {
	TopLeft     Point `json:"top_left"`
	BottomLeft  Point `json:"bottom_left"`
	BottomRight Point `json:"bottom_right"`
	TopRight    Point `json:"top_right"`
}

// MatchResult 图像匹配结果
type MatchResult struct {
	// Result 匹配到的中心点坐标
	Result Point `json:"result"`
	// Rectangle 匹配区域的四个角点
	Rectangle Rectangle `json:"rectangle"`
	// Confidence 匹配置信度 (0-1)
	Confidence float64 `json:"confidence"`
	// Time 匹配耗时（毫秒）
	Time float64 `json:"time,omitempty"`
}

// newMatchResult 由候选和模板尺寸构造匹配结果
func newMatchResult(c MatchCandidate, tpl image.Point, elapsed time.Duration) *MatchResult {
	xMin, yMin := c.X, c.Y
	w, h := tpl.X, tpl.Y
	return &MatchResult{
		Result: Point{X: xMin + w/2, Y: yMin + h/2},
		Rectangle: Rectangle{
			TopLeft:     Point{X: xMin, Y: yMin},
			BottomLeft:  Point{X: xMin, Y: yMin + h},
			BottomRight: Point{X: xMin + w, Y: yMin + h},
			TopRight:    Point{X: xMin + w, Y: yMin},
		},
		Confidence: c.Score,
		Time:       float64(elapsed.Milliseconds()),
	}
}
