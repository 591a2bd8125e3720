package vision

import "github.com/zoeyai/pyrmatch/pkg/vision/cv"

// Version 版本号
const Version = "0.3.0"

// 匹配结果类型与 cv 包共用
type (
	Point       = cv.Point
	Rectangle   = cv.Rectangle
	MatchResult = cv.MatchResult
)

// TargetPos FindLocation 返回匹配区域的哪个位置
type TargetPos int

const (
	// TargetPosMid 中心点（默认）
	TargetPosMid TargetPos = iota
	// TargetPosTopLeft 左上角
	TargetPosTopLeft
	// TargetPosTopRight 右上角
	TargetPosTopRight
	// TargetPosBottomLeft 左下角
	TargetPosBottomLeft
	// TargetPosBottomRight 右下角
	TargetPosBottomRight
)

// GetPosition 根据 TargetPos 从 MatchResult 获取对应位置
func (t TargetPos) GetPosition(result *MatchResult) Point {
	if result == nil {
		return Point{}
	}
	switch t {
	case TargetPosTopLeft:
		return result.Rectangle.TopLeft
	case TargetPosTopRight:
		return result.Rectangle.TopRight
	case TargetPosBottomLeft:
		return result.Rectangle.BottomLeft
	case TargetPosBottomRight:
		return result.Rectangle.BottomRight
	default:
		return result.Result
	}
}
