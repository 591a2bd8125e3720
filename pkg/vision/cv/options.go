package cv

import (
	"fmt"
)

// 默认匹配参数
const (
	// DefaultLevels 默认金字塔层数
	DefaultLevels = 5
	// DefaultCoarseThreshold 各层保留候选区域的阈值
	DefaultCoarseThreshold = 0.94
	// DefaultFinalThreshold 最终接受匹配的阈值
	DefaultFinalThreshold = 0.9
)

// Options 金字塔匹配选项
type Options struct {
	// Levels 降采样次数（金字塔共 Levels+1 层）
	Levels int
	// CoarseThreshold 每层截断阈值，低于该值的得分置零
	CoarseThreshold float64
	// FinalThreshold 最细层峰值需超过该值才作为结果
	FinalThreshold float64
	// Workers 并行计算 ROI 的协程数，<=0 时使用 CPU 逻辑核数
	Workers int
	// MaxResults 最大结果数量，0 表示不限制
	MaxResults int
	// RegionPadding 连通域外接矩形每侧扩展的像素数
	RegionPadding int
}

// DefaultMatchOptions 默认选项
func DefaultMatchOptions() Options {
	return Options{
		Levels:          DefaultLevels,
		CoarseThreshold: DefaultCoarseThreshold,
		FinalThreshold:  DefaultFinalThreshold,
		Workers:         0,
		MaxResults:      0,
		RegionPadding:   DefaultRegionPadding,
	}
}

// Validate 校验选项
func (o Options) Validate() error {
	if o.Levels < 0 {
		return ErrInvalidLevelCount
	}
	if o.CoarseThreshold <= 0 || o.CoarseThreshold >= 1 {
		return fmt.Errorf("%w: coarse=%.3f", ErrInvalidThreshold, o.CoarseThreshold)
	}
	if o.FinalThreshold <= 0 || o.FinalThreshold >= 1 {
		return fmt.Errorf("%w: final=%.3f", ErrInvalidThreshold, o.FinalThreshold)
	}
	if o.MaxResults < 0 {
		return fmt.Errorf("最大结果数量不能为负数: %d", o.MaxResults)
	}
	if o.RegionPadding < 0 {
		return fmt.Errorf("区域扩展像素数不能为负数: %d", o.RegionPadding)
	}
	return nil
}

// MatchOption 匹配选项函数
type MatchOption func(*Options)

// WithLevels 设置金字塔层数
func WithLevels(levels int) MatchOption {
	return func(o *Options) {
		o.Levels = levels
	}
}

// WithCoarseThreshold 设置每层截断阈值
func WithCoarseThreshold(threshold float64) MatchOption {
	return func(o *Options) {
		o.CoarseThreshold = threshold
	}
}

// WithFinalThreshold 设置最终接受阈值
func WithFinalThreshold(threshold float64) MatchOption {
	return func(o *Options) {
		o.FinalThreshold = threshold
	}
}

// WithWorkers 设置并行协程数
func WithWorkers(n int) MatchOption {
	return func(o *Options) {
		o.Workers = n
	}
}

// WithMaxResults 设置最大结果数量
func WithMaxResults(n int) MatchOption {
	return func(o *Options) {
		o.MaxResults = n
	}
}

// WithRegionPadding 设置连通域扩展像素数
func WithRegionPadding(px int) MatchOption {
	return func(o *Options) {
		o.RegionPadding = px
	}
}

// WithOptions 整体替换选项
func WithOptions(opts Options) MatchOption {
	return func(o *Options) {
		*o = opts
	}
}
