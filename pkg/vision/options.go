package vision

import (
	"time"

	"github.com/zoeyai/pyrmatch/internal/logger"
	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
)

// Options 全局配置选项
type Options struct {
	// 匹配配置
	CVThreshold     float64       // 最终匹配阈值，默认 0.9
	CoarseThreshold float64       // 每层保留阈值，默认 0.94
	Levels          int           // 金字塔降采样次数，默认 5
	AutoLevels      bool          // 模板过小时自动减少层数
	Workers         int           // 并行协程数，0 表示 CPU 逻辑核数
	MaxResults      int           // 最大结果数量，0 表示不限制
	FindTimeout     time.Duration // 查找超时时间，默认 10s

	// 日志配置
	LogEnabled bool   // 是否启用日志
	LogLevel   string // 日志级别
	LogFile    bool   // 是否输出到文件
	LogPath    string // 日志文件路径

	// 路径配置
	CurrentPath string // 当前工作路径
}

// DefaultOptions 默认配置
var DefaultOptions = Options{
	CVThreshold:     cv.DefaultFinalThreshold,
	CoarseThreshold: cv.DefaultCoarseThreshold,
	Levels:          cv.DefaultLevels,
	AutoLevels:      true,
	Workers:         0,
	MaxResults:      0,
	FindTimeout:     DefaultTimeout,

	LogEnabled: true,
	LogLevel:   "INFO",
	LogFile:    false,
	LogPath:    "logs/pyrmatch.log",

	CurrentPath: "",
}

// globalOptions 全局配置实例
var globalOptions = DefaultOptions

// GetOptions 获取当前全局配置
func GetOptions() *Options {
	return &globalOptions
}

// SetOptions 设置全局配置，同时应用日志与路径配置
func SetOptions(opts Options) error {
	globalOptions = opts
	cv.CurrentPath = opts.CurrentPath

	log := logger.Default()
	log.SetEnabled(opts.LogEnabled)
	log.SetLevel(logger.ParseLevel(opts.LogLevel))
	path := ""
	if opts.LogFile {
		path = opts.LogPath
	}
	return log.SetFile(opts.LogFile, path)
}

// ResetOptions 重置为默认配置
func ResetOptions() {
	_ = SetOptions(DefaultOptions)
}

// Option 配置选项函数类型
type Option func(*matchConfig)

// matchConfig 匹配时的临时配置
type matchConfig struct {
	threshold       float64
	coarseThreshold float64
	levels          int
	autoLevels      bool
	workers         int
	maxResults      int
	timeout         time.Duration
	targetPos       TargetPos
}

// defaultMatchConfig 默认匹配配置
func defaultMatchConfig() *matchConfig {
	return &matchConfig{
		threshold:       globalOptions.CVThreshold,
		coarseThreshold: globalOptions.CoarseThreshold,
		levels:          globalOptions.Levels,
		autoLevels:      globalOptions.AutoLevels,
		workers:         globalOptions.Workers,
		maxResults:      globalOptions.MaxResults,
		timeout:         globalOptions.FindTimeout,
		targetPos:       TargetPosMid,
	}
}

func newMatchConfig(opts []Option) *matchConfig {
	cfg := defaultMatchConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithThreshold 设置匹配阈值
func WithThreshold(threshold float64) Option {
	return func(c *matchConfig) {
		c.threshold = threshold
	}
}

// WithCoarseThreshold 设置每层保留阈值
func WithCoarseThreshold(threshold float64) Option {
	return func(c *matchConfig) {
		c.coarseThreshold = threshold
	}
}

// WithLevels 设置金字塔层数
func WithLevels(levels int) Option {
	return func(c *matchConfig) {
		c.levels = levels
	}
}

// WithAutoLevels 设置是否自动减少层数
func WithAutoLevels(enabled bool) Option {
	return func(c *matchConfig) {
		c.autoLevels = enabled
	}
}

// WithWorkers 设置并行协程数
func WithWorkers(n int) Option {
	return func(c *matchConfig) {
		c.workers = n
	}
}

// WithMaxResults 设置最大结果数量
func WithMaxResults(n int) Option {
	return func(c *matchConfig) {
		c.maxResults = n
	}
}

// WithTimeout 设置超时时间
func WithTimeout(timeout time.Duration) Option {
	return func(c *matchConfig) {
		c.timeout = timeout
	}
}

// WithTargetPos 设置 FindLocation 返回的位置
func WithTargetPos(pos TargetPos) Option {
	return func(c *matchConfig) {
		c.targetPos = pos
	}
}
