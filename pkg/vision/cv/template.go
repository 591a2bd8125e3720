package cv

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/zoeyai/pyrmatch/internal/logger"
)

// CV 包配置
var (
	// DefaultThreshold 默认匹配阈值
	DefaultThreshold = DefaultFinalThreshold
	// MinTemplateSide 最粗糙层模板短边的最小像素数，自动裁剪层数时使用
	MinTemplateSide = 4
	// CurrentPath 当前工作路径
	CurrentPath = ""
)

// Template 模板匹配类
type Template struct {
	// Filename 模板文件路径
	Filename string
	// Threshold 匹配阈值
	Threshold float64
	// Options 金字塔匹配选项
	Options Options
	// AutoLevels 层数过深时自动裁剪，而不是返回 ErrImageTooSmall
	AutoLevels bool

	// 缓存的模板图像
	cached *Gray
}

// TemplateOption 模板选项
type TemplateOption func(*Template)

// NewTemplate 创建新的 Template
func NewTemplate(filename string, opts ...TemplateOption) *Template {
	t := &Template{
		Filename:   filename,
		Threshold:  DefaultThreshold,
		Options:    DefaultMatchOptions(),
		AutoLevels: true,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// NewTemplateFromGray 使用内存中的灰度图像创建模板
func NewTemplateFromGray(name string, img *Gray, opts ...TemplateOption) *Template {
	t := NewTemplate(name, opts...)
	t.cached = img
	return t
}

// WithTemplateThreshold 设置阈值
func WithTemplateThreshold(threshold float64) TemplateOption {
	return func(t *Template) {
		t.Threshold = threshold
	}
}

// WithTemplateLevels 设置金字塔层数
func WithTemplateLevels(levels int) TemplateOption {
	return func(t *Template) {
		t.Options.Levels = levels
	}
}

// WithTemplateAutoLevels 设置是否自动裁剪层数
func WithTemplateAutoLevels(enabled bool) TemplateOption {
	return func(t *Template) {
		t.AutoLevels = enabled
	}
}

// WithTemplateMatchOptions 追加金字塔匹配选项
func WithTemplateMatchOptions(opts ...MatchOption) TemplateOption {
	return func(t *Template) {
		for _, opt := range opts {
			opt(&t.Options)
		}
	}
}

// MatchIn 在屏幕图像中匹配模板，返回最佳匹配的中心点
func (t *Template) MatchIn(screen *Gray) (*Point, error) {
	result, err := t.MatchResultIn(screen)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	pos := result.Result
	return &pos, nil
}

// MatchResultIn 在屏幕图像中匹配模板，返回最佳匹配结果
func (t *Template) MatchResultIn(screen *Gray) (*MatchResult, error) {
	results, err := t.MatchAllIn(screen)
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return results[0], nil
}

// MatchAllIn 在屏幕图像中查找所有匹配，按置信度降序
func (t *Template) MatchAllIn(screen *Gray) ([]*MatchResult, error) {
	report, err := t.Report(context.Background(), screen)
	if err != nil {
		return nil, err
	}

	results := make([]*MatchResult, 0, len(report.Candidates))
	for _, c := range report.Candidates {
		results = append(results, newMatchResult(c, report.TemplateSize, report.Elapsed))
	}
	return results, nil
}

// Report 执行金字塔匹配并返回完整报告
func (t *Template) Report(ctx context.Context, screen *Gray) (*MatchReport, error) {
	tpl, err := t.readImage()
	if err != nil {
		return nil, err
	}
	if screen.Empty() {
		return nil, ErrEmptyImage
	}

	opts := t.Options
	opts.FinalThreshold = t.Threshold
	if t.AutoLevels {
		if lv := EffectiveLevels(screen, tpl, opts.Levels); lv != opts.Levels {
			logger.Warn("模板 %s 尺寸 %dx%d 不足以构建 %d 层金字塔, 使用 %d 层",
				t.Filename, tpl.W, tpl.H, opts.Levels, lv)
			opts.Levels = lv
		}
	}

	m, err := NewPyramidMatcher(WithOptions(opts))
	if err != nil {
		return nil, err
	}
	return m.Match(ctx, screen, tpl)
}

// EffectiveLevels 返回不超过 levels、且最粗糙层模板短边不小于 MinTemplateSide 的层数
func EffectiveLevels(src, tpl *Gray, levels int) int {
	if levels < 0 {
		return levels
	}
	maxLv := min(MaxLevels(src.W, src.H), MaxLevels(tpl.W, tpl.H))
	lv := min(levels, maxLv)
	side := min(tpl.W, tpl.H)
	for lv > 0 {
		s := side
		for i := 0; i < lv; i++ {
			s = (s + 1) / 2
		}
		if s >= MinTemplateSide {
			break
		}
		lv--
	}
	return lv
}

// readImage 读取模板图像
func (t *Template) readImage() (*Gray, error) {
	if t.cached != nil && !t.cached.Empty() {
		return t.cached, nil
	}

	filename := t.Filename
	// 处理相对路径，data URL 不处理
	if CurrentPath != "" && !strings.HasPrefix(filename, "data:image/") && !filepath.IsAbs(filename) {
		filename = filepath.Join(CurrentPath, filename)
	}

	img, err := ReadImageGray(filename)
	if err != nil {
		return nil, err
	}
	t.cached = img
	return img, nil
}

// Size 返回模板尺寸
func (t *Template) Size() (image.Point, error) {
	img, err := t.readImage()
	if err != nil {
		return image.Point{}, err
	}
	return img.Size(), nil
}

// Close 释放缓存
func (t *Template) Close() {
	t.cached = nil
}

// String 返回字符串表示
func (t *Template) String() string {
	return fmt.Sprintf("Template(%s)", t.Filename)
}

// resolveTemplate 将模板参数转换为 *Template
func resolveTemplate(template interface{}, opts ...TemplateOption) (*Template, error) {
	switch v := template.(type) {
	case string:
		return NewTemplate(v, opts...), nil
	case *Template:
		return v, nil
	case *Gray:
		return NewTemplateFromGray("memory", v, opts...), nil
	case image.Image:
		return NewTemplateFromGray("memory", GrayFromImage(v), opts...), nil
	default:
		return nil, fmt.Errorf("不支持的模板类型: %T", template)
	}
}

// FindLocation 便捷函数：在源图像中查找模板位置
func FindLocation(screen, template interface{}, opts ...TemplateOption) (*Point, error) {
	// 加载源图像
	screenGray, err := LoadGrayInput(screen)
	if err != nil {
		return nil, fmt.Errorf("加载源图像失败: %w", err)
	}

	tmpl, err := resolveTemplate(template, opts...)
	if err != nil {
		return nil, err
	}
	return tmpl.MatchIn(screenGray)
}

// FindAllLocations 便捷函数：在源图像中查找所有模板位置
func FindAllLocations(screen, template interface{}, opts ...TemplateOption) ([]*MatchResult, error) {
	screenGray, err := LoadGrayInput(screen)
	if err != nil {
		return nil, fmt.Errorf("加载源图像失败: %w", err)
	}

	tmpl, err := resolveTemplate(template, opts...)
	if err != nil {
		return nil, err
	}
	return tmpl.MatchAllIn(screenGray)
}

// MatchLoop 循环匹配直到找到或超时
func MatchLoop(screenshotFn func() (image.Image, error), template string, timeout time.Duration, opts ...TemplateOption) (*Point, error) {
	tmpl := NewTemplate(template, opts...)
	startTime := time.Now()

	for {
		screen, err := screenshotFn()
		if err != nil {
			return nil, fmt.Errorf("截图失败: %w", err)
		}

		pos, err := tmpl.MatchIn(GrayFromImage(screen))
		if err != nil {
			return nil, err
		}
		if pos != nil {
			return pos, nil
		}

		if time.Since(startTime) > timeout {
			return nil, fmt.Errorf("匹配超时")
		}

		// 短暂休眠避免 CPU 占用过高
		time.Sleep(100 * time.Millisecond)
	}
}
