// Package vision 提供基于图像金字塔的模板匹配功能
//
// 基本用法:
//
//	pos, err := vision.FindLocation("screen.png", "template.png")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if pos != nil {
//	    fmt.Printf("找到位置: (%d, %d)\n", pos.X, pos.Y)
//	}
//
//	// 查找全部匹配
//	results, err := vision.FindAllLocations("screen.png", "icon.png",
//	    vision.WithThreshold(0.95), vision.WithLevels(3))
package vision

import (
	"context"
	"image"
	"time"

	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
)

// ============ CV 便捷函数 ============

// FindLocation 在源图像中查找模板位置
// screen: 源图像 (文件路径、image.Image 或 *cv.Gray)
// template: 模板 (文件路径、image.Image、*cv.Gray 或 *cv.Template)
// opts: 可选配置
func FindLocation(screen, template interface{}, opts ...Option) (*Point, error) {
	cfg := newMatchConfig(opts)

	results, err := cv.FindAllLocations(screen, template, buildCVOptions(cfg)...)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	pos := cfg.targetPos.GetPosition(results[0])
	return &pos, nil
}

// FindAllLocations 在源图像中查找所有模板位置，按置信度降序
func FindAllLocations(screen, template interface{}, opts ...Option) ([]*MatchResult, error) {
	cfg := newMatchConfig(opts)

	return cv.FindAllLocations(screen, template, buildCVOptions(cfg)...)
}

// Report 执行匹配并返回包含每层统计的完整报告
func Report(ctx context.Context, screen, template interface{}, opts ...Option) (*cv.MatchReport, error) {
	cfg := newMatchConfig(opts)

	src, err := cv.LoadGrayInput(screen)
	if err != nil {
		return nil, err
	}
	tmpl, err := toTemplate(template, cfg)
	if err != nil {
		return nil, err
	}
	return tmpl.Report(ctx, src)
}

// MatchLoop 循环匹配直到找到或超时
func MatchLoop(screenshotFn func() (image.Image, error), template string, opts ...Option) (*Point, error) {
	cfg := newMatchConfig(opts)

	return cv.MatchLoop(screenshotFn, template, cfg.timeout, buildCVOptions(cfg)...)
}

// buildCVOptions 构建 CV 选项
func buildCVOptions(cfg *matchConfig) []cv.TemplateOption {
	return []cv.TemplateOption{
		cv.WithTemplateThreshold(cfg.threshold),
		cv.WithTemplateLevels(cfg.levels),
		cv.WithTemplateAutoLevels(cfg.autoLevels),
		cv.WithTemplateMatchOptions(
			cv.WithCoarseThreshold(cfg.coarseThreshold),
			cv.WithWorkers(cfg.workers),
			cv.WithMaxResults(cfg.maxResults),
		),
	}
}

// toTemplate 将模板参数转换为 *cv.Template
func toTemplate(template interface{}, cfg *matchConfig) (*cv.Template, error) {
	switch v := template.(type) {
	case *cv.Template:
		return v, nil
	case string:
		return cv.NewTemplate(v, buildCVOptions(cfg)...), nil
	default:
		g, err := cv.LoadGrayInput(v)
		if err != nil {
			return nil, err
		}
		return cv.NewTemplateFromGray("memory", g, buildCVOptions(cfg)...), nil
	}
}

// ============ 工具函数 ============

// ReadImage 读取图像文件
func ReadImage(filename string) (image.Image, error) {
	return cv.ReadImage(filename)
}

// LoadImage 加载灰度图像 (支持多种输入类型)
func LoadImage(input interface{}) (*cv.Gray, error) {
	return cv.LoadGrayInput(input)
}

// ============ Template 快捷创建 ============

// NewTemplate 创建模板
func NewTemplate(filename string, opts ...Option) *cv.Template {
	return cv.NewTemplate(filename, buildCVOptions(newMatchConfig(opts))...)
}

// ============ 类型别名 ============

// Template 模板类型别名
type Template = cv.Template

// ============ 常量 ============

// 超时常量
const (
	DefaultTimeout = 10 * time.Second
)
