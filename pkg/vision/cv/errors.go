package cv

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLevelCount 金字塔层数为负
	ErrInvalidLevelCount = errors.New("金字塔层数不能为负数")
	// ErrImageTooSmall 图像尺寸不足以构建请求的层数
	ErrImageTooSmall = errors.New("图像尺寸过小，无法继续降采样")
	// ErrTemplateLargerThanSearch 模板大于搜索区域
	ErrTemplateLargerThanSearch = errors.New("模板尺寸大于搜索区域")
	// ErrInvalidThreshold 阈值不在 (0, 1) 区间
	ErrInvalidThreshold = errors.New("阈值必须位于 (0, 1) 区间")
	// ErrEmptyImage 输入图像为空
	ErrEmptyImage = errors.New("图像为空")
)

// ImageTooSmallError 降采样时尺寸不足
type ImageTooSmallError struct {
	// Size 原始图像尺寸 (宽, 高)
	Size [2]int
	// Requested 请求的层数
	Requested int
	// Achieved 实际可达到的层数
	Achieved int
}

func (e *ImageTooSmallError) Error() string {
	return fmt.Sprintf("%v: 图像 %dx%d 请求 %d 层, 最多 %d 层",
		ErrImageTooSmall, e.Size[0], e.Size[1], e.Requested, e.Achieved)
}

func (e *ImageTooSmallError) Unwrap() error { return ErrImageTooSmall }

// TemplateLargerThanSearchError 模板尺寸错误
type TemplateLargerThanSearchError struct {
	SearchSize   [2]int
	TemplateSize [2]int
}

func (e *TemplateLargerThanSearchError) Error() string {
	return fmt.Sprintf("%v: 搜索区域 %dx%d, 模板 %dx%d", ErrTemplateLargerThanSearch,
		e.SearchSize[0], e.SearchSize[1], e.TemplateSize[0], e.TemplateSize[1])
}

func (e *TemplateLargerThanSearchError) Unwrap() error { return ErrTemplateLargerThanSearch }

func checkTemplateFits(sw, sh, tw, th int) error {
	if tw <= 0 || th <= 0 || sw < tw || sh < th {
		return &TemplateLargerThanSearchError{
			SearchSize:   [2]int{sw, sh},
			TemplateSize: [2]int{tw, th},
		}
	}
	return nil
}
