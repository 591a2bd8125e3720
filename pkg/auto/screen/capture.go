// Package screen 提供屏幕截图及截图坐标换算
package screen

import (
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"
)

// CaptureScreen 截取主显示器全屏
func CaptureScreen() (image.Image, error) {
	img, err := robotgo.CaptureImg()
	if err != nil {
		return nil, fmt.Errorf("截屏失败: %w", err)
	}
	return img, nil
}

// CaptureRegion 截取屏幕区域，region 使用屏幕逻辑坐标
func CaptureRegion(region image.Rectangle) (image.Image, error) {
	if region.Empty() {
		return nil, fmt.Errorf("截图区域为空: %v", region)
	}
	img, err := robotgo.CaptureImg(region.Min.X, region.Min.Y, region.Dx(), region.Dy())
	if err != nil {
		return nil, fmt.Errorf("截取区域 %v 失败: %w", region, err)
	}
	return img, nil
}

// GetScreenSize 获取主显示器逻辑尺寸
func GetScreenSize() (width, height int) {
	return robotgo.GetScreenSize()
}

// GetDisplayCount 获取显示器数量
func GetDisplayCount() int {
	return robotgo.DisplaysNum()
}
