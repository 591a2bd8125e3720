package vision

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"
	"time"

	"github.com/zoeyai/pyrmatch/internal/logger"
	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
)

// ringPatch 生成 24x24 的测试图案，背景 128
func ringPatch() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 24, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 24; x++ {
			d := math.Hypot(float64(x-9), float64(y-11))
			v := 128 + 90*math.Exp(-(d-5)*(d-5)/6) - 50*math.Exp(-float64((x-17)*(x-17)+(y-6)*(y-6))/10)
			img.SetGray(x, y, color.Gray{Y: uint8(math.Round(v))})
		}
	}
	return img
}

// sceneWith 在 128 背景上粘贴 patch
func sceneWith(w, h int, patch *image.Gray, at ...image.Point) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	for _, p := range at {
		for y := 0; y < patch.Rect.Dy(); y++ {
			for x := 0; x < patch.Rect.Dx(); x++ {
				img.SetGray(p.X+x, p.Y+y, patch.GrayAt(x, y))
			}
		}
	}
	return img
}

func TestVersion(t *testing.T) {
	if Version == "" {
		t.Error("Version 不应为空")
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions

	if opts.CVThreshold != 0.9 {
		t.Errorf("CVThreshold 错误: got %.2f, want 0.9", opts.CVThreshold)
	}
	if opts.CoarseThreshold != 0.94 {
		t.Errorf("CoarseThreshold 错误: got %.2f, want 0.94", opts.CoarseThreshold)
	}
	if opts.Levels != 5 {
		t.Errorf("Levels 错误: got %d, want 5", opts.Levels)
	}
	if !opts.AutoLevels {
		t.Error("AutoLevels 应为 true")
	}
}

func TestOptions(t *testing.T) {
	original := *GetOptions()
	defer SetOptions(original)

	newOpts := DefaultOptions
	newOpts.CVThreshold = 0.95
	newOpts.CurrentPath = "/tmp/templates"
	newOpts.LogLevel = "ERROR"
	if err := SetOptions(newOpts); err != nil {
		t.Fatalf("SetOptions 出错: %v", err)
	}

	if GetOptions().CVThreshold != 0.95 {
		t.Errorf("SetOptions 失败: CVThreshold got %.2f", GetOptions().CVThreshold)
	}
	if cv.CurrentPath != "/tmp/templates" {
		t.Errorf("CurrentPath 未同步: got %q", cv.CurrentPath)
	}
	if got := logger.Default().GetLevel(); got != logger.ERROR {
		t.Errorf("日志级别未同步: got %s", got)
	}

	ResetOptions()
	if GetOptions().CVThreshold != 0.9 {
		t.Errorf("ResetOptions 失败: CVThreshold got %.2f", GetOptions().CVThreshold)
	}
	if cv.CurrentPath != "" {
		t.Errorf("ResetOptions 未重置 CurrentPath: got %q", cv.CurrentPath)
	}
}

func TestMatchConfig(t *testing.T) {
	cfg := defaultMatchConfig()

	if cfg.threshold != 0.9 || cfg.levels != 5 {
		t.Errorf("默认配置错误: %+v", cfg)
	}
	if cfg.timeout != 10*time.Second {
		t.Errorf("默认超时错误: got %s", cfg.timeout)
	}

	cfg = newMatchConfig([]Option{
		WithThreshold(0.95),
		WithLevels(2),
		WithCoarseThreshold(0.8),
		WithTimeout(2 * time.Second),
		WithTargetPos(TargetPosTopLeft),
	})
	if cfg.threshold != 0.95 || cfg.levels != 2 || cfg.coarseThreshold != 0.8 {
		t.Errorf("Option 设置失败: %+v", cfg)
	}
	if cfg.timeout != 2*time.Second || cfg.targetPos != TargetPosTopLeft {
		t.Errorf("Option 设置失败: %+v", cfg)
	}
}

func TestTargetPos(t *testing.T) {
	r := &MatchResult{Result: Point{X: 5, Y: 5}, Rectangle: Rectangle{TopLeft: Point{}, BottomRight: Point{X: 10, Y: 10}}}

	if got := TargetPosBottomRight.GetPosition(r); got != (Point{X: 10, Y: 10}) {
		t.Errorf("BottomRight 错误: got %+v", got)
	}
	if got := TargetPosMid.GetPosition(r); got != (Point{X: 5, Y: 5}) {
		t.Errorf("Mid 错误: got %+v", got)
	}
	if got := TargetPosMid.GetPosition(nil); got != (Point{}) {
		t.Errorf("nil 结果应返回零值: got %+v", got)
	}
}

func TestFindLocation(t *testing.T) {
	screen := sceneWith(200, 160, ringPatch(), image.Pt(80, 48))

	pos, err := FindLocation(screen, ringPatch(), WithLevels(3))
	if err != nil {
		t.Fatalf("FindLocation 失败: %v", err)
	}
	if pos == nil {
		t.Fatal("应找到匹配")
	}
	if pos.X != 92 || pos.Y != 60 {
		t.Errorf("位置错误: got (%d, %d), want (92, 60)", pos.X, pos.Y)
	}

	pos, err = FindLocation(screen, ringPatch(), WithLevels(3), WithTargetPos(TargetPosTopLeft))
	if err != nil || pos == nil {
		t.Fatalf("FindLocation 失败: %v", err)
	}
	if pos.X != 80 || pos.Y != 48 {
		t.Errorf("左上角错误: got (%d, %d), want (80, 48)", pos.X, pos.Y)
	}
}

func TestFindAllLocations(t *testing.T) {
	screen := sceneWith(256, 128, ringPatch(), image.Pt(16, 16), image.Pt(168, 72))

	results, err := FindAllLocations(screen, ringPatch(), WithLevels(3))
	if err != nil {
		t.Fatalf("FindAllLocations 失败: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("结果数量错误: got %d, want 2", len(results))
	}
	for _, r := range results {
		if r.Confidence < 0.99 {
			t.Errorf("置信度过低: %.4f", r.Confidence)
		}
		w := r.Rectangle.BottomRight.X - r.Rectangle.TopLeft.X
		h := r.Rectangle.BottomRight.Y - r.Rectangle.TopLeft.Y
		if w != 24 || h != 24 {
			t.Errorf("矩形尺寸错误: %dx%d", w, h)
		}
	}

	results, err = FindAllLocations(screen, ringPatch(), WithLevels(3), WithMaxResults(1))
	if err != nil {
		t.Fatalf("FindAllLocations 失败: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("MaxResults 未生效: got %d", len(results))
	}
}

func TestReport(t *testing.T) {
	screen := sceneWith(200, 160, ringPatch(), image.Pt(80, 48))

	report, err := Report(context.Background(), screen, ringPatch(), WithLevels(5))
	if err != nil {
		t.Fatalf("Report 失败: %v", err)
	}
	// 24x24 模板自动裁剪为 2 层
	if report.StoppedAt != 2 || !report.Completed {
		t.Errorf("层数错误: stopped=%d completed=%v", report.StoppedAt, report.Completed)
	}
	if !report.Found() {
		t.Error("应找到匹配")
	}
}

func TestFindLocationInvalidInput(t *testing.T) {
	if _, err := FindLocation(12, ringPatch()); err == nil {
		t.Error("不支持的源图像类型应返回错误")
	}
}
