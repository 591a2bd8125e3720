// Package cv 提供基于图像金字塔的快速模板匹配
//
// 匹配流程:
//   - 对源图像和模板分别构建高斯金字塔（5 阶二项式核, reflect-101 边界, 尺寸向上取整减半）
//   - 在最粗糙层全图计算能量归一化互相关 (TM_CCORR_NORMED)
//   - 低于阈值的得分置零, 剩余得分 2 倍上采样后提取 8 连通区域, 作为下一层的 ROI
//   - 逐层细化, 最细层每个连通区域的峰值即为一个匹配
//
// 基本用法:
//
//	// 在截图中查找模板
//	pos, err := cv.FindLocation("screen.png", "template.png")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("找到位置: (%d, %d)\n", pos.X, pos.Y)
//
//	// 直接使用灰度缓冲区
//	cands, err := cv.Match(src, tpl, 3, 0.94, 0.9)
//
//	// 使用自定义选项
//	m, err := cv.NewPyramidMatcher(
//	    cv.WithLevels(4),
//	    cv.WithCoarseThreshold(0.9),
//	)
//	report, err := m.Match(ctx, src, tpl)
package cv
