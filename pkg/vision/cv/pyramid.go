package cv

// Pyramid 图像金字塔，下标 0 为最粗糙层，最后一层为原图
type Pyramid []*Gray

// Levels 返回降采样次数（len-1）
func (p Pyramid) Levels() int {
	return len(p) - 1
}

// Finest 返回原始分辨率层
func (p Pyramid) Finest() *Gray {
	return p[len(p)-1]
}

// Coarsest 返回最粗糙层
func (p Pyramid) Coarsest() *Gray {
	return p[0]
}

// pyrKernel 5 阶二项式核 [1 4 6 4 1]/16
var pyrKernel = [5]float64{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}

// BuildPyramid 构建 levels+1 层高斯金字塔
//
// 每层由上一层经 5x5 二项式平滑（reflect-101 边界）后取偶数行列得到，
// 尺寸为 ((w+1)/2, (h+1)/2)。最后一层就是传入的 img 本身。
func BuildPyramid(img *Gray, levels int) (Pyramid, error) {
	if levels < 0 {
		return nil, ErrInvalidLevelCount
	}
	if img.Empty() {
		return nil, ErrEmptyImage
	}
	if maxLv := MaxLevels(img.W, img.H); levels > maxLv {
		return nil, &ImageTooSmallError{
			Size:      [2]int{img.W, img.H},
			Requested: levels,
			Achieved:  maxLv,
		}
	}

	pyr := make(Pyramid, levels+1)
	pyr[levels] = img
	for i := levels - 1; i >= 0; i-- {
		pyr[i] = PyrDown(pyr[i+1])
	}
	return pyr, nil
}

// MaxLevels 返回 w x h 图像可以构建的最大层数
// 宽或高小于 2 的层不能再降采样
func MaxLevels(w, h int) int {
	n := 0
	for w >= 2 && h >= 2 {
		w = (w + 1) / 2
		h = (h + 1) / 2
		n++
	}
	return n
}

// PyrDown 高斯平滑后 2 倍降采样
func PyrDown(src *Gray) *Gray {
	dw, dh := (src.W+1)/2, (src.H+1)/2

	// 先在水平方向平滑并抽取偶数列
	tmp := make([]float64, dw*src.H)
	for y := 0; y < src.H; y++ {
		row := src.Pix[y*src.W : (y+1)*src.W]
		for x := 0; x < dw; x++ {
			cx := 2 * x
			var sum float64
			for k := -2; k <= 2; k++ {
				sum += pyrKernel[k+2] * row[reflect101(cx+k, src.W)]
			}
			tmp[y*dw+x] = sum
		}
	}

	// 再在垂直方向平滑并抽取偶数行
	dst := NewGray(dw, dh)
	for y := 0; y < dh; y++ {
		cy := 2 * y
		for k := -2; k <= 2; k++ {
			wk := pyrKernel[k+2]
			sy := reflect101(cy+k, src.H)
			srow := tmp[sy*dw : (sy+1)*dw]
			drow := dst.Pix[y*dw : (y+1)*dw]
			for x := range drow {
				drow[x] += wk * srow[x]
			}
		}
	}
	return dst
}

// reflect101 边界映射: gfedcb|abcdefgh|gfedcba
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}
