package cv

import (
	"math"
	"math/rand/v2"
)

// noiseGray 生成 0-255 均匀分布的随机灰度图
func noiseGray(w, h int, seed uint64) *Gray {
	r := rand.New(rand.NewPCG(seed, seed*7919+1))
	g := NewGray(w, h)
	for i := range g.Pix {
		g.Pix[i] = r.Float64() * 255
	}
	return g
}

// constGray 生成常量灰度图
func constGray(w, h int, v float64) *Gray {
	g := NewGray(w, h)
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

// blobPatch 生成 32x32 的双斑点图案，背景为 128
// 一个亮斑 (11,13) 和一个暗斑 (21,19)，σ=4
func blobPatch() *Gray {
	return scaledBlob(1)
}

// scaledBlob 把 blobPatch 的图案放大 k 倍
func scaledBlob(k int) *Gray {
	const bg = 128.0
	s := float64(k)
	g := NewGray(32*k, 32*k)
	for y := 0; y < g.H; y++ {
		for x := 0; x < g.W; x++ {
			fx, fy := float64(x), float64(y)
			d1 := (fx-11*s)*(fx-11*s) + (fy-13*s)*(fy-13*s)
			d2 := (fx-21*s)*(fx-21*s) + (fy-19*s)*(fy-19*s)
			g.Set(x, y, bg+80*math.Exp(-d1/(32*s*s))-60*math.Exp(-d2/(32*s*s)))
		}
	}
	return g
}

// unalignedOffsets 生成 n 个不是 8 的倍数的随机放置位置
func unalignedOffsets(n, maxX, maxY int, seed uint64) [][2]int {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b9))
	out := make([][2]int, 0, n)
	for len(out) < n {
		x, y := r.IntN(maxX+1), r.IntN(maxY+1)
		if x%8 == 0 && y%8 == 0 {
			continue
		}
		out = append(out, [2]int{x, y})
	}
	return out
}

// scene 生成背景为 128 的场景，并把 patch 粘贴到每个位置
func scene(w, h int, patch *Gray, at ...[2]int) *Gray {
	g := constGray(w, h, 128)
	for _, p := range at {
		g.Paste(patch, p[0], p[1])
	}
	return g
}
