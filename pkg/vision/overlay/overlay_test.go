package overlay

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
)

func grayScreen(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 40
	}
	return img
}

func TestDrawBoxes(t *testing.T) {
	cands := []cv.MatchCandidate{{X: 20, Y: 30, Score: 0.98}}

	out, err := Draw(grayScreen(120, 80), cands, image.Pt(16, 10), DefaultStyle)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 120, 80), out.Bounds())

	// 边框的四个角
	box := DefaultStyle.Box
	assert.Equal(t, box, out.RGBAAt(20, 30))
	assert.Equal(t, box, out.RGBAAt(35, 39))
	// 框内部保持原样
	assert.Equal(t, color.RGBA{R: 40, G: 40, B: 40, A: 255}, out.RGBAAt(27, 35))
	// 框上方有标签背景
	assert.NotEqual(t, color.RGBA{R: 40, G: 40, B: 40, A: 255}, out.RGBAAt(21, 27))
}

func TestDrawLabelBelowWhenAtTop(t *testing.T) {
	cands := []cv.MatchCandidate{{X: 0, Y: 0, Score: 0.91}}

	out, err := Draw(grayScreen(64, 64), cands, image.Pt(20, 20), DefaultStyle)
	require.NoError(t, err)
	// 标签移到框下方
	assert.NotEqual(t, color.RGBA{R: 40, G: 40, B: 40, A: 255}, out.RGBAAt(2, 21))
}

func TestDrawDoesNotModifySource(t *testing.T) {
	src := grayScreen(50, 50)
	_, err := Draw(src, []cv.MatchCandidate{{X: 5, Y: 5, Score: 0.95}}, image.Pt(10, 10), DefaultStyle)
	require.NoError(t, err)
	for _, v := range src.Pix {
		require.Equal(t, uint8(40), v)
	}
}

func TestSavePNG(t *testing.T) {
	out, err := Draw(grayScreen(32, 32), nil, image.Pt(4, 4), DefaultStyle)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "result.png")
	require.NoError(t, SavePNG(path, out))

	img, err := cv.ReadImage(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 32), img.Bounds())
}
