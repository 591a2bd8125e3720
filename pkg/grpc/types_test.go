package grpc

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
)

func encode(img image.Image) (string, error) {
	return cv.EncodePNGData(img)
}

func TestMatchRequestStruct(t *testing.T) {
	req := &MatchRequest{Source: "s", Template: "t", Levels: Int(0), CoarseThreshold: Float(0.8)}

	st, err := req.toStruct()
	require.NoError(t, err)

	back, err := matchRequestFromStruct(st)
	require.NoError(t, err)
	require.NotNil(t, back.Levels)
	assert.Equal(t, 0, *back.Levels)
	assert.Equal(t, 0.8, *back.CoarseThreshold)
	assert.Nil(t, back.FinalThreshold)
	assert.Nil(t, back.MaxResults)
}

func TestMatchResponseStruct(t *testing.T) {
	report := &cv.MatchReport{
		Candidates:   []cv.MatchCandidate{{X: 3, Y: 4, Score: 0.97}},
		Levels:       []cv.LevelStats{{Level: 0, Width: 20, Height: 10, ROIs: 1, Retained: 5, Elapsed: time.Millisecond}},
		Completed:    true,
		Depth:        2,
		StoppedAt:    2,
		TemplateSize: image.Pt(8, 6),
		Elapsed:      1500 * time.Microsecond,
	}

	st, err := newMatchResponse("id", report).toStruct()
	require.NoError(t, err)

	resp := matchResponseFromStruct(st)
	assert.Equal(t, "id", resp.RequestID)
	assert.True(t, resp.Found)
	assert.Equal(t, 1.5, resp.ElapsedMs)
	assert.Equal(t, 2, resp.Depth)
	assert.Equal(t, 2, resp.StoppedAt)
	assert.Equal(t, [2]int{8, 6}, resp.Template)
	assert.Equal(t, report.Candidates, resp.Candidates)
	require.Len(t, resp.Levels, 1)
	assert.Equal(t, 5, resp.Levels[0].Retained)
}
