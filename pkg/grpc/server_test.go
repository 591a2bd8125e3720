package grpc

import (
	"context"
	"image"
	"image/color"
	"io"
	"math"
	"net"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zoeyai/pyrmatch/pkg/config"
)

// blob 生成 32x32 双斑点图案
func blob() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			d1 := float64((x-11)*(x-11) + (y-13)*(y-13))
			d2 := float64((x-21)*(x-21) + (y-19)*(y-19))
			v := 128 + 80*math.Exp(-d1/32) - 60*math.Exp(-d2/32)
			img.SetGray(x, y, color.Gray{Y: uint8(math.Round(v))})
		}
	}
	return img
}

// screen 在 128 背景上的 (x, y) 处放置 blob
func screen(w, h, x, y int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	p := blob()
	for yy := 0; yy < 32; yy++ {
		for xx := 0; xx < 32; xx++ {
			img.SetGray(x+xx, y+yy, p.GrayAt(xx, yy))
		}
	}
	return img
}

// testConfig 32x32 模板使用 2 层金字塔
func testConfig() *config.MatchConfig {
	cfg := config.DefaultMatchConfig()
	cfg.Levels = 2
	return cfg
}

// startServer 启动基于 bufconn 的服务并返回客户端
func startServer(t *testing.T, cfg *config.MatchConfig) (*Server, *Client) {
	t.Helper()

	if cfg == nil {
		cfg = testConfig()
	}
	lis := bufconn.Listen(1 << 20)
	srv, err := NewServer(cfg, nil)
	require.NoError(t, err)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := NewClient(&ClientConfig{
		ServerURL: "passthrough:///bufnet",
		DialOptions: []gogrpc.DialOption{
			gogrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return srv, client
}

func TestMatchImages(t *testing.T) {
	srv, client := startServer(t, nil)

	resp, err := client.MatchImages(context.Background(), screen(160, 128, 64, 32), blob(), "req-1")
	require.NoError(t, err)

	assert.Equal(t, "req-1", resp.RequestID)
	assert.True(t, resp.Found)
	assert.True(t, resp.Completed)
	assert.Equal(t, [2]int{32, 32}, resp.Template)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, 64, resp.Candidates[0].X)
	assert.Equal(t, 32, resp.Candidates[0].Y)
	assert.Greater(t, resp.Candidates[0].Score, 0.99)
	assert.Equal(t, 2, resp.StoppedAt)
	assert.Len(t, resp.Levels, 3)

	assert.Equal(t, 1.0, testutil.ToFloat64(srv.Metrics().requests.WithLabelValues("OK")))
}

func TestMatchGeneratesRequestID(t *testing.T) {
	_, client := startServer(t, nil)

	resp, err := client.MatchImages(context.Background(), screen(128, 128, 32, 64), blob(), "")
	require.NoError(t, err)
	_, err = uuid.Parse(resp.RequestID)
	assert.NoError(t, err)
}

func TestMatchOverrides(t *testing.T) {
	_, client := startServer(t, nil)

	src, err := encode(screen(160, 128, 64, 32))
	require.NoError(t, err)
	tpl, err := encode(blob())
	require.NoError(t, err)

	resp, err := client.Match(context.Background(), &MatchRequest{
		Source:         src,
		Template:       tpl,
		Levels:         Int(1),
		FinalThreshold: Float(0.95),
		MaxResults:     Int(1),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.StoppedAt)
	require.Len(t, resp.Levels, 2)
	assert.Equal(t, 80, resp.Levels[0].Width)
	require.Len(t, resp.Candidates, 1)
}

func TestMatchErrors(t *testing.T) {
	_, client := startServer(t, nil)
	src, err := encode(screen(64, 64, 0, 0))
	require.NoError(t, err)
	tpl, err := encode(blob())
	require.NoError(t, err)

	tests := []struct {
		name string
		req  *MatchRequest
		code codes.Code
	}{
		{"缺少模板", &MatchRequest{Source: src}, codes.InvalidArgument},
		{"无效 base64", &MatchRequest{Source: "@@@", Template: tpl}, codes.InvalidArgument},
		{"模板大于源图像", &MatchRequest{Source: tpl, Template: src}, codes.FailedPrecondition},
		{"层数过多", &MatchRequest{Source: src, Template: tpl, Levels: Int(7)}, codes.FailedPrecondition},
		{"无效阈值", &MatchRequest{Source: src, Template: tpl, Levels: Int(1), CoarseThreshold: Float(1.2)}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Match(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err), "%v", err)
		})
	}
}

func TestMatchNonIntegerLevels(t *testing.T) {
	_, client := startServer(t, nil)

	in, err := structpb.NewStruct(map[string]interface{}{
		"source":   "a",
		"template": "b",
		"levels":   2.5,
	})
	require.NoError(t, err)
	err = client.conn.Invoke(context.Background(), MatchFullMethod, in, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	srv, client := startServer(t, cfg)

	okCount := 0
	var lastErr error
	for i := 0; i < defaultRateBurst+1; i++ {
		_, err := client.MatchImages(context.Background(), screen(64, 64, 16, 16), blob(), "")
		if err == nil {
			okCount++
		} else {
			lastErr = err
		}
	}
	assert.Equal(t, defaultRateBurst, okCount)
	assert.Equal(t, codes.ResourceExhausted, status.Code(lastErr))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.Metrics().rejected))
}

func TestInfo(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 3
	_, client := startServer(t, cfg)

	info, err := client.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Version, info.ServerVersion)
	assert.Equal(t, 3, info.Workers)
	assert.NotEmpty(t, info.Platform)
}

func TestNewServerInvalidConfig(t *testing.T) {
	cfg := config.DefaultMatchConfig()
	cfg.FinalThreshold = 0
	_, err := NewServer(cfg, nil)
	assert.Error(t, err)
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.observe("OK", 0)
	m.observeReport(2, 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "pyrmatch_match_requests_total")
	assert.Contains(t, string(body), "pyrmatch_match_stop_level")
}

func TestGetSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	assert.NotEmpty(t, info.Hostname)
	assert.NotEmpty(t, info.Platform)
	assert.Equal(t, Version, info.ServerVersion)
	assert.Greater(t, info.Workers, 0)
}
