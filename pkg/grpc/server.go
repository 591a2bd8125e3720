package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zoeyai/pyrmatch/internal/logger"
	"github.com/zoeyai/pyrmatch/pkg/config"
	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
)

// Server 匹配服务
type Server struct {
	cfg     *config.MatchConfig
	limiter *rate.Limiter
	metrics *Metrics
	grpc    *gogrpc.Server
}

// NewServer 创建匹配服务，cfg 为 nil 时使用默认配置
func NewServer(cfg *config.MatchConfig, metrics *Metrics, opts ...gogrpc.ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultMatchConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	s := &Server{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, max(defaultRateBurst, int(cfg.RateLimit))),
		metrics: metrics,
		grpc:    gogrpc.NewServer(opts...),
	}
	RegisterMatcherServer(s.grpc, s)
	return s, nil
}

// Metrics 返回服务指标
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Serve 在 lis 上提供服务，直到 Stop 或出错
func (s *Server) Serve(lis net.Listener) error {
	logger.Info("匹配服务监听: %s", lis.Addr())
	return s.grpc.Serve(lis)
}

// Stop 优雅停止服务
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

// Info 返回服务端系统信息
func (s *Server) Info(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	info := GetSystemInfo()
	if s.cfg.Workers > 0 {
		info.Workers = s.cfg.Workers
	}
	return info.toStruct()
}

// Match 处理匹配请求
func (s *Server) Match(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	requestID := requestIDFrom(ctx)

	out, report, err := s.match(ctx, requestID, in)
	code := status.Code(err)
	s.metrics.observe(code.String(), time.Since(start))

	if err != nil {
		logger.Warn("[%s] 匹配失败: %v", requestID, err)
		return nil, err
	}
	s.metrics.observeReport(len(report.Candidates), report.StoppedAt)
	logger.Info("[%s] 匹配完成: found=%d stop=%d 耗时=%s",
		requestID, len(report.Candidates), report.StoppedAt, time.Since(start))
	return out, nil
}

func (s *Server) match(ctx context.Context, requestID string, in *structpb.Struct) (*structpb.Struct, *cv.MatchReport, error) {
	if !s.limiter.Allow() {
		s.metrics.rejected.Inc()
		return nil, nil, status.Error(codes.ResourceExhausted, "请求过于频繁")
	}

	req, err := matchRequestFromStruct(in)
	if err != nil {
		return nil, nil, status.Error(codes.InvalidArgument, err.Error())
	}

	src, err := decodeGray(req.Source)
	if err != nil {
		return nil, nil, toStatus(fmt.Errorf("source: %w", err))
	}
	tpl, err := decodeGray(req.Template)
	if err != nil {
		return nil, nil, toStatus(fmt.Errorf("template: %w", err))
	}

	opts := s.cfg.MatchOptions()
	if req.Levels != nil {
		opts.Levels = *req.Levels
	}
	if req.CoarseThreshold != nil {
		opts.CoarseThreshold = *req.CoarseThreshold
	}
	if req.FinalThreshold != nil {
		opts.FinalThreshold = *req.FinalThreshold
	}
	if req.MaxResults != nil {
		opts.MaxResults = *req.MaxResults
	}

	m, err := cv.NewPyramidMatcher(cv.WithOptions(opts))
	if err != nil {
		return nil, nil, toStatus(err)
	}
	report, err := m.Match(ctx, src, tpl)
	if err != nil {
		return nil, nil, toStatus(err)
	}

	out, err := newMatchResponse(requestID, report).toStruct()
	if err != nil {
		return nil, nil, status.Error(codes.Internal, err.Error())
	}
	return out, report, nil
}

// decodeGray 解码 base64 图像为灰度缓冲区
func decodeGray(data string) (*cv.Gray, error) {
	img, err := cv.DecodeImageData(data)
	if err != nil {
		return nil, err
	}
	return cv.GrayFromImage(img), nil
}

// requestIDFrom 读取请求头中的请求 ID，缺失时生成新的 UUID
func requestIDFrom(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" {
			return ids[0]
		}
	}
	return uuid.NewString()
}

// toStatus 将匹配错误映射为 gRPC 状态码
func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, cv.ErrImageTooSmall),
		errors.Is(err, cv.ErrTemplateLargerThanSearch):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, cv.ErrDecode),
		errors.Is(err, cv.ErrEmptyImage),
		errors.Is(err, cv.ErrInvalidLevelCount),
		errors.Is(err, cv.ErrInvalidThreshold):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
