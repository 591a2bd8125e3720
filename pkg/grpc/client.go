package grpc

import (
	"context"
	"fmt"
	"image"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/zoeyai/pyrmatch/pkg/vision/cv"
)

// ClientConfig 客户端配置
type ClientConfig struct {
	// ServerURL 服务端地址 (host:port)
	ServerURL string
	// DialOptions 额外的连接选项，为空时使用明文连接
	DialOptions []gogrpc.DialOption
}

// DefaultConfig 默认配置
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL: "localhost:50051",
	}
}

// Client 匹配服务客户端
type Client struct {
	config *ClientConfig
	conn   *gogrpc.ClientConn
}

// NewClient 创建客户端，config 为 nil 时使用默认配置
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}
	opts := config.DialOptions
	if len(opts) == 0 {
		opts = []gogrpc.DialOption{gogrpc.WithTransportCredentials(insecure.NewCredentials())}
	}

	conn, err := gogrpc.NewClient(config.ServerURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("连接 %s 失败: %w", config.ServerURL, err)
	}
	return &Client{config: config, conn: conn}, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.conn.Close()
}

// Match 发送匹配请求
func (c *Client) Match(ctx context.Context, req *MatchRequest) (*MatchResponse, error) {
	in, err := req.toStruct()
	if err != nil {
		return nil, fmt.Errorf("编码请求失败: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, MatchFullMethod, in, out); err != nil {
		return nil, err
	}
	return matchResponseFromStruct(out), nil
}

// MatchImages 编码图像并发送匹配请求
func (c *Client) MatchImages(ctx context.Context, src, tpl image.Image, requestID string) (*MatchResponse, error) {
	srcData, err := cv.EncodePNGData(src)
	if err != nil {
		return nil, err
	}
	tplData, err := cv.EncodePNGData(tpl)
	if err != nil {
		return nil, err
	}
	if requestID != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, RequestIDHeader, requestID)
	}
	return c.Match(ctx, &MatchRequest{Source: srcData, Template: tplData})
}

// Info 查询服务端信息
func (c *Client) Info(ctx context.Context) (*SystemInfo, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, InfoFullMethod, &structpb.Struct{}, out); err != nil {
		return nil, err
	}
	return systemInfoFromStruct(out), nil
}
