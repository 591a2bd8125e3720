// Package grpc 提供金字塔模板匹配的 gRPC 服务与客户端
//
// 服务 pyrmatch.Matcher 使用 google.protobuf.Struct 作为消息体，
// 图像以 base64 或 data URL 字符串传输。
package grpc

import (
	"context"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// 服务与方法名
const (
	ServiceName      = "pyrmatch.Matcher"
	MatchFullMethod  = "/" + ServiceName + "/Match"
	InfoFullMethod   = "/" + ServiceName + "/Info"
	RequestIDHeader  = "x-request-id"
	defaultRateBurst = 4
)

// MatcherServer 匹配服务接口
type MatcherServer interface {
	Match(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Info(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterMatcherServer 注册服务实现
func RegisterMatcherServer(s gogrpc.ServiceRegistrar, srv MatcherServer) {
	s.RegisterService(&MatcherServiceDesc, srv)
}

func matchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor gogrpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatcherServer).Match(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: MatchFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MatcherServer).Match(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func infoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor gogrpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MatcherServer).Info(ctx, in)
	}
	info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: InfoFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MatcherServer).Info(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// MatcherServiceDesc 服务描述
var MatcherServiceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatcherServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{MethodName: "Match", Handler: matchHandler},
		{MethodName: "Info", Handler: infoHandler},
	},
	Streams:  []gogrpc.StreamDesc{},
	Metadata: "pyrmatch/matcher.proto",
}
