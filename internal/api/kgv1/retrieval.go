// Package kgv1 declares the kg.v1.RetrievalService gRPC API.
//
// Requests and responses are google.protobuf.Struct documents carrying the
// same JSON fields as the HTTP API, so the service needs no generated code.
package kgv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "kg.v1.RetrievalService"

const (
	RetrievalService_Retrieve_FullMethodName    = "/kg.v1.RetrievalService/Retrieve"
	RetrievalService_ListSources_FullMethodName = "/kg.v1.RetrievalService/ListSources"
	RetrievalService_GetOverview_FullMethodName = "/kg.v1.RetrievalService/GetOverview"
	RetrievalService_GetObject_FullMethodName   = "/kg.v1.RetrievalService/GetObject"
)

// RetrievalServiceClient is the client API for RetrievalService.
type RetrievalServiceClient interface {
	// Retrieve runs a retrieval request and returns excerpts and reports
	Retrieve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	// ListSources returns every source in the store
	ListSources(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	// GetOverview returns report counts per source and row counts per table
	GetOverview(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	// GetObject returns one row by kind and id, with its parent rows.
	// The request carries "kind" and "id".
	GetObject(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type retrievalServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRetrievalServiceClient creates a client over cc
func NewRetrievalServiceClient(cc grpc.ClientConnInterface) RetrievalServiceClient {
	return &retrievalServiceClient{cc}
}

func (c *retrievalServiceClient) Retrieve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RetrievalService_Retrieve_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *retrievalServiceClient) ListSources(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RetrievalService_ListSources_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *retrievalServiceClient) GetOverview(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RetrievalService_GetOverview_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *retrievalServiceClient) GetObject(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, RetrievalService_GetObject_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RetrievalServiceServer is the server API for RetrievalService.
type RetrievalServiceServer interface {
	Retrieve(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSources(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetOverview(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetObject(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedRetrievalServiceServer can be embedded for forward compatibility
type UnimplementedRetrievalServiceServer struct{}

func (UnimplementedRetrievalServiceServer) Retrieve(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Retrieve not implemented")
}

func (UnimplementedRetrievalServiceServer) ListSources(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListSources not implemented")
}

func (UnimplementedRetrievalServiceServer) GetOverview(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetOverview not implemented")
}

func (UnimplementedRetrievalServiceServer) GetObject(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetObject not implemented")
}

// RegisterRetrievalServiceServer registers srv on s
func RegisterRetrievalServiceServer(s grpc.ServiceRegistrar, srv RetrievalServiceServer) {
	s.RegisterService(&RetrievalService_ServiceDesc, srv)
}

func _RetrievalService_Retrieve_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RetrievalServiceServer).Retrieve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RetrievalService_Retrieve_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RetrievalServiceServer).Retrieve(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _RetrievalService_ListSources_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RetrievalServiceServer).ListSources(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RetrievalService_ListSources_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RetrievalServiceServer).ListSources(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _RetrievalService_GetOverview_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RetrievalServiceServer).GetOverview(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RetrievalService_GetOverview_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RetrievalServiceServer).GetOverview(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _RetrievalService_GetObject_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RetrievalServiceServer).GetObject(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RetrievalService_GetObject_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(RetrievalServiceServer).GetObject(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RetrievalService_ServiceDesc is the grpc.ServiceDesc for RetrievalService
var RetrievalService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RetrievalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Retrieve",
			Handler:    _RetrievalService_Retrieve_Handler,
		},
		{
			MethodName: "ListSources",
			Handler:    _RetrievalService_ListSources_Handler,
		},
		{
			MethodName: "GetOverview",
			Handler:    _RetrievalService_GetOverview_Handler,
		},
		{
			MethodName: "GetObject",
			Handler:    _RetrievalService_GetObject_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kg/v1/retrieval.proto",
}
