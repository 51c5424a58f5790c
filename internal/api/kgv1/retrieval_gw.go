package kgv1

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// HTTP routes served by the gateway
const (
	PathRagRetrieval = "/rag-retrieval"
	PathRetrieve     = "/v1/retrieve"
	PathSources      = "/v1/sources"
	PathOverview     = "/v1/overview"
	PathObject       = "/v1/objects/{kind}/{id}"
)

// queryParams maps accepted query parameters onto request fields. When two
// aliases of one field are sent, the earlier entry wins.
var queryParams = []struct {
	param string
	field string
}{
	{"q", "query"},
	{"query", "query"},
	{"dataset", "dataset"},
	{"report", "report"},
	{"earliest_year", "earliest_year"},
	{"diversity", "diversity"},
	{"maxcount", "max_count"},
	{"max_count", "max_count"},
	{"max_excerpts_per_report", "max_excerpts_per_report"},
}

// RegisterRetrievalServiceHandler registers the HTTP routes of
// RetrievalService on mux, forwarding to conn.
func RegisterRetrievalServiceHandler(ctx context.Context, mux *runtime.ServeMux, conn *grpc.ClientConn) error {
	return RegisterRetrievalServiceHandlerClient(ctx, mux, NewRetrievalServiceClient(conn))
}

// RegisterRetrievalServiceHandlerClient registers the HTTP routes of
// RetrievalService on mux, forwarding to client.
func RegisterRetrievalServiceHandlerClient(_ context.Context, mux *runtime.ServeMux, client RetrievalServiceClient) error {
	routes := []struct {
		method  string
		path    string
		rpc     string
		decode  func(*runtime.ServeMux, *http.Request, map[string]string) (proto.Message, error)
		forward func(context.Context, proto.Message, ...grpc.CallOption) (proto.Message, error)
	}{
		{
			method: http.MethodGet,
			path:   PathRagRetrieval,
			rpc:    RetrievalService_Retrieve_FullMethodName,
			decode: decodeQuery,
			forward: func(ctx context.Context, in proto.Message, opts ...grpc.CallOption) (proto.Message, error) {
				return client.Retrieve(ctx, in.(*structpb.Struct), opts...)
			},
		},
		{
			method: http.MethodPost,
			path:   PathRetrieve,
			rpc:    RetrievalService_Retrieve_FullMethodName,
			decode: decodeBody,
			forward: func(ctx context.Context, in proto.Message, opts ...grpc.CallOption) (proto.Message, error) {
				return client.Retrieve(ctx, in.(*structpb.Struct), opts...)
			},
		},
		{
			method: http.MethodGet,
			path:   PathSources,
			rpc:    RetrievalService_ListSources_FullMethodName,
			decode: decodeEmpty,
			forward: func(ctx context.Context, in proto.Message, opts ...grpc.CallOption) (proto.Message, error) {
				return client.ListSources(ctx, in.(*emptypb.Empty), opts...)
			},
		},
		{
			method: http.MethodGet,
			path:   PathOverview,
			rpc:    RetrievalService_GetOverview_FullMethodName,
			decode: decodeEmpty,
			forward: func(ctx context.Context, in proto.Message, opts ...grpc.CallOption) (proto.Message, error) {
				return client.GetOverview(ctx, in.(*emptypb.Empty), opts...)
			},
		},
		{
			method: http.MethodGet,
			path:   PathObject,
			rpc:    RetrievalService_GetObject_FullMethodName,
			decode: decodePath,
			forward: func(ctx context.Context, in proto.Message, opts ...grpc.CallOption) (proto.Message, error) {
				return client.GetObject(ctx, in.(*structpb.Struct), opts...)
			},
		},
	}

	for _, route := range routes {
		err := mux.HandlePath(route.method, route.path, func(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
			ctx, cancel := context.WithCancel(r.Context())
			defer cancel()
			_, outbound := runtime.MarshalerForRequest(mux, r)

			annotated, err := runtime.AnnotateContext(ctx, mux, r, route.rpc, runtime.WithHTTPPathPattern(route.path))
			if err != nil {
				runtime.HTTPError(ctx, mux, outbound, w, r, err)
				return
			}

			in, err := route.decode(mux, r, pathParams)
			if err != nil {
				runtime.HTTPError(annotated, mux, outbound, w, r, err)
				return
			}

			var md runtime.ServerMetadata
			resp, err := route.forward(annotated, in, grpc.Header(&md.HeaderMD), grpc.Trailer(&md.TrailerMD))
			annotated = runtime.NewServerMetadataContext(annotated, md)
			if err != nil {
				runtime.HTTPError(annotated, mux, outbound, w, r, err)
				return
			}

			runtime.ForwardResponseMessage(annotated, mux, outbound, w, r, resp, mux.GetForwardResponseOptions()...)
		})
		if err != nil {
			return fmt.Errorf("failed to register %s %s: %w", route.method, route.path, err)
		}
	}
	return nil
}

func decodeEmpty(*runtime.ServeMux, *http.Request, map[string]string) (proto.Message, error) {
	return &emptypb.Empty{}, nil
}

func decodeQuery(_ *runtime.ServeMux, r *http.Request, _ map[string]string) (proto.Message, error) {
	return QueryToStruct(r.URL.Query())
}

// decodePath copies the path parameters into a request struct
func decodePath(_ *runtime.ServeMux, _ *http.Request, pathParams map[string]string) (proto.Message, error) {
	fields := make(map[string]any, len(pathParams))
	for k, v := range pathParams {
		fields[k] = v
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid path parameters: %v", err)
	}
	return s, nil
}

func decodeBody(mux *runtime.ServeMux, r *http.Request, _ map[string]string) (proto.Message, error) {
	inbound, _ := runtime.MarshalerForRequest(mux, r)
	in := &structpb.Struct{}
	if err := inbound.NewDecoder(r.Body).Decode(in); err != nil && err != io.EOF {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request body: %v", err)
	}
	return in, nil
}

// QueryToStruct converts /rag-retrieval query parameters into a Retrieve
// request. Values stay strings; the service parses numeric fields.
func QueryToStruct(values url.Values) (*structpb.Struct, error) {
	fields := make(map[string]any, len(queryParams))
	for _, p := range queryParams {
		if _, seen := fields[p.field]; seen {
			continue
		}
		if vs := values[p.param]; len(vs) > 0 {
			fields[p.field] = vs[0]
		}
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid query parameters: %v", err)
	}
	return s, nil
}
