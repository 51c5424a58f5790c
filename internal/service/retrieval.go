// Package service implements the kg.v1 gRPC services.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/knoguchi/kgsearch/internal/api/kgv1"
	"github.com/knoguchi/kgsearch/internal/osti"
	"github.com/knoguchi/kgsearch/internal/repository"
	"github.com/knoguchi/kgsearch/internal/retrieval"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Retriever runs a retrieval request
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error)
}

// Engine is the local retrieval engine
type Engine interface {
	Retriever
	Sources(ctx context.Context) ([]*retrieval.SourceDoc, error)
	Overview(ctx context.Context) (*retrieval.Overview, error)
	Object(ctx context.Context, kind repository.EntityKind, id string) (map[string]any, error)
}

// RetrievalService implements kgv1.RetrievalServiceServer
type RetrievalService struct {
	kgv1.UnimplementedRetrievalServiceServer

	engine Engine
	osti   Retriever
	logger *slog.Logger
}

// RetrievalServiceOption is a functional option for configuring RetrievalService.
type RetrievalServiceOption func(*RetrievalService)

// WithOSTI routes requests for the OSTI dataset to r
func WithOSTI(r Retriever) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.osti = r
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) RetrievalServiceOption {
	return func(s *RetrievalService) {
		s.logger = logger
	}
}

// NewRetrievalService creates a new RetrievalService
func NewRetrievalService(engine Engine, opts ...RetrievalServiceOption) *RetrievalService {
	s := &RetrievalService{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve runs a retrieval request
func (s *RetrievalService) Retrieve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := RequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	var res *retrieval.Result
	if s.osti != nil && osti.IsDataset(req.Dataset) {
		res, err = s.osti.Retrieve(ctx, req)
	} else {
		res, err = s.engine.Retrieve(ctx, req)
	}
	if err != nil {
		return nil, s.toStatus(err)
	}

	out, err := toStruct(res)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode result: %v", err)
	}
	return out, nil
}

// ListSources returns all sources
func (s *RetrievalService) ListSources(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	sources, err := s.engine.Sources(ctx)
	if err != nil {
		return nil, s.toStatus(err)
	}

	out, err := toStruct(map[string]any{"sources": sources})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode sources: %v", err)
	}
	return out, nil
}

// GetOverview returns report counts per source and row counts per table
func (s *RetrievalService) GetOverview(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	overview, err := s.engine.Overview(ctx)
	if err != nil {
		return nil, s.toStatus(err)
	}

	out, err := toStruct(overview)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode overview: %v", err)
	}
	return out, nil
}

// GetObject returns one row by kind and id with its parents
func (s *RetrievalService) GetObject(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.AsMap()
	name, err := stringField(fields, "kind")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	kind, err := repository.ParseKind(name)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id, err := stringField(fields, "id")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if id = strings.TrimSpace(id); id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	doc, err := s.engine.Object(ctx, kind, id)
	if err != nil {
		return nil, s.toStatus(err)
	}

	out, err := toStruct(doc)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode object: %v", err)
	}
	return out, nil
}

// toStatus maps retrieval errors onto gRPC codes
func (s *RetrievalService) toStatus(err error) error {
	switch {
	case errors.Is(err, retrieval.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "retrieval timed out")
	case errors.Is(err, retrieval.ErrEmbedding), errors.Is(err, osti.ErrStatus):
		return status.Errorf(codes.Unavailable, "upstream failure: %v", err)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, repository.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, repository.ErrNoDateJoin), errors.Is(err, repository.ErrUnknownKind):
		s.logger.Error("retrieval misconfigured", "error", err)
		return status.Errorf(codes.FailedPrecondition, "configuration error: %v", err)
	default:
		s.logger.Error("retrieval failed", "error", err)
		return status.Errorf(codes.Internal, "retrieval failed: %v", err)
	}
}

// RequestFromStruct reads a retrieval request from its JSON fields.
// Numeric fields may be numbers or numeric strings; empty strings mean unset.
func RequestFromStruct(in *structpb.Struct) (retrieval.Request, error) {
	var req retrieval.Request
	if in == nil {
		return req, fmt.Errorf("%w: empty request", retrieval.ErrInvalidRequest)
	}
	fields := in.AsMap()

	var err error
	if req.Query, err = stringField(fields, "query"); err != nil {
		return req, err
	}
	if req.Dataset, err = stringField(fields, "dataset"); err != nil {
		return req, err
	}
	if req.Report, err = stringField(fields, "report"); err != nil {
		return req, err
	}
	if req.EarliestYear, err = retrieval.ParseEarliestYear(fields["earliest_year"]); err != nil {
		return req, err
	}
	if req.Diversity, err = floatField(fields, "diversity"); err != nil {
		return req, err
	}
	if req.MaxCount, err = intField(fields, "max_count"); err != nil {
		return req, err
	}
	if req.MaxExcerptsPerReport, err = intField(fields, "max_excerpts_per_report"); err != nil {
		return req, err
	}
	return req, nil
}

func stringField(fields map[string]any, name string) (string, error) {
	switch v := fields[name].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("%w: %s must be a string", retrieval.ErrInvalidRequest, name)
	}
}

func floatField(fields map[string]any, name string) (float64, error) {
	switch v := fields[name].(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s %q is not a number", retrieval.ErrInvalidRequest, name, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s must be a number", retrieval.ErrInvalidRequest, name)
	}
}

func intField(fields map[string]any, name string) (int, error) {
	f, err := floatField(fields, name)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s must be a whole number", retrieval.ErrInvalidRequest, name)
	}
	return int(f), nil
}

// toStruct converts a JSON-serializable value into a Struct
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ensure RetrievalService implements the server interface
var _ kgv1.RetrievalServiceServer = (*RetrievalService)(nil)
