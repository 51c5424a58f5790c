package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/knoguchi/kgsearch/internal/api/kgv1"
	"github.com/knoguchi/kgsearch/internal/app"
	"github.com/knoguchi/kgsearch/internal/config"
	"github.com/knoguchi/kgsearch/internal/service"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// remoteAddr is the gRPC address of a running kgsearchd; empty runs locally.
var remoteAddr string

var rootCmd = &cobra.Command{
	Use:   "kgsearch",
	Short: "Search the knowledge store",
	Long: `Runs semantic retrievals over sources, reports and excerpts.

Commands run against the store configured by the environment (and .env),
or against a running kgsearchd when --remote is set.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&remoteAddr, "remote", "", "gRPC address of a kgsearchd server (host:port)")
}

// retrievalClient is the RetrievalService surface the commands use
type retrievalClient interface {
	Retrieve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ListSources(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	GetOverview(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
	GetObject(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// remoteClient calls a kgsearchd server, tagging each call with a request id
type remoteClient struct {
	client kgv1.RetrievalServiceClient
}

func (c remoteClient) Retrieve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return c.client.Retrieve(withRequestID(ctx), in)
}

func (c remoteClient) ListSources(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
	return c.client.ListSources(withRequestID(ctx), in)
}

func (c remoteClient) GetOverview(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error) {
	return c.client.GetOverview(withRequestID(ctx), in)
}

func (c remoteClient) GetObject(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return c.client.GetObject(withRequestID(ctx), in)
}

func withRequestID(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "x-request-id", uuid.NewString())
}

// openClient returns a client for --remote, or an in-process service over
// the configured store. The returned func releases it.
func openClient(ctx context.Context) (retrievalClient, func(), error) {
	if remoteAddr != "" {
		conn, err := grpc.NewClient(remoteAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to %s: %w", remoteAddr, err)
		}
		return remoteClient{client: kgv1.NewRetrievalServiceClient(conn)}, func() { _ = conn.Close() }, nil
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := []service.RetrievalServiceOption{service.WithLogger(logger)}
	if deps.OSTI != nil {
		opts = append(opts, service.WithOSTI(deps.OSTI))
	}
	return service.NewRetrievalService(deps.Engine, opts...), deps.Close, nil
}

// loadConfig reads the environment and sets up logging on stderr, keeping
// stdout for results.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := app.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func printStruct(cmd *cobra.Command, s *structpb.Struct) error {
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
