package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

var overviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Show report counts per source and row counts per table",
	Args:  cobra.NoArgs,
	RunE:  runOverview,
}

var objectCmd = &cobra.Command{
	Use:   "object [kind] [id]",
	Short: "Show one row with its parent rows",
	Long: `Prints a source, report, excerpt, uentity or entity by id, with the
rows it references nested under their kind names.`,
	Args: cobra.ExactArgs(2),
	RunE: runObject,
}

func init() {
	rootCmd.AddCommand(overviewCmd)
	rootCmd.AddCommand(objectCmd)
}

func runOverview(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	client, closeClient, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer closeClient()

	out, err := client.GetOverview(ctx, &emptypb.Empty{})
	if err != nil {
		return fmt.Errorf("failed to get overview: %w", err)
	}
	return printStruct(cmd, out)
}

func runObject(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	in, err := structpb.NewStruct(map[string]any{"kind": args[0], "id": args[1]})
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	client, closeClient, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer closeClient()

	out, err := client.GetObject(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to get %s %s: %w", args[0], args[1], err)
	}
	return printStruct(cmd, out)
}
