package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	searchDataset      string
	searchReport       string
	searchEarliestYear int
	searchDiversity    float64
	searchMaxCount     int
	searchMaxExcerpts  int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Retrieve excerpts and reports for a query",
	Long: `Embeds the query and returns the closest excerpts and their reports as JSON.

--diversity spreads results across sources: below 0.1 ranks by distance only,
from 0.9 every source gets an equal share.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List sources",
	Args:  cobra.NoArgs,
	RunE:  runSources,
}

func init() {
	searchCmd.Flags().StringVarP(&searchDataset, "dataset", "d", "", "restrict to one source abbreviation (OSTI queries osti.gov)")
	searchCmd.Flags().StringVarP(&searchReport, "report", "r", "", "report title to look up directly (requires --dataset)")
	searchCmd.Flags().IntVarP(&searchEarliestYear, "earliest-year", "y", 0, "skip reports published before this year")
	searchCmd.Flags().Float64Var(&searchDiversity, "diversity", 0, "source diversity between 0 and 1")
	searchCmd.Flags().IntVarP(&searchMaxCount, "max-count", "n", 0, "maximum number of excerpts (server default when 0)")
	searchCmd.Flags().IntVar(&searchMaxExcerpts, "max-excerpts-per-report", 0, "excerpts returned with a directly looked-up report")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	in, err := searchRequest(cmd, strings.Join(args, " "))
	if err != nil {
		return err
	}

	client, closeClient, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer closeClient()

	out, err := client.Retrieve(ctx, in)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return printStruct(cmd, out)
}

// searchRequest builds the Retrieve request from the flags that were set
func searchRequest(cmd *cobra.Command, query string) (*structpb.Struct, error) {
	fields := map[string]any{"query": query}
	flags := cmd.Flags()
	if flags.Changed("dataset") {
		fields["dataset"] = searchDataset
	}
	if flags.Changed("report") {
		fields["report"] = searchReport
	}
	if flags.Changed("earliest-year") {
		fields["earliest_year"] = searchEarliestYear
	}
	if flags.Changed("diversity") {
		fields["diversity"] = searchDiversity
	}
	if flags.Changed("max-count") {
		fields["max_count"] = searchMaxCount
	}
	if flags.Changed("max-excerpts-per-report") {
		fields["max_excerpts_per_report"] = searchMaxExcerpts
	}
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return in, nil
}

func runSources(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	client, closeClient, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer closeClient()

	out, err := client.ListSources(ctx, &emptypb.Empty{})
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}
	return printStruct(cmd, out)
}
