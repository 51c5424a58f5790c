package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/knoguchi/kgsearch/internal/app"
	"github.com/knoguchi/kgsearch/internal/repository"
	"github.com/knoguchi/kgsearch/internal/vectorstore"
	"github.com/spf13/cobra"
)

var (
	syncKinds     []string
	syncBatchSize int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the Qdrant vector index",
}

var indexSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy embeddings from Postgres into Qdrant",
	Long: `Pages through the embedded excerpts and reports in Postgres and upserts
them into the Qdrant collections, creating the collections when missing.
Run it after new reports are loaded when STORE_BACKEND=qdrant.`,
	Args: cobra.NoArgs,
	RunE: runIndexSync,
}

func init() {
	indexSyncCmd.Flags().StringSliceVarP(&syncKinds, "kind", "k", []string{"excerpt", "report"}, "entity kinds to sync")
	indexSyncCmd.Flags().IntVar(&syncBatchSize, "batch-size", vectorstore.DefaultSyncBatchSize, "points per page")
	indexCmd.AddCommand(indexSyncCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexSync(cmd *cobra.Command, _ []string) error {
	if remoteAddr != "" {
		return errors.New("index sync runs against the database directly; --remote is not supported")
	}

	kinds := make([]repository.EntityKind, 0, len(syncKinds))
	for _, name := range syncKinds {
		kind, err := repository.ParseKind(name)
		if err != nil {
			return err
		}
		kinds = append(kinds, kind)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	repo, err := app.OpenRecordRepo(ctx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	index, err := app.OpenQdrant(ctx, cfg)
	if err != nil {
		return err
	}
	defer index.Close()

	for _, kind := range kinds {
		n, err := vectorstore.Sync(ctx, repo, index, kind, vectorstore.SyncOptions{
			Dimension: cfg.VectorLength,
			BatchSize: syncBatchSize,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("failed to sync %s index after %d points: %w", kind, n, err)
		}
		cmd.Printf("%s: %d points\n", kind, n)
	}
	return nil
}
