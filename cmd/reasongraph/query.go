package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reasongraph/reasongraph/internal/graph"
	"github.com/reasongraph/reasongraph/internal/orchestrator"
	"github.com/reasongraph/reasongraph/internal/stages"
	"github.com/reasongraph/reasongraph/internal/storage"
)

var (
	queryTags       []string
	queryDimensions []string
	querySeed       int64
	queryJSON       bool
)

var queryCmd = &cobra.Command{
	Use:   "query <research question>",
	Short: "Run the full reasoning pipeline for a research query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringSliceVar(&queryTags, "tags", nil, "initial disciplinary tags")
	queryCmd.Flags().StringSliceVar(&queryDimensions, "dimensions", nil, "custom decomposition dimensions")
	queryCmd.Flags().Int64Var(&querySeed, "seed", 0, "random seed for reproducible runs (0 = time-based)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "emit the full session record as JSON")
}

func runQuery(cmd *cobra.Command, args []string) error {
	query := args[0]
	for _, extra := range args[1:] {
		query += " " + extra
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := graph.NewClient(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("graph store connection failed: %w", err)
	}
	defer client.Close(context.Background())
	repo := graph.NewRepository(client)

	archive, err := storage.NewSessionArchive(ctx, cfg.Archive.PostgresDSN)
	if err != nil {
		logger.WithError(err).Warn("Session archive unavailable, continuing without it")
	}
	if archive != nil {
		defer archive.Close()
	}

	pipeline, err := stages.BuildPipeline(stages.Deps{Repo: repo, Cfg: cfg}, cfg.Pipeline)
	if err != nil {
		return err
	}
	monitor := orchestrator.NewResourceMonitor(cfg.Resources)

	orch := orchestrator.New(pipeline, cfg, monitor, archiverOrNil(archive))
	defer orch.Shutdown(context.Background())

	params := map[string]any{}
	if len(queryTags) > 0 {
		params["initial_disciplinary_tags"] = queryTags
	}
	if len(queryDimensions) > 0 {
		params["decomposition_dimensions"] = queryDimensions
	}
	if querySeed != 0 {
		params["random_seed"] = querySeed
	}

	sess, err := orch.ProcessQuery(ctx, query, params)
	if err != nil {
		return err
	}

	if queryJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(sess)
	}

	fmt.Println(sess.FinalAnswer)
	fmt.Printf("\nFinal confidence: %s\n", sess.FinalConfidenceVector)
	fmt.Printf("Session: %s (%d stages)\n", sess.ID, len(sess.Trace))
	return nil
}

// archiverOrNil keeps a typed-nil archive from reaching the orchestrator as a
// non-nil interface.
func archiverOrNil(archive *storage.SessionArchive) orchestrator.Archiver {
	if archive == nil {
		return nil
	}
	return archive
}
