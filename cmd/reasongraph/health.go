package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/reasongraph/reasongraph/internal/graph"
	"github.com/reasongraph/reasongraph/internal/storage"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the graph store and session archive",
	RunE:  runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	healthy := true

	client, err := graph.NewClient(ctx, cfg.Store)
	if err != nil {
		fmt.Printf("graph store: UNREACHABLE (%v)\n", err)
		healthy = false
	} else {
		defer client.Close(context.Background())
		if graph.NewRepository(client).HealthCheck(ctx) {
			fmt.Println("graph store: OK")
		} else {
			fmt.Println("graph store: FAILING")
			healthy = false
		}
	}

	if cfg.Archive.PostgresDSN == "" {
		fmt.Println("session archive: disabled")
	} else {
		archive, err := storage.NewSessionArchive(ctx, cfg.Archive.PostgresDSN)
		if err != nil {
			fmt.Printf("session archive: UNREACHABLE (%v)\n", err)
			healthy = false
		} else {
			defer archive.Close()
			if err := archive.HealthCheck(ctx); err != nil {
				fmt.Printf("session archive: FAILING (%v)\n", err)
				healthy = false
			} else {
				fmt.Println("session archive: OK")
			}
		}
	}

	if !healthy {
		return fmt.Errorf("one or more dependencies are unhealthy")
	}
	return nil
}
