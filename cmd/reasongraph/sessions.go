package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reasongraph/reasongraph/internal/storage"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions [session-id]",
	Short: "List archived sessions, or show one by id",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to list")
}

func runSessions(cmd *cobra.Command, args []string) error {
	if cfg.Archive.PostgresDSN == "" {
		return fmt.Errorf("session archive is not configured (set ARCHIVE_POSTGRES_DSN)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	archive, err := storage.NewSessionArchive(ctx, cfg.Archive.PostgresDSN)
	if err != nil {
		return err
	}
	defer archive.Close()

	if len(args) == 1 {
		sess, err := archive.LoadSession(ctx, args[0])
		if err != nil {
			return err
		}
		if sess == nil {
			return fmt.Errorf("session %s not found", args[0])
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(sess)
	}

	summaries, err := archive.ListSessions(ctx, sessionsLimit)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No archived sessions.")
		return nil
	}
	for _, s := range summaries {
		fmt.Printf("%s  %s  %s\n", s.SessionID, s.ArchivedAt.Format(time.RFC3339), s.Query)
	}
	return nil
}
