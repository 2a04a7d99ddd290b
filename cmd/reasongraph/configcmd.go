package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration as YAML",
	Long: `Prints the effective configuration after defaults, the settings file,
.env files, and environment overrides have been applied. Credentials are
redacted.`,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	redacted := *cfg
	if redacted.Store.Password != "" {
		redacted.Store.Password = "<redacted>"
	}
	if redacted.App.AuthToken != "" {
		redacted.App.AuthToken = "<redacted>"
	}
	if redacted.Archive.PostgresDSN != "" {
		redacted.Archive.PostgresDSN = "<redacted>"
	}
	if redacted.Retrieval.PubMedAPIKey != "" {
		redacted.Retrieval.PubMedAPIKey = "<redacted>"
	}
	if redacted.Retrieval.WebSearchAPIKey != "" {
		redacted.Retrieval.WebSearchAPIKey = "<redacted>"
	}

	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}
