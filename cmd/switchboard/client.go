package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/switchboardhq/switchboard/internal/client"
)

type clientConfig struct {
	apiKey string
	apiURL string
}

func addClientFlags(cmd *cobra.Command, cfg *clientConfig) {
	cmd.Flags().StringVar(&cfg.apiKey, "api-key", "", "API key for authentication (env SWITCHBOARD_API_KEY)")
	cmd.Flags().StringVar(&cfg.apiURL, "api-url", "", "API server URL (env SWITCHBOARD_API_URL)")
}

// newClient resolves flags first, then the environment, which may come from
// .env loaded by the root command.
func (cfg *clientConfig) newClient() (*client.Client, error) {
	if cfg.apiURL == "" {
		cfg.apiURL = os.Getenv("SWITCHBOARD_API_URL")
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("SWITCHBOARD_API_KEY")
	}
	if cfg.apiURL == "" {
		return nil, fmt.Errorf("API URL required (use --api-url flag or SWITCHBOARD_API_URL env var)")
	}
	if cfg.apiKey == "" {
		return nil, fmt.Errorf("API key required (use --api-key flag or SWITCHBOARD_API_KEY env var)")
	}
	return client.NewClient(cfg.apiURL, cfg.apiKey), nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
