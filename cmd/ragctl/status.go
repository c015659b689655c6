package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	httpserver "github.com/samzhu/ragkit/server/http"
)

func newStatusCmd() *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check a running ragkit server",
		Long: `Check the health of a running ragkit server.

Examples:
  ragctl status --server http://localhost:8080`,
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := fetchHealth(serverURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\nvectors: %d\n", health.Status, health.Vectors)
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "ragkit server URL")
	return cmd
}

func fetchHealth(serverURL string) (*httpserver.HealthResponse, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	url := strings.TrimRight(serverURL, "/") + "/health"

	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var health httpserver.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &health, nil
}
