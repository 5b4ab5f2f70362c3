package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/wingmanhq/dispatch/internal/dispatch"
)

var (
	statusServerURL    string
	statusOutputFormat string
)

var statusClient = &http.Client{Timeout: 10 * time.Second}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider and rate-limit status from a running server",
}

var statusProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show endpoint pools and circuit state",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Models map[string][]dispatch.EndpointStatus `json:"models"`
		}
		if err := fetchStatus("/status/providers", &resp); err != nil {
			return err
		}

		if statusOutputFormat == "json" {
			return printJSON(cmd, resp)
		}

		models := make([]string, 0, len(resp.Models))
		for model := range resp.Models {
			models = append(models, model)
		}
		sort.Strings(models)

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Model", "Endpoint", "Circuit", "Requests", "Failures", "Open Until"})
		for _, model := range models {
			for _, ep := range resp.Models[model] {
				openUntil := "-"
				if !ep.OpenUntil.IsZero() {
					openUntil = ep.OpenUntil.UTC().Format(time.RFC3339)
				}
				t.AppendRow(table.Row{model, ep.ID, ep.Circuit, ep.Requests, ep.Failures, openUntil})
			}
		}
		t.Render()
		return nil
	},
}

var statusRateLimitsCmd = &cobra.Command{
	Use:   "rate-limits",
	Short: "Show configured rate limits and their current state",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Limits []struct {
				Key         string  `json:"key"`
				Strategy    string  `json:"strategy"`
				MaxRequests int     `json:"max_requests"`
				WindowMS    int64   `json:"window_ms"`
				Tokens      float64 `json:"tokens"`
				Capacity    int     `json:"capacity"`
				InWindow    int     `json:"in_window"`
			} `json:"limits"`
		}
		if err := fetchStatus("/status/rate-limits", &resp); err != nil {
			return err
		}

		if statusOutputFormat == "json" {
			return printJSON(cmd, resp)
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Key", "Strategy", "Limit", "Window", "State"})
		for _, limit := range resp.Limits {
			window := (time.Duration(limit.WindowMS) * time.Millisecond).String()
			state := fmt.Sprintf("%d in window", limit.InWindow)
			if limit.Strategy == "token_bucket" {
				state = fmt.Sprintf("%.1f/%d tokens", limit.Tokens, limit.Capacity)
			}
			t.AppendRow(table.Row{limit.Key, limit.Strategy, limit.MaxRequests, window, state})
		}
		t.Render()
		return nil
	},
}

func fetchStatus(path string, out any) error {
	resp, err := statusClient.Get(statusServerURL + path)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func printJSON(cmd *cobra.Command, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.AddCommand(statusProvidersCmd)
	statusCmd.AddCommand(statusRateLimitsCmd)

	statusCmd.PersistentFlags().StringVar(&statusServerURL, "server", "http://127.0.0.1:8080", "base URL of the running server")
	statusCmd.PersistentFlags().StringVar(&statusOutputFormat, "output-format", "table", "Output format: table|json")
}
