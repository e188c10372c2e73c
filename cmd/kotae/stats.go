package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

var (
	statusOutput string
	statusServer string
	rebuildOut   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index sizes and statistics health",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var rebuildStatsCmd = &cobra.Command{
	Use:   "rebuild-stats",
	Short: "Recount the corpus statistics from storage",
	Long: `Recount term and document frequencies from every stored chunk and save
them. Run this when status reports that keyword search is degraded.`,
	Args: cobra.NoArgs,
	RunE: runRebuildStats,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "output format: text or json")
	statusCmd.Flags().StringVar(&statusServer, "server", "", "ask a running server at this URL instead of opening the index")
	rebuildStatsCmd.Flags().StringVarP(&rebuildOut, "output", "o", "text", "output format: text or json")
	rootCmd.AddCommand(statusCmd, rebuildStatsCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	format, err := cli.ParseFormat(statusOutput)
	if err != nil {
		return err
	}
	if statusServer != "" {
		st, err := statusViaHTTP(statusServer)
		if err != nil {
			return err
		}
		return cli.WriteStatus(cmd.OutOrStdout(), st, format)
	}

	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	st, err := a.components.Indexer.Status(cmd.Context())
	if err != nil {
		return err
	}
	if n, err := storage.DiskUsageBytes(a.cfg.Storage.DiskPaths()...); err == nil {
		st.DiskUsageBytes = &n
	}
	return cli.WriteStatus(cmd.OutOrStdout(), st, format)
}

func statusViaHTTP(serverURL string) (*models.IndexStatus, error) {
	resp, err := httpClient.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var body struct {
		Index *models.IndexStatus `json:"index"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if body.Index == nil {
		return nil, fmt.Errorf("server response has no index status")
	}
	return body.Index, nil
}

func runRebuildStats(cmd *cobra.Command, _ []string) error {
	format, err := cli.ParseFormat(rebuildOut)
	if err != nil {
		return err
	}
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	idx := a.components.Indexer
	if err := idx.RebuildStatistics(cmd.Context()); err != nil {
		return fmt.Errorf("rebuild statistics: %w", err)
	}
	return cli.WriteStatistics(cmd.OutOrStdout(), idx.Statistics(), format)
}
