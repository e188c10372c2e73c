package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/models"
)

var (
	searchLimit      int
	searchRatio      float64
	searchCategories []string
	searchOutput     string
	searchServer     string
)

var searchCmd = &cobra.Command{
	Use:   "search [flags] <query>",
	Short: "Search indexed documents",
	Long: `Run a hybrid search. The query is all remaining arguments joined by
spaces, so multi-word queries work with or without quotes.

--ratio sets the blend: 0 is pure semantic, 1 is pure keyword. Without it the
configured default applies.`,
	Example: `  kotae search enterprise pricing
  kotae search --ratio 1 "refund policy"
  kotae search --category billing --output json invoice
  kotae search --server http://localhost:8080 onboarding`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (0 = configured default)")
	searchCmd.Flags().Float64Var(&searchRatio, "ratio", 0, "hybrid ratio in [0,1]: 0 = semantic only, 1 = keyword only")
	searchCmd.Flags().StringSliceVar(&searchCategories, "category", nil, "restrict results to these categories")
	searchCmd.Flags().StringVarP(&searchOutput, "output", "o", "text", "output format: text or json")
	searchCmd.Flags().StringVar(&searchServer, "server", "", "query a running server at this URL instead of opening the index")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(searchOutput)
	if err != nil {
		return err
	}
	req := &models.SearchRequest{Query: buildSearchQuery(args), Limit: searchLimit}
	if req.Query == "" {
		return errors.New("query is required")
	}
	if cmd.Flags().Changed("ratio") {
		ratio := searchRatio
		req.HybridRatio = &ratio
	}
	if len(searchCategories) > 0 {
		req.Filter = &models.Filter{Categories: searchCategories}
	}

	var response *models.SearchResponse
	if searchServer != "" {
		response, err = searchViaHTTP(searchServer, req)
	} else {
		var a *app
		if a, err = bootstrap(cmd.Context()); err != nil {
			return err
		}
		defer a.Close()
		response, err = a.components.Engine.Search(cmd.Context(), req)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return cli.WriteSearchResults(cmd.OutOrStdout(), response, format)
}

var httpClient = &http.Client{Timeout: 60 * time.Second}

func searchViaHTTP(serverURL string, req *models.SearchRequest) (*models.SearchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Post(strings.TrimRight(serverURL, "/")+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}
