package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

var (
	indexOutput    string
	indexBatch     string
	indexExts      []string
	indexRecursive bool
)

var indexCmd = &cobra.Command{
	Use:   "index [flags] <file|dir>...",
	Short: "Index files, directories or a JSON batch",
	Long: `Index documents into the local store. Files are extracted by extension and
read their metadata from an optional <file>.meta.yaml sidecar. Directories are
walked; unchanged files are skipped.

--batch reads a JSON array of documents ({"id","title","content",...}) and
indexes them with the same retry policy as the HTTP batch endpoint.`,
	Example: `  kotae index handbook.pdf
  kotae index --recursive=false ./approved
  kotae index --batch faq.json`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVarP(&indexOutput, "output", "o", "text", "output format: text or json")
	indexCmd.Flags().StringVar(&indexBatch, "batch", "", "JSON file holding an array of documents")
	indexCmd.Flags().StringSliceVar(&indexExts, "ext", nil, "file extensions to index (default: inbox extensions)")
	indexCmd.Flags().BoolVar(&indexRecursive, "recursive", true, "walk subdirectories")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexBatch == "" && len(args) == 0 {
		return errors.New("a file, directory or --batch is required")
	}
	format, err := cli.ParseFormat(indexOutput)
	if err != nil {
		return err
	}
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, idx, out := cmd.Context(), a.components.Indexer, cmd.OutOrStdout()
	var errs []error

	if indexBatch != "" {
		inputs, err := readBatch(indexBatch)
		if err != nil {
			return err
		}
		res := idx.IndexDocuments(ctx, inputs)
		if err := cli.WriteBatchResult(out, res, format); err != nil {
			return err
		}
		if len(res.Failed) > 0 {
			errs = append(errs, fmt.Errorf("%d of %d documents failed", len(res.Failed), len(inputs)))
		}
	}

	exts := indexExts
	if len(exts) == 0 {
		exts = a.cfg.Inbox.Extensions
	}
	for _, path := range args {
		abs, err := filepath.Abs(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		info, err := os.Stat(abs)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.IsDir() {
			n, err := idx.IndexDirectory(ctx, abs, exts, indexRecursive)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d files indexed\n", abs, n)
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}
		res := models.IndexResult{ID: fileid.FileDocID(abs)}
		if err := idx.IndexFile(ctx, abs, nil); err != nil {
			res.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", abs, err))
		} else if chunks, err := a.components.Storage.GetChunksByDocumentID(ctx, res.ID); err == nil {
			res.Chunks = len(chunks)
		}
		if err := cli.WriteIndexResult(out, res, format); err != nil {
			return err
		}
	}
	if err := idx.FlushStatistics(ctx); err != nil {
		errs = append(errs, fmt.Errorf("save statistics: %w", err))
	}
	return errors.Join(errs...)
}

func readBatch(path string) ([]*models.DocumentInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	var inputs []*models.DocumentInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parse batch %s: %w", path, err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("batch %s holds no documents", path)
	}
	return inputs, nil
}
