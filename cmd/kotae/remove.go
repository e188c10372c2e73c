package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kotae/internal/fileid"
)

var removeCmd = &cobra.Command{
	Use:     "remove <document-id|path>...",
	Aliases: []string{"delete"},
	Short:   "Remove documents from the index",
	Long: `Remove documents by id, or by the path of a file indexed from the inbox.
An argument that is not an inbox document id but names an existing file is
treated as a path.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	ctx, idx := cmd.Context(), a.components.Indexer

	var errs []error
	for _, arg := range args {
		var err error
		if isFilePath(arg) {
			err = idx.RemoveFile(ctx, arg)
		} else {
			err = idx.RemoveDocument(ctx, arg)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", arg, err))
			continue
		}
		cmd.Printf("removed %s\n", arg)
	}
	if err := idx.FlushStatistics(ctx); err != nil {
		errs = append(errs, fmt.Errorf("save statistics: %w", err))
	}
	return errors.Join(errs...)
}

// isFilePath reports whether arg should be resolved as a file path rather
// than a document id.
func isFilePath(arg string) bool {
	if fileid.IsFileDocID(arg) {
		return false
	}
	info, err := os.Stat(arg)
	return err == nil && !info.IsDir()
}
