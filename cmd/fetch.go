package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sells-group/returns-cli/internal/fetcher"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Pull branch submissions from the FTP drop",
	Long: `Downloads every spreadsheet from the configured FTP drop into the
input directory. Files that fail to download are logged and skipped, so
one bad transfer never blocks the rest of the pull.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		pulled, err := fetcher.NewFTPFetcher(fetcher.FTPOptions{
			Timeout:    cfg.FTP.Timeout(),
			User:       cfg.FTP.User,
			Password:   cfg.FTP.Password,
			RatePerSec: cfg.FTP.RatePerSec,
		}).Pull(cmd.Context(), cfg.FTP.URL, cfg.Input.Dir)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Pulled %d files into %s\n", len(pulled), cfg.Input.Dir)
		for _, f := range pulled {
			fmt.Fprintf(os.Stdout, "  %s\n", filepath.Base(f))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
