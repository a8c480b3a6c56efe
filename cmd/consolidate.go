package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/returns-cli/internal/fetcher"
	"github.com/sells-group/returns-cli/internal/ingest"
	"github.com/sells-group/returns-cli/internal/pipeline"
	"github.com/sells-group/returns-cli/internal/report"
	"github.com/sells-group/returns-cli/internal/store"
)

var (
	consolidateInput       string
	consolidateOutput      string
	consolidateSchema      string
	consolidateFromFTP     bool
	consolidateLimit       int
	consolidateConcurrency int
	consolidateNoStore     bool
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Consolidate branch submissions into the master dataset",
	Long: `Reads every branch submission in the input directory, validates each
one against the column contract, merges the valid rows into the master
dataset, and writes the artifacts (master CSV/XLSX, anomaly report,
reason ranking) to the output directory.

A run succeeds when the pipeline completes; data quality findings go to
the anomaly report, never the exit code. The run fails only when the
contract is unsound or no file can be read at all.

Examples:
  # Consolidate a folder of weekly submissions
  returns-cli consolidate --input ./raw_excels --output ./out

  # Pull submissions from the FTP drop first
  returns-cli consolidate --from-ftp --output ./out

  # One-off run without touching the run registry
  returns-cli consolidate --input ./raw_excels --no-store`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if consolidateInput != "" {
			cfg.Input.Dir = consolidateInput
		}
		if consolidateOutput != "" {
			cfg.Output.Dir = consolidateOutput
		}
		if consolidateSchema != "" {
			cfg.Schema.Path = consolidateSchema
		}
		if consolidateConcurrency > 0 {
			cfg.Batch.Concurrency = consolidateConcurrency
		}
		if err := cfg.Validate("consolidate"); err != nil {
			return err
		}

		contract, err := loadContract()
		if err != nil {
			return err
		}

		if consolidateFromFTP {
			if err := cfg.Validate("fetch"); err != nil {
				return err
			}
			pulled, pullErr := newFTPFetcher().Pull(ctx, cfg.FTP.URL, cfg.Input.Dir)
			if pullErr != nil {
				return eris.Wrap(pullErr, "consolidate: ftp pull")
			}
			zap.L().Info("consolidate: pulled submissions", zap.Int("files", len(pulled)))
		}

		files, err := ingest.Discover(cfg.Input.Dir)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return eris.Errorf("consolidate: no submission files in %s", cfg.Input.Dir)
		}
		if consolidateLimit > 0 && consolidateLimit < len(files) {
			files = files[:consolidateLimit]
		}

		var st store.Store
		if !consolidateNoStore {
			st, err = initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}
		}

		result, err := pipeline.New(cfg, contract, st).Run(ctx, files)
		if err != nil {
			return err
		}

		fmt.Fprint(os.Stdout, report.Summary(result))
		return nil
	},
}

func newFTPFetcher() *fetcher.FTPFetcher {
	return fetcher.NewFTPFetcher(fetcher.FTPOptions{
		Timeout:    cfg.FTP.Timeout(),
		User:       cfg.FTP.User,
		Password:   cfg.FTP.Password,
		RatePerSec: cfg.FTP.RatePerSec,
	})
}

func init() {
	consolidateCmd.Flags().StringVar(&consolidateInput, "input", "", "submission directory (default from config)")
	consolidateCmd.Flags().StringVar(&consolidateOutput, "output", "", "artifact directory (default from config)")
	consolidateCmd.Flags().StringVar(&consolidateSchema, "schema", "", "contract file (default from config, or built-in)")
	consolidateCmd.Flags().BoolVar(&consolidateFromFTP, "from-ftp", false, "pull submissions from the FTP drop first")
	consolidateCmd.Flags().IntVar(&consolidateLimit, "limit", 0, "process at most N files")
	consolidateCmd.Flags().IntVar(&consolidateConcurrency, "concurrency", 0, "concurrent file loads (default from config)")
	consolidateCmd.Flags().BoolVar(&consolidateNoStore, "no-store", false, "skip the run registry")
	rootCmd.AddCommand(consolidateCmd)
}
