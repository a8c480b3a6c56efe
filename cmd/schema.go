package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the column contract",
}

var schemaLintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Check the contract for internal consistency",
	Long: `Loads the configured contract and reports the first defect found:
duplicate columns, unknown types or normalization rules, bounds on the
wrong column type, a natural key or ranking column that does not exist.
Exits non-zero on an unsound contract, since no validation can proceed
against one.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		contract, err := loadContract()
		if err != nil {
			return err
		}
		src := cfg.Schema.Path
		if src == "" {
			src = "built-in"
		}
		fmt.Fprintf(os.Stdout, "contract ok (%s): %d columns, key %v, reason column %q\n",
			src, len(contract.Columns), contract.NaturalKey, contract.Ranking.ReasonColumn)
		return nil
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Dump the effective contract as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		contract, err := loadContract()
		if err != nil {
			return err
		}
		out, err := contract.Dump()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

func init() {
	schemaCmd.AddCommand(schemaLintCmd)
	schemaCmd.AddCommand(schemaShowCmd)
	rootCmd.AddCommand(schemaCmd)
}
