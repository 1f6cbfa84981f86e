// Command ktest-tool prints seed files and the test cases stored in a corpus.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/speakeasy-api/diffvm/pkg/corpus"
	"github.com/speakeasy-api/diffvm/pkg/ktest"
	"github.com/speakeasy-api/diffvm/pkg/logging"
)

var noColor bool

var rootCmd = &cobra.Command{
	Use:           "ktest-tool",
	Short:         "Inspect seed files and test case corpora",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var showCmd = &cobra.Command{
	Use:   "show FILE...",
	Short: "Print the arguments and objects of seed files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for i, path := range args {
			f, err := ktest.FromFile(path)
			if err != nil {
				return err
			}
			if i > 0 {
				fmt.Fprintln(out)
			}
			printSeed(out, path, f, useColor())
		}
		return nil
	},
}

var corpusCmd = &cobra.Command{
	Use:   "corpus DIR",
	Short: "List the test cases stored in a corpus",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		store, err := corpus.Open(corpus.DefaultConfig(args[0]))
		if err != nil {
			return err
		}
		defer store.Close()

		cases, err := store.List()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, tc := range cases {
			printCase(out, tc, useColor())
		}
		fmt.Fprintf(out, "%d test cases\n", len(cases))
		return nil
	},
}

func useColor() bool {
	if noColor {
		return false
	}
	return logging.IsTerminal(os.Stdout)
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(showCmd, corpusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ktest-tool: %v\n", err)
		os.Exit(1)
	}
}
