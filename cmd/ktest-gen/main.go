// Command ktest-gen writes a seed file from concrete inputs so that a run can
// be replayed from them.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/speakeasy-api/diffvm/pkg/ktest"
	"github.com/speakeasy-api/diffvm/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "ktest-gen <options>",
	Short: "Generate a seed file from concrete inputs",
	Long: `Generate a seed file from concrete arguments, files and streams.

Examples:
  ktest-gen --sym-arg foo --sym-file input.txt
  ktest-gen --sym-args 2 a bc --sym-stdin in.txt --bout-file seed.ktest`,
	DisableFlagParsing: true,
	SilenceUsage:       true,
	SilenceErrors:      true,
	RunE:               run,
}

func usage() {
	fmt.Fprintf(os.Stderr, ktest.Usage, filepath.Base(os.Args[0]))
}

func run(cmd *cobra.Command, args []string) error {
	logger := logging.NewWithOptions(os.Stdout, logging.Options{
		Level:      logging.LevelInfo,
		TimeFormat: "-",
	})
	gen, err := ktest.ParseArgs(append([]string{os.Args[0]}, args...), logger)
	if err != nil {
		return err
	}
	f, err := gen.WriteFile(cmd.Context())
	if err != nil {
		return err
	}
	logger.Infof("wrote %s (%d objects)", gen.Output, len(f.Objects))
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "ktest-gen: %v\n", err)
		if errors.Is(err, ktest.ErrUsage) || errors.Is(err, os.ErrNotExist) {
			usage()
		}
		os.Exit(1)
	}
}
