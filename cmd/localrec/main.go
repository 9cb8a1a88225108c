package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/maozhouhe/localrec/pkg/config"
	"github.com/maozhouhe/localrec/pkg/symmetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "localrec",
		Short: "Symmetry relaxation for single-particle reconstructions",
		Long: `localrec expands every particle of a RELION STAR file into its
symmetry-related orientations and reconstructs the result without symmetry.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("timestamps", false, "Print timestamps in log lines")

	root.AddCommand(
		newRelaxCmd(),
		newSymmetryCmd(),
		newConfigCmd(),
	)
	return root
}

// exitCode is 2 for problems with the user's input and 1 for anything else.
func exitCode(err error) int {
	var vErr *config.ValidationError
	var symErr *symmetry.InvalidSymmetryError
	if errors.As(err, &vErr) || errors.As(err, &symErr) {
		return 2
	}
	return 1
}

func newLogger(w io.Writer, level string, timestamps bool) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, &config.ValidationError{Field: "logging.level", Msg: err.Error()}
	}
	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          "localrec",
		ReportTimestamp: timestamps,
		TimeFormat:      time.TimeOnly,
	}), nil
}
