package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"outputcheck/internal/daemon"
	"outputcheck/internal/logging"
	"outputcheck/internal/scenario"
	"outputcheck/pkg/outputlog"
	"outputcheck/pkg/report"

	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string

	transcriptPath string
	reportPath     string
	quiet          bool

	stream string
)

var rootCmd = &cobra.Command{
	Use:   "outputcheck",
	Short: "outputcheck - Output assertions against a daemon under test",
	Long: `outputcheck starts a daemon, checks its combined stdout and stderr against
an ordered list of expected and forbidden lines, and stops it again.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run scenario.yaml",
	Short: "Run a scenario",
	Long: `Run the scenario described in the given YAML file.

The daemon binary is looked up in $TOP_BUILD_DIR, then in the current
directory, then in $PATH. Set VALGRIND to run it under valgrind (optionally
naming a suppressions file) and STRACE to run it under strace -ff.

The command exits with status 1 if any step or the final stop fails.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.New(logging.Config{Level: logLevel, Format: logFormat}, os.Stderr)

		sc, err := scenario.Load(args[0])
		if err != nil {
			return err
		}

		opts := scenario.RunOptions{
			Output: os.Stdout,
			Logger: logger,
		}
		if quiet {
			opts.Output = io.Discard
		}

		if transcriptPath != "" {
			f, err := os.Create(transcriptPath)
			if err != nil {
				return fmt.Errorf("failed to create transcript: %w", err)
			}
			defer f.Close()
			opts.Transcript = outputlog.NewWriter(f)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rep, runErr := scenario.Run(ctx, sc, opts)

		if opts.Transcript != nil {
			if err := opts.Transcript.Close(); err != nil {
				logger.Error("failed to write transcript", "error", err)
			}
		}

		if rep == nil {
			return runErr
		}

		if reportPath != "" {
			page := report.Page(rep.Name, rep.Markdown())
			if err := os.WriteFile(reportPath, page, 0o644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
		}

		if runErr != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", rep.Name, runErr)
			return errFailed
		}
		fmt.Fprintf(os.Stderr, "PASS %s (%s)\n", rep.Name, rep.Duration.Round(time.Millisecond))
		return nil
	},
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript file",
	Short: "Print a transcript written by run --transcript",
	Long: `Print a transcript. Without --stream every stream is printed in turn,
with a header line. With --stream only the raw bytes of that stream are
written to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open transcript: %w", err)
		}
		defer f.Close()

		rd := outputlog.NewReader(f)
		out := cmd.OutOrStdout()

		if stream != "" {
			data, err := rd.Stream(stream)
			if _, werr := out.Write(data); werr != nil {
				return werr
			}
			return err
		}

		all, err := rd.All()
		for _, name := range slices.Sorted(maps.Keys(all)) {
			data := all[name]
			if n := len(data); n > 0 && data[n-1] != '\n' {
				data = append(data, '\n')
			}
			if _, werr := fmt.Fprintf(out, "== %s ==\n%s", name, data); werr != nil {
				return werr
			}
		}
		return err
	},
}

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "List the signals accepted as daemon.stop_signal",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, s := range daemon.Signals() {
			fmt.Fprintf(cmd.OutOrStdout(), "%2d  %-10s %s\n", s.Number, s.Name, s.Description)
		}
	},
}

// errFailed signals a failed scenario. The details have been printed already.
var errFailed = errors.New("scenario failed")

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "Log format: text, json or auto (text on a terminal)")

	runCmd.Flags().StringVarP(&transcriptPath, "transcript", "t", "", "Write a transcript of output and check results to this file")
	runCmd.Flags().StringVarP(&reportPath, "report", "r", "", "Write an HTML report to this file")
	runCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not mirror the daemon's output to stdout")

	transcriptCmd.Flags().StringVarP(&stream, "stream", "s", "", "Print only this stream, for example daemon or check")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(transcriptCmd)
	rootCmd.AddCommand(signalsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
