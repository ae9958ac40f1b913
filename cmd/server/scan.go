package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lyallcooper/legalreview/internal/config"
	"github.com/lyallcooper/legalreview/internal/report"
	"github.com/lyallcooper/legalreview/internal/scan"
)

type scanOptions struct {
	checkpoints scan.Checkpoints
	interval    time.Duration
	timeout     time.Duration
	format      string
	disable     []string
}

var scanOpts scanOptions

var scanCmd = &cobra.Command{
	Use:   "scan FILE...",
	Short: "Run a deep scan in the terminal",
	Long: `scan runs the deep-scan simulator over the given contracts and prints the
report to stdout. Progress goes to stderr.`,
	Example: `  legalreview scan msa.pdf sow.docx
  legalreview scan --checkpoints 0,50,100 --interval 200ms --format json msa.pdf
  legalreview scan --disable complianceCheck,dataPrivacy terms.txt`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if !cmd.Flags().Changed("checkpoints") {
			scanOpts.checkpoints = cfg.Checkpoints
		}
		if !cmd.Flags().Changed("interval") {
			scanOpts.interval = cfg.CheckpointInterval
		}
		if !cmd.Flags().Changed("timeout") {
			scanOpts.timeout = cfg.AnalysisTimeout
		}
		if _, err := report.ParseFormat(scanOpts.format); err != nil {
			return fmt.Errorf("--format must be one of: text, json, csv")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runScan(ctx, args, scanOpts, os.Stdout, newProgress(os.Stderr))
	},
}

func init() {
	f := scanCmd.Flags()
	f.Var(&checkpointsValue{target: &scanOpts.checkpoints}, "checkpoints", "Comma-separated progress checkpoints ending at 100 (default: $LEGALREVIEW_CHECKPOINTS)")
	f.DurationVar(&scanOpts.interval, "interval", scan.DefaultInterval, "Delay between checkpoints")
	f.DurationVar(&scanOpts.timeout, "timeout", scan.DefaultAnalysisTimeout, "Analysis timeout at the final checkpoint")
	f.StringVarP(&scanOpts.format, "format", "f", string(report.FormatText), "Output format: text, json, csv")
	f.StringSliceVar(&scanOpts.disable, "disable", nil, "Analysis areas to turn off ("+flagNames()+")")
}

func flagNames() string {
	names := make([]string, len(scan.Flags))
	for i, f := range scan.Flags {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// runScan drives one simulator run over paths and writes the report to out.
func runScan(ctx context.Context, paths []string, opts scanOptions, out io.Writer, progress *progress) error {
	files, err := statFiles(paths, progress.w)
	if err != nil {
		return err
	}

	cfg := scan.DefaultConfig()
	for _, name := range opts.disable {
		flag, err := scan.ParseFlag(strings.TrimSpace(name))
		if err != nil {
			return err
		}
		cfg[flag] = false
	}

	// OnEvent runs under the simulator lock; the buffer holds every event of
	// one run so it never blocks.
	events := make(chan scan.Event, len(opts.checkpoints)+2)
	sim, err := scan.New(scan.Options{
		Checkpoints:     opts.checkpoints,
		Interval:        opts.interval,
		AnalysisTimeout: opts.timeout,
		OnEvent:         func(ev scan.Event) { events <- ev },
	})
	if err != nil {
		return err
	}
	defer sim.Close()

	if _, err := sim.Start(files, cfg); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			sim.Cancel()
			progress.Done()
			return ctx.Err()

		case ev := <-events:
			progress.Update(ev.Progress, len(files))

			switch ev.State {
			case scan.StateComplete:
				progress.Done()
				return report.Write(out, report.Format(opts.format), report.Build(files, ev.Findings, time.Now()))

			case scan.StateFailed:
				progress.Done()
				if ev.Err != nil && len(ev.Err.Partial) > 0 {
					fmt.Fprintf(progress.w, "%d partial finding(s) before the failure:\n", len(ev.Err.Partial))
					if werr := report.Write(out, report.Format(opts.format), report.Build(files, ev.Err.Partial, time.Now())); werr != nil {
						return werr
					}
				}
				if ev.Err != nil {
					return ev.Err
				}
				return errors.New("scan failed")

			case scan.StateIdle:
				progress.Done()
				return errors.New("scan cancelled")
			}
		}
	}
}

// statFiles keeps the paths with an accepted extension that exist. Skipped
// paths are reported on w.
func statFiles(paths []string, w io.Writer) ([]scan.File, error) {
	var files []scan.File
	for _, p := range paths {
		if err := scan.ValidateFileName(p); err != nil {
			fmt.Fprintf(w, "skipping %v\n", err)
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}
		files = append(files, scan.File{Name: filepath.Base(p), Size: info.Size()})
	}
	if len(files) == 0 {
		return nil, scan.ErrNoFiles
	}
	return files, nil
}
