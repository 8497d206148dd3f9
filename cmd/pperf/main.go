// Command pperf launches a target command and samples its threads'
// program counters, cumulative CPU time, and an optional power-
// measurement unit at a configurable frequency, writing the result to a
// binary profile file.
//
// Grounded on ja7ad-consumption/cmd/consumption/main.go's cobra +
// RunE + signal.NotifyContext shape, and on original_source/pperf.c's
// help() flag table and main() argument handling.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/EECS-NTNU/pperf/pkg/launch"
	"github.com/EECS-NTNU/pperf/pkg/pmu"
	"github.com/EECS-NTNU/pperf/pkg/pmu/dummy"
	"github.com/EECS-NTNU/pperf/pkg/pmu/lynsyn"
	"github.com/EECS-NTNU/pperf/pkg/pmu/rapl"
	"github.com/EECS-NTNU/pperf/pkg/tracer"
)

type flags struct {
	output        string
	pmuKind       string
	pmuArg        string
	frequency     float64
	randomize     bool
	coreIsolation bool
	fifo          int
	rr            int
	verbose       bool
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:   "pperf [options] -- <command> [args...]",
		Short: "Intrusive statistical profiler for Linux processes",
		Long: `pperf launches a target command, periodically freezes every thread of
the target at a chosen sampling frequency, captures each thread's
program counter and cumulative CPU time, optionally reads an external
power-measurement unit, and writes the resulting trace plus the
target's executable memory map to a binary profile file.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f, args)
		},
	}

	root.Flags().StringVarP(&f.output, "output", "o", "", "output profile path")
	root.Flags().StringVarP(&f.pmuArg, "pmu-arg", "p", "", "PMU back-end argument")
	root.Flags().StringVar(&f.pmuKind, "pmu-kind", "dummy", "PMU back-end: dummy, rapl, or lynsyn")
	root.Flags().Float64VarP(&f.frequency, "frequency", "f", 1000, "sampling frequency in Hz (0 disables periodic sampling)")
	root.Flags().BoolVarP(&f.randomize, "randomize", "r", false, "randomize phase of first sample in [0, interval)")
	root.Flags().BoolVar(&f.coreIsolation, "core-isolation", false, "pin sampler to last online CPU, target to remaining CPUs")
	root.Flags().IntVar(&f.fifo, "fifo", 0, "SCHED_FIFO with priority 1..99")
	root.Flags().IntVar(&f.rr, "rr", 0, "SCHED_RR with priority 1..99 (fifo wins if both are set)")
	root.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "emit end-of-run statistics")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error(err.Error())
		os.Exit(exitCodeOf(err))
	}
}

func exitCodeOf(err error) int {
	var runErr *tracer.RunError
	if errors.As(err, &runErr) {
		return int(runErr.Code)
	}
	return 1
}

func run(ctx context.Context, f flags, args []string) error {
	device, err := openPMU(f.pmuKind, f.pmuArg)
	if err != nil {
		return &tracer.RunError{Code: tracer.ExitFatal, Err: errors.Wrap(err, "pmu init")}
	}
	defer device.Release()

	var out *os.File
	if f.output != "" {
		out, err = os.Create(f.output)
		if err != nil {
			return &tracer.RunError{Code: tracer.ExitFatal, Err: errors.Wrap(err, "open output")}
		}
		defer out.Close()
	}

	scheduler, _ := launch.FromFifoRR(f.fifo, f.rr)

	cfg := tracer.Config{
		Device:        device,
		Frequency:     f.frequency,
		Randomize:     f.randomize,
		Scheduler:     scheduler,
		CoreIsolation: f.coreIsolation,
		Verbose:       f.verbose,
		Args:          args,
	}
	if out != nil {
		cfg.Output = out
	}

	stats, runErr := tracer.Run(ctx, cfg)

	if f.verbose {
		printStats(stats)
	}

	if runErr != nil {
		return runErr
	}
	return nil
}

func openPMU(kind, arg string) (pmu.Device, error) {
	var device pmu.Device
	switch kind {
	case "", "dummy":
		device = dummy.New()
	case "rapl":
		device = rapl.New()
	case "lynsyn":
		device = lynsyn.New()
	default:
		return nil, fmt.Errorf("unknown pmu kind %q", kind)
	}
	if err := device.Init(arg); err != nil {
		return nil, err
	}
	return device, nil
}

func printStats(s tracer.Stats) {
	fmt.Fprintf(os.Stderr, "samples:           %d\n", s.Samples)
	fmt.Fprintf(os.Stderr, "foreign interrupts: %d\n", s.Interrupts)
	fmt.Fprintf(os.Stderr, "total wall time:    %s\n", s.TotalWallTime)
	fmt.Fprintf(os.Stderr, "total latency:      %s\n", s.TotalLatency)
	fmt.Fprintf(os.Stderr, "sampling interval:  %s\n", s.SamplingInterval)
	fmt.Fprintf(os.Stderr, "configured frequency: %.2f Hz\n", s.Frequency)
}
