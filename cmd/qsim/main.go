// Command qsim runs the bottleneck link simulation on a configuration file
// (or the built-in three flow scenario), prints the per-flow QoS figures and
// optionally writes a packet trace, charts, a text report and a stored run
// history entry.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/iti/qsim"
	"github.com/iti/qsim/chart"
	"github.com/iti/qsim/logging"
	"github.com/iti/qsim/store"
)

const (
	exitSuccess  = 0
	exitViolated = 1
	exitFailure  = 1
	exitUsage    = 2
)

type options struct {
	cfgFile    string
	linkMbps   float64
	bufferPkts int
	durationMs float64
	sched      string
	compare    bool
	traceFile  string
	chartDir   string
	dbPath     string
	maxRuns    int
	reportFile string
	jsonOut    bool
	verbose    bool
}

// runSummary is the JSON form of one run on standard output
type runSummary struct {
	RunID       string             `json:"run_id,omitempty"`
	Name        string             `json:"name"`
	Scheduler   qsim.SchedulerKind `json:"scheduler"`
	Passed      bool               `json:"passed"`
	MaxBuffered int                `json:"max_buffered"`
	EndTime     float64            `json:"end_time"`
	Flows       []qsim.FlowResult  `json:"flows"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flagSet := flag.NewFlagSet("qsim", flag.ContinueOnError)
	flagSet.SetOutput(stderr)

	var opts options
	flagSet.StringVar(&opts.cfgFile, "cfg", "", "simulation configuration file (.yaml or .json)")
	flagSet.Float64Var(&opts.linkMbps, "link", 0, "override the link rate, Mbps")
	flagSet.IntVar(&opts.bufferPkts, "buffer", 0, "override the buffer capacity, packets")
	flagSet.Float64Var(&opts.durationMs, "duration", 0, "override the arrival horizon, ms")
	flagSet.StringVar(&opts.sched, "sched", "", "override the scheduler: FIFO, PQ or DRR (WFQ)")
	flagSet.BoolVar(&opts.compare, "compare", false, "run the configuration under every scheduler")
	flagSet.StringVar(&opts.traceFile, "trace", "", "write a per-packet trace to this file (.yaml or .json)")
	flagSet.StringVar(&opts.chartDir, "charts", "", "write PNG charts into this directory")
	flagSet.StringVar(&opts.dbPath, "db", "", "store the run in this SQLite database")
	flagSet.IntVar(&opts.maxRuns, "keep", 0, "number of runs the database keeps, 0 keeps all")
	flagSet.StringVar(&opts.reportFile, "report", "", "write the text report to this file")
	flagSet.BoolVar(&opts.jsonOut, "json", false, "print JSON even on a terminal")
	flagSet.BoolVar(&opts.verbose, "v", false, "log debug messages")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitSuccess
		}
		return exitUsage
	}
	if flagSet.NArg() > 0 {
		fmt.Fprintf(stderr, "qsim: unexpected arguments: %s\n", strings.Join(flagSet.Args(), " "))
		return exitUsage
	}
	if opts.verbose {
		logging.GetLogger().SetLevel(logging.LevelDebug)
	}
	if opts.compare && len(opts.traceFile) > 0 {
		fmt.Fprintln(stderr, "qsim: -trace applies to a single run, not to -compare")
		return exitUsage
	}

	if _, err := qsim.CheckReadableFiles([]string{opts.cfgFile}); err != nil {
		fmt.Fprintf(stderr, "qsim: %v\n", err)
		return exitUsage
	}
	if _, err := qsim.CheckOutputFiles([]string{opts.traceFile, opts.reportFile, opts.dbPath}); err != nil {
		fmt.Fprintf(stderr, "qsim: %v\n", err)
		return exitUsage
	}

	cfg, err := loadConfig(flagSet, &opts)
	if err != nil {
		fmt.Fprintf(stderr, "qsim: %v\n", err)
		return exitUsage
	}

	results, tm, err := simulate(cfg, &opts)
	if err != nil {
		fmt.Fprintf(stderr, "qsim: %v\n", err)
		var verr *qsim.ValidationError
		if errors.As(err, &verr) {
			return exitUsage
		}
		return exitFailure
	}

	if err := writeOutputs(results, tm, &opts); err != nil {
		fmt.Fprintf(stderr, "qsim: %v\n", err)
		return exitFailure
	}

	ids := make([]string, len(results))
	if len(opts.dbPath) > 0 {
		if ids, err = storeRuns(results, &opts); err != nil {
			fmt.Fprintf(stderr, "qsim: %v\n", err)
			return exitFailure
		}
	}

	if opts.jsonOut || !isTerminal(stdout) {
		err = printJSON(stdout, results, ids)
	} else {
		err = printTable(stdout, results, ids)
	}
	if err != nil {
		fmt.Fprintf(stderr, "qsim: %v\n", err)
		return exitFailure
	}

	for _, rr := range results {
		if !rr.Passed() {
			return exitViolated
		}
	}
	return exitSuccess
}

// loadConfig reads the configuration file, or takes the default scenario,
// applies the overrides of the flags that were set on the command line and
// only then validates the result
func loadConfig(flagSet *flag.FlagSet, opts *options) (*qsim.SimulationConfig, error) {
	cfg := qsim.DefaultSimulationConfig()
	if len(opts.cfgFile) > 0 {
		var err error
		cfg, err = qsim.ReadSimulationConfigFile(opts.cfgFile)
		if err != nil {
			return nil, err
		}
	}

	var err error
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "link":
			cfg.LinkRateMbps = opts.linkMbps
		case "buffer":
			cfg.BufferCapacity = opts.bufferPkts
		case "duration":
			cfg.DurationMs = opts.durationMs
		case "sched":
			var kind qsim.SchedulerKind
			if kind, err = qsim.ParseSchedulerKind(opts.sched); err == nil {
				cfg.Scheduler = kind
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// simulate executes the single run, or one run per discipline under -compare.
// The trace manager is returned only for a traced single run
func simulate(cfg *qsim.SimulationConfig, opts *options) ([]*qsim.RunResult, *qsim.TraceManager, error) {
	if opts.compare {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		results, err := qsim.CompareSchedulers(ctx, cfg, nil)
		return results, nil, err
	}

	var tm *qsim.TraceManager
	if len(opts.traceFile) > 0 {
		tm = qsim.CreateTraceManager(cfg.Name, true)
	}
	rr, err := qsim.Simulate(cfg, tm)
	if err != nil {
		return nil, nil, err
	}
	return []*qsim.RunResult{rr}, tm, nil
}

// writeOutputs produces the trace, chart and report files that were asked for
func writeOutputs(results []*qsim.RunResult, tm *qsim.TraceManager, opts *options) error {
	if tm != nil {
		if _, err := tm.WriteToFile(opts.traceFile); err != nil {
			return err
		}
		logging.Info("trace written", logging.F("file", opts.traceFile), logging.F("records", tm.Len()))
	}

	if len(opts.chartDir) > 0 {
		for _, rr := range results {
			dir := opts.chartDir
			if len(results) > 1 {
				dir = filepath.Join(dir, strings.ToLower(rr.Config.Scheduler.ShortName()))
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("chart directory: %w", err)
			}
			files, err := chart.WriteCharts(dir, rr.Flows)
			if err != nil {
				return err
			}
			logging.Info("charts written", logging.F("dir", dir), logging.F("files", len(files)))
		}
	}

	if len(opts.reportFile) > 0 {
		f, err := os.Create(opts.reportFile)
		if err != nil {
			return err
		}
		for idx, rr := range results {
			if idx > 0 {
				if _, err := io.WriteString(f, "\n"); err != nil {
					f.Close()
					return err
				}
			}
			if err := qsim.WriteReport(f, rr); err != nil {
				f.Close()
				return err
			}
		}
		if err := f.Close(); err != nil {
			return err
		}
		logging.Info("report written", logging.F("file", opts.reportFile))
	}
	return nil
}

func storeRuns(results []*qsim.RunResult, opts *options) ([]string, error) {
	st, err := store.New(opts.dbPath, opts.maxRuns)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	ids := make([]string, len(results))
	for idx, rr := range results {
		if ids[idx], err = st.Save(rr); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printJSON(w io.Writer, results []*qsim.RunResult, ids []string) error {
	summaries := make([]runSummary, len(results))
	for idx, rr := range results {
		summaries[idx] = runSummary{
			RunID:       ids[idx],
			Name:        rr.Config.Name,
			Scheduler:   rr.Config.Scheduler,
			Passed:      rr.Passed(),
			MaxBuffered: rr.MaxBuffered,
			EndTime:     rr.EndTime,
			Flows:       rr.Flows,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(summaries) == 1 {
		return enc.Encode(summaries[0])
	}
	return enc.Encode(summaries)
}

func printTable(w io.Writer, results []*qsim.RunResult, ids []string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for idx, rr := range results {
		if idx > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s\t%s\tmax buffered %d\tend %.6fs\n",
			rr.Config.Name, rr.Config.Scheduler.ShortName(), rr.MaxBuffered, rr.EndTime)
		if len(ids[idx]) > 0 {
			fmt.Fprintf(tw, "run %s\n", ids[idx])
		}
		fmt.Fprintln(tw, "FLOW\tTYPE\tTHROUGHPUT Mbps\tDELAY ms\tP95 ms\tJITTER ms\tLOSS %\tSTATUS")
		for _, fr := range rr.Flows {
			status := "OK"
			if !fr.Passed {
				status = "Violated"
			}
			fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
				fr.Name, fr.Type, fr.ThroughputMbps, fr.AvgDelayMs, fr.P95DelayMs, fr.JitterMs, fr.LossPct, status)
		}
	}
	return tw.Flush()
}
