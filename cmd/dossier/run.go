// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/dossier/internal/metrics"
	"github.com/pdiddy/dossier/internal/phases"
	"github.com/pdiddy/dossier/internal/pipeline"
	"github.com/pdiddy/dossier/internal/provider/openai"
	"github.com/pdiddy/dossier/internal/secrets"
	"github.com/pdiddy/dossier/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Research one organization and print the report",
	Long: `Run executes the phase catalog (or the phases named by --phases) for the
organization at --url. Phases already cached for the subject are served from
the cache; the rest are sent to the primary model, falling back to an
older-family model when a phase cannot be answered.

The merged report is written as YAML (or JSON with --json) to stdout or
--out. Phase timings are printed to stderr.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	rawURL, _ := cmd.Flags().GetString("url")
	locale, _ := cmd.Flags().GetString("locale")
	sector, _ := cmd.Flags().GetString("sector")
	model, _ := cmd.Flags().GetString("model")
	mode, _ := cmd.Flags().GetString("mode")
	cacheMode, _ := cmd.Flags().GetString("cache")
	phaseIDs, _ := cmd.Flags().GetStringSlice("phases")
	outPath, _ := cmd.Flags().GetString("out")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	effort, _ := cmd.Flags().GetString("reasoning-effort")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	subject := types.Subject{Name: name, CanonicalURL: rawURL, Locale: locale, SectorHint: sector}
	if err := subject.Validate(); err != nil {
		return err
	}
	specs, err := phases.Select(phases.Default(), phaseIDs)
	if err != nil {
		return err
	}

	opts := pipeline.Options{ReasoningEffort: effort}
	switch types.SchedulingMode(mode) {
	case "", types.ScheduleSequential, types.ScheduleParallel:
		opts.Mode = types.SchedulingMode(mode)
	default:
		return fmt.Errorf("unsupported --mode %q: use sequential or parallel", mode)
	}
	if cmd.Flags().Changed("temperature") {
		t, _ := cmd.Flags().GetFloat64("temperature")
		opts.Temperature = &t
	}

	c := cfg
	if cacheMode != "" {
		switch m := types.CacheMode(cacheMode); m {
		case types.CacheOff, types.CacheRead, types.CacheWrite, types.CacheReadWrite:
			c.Cache.Mode = m
		default:
			return fmt.Errorf("unsupported --cache %q: use off, read, write or readwrite", cacheMode)
		}
	}
	if metricsAddr != "" {
		c.Metrics.PrometheusAddr = metricsAddr
	}

	apiKey := secretDefault(secrets.OpenAIKey, c.Provider.APIKey)
	if apiKey == "" {
		return fmt.Errorf("no OpenAI API key: set .secrets/%s or OPENAI_API_KEY", secrets.OpenAIKey)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ws, err := openWorkspace(ctx, c, c.Cache.Mode)
	if err != nil {
		return err
	}
	defer ws.Close()

	recorders := metrics.Multi{metrics.LogRecorder{Logger: logger}}
	if c.Metrics.DBEnabled {
		rec, err := metrics.NewSQLRecorder(ctx, ws.db, logger)
		if err != nil {
			return err
		}
		recorders = append(recorders, rec)
	}
	if c.Metrics.PrometheusAddr != "" {
		rec, shutdown, err := serveMetrics(c.Metrics.PrometheusAddr)
		if err != nil {
			return err
		}
		defer shutdown()
		recorders = append(recorders, rec)
	}

	o := pipeline.New(openai.New(c.Provider, apiKey), c,
		pipeline.WithCache(ws.cache),
		pipeline.WithRecorder(recorders),
		pipeline.WithLogger(logger),
	)

	res, err := o.Run(ctx, subject, specs, model, opts)
	if err != nil {
		var perr *pipeline.PhaseError
		if errors.As(err, &perr) {
			return fmt.Errorf("research aborted (%s): %w", perr.Kind(), err)
		}
		return err
	}

	printTimings(os.Stderr, res)

	out := io.Writer(os.Stdout)
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating %s: %w", outPath, err)
		}
		defer f.Close()
		out = f
	}
	if err := writeReport(out, res.Report, jsonOutput); err != nil {
		return err
	}
	if outPath != "" {
		fmt.Fprintf(os.Stderr, "Report written to %s\n", outPath)
	}
	return nil
}

func writeReport(w io.Writer, r *types.Report, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}

func printTimings(w io.Writer, res *types.PipelineResult) {
	fmt.Fprintf(w, "Run %s, model: %s\n\n", res.RunID, res.ModelUsed)
	fmt.Fprintf(w, "%-12s  %-10s  %-9s  %-14s  %-8s  %s\n",
		"Phase", "Category", "Outcome", "Model", "Attempts", "Duration")
	fmt.Fprintln(w, strings.Repeat("-", 74))
	var total int64
	for _, t := range res.PhaseTimings {
		model := t.Model
		if t.CacheHit {
			model = "(cache)"
		}
		fmt.Fprintf(w, "%-12s  %-10s  %-9s  %-14s  %-8d  %dms\n",
			t.PhaseID, t.Category, t.Outcome, model, t.Attempts, t.DurationMs)
		total += t.DurationMs
	}
	fmt.Fprintf(w, "\n%d phases, %dms phase time\n", len(res.PhaseTimings), total)
}

// serveMetrics exposes a fresh registry on addr/metrics for the duration of
// the run.
func serveMetrics(addr string) (metrics.Recorder, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
	return rec, shutdown, nil
}

func init() {
	runCmd.Flags().String("name", "", "organization display name (required)")
	runCmd.Flags().String("url", "", "organization canonical URL (required)")
	runCmd.Flags().String("locale", "", "BCP 47 locale for regional focus (e.g. de-DE)")
	runCmd.Flags().String("sector", "", "industry hint")
	runCmd.Flags().String("model", "", "primary model (default: pipeline.primary_model)")
	runCmd.Flags().String("mode", "", "scheduling mode: sequential or parallel (default: by model family)")
	runCmd.Flags().String("cache", "", "cache mode: off, read, write, readwrite (default: cache.mode)")
	runCmd.Flags().StringSlice("phases", nil, "phases to run (comma-separated, default: all)")
	runCmd.Flags().String("out", "", "write the report to this file instead of stdout")
	runCmd.Flags().Bool("json", false, "output the report as JSON instead of YAML")
	runCmd.Flags().Float64("temperature", 0, "sampling temperature for models that accept one")
	runCmd.Flags().String("reasoning-effort", "", "reasoning effort for models that accept one: low, medium, high")
	runCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	runCmd.MarkFlagRequired("name")
	runCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(runCmd)
}
