// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/dossier/internal/metrics"
	"github.com/pdiddy/dossier/internal/sqlitedb"
)

var timingsCmd = &cobra.Command{
	Use:   "timings",
	Short: "List recorded phase timings for a subject",
	Long: `Timings reads the phase_timings table that runs record into when
metrics.db_enabled is set, most recent launch first.`,
	RunE: runTimings,
}

func runTimings(cmd *cobra.Command, args []string) error {
	rawURL, _ := cmd.Flags().GetString("url")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	subject, err := subjectFromURL(rawURL)
	if err != nil {
		return err
	}

	db, err := sqlitedb.Open(cfg.Cache.Dir)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	rec, err := metrics.NewSQLRecorder(ctx, db, logger)
	if err != nil {
		return err
	}
	timings, err := rec.Query(ctx, subject.ID(), limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(timings)
	}
	if len(timings) == 0 {
		fmt.Println("No timings recorded.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-8s  %-20s  %-12s  %-9s  %-14s  %-5s  %s\n",
		"Run", "Started", "Phase", "Outcome", "Model", "Cache", "Duration")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 88))
	for _, t := range timings {
		run := t.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		fmt.Fprintf(os.Stdout, "%-8s  %-20s  %-12s  %-9s  %-14s  %-5s  %dms\n",
			run, t.StartedAt.Local().Format("2006-01-02 15:04:05"), t.PhaseID, t.Outcome,
			t.Model, yesNo(t.CacheHit), t.DurationMs)
	}
	fmt.Fprintf(os.Stdout, "\n%d timings\n", len(timings))
	return nil
}

func init() {
	timingsCmd.Flags().String("url", "", "organization canonical URL (required)")
	timingsCmd.Flags().Int("limit", 50, "maximum timings to list (0 = all)")
	timingsCmd.Flags().Bool("json", false, "output timings as JSON")

	rootCmd.AddCommand(timingsCmd)
}
