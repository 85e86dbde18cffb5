// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/dossier/internal/cache"
	"github.com/pdiddy/dossier/pkg/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear cached phase results",
	Long: `Cache operates on the phase cache under cache.dir. Entries are keyed by
subject, which is derived from the organization's canonical URL, and phase.`,
}

// --- show subcommand ---

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List cached phase entries for a subject",
	RunE:  runCacheShow,
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	pc, subject, closeFn, err := openSubjectCache(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	entries, err := pc.List(context.Background(), subject.ID())
	if err != nil && len(entries) == 0 {
		return err
	}
	if err != nil {
		logger.Warn("some cache entries could not be read", "error", err)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	fmt.Fprintf(os.Stdout, "Subject %s (%s), stores: %s\n\n",
		subject.ID(), types.NormalizeURL(subject.CanonicalURL), strings.Join(pc.Stores(), ", "))
	if len(entries) == 0 {
		fmt.Println("No cached phases.")
		return nil
	}
	fmt.Fprintf(os.Stdout, "%-12s  %-6s  %-14s  %-7s  %-20s  %s\n",
		"Phase", "Status", "Model", "Store", "Updated", "Detail")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 90))
	for _, e := range entries {
		detail := fmt.Sprintf("%d bytes", len(e.Payload))
		if e.Status == cache.StatusError {
			detail = e.Error
			if len(detail) > 40 {
				detail = detail[:37] + "..."
			}
		}
		fmt.Fprintf(os.Stdout, "%-12s  %-6s  %-14s  %-7s  %-20s  %s\n",
			e.PhaseID, e.Status, e.Model, e.Store, e.UpdatedAt.Local().Format("2006-01-02 15:04:05"), detail)
	}
	return nil
}

// --- clear subcommand ---

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached phase entry for a subject",
	RunE:  runCacheClear,
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	pc, subject, closeFn, err := openSubjectCache(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := pc.Clear(context.Background(), subject.ID())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Removed %d cached entries for %s\n", n, subject.ID())
	return nil
}

// --- shared helpers ---

func openSubjectCache(cmd *cobra.Command) (*cache.PhaseCache, types.Subject, func(), error) {
	rawURL, _ := cmd.Flags().GetString("url")
	subject, err := subjectFromURL(rawURL)
	if err != nil {
		return nil, types.Subject{}, nil, err
	}

	c := cfg
	c.Metrics.DBEnabled = false
	ws, err := openWorkspace(context.Background(), c, types.CacheReadWrite)
	if err != nil {
		return nil, types.Subject{}, nil, err
	}
	return ws.cache, subject, func() { ws.Close() }, nil
}

func init() {
	cacheCmd.PersistentFlags().String("url", "", "organization canonical URL (required)")
	cacheShowCmd.Flags().Bool("json", false, "output entries as JSON")

	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(cacheCmd)
}
