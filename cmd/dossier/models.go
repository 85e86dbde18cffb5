// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/dossier/internal/capability"
	"github.com/pdiddy/dossier/internal/pipeline"
)

var modelsCmd = &cobra.Command{
	Use:   "models [id...]",
	Short: "Show resolved model capabilities and fallbacks",
	Long: `Models prints the capability table: the built-in entries plus any
overrides from the models section of the config. Given model IDs, it prints
what those IDs resolve to, including unknown models, which get conservative
defaults. Each row shows the scheduling mode and fallback a run would use.`,
	RunE: runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	caps := capability.NewResolver(cfg.Models...)
	o := pipeline.New(nil, cfg, pipeline.WithCapabilities(caps), pipeline.WithLogger(logger))

	ids := args
	if len(ids) == 0 {
		seen := make(map[string]bool)
		for _, m := range append(capability.Builtin(), cfg.Models...) {
			if !seen[m.ID] {
				seen[m.ID] = true
				ids = append(ids, m.ID)
			}
		}
	}

	fmt.Fprintf(os.Stdout, "%-14s  %-8s  %-7s  %-4s  %-6s  %-9s  %-5s  %-10s  %s\n",
		"Model", "Family", "Dialect", "Temp", "Tokens", "Reasoning", "Tools", "Mode", "Fallback")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 96))
	for _, id := range ids {
		c := caps.Resolve(id)
		family := string(c.Family)
		if !caps.Known(id) {
			family += "*"
		}
		temp := "-"
		if c.Temperature {
			temp = fmt.Sprintf("%.1f", c.DefaultTemperature)
		}
		fb, ok := o.Fallback(id)
		if !ok {
			fb = "-"
		}
		fmt.Fprintf(os.Stdout, "%-14s  %-8s  %-7s  %-4s  %-6s  %-9s  %-5s  %-10s  %s\n",
			id, family, c.Dialect, temp, yesNo(c.MaxOutputTokens), yesNo(c.ReasoningEffort),
			yesNo(c.Tools), o.Mode(id, pipeline.Options{}), fb)
	}
	if len(args) > 0 {
		fmt.Fprintln(os.Stdout, "\n* not in the capability table; defaults applied")
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
