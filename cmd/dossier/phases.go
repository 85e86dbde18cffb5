// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/dossier/internal/phases"
)

var phasesCmd = &cobra.Command{
	Use:   "phases",
	Short: "List the research phase catalog",
	Long: `Phases prints every phase in catalog order with its category, tool
policy and the report fields it owns. Use --schema to print the JSON schema a
phase's result must match.`,
	RunE: runPhases,
}

func runPhases(cmd *cobra.Command, args []string) error {
	schemaOf, _ := cmd.Flags().GetString("schema")
	catalog := phases.Default()

	if schemaOf != "" {
		specs, err := phases.Select(catalog, []string{schemaOf})
		if err != nil {
			return err
		}
		var v any
		if err := json.Unmarshal(specs[0].Schema(), &v); err != nil {
			return fmt.Errorf("decoding %s schema: %w", schemaOf, err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	printCatalog(os.Stdout, catalog)
	return nil
}

func printCatalog(w io.Writer, catalog []phases.Spec) {
	fmt.Fprintf(w, "%-12s  %-24s  %-10s  %-8s  %s\n", "Phase", "Label", "Category", "Tools", "Owns")
	fmt.Fprintln(w, strings.Repeat("-", 96))
	for _, s := range catalog {
		fmt.Fprintf(w, "%-12s  %-24s  %-10s  %-8s  %s\n",
			s.ID(), s.Label(), s.Category(), s.Tools(), strings.Join(s.Owns(), ", "))
	}
}

func init() {
	phasesCmd.Flags().String("schema", "", "print the result schema of this phase")

	rootCmd.AddCommand(phasesCmd)
}
