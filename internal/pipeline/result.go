// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"sort"
	"strings"

	"github.com/pdiddy/dossier/internal/phases"
	"github.com/pdiddy/dossier/pkg/types"
)

// describeModels renders the model-used descriptor: the primary alone, or
// the primary followed by each distinct fallback model and the phases it
// served, e.g. "gpt-5 (fallback: gpt-4.1 for market, signals)".
func describeModels(primary string, fallbacks []types.FallbackUse) string {
	if len(fallbacks) == 0 {
		return primary
	}
	byModel := make(map[string][]string)
	var models []string
	for _, f := range fallbacks {
		if _, ok := byModel[f.Model]; !ok {
			models = append(models, f.Model)
		}
		byModel[f.Model] = append(byModel[f.Model], f.PhaseID)
	}
	sort.Strings(models)

	parts := make([]string, len(models))
	for i, m := range models {
		parts[i] = m + " for " + strings.Join(byModel[m], ", ")
	}
	return primary + " (fallback: " + strings.Join(parts, "; ") + ")"
}

// sortFallbacks puts fallbacks in catalog order; they arrive in completion
// order.
func sortFallbacks(fallbacks []types.FallbackUse, specs []phases.Spec) {
	pos := make(map[string]int, len(specs))
	for i, s := range specs {
		pos[s.ID()] = i
	}
	sort.SliceStable(fallbacks, func(i, j int) bool {
		return pos[fallbacks[i].PhaseID] < pos[fallbacks[j].PhaseID]
	})
}
