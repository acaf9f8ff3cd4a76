package catalog

import (
	"github.com/starford/bangd/internal/models"
)

// Catalog metadata known to be wrong upstream.
var (
	// Web archive lookups take the raw URL as the query.
	noEncodeTokens = []string{"wayback", "waybackmachine"}

	// remaps points a token at another token's targets.
	remaps = map[string]string{
		"gm": "gmaps",
	}
)

// ApplyCorrections patches defs in place. A token may occur more than once
// when a provider serves several documents; every occurrence is patched and
// the last one is the remap source, matching the last-wins merge. Target
// slices are copied before being changed since aliases share them.
func ApplyCorrections(defs []models.BangDefinition) []models.BangDefinition {
	index := make(map[string][]int, len(defs))
	for i, d := range defs {
		index[d.Token] = append(index[d.Token], i)
	}

	for _, tok := range noEncodeTokens {
		for _, i := range index[tok] {
			targets := make([]models.BangTarget, len(defs[i].Targets))
			copy(targets, defs[i].Targets)
			for j := range targets {
				targets[j].URLEncodeQuery = false
				targets[j].SpaceAsPlus = false
			}
			defs[i].Targets = targets
		}
	}

	for from, to := range remaps {
		srcs := index[to]
		if len(srcs) == 0 {
			continue
		}
		src := srcs[len(srcs)-1]
		if dst := index[from]; len(dst) > 0 {
			for _, i := range dst {
				defs[i].Targets = defs[src].Targets
			}
			continue
		}
		defs = append(defs, models.BangDefinition{
			Name:      defs[src].Name,
			Token:     from,
			Targets:   defs[src].Targets,
			Order:     len(defs),
			IsDefault: true,
			IsActive:  true,
		})
	}
	return defs
}
