package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/docqa/docqa/pkg/models"
)

func formatAsk(res models.AskResult) string {
	source := "generated"
	if res.Outcome == models.OutcomeHit {
		source = fmt.Sprintf("cached, similarity %.2f", res.Score)
	}
	return fmt.Sprintf("%s\n\n(%s; query: %q)", res.Response, source, res.Query)
}

// formatFields renders extracted fields one per line in key order.
func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return "No fields extracted."
	}
	keys := make([]string, 0, len(fields))
	width := 0
	for k := range fields {
		keys = append(keys, k)
		if len(k)+1 > width {
			width = len(k) + 1
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%-*s  %v\n", width, k+":", fields[k])
	}
	return b.String()
}

func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:   %d\n"+
		"  Documents: %d\n"+
		"  Summaries: %d\n"+
		"  Hits:      %d\n"+
		"  Misses:    %d\n"+
		"  Hit Rate:  %.1f%%\n",
		stats.Entries, stats.Documents, stats.Summaries, stats.Hits, stats.Misses, hitRate)
}
