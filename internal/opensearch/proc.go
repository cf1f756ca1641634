package opensearch

import (
	"sort"
	"strings"
)

type procMemory struct {
	RSS    uint64
	Rollup map[string]uint64
}

func (m procMemory) rollupString() string {
	keys := make([]string, 0, len(m.Rollup))
	for k := range m.Rollup {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatBytes(m.Rollup[k]))
	}
	return strings.Join(parts, " ")
}
