package core

import (
	"fmt"
	"strings"

	"pkt.systems/codeforge/schema"
)

// deriveTitle cuts the trimmed field description to max runes.
func deriveTitle(fields string, max int, fallback schema.TabTitle) schema.TabTitle {
	trimmed := strings.TrimSpace(fields)
	if trimmed == "" {
		return fallback
	}
	runes := []rune(trimmed)
	if max > 0 && len(runes) > max {
		runes = runes[:max]
	}
	return schema.TabTitle(string(runes))
}

// uniqueTitle appends sep and a counter until base collides with no title
// in taken.
func uniqueTitle(base schema.TabTitle, sep string, taken map[schema.TabTitle]bool) schema.TabTitle {
	if !taken[base] {
		return base
	}
	for i := 1; ; i++ {
		candidate := schema.TabTitle(fmt.Sprintf("%s%s%d", base, sep, i))
		if !taken[candidate] {
			return candidate
		}
	}
}
