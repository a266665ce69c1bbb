package reconcile

import (
	"fmt"
	"strings"
)

// bulletList renders a titled bullet-point list for direct messages.
func bulletList(title string, items []string) string {
	var b strings.Builder
	if title != "" {
		b.WriteString(title)
		b.WriteString("\n")
	}
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("• %s", item))
	}
	return b.String()
}
