package ftindex

import "strings"

// SplitMarkdown separates a Markdown source into the three indexed
// streams: heading lines, fenced code contents, and everything else.
func SplitMarkdown(source string) (headings, body, code string) {
	var h, b, c strings.Builder
	inFence := false
	fence := ""
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if inFence {
			if strings.HasPrefix(trimmed, fence) {
				inFence = false
				continue
			}
			c.WriteString(line)
			c.WriteByte('\n')
			continue
		}
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = true
			fence = trimmed[:3]
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			h.WriteString(strings.TrimLeft(trimmed, "# "))
			h.WriteByte('\n')
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(h.String()), strings.TrimSpace(b.String()), strings.TrimSpace(c.String())
}
