package memory

import (
	"fmt"
	"strings"
)

const indent = "    "

// TagIndent wraps each item in a labeled envelope with its content indented:
//
//	[Tag]:
//	    content
//	[/Tag]
func TagIndent(tag string, items ...string) string {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "\n[%s]:\n%s\n[/%s]\n", tag, Indent(item), tag)
	}
	return b.String()
}

// TagIndentLabeled is TagIndent with numbered labels, "Tag (Document 1)" and on.
func TagIndentLabeled(tag, label string, start int, items ...string) string {
	var b strings.Builder
	for i, item := range items {
		b.WriteString(TagIndent(fmt.Sprintf("%s (%s %d)", tag, label, start+i), item))
	}
	return b.String()
}

// Indent prefixes every non-empty line of s with four spaces.
func Indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}

// Truncate truncates s to maxLen, adding "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
