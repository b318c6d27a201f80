package rag

import (
	"fmt"
	"strings"
)

const contextSeparator = "\n\n---\n\n"

// BuildContext renders chunks in ranked order as
// "[Document: <title> | Category: <category>]\n<content>" blocks.
func BuildContext(chunks []ContextChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("[Document: %s | Category: %s]\n%s", c.Title, c.Category, c.Content))
	}
	return strings.Join(parts, contextSeparator)
}

// Titles lists the distinct chunk titles in order.
func Titles(chunks []ContextChunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	var out []string
	for _, c := range chunks {
		if _, ok := seen[c.Title]; ok {
			continue
		}
		seen[c.Title] = struct{}{}
		out = append(out, c.Title)
	}
	return out
}
