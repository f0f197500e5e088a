package client

import (
	"fmt"
	"strings"
)

const documentSeparator = "\n\n---\n\n"

// FormatContext renders results as numbered blocks for inclusion in an LLM
// prompt:
//
//	[Document 1]
//	<content>
//
//	---
//
//	[Document 2]
//	<content>
//
// It returns "" when results is empty.
func FormatContext(results []Result) string {
	if len(results) == 0 {
		return ""
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[Document %d]\n%s", i+1, r.Content)
	}
	return strings.Join(blocks, documentSeparator)
}
