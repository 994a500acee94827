// Package htmltext converts listing markup into plain text for indexing
// and prompt context.
package htmltext

import (
	"strings"

	"golang.org/x/net/html"
)

// tags whose text content is never user-visible prose.
var skipTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// blockTags that imply a line break between text runs.
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"tr": true, "table": true, "blockquote": true, "section": true,
	"article": true, "header": true, "footer": true,
}

// Strip removes all HTML markup from s, returning the visible text with
// block-level boundaries collapsed to single newlines and runs of
// whitespace within a line collapsed to single spaces. Input that is not
// well-formed HTML is handled leniently (the parser never fails on text).
func Strip(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return normalize(s)
	}

	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		// The html parser is error-tolerant; this is effectively unreachable
		// for string input, but fall back to the raw text if it happens.
		return normalize(s)
	}

	var sb strings.Builder
	walk(doc, &sb)
	return normalize(sb.String())
}

func walk(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipTags[n.Data] {
			return
		}
		if blockTags[n.Data] {
			sb.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, sb)
	}
	if n.Type == html.ElementNode && blockTags[n.Data] {
		sb.WriteByte('\n')
	}
}

// normalize collapses intra-line whitespace and blank-line runs, then trims.
func normalize(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
