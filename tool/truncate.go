package tool

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DefaultMaxPayloadChars is the default character budget for a tool payload
const DefaultMaxPayloadChars = 12000

const truncationMarker = "\n\n[truncated: %d more characters omitted]"

// Truncate shortens payload to at most limit characters plus a trailing
// marker. The cut prefers, in order: the start of a markdown section or
// fenced code block, a blank line, a line break. It never splits a UTF-8
// sequence. A non-positive limit disables truncation.
func Truncate(payload string, limit int) (string, bool) {
	total := utf8.RuneCountInString(payload)
	if limit <= 0 || total <= limit {
		return payload, false
	}

	hardCut := byteOffset(payload, limit)
	cut := hardCut
	floor := hardCut / 2

	if b := sectionBoundary(payload, hardCut); b > floor {
		cut = b
	} else if b := strings.LastIndex(payload[:hardCut], "\n\n"); b > floor {
		cut = b
	} else if b := strings.LastIndexByte(payload[:hardCut], '\n'); b > floor {
		cut = b
	}

	kept := strings.TrimRight(payload[:cut], " \t\r\n")
	omitted := total - utf8.RuneCountInString(kept)
	return kept + fmt.Sprintf(truncationMarker, omitted), true
}

// byteOffset returns the byte index of the n-th rune of s.
func byteOffset(s string, n int) int {
	i := 0
	for offset := range s {
		if i == n {
			return offset
		}
		i++
	}
	return len(s)
}

// sectionBoundary returns the latest offset at or before limit where a
// heading line or a fenced code block begins, or -1. A cut there keeps
// whole sections and never leaves an unterminated code fence.
func sectionBoundary(src string, limit int) int {
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	best := -1
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		var start int
		switch n.Kind() {
		case ast.KindHeading:
			lines := n.Lines()
			if lines.Len() == 0 {
				return ast.WalkSkipChildren, nil
			}
			start = lineStart(src, lines.At(0).Start)
		case ast.KindFencedCodeBlock:
			lines := n.Lines()
			if lines.Len() == 0 {
				return ast.WalkSkipChildren, nil
			}
			// the opening fence is the line above the first content line
			start = lineStart(src, lineStart(src, lines.At(0).Start)-1)
			if stop := lines.At(lines.Len() - 1).Stop; stop <= limit {
				// block ends before the cut: prefer the line after its closing fence
				if nl := strings.IndexByte(src[stop:], '\n'); nl >= 0 && stop+nl+1 <= limit {
					start = stop + nl + 1
				}
			}
		default:
			return ast.WalkContinue, nil
		}

		if start > 0 && start <= limit && start > best {
			best = start
		}
		return ast.WalkSkipChildren, nil
	})
	return best
}

func lineStart(src string, offset int) int {
	if offset <= 0 {
		return 0
	}
	if offset > len(src) {
		offset = len(src)
	}
	return strings.LastIndexByte(src[:offset], '\n') + 1
}
