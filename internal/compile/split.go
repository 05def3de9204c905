package compile

import (
	"strconv"
	"strings"
)

// chapterSlice is one chapter recovered from raw generated text.
type chapterSlice struct {
	Number int
	Title  string // title from the heading line, may be empty
	Body   string
}

// splitChapters cuts raw text on chapter-boundary headings. Text before the
// first heading, or text with no headings at all, becomes a single slice
// with number 0 (the caller assigns the next sequential number).
func splitChapters(text string) []chapterSlice {
	matches := chapterHeadingRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		body := strings.TrimSpace(text)
		if body == "" {
			return nil
		}
		return []chapterSlice{{Body: body}}
	}

	var out []chapterSlice
	if lead := strings.TrimSpace(text[:matches[0][0]]); lead != "" {
		out = append(out, chapterSlice{Body: lead})
	}
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		num, _ := strconv.Atoi(text[m[2]:m[3]])
		title := ""
		if m[4] >= 0 {
			title = strings.TrimSpace(text[m[4]:m[5]])
		}
		body := strings.TrimSpace(text[m[1]:end])
		if body == "" && title == "" {
			continue
		}
		out = append(out, chapterSlice{Number: num, Title: title, Body: body})
	}
	return out
}

// extractHeadingTitle returns the title from a leading chapter heading line,
// if the text starts with one.
func extractHeadingTitle(text string) string {
	m := chapterHeadingRe.FindStringSubmatchIndex(text)
	if m == nil || strings.TrimSpace(text[:m[0]]) != "" {
		return ""
	}
	if m[4] >= 0 {
		return strings.TrimSpace(text[m[4]:m[5]])
	}
	return ""
}

// countWords counts whitespace-separated words.
func countWords(s string) int {
	return len(strings.Fields(s))
}
