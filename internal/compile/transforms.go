package compile

import (
	"regexp"
	"strings"
)

// Transform is one text-cleanup heuristic. Transforms are independent and
// individually testable; Cleanup runs them as a pipeline.
type Transform func(string) string

// DefaultTransforms is the cleanup pipeline applied to every chapter body
// before it enters the compiled document.
var DefaultTransforms = []Transform{
	StripPermissionBanners,
	StripAcknowledgements,
	StripJSONFragments,
	CollapseBlankLines,
}

// Cleanup applies the given transforms in order. Nil uses DefaultTransforms.
func Cleanup(text string, transforms []Transform) string {
	if transforms == nil {
		transforms = DefaultTransforms
	}
	for _, t := range transforms {
		text = t(text)
	}
	return strings.TrimSpace(text)
}

var permissionBannerRe = regexp.MustCompile(`(?im)^\s*\[?(?:permissions?|capabilit(?:y|ies)|role|instructions?)\s*:.*\]?\s*$`)

// StripPermissionBanners removes permission/instruction banner lines that a
// generation call echoed back from its prompt.
func StripPermissionBanners(text string) string {
	return permissionBannerRe.ReplaceAllString(text, "")
}

var acknowledgementRe = regexp.MustCompile(`(?i)^\s*(?:sure|certainly|of course|absolutely|here(?:'s| is| are))[^\n]*(?::|!|\.)\s*\n+`)

// StripAcknowledgements removes the conversational preamble some models
// prepend ("Sure, here is the chapter you asked for:").
func StripAcknowledgements(text string) string {
	return acknowledgementRe.ReplaceAllString(text, "")
}

var jsonFragmentRe = regexp.MustCompile(`(?m)^\s*[{\[]\s*"[^\n]*[}\]],?\s*$`)

// StripJSONFragments removes stray single-line JSON fragments that leak out
// of structured generation attempts.
func StripJSONFragments(text string) string {
	return jsonFragmentRe.ReplaceAllString(text, "")
}

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// CollapseBlankLines squeezes runs of blank lines left behind by the other
// transforms down to a single blank line.
func CollapseBlankLines(text string) string {
	return blankRunRe.ReplaceAllString(text, "\n\n")
}

// chapterHeadingRe matches a chapter boundary line, capturing the chapter
// number and an optional inline title.
var chapterHeadingRe = regexp.MustCompile(`(?im)^\s*(?:#{1,3}\s*)?chapter\s+(\d+)\s*[:.\-—]?\s*(.*)$`)

// StripChapterHeading removes the heading line for the given chapter number
// once its title has been lifted into metadata, so the body is not prefixed
// with a redundant "Chapter N" line.
func StripChapterHeading(text string) string {
	loc := chapterHeadingRe.FindStringIndex(text)
	if loc == nil || strings.TrimSpace(text[:loc[0]]) != "" {
		return text
	}
	return strings.TrimSpace(text[loc[1]:])
}
