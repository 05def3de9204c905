package engine

import (
	"regexp"
	"strings"
)

// qualityThreshold is the score above which an editor node skips its AI
// call entirely. A deliberate cost-saving short-circuit: text that already
// scores well gains little from a refinement pass.
const qualityThreshold = 0.70

var (
	sentenceEndRe = regexp.MustCompile(`[.!?]["')\]]?(\s|$)`)
	dialogueRe    = regexp.MustCompile(`["“”']`)
	descriptionRe = regexp.MustCompile(`(?i)\b(looked|seemed|appeared|felt|glanced|towering|gleaming|shadowed|crimson|golden|silent)\b`)
	actionRe      = regexp.MustCompile(`(?i)\b(ran|grabbed|jumped|struck|raced|slammed|threw|lunged|spun|charged)\b`)
	doubleSpaceRe = regexp.MustCompile(`[ \t]{2,}`)
	lowerStartRe  = regexp.MustCompile(`(?m)^[a-z]`)
)

// qualityScore rates existing text on a 0..1 scale using deterministic
// signals: length, sentence and paragraph counts, presence of dialogue,
// description and action, and basic grammar hygiene. Weighted so that
// competent long-form prose clears qualityThreshold without an AI call.
func qualityScore(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	var score float64

	// Length (0.25): full credit at 800+ words.
	words := len(strings.Fields(text))
	score += 0.25 * ratio(words, 800)

	// Sentences (0.20): full credit at 30+.
	sentences := len(sentenceEndRe.FindAllString(text, -1))
	score += 0.20 * ratio(sentences, 30)

	// Paragraphs (0.15): full credit at 5+.
	paragraphs := 0
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs++
		}
	}
	score += 0.15 * ratio(paragraphs, 5)

	// Texture (0.10 each): dialogue, description, action.
	if dialogueRe.MatchString(text) {
		score += 0.10
	}
	if descriptionRe.MatchString(text) {
		score += 0.10
	}
	if actionRe.MatchString(text) {
		score += 0.10
	}

	// Grammar signals (0.10): docked for double spaces and sentences
	// starting lowercase.
	grammar := 0.10
	if doubleSpaceRe.MatchString(text) {
		grammar -= 0.05
	}
	if lowerStartRe.MatchString(text) {
		grammar -= 0.05
	}
	score += grammar

	if score > 1 {
		score = 1
	}
	return score
}

func ratio(have, want int) float64 {
	if have >= want {
		return 1
	}
	return float64(have) / float64(want)
}
