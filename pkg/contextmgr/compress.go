package contextmgr

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Strategy is a compression aggressiveness level. Compaction escalates
// through these until the buffer fits the target budget.
type Strategy int

const (
	// StrategyLight collapses whitespace and truncates long content.
	StrategyLight Strategy = iota
	// StrategyMedium keeps a sentence-extraction summary.
	StrategyMedium
	// StrategyHeavy keeps only a keyword digest.
	StrategyHeavy
	// StrategyEmergency keeps only a category tag.
	StrategyEmergency
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyLight:
		return "light"
	case StrategyMedium:
		return "medium"
	case StrategyHeavy:
		return "heavy"
	case StrategyEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

const lightTruncateChars = 2000

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	sentenceRe   = regexp.MustCompile(`[^.!?\n]+[.!?\n]?`)
	wordRe       = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_./-]{3,}`)
)

//nolint:gochecknoglobals // Fixed stopword set for keyword extraction
var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"were": true, "been": true, "will": true, "would": true, "should": true,
	"could": true, "into": true, "then": true, "than": true, "when": true,
	"which": true, "there": true, "their": true, "about": true, "because": true,
}

// compress applies the given strategy to content and returns the result.
func compress(strategy Strategy, content string, category Category) string {
	switch strategy {
	case StrategyLight:
		return compressLight(content)
	case StrategyMedium:
		return compressMedium(content)
	case StrategyHeavy:
		return compressHeavy(content)
	case StrategyEmergency:
		return fmt.Sprintf("[%s elided]", category)
	default:
		return content
	}
}

func compressLight(content string) string {
	collapsed := whitespaceRe.ReplaceAllString(strings.TrimSpace(content), " ")
	if len(collapsed) > lightTruncateChars {
		return collapsed[:lightTruncateChars] + " …[truncated]"
	}
	return collapsed
}

// compressMedium keeps the opening and closing sentences plus any sentence
// containing one of the content's dominant keywords.
func compressMedium(content string) string {
	collapsed := compressLight(content)
	sentences := sentenceRe.FindAllString(collapsed, -1)
	if len(sentences) <= 3 {
		return collapsed
	}

	keywords := topKeywords(collapsed, 5)
	keep := make([]string, 0, 6)
	keep = append(keep, strings.TrimSpace(sentences[0]), strings.TrimSpace(sentences[1]))

	for _, sentence := range sentences[2 : len(sentences)-1] {
		if len(keep) >= 5 {
			break
		}
		lower := strings.ToLower(sentence)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				keep = append(keep, strings.TrimSpace(sentence))
				break
			}
		}
	}
	keep = append(keep, strings.TrimSpace(sentences[len(sentences)-1]))
	return "[summary] " + strings.Join(keep, " ")
}

// compressHeavy reduces content to a keyword digest.
func compressHeavy(content string) string {
	keywords := topKeywords(content, 12)
	if len(keywords) == 0 {
		return "[digest] (no salient terms)"
	}
	return "[digest] " + strings.Join(keywords, ", ")
}

func topKeywords(content string, n int) []string {
	counts := make(map[string]int)
	for _, w := range wordRe.FindAllString(content, -1) {
		lower := strings.ToLower(w)
		if stopwords[lower] {
			continue
		}
		counts[lower]++
	}

	type wc struct {
		word  string
		count int
	}
	ranked := make([]wc, 0, len(counts))
	for w, c := range counts {
		ranked = append(ranked, wc{w, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	result := make([]string, len(ranked))
	for i, r := range ranked {
		result[i] = r.word
	}
	return result
}

// strategyForRatio picks a starting strategy from the ratio of available
// budget to candidate size. A comfortable ratio starts light; a desperate
// one jumps straight to heavier levels.
func strategyForRatio(ratio float64) Strategy {
	switch {
	case ratio >= 0.7:
		return StrategyLight
	case ratio >= 0.4:
		return StrategyMedium
	case ratio >= 0.15:
		return StrategyHeavy
	default:
		return StrategyEmergency
	}
}
