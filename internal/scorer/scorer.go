// Package scorer assigns an importance level (1-5) to memory content when the
// caller does not supply one. Scoring is local and heuristic: category
// baseline, keyword signals, and a length bonus. No model call is involved.
package scorer

import "strings"

// keywordLevels maps importance levels to signal phrases. The highest
// matching level wins.
var keywordLevels = map[int][]string{
	5: {
		"password", "token", "secret", "api key", "private key",
		"credentials", "urgent", "critical", "never", "always",
	},
	4: {
		"decision", "important", "priority", "deadline", "payment",
		"debt", "critical error", "critical bug", "do not", "rule",
	},
	3: {
		"project", "strategy", "goal", "config", "configuration",
		"server", "deploy", "production",
	},
	2: {
		"note", "reminder", "consider",
	},
}

// categoryBaseline is the floor importance per category.
var categoryBaseline = map[string]int{
	"general":    1,
	"preference": 4,
	"decision":   4,
	"finance":    3,
	"trading":    3,
	"project":    3,
	"task":       2,
	"person":     2,
}

// longContentWords is the word count above which content earns a +1 bonus.
const longContentWords = 60

// Score returns an importance between 1 and 5 for the given content and
// category.
func Score(content, category string) int {
	score, ok := categoryBaseline[category]
	if !ok {
		score = 2
	}

	lower := strings.ToLower(content)
	for level := 5; level >= 2; level-- {
		if score >= level {
			continue
		}
		for _, kw := range keywordLevels[level] {
			if strings.Contains(lower, kw) {
				score = level
				break
			}
		}
	}

	if len(strings.Fields(content)) > longContentWords && score < 5 {
		score++
	}

	if score < 1 {
		score = 1
	}
	if score > 5 {
		score = 5
	}
	return score
}

// Func adapts Score to the engine's auto-scorer hook.
type Func func(content, category string) int
