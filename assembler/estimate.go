package assembler

import (
	"unicode/utf8"

	"github.com/richinex/contextloom/llm"
)

// Estimator sizes text in token-equivalent units.
type Estimator interface {
	Estimate(text string) int
}

// messageOverhead approximates the role and framing tokens of one message.
const messageOverhead = 4

// CharEstimator approximates tokens from the character count. Zero
// CharsPerToken means 4.
type CharEstimator struct {
	CharsPerToken int
}

// Estimate implements Estimator.
func (e CharEstimator) Estimate(text string) int {
	per := e.CharsPerToken
	if per <= 0 {
		per = 4
	}
	n := utf8.RuneCountInString(text)
	return (n + per - 1) / per
}

func estimateMessages(e Estimator, messages []llm.ChatMessage) int {
	total := 0
	for _, m := range messages {
		total += e.Estimate(m.Content) + messageOverhead
	}
	return total
}
