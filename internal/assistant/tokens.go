package assistant

import (
	"github.com/firebase/genkit/go/ai"

	"github.com/orbitpay/orbit/internal/knowledge"
)

// estimateMessagesTokens estimates total tokens in messages.
func estimateMessagesTokens(msgs []*ai.Message) int {
	total := 0
	for _, msg := range msgs {
		for _, part := range msg.Content {
			total += knowledge.EstimateTokens(part.Text)
		}
	}
	return total
}

// truncateHistory drops the oldest messages until the remainder fits
// the budget. The newest message is kept unconditionally: it carries
// the question and context.
func truncateHistory(msgs []*ai.Message, budget int) []*ai.Message {
	if len(msgs) == 0 || estimateMessagesTokens(msgs) <= budget {
		return msgs
	}

	start := len(msgs) - 1
	remaining := budget - estimateMessagesTokens(msgs[start:])
	for i := start - 1; i >= 0; i-- {
		cost := estimateMessagesTokens(msgs[i : i+1])
		if cost > remaining {
			break
		}
		remaining -= cost
		start = i
	}
	return msgs[start:]
}
