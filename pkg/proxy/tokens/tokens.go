// Package tokens estimates token counts for LLM exchanges.
//
// Some vendors omit usage figures from their responses. The ledger still
// needs numbers, so this package derives them from the visible text: the
// whitespace-separated word count scaled by 1.3, which tracks real
// tokenizer output closely enough for accounting. Estimates are marked
// by their source being this package, not by any field on the wire.
package tokens

import (
	"strings"

	"fulcrum-hq/portunus/pkg/proxy/types"
)

// WordMultiplier converts a word count into an approximate token count.
// English text averages roughly 1.3 tokens per word under BPE
// tokenizers.
const WordMultiplier = 1.3

// EstimateText estimates the token count of a text as its word count
// scaled by WordMultiplier, truncated.
func EstimateText(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(float64(words) * WordMultiplier)
}

// EstimateMessages estimates prompt tokens for a conversation as the
// sum of its messages' text estimates. Multimodal content counts only
// its text parts.
func EstimateMessages(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateText(m.ContentString())
	}
	return total
}

// EstimateUsage fills a Usage from prompt messages and completion text,
// keeping the total consistent with its parts.
func EstimateUsage(messages []types.Message, completion string) types.Usage {
	prompt := EstimateMessages(messages)
	done := EstimateText(completion)
	return types.Usage{
		PromptTokens:     prompt,
		CompletionTokens: done,
		TotalTokens:      prompt + done,
	}
}
