package chunker

import "strings"

// EstimateTokens gives a rough token count for workload statistics. French
// legal prose runs at about 1.5 tokens per word.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return max(1, words*3/2)
}
