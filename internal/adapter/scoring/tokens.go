package scoring

import (
	"log/slog"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Token budgeting keeps long multi-answer transcripts inside the model's
// context window. Uses the cl100k_base encoding; falls back to a rough
// 4-characters-per-token estimate if the encoding cannot be loaded.

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		var err error
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tiktoken encoding unavailable, using estimate", slog.Any("error", err))
		}
	})
	return enc
}

// countTokens returns the token count of s.
func countTokens(s string) int {
	if e := encoding(); e != nil {
		return len(e.Encode(s, nil, nil))
	}
	return (len(s) + 3) / 4
}

// truncateToTokens cuts s down to at most budget tokens, appending a marker
// when content was dropped.
func truncateToTokens(s string, budget int) string {
	if budget <= 0 || countTokens(s) <= budget {
		return s
	}
	const marker = " … [truncated]"
	if e := encoding(); e != nil {
		toks := e.Encode(s, nil, nil)
		return e.Decode(toks[:budget]) + marker
	}
	cut := budget * 4
	if cut >= len(s) {
		return s
	}
	return s[:cut] + marker
}
