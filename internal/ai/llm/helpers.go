package llm

import (
	"context"
	"math"
	"time"
)

// estimateTokens approximates token usage for providers that do not return
// counts, using the same four-characters-per-token rule as the routing layer.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / 4.0))
}

// withCallTimeout derives the per-call context. A TimeoutMs of zero keeps
// the parent deadline and the http.Client timeout as the only bounds.
func withCallTimeout(ctx context.Context, opts GenerateOptions) (context.Context, context.CancelFunc) {
	if opts.TimeoutMs <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
}
