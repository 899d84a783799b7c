package agent

import "github.com/SanJoeng/ChatLab/pkg/llm"

// usageTotal accumulates token usage across every model call of one
// execution. It is zeroed only at the start of Execute/ExecuteStream.
type usageTotal struct {
	total llm.Usage
}

// add accumulates an optional usage record; nil is a no-op.
func (u *usageTotal) add(rec *llm.Usage) {
	if rec == nil {
		return
	}
	u.total.PromptTokens += rec.PromptTokens
	u.total.CompletionTokens += rec.CompletionTokens
	u.total.TotalTokens += rec.TotalTokens
}

// snapshot returns the running total.
func (u *usageTotal) snapshot() llm.Usage {
	return u.total
}
