// Package agent drives multi-round tool-calling executions over a chat-log
// corpus: model call, tool dispatch, repeat, until a final answer or the
// round budget runs out.
//
// Invariants:
// - One Agent execution owns its transcript; nothing is shared across runs.
// - Tool calls route through the tool runtime only.
// - Token usage is accumulated across every model call of one execution,
//   including the forced semantic-retrieval rewrite call.
// - Streaming consumers receive every visible character exactly once, in
//   order, with thinking and embedded tool-call spans suppressed.
//
// Usage:
//
//	ag, _ := agent.New(agent.Config{
//		Provider: provider,
//		Runtime:  runtime,
//		Options:  agent.DefaultOptions("gpt-4o"),
//	})
//	result, _ := ag.Execute(ctx, "我们最近关系怎么样")
//	_ = result
package agent
