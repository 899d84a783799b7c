// Package prompts builds the localized instruction text used by the agent:
// system prompts per chat type, the retrieval rewrite instruction, the
// evidence block, and the round-budget exhaustion instruction.
package prompts

import (
	"fmt"
	"strings"
)

// Chat type discriminators.
const (
	ChatTypePrivate = "private"
	ChatTypeGroup   = "group"
)

// Overrides replaces individual built-in prompt texts. Empty fields fall
// back to the defaults for the locale.
type Overrides struct {
	System    string
	Rewrite   string
	Exhausted string
}

func isChinese(locale string) bool {
	locale = strings.ToLower(strings.TrimSpace(locale))
	return strings.HasPrefix(locale, "zh")
}

// System returns the system prompt for a chat type and locale.
func System(chatType, locale string, ov *Overrides) string {
	if ov != nil && ov.System != "" {
		return ov.System
	}

	if isChinese(locale) {
		scope := "一段私聊记录"
		if chatType == ChatTypeGroup {
			scope = "一个群聊的聊天记录"
		}
		return fmt.Sprintf(`你是一个聊天记录分析助手，负责回答关于%s的问题。
你可以调用工具来检索和统计消息。回答必须基于工具返回的真实记录，`+
			`不要编造不存在的消息。如果检索结果不足以回答问题，请明确说明。`, scope)
	}

	scope := "a private conversation"
	if chatType == ChatTypeGroup {
		scope = "a group chat"
	}
	return fmt.Sprintf(`You are a chat-log analysis assistant answering questions about %s.
You may call tools to retrieve and aggregate messages. Ground every answer in
the records the tools return; never invent messages. If the retrieved
evidence is insufficient, say so explicitly.`, scope)
}

// Rewrite returns the instruction for the semantic-retrieval rewrite call.
// The model must reply with one JSON object: {"query", "top_k",
// "candidate_limit"}.
func Rewrite(locale string, ov *Overrides) string {
	if ov != nil && ov.Rewrite != "" {
		return ov.Rewrite
	}

	if isChinese(locale) {
		return `请把用户的问题改写成一个适合语义检索的查询计划。只输出一个 JSON 对象，` +
			`不要输出其他内容，格式为：{"query": "检索用的查询文本", "top_k": 返回条数, ` +
			`"candidate_limit": 候选池大小}。`
	}

	return `Rewrite the user's question into a semantic retrieval plan. Reply with ` +
		`exactly one JSON object and nothing else: {"query": "<search text>", ` +
		`"top_k": <result count>, "candidate_limit": <candidate pool size>}.`
}

// Exhausted returns the final instruction appended when the tool-round
// budget is spent: answer from what has been gathered, no more tool calls.
func Exhausted(locale string, ov *Overrides) string {
	if ov != nil && ov.Exhausted != "" {
		return ov.Exhausted
	}

	if isChinese(locale) {
		return "工具调用次数已用完。请根据已经获取到的信息直接回答用户的问题，不要再请求任何工具。"
	}

	return "The tool-call budget is exhausted. Answer the user's question now " +
		"using only the information already gathered. Do not request any more tools."
}

// Evidence renders the evidence block inserted before the user's question
// after a forced semantic search.
func Evidence(locale, query string, topK, candidateLimit int, payload string) string {
	if isChinese(locale) {
		return fmt.Sprintf(`以下是针对用户问题执行语义检索得到的证据（查询：%q，top_k=%d，candidate_limit=%d）：

%s

回答必须基于以上证据。如果证据不足以回答问题，请明确说明，不要编造。`, query, topK, candidateLimit, payload)
	}

	return fmt.Sprintf(`Semantic search evidence for the user's question (query: %q, top_k=%d, candidate_limit=%d):

%s

Ground your answer in this evidence. If it is insufficient to answer, state
that explicitly instead of fabricating.`, query, topK, candidateLimit, payload)
}
