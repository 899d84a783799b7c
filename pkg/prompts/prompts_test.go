package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSystem(t *testing.T) {
	t.Run("should pick the English prompt by default", func(t *testing.T) {
		s := System(ChatTypePrivate, "en-US", nil)
		assert.Contains(t, s, "private conversation")
	})

	t.Run("should pick the Chinese prompt for zh locales", func(t *testing.T) {
		s := System(ChatTypeGroup, "zh-CN", nil)
		assert.Contains(t, s, "群聊")
	})

	t.Run("should scope by chat type", func(t *testing.T) {
		assert.Contains(t, System(ChatTypeGroup, "en", nil), "group chat")
		assert.Contains(t, System(ChatTypePrivate, "en", nil), "private conversation")
	})

	t.Run("should honor overrides", func(t *testing.T) {
		s := System(ChatTypePrivate, "en", &Overrides{System: "custom"})
		assert.Equal(t, "custom", s)
	})

	t.Run("should fall back past empty overrides", func(t *testing.T) {
		s := System(ChatTypePrivate, "en", &Overrides{})
		assert.Contains(t, s, "private conversation")
	})
}

func TestRewrite(t *testing.T) {
	t.Run("should demand a single JSON object", func(t *testing.T) {
		assert.Contains(t, Rewrite("en", nil), `"query"`)
		assert.Contains(t, Rewrite("en", nil), `"candidate_limit"`)
		assert.Contains(t, Rewrite("zh", nil), `"top_k"`)
	})

	t.Run("should honor overrides", func(t *testing.T) {
		assert.Equal(t, "custom", Rewrite("en", &Overrides{Rewrite: "custom"}))
	})
}

func TestExhausted(t *testing.T) {
	t.Run("should localize the closing instruction", func(t *testing.T) {
		assert.Contains(t, Exhausted("en", nil), "budget is exhausted")
		assert.Contains(t, Exhausted("zh-TW", nil), "工具")
	})
}

func TestEvidence(t *testing.T) {
	t.Run("should embed the plan and the payload", func(t *testing.T) {
		s := Evidence("en", "dinner plans", 5, 200, `[{"content":"seven pm"}]`)
		assert.Contains(t, s, `"dinner plans"`)
		assert.Contains(t, s, "top_k=5")
		assert.Contains(t, s, "candidate_limit=200")
		assert.Contains(t, s, "seven pm")
	})
}

func TestIsChinese(t *testing.T) {
	assert.True(t, isChinese("zh"))
	assert.True(t, isChinese("ZH-cn"))
	assert.True(t, isChinese(" zh-TW "))
	assert.False(t, isChinese("en"))
	assert.False(t, isChinese(""))
}
