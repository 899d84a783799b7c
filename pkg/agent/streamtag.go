package agent

import (
	"regexp"
	"strings"
)

// Markers for suppressed spans in model output. Matched case-insensitively.
const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
	toolOpen   = "<tool_call>"
	toolClose  = "</tool_call>"
)

var (
	thinkSpanRe    = regexp.MustCompile(`(?is)<think>.*?</think>`)
	toolCallSpanRe = regexp.MustCompile(`(?is)<tool_call>(.*?)</tool_call>`)
)

// StripThinking removes completed thinking spans. Unterminated markers are
// ordinary text and stay.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkSpanRe.ReplaceAllString(s, ""))
}

// StripToolCalls removes completed embedded tool-call spans.
func StripToolCalls(s string) string {
	return strings.TrimSpace(toolCallSpanRe.ReplaceAllString(s, ""))
}

// HasToolCallSpan reports whether s contains at least one complete embedded
// tool-call span.
func HasToolCallSpan(s string) bool {
	return toolCallSpanRe.MatchString(s)
}

type parserState int

const (
	statePlain parserState = iota
	stateThinking
	stateToolCall
)

// streamTagParser separates an incrementally growing model-output buffer
// into forwardable content and suppressed spans (thinking, embedded tool
// calls). Every forwardable character is emitted exactly once, in order.
// Suppression only engages once both markers of a span are observed; a
// partial opening marker at the buffer tail is held back until it either
// completes or turns out to be plain text.
type streamTagParser struct {
	acc   strings.Builder // full text so far
	lower strings.Builder // ASCII-lowercased shadow for marker matching
	state parserState

	// displayed is the resolution watermark into acc: everything before it
	// has been forwarded or discarded. While inside a span it marks the
	// span's opening marker, so an unterminated span can still be replayed
	// as ordinary text at stream end.
	displayed   int
	spanOpenEnd int // end of the current span's opening marker
}

func newStreamTagParser() *streamTagParser {
	return &streamTagParser{}
}

// feed appends a delta and returns the content that is now safe to forward.
func (p *streamTagParser) feed(delta string) string {
	p.acc.WriteString(delta)
	p.lower.WriteString(asciiLower(delta))
	return p.drain()
}

func (p *streamTagParser) drain() string {
	acc := p.acc.String()
	lower := p.lower.String()
	var out strings.Builder

	for {
		switch p.state {
		case stateThinking:
			rel := strings.Index(lower[p.spanOpenEnd:], thinkClose)
			if rel < 0 {
				return out.String()
			}
			// Span interior is discarded, never forwarded.
			p.displayed = p.spanOpenEnd + rel + len(thinkClose)
			p.state = statePlain

		case stateToolCall:
			rel := strings.Index(lower[p.spanOpenEnd:], toolClose)
			if rel < 0 {
				return out.String()
			}
			p.displayed = p.spanOpenEnd + rel + len(toolClose)
			p.state = statePlain

		case statePlain:
			rest := lower[p.displayed:]
			ti := strings.Index(rest, thinkOpen)
			ci := strings.Index(rest, toolOpen)

			idx := -1
			markerLen := 0
			next := statePlain
			if ti >= 0 && (ci < 0 || ti <= ci) {
				idx, markerLen, next = ti, len(thinkOpen), stateThinking
			} else if ci >= 0 {
				idx, markerLen, next = ci, len(toolOpen), stateToolCall
			}

			if idx >= 0 {
				out.WriteString(acc[p.displayed : p.displayed+idx])
				markerStart := p.displayed + idx
				p.displayed = markerStart
				p.spanOpenEnd = markerStart + markerLen
				p.state = next
				continue
			}

			// No opening marker: forward everything except a tail that
			// could still grow into one.
			hold := partialMarkerLen(rest)
			end := len(acc) - hold
			if end > p.displayed {
				out.WriteString(acc[p.displayed:end])
				p.displayed = end
			}
			return out.String()
		}
	}
}

// finalize flushes the remaining tail once the stream has ended. An
// unterminated span or a held-back partial marker is ordinary text and is
// forwarded as-is.
func (p *streamTagParser) finalize() string {
	acc := p.acc.String()
	if p.displayed >= len(acc) {
		return ""
	}
	tail := acc[p.displayed:]
	p.displayed = len(acc)
	p.state = statePlain
	return tail
}

// buffer returns the full accumulated text.
func (p *streamTagParser) buffer() string {
	return p.acc.String()
}

// partialMarkerLen returns the length of the longest suffix of lowerRest
// that is a proper prefix of an opening marker.
func partialMarkerLen(lowerRest string) int {
	max := len(toolOpen) - 1
	if len(lowerRest) < max {
		max = len(lowerRest)
	}
	for n := max; n > 0; n-- {
		tail := lowerRest[len(lowerRest)-n:]
		if strings.HasPrefix(thinkOpen, tail) || strings.HasPrefix(toolOpen, tail) {
			return n
		}
	}
	return 0
}

// asciiLower lowercases ASCII letters only, preserving byte offsets for
// multi-byte runes.
func asciiLower(s string) string {
	hasUpper := false
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return s
	}

	b := []byte(s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
