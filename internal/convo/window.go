// Package convo maintains a bounded conversational transcript whose tail
// slices never split a tool result from the assistant turn that requested it.
package convo

import (
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/communityforge/scout/internal/model"
)

// MaxToolContentBytes bounds the stored size of a single tool result. Content
// beyond this is cut and replaced with a marker noting how much was removed.
const MaxToolContentBytes = 16 * 1024

// Window is an append-only transcript owned by exactly one extraction run.
// It is not safe for concurrent use; the orchestration model guarantees a
// single writer.
type Window struct {
	messages []model.Message
}

// New creates an empty Window.
func New() *Window {
	return &Window{}
}

// Len returns the number of stored messages.
func (w *Window) Len() int { return len(w.messages) }

// Reset clears the transcript between independent runs.
func (w *Window) Reset() {
	w.messages = w.messages[:0]
}

// Append adds messages to the transcript. Messages with a missing or unknown
// role are dropped rather than failing the run. Oversized tool results are
// truncated in place, keeping the truncation fact in the stored content.
func (w *Window) Append(msgs ...model.Message) {
	for _, m := range msgs {
		switch m.Role {
		case model.RoleSystem, model.RoleUser, model.RoleAssistant:
		case model.RoleTool:
			m.Content = truncateToolContent(m.Content)
		default:
			zap.L().Debug("convo: dropping message without a valid role",
				zap.String("role", string(m.Role)),
			)
			continue
		}
		w.messages = append(w.messages, m)
	}
}

// Tail returns the last limit messages, widened backward so that every tool
// message in the slice is preceded by the assistant message holding its tool
// call. A limit <= 0 returns the single most recent message (plus any
// required dependency expansion).
func (w *Window) Tail(limit int) []model.Message {
	if len(w.messages) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 1
	}

	start := len(w.messages) - limit
	if start < 0 {
		start = 0
	}

	// Expanding backward can expose another orphaned tool message, so iterate
	// to a fixed point. start only ever decreases and is bounded below by 0,
	// so this terminates.
	for {
		idx := w.earliestUnmetDependency(start)
		if idx < 0 {
			break
		}
		start = idx
	}

	out := make([]model.Message, len(w.messages)-start)
	copy(out, w.messages[start:])
	return out
}

// earliestUnmetDependency finds the lowest index of an assistant message that
// owns a tool call referenced by a tool message at or after start, when that
// assistant message lies before start. Returns -1 when the window is closed
// under tool-call dependencies.
func (w *Window) earliestUnmetDependency(start int) int {
	best := -1
	for i := start; i < len(w.messages); i++ {
		m := w.messages[i]
		if m.Role != model.RoleTool || m.ToolCallID == "" {
			continue
		}
		owner := w.ownerOf(m.ToolCallID)
		if owner >= 0 && owner < start {
			if best == -1 || owner < best {
				best = owner
			}
		}
	}
	return best
}

// ownerOf returns the index of the assistant message that emitted the given
// tool call, or -1 when no such message exists in the transcript.
func (w *Window) ownerOf(toolCallID string) int {
	for i, m := range w.messages {
		if m.Role != model.RoleAssistant {
			continue
		}
		for _, tc := range m.ToolCalls {
			if tc.ID == toolCallID {
				return i
			}
		}
	}
	return -1
}

// truncateToolContent caps content at MaxToolContentBytes, appending a marker
// that states exactly how many characters were removed. The cut backs up to a
// rune boundary so the stored content stays valid UTF-8.
func truncateToolContent(content string) string {
	if len(content) <= MaxToolContentBytes {
		return content
	}
	cut := MaxToolContentBytes
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	removed := utf8.RuneCountInString(content[cut:])
	return content[:cut] + fmt.Sprintf("\n[tool output truncated: %d characters removed]", removed)
}
