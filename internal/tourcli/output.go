// output.go holds CLI rendering helpers.
package tourcli

import (
	"fmt"
	"strings"
	"time"

	"github.com/tourdesk/tourdesk/chatservice"
	"github.com/tourdesk/tourdesk/chatsync"
)

// previewWidth truncates room previews in listings.
const previewWidth = 48

// formatWhen renders timestamps relative to today: time-only for today,
// date+time otherwise.
func formatWhen(t time.Time, now time.Time) string {
	t = t.Local()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("Jan 02 15:04")
}

// truncate shortens s to max runes, appending an ellipsis when cut.
func truncate(s string, max int) string {
	runes := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max-1]) + "…"
}

// renderEntry formats one timeline row. Pending sends are marked with "…",
// failed ones with "!" and their temp ID so they can be retried or
// discarded.
func renderEntry(e chatsync.Entry, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s: ", formatWhen(e.CreatedAt, now), e.SenderID)
	if e.FileName != "" {
		fmt.Fprintf(&b, "(file: %s) ", e.FileName)
	}
	b.WriteString(e.Text)
	if e.Edited {
		b.WriteString(" (edited)")
	}
	switch {
	case e.Failed:
		fmt.Fprintf(&b, "  ! failed (#%d — /retry %d or /discard %d)", e.TempID, e.TempID, e.TempID)
	case e.Pending:
		b.WriteString("  …")
	}
	return b.String()
}

// renderTimeline formats the merged timeline, oldest first.
func renderTimeline(entries []chatsync.Entry, now time.Time) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, renderEntry(e, now))
	}
	return strings.Join(lines, "\n")
}

// renderSummary formats one room listing row with its preview.
func renderSummary(s chatservice.ConversationSummary, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s", s.Conversation.ID, s.Conversation.Title)
	if s.LastMessage != nil {
		preview := s.LastMessage.Text
		if preview == "" && s.LastMessage.FileName != "" {
			preview = "(file: " + s.LastMessage.FileName + ")"
		}
		fmt.Fprintf(&b, "\n    %s %s: %s", formatWhen(s.LastMessage.CreatedAt, now), s.LastMessage.SenderID, truncate(preview, previewWidth))
	}
	return b.String()
}
