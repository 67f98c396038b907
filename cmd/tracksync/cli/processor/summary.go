package processor

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"tracksync.io/cli/cmd/tracksync/cli/logging"
	"tracksync.io/cli/cmd/tracksync/cli/transcript"
)

// summaryMsgMax caps how many user messages feed the summary prompt.
const summaryMsgMax = 10

// summarize produces a short natural-language summary of the session.
// Sessions with two or fewer user messages skip the LLM; any transport
// failure falls back to joining the first five messages.
func (p *Processor) summarize(ctx context.Context, content *transcript.Content) string {
	messages := content.UserMessages()
	if len(messages) <= 2 || p.transport == nil {
		return fallbackSummary(messages)
	}

	text, err := p.transport.Complete(ctx, buildSummaryPrompt(content, messages))
	if err != nil || strings.TrimSpace(text) == "" {
		logging.Warn(ctx, "summary generation failed, using fallback", "error", err)
		return fallbackSummary(messages)
	}
	return strings.TrimSpace(text)
}

// fallbackSummary joins up to the first five user messages.
func fallbackSummary(messages []string) string {
	if len(messages) > 5 {
		messages = messages[:5]
	}
	return strings.Join(messages, "\n")
}

func buildSummaryPrompt(content *transcript.Content, messages []string) string {
	if len(messages) > summaryMsgMax {
		messages = messages[:summaryMsgMax]
	}
	var b strings.Builder
	b.WriteString("Summarize in 2-4 sentences what this coding session accomplished, based on the user's requests below.")
	if content.ProjectName != "" {
		fmt.Fprintf(&b, " The project is %q.", content.ProjectName)
	}
	b.WriteString(" Write plain prose, no headings or lists.\n\nUser requests:\n")
	for _, msg := range messages {
		fmt.Fprintf(&b, "- %s\n", truncateText(msg, descriptionMsgLen))
	}
	return b.String()
}

// buildTitle forms the issue title: bracketed project prefix (when known)
// plus the normalized first user message, truncated to 60 characters.
func buildTitle(projectName, primaryRequest string) string {
	normalized := normalizeWhitespace(primaryRequest)
	truncated := truncateText(normalized, titleMaxLen)
	if projectName == "" {
		return truncated
	}
	return fmt.Sprintf("[%s] %s", projectName, truncated)
}

// buildDescription forms the body of an auto-created issue.
func buildDescription(messages []string) string {
	var b strings.Builder
	b.WriteString("This issue was auto-created from a coding-assistant session.\n\n### User Requests\n")
	if len(messages) > descriptionMsgMax {
		messages = messages[:descriptionMsgMax]
	}
	for _, msg := range messages {
		fmt.Fprintf(&b, "- %s\n", truncateText(normalizeWhitespace(msg), descriptionMsgLen))
	}
	return b.String()
}

// formatComment lays out the session comment. The layout is stable so that
// readers (and any later tooling) can rely on the section structure.
func formatComment(summary string, messages []string) string {
	var b strings.Builder
	b.WriteString("## Claude Code Session Summary\n\n")
	b.WriteString(summary)
	b.WriteString("\n\n---\n\n### User Requests\n")
	if len(messages) > commentMsgMax {
		messages = messages[:commentMsgMax]
	}
	for _, msg := range messages {
		fmt.Fprintf(&b, "- %s\n", truncateText(normalizeWhitespace(msg), commentMsgLen))
	}
	return b.String()
}

// normalizeWhitespace collapses runs of whitespace (including newlines) to
// single spaces and trims.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateText cuts s to max characters, appending "..." when truncated.
// Counting and cutting happen on runes so multibyte text stays valid UTF-8.
func truncateText(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
