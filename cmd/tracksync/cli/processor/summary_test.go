package processor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"tracksync.io/cli/cmd/tracksync/cli/tracker"
	"tracksync.io/cli/cmd/tracksync/cli/transcript"
)

func TestBuildTitle(t *testing.T) {
	assert.Equal(t, "[web] fix the login bug", buildTitle("web", "fix the login bug"))
	assert.Equal(t, "fix the login bug", buildTitle("", "fix the login bug"))
}

func TestBuildTitleNormalizesWhitespace(t *testing.T) {
	assert.Equal(t, "[web] fix the bug", buildTitle("web", "fix\n\n  the\tbug"))
}

func TestBuildTitleTruncates(t *testing.T) {
	long := strings.Repeat("a", 80)
	got := buildTitle("web", long)
	assert.Equal(t, "[web] "+strings.Repeat("a", 60)+"...", got)
}

func TestBuildDescription(t *testing.T) {
	msgs := []string{"first request", "second request", "third request", "fourth request"}
	desc := buildDescription(msgs)

	assert.True(t, strings.HasPrefix(desc, "This issue was auto-created from a coding-assistant session."))
	assert.Contains(t, desc, "### User Requests")
	assert.Contains(t, desc, "- first request")
	assert.Contains(t, desc, "- third request")
	assert.NotContains(t, desc, "fourth request", "description lists at most three messages")
}

func TestBuildDescriptionTruncatesMessages(t *testing.T) {
	long := strings.Repeat("x", 400)
	desc := buildDescription([]string{long})
	assert.Contains(t, desc, strings.Repeat("x", 300)+"...")
	assert.NotContains(t, desc, strings.Repeat("x", 301))
}

func TestFormatComment(t *testing.T) {
	msgs := []string{"one", "two", "three", "four", "five", "six"}
	c := formatComment("the summary", msgs)

	assert.True(t, strings.HasPrefix(c, "## Claude Code Session Summary\n\nthe summary\n\n---\n\n### User Requests\n"))
	assert.Contains(t, c, "- five")
	assert.NotContains(t, c, "- six", "comment lists at most five messages")
}

func TestFormatCommentTruncatesMessages(t *testing.T) {
	long := strings.Repeat("y", 250)
	c := formatComment("s", []string{long})
	assert.Contains(t, c, strings.Repeat("y", 200)+"...")
}

func TestTruncateTextRuneBoundaries(t *testing.T) {
	assert.Equal(t, "héllo", truncateText("héllo", 5))

	got := truncateText(strings.Repeat("日", 30), 10)
	assert.Equal(t, strings.Repeat("日", 10)+"...", got)
	assert.True(t, utf8.ValidString(got))
}

func TestBuildTitleMultibyteStaysValid(t *testing.T) {
	title := buildTitle("web", strings.Repeat("a", 59)+"é and more")
	assert.Equal(t, "[web] "+strings.Repeat("a", 59)+"é...", title)
	assert.True(t, utf8.ValidString(title))
}

func TestFormatCommentMultibyteStaysValid(t *testing.T) {
	c := formatComment("s", []string{strings.Repeat("ü", 250)})
	assert.Contains(t, c, strings.Repeat("ü", 200)+"...")
	assert.True(t, utf8.ValidString(c))
}

func TestSummarizeShortSessionSkipsLLM(t *testing.T) {
	llmT := &scriptedLLM{output: "llm summary"}
	p := &Processor{transport: llmT}
	content := &transcript.Content{PrimaryRequest: "first", AdditionalContext: []string{"second"}}

	got := p.summarize(context.Background(), content)
	assert.Equal(t, "first\nsecond", got)
	assert.Zero(t, llmT.calls)
}

func TestSummarizeUsesLLM(t *testing.T) {
	llmT := &scriptedLLM{output: "Worked on login."}
	p := &Processor{transport: llmT}
	content := &transcript.Content{PrimaryRequest: "a", AdditionalContext: []string{"b", "c"}}

	got := p.summarize(context.Background(), content)
	assert.Equal(t, "Worked on login.", got)
	assert.Equal(t, 1, llmT.calls)
}

func TestSummarizeFallbackOnError(t *testing.T) {
	llmT := &scriptedLLM{err: errors.New("down")}
	p := &Processor{transport: llmT}
	content := &transcript.Content{
		PrimaryRequest:    "m1",
		AdditionalContext: []string{"m2", "m3", "m4", "m5", "m6", "m7"},
	}

	got := p.summarize(context.Background(), content)
	assert.Equal(t, "m1\nm2\nm3\nm4\nm5", got, "fallback joins the first five messages")
}

func TestDeriveLabels(t *testing.T) {
	labels := deriveLabels("/home/u/proj/mobile-app", "fix login crash")
	assert.Equal(t, []string{"Mobile", "Bug"}, labels)
}

func TestDeriveLabelsFromUserText(t *testing.T) {
	labels := deriveLabels("/home/u/proj/x", "refactor the react components and add e2e tests")
	assert.Contains(t, labels, "Frontend")
	assert.Contains(t, labels, "Testing")
	assert.Contains(t, labels, "Refactor")
}

func TestDeriveLabelsNoMatch(t *testing.T) {
	assert.Empty(t, deriveLabels("/home/u/x", "hello there"))
}

func TestLabelIDsUnknownNamesDropped(t *testing.T) {
	p := &Processor{labels: []tracker.Label{{ID: "l1", Name: "Bug"}}}
	assert.Equal(t, []string{"l1"}, p.labelIDs([]string{"bug", "Nonexistent"}))
}

func TestUnionLabelIDs(t *testing.T) {
	existing := []tracker.Label{{ID: "a"}, {ID: "b"}}
	got := unionLabelIDs(existing, []string{"b", "c"})
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestLastURLSegment(t *testing.T) {
	assert.Equal(t, "7", lastURLSegment("https://github.com/acme/w/pull/7"))
	assert.Equal(t, "7", lastURLSegment("https://github.com/acme/w/pull/7/"))
	assert.Equal(t, "plain", lastURLSegment("plain"))
}
