package matcher

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"tracksync.io/cli/cmd/tracksync/cli/llm"
	"tracksync.io/cli/cmd/tracksync/cli/transcript"
)

// descriptionPreviewLen bounds how much issue description goes into the
// ranking prompt.
const descriptionPreviewLen = 200

// rankSemantic asks the LLM to score the candidates against the session and
// attaches the scores in place. Entries below semanticKeepThreshold are
// dropped.
func (m *Matcher) rankSemantic(ctx context.Context, content *transcript.Content, scored []*candidate) error {
	if len(scored) == 0 {
		return nil
	}
	resp, err := llm.MatchIssues(ctx, m.llm, buildSemanticPrompt(content, scored))
	if err != nil {
		return err
	}

	byID := make(map[string]*candidate, len(scored))
	for _, c := range scored {
		byID[c.issue.Identifier] = c
		byID[c.issue.ID] = c
	}
	for _, match := range resp.Matches {
		if match.RelevanceScore < semanticKeepThreshold {
			continue
		}
		c, ok := byID[match.IssueID]
		if !ok {
			continue
		}
		score := match.RelevanceScore
		c.semanticScore = &score
		c.reasoning = match.Reasoning
	}
	return nil
}

// buildSemanticPrompt lays out the session and the candidates and asks for a
// strict-JSON response the llm package can extract.
func buildSemanticPrompt(content *transcript.Content, scored []*candidate) string {
	var b strings.Builder
	b.WriteString("You are matching a coding session to an existing issue in a tracker.\n\n")
	b.WriteString("Session:\n")
	fmt.Fprintf(&b, "- Request: %s\n", content.PrimaryRequest)
	if content.ProjectName != "" {
		fmt.Fprintf(&b, "- Project: %s\n", content.ProjectName)
	}
	if content.CWD != "" {
		fmt.Fprintf(&b, "- Directory: %s\n", content.CWD)
	}
	if len(content.FilePaths) > 0 {
		fmt.Fprintf(&b, "- Files touched: %s\n", strings.Join(content.FilePaths, ", "))
	}
	if len(content.Keywords) > 0 {
		fmt.Fprintf(&b, "- Keywords: %s\n", strings.Join(content.Keywords, ", "))
	}

	b.WriteString("\nCandidate issues:\n")
	for _, c := range scored {
		desc := c.issue.Description
		if utf8.RuneCountInString(desc) > descriptionPreviewLen {
			desc = string([]rune(desc)[:descriptionPreviewLen]) + "..."
		}
		fmt.Fprintf(&b, "- %s: %s", c.issue.Identifier, c.issue.Title)
		if c.issue.State.Name != "" {
			fmt.Fprintf(&b, " [%s]", c.issue.State.Name)
		}
		if desc != "" {
			fmt.Fprintf(&b, ": %s", desc)
		}
		b.WriteString("\n")
	}

	b.WriteString(`
Score each candidate's relevance to the session from 0.0 to 1.0.
Respond with ONLY a JSON object in this exact shape:
{"matches": [{"issue_id": "<identifier>", "relevance_score": 0.0, "reasoning": "<one sentence>", "matched_aspects": ["..."]}]}
`)
	return b.String()
}
