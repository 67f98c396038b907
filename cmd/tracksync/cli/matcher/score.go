package matcher

import (
	"regexp"
	"strings"

	"tracksync.io/cli/cmd/tracksync/cli/tracker"
	"tracksync.io/cli/cmd/tracksync/cli/transcript"
)

var wordPattern = regexp.MustCompile(`[a-z0-9][a-z0-9_.-]*`)

// keywordScore rates how well an issue's text matches the session content.
// Keyword hits in the title weigh three times a hit in the description; the
// project name and primary-request token overlap add on top. Capped at 1.0.
func keywordScore(issue tracker.Issue, content *transcript.Content) (float64, []string) {
	title := strings.ToLower(issue.Title)
	body := title + " " + strings.ToLower(issue.Description)

	var score float64
	var matched []string
	for _, kw := range content.Keywords {
		if !strings.Contains(body, kw) {
			continue
		}
		matched = append(matched, kw)
		if strings.Contains(title, kw) {
			score += 0.15
		} else {
			score += 0.05
		}
	}

	project := strings.ToLower(content.ProjectName)
	if project != "" && strings.Contains(body, project) {
		score += 0.20
	}

	primaryTokens := significantTokens(content.PrimaryRequest)
	if len(primaryTokens) > 0 {
		issueWords := make(map[string]bool)
		for _, w := range wordPattern.FindAllString(body, -1) {
			issueWords[w] = true
		}
		overlap := 0
		for _, tok := range primaryTokens {
			if issueWords[tok] {
				overlap++
			}
		}
		score += 0.30 * float64(overlap) / float64(len(primaryTokens))
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, matched
}

// significantTokens returns lowercase tokens of length > 2.
func significantTokens(text string) []string {
	var out []string
	for _, tok := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(tok) > 2 {
			out = append(out, tok)
		}
	}
	return out
}
