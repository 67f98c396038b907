package processor

import "regexp"

// labelRule adds labels when its pattern matches the working directory or
// the concatenated user messages.
type labelRule struct {
	pattern *regexp.Regexp
	labels  []string
}

// labelRules is ordered; every matching rule contributes. Patterns are
// intentionally loose: labels are a hint, not a classification.
var labelRules = []labelRule{
	{regexp.MustCompile(`(?i)frontend|web|react|vue|next`), []string{"Frontend"}},
	{regexp.MustCompile(`(?i)backend|api|server|node`), []string{"Backend"}},
	{regexp.MustCompile(`(?i)mobile|ios|android|react-native`), []string{"Mobile"}},
	{regexp.MustCompile(`(?i)infra|devops|terraform|k8s|kubernetes`), []string{"Infrastructure"}},
	{regexp.MustCompile(`(?i)test|spec|e2e`), []string{"Testing"}},
	{regexp.MustCompile(`(?i)doc|readme|wiki`), []string{"Documentation"}},
	{regexp.MustCompile(`(?i)design|figma|ui|ux`), []string{"Design"}},
	{regexp.MustCompile(`(?i)bug|fix|hotfix`), []string{"Bug"}},
	{regexp.MustCompile(`(?i)feature|feat`), []string{"Feature"}},
	{regexp.MustCompile(`(?i)refactor|cleanup`), []string{"Refactor"}},
}

// deriveLabels returns label names suggested by the working directory and
// user text, deduplicated, in rule order.
func deriveLabels(cwd, userText string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rule := range labelRules {
		if !rule.pattern.MatchString(cwd) && !rule.pattern.MatchString(userText) {
			continue
		}
		for _, name := range rule.labels {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}
