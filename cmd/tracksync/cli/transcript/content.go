package transcript

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"tracksync.io/cli/cmd/tracksync/cli/paths"
)

// Content is the structured view of a session the matcher and session
// processor work from.
type Content struct {
	// PrimaryRequest is the first user message; AdditionalContext the rest,
	// in transcript order.
	PrimaryRequest    string
	AdditionalContext []string

	// Keywords is the deduplicated bag of lowercase tokens from user text,
	// minus stop words, plus the project name and file base names.
	Keywords []string

	CWD         string
	ProjectName string
	GitBranch   string

	// ToolPatterns is the lowercase set of tool-use names seen.
	ToolPatterns []string

	// FilePaths is the set of file paths referenced by tool inputs.
	FilePaths []string

	SessionID string
	TimeRange TimeRange
}

// TimeRange spans the first to last entry timestamp.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// UserMessages returns the primary request followed by the additional
// context, skipping empties.
func (c *Content) UserMessages() []string {
	var msgs []string
	if c.PrimaryRequest != "" {
		msgs = append(msgs, c.PrimaryRequest)
	}
	msgs = append(msgs, c.AdditionalContext...)
	return msgs
}

// fileInputKeys are the tool-input fields that carry file paths across the
// builtin tool set.
var fileInputKeys = []string{"file_path", "path", "filePath", "file"}

// stopWords are excluded from keyword extraction. Short function words only;
// domain words like "fix" or "test" are signal, not noise.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "have": true, "this": true, "that": true, "with": true,
	"from": true, "they": true, "been": true, "will": true, "would": true,
	"could": true, "should": true, "there": true, "their": true,
	"what": true, "when": true, "where": true, "which": true, "while": true,
	"into": true, "then": true, "than": true, "them": true, "these": true,
	"some": true, "such": true, "also": true, "just": true, "only": true,
	"please": true, "make": true, "need": true, "want": true, "like": true,
	"about": true, "after": true, "before": true, "being": true, "does": true,
	"doing": true, "don't": true, "each": true, "more": true, "most": true,
	"other": true, "over": true, "same": true, "very": true, "your": true,
}

var tokenPattern = regexp.MustCompile(`[a-z0-9][a-z0-9_.-]*`)

// Extract derives Content from filtered transcript entries. fallbackCWD is
// used when no user entry carries a cwd (queue records always have one).
func Extract(entries []Entry, fallbackCWD string) *Content {
	c := &Content{CWD: fallbackCWD}

	keywordSet := make(map[string]bool)
	toolSet := make(map[string]bool)
	fileSet := make(map[string]bool)

	for _, e := range entries {
		if c.SessionID == "" && e.SessionID != "" {
			c.SessionID = e.SessionID
		}
		if !e.Timestamp.IsZero() {
			if c.TimeRange.Start.IsZero() || e.Timestamp.Before(c.TimeRange.Start) {
				c.TimeRange.Start = e.Timestamp
			}
			if e.Timestamp.After(c.TimeRange.End) {
				c.TimeRange.End = e.Timestamp
			}
		}

		switch e.Type {
		case "user":
			if e.CWD != "" {
				c.CWD = e.CWD
			}
			if c.GitBranch == "" && e.GitBranch != "" {
				c.GitBranch = e.GitBranch
			}
			text := UserText(e)
			if text == "" {
				continue
			}
			if c.PrimaryRequest == "" {
				c.PrimaryRequest = text
			} else {
				c.AdditionalContext = append(c.AdditionalContext, text)
			}
			addKeywords(keywordSet, text)

		case "assistant":
			for _, block := range AssistantBlocks(e) {
				if block.Type != "tool_use" || block.Name == "" {
					continue
				}
				toolSet[strings.ToLower(block.Name)] = true
				for _, path := range filePathsFromInput(block.Input) {
					fileSet[path] = true
				}
			}
		}
	}

	c.ProjectName = paths.ProjectName(c.CWD)
	if c.ProjectName != "" {
		keywordSet[strings.ToLower(c.ProjectName)] = true
	}
	for path := range fileSet {
		c.FilePaths = append(c.FilePaths, path)
		base := strings.ToLower(filepath.Base(path))
		if base != "" && base != "." {
			keywordSet[base] = true
		}
	}

	c.Keywords = sortedKeys(keywordSet)
	c.ToolPatterns = sortedKeys(toolSet)
	sort.Strings(c.FilePaths)
	return c
}

// addKeywords tokenizes user text into the keyword set.
func addKeywords(set map[string]bool, text string) {
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(tok) <= 2 || stopWords[tok] {
			continue
		}
		set[tok] = true
	}
}

// filePathsFromInput pulls file paths out of a tool-use input under the
// known file keys.
func filePathsFromInput(input json.RawMessage) []string {
	if len(input) == 0 {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(input, &fields); err != nil {
		return nil
	}
	var out []string
	for _, key := range fileInputKeys {
		if v, ok := fields[key].(string); ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
