// Package matcher resolves a coding session to an existing tracker issue.
// Resolution combines three signals: an identifier extracted from the git
// branch, keyword search against the tracker, and LLM-scored semantic
// ranking of the candidate set.
package matcher

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"tracksync.io/cli/cmd/tracksync/cli/llm"
	"tracksync.io/cli/cmd/tracksync/cli/logging"
	"tracksync.io/cli/cmd/tracksync/cli/ratelimit"
	"tracksync.io/cli/cmd/tracksync/cli/tracker"
	"tracksync.io/cli/cmd/tracksync/cli/transcript"
)

// MatchType names the signal that produced a match.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchKeyword  MatchType = "keyword"
	MatchSemantic MatchType = "semantic"
	MatchHybrid   MatchType = "hybrid"
)

// Result is a confident resolution. A nil Result means no issue cleared the
// threshold.
type Result struct {
	Issue      *tracker.Issue
	Confidence float64
	MatchType  MatchType

	KeywordScore    float64
	SemanticScore   *float64
	MatchedKeywords []string
	Reasoning       string
}

// Config tunes resolution. Zero values fall back to the defaults below.
type Config struct {
	BranchPattern       string
	KeywordWeight       float64
	SemanticWeight      float64
	ConfidenceThreshold float64
	MaxCandidates       int
	EnableSemantic      bool
}

const (
	DefaultBranchPattern       = `([A-Z]+-\d+)`
	DefaultKeywordWeight       = 0.6
	DefaultSemanticWeight      = 0.4
	DefaultConfidenceThreshold = 0.7
	DefaultMaxCandidates       = 10
)

// minPrimaryLen and minEntries gate content-based matching: anything shorter
// carries too little signal to search on.
const (
	minPrimaryLen = 20
	minEntries    = 2
)

// semanticKeepThreshold drops low-relevance semantic entries.
const semanticKeepThreshold = 0.3

func (c Config) withDefaults() Config {
	if c.BranchPattern == "" {
		c.BranchPattern = DefaultBranchPattern
	}
	if c.KeywordWeight == 0 {
		c.KeywordWeight = DefaultKeywordWeight
	}
	if c.SemanticWeight == 0 {
		c.SemanticWeight = DefaultSemanticWeight
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.MaxCandidates == 0 {
		c.MaxCandidates = DefaultMaxCandidates
	}
	return c
}

// Matcher holds the collaborators and the per-session result cache.
type Matcher struct {
	client  tracker.Client
	llm     llm.Transport
	limiter *ratelimit.Limiter
	cfg     Config
	branch  *regexp.Regexp

	mu    sync.Mutex
	cache map[string]*Result
}

// New compiles the branch pattern and returns a matcher. The limiter gates
// every tracker and LLM call the matcher makes.
func New(client tracker.Client, transport llm.Transport, limiter *ratelimit.Limiter, cfg Config) (*Matcher, error) {
	cfg = cfg.withDefaults()
	re, err := regexp.Compile(cfg.BranchPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid branch pattern %q: %w", cfg.BranchPattern, err)
	}
	return &Matcher{
		client:  client,
		llm:     transport,
		limiter: limiter,
		cfg:     cfg,
		branch:  re,
		cache:   make(map[string]*Result),
	}, nil
}

// ExtractBranchIdentifier returns the issue identifier captured from a
// branch name, or "" when the branch doesn't match.
func (m *Matcher) ExtractBranchIdentifier(gitBranch string) string {
	if gitBranch == "" {
		return ""
	}
	groups := m.branch.FindStringSubmatch(gitBranch)
	if len(groups) < 2 {
		return ""
	}
	return groups[1]
}

// Resolve returns the issue this session belongs to, or nil when no
// candidate clears the confidence threshold. Results are cached per session
// id for the life of the process; entryCount is the number of transcript
// entries the session accumulated.
func (m *Matcher) Resolve(ctx context.Context, content *transcript.Content, gitBranch string, entryCount int) (*Result, error) {
	if content != nil && content.SessionID != "" {
		m.mu.Lock()
		cached, ok := m.cache[content.SessionID]
		m.mu.Unlock()
		if ok {
			return cached, nil
		}
	}

	result, err := m.resolve(ctx, content, gitBranch, entryCount)
	if err != nil {
		return nil, err
	}
	if content != nil && content.SessionID != "" {
		m.mu.Lock()
		m.cache[content.SessionID] = result
		m.mu.Unlock()
	}
	return result, nil
}

func (m *Matcher) resolve(ctx context.Context, content *transcript.Content, gitBranch string, entryCount int) (*Result, error) {
	if id := m.ExtractBranchIdentifier(gitBranch); id != "" {
		issue, err := m.client.Issue(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to look up branch issue %s: %w", id, err)
		}
		if issue != nil {
			logging.Debug(ctx, "matched issue from branch", "identifier", id, "branch", gitBranch)
			return &Result{Issue: issue, Confidence: 1.0, MatchType: MatchExact}, nil
		}
		logging.Debug(ctx, "branch identifier did not resolve", "identifier", id)
	}

	if content == nil || len(content.PrimaryRequest) < minPrimaryLen || entryCount < minEntries {
		return nil, nil
	}

	if err := m.limiter.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	logging.Debug(ctx, "search budget acquired", "tokens_left", m.limiter.Available())
	candidates := m.searchCandidates(ctx, content)
	if len(candidates) == 0 {
		return nil, nil
	}

	scored := make([]*candidate, 0, len(candidates))
	for _, iss := range candidates {
		kw, matched := keywordScore(iss, content)
		scored = append(scored, &candidate{issue: iss, keywordScore: kw, matchedKeywords: matched})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].keywordScore > scored[j].keywordScore
	})
	if len(scored) > m.cfg.MaxCandidates {
		scored = scored[:m.cfg.MaxCandidates]
	}

	if m.cfg.EnableSemantic && m.llm != nil {
		if err := m.limiter.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
		if err := m.rankSemantic(ctx, content, scored); err != nil {
			// Semantic failure degrades to keyword-only scoring.
			logging.Warn(ctx, "semantic ranking failed, using keyword scores only", "error", err)
		}
	}

	best := m.combine(scored)
	if best == nil || best.Confidence < m.cfg.ConfidenceThreshold {
		return nil, nil
	}
	logging.Info(ctx, "matched issue",
		"identifier", best.Issue.Identifier,
		"confidence", best.Confidence,
		"match_type", string(best.MatchType))
	return best, nil
}

// searchCandidates merges up to three concurrent keyword searches, falling
// back to recent active issues when every query comes back empty. Search
// errors are logged and treated as empty results.
func (m *Matcher) searchCandidates(ctx context.Context, content *transcript.Content) []tracker.Issue {
	queries := buildQueries(content)

	results := make([][]tracker.Issue, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			issues, err := m.client.SearchIssues(ctx, q, m.cfg.MaxCandidates)
			if err != nil {
				logging.Warn(ctx, "issue search failed", "query", q, "error", err)
				return
			}
			results[i] = issues
		}(i, q)
	}
	wg.Wait()

	merged := make(map[string]tracker.Issue)
	var order []string
	for _, batch := range results {
		for _, iss := range batch {
			if _, seen := merged[iss.Identifier]; !seen {
				merged[iss.Identifier] = iss
				order = append(order, iss.Identifier)
			}
		}
	}
	if len(order) == 0 {
		recent, err := m.client.RecentIssues(ctx, m.cfg.MaxCandidates)
		if err != nil {
			logging.Warn(ctx, "recent-issues fallback failed", "error", err)
			return nil
		}
		return recent
	}

	out := make([]tracker.Issue, 0, len(order))
	for _, id := range order {
		out = append(out, merged[id])
	}
	return out
}

// buildQueries forms the three search queries: project plus top keywords,
// the truncated primary request, and the project name alone.
func buildQueries(content *transcript.Content) []string {
	var queries []string

	var parts []string
	if content.ProjectName != "" {
		parts = append(parts, content.ProjectName)
	}
	for _, kw := range content.Keywords {
		if len(parts) >= 6 {
			break
		}
		if kw == strings.ToLower(content.ProjectName) {
			continue
		}
		parts = append(parts, kw)
	}
	if len(parts) > 0 {
		queries = append(queries, strings.Join(parts, " "))
	}

	primary := content.PrimaryRequest
	if utf8.RuneCountInString(primary) > 100 {
		primary = string([]rune(primary)[:100])
	}
	if primary != "" {
		queries = append(queries, primary)
	}

	if content.ProjectName != "" {
		queries = append(queries, content.ProjectName)
	}
	return queries
}

type candidate struct {
	issue           tracker.Issue
	keywordScore    float64
	matchedKeywords []string
	semanticScore   *float64
	reasoning       string
}

// combine applies the state bonus and the weighted keyword/semantic blend,
// returning the best candidate.
func (m *Matcher) combine(scored []*candidate) *Result {
	var best *Result
	for _, c := range scored {
		adjusted := c.keywordScore + 0.1*stateBonus(c.issue.State)
		if adjusted > 1.0 {
			adjusted = 1.0
		}

		var confidence float64
		var matchType MatchType
		if c.semanticScore != nil {
			total := m.cfg.KeywordWeight + m.cfg.SemanticWeight
			confidence = adjusted*m.cfg.KeywordWeight/total + *c.semanticScore*m.cfg.SemanticWeight/total
			if c.keywordScore > 0.3 {
				matchType = MatchHybrid
			} else {
				matchType = MatchSemantic
			}
		} else {
			confidence = adjusted
			matchType = MatchKeyword
		}

		if best == nil || confidence > best.Confidence {
			iss := c.issue
			best = &Result{
				Issue:           &iss,
				Confidence:      confidence,
				MatchType:       matchType,
				KeywordScore:    c.keywordScore,
				SemanticScore:   c.semanticScore,
				MatchedKeywords: c.matchedKeywords,
				Reasoning:       c.reasoning,
			}
		}
	}
	return best
}

// stateBonus weights candidates by workflow state: in-flight work is the
// most likely target of a session, finished work the least.
func stateBonus(state tracker.WorkflowState) float64 {
	name := strings.ToLower(state.Name)
	switch {
	case strings.Contains(name, "progress"), strings.Contains(name, "started"):
		return 1.0
	case strings.Contains(name, "todo"), strings.Contains(name, "backlog"), strings.Contains(name, "unstarted"):
		return 0.5
	case strings.Contains(name, "done"), strings.Contains(name, "complete"), strings.Contains(name, "cancel"):
		return 0.0
	default:
		return 0.3
	}
}
