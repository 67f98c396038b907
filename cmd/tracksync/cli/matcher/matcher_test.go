package matcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracksync.io/cli/cmd/tracksync/cli/llm"
	"tracksync.io/cli/cmd/tracksync/cli/ratelimit"
	"tracksync.io/cli/cmd/tracksync/cli/tracker"
	"tracksync.io/cli/cmd/tracksync/cli/tracker/trackertest"
	"tracksync.io/cli/cmd/tracksync/cli/transcript"
)

// scriptedLLM returns canned output for semantic ranking.
type scriptedLLM struct {
	output string
	err    error
	calls  int
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.output, s.err
}

func newMatcher(t *testing.T, fake *trackertest.Fake, transport *scriptedLLM, cfg Config) *Matcher {
	t.Helper()
	var tr llm.Transport
	if transport != nil {
		tr = transport
	}
	m, err := New(fake, tr, ratelimit.NewPerMinute(600), cfg)
	require.NoError(t, err)
	return m
}

func sessionContent(primary string, keywords ...string) *transcript.Content {
	return &transcript.Content{
		PrimaryRequest: primary,
		Keywords:       keywords,
		ProjectName:    "web",
		SessionID:      "s1",
	}
}

func TestResolveBranchHit(t *testing.T) {
	fake := trackertest.NewFake()
	fake.Issues = []tracker.Issue{{ID: "i1", Identifier: "ENG-123", Title: "Add login"}}
	llmT := &scriptedLLM{}
	m := newMatcher(t, fake, llmT, Config{EnableSemantic: true})

	res, err := m.Resolve(context.Background(), &transcript.Content{PrimaryRequest: "anything"}, "feature/ENG-123-add-login", 1)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "ENG-123", res.Issue.Identifier)
	assert.Equal(t, MatchExact, res.MatchType)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Empty(t, fake.SearchQueries, "branch hit must not search")
	assert.Zero(t, llmT.calls, "branch hit must not call the LLM")
}

func TestResolveEarlyRejectShortPrimary(t *testing.T) {
	fake := trackertest.NewFake()
	m := newMatcher(t, fake, nil, Config{})

	res, err := m.Resolve(context.Background(), sessionContent("short text"), "main", 10)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Empty(t, fake.SearchQueries)
}

func TestResolveEarlyRejectFewEntries(t *testing.T) {
	fake := trackertest.NewFake()
	m := newMatcher(t, fake, nil, Config{})

	res, err := m.Resolve(context.Background(), sessionContent("a perfectly long primary request"), "main", 1)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestResolveKeywordAccept(t *testing.T) {
	fake := trackertest.NewFake()
	fake.Issues = []tracker.Issue{
		{
			ID: "i1", Identifier: "ENG-7",
			Title:       "Fix login redirect bug on web mobile view",
			Description: "login redirect fails on the web project",
			State:       tracker.WorkflowState{Name: "In Progress", Type: tracker.StateStarted},
		},
		{
			ID: "i2", Identifier: "ENG-8",
			Title: "Unrelated infra chore",
			State: tracker.WorkflowState{Name: "Done", Type: tracker.StateCompleted},
		},
	}
	m := newMatcher(t, fake, nil, Config{ConfidenceThreshold: 0.5})

	content := sessionContent("fix the login redirect bug on mobile", "login", "redirect", "mobile", "bug", "fix")
	res, err := m.Resolve(context.Background(), content, "main", 5)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "ENG-7", res.Issue.Identifier)
	assert.Equal(t, MatchKeyword, res.MatchType)
	assert.Contains(t, res.MatchedKeywords, "login")
	assert.GreaterOrEqual(t, res.Confidence, 0.5)
}

func TestResolveBelowThresholdReturnsNothing(t *testing.T) {
	fake := trackertest.NewFake()
	fake.Issues = []tracker.Issue{{
		ID: "i1", Identifier: "ENG-9", Title: "web tweak",
		State: tracker.WorkflowState{Name: "Done", Type: tracker.StateCompleted},
	}}
	m := newMatcher(t, fake, nil, Config{ConfidenceThreshold: 0.9})

	res, err := m.Resolve(context.Background(), sessionContent("change something in the web app", "web"), "main", 5)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestSemanticTiebreakMath(t *testing.T) {
	// Two candidates at keyword 0.55; semantic 0.9 vs 0.2; weights 0.6/0.4.
	// A = 0.55*0.6 + 0.9*0.4 = 0.69, B = 0.55*0.6 + 0.2*0.4 = 0.41.
	m := &Matcher{cfg: Config{KeywordWeight: 0.6, SemanticWeight: 0.4}.withDefaults()}
	semA, semB := 0.9, 0.2
	scored := []*candidate{
		{
			issue: tracker.Issue{Identifier: "A", State: tracker.WorkflowState{Name: "Triage"}},
			// keywordScore chosen so the +0.1*0.3 state bonus lands on 0.55.
			keywordScore: 0.52, semanticScore: &semA,
		},
		{
			issue:        tracker.Issue{Identifier: "B", State: tracker.WorkflowState{Name: "Triage"}},
			keywordScore: 0.52, semanticScore: &semB,
		},
	}

	best := m.combine(scored)
	require.NotNil(t, best)
	assert.Equal(t, "A", best.Issue.Identifier)
	assert.InDelta(t, 0.69, best.Confidence, 1e-9)
	assert.Equal(t, MatchHybrid, best.MatchType)
}

func TestSemanticFailureDegradesToKeyword(t *testing.T) {
	fake := trackertest.NewFake()
	fake.Issues = []tracker.Issue{{
		ID: "i1", Identifier: "ENG-7",
		Title: "Fix login redirect bug in web project",
		State: tracker.WorkflowState{Name: "In Progress", Type: tracker.StateStarted},
	}}
	llmT := &scriptedLLM{err: errors.New("llm down")}
	m := newMatcher(t, fake, llmT, Config{ConfidenceThreshold: 0.5, EnableSemantic: true})

	content := sessionContent("fix the login redirect bug in web", "login", "redirect", "bug", "fix")
	res, err := m.Resolve(context.Background(), content, "main", 5)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, MatchKeyword, res.MatchType)
	assert.Equal(t, 1, llmT.calls)
}

func TestSemanticScoresApplied(t *testing.T) {
	fake := trackertest.NewFake()
	fake.Issues = []tracker.Issue{
		{ID: "i1", Identifier: "ENG-1", Title: "login redirect work in web",
			State: tracker.WorkflowState{Name: "In Progress", Type: tracker.StateStarted}},
		{ID: "i2", Identifier: "ENG-2", Title: "login redirect cleanup in web",
			State: tracker.WorkflowState{Name: "In Progress", Type: tracker.StateStarted}},
	}
	llmT := &scriptedLLM{output: `{"matches":[
		{"issue_id":"ENG-1","relevance_score":0.95,"reasoning":"same files"},
		{"issue_id":"ENG-2","relevance_score":0.1}
	]}`}
	m := newMatcher(t, fake, llmT, Config{ConfidenceThreshold: 0.6, EnableSemantic: true})

	content := sessionContent("fix the login redirect in the web app", "login", "redirect")
	res, err := m.Resolve(context.Background(), content, "main", 5)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "ENG-1", res.Issue.Identifier)
	require.NotNil(t, res.SemanticScore)
	assert.InDelta(t, 0.95, *res.SemanticScore, 1e-9)
	assert.Equal(t, "same files", res.Reasoning)
}

func TestResolveCachesPerSession(t *testing.T) {
	fake := trackertest.NewFake()
	fake.Issues = []tracker.Issue{{
		ID: "i1", Identifier: "ENG-7",
		Title: "Fix login redirect bug in web",
		State: tracker.WorkflowState{Name: "In Progress", Type: tracker.StateStarted},
	}}
	m := newMatcher(t, fake, nil, Config{ConfidenceThreshold: 0.5})

	content := sessionContent("fix the login redirect bug", "login", "redirect", "bug", "fix")
	first, err := m.Resolve(context.Background(), content, "main", 5)
	require.NoError(t, err)
	require.NotNil(t, first)
	searches := len(fake.SearchQueries)

	second, err := m.Resolve(context.Background(), content, "main", 5)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, searches, len(fake.SearchQueries), "cached resolve must not search again")
}

func TestRecentIssuesFallback(t *testing.T) {
	fake := trackertest.NewFake()
	fake.Issues = []tracker.Issue{{
		ID: "i1", Identifier: "ENG-11",
		Title: "zz-nothing-in-common",
		State: tracker.WorkflowState{Name: "In Progress", Type: tracker.StateStarted},
	}}
	m := newMatcher(t, fake, nil, Config{ConfidenceThreshold: 0.99})

	res, err := m.Resolve(context.Background(), sessionContent("qqqq wwww eeee rrrr tttt"), "main", 5)
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.NotEmpty(t, fake.SearchQueries, "searches ran before the fallback")
}

func TestExtractBranchIdentifier(t *testing.T) {
	m := newMatcher(t, trackertest.NewFake(), nil, Config{})

	assert.Equal(t, "ENG-123", m.ExtractBranchIdentifier("feature/ENG-123-add-login"))
	assert.Equal(t, "ABC-1", m.ExtractBranchIdentifier("ABC-1"))
	assert.Empty(t, m.ExtractBranchIdentifier("main"))
	assert.Empty(t, m.ExtractBranchIdentifier(""))
}

func TestInvalidBranchPattern(t *testing.T) {
	_, err := New(trackertest.NewFake(), nil, ratelimit.NewPerMinute(60), Config{BranchPattern: "(["})
	assert.Error(t, err)
}

func TestKeywordScoreComponents(t *testing.T) {
	content := &transcript.Content{
		PrimaryRequest: "fix login redirect",
		Keywords:       []string{"login", "redirect", "missing"},
		ProjectName:    "web",
	}
	issue := tracker.Issue{
		Title:       "Fix login flow",
		Description: "redirect loop in the web project",
	}

	score, matched := keywordScore(issue, content)
	// login in title: 0.15; redirect in description: 0.05; project: 0.20;
	// overlap fix+login+redirect = 3/3 tokens: 0.30.
	assert.InDelta(t, 0.70, score, 1e-9)
	assert.ElementsMatch(t, []string{"login", "redirect"}, matched)
}

func TestKeywordScoreCapsAtOne(t *testing.T) {
	keywords := make([]string, 0, 12)
	title := ""
	for i := 0; i < 12; i++ {
		kw := fmt.Sprintf("keyword%d", i)
		keywords = append(keywords, kw)
		title += kw + " "
	}
	content := &transcript.Content{PrimaryRequest: title, Keywords: keywords, ProjectName: "web"}
	issue := tracker.Issue{Title: title + " web"}

	score, _ := keywordScore(issue, content)
	assert.Equal(t, 1.0, score)
}

func TestStateBonus(t *testing.T) {
	assert.Equal(t, 1.0, stateBonus(tracker.WorkflowState{Name: "In Progress"}))
	assert.Equal(t, 1.0, stateBonus(tracker.WorkflowState{Name: "Started"}))
	assert.Equal(t, 0.5, stateBonus(tracker.WorkflowState{Name: "Todo"}))
	assert.Equal(t, 0.5, stateBonus(tracker.WorkflowState{Name: "Backlog"}))
	assert.Equal(t, 0.0, stateBonus(tracker.WorkflowState{Name: "Done"}))
	assert.Equal(t, 0.0, stateBonus(tracker.WorkflowState{Name: "Canceled"}))
	assert.Equal(t, 0.3, stateBonus(tracker.WorkflowState{Name: "Triage"}))
}

func TestBuildQueriesTruncatesPrimaryOnRunes(t *testing.T) {
	content := &transcript.Content{PrimaryRequest: strings.Repeat("é", 150)}
	queries := buildQueries(content)

	require.Len(t, queries, 1)
	assert.Equal(t, 100, utf8.RuneCountInString(queries[0]))
	assert.True(t, utf8.ValidString(queries[0]))
}

func TestSemanticPromptMultibyteDescription(t *testing.T) {
	scored := []*candidate{{issue: tracker.Issue{
		Identifier:  "ENG-1",
		Title:       "Add accent handling",
		Description: strings.Repeat("ü", 300),
	}}}
	prompt := buildSemanticPrompt(&transcript.Content{PrimaryRequest: "add accents"}, scored)

	assert.Contains(t, prompt, strings.Repeat("ü", 200)+"...")
	assert.True(t, utf8.ValidString(prompt))
}
