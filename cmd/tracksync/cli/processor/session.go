package processor

import (
	"context"
	"fmt"
	"strings"

	"tracksync.io/cli/cmd/tracksync/cli/logging"
	"tracksync.io/cli/cmd/tracksync/cli/queue"
	"tracksync.io/cli/cmd/tracksync/cli/redact"
	"tracksync.io/cli/cmd/tracksync/cli/tracker"
	"tracksync.io/cli/cmd/tracksync/cli/transcript"
)

const (
	titleMaxLen       = 60
	descriptionMsgLen = 300
	descriptionMsgMax = 3
	commentMsgLen     = 200
	commentMsgMax     = 5
)

// handleSessionStop mirrors one finished session into the tracker: resolve
// or create the issue, enforce assignee/state/labels, then post a summary
// comment. Returns the match type for telemetry.
func (p *Processor) handleSessionStop(ctx context.Context, rec queue.Record) (string, error) {
	if transcript.IsSubagentPath(rec.TranscriptPath) {
		logging.Info(ctx, "skipping subagent transcript", "path", rec.TranscriptPath)
		return "", nil
	}

	entries, err := transcript.ParseFile(rec.TranscriptPath)
	if err != nil {
		return "", fmt.Errorf("failed to read transcript: %w", err)
	}
	filtered := transcript.FilterNoise(entries)
	if len(filtered) == 0 {
		logging.Info(ctx, "transcript has no substantive entries, nothing to sync")
		return "", nil
	}

	content := transcript.Extract(filtered, rec.CWD)

	result, err := p.matcher.Resolve(ctx, content, content.GitBranch, len(filtered))
	if err != nil {
		return "", fmt.Errorf("issue resolution failed: %w", err)
	}

	var issue *tracker.Issue
	matchType := "created"
	if result != nil {
		issue = result.Issue
		matchType = string(result.MatchType)
		logging.Info(ctx, "resolved existing issue",
			"identifier", issue.Identifier,
			"match_type", matchType,
			"confidence", result.Confidence)
	} else {
		issue, err = p.createSessionIssue(ctx, content)
		if err != nil {
			return matchType, err
		}
		logging.Info(ctx, "created issue for session", "identifier", issue.Identifier)
	}

	p.enforceIssueSetup(ctx, issue, content)

	summary := redact.Scrub(p.summarize(ctx, content))
	comment := formatComment(summary, redact.ScrubAll(content.UserMessages()))
	if err := p.client.CreateComment(ctx, issue.ID, comment); err != nil {
		return matchType, fmt.Errorf("failed to post comment to %s: %w", issue.Identifier, err)
	}
	return matchType, nil
}

// createSessionIssue creates a fresh issue from session content. Requires
// the cached team.
func (p *Processor) createSessionIssue(ctx context.Context, content *transcript.Content) (*tracker.Issue, error) {
	if p.team == nil {
		return nil, fmt.Errorf("no team cached, cannot create issue")
	}

	in := tracker.IssueCreate{
		Title:       redact.Scrub(buildTitle(content.ProjectName, content.PrimaryRequest)),
		Description: buildDescription(redact.ScrubAll(content.UserMessages())),
		TeamID:      p.team.ID,
	}
	if p.assignee != nil {
		in.AssigneeID = p.assignee.ID
	}
	in.LabelIDs = p.labelIDs(deriveLabels(content.CWD, strings.Join(content.UserMessages(), " ")))
	if state := p.progressState(); state != nil {
		in.StateID = state.ID
	}

	issue, err := p.client.CreateIssue(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}
	return issue, nil
}

// enforceIssueSetup puts the resolved issue into the desired shape: default
// assignee, in-progress state, derived labels merged with existing ones.
// Each step is best effort; the comment is the contract.
func (p *Processor) enforceIssueSetup(ctx context.Context, issue *tracker.Issue, content *transcript.Content) {
	if p.assignee != nil {
		if err := p.client.UpdateIssueAssignee(ctx, issue.ID, p.assignee.ID); err != nil {
			logging.Warn(ctx, "failed to assign issue", "identifier", issue.Identifier, "error", err)
		}
	}

	if state := p.progressState(); state != nil && issue.State.ID != state.ID {
		if err := p.client.UpdateIssueState(ctx, issue.ID, state.ID); err != nil {
			logging.Warn(ctx, "failed to set issue state", "identifier", issue.Identifier, "error", err)
		}
	}

	derived := p.labelIDs(deriveLabels(content.CWD, strings.Join(content.UserMessages(), " ")))
	merged := unionLabelIDs(issue.Labels, derived)
	if len(merged) > len(issue.Labels) {
		if err := p.client.UpdateIssueLabels(ctx, issue.ID, merged); err != nil {
			logging.Warn(ctx, "failed to set issue labels", "identifier", issue.Identifier, "error", err)
		}
	}
}

// progressState returns the workflow state whose name contains "in
// progress", falling back to one containing "started".
func (p *Processor) progressState() *tracker.WorkflowState {
	return p.findState("in progress", "started")
}

// findState returns the first cached state whose lowercase name contains
// any of the given substrings, tried in order.
func (p *Processor) findState(substrings ...string) *tracker.WorkflowState {
	for _, want := range substrings {
		for i := range p.states {
			if strings.Contains(strings.ToLower(p.states[i].Name), want) {
				return &p.states[i]
			}
		}
	}
	return nil
}

// labelIDs maps derived label names onto cached label ids by
// case-insensitive name equality. Unknown names are dropped.
func (p *Processor) labelIDs(names []string) []string {
	var ids []string
	for _, name := range names {
		for i := range p.labels {
			if strings.EqualFold(p.labels[i].Name, name) {
				ids = append(ids, p.labels[i].ID)
				break
			}
		}
	}
	return ids
}

// unionLabelIDs merges existing issue labels with derived ids, preserving
// existing order and never removing anything.
func unionLabelIDs(existing []tracker.Label, derived []string) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, len(existing)+len(derived))
	for _, l := range existing {
		seen[l.ID] = true
		out = append(out, l.ID)
	}
	for _, id := range derived {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
