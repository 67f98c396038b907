package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"

	"tracksync.io/cli/cmd/tracksync/cli/logging"
	"tracksync.io/cli/cmd/tracksync/cli/queue"
	"tracksync.io/cli/cmd/tracksync/cli/tracker"
)

// prLinkTitle names the attachment created for a pull request.
const prLinkTitle = "Pull Request"

// handlePRCreated attaches a pull-request URL to the session's issue and
// advances it to review. Only branch extraction is available here; there is
// no transcript to match against.
func (p *Processor) handlePRCreated(ctx context.Context, rec queue.Record) error {
	if rec.PRURL == "" {
		return fmt.Errorf("pr_created record has no pr_url")
	}

	branch := currentBranch(rec.CWD)
	var issue *tracker.Issue
	if id := p.matcher.ExtractBranchIdentifier(branch); id != "" {
		found, err := p.client.Issue(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to look up issue %s: %w", id, err)
		}
		issue = found
	}

	if issue == nil {
		if p.team == nil {
			logging.Warn(ctx, "no issue resolved and no team cached, dropping PR link", "pr_url", rec.PRURL)
			return nil
		}
		created, err := p.client.CreateIssue(ctx, tracker.IssueCreate{
			Title:       "PR created: " + lastURLSegment(rec.PRURL),
			Description: rec.PRURL,
			TeamID:      p.team.ID,
		})
		if err != nil {
			return fmt.Errorf("failed to create placeholder issue: %w", err)
		}
		issue = created
		logging.Info(ctx, "created placeholder issue for PR", "identifier", issue.Identifier)
	}

	if err := p.client.AttachLink(ctx, issue.ID, rec.PRURL, prLinkTitle); err != nil {
		return fmt.Errorf("failed to attach PR link to %s: %w", issue.Identifier, err)
	}

	if state := p.findState("in review", "review"); state != nil {
		if err := p.client.UpdateIssueState(ctx, issue.ID, state.ID); err != nil {
			logging.Warn(ctx, "failed to move issue to review", "identifier", issue.Identifier, "error", err)
		}
	} else {
		logging.Info(ctx, "no review state found, leaving issue state unchanged", "identifier", issue.Identifier)
	}

	logging.Info(ctx, "attached PR to issue", "identifier", issue.Identifier, "pr_url", rec.PRURL)
	return nil
}

// currentBranch reads the checked-out branch of the repository at cwd.
// Returns "" for detached HEAD, non-repositories, or any read failure.
func currentBranch(cwd string) string {
	if cwd == "" {
		return ""
	}
	repo, err := git.PlainOpenWithOptions(cwd, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil || !head.Name().IsBranch() {
		return ""
	}
	return head.Name().Short()
}

// lastURLSegment returns the final path segment of a URL, e.g. the PR
// number.
func lastURLSegment(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
