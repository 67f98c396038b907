// Package tracker defines the issue-tracker types and the capability
// interface the daemon depends on. The linear subpackage implements the
// interface over Linear's GraphQL API; trackertest provides an in-memory
// implementation for tests.
package tracker

import "context"

// StateType categorizes workflow states as reported by the tracker.
type StateType string

const (
	StateStarted   StateType = "started"
	StateUnstarted StateType = "unstarted"
	StateCompleted StateType = "completed"
	StateCanceled  StateType = "canceled"
	StateBacklog   StateType = "backlog"
)

// WorkflowState is a named phase of an issue.
type WorkflowState struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Type StateType `json:"type"`
}

// Label is a team label.
type Label struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// User is a tracker user.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Team is a tracker team.
type Team struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Issue mirrors the tracker work item.
type Issue struct {
	ID          string        `json:"id"`
	Identifier  string        `json:"identifier"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
	State       WorkflowState `json:"state"`
	Assignee    *User         `json:"assignee,omitempty"`
	Labels      []Label       `json:"labels,omitempty"`
}

// IssueCreate carries the fields for creating an issue. Optional fields are
// left empty when unknown.
type IssueCreate struct {
	Title       string
	Description string
	TeamID      string
	AssigneeID  string
	LabelIDs    []string
	StateID     string
}

// Client is the capability set the daemon needs from a tracker. All calls
// take a context; implementations carry their own request timeouts.
type Client interface {
	// Viewer returns the authenticated user.
	Viewer(ctx context.Context) (*User, error)

	// FindUser looks a user up by email. Returns nil without error when no
	// user matches.
	FindUser(ctx context.Context, email string) (*User, error)

	// Teams lists teams visible to the credential, in tracker order.
	Teams(ctx context.Context) ([]Team, error)

	// TeamLabels lists the labels of a team.
	TeamLabels(ctx context.Context, teamID string) ([]Label, error)

	// TeamStates lists the workflow states of a team.
	TeamStates(ctx context.Context, teamID string) ([]WorkflowState, error)

	// Issue fetches an issue by human identifier (e.g. ENG-123). Returns nil
	// without error when the identifier doesn't resolve.
	Issue(ctx context.Context, identifier string) (*Issue, error)

	// SearchIssues runs a free-text search.
	SearchIssues(ctx context.Context, query string, limit int) ([]Issue, error)

	// RecentIssues lists active issues (started or unstarted states) ordered
	// by last update.
	RecentIssues(ctx context.Context, limit int) ([]Issue, error)

	// CreateIssue creates an issue and returns it.
	CreateIssue(ctx context.Context, in IssueCreate) (*Issue, error)

	// CreateComment posts a Markdown comment on an issue.
	CreateComment(ctx context.Context, issueID, body string) error

	// AttachLink attaches a titled URL to an issue.
	AttachLink(ctx context.Context, issueID, url, title string) error

	// UpdateIssueState moves an issue to a workflow state.
	UpdateIssueState(ctx context.Context, issueID, stateID string) error

	// UpdateIssueAssignee assigns an issue to a user.
	UpdateIssueAssignee(ctx context.Context, issueID, assigneeID string) error

	// UpdateIssueLabels replaces the issue's label set. Callers that want
	// union semantics merge with the existing labels first.
	UpdateIssueLabels(ctx context.Context, issueID string, labelIDs []string) error
}
