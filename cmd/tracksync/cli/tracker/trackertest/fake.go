// Package trackertest provides an in-memory tracker.Client for tests.
package trackertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tracksync.io/cli/cmd/tracksync/cli/tracker"
)

// Fake is an in-memory tracker.Client. Populate the exported fields before
// use; mutation methods record what the code under test did. Safe for
// concurrent use.
type Fake struct {
	mu sync.Mutex

	ViewerUser tracker.User
	Users      []tracker.User
	TeamList   []tracker.Team
	Labels     map[string][]tracker.Label         // teamID -> labels
	States     map[string][]tracker.WorkflowState // teamID -> states
	Issues     []tracker.Issue

	// Err, when set, is returned by every call.
	Err error

	// SearchQueries records SearchIssues invocations in order.
	SearchQueries []string

	// Created holds issues created through CreateIssue.
	Created []tracker.IssueCreate

	// Comments maps issueID to posted comment bodies.
	Comments map[string][]string

	// Links maps issueID to "url|title" pairs.
	Links map[string][]string

	// StateUpdates maps issueID to the last stateID set.
	StateUpdates map[string]string

	// AssigneeUpdates maps issueID to the last assigneeID set.
	AssigneeUpdates map[string]string

	// LabelUpdates maps issueID to the last label set.
	LabelUpdates map[string][]string

	nextID int
}

// NewFake returns an empty fake with a viewer.
func NewFake() *Fake {
	return &Fake{
		ViewerUser:      tracker.User{ID: "viewer-1", Name: "Viewer", Email: "viewer@example.com"},
		Labels:          make(map[string][]tracker.Label),
		States:          make(map[string][]tracker.WorkflowState),
		Comments:        make(map[string][]string),
		Links:           make(map[string][]string),
		StateUpdates:    make(map[string]string),
		AssigneeUpdates: make(map[string]string),
		LabelUpdates:    make(map[string][]string),
	}
}

func (f *Fake) Viewer(ctx context.Context) (*tracker.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	v := f.ViewerUser
	return &v, nil
}

func (f *Fake) FindUser(ctx context.Context, email string) (*tracker.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	for i := range f.Users {
		if f.Users[i].Email == email {
			u := f.Users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (f *Fake) Teams(ctx context.Context) ([]tracker.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]tracker.Team(nil), f.TeamList...), nil
}

func (f *Fake) TeamLabels(ctx context.Context, teamID string) ([]tracker.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]tracker.Label(nil), f.Labels[teamID]...), nil
}

func (f *Fake) TeamStates(ctx context.Context, teamID string) ([]tracker.WorkflowState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]tracker.WorkflowState(nil), f.States[teamID]...), nil
}

func (f *Fake) Issue(ctx context.Context, identifier string) (*tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	for i := range f.Issues {
		if f.Issues[i].Identifier == identifier || f.Issues[i].ID == identifier {
			iss := f.Issues[i]
			return &iss, nil
		}
	}
	return nil, nil
}

// SearchIssues matches any issue whose title or description contains any
// space-separated term of the query, case-insensitively.
func (f *Fake) SearchIssues(ctx context.Context, query string, limit int) ([]tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.SearchQueries = append(f.SearchQueries, query)

	terms := strings.Fields(strings.ToLower(query))
	var out []tracker.Issue
	for _, iss := range f.Issues {
		haystack := strings.ToLower(iss.Title + " " + iss.Description)
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				out = append(out, iss)
				break
			}
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) RecentIssues(ctx context.Context, limit int) ([]tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []tracker.Issue
	for _, iss := range f.Issues {
		switch iss.State.Type {
		case tracker.StateStarted, tracker.StateUnstarted:
			out = append(out, iss)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) CreateIssue(ctx context.Context, in tracker.IssueCreate) (*tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.Created = append(f.Created, in)
	f.nextID++
	iss := tracker.Issue{
		ID:          fmt.Sprintf("created-%d", f.nextID),
		Identifier:  fmt.Sprintf("FAKE-%d", f.nextID),
		Title:       in.Title,
		Description: in.Description,
		URL:         fmt.Sprintf("https://tracker.example.com/issue/FAKE-%d", f.nextID),
	}
	if in.AssigneeID != "" {
		iss.Assignee = &tracker.User{ID: in.AssigneeID}
	}
	f.Issues = append(f.Issues, iss)
	return &iss, nil
}

func (f *Fake) CreateComment(ctx context.Context, issueID, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Comments[issueID] = append(f.Comments[issueID], body)
	return nil
}

func (f *Fake) AttachLink(ctx context.Context, issueID, url, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Links[issueID] = append(f.Links[issueID], url+"|"+title)
	return nil
}

func (f *Fake) UpdateIssueState(ctx context.Context, issueID, stateID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.StateUpdates[issueID] = stateID
	return nil
}

func (f *Fake) UpdateIssueAssignee(ctx context.Context, issueID, assigneeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.AssigneeUpdates[issueID] = assigneeID
	return nil
}

func (f *Fake) UpdateIssueLabels(ctx context.Context, issueID string, labelIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.LabelUpdates[issueID] = append([]string(nil), labelIDs...)
	return nil
}
