// Package linear implements the tracker.Client interface over Linear's
// GraphQL API. Queries are hand-rolled: the capability surface is small and
// fixed, so a typed client buys nothing over a dozen const strings.
package linear

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tracksync.io/cli/cmd/tracksync/cli/tracker"
)

// DefaultEndpoint is Linear's GraphQL endpoint.
const DefaultEndpoint = "https://api.linear.app/graphql"

// defaultTimeout bounds a single GraphQL request.
const defaultTimeout = 30 * time.Second

// Client talks to Linear. The API key is sent as-is in the Authorization
// header, which is how Linear personal API keys work.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// New returns a client for the given endpoint and API key. An empty endpoint
// means DefaultEndpoint.
func New(endpoint, apiKey string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: defaultTimeout},
	}
}

// graphQLError is one entry of a GraphQL error response.
type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// do executes one GraphQL request and decodes the data payload into out.
func (c *Client) do(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("failed to encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tracker request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read tracker response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tracker returned HTTP %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("failed to decode tracker response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("tracker error: %s", envelope.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode tracker data: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// issueFields is the selection set shared by every query returning issues.
const issueFields = `
  id
  identifier
  title
  description
  url
  state { id name type }
  assignee { id name email }
  labels { nodes { id name } }
`

// wireIssue matches Linear's issue shape; labels arrive under a nodes
// wrapper that the public type flattens away.
type wireIssue struct {
	ID          string                `json:"id"`
	Identifier  string                `json:"identifier"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	URL         string                `json:"url"`
	State       tracker.WorkflowState `json:"state"`
	Assignee    *tracker.User         `json:"assignee"`
	Labels      struct {
		Nodes []tracker.Label `json:"nodes"`
	} `json:"labels"`
}

func (w *wireIssue) toIssue() *tracker.Issue {
	return &tracker.Issue{
		ID:          w.ID,
		Identifier:  w.Identifier,
		Title:       w.Title,
		Description: w.Description,
		URL:         w.URL,
		State:       w.State,
		Assignee:    w.Assignee,
		Labels:      w.Labels.Nodes,
	}
}

func toIssues(wires []wireIssue) []tracker.Issue {
	out := make([]tracker.Issue, 0, len(wires))
	for i := range wires {
		out = append(out, *wires[i].toIssue())
	}
	return out
}

// Viewer returns the authenticated user.
func (c *Client) Viewer(ctx context.Context) (*tracker.User, error) {
	var resp struct {
		Viewer tracker.User `json:"viewer"`
	}
	query := `query { viewer { id name email } }`
	if err := c.do(ctx, query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Viewer, nil
}

// FindUser looks a user up by email.
func (c *Client) FindUser(ctx context.Context, email string) (*tracker.User, error) {
	var resp struct {
		Users struct {
			Nodes []tracker.User `json:"nodes"`
		} `json:"users"`
	}
	query := `query($email: String!) {
  users(filter: { email: { eq: $email } }, first: 1) {
    nodes { id name email }
  }
}`
	if err := c.do(ctx, query, map[string]any{"email": email}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Users.Nodes) == 0 {
		return nil, nil
	}
	return &resp.Users.Nodes[0], nil
}

// Teams lists visible teams.
func (c *Client) Teams(ctx context.Context) ([]tracker.Team, error) {
	var resp struct {
		Teams struct {
			Nodes []tracker.Team `json:"nodes"`
		} `json:"teams"`
	}
	query := `query { teams(first: 50) { nodes { id key name } } }`
	if err := c.do(ctx, query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Teams.Nodes, nil
}

// TeamLabels lists a team's labels.
func (c *Client) TeamLabels(ctx context.Context, teamID string) ([]tracker.Label, error) {
	var resp struct {
		Team struct {
			Labels struct {
				Nodes []tracker.Label `json:"nodes"`
			} `json:"labels"`
		} `json:"team"`
	}
	query := `query($id: String!) {
  team(id: $id) { labels(first: 100) { nodes { id name } } }
}`
	if err := c.do(ctx, query, map[string]any{"id": teamID}, &resp); err != nil {
		return nil, err
	}
	return resp.Team.Labels.Nodes, nil
}

// TeamStates lists a team's workflow states.
func (c *Client) TeamStates(ctx context.Context, teamID string) ([]tracker.WorkflowState, error) {
	var resp struct {
		Team struct {
			States struct {
				Nodes []tracker.WorkflowState `json:"nodes"`
			} `json:"states"`
		} `json:"team"`
	}
	query := `query($id: String!) {
  team(id: $id) { states(first: 50) { nodes { id name type } } }
}`
	if err := c.do(ctx, query, map[string]any{"id": teamID}, &resp); err != nil {
		return nil, err
	}
	return resp.Team.States.Nodes, nil
}

// Issue fetches an issue by identifier. Linear resolves identifiers like
// ENG-123 through the same lookup as ids. A not-found error maps to
// (nil, nil) so the matcher can treat it as a miss.
func (c *Client) Issue(ctx context.Context, identifier string) (*tracker.Issue, error) {
	var resp struct {
		Issue *wireIssue `json:"issue"`
	}
	query := `query($id: String!) { issue(id: $id) {` + issueFields + `} }`
	if err := c.do(ctx, query, map[string]any{"id": identifier}, &resp); err != nil {
		if strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "Entity not found") {
			return nil, nil
		}
		return nil, err
	}
	if resp.Issue == nil {
		return nil, nil
	}
	return resp.Issue.toIssue(), nil
}

// SearchIssues runs Linear's free-text issue search.
func (c *Client) SearchIssues(ctx context.Context, query string, limit int) ([]tracker.Issue, error) {
	var resp struct {
		IssueSearch struct {
			Nodes []wireIssue `json:"nodes"`
		} `json:"issueSearch"`
	}
	gql := `query($query: String!, $first: Int!) {
  issueSearch(query: $query, first: $first) { nodes {` + issueFields + `} }
}`
	if err := c.do(ctx, gql, map[string]any{"query": query, "first": limit}, &resp); err != nil {
		return nil, err
	}
	return toIssues(resp.IssueSearch.Nodes), nil
}

// RecentIssues lists active issues ordered by last update.
func (c *Client) RecentIssues(ctx context.Context, limit int) ([]tracker.Issue, error) {
	var resp struct {
		Issues struct {
			Nodes []wireIssue `json:"nodes"`
		} `json:"issues"`
	}
	query := `query($first: Int!) {
  issues(
    filter: { state: { type: { in: ["started", "unstarted"] } } }
    orderBy: updatedAt
    first: $first
  ) { nodes {` + issueFields + `} }
}`
	if err := c.do(ctx, query, map[string]any{"first": limit}, &resp); err != nil {
		return nil, err
	}
	return toIssues(resp.Issues.Nodes), nil
}

// CreateIssue creates an issue.
func (c *Client) CreateIssue(ctx context.Context, in tracker.IssueCreate) (*tracker.Issue, error) {
	input := map[string]any{
		"title":  in.Title,
		"teamId": in.TeamID,
	}
	if in.Description != "" {
		input["description"] = in.Description
	}
	if in.AssigneeID != "" {
		input["assigneeId"] = in.AssigneeID
	}
	if len(in.LabelIDs) > 0 {
		input["labelIds"] = in.LabelIDs
	}
	if in.StateID != "" {
		input["stateId"] = in.StateID
	}

	var resp struct {
		IssueCreate struct {
			Success bool       `json:"success"`
			Issue   *wireIssue `json:"issue"`
		} `json:"issueCreate"`
	}
	query := `mutation($input: IssueCreateInput!) {
  issueCreate(input: $input) { success issue {` + issueFields + `} }
}`
	if err := c.do(ctx, query, map[string]any{"input": input}, &resp); err != nil {
		return nil, err
	}
	if !resp.IssueCreate.Success || resp.IssueCreate.Issue == nil {
		return nil, fmt.Errorf("tracker refused issue creation")
	}
	return resp.IssueCreate.Issue.toIssue(), nil
}

// CreateComment posts a comment on an issue.
func (c *Client) CreateComment(ctx context.Context, issueID, body string) error {
	var resp struct {
		CommentCreate struct {
			Success bool `json:"success"`
		} `json:"commentCreate"`
	}
	query := `mutation($input: CommentCreateInput!) {
  commentCreate(input: $input) { success }
}`
	input := map[string]any{"issueId": issueID, "body": body}
	if err := c.do(ctx, query, map[string]any{"input": input}, &resp); err != nil {
		return err
	}
	if !resp.CommentCreate.Success {
		return fmt.Errorf("tracker refused comment creation")
	}
	return nil
}

// AttachLink attaches a titled URL to an issue.
func (c *Client) AttachLink(ctx context.Context, issueID, url, title string) error {
	var resp struct {
		AttachmentLinkURL struct {
			Success bool `json:"success"`
		} `json:"attachmentLinkURL"`
	}
	query := `mutation($issueId: String!, $url: String!, $title: String) {
  attachmentLinkURL(issueId: $issueId, url: $url, title: $title) { success }
}`
	vars := map[string]any{"issueId": issueID, "url": url, "title": title}
	if err := c.do(ctx, query, vars, &resp); err != nil {
		return err
	}
	if !resp.AttachmentLinkURL.Success {
		return fmt.Errorf("tracker refused link attachment")
	}
	return nil
}

// UpdateIssueState moves an issue to a workflow state.
func (c *Client) UpdateIssueState(ctx context.Context, issueID, stateID string) error {
	return c.updateIssue(ctx, issueID, map[string]any{"stateId": stateID})
}

// UpdateIssueAssignee assigns an issue.
func (c *Client) UpdateIssueAssignee(ctx context.Context, issueID, assigneeID string) error {
	return c.updateIssue(ctx, issueID, map[string]any{"assigneeId": assigneeID})
}

// UpdateIssueLabels replaces an issue's label set.
func (c *Client) UpdateIssueLabels(ctx context.Context, issueID string, labelIDs []string) error {
	return c.updateIssue(ctx, issueID, map[string]any{"labelIds": labelIDs})
}

func (c *Client) updateIssue(ctx context.Context, issueID string, input map[string]any) error {
	var resp struct {
		IssueUpdate struct {
			Success bool `json:"success"`
		} `json:"issueUpdate"`
	}
	query := `mutation($id: String!, $input: IssueUpdateInput!) {
  issueUpdate(id: $id, input: $input) { success }
}`
	if err := c.do(ctx, query, map[string]any{"id": issueID, "input": input}, &resp); err != nil {
		return err
	}
	if !resp.IssueUpdate.Success {
		return fmt.Errorf("tracker refused issue update")
	}
	return nil
}
