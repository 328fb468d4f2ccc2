package accredosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Accredo HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Record represents a worker's requirement record (partial).
type Record struct {
	ID           string `json:"id"`
	WorkerID     string `json:"worker_id"`
	TypeID       string `json:"type_id"`
	Category     string `json:"category"`
	ValidFrom    string `json:"valid_from"`
	ValidTo      string `json:"valid_to"`
	Status       string `json:"status"`
	ManualStatus string `json:"manual_status,omitempty"`
	LeadDays     int    `json:"lead_days"`
}

// Project represents the API project model (partial).
type Project struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Name   string `json:"name"`
	Client string `json:"client"`
	Status string `json:"status"`
}

// Task represents an onboarding task.
type Task struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Role        string `json:"role"`
	Requirement string `json:"requirement"`
	Category    string `json:"category"`
	Done        bool   `json:"done"`
	CompletedOn string `json:"completed_on,omitempty"`
}

// CompletionResult is the outcome of toggling a task.
type CompletionResult struct {
	Task             Task   `json:"task"`
	Total            int    `json:"total"`
	Completed        int    `json:"completed"`
	AllCompleted     bool   `json:"all_completed"`
	NewProjectStatus string `json:"new_project_status,omitempty"`
}

// RoleProgress is one per-role completion bucket.
type RoleProgress struct {
	Role      string  `json:"role"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedRecords wraps record listings with cursors.
type PaginatedRecords struct {
	Items      []Record `json:"items"`
	NextCursor string   `json:"next_cursor"`
}

// PaginatedTasks wraps task listings with cursors.
type PaginatedTasks struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateRecord creates a requirement record.
func (c *Client) CreateRecord(ctx context.Context, workerID, typeID, validFrom, validTo string) (Record, error) {
	body := map[string]any{
		"worker_id":  workerID,
		"type_id":    typeID,
		"valid_from": validFrom,
		"valid_to":   validTo,
	}
	var resp Record
	err := c.do(ctx, http.MethodPost, "v0/records", body, &resp)
	return resp, err
}

// GetRecord fetches a record by id.
func (c *Client) GetRecord(ctx context.Context, id string) (Record, error) {
	var resp Record
	err := c.do(ctx, http.MethodGet, "v0/records/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetManualStatus sets or clears (empty string) a record's manual override.
func (c *Client) SetManualStatus(ctx context.Context, id, validFrom, validTo, status string) (Record, error) {
	body := map[string]any{
		"valid_from":    validFrom,
		"valid_to":      validTo,
		"manual_status": status,
	}
	var resp Record
	err := c.do(ctx, http.MethodPatch, "v0/records/"+url.PathEscape(id), body, &resp)
	return resp, err
}

// Records returns a page of requirement records.
func (c *Client) Records(ctx context.Context, workerID string, limit int, cursor string) (PaginatedRecords, error) {
	q := url.Values{}
	if workerID != "" {
		q.Set("worker_id", workerID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/records"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedRecords
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ProvisionProject creates a project and its plan tasks.
func (c *Client) ProvisionProject(ctx context.Context, code, name, client, plan string) (Project, []Task, error) {
	body := map[string]any{
		"code":   code,
		"name":   name,
		"client": client,
		"plan":   plan,
	}
	var resp struct {
		Project Project `json:"project"`
		Tasks   []Task  `json:"tasks"`
	}
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp.Project, resp.Tasks, err
}

// Tasks returns a page of a project's tasks.
func (c *Client) Tasks(ctx context.Context, projectID string, limit int, cursor string) (PaginatedTasks, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.projectPath(projectID, "tasks")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedTasks
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetTaskCompletion toggles a task's done flag.
func (c *Client) SetTaskCompletion(ctx context.Context, projectID, taskID string, done bool) (CompletionResult, error) {
	body := map[string]any{"done": done}
	var resp CompletionResult
	endpoint := c.projectPath(projectID, fmt.Sprintf("tasks/%s/completion", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// Progress returns the per-role completion dashboard.
func (c *Client) Progress(ctx context.Context, projectID string) ([]RoleProgress, error) {
	var resp struct {
		Items []RoleProgress `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.projectPath(projectID, "progress"), nil, &resp)
	return resp.Items, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(projectID, p string) string {
	return fmt.Sprintf("v0/projects/%s/%s", url.PathEscape(projectID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
