package studyplansdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Studyplan HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

type Credentials struct {
	Token     string    `json:"token"`
	Owner     string    `json:"owner"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Task struct {
	ID              string    `json:"id"`
	Subject         string    `json:"subject"`
	Topic           string    `json:"topic"`
	ActivityType    string    `json:"activity_type"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes,omitempty"`
	Completed       bool      `json:"completed"`
}

// NewTask is the body for creating a task. Empty ActivityType means Learn Concept.
type NewTask struct {
	Subject         string    `json:"subject,omitempty"`
	Topic           string    `json:"topic"`
	ActivityType    string    `json:"activity_type,omitempty"`
	ScheduledAt     time.Time `json:"scheduled_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes,omitempty"`
}

type Test struct {
	ID        string `json:"id"`
	TestName  string `json:"test_name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Syllabus  string `json:"syllabus,omitempty"`
}

type NewTest struct {
	TestName  string `json:"test_name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Syllabus  string `json:"syllabus,omitempty"`
}

type Upcoming struct {
	Found     bool  `json:"found"`
	Test      *Test `json:"test,omitempty"`
	DaysUntil int   `json:"days_until"`
}

type AgendaDay struct {
	Date           string `json:"date"`
	PlannedMinutes int    `json:"planned_minutes"`
	Tasks          []Task `json:"tasks"`
}

type Agenda struct {
	Timezone string      `json:"timezone"`
	Days     []AgendaDay `json:"days"`
}

type Dashboard struct {
	Upcoming         *Test  `json:"upcoming,omitempty"`
	DaysUntil        int    `json:"days_until"`
	Today            []Task `json:"today"`
	Incomplete       int    `json:"incomplete"`
	Completed        int    `json:"completed"`
	PlannedMinutes   int    `json:"planned_minutes"`
	TopicsInSyllabus int    `json:"topics_in_syllabus"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Field are filled from the
// error envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Field      string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// SignUp creates an account and stores the returned token on the client.
func (c *Client) SignUp(ctx context.Context, email, password string) (Credentials, error) {
	return c.authenticate(ctx, "auth/signup", email, password)
}

// Login signs in and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Credentials, error) {
	return c.authenticate(ctx, "auth/login", email, password)
}

func (c *Client) authenticate(ctx context.Context, endpoint, email, password string) (Credentials, error) {
	var resp Credentials
	err := c.do(ctx, http.MethodPost, endpoint, map[string]string{"email": email, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

func (c *Client) ListTasks(ctx context.Context, state string) ([]Task, error) {
	endpoint := "tasks"
	if state != "" {
		endpoint += "?state=" + url.QueryEscape(state)
	}
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", t, &resp)
	return resp, err
}

func (c *Client) ToggleTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/toggle", url.PathEscape(id)), nil, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

// Agenda returns incomplete tasks grouped by day in the named time zone.
func (c *Client) Agenda(ctx context.Context, tz string) (Agenda, error) {
	endpoint := "tasks/agenda"
	if tz != "" {
		endpoint += "?tz=" + url.QueryEscape(tz)
	}
	var resp Agenda
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) ListTests(ctx context.Context, state string) ([]Test, error) {
	endpoint := "tests"
	if state != "" {
		endpoint += "?state=" + url.QueryEscape(state)
	}
	var resp struct {
		Items []Test `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// ImportTests stores every test or none of them.
func (c *Client) ImportTests(ctx context.Context, tests []NewTest) ([]Test, error) {
	var resp struct {
		Items []Test `json:"items"`
	}
	err := c.do(ctx, http.MethodPost, "tests/batch", map[string]any{"tests": tests}, &resp)
	return resp.Items, err
}

func (c *Client) UpcomingTest(ctx context.Context) (Upcoming, error) {
	var resp Upcoming
	err := c.do(ctx, http.MethodGet, "tests/upcoming", nil, &resp)
	return resp, err
}

// ClearTests deletes every test and returns how many were removed.
func (c *Client) ClearTests(ctx context.Context) (int, error) {
	var resp struct {
		Deleted int `json:"deleted"`
	}
	err := c.do(ctx, http.MethodDelete, "tests?confirm=true", nil, &resp)
	return resp.Deleted, err
}

func (c *Client) SetSyllabus(ctx context.Context, topics []string) ([]string, error) {
	var resp struct {
		Topics []string `json:"topics"`
	}
	err := c.do(ctx, http.MethodPut, "syllabus", map[string]any{"topics": topics}, &resp)
	return resp.Topics, err
}

// SuggestTopics asks which topics belong to subject; nil topics means the
// saved syllabus.
func (c *Client) SuggestTopics(ctx context.Context, subject string, topics []string) ([]string, error) {
	var resp struct {
		Topics []string `json:"topics"`
	}
	err := c.do(ctx, http.MethodPost, "analyze/topics", map[string]any{"subject": subject, "topics": topics}, &resp)
	return resp.Topics, err
}

func (c *Client) Dashboard(ctx context.Context, tz string) (Dashboard, error) {
	endpoint := "dashboard"
	if tz != "" {
		endpoint += "?tz=" + url.QueryEscape(tz)
	}
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
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
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, b)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		if field, ok := env.Error.Details["field"].(string); ok {
			apiErr.Field = field
		}
	}
	return apiErr
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
