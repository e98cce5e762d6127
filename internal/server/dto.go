package server

import (
	"encoding/json"
	"time"

	"studyplan/internal/domain"
	"studyplan/internal/engine"
)

// Request payloads. Every field is optional at the schema level so the
// planner reports missing values with the failing field name.

type CredentialsRequest struct {
	Email    string `json:"email,omitempty" format:"email"`
	Password string `json:"password,omitempty"`
}

type TaskRequest struct {
	Subject         string    `json:"subject,omitempty"`
	Topic           string    `json:"topic,omitempty"`
	ActivityType    string    `json:"activity_type,omitempty" enum:"Learn Concept,Practice Questions,Revise,Watch Lecture,Take Notes"`
	ScheduledAt     time.Time `json:"scheduled_at,omitempty" format:"date-time"`
	DurationMinutes int       `json:"duration_minutes,omitempty"`
	Notes           string    `json:"notes,omitempty"`
}

func (r TaskRequest) draft() domain.TaskDraft {
	return domain.TaskDraft{
		Subject:         r.Subject,
		Topic:           r.Topic,
		ActivityType:    domain.ActivityType(r.ActivityType),
		ScheduledAt:     r.ScheduledAt,
		DurationMinutes: r.DurationMinutes,
		Notes:           r.Notes,
	}
}

type ReplaceTaskRequest struct {
	TaskRequest
	Completed bool `json:"completed,omitempty"`
}

type SuggestionRequest struct {
	Topic           string `json:"topic,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type ScheduleRequest struct {
	Subject      string              `json:"subject,omitempty"`
	Start        time.Time           `json:"start,omitempty" format:"date-time"`
	ActivityType string              `json:"activity_type,omitempty" enum:"Learn Concept,Practice Questions,Revise,Watch Lecture,Take Notes"`
	Suggestions  []SuggestionRequest `json:"suggestions,omitempty"`
}

func (r ScheduleRequest) suggestions() []domain.SuggestedTask {
	out := make([]domain.SuggestedTask, 0, len(r.Suggestions))
	for _, s := range r.Suggestions {
		out = append(out, domain.SuggestedTask{Topic: s.Topic, DurationMinutes: s.DurationMinutes})
	}
	return out
}

type TestRequest struct {
	TestName  string `json:"test_name,omitempty"`
	StartDate string `json:"start_date,omitempty" example:"2026-11-02"`
	EndDate   string `json:"end_date,omitempty" example:"2026-11-06"`
	Syllabus  string `json:"syllabus,omitempty"`
}

func (r TestRequest) draft() domain.TestDraft {
	return domain.TestDraft{TestName: r.TestName, StartDate: r.StartDate, EndDate: r.EndDate, Syllabus: r.Syllabus}
}

type ImportTestsRequest struct {
	Tests []TestRequest `json:"tests,omitempty"`
}

func (r ImportTestsRequest) drafts() []domain.TestDraft {
	out := make([]domain.TestDraft, 0, len(r.Tests))
	for _, t := range r.Tests {
		out = append(out, t.draft())
	}
	return out
}

type SyllabusRequest struct {
	Topics []string `json:"topics,omitempty"`
}

type AnalyzeSyllabusRequest struct {
	Text string `json:"text,omitempty"`
	// Files are data URIs: data:<media type>;base64,<payload>.
	Files []string `json:"files,omitempty"`
}

type AnalyzeDatesheetRequest struct {
	Files []string `json:"files,omitempty"`
	Today string   `json:"today,omitempty" example:"2026-10-16"`
}

type SuggestTopicsRequest struct {
	Subject string `json:"subject,omitempty"`
	// Topics defaults to the saved syllabus when empty.
	Topics []string `json:"topics,omitempty"`
}

// Response payloads

type WhoAmIResponse struct {
	Owner string `json:"owner"`
	Email string `json:"email,omitempty"`
}

type taskList struct {
	Items []domain.Task `json:"items"`
}

// scheduleResult lists the tasks that were created. When a store write
// fails part way, FailedAt is the index of the first suggestion not stored.
type scheduleResult struct {
	Items    []domain.Task `json:"items"`
	FailedAt *int          `json:"failed_at,omitempty"`
	Failure  *apiErrorBody `json:"failure,omitempty"`
}

type testList struct {
	Items []domain.Test `json:"items"`
}

type AgendaDay struct {
	Date           string        `json:"date" format:"date"`
	PlannedMinutes int           `json:"planned_minutes"`
	Tasks          []domain.Task `json:"tasks"`
}

type AgendaResponse struct {
	Timezone string      `json:"timezone"`
	Days     []AgendaDay `json:"days"`
}

type UpcomingResponse struct {
	Found     bool         `json:"found"`
	Test      *domain.Test `json:"test,omitempty"`
	DaysUntil int          `json:"days_until"`
}

type ClearTestsResponse struct {
	Deleted int `json:"deleted"`
}

type SuggestionsResponse struct {
	Suggestions []domain.SuggestedTask `json:"suggestions"`
}

type DraftTestsResponse struct {
	Tests []domain.TestDraft `json:"tests"`
}

type TopicsResponse struct {
	Topics []string `json:"topics"`
}

type DashboardResponse = engine.Dashboard

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	resp := EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
	}
	if e.Payload != "" {
		_ = json.Unmarshal([]byte(e.Payload), &resp.Payload)
	}
	return resp
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
