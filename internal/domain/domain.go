package domain

import "time"

// DateLayout is the calendar date format used for tests and agenda keys.
const DateLayout = "2006-01-02"

type ActivityType string

const (
	ActivityLearnConcept      ActivityType = "Learn Concept"
	ActivityPracticeQuestions ActivityType = "Practice Questions"
	ActivityRevise            ActivityType = "Revise"
	ActivityWatchLecture      ActivityType = "Watch Lecture"
	ActivityTakeNotes         ActivityType = "Take Notes"
)

// ActivityTypes lists the accepted activity types in display order.
var ActivityTypes = []ActivityType{
	ActivityLearnConcept,
	ActivityPracticeQuestions,
	ActivityRevise,
	ActivityWatchLecture,
	ActivityTakeNotes,
}

func (a ActivityType) Valid() bool {
	for _, known := range ActivityTypes {
		if a == known {
			return true
		}
	}
	return false
}

type Task struct {
	ID              string       `json:"id"`
	Owner           string       `json:"owner"`
	Subject         string       `json:"subject"`
	Topic           string       `json:"topic"`
	ActivityType    ActivityType `json:"activity_type" enum:"Learn Concept,Practice Questions,Revise,Watch Lecture,Take Notes"`
	ScheduledAt     time.Time    `json:"scheduled_at" format:"date-time"`
	DurationMinutes int          `json:"duration_minutes"`
	Notes           string       `json:"notes,omitempty"`
	Completed       bool         `json:"completed"`
}

// TaskDraft is a task that has not been persisted yet.
type TaskDraft struct {
	Subject         string       `json:"subject,omitempty"`
	Topic           string       `json:"topic" validate:"required"`
	ActivityType    ActivityType `json:"activity_type,omitempty"`
	ScheduledAt     time.Time    `json:"scheduled_at" validate:"required"`
	DurationMinutes int          `json:"duration_minutes" validate:"min=1"`
	Notes           string       `json:"notes,omitempty"`
}

type Test struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	TestName  string `json:"test_name"`
	StartDate string `json:"start_date" format:"date"`
	EndDate   string `json:"end_date" format:"date"`
	Syllabus  string `json:"syllabus,omitempty"`
}

// TestDraft is a test that has not been persisted yet.
type TestDraft struct {
	TestName  string `json:"test_name" validate:"required"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Syllabus  string `json:"syllabus,omitempty"`
}

// SyllabusTopics is the owner's topic list; it is always replaced as a whole.
type SyllabusTopics struct {
	Owner     string    `json:"owner"`
	Topics    []string  `json:"topics"`
	UpdatedAt time.Time `json:"updated_at" format:"date-time"`
}

// SuggestedTask is a study task proposed by syllabus analysis.
type SuggestedTask struct {
	Topic           string `json:"topic"`
	DurationMinutes int    `json:"duration_minutes"`
}

type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	Owner      string `json:"owner"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
