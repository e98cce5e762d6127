// Package extract turns syllabus and datesheet uploads into task and test
// drafts with a language model.
package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"studyplan/internal/domain"
)

// Extractor is the boundary the planner treats as an opaque producer of drafts.
type Extractor interface {
	AnalyzeSyllabus(ctx context.Context, in SyllabusInput) ([]domain.SuggestedTask, error)
	AnalyzeDatesheet(ctx context.Context, files []File, today time.Time) ([]domain.TestDraft, error)
	SuggestTopics(ctx context.Context, subject string, syllabusTopics []string) ([]string, error)
}

// File is an uploaded image or PDF.
type File struct {
	Name      string `json:"name,omitempty"`
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

type SyllabusInput struct {
	Text  string `json:"text,omitempty"`
	Files []File `json:"files,omitempty"`
}

var supportedMedia = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

func (f File) IsPDF() bool { return f.MediaType == "application/pdf" }

func (f File) validate() error {
	if !supportedMedia[f.MediaType] {
		return domain.Invalid("media_type", fmt.Sprintf("unsupported file type %q", f.MediaType))
	}
	if len(f.Data) == 0 {
		return domain.Invalid("data", "file "+f.Name+" is empty")
	}
	return nil
}

// ParseDataURI decodes a "data:<mime>;base64,<payload>" string.
func ParseDataURI(uri string) (File, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return File{}, domain.Invalid("data_uri", "must start with data:")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return File{}, domain.Invalid("data_uri", "missing payload")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return File{}, domain.Invalid("data_uri", "payload must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return File{}, domain.Invalid("data_uri", "invalid base64 payload")
	}
	f := File{MediaType: strings.ToLower(mediaType), Data: data}
	if err := f.validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// MediaTypeForName guesses the media type from a file extension.
func MediaTypeForName(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	case strings.HasSuffix(lower, ".pdf"):
		return "application/pdf"
	}
	return ""
}

// answer shapes the model is asked to produce.
type syllabusAnswer struct {
	StudyTasks []struct {
		Topic           string  `json:"topic"`
		DurationMinutes float64 `json:"durationMinutes"`
	} `json:"studyTasks"`
}

type datesheetAnswer struct {
	Tests []struct {
		TestName  string `json:"testName"`
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
		Syllabus  string `json:"syllabus"`
	} `json:"tests"`
}

type topicsAnswer struct {
	SuggestedTopics []string `json:"suggestedTopics"`
}

var errNoJSON = errors.New("model answer contained no JSON object")

// decodeAnswer pulls the first JSON object out of a model reply, tolerating
// markdown fences and surrounding prose.
func decodeAnswer(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return errNoJSON
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("decode model answer: %w", err)
	}
	return nil
}

// keepValidTasks drops suggestions with no topic or a non-positive duration.
func keepValidTasks(a syllabusAnswer) []domain.SuggestedTask {
	out := make([]domain.SuggestedTask, 0, len(a.StudyTasks))
	for _, t := range a.StudyTasks {
		topic := strings.TrimSpace(t.Topic)
		minutes := int(t.DurationMinutes + 0.5)
		if topic == "" || minutes < 1 {
			continue
		}
		out = append(out, domain.SuggestedTask{Topic: topic, DurationMinutes: minutes})
	}
	return out
}

// keepValidTests drops entries that would not pass test draft validation.
func keepValidTests(a datesheetAnswer) []domain.TestDraft {
	out := make([]domain.TestDraft, 0, len(a.Tests))
	for _, t := range a.Tests {
		d := domain.TestDraft{TestName: t.TestName, StartDate: t.StartDate, EndDate: t.EndDate, Syllabus: t.Syllabus}.Normalize()
		if d.EndDate == "" {
			d.EndDate = d.StartDate
		}
		if d.Validate() != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

// keepKnownTopics keeps suggestions that name one of the given topics,
// using the caller's spelling.
func keepKnownTopics(a topicsAnswer, topics []string) []string {
	known := make(map[string]string, len(topics))
	for _, t := range topics {
		known[strings.ToLower(strings.TrimSpace(t))] = t
	}
	out := []string{}
	seen := map[string]bool{}
	for _, s := range a.SuggestedTopics {
		key := strings.ToLower(strings.TrimSpace(s))
		orig, ok := known[key]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, orig)
	}
	return out
}
