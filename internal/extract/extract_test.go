package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyplan/internal/domain"
)

func TestParseDataURI(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4"))
	f, err := ParseDataURI("data:application/pdf;base64," + payload)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", f.MediaType)
	assert.True(t, f.IsPDF())
	assert.Equal(t, []byte("%PDF-1.4"), f.Data)

	for _, bad := range []string{
		"application/pdf;base64," + payload,
		"data:application/pdf;base64",
		"data:text/plain,hello",
		"data:text/plain;base64," + payload,
		"data:image/png;base64,!!!",
	} {
		_, err := ParseDataURI(bad)
		assert.True(t, domain.IsValidation(err), bad)
	}
}

func TestMediaTypeForName(t *testing.T) {
	assert.Equal(t, "image/jpeg", MediaTypeForName("sheet.JPG"))
	assert.Equal(t, "application/pdf", MediaTypeForName("a/b/datesheet.pdf"))
	assert.Equal(t, "", MediaTypeForName("notes.txt"))
}

func TestDecodeAnswerToleratesFences(t *testing.T) {
	var ans topicsAnswer
	err := decodeAnswer("Here you go:\n```json\n{\"suggestedTopics\":[\"Optics\"]}\n```", &ans)
	require.NoError(t, err)
	assert.Equal(t, []string{"Optics"}, ans.SuggestedTopics)

	assert.ErrorIs(t, decodeAnswer("no json here", &ans), errNoJSON)
}

func TestKeepValidTests(t *testing.T) {
	var ans datesheetAnswer
	require.NoError(t, json.Unmarshal([]byte(`{"tests":[
		{"testName":"Unit Test 1","startDate":"2026-11-02","endDate":"2026-11-06","syllabus":"Physics: Ch 1-3"},
		{"testName":"Backwards","startDate":"2026-11-06","endDate":"2026-11-02"},
		{"testName":"","startDate":"2026-11-02","endDate":"2026-11-02"},
		{"testName":"Oral","startDate":"2026-12-01"}
	]}`), &ans))

	got := keepValidTests(ans)
	require.Len(t, got, 2)
	assert.Equal(t, "Unit Test 1", got[0].TestName)
	assert.Equal(t, "2026-12-01", got[1].EndDate)
}

func TestKeepKnownTopics(t *testing.T) {
	got := keepKnownTopics(topicsAnswer{SuggestedTopics: []string{"optics", "Poetry", "Optics", " Kinematics "}},
		[]string{"Optics", "Kinematics", "Algebra"})
	assert.Equal(t, []string{"Optics", "Kinematics"}, got)
}

type fakeAPI struct {
	mu     sync.Mutex
	bodies []map[string]any
	reply  string
	status int
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		f.mu.Lock()
		f.bodies = append(f.bodies, body)
		status := f.status
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if status != 0 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"bad key"}}`))
			return
		}
		resp := map[string]any{
			"id":            "msg_1",
			"type":          "message",
			"role":          "assistant",
			"model":         "test-model",
			"content":       []map[string]any{{"type": "text", "text": f.reply}},
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"usage":         map[string]any{"input_tokens": 1, "output_tokens": 1},
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
}

func newFake(t *testing.T, reply string) (*fakeAPI, *Anthropic) {
	t.Helper()
	fake := &fakeAPI{reply: reply}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	a, err := NewAnthropic(Config{APIKey: "test-key", Model: "test-model", BaseURL: srv.URL, MaxRetries: 0, Timeout: 5 * time.Second})
	require.NoError(t, err)
	return fake, a
}

func TestNewAnthropicRequiresKey(t *testing.T) {
	_, err := NewAnthropic(Config{})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestAnalyzeSyllabus(t *testing.T) {
	fake, a := newFake(t, "```json\n{\"studyTasks\":[{\"topic\":\"Kinematics\",\"durationMinutes\":45},{\"topic\":\"\",\"durationMinutes\":30},{\"topic\":\"Optics\",\"durationMinutes\":0}]}\n```")

	got, err := a.AnalyzeSyllabus(context.Background(), SyllabusInput{Text: "Physics: kinematics, optics"})
	require.NoError(t, err)
	assert.Equal(t, []domain.SuggestedTask{{Topic: "Kinematics", DurationMinutes: 45}}, got)

	require.Len(t, fake.bodies, 1)
	assert.Equal(t, "test-model", fake.bodies[0]["model"])
	raw, _ := json.Marshal(fake.bodies[0]["messages"])
	assert.Contains(t, string(raw), "Physics: kinematics, optics")
}

func TestAnalyzeSyllabusEmptyInputSkipsModel(t *testing.T) {
	fake, a := newFake(t, "{}")
	_, err := a.AnalyzeSyllabus(context.Background(), SyllabusInput{Text: "   "})
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, fake.bodies)
}

func TestAnalyzeDatesheetSendsFilesAndToday(t *testing.T) {
	fake, a := newFake(t, `{"tests":[{"testName":"Mid Term","startDate":"2026-11-02","endDate":"2026-11-09","syllabus":"Maths: Algebra"}]}`)
	today := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	got, err := a.AnalyzeDatesheet(context.Background(), []File{
		{Name: "p1.png", MediaType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}},
		{Name: "p2.pdf", MediaType: "application/pdf", Data: []byte("%PDF")},
	}, today)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Mid Term", got[0].TestName)

	raw, _ := json.Marshal(fake.bodies[0])
	body := string(raw)
	assert.Contains(t, body, `"type":"image"`)
	assert.Contains(t, body, `"type":"document"`)
	assert.Contains(t, body, "16 October 2026")
}

func TestAnalyzeDatesheetRejectsUnsupportedFile(t *testing.T) {
	fake, a := newFake(t, "{}")
	_, err := a.AnalyzeDatesheet(context.Background(), []File{{MediaType: "text/plain", Data: []byte("x")}}, time.Now())
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, fake.bodies)
}

func TestSuggestTopics(t *testing.T) {
	fake, a := newFake(t, `{"suggestedTopics":["Optics","Shakespeare"]}`)
	got, err := a.SuggestTopics(context.Background(), "Physics", []string{"Optics", "Algebra"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Optics"}, got)

	raw, _ := json.Marshal(fake.bodies[0]["messages"])
	assert.True(t, strings.Contains(string(raw), "- Algebra"))

	got, err = a.SuggestTopics(context.Background(), "Physics", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Len(t, fake.bodies, 1)
}

func TestUnparseableAnswerIsTransient(t *testing.T) {
	_, a := newFake(t, "I could not read the file.")
	_, err := a.SuggestTopics(context.Background(), "Physics", []string{"Optics"})
	assert.True(t, domain.IsTransient(err))
}

func TestAuthFailureIsNotConfigured(t *testing.T) {
	fake, a := newFake(t, "")
	fake.status = http.StatusUnauthorized
	_, err := a.SuggestTopics(context.Background(), "Physics", []string{"Optics"})
	assert.True(t, errors.Is(err, domain.ErrNotConfigured), "got %v", err)
}

func TestUnconfigured(t *testing.T) {
	var x Extractor = Unconfigured{}
	_, err := x.SuggestTopics(context.Background(), "a", []string{"b"})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}
