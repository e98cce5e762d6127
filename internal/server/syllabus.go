package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"studyplan/internal/domain"
	"studyplan/internal/engine"
	"studyplan/internal/extract"
)

const maxUploadFiles = 10

func registerSyllabus(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "get-syllabus",
		Method:      http.MethodGet,
		Path:        "/syllabus",
		Summary:     "Saved syllabus topics",
		Errors:      []int{http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.SyllabusTopics `json:"body"`
	}, error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		syl, _, err := p.Syllabus.Get(ctx, owner)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SyllabusTopics `json:"body"`
		}{Body: syl}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-syllabus",
		Method:      http.MethodPut,
		Path:        "/syllabus",
		Summary:     "Replace syllabus topics",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body SyllabusRequest `json:"body"`
	}) (*writeOutput[domain.SyllabusTopics], error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		syl, err := p.Syllabus.SetTopics(ctx, owner, input.Body.Topics)
		return written(syl, err)
	})
}

func decodeFiles(uris []string) ([]extract.File, error) {
	if len(uris) > maxUploadFiles {
		return nil, domain.Invalid("files", fmt.Sprintf("at most %d files per request", maxUploadFiles))
	}
	files := make([]extract.File, 0, len(uris))
	for i, uri := range uris {
		f, err := extract.ParseDataURI(uri)
		if err != nil {
			return nil, fieldAt("files", i, err)
		}
		f.Name = fmt.Sprintf("file-%d", i+1)
		files = append(files, f)
	}
	return files, nil
}

func fieldAt(field string, i int, err error) error {
	if verr, ok := err.(*domain.ValidationError); ok {
		return domain.Invalid(fmt.Sprintf("%s[%d]", field, i), verr.Reason)
	}
	return err
}

func registerAnalyze(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "analyze-syllabus",
		Method:      http.MethodPost,
		Path:        "/analyze/syllabus",
		Summary:     "Suggest study tasks from syllabus text or files",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body AnalyzeSyllabusRequest `json:"body"`
	}) (*struct {
		Body SuggestionsResponse `json:"body"`
	}, error) {
		if _, authErr := ownerFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		files, err := decodeFiles(input.Body.Files)
		if err != nil {
			return nil, handleError(err)
		}
		out, err := s.app.Extractor.AnalyzeSyllabus(ctx, extract.SyllabusInput{Text: input.Body.Text, Files: files})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SuggestionsResponse `json:"body"`
		}{Body: SuggestionsResponse{Suggestions: nonNilSlice(out)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analyze-datesheet",
		Method:      http.MethodPost,
		Path:        "/analyze/datesheet",
		Summary:     "Extract test drafts from datesheet images or PDFs",
		Description: "Drafts are returned for review; import them with POST /tests/batch.",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body AnalyzeDatesheetRequest `json:"body"`
	}) (*struct {
		Body DraftTestsResponse `json:"body"`
	}, error) {
		if _, authErr := ownerFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		files, err := decodeFiles(input.Body.Files)
		if err != nil {
			return nil, handleError(err)
		}
		today := s.app.Now()
		if input.Body.Today != "" {
			today, err = time.Parse(domain.DateLayout, input.Body.Today)
			if err != nil {
				return nil, handleError(domain.Invalid("today", "must be a date formatted as YYYY-MM-DD"))
			}
		}
		drafts, err := s.app.Extractor.AnalyzeDatesheet(ctx, files, today)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DraftTestsResponse `json:"body"`
		}{Body: DraftTestsResponse{Tests: nonNilSlice(drafts)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "suggest-topics",
		Method:      http.MethodPost,
		Path:        "/analyze/topics",
		Summary:     "Pick the syllabus topics that belong to a subject",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body SuggestTopicsRequest `json:"body"`
	}) (*struct {
		Body TopicsResponse `json:"body"`
	}, error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		topics := engine.CleanTopics(input.Body.Topics)
		if len(topics) == 0 {
			syl, _, err := p.Syllabus.Get(ctx, owner)
			if err != nil {
				return nil, handleError(err)
			}
			topics = syl.Topics
		}
		out, err := s.app.Extractor.SuggestTopics(ctx, input.Body.Subject, topics)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TopicsResponse `json:"body"`
		}{Body: TopicsResponse{Topics: nonNilSlice(out)}}, nil
	})
}
