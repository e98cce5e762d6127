package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"studyplan/internal/domain"
	"studyplan/internal/views"
)

func registerTests(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tests",
		Method:      http.MethodGet,
		Path:        "/tests",
		Summary:     "List tests ordered by start date",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		State string `query:"state" doc:"upcoming or ended; empty lists every test"`
	}) (*struct {
		Body testList `json:"body"`
	}, error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		tests, err := p.Tests.List(ctx, owner)
		if err != nil {
			return nil, handleError(err)
		}
		upcoming, ended := views.PartitionByTestEnd(tests, s.app.Now())
		switch input.State {
		case "":
		case "upcoming":
			tests = upcoming
		case "ended":
			tests = ended
		default:
			return nil, handleError(domain.Invalid("state", "must be upcoming or ended"))
		}
		return &struct {
			Body testList `json:"body"`
		}{Body: testList{Items: nonNilSlice(tests)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-test",
		Method:        http.MethodPost,
		Path:          "/tests",
		Summary:       "Create test",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body TestRequest `json:"body"`
	}) (*writeOutput[domain.Test], error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		t, err := p.Tests.Create(ctx, owner, input.Body.draft())
		return written(t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "import-tests",
		Method:        http.MethodPost,
		Path:          "/tests/batch",
		Summary:       "Create several tests in one write",
		Description:   "Either every test is stored or none is.",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body ImportTestsRequest `json:"body"`
	}) (*writeOutput[testList], error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		tests, err := p.Tests.ImportBatch(ctx, owner, input.Body.drafts())
		return written(testList{Items: nonNilSlice(tests)}, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "clear-tests",
		Method:      http.MethodDelete,
		Path:        "/tests",
		Summary:     "Delete every test",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Confirm bool `query:"confirm" doc:"must be true"`
	}) (*writeOutput[ClearTestsResponse], error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		if !input.Confirm {
			return nil, handleError(domain.Invalid("confirm", "must be true to delete every test"))
		}
		n, err := p.Tests.ClearAll(ctx, owner)
		return written(ClearTestsResponse{Deleted: n}, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "upcoming-test",
		Method:      http.MethodGet,
		Path:        "/tests/upcoming",
		Summary:     "Next test that has not ended",
		Errors:      []int{http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body UpcomingResponse `json:"body"`
	}, error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		t, ok, err := p.Tests.Upcoming(ctx, owner)
		if err != nil {
			return nil, handleError(err)
		}
		resp := UpcomingResponse{Found: ok}
		if ok {
			resp.Test = &t
			resp.DaysUntil = views.DaysUntil(t, s.app.Now())
		}
		return &struct {
			Body UpcomingResponse `json:"body"`
		}{Body: resp}, nil
	})

	type testPath struct {
		ID string `path:"id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-test",
		Method:      http.MethodGet,
		Path:        "/tests/{id}",
		Summary:     "Get test",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *testPath) (*struct {
		Body domain.Test `json:"body"`
	}, error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		t, err := p.Tests.Get(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Test `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-test",
		Method:        http.MethodDelete,
		Path:          "/tests/{id}",
		Summary:       "Delete test",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *testPath) (*deleteOutput, error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		return deleted(p.Tests.Delete(ctx, owner, input.ID))
	})
}
