package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"studyplan/internal/domain"
	"studyplan/internal/views"
)

func registerTasks(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks ordered by scheduled time",
		Errors:      []int{http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		State string `query:"state" doc:"incomplete or completed; empty lists every task"`
	}) (*struct {
		Body taskList `json:"body"`
	}, error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		tasks, err := p.Tasks.List(ctx, owner)
		if err != nil {
			return nil, handleError(err)
		}
		incomplete, completed := views.PartitionByCompletion(tasks)
		switch input.State {
		case "":
		case "incomplete":
			tasks = incomplete
		case "completed":
			tasks = completed
		default:
			return nil, handleError(domain.Invalid("state", "must be incomplete or completed"))
		}
		return &struct {
			Body taskList `json:"body"`
		}{Body: taskList{Items: nonNilSlice(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body TaskRequest `json:"body"`
	}) (*writeOutput[domain.Task], error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		t, err := p.Tasks.Create(ctx, owner, input.Body.draft())
		return written(t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-agenda",
		Method:      http.MethodGet,
		Path:        "/tasks/agenda",
		Summary:     "Tasks grouped by calendar day",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		TZ          string `query:"tz" doc:"IANA time zone for day boundaries"`
		IncludeDone bool   `query:"include_done"`
	}) (*struct {
		Body AgendaResponse `json:"body"`
	}, error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		loc, err := location(input.TZ)
		if err != nil {
			return nil, handleError(err)
		}
		tasks, err := p.Tasks.List(ctx, owner)
		if err != nil {
			return nil, handleError(err)
		}
		if !input.IncludeDone {
			tasks, _ = views.PartitionByCompletion(tasks)
		}
		groups := views.GroupByCalendarDay(tasks, loc)
		resp := AgendaResponse{Timezone: loc.String(), Days: []AgendaDay{}}
		for _, day := range views.SortedDays(groups) {
			resp.Days = append(resp.Days, AgendaDay{
				Date:           day,
				PlannedMinutes: views.TotalMinutes(groups[day]),
				Tasks:          groups[day],
			})
		}
		return &struct {
			Body AgendaResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "schedule-tasks",
		Method:        http.MethodPost,
		Path:          "/tasks/schedule",
		Summary:       "Create back-to-back tasks from suggestions",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body ScheduleRequest `json:"body"`
	}) (*writeOutput[scheduleResult], error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		tasks, err := p.Tasks.ScheduleSuggested(ctx, owner, input.Body.Subject, input.Body.Start,
			domain.ActivityType(input.Body.ActivityType), input.Body.suggestions())
		out := &writeOutput[scheduleResult]{Body: scheduleResult{Items: nonNilSlice(tasks)}}
		if err == nil {
			return out, nil
		}
		var partial *domain.PartialWriteError
		if errors.As(err, &partial) {
			at := partial.Index
			out.Body.FailedAt = &at
			out.Body.Failure = errorBody(partial.Err)
		} else if !domain.IsRefresh(err) {
			return nil, handleError(err)
		}
		var refreshErr *domain.RefreshError
		if errors.As(err, &refreshErr) {
			out.RefreshError = refreshErr.Error()
		}
		return out, nil
	})

	type taskPath struct {
		ID string `path:"id"`
	}

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		t, err := p.Tasks.Get(ctx, owner, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replace-task",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}",
		Summary:     "Replace task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body ReplaceTaskRequest `json:"body"`
	}) (*writeOutput[domain.Task], error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		d := input.Body.draft()
		t, err := p.Tasks.Update(ctx, owner, domain.Task{
			ID:              input.ID,
			Subject:         d.Subject,
			Topic:           d.Topic,
			ActivityType:    d.ActivityType,
			ScheduledAt:     d.ScheduledAt,
			DurationMinutes: d.DurationMinutes,
			Notes:           d.Notes,
			Completed:       input.Body.Completed,
		})
		return written(t, err)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized, http.StatusConflict, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *taskPath) (*deleteOutput, error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		return deleted(p.Tasks.Delete(ctx, owner, input.ID))
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/toggle",
		Summary:     "Flip task completion",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *taskPath) (*writeOutput[domain.Task], error) {
		owner, p, err := s.planner(ctx)
		if err != nil {
			return nil, err
		}
		t, err := p.Tasks.ToggleCompletion(ctx, owner, input.ID)
		return written(t, err)
	})
}
