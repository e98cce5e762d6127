package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"studyplan/internal/app"
	"studyplan/internal/domain"
	"studyplan/internal/engine"
	"studyplan/internal/extract"
	"studyplan/internal/views"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage study tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskAddCmd())
	task.AddCommand(taskEditCmd())
	task.AddCommand(taskToggleCmd())
	task.AddCommand(taskRemoveCmd())
	task.AddCommand(taskAgendaCmd())
	task.AddCommand(taskScheduleCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks ordered by scheduled time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, _ *app.App, owner string, p *engine.Planner) error {
				tasks, err := p.Tasks.List(ctx, owner)
				if err != nil {
					return err
				}
				incomplete, completed := views.PartitionByCompletion(tasks)
				switch state {
				case "":
				case "incomplete":
					tasks = incomplete
				case "completed":
					tasks = completed
				default:
					return domain.Invalid("state", "must be incomplete or completed")
				}
				return printTasks(tasks)
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "incomplete or completed")
	return cmd
}

func printTasks(tasks []domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	loc, err := location()
	if err != nil {
		return err
	}
	tw := newTable("ID", "When", "Subject", "Topic", "Activity", "Minutes", "Done")
	for _, t := range tasks {
		done := ""
		if t.Completed {
			done = "yes"
		}
		tw.AppendRow(table.Row{t.ID, t.ScheduledAt.In(loc).Format("Mon 2 Jan 15:04"), t.Subject, t.Topic, t.ActivityType, t.DurationMinutes, done})
	}
	tw.Render()
	return nil
}

type taskFlags struct {
	subject, topic, activity, at, notes string
	minutes                             int
}

func (f *taskFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.subject, "subject", "", "subject")
	cmd.Flags().StringVar(&f.topic, "topic", "", "topic")
	cmd.Flags().StringVar(&f.activity, "activity", "", "activity type (default Learn Concept)")
	cmd.Flags().StringVar(&f.at, "at", "", `start time, e.g. "2026-10-17 09:00" or "tomorrow 9am"`)
	cmd.Flags().IntVar(&f.minutes, "minutes", 0, "duration in minutes")
	cmd.Flags().StringVar(&f.notes, "notes", "", "notes")
}

func taskAddCmd() *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, a *app.App, owner string, p *engine.Planner) error {
				loc, err := location()
				if err != nil {
					return err
				}
				at, err := parseAt(f.at, a.Now(), loc)
				if err != nil {
					return err
				}
				t, err := p.Tasks.Create(ctx, owner, domain.TaskDraft{
					Subject:         f.subject,
					Topic:           f.topic,
					ActivityType:    domain.ActivityType(f.activity),
					ScheduledAt:     at,
					DurationMinutes: f.minutes,
					Notes:           f.notes,
				})
				if t.ID == "" {
					return err
				}
				return reportWrite(t, err)
			})
		},
	}
	f.bind(cmd)
	_ = cmd.MarkFlagRequired("topic")
	_ = cmd.MarkFlagRequired("at")
	_ = cmd.MarkFlagRequired("minutes")
	return cmd
}

func taskEditCmd() *cobra.Command {
	var f taskFlags
	var completed bool
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, a *app.App, owner string, p *engine.Planner) error {
				t, err := p.Tasks.Get(ctx, owner, args[0])
				if err != nil {
					return err
				}
				flags := cmd.Flags()
				if flags.Changed("subject") {
					t.Subject = f.subject
				}
				if flags.Changed("topic") {
					t.Topic = f.topic
				}
				if flags.Changed("activity") {
					t.ActivityType = domain.ActivityType(f.activity)
				}
				if flags.Changed("minutes") {
					t.DurationMinutes = f.minutes
				}
				if flags.Changed("notes") {
					t.Notes = f.notes
				}
				if flags.Changed("completed") {
					t.Completed = completed
				}
				if flags.Changed("at") {
					loc, err := location()
					if err != nil {
						return err
					}
					if t.ScheduledAt, err = parseAt(f.at, a.Now(), loc); err != nil {
						return err
					}
				}
				updated, err := p.Tasks.Update(ctx, owner, t)
				if updated.ID == "" {
					return err
				}
				return reportWrite(updated, err)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().BoolVar(&completed, "completed", false, "completion state")
	return cmd
}

func taskToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <id>",
		Short: "Flip a task between done and not done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, _ *app.App, owner string, p *engine.Planner) error {
				t, err := p.Tasks.ToggleCompletion(ctx, owner, args[0])
				if t.ID == "" {
					return err
				}
				return reportWrite(t, err)
			})
		},
	}
}

func taskRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, _ *app.App, owner string, p *engine.Planner) error {
				if err := refreshWarning(p.Tasks.Delete(ctx, owner, args[0])); err != nil {
					return err
				}
				fmt.Println("Deleted", args[0])
				return nil
			})
		},
	}
}

func taskAgendaCmd() *cobra.Command {
	var includeDone bool
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "Tasks grouped by day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, _ *app.App, owner string, p *engine.Planner) error {
				loc, err := location()
				if err != nil {
					return err
				}
				tasks, err := p.Tasks.List(ctx, owner)
				if err != nil {
					return err
				}
				if !includeDone {
					tasks, _ = views.PartitionByCompletion(tasks)
				}
				groups := views.GroupByCalendarDay(tasks, loc)
				days := views.SortedDays(groups)
				if viper.GetBool("json") {
					out := make([]map[string]any, 0, len(days))
					for _, d := range days {
						out = append(out, map[string]any{"date": d, "planned_minutes": views.TotalMinutes(groups[d]), "tasks": groups[d]})
					}
					return printJSON(out)
				}
				tw := newTable("Day", "Time", "Subject", "Topic", "Minutes")
				for _, d := range days {
					tw.AppendSeparator()
					for i, t := range groups[d] {
						day := ""
						if i == 0 {
							day = fmt.Sprintf("%s (%d min)", d, views.TotalMinutes(groups[d]))
						}
						tw.AppendRow(table.Row{day, t.ScheduledAt.In(loc).Format("15:04"), t.Subject, t.Topic, t.DurationMinutes})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&includeDone, "include-done", false, "include completed tasks")
	return cmd
}

func taskScheduleCmd() *cobra.Command {
	var subject, start, activity, text string
	var files, items []string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Create back-to-back tasks from suggestions",
		Long: `Suggestions come from --item "Topic=45" flags, or from analyzing syllabus
text (--text) or files (--file) with the configured extraction provider.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, a *app.App, owner string, p *engine.Planner) error {
				loc, err := location()
				if err != nil {
					return err
				}
				at, err := parseAt(start, a.Now(), loc)
				if err != nil {
					return err
				}
				suggestions, err := parseItems(items)
				if err != nil {
					return err
				}
				if len(suggestions) == 0 {
					in, err := syllabusInput(text, files)
					if err != nil {
						return err
					}
					if suggestions, err = a.Extractor.AnalyzeSyllabus(ctx, in); err != nil {
						return err
					}
					if len(suggestions) == 0 {
						return fmt.Errorf("no study tasks were found in the syllabus")
					}
					if err := confirm(fmt.Sprintf("Schedule %d suggested tasks starting %s?", len(suggestions), at.Format("Mon 2 Jan 15:04"))); err != nil {
						return err
					}
				}
				tasks, err := p.Tasks.ScheduleSuggested(ctx, owner, subject, at, domain.ActivityType(activity), suggestions)
				if len(tasks) == 0 {
					return err
				}
				var partial *domain.PartialWriteError
				if errors.As(err, &partial) {
					if perr := printTasks(tasks); perr != nil {
						return perr
					}
					return fmt.Errorf("scheduled %d of %d tasks: %w", partial.Index, len(suggestions), err)
				}
				if err := refreshWarning(err); err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject for every task")
	cmd.Flags().StringVar(&start, "start", "", "start of the first task")
	cmd.Flags().StringVar(&activity, "activity", "", "activity type")
	cmd.Flags().StringVar(&text, "text", "", "syllabus text to analyze")
	cmd.Flags().StringSliceVar(&files, "file", nil, "syllabus image or PDF to analyze")
	cmd.Flags().StringArrayVar(&items, "item", nil, `suggestion as "Topic=minutes"`)
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func parseItems(items []string) ([]domain.SuggestedTask, error) {
	out := make([]domain.SuggestedTask, 0, len(items))
	for i, item := range items {
		topic, mins, ok := strings.Cut(item, "=")
		n, err := strconv.Atoi(strings.TrimSpace(mins))
		if !ok || err != nil {
			return nil, domain.Invalid(fmt.Sprintf("item[%d]", i), `must look like "Topic=45"`)
		}
		out = append(out, domain.SuggestedTask{Topic: strings.TrimSpace(topic), DurationMinutes: n})
	}
	return out, nil
}

func syllabusInput(text string, paths []string) (extract.SyllabusInput, error) {
	files, err := readFiles(paths)
	if err != nil {
		return extract.SyllabusInput{}, err
	}
	return extract.SyllabusInput{Text: text, Files: files}, nil
}
