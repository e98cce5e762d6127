package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"studyplan/internal/app"
	"studyplan/internal/engine"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Strikethrough(true)
	panelStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
)

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Next test, today's tasks and progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, _ *app.App, owner string, p *engine.Planner) error {
				loc, err := location()
				if err != nil {
					return err
				}
				d, err := p.Dashboard(ctx, owner, loc)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Println(renderDashboard(d, loc))
				return nil
			})
		},
	}
}

func renderDashboard(d engine.Dashboard, loc *time.Location) string {
	next := mutedStyle.Render("No upcoming tests")
	if d.Upcoming != nil {
		eta := fmt.Sprintf("in %d days", d.DaysUntil)
		switch d.DaysUntil {
		case 0:
			eta = "now"
		case 1:
			eta = "tomorrow"
		}
		next = fmt.Sprintf("%s  %s → %s (%s)", d.Upcoming.TestName, d.Upcoming.StartDate, d.Upcoming.EndDate, eta)
	}

	var today []string
	for _, t := range d.Today {
		line := fmt.Sprintf("%s  %s · %s (%d min)", t.ScheduledAt.In(loc).Format("15:04"), t.Subject, t.Topic, t.DurationMinutes)
		if t.Completed {
			line = doneStyle.Render(line)
		}
		today = append(today, line)
	}
	if len(today) == 0 {
		today = append(today, mutedStyle.Render("Nothing scheduled today"))
	}

	total := d.Completed + d.Incomplete
	percent := 0
	if total > 0 {
		percent = d.Completed * 100 / total
	}
	progress := fmt.Sprintf("%d of %d tasks done (%d%%), %d minutes still planned, %d syllabus topics",
		d.Completed, total, percent, d.PlannedMinutes, d.TopicsInSyllabus)

	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		headingStyle.Render("Next test"), next, "",
		headingStyle.Render("Today"), strings.Join(today, "\n"), "",
		headingStyle.Render("Progress"), progress,
	))
}
