package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"studyplan/internal/app"
	"studyplan/internal/domain"
	"studyplan/internal/engine"
	"studyplan/internal/extract"
	"studyplan/internal/views"
)

func testCmd() *cobra.Command {
	test := &cobra.Command{Use: "test", Short: "Manage tests and exams"}
	test.AddCommand(testListCmd())
	test.AddCommand(testAddCmd())
	test.AddCommand(testRemoveCmd())
	test.AddCommand(testClearCmd())
	test.AddCommand(testNextCmd())
	test.AddCommand(testImportCmd())
	return test
}

func testListCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tests ordered by start date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, a *app.App, owner string, p *engine.Planner) error {
				tests, err := p.Tests.List(ctx, owner)
				if err != nil {
					return err
				}
				upcoming, ended := views.PartitionByTestEnd(tests, a.Now())
				switch state {
				case "":
				case "upcoming":
					tests = upcoming
				case "ended":
					tests = ended
				default:
					return domain.Invalid("state", "must be upcoming or ended")
				}
				return printTests(tests)
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "upcoming or ended")
	return cmd
}

func printTests(tests []domain.Test) error {
	if viper.GetBool("json") {
		return printJSON(tests)
	}
	tw := newTable("ID", "Name", "Start", "End", "Syllabus")
	for _, t := range tests {
		tw.AppendRow(table.Row{t.ID, t.TestName, t.StartDate, t.EndDate, t.Syllabus})
	}
	tw.Render()
	return nil
}

func testAddCmd() *cobra.Command {
	var d domain.TestDraft
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a test",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, _ *app.App, owner string, p *engine.Planner) error {
				if d.EndDate == "" {
					d.EndDate = d.StartDate
				}
				t, err := p.Tests.Create(ctx, owner, d)
				if t.ID == "" {
					return err
				}
				return reportWrite(t, err)
			})
		},
	}
	cmd.Flags().StringVar(&d.TestName, "name", "", "test name")
	cmd.Flags().StringVar(&d.StartDate, "start", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&d.EndDate, "end", "", "last day (YYYY-MM-DD, defaults to --start)")
	cmd.Flags().StringVar(&d.Syllabus, "syllabus", "", "what the test covers")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func testRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, _ *app.App, owner string, p *engine.Planner) error {
				if err := refreshWarning(p.Tests.Delete(ctx, owner, args[0])); err != nil {
					return err
				}
				fmt.Println("Deleted", args[0])
				return nil
			})
		},
	}
}

func testClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every test",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := confirm("Delete every test? This cannot be undone."); err != nil {
				return err
			}
			return withPlanner(cmd.Context(), func(ctx context.Context, _ *app.App, owner string, p *engine.Planner) error {
				n, err := p.Tests.ClearAll(ctx, owner)
				if err := refreshWarning(err); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]int{"deleted": n})
				}
				fmt.Printf("Deleted %d tests\n", n)
				return nil
			})
		},
	}
}

func testNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Show the next test that has not ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, a *app.App, owner string, p *engine.Planner) error {
				t, ok, err := p.Tests.Upcoming(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					out := map[string]any{"found": ok}
					if ok {
						out["test"] = t
						out["days_until"] = views.DaysUntil(t, a.Now())
					}
					return printJSON(out)
				}
				if !ok {
					fmt.Println("No upcoming tests")
					return nil
				}
				fmt.Printf("%s starts %s (%s)\n", t.TestName, t.StartDate, daysLabel(t, a.Now()))
				return nil
			})
		},
	}
}

func daysLabel(t domain.Test, now time.Time) string {
	today := now.Format(domain.DateLayout)
	switch n := views.DaysUntil(t, now); {
	case t.StartDate < today:
		return "in progress"
	case n == 0:
		return "today"
	case n == 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", n)
	}
}

func testImportCmd() *cobra.Command {
	var files []string
	var fromJSON, today string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import tests from datesheet images/PDFs or a JSON file",
		Long: `With --file, the datesheet is read by the extraction provider and the
drafts are shown for confirmation. With --from-json, a JSON array of
{"test_name","start_date","end_date","syllabus"} objects is imported as is.
Either every test is stored or none is.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, a *app.App, owner string, p *engine.Planner) error {
				var drafts []domain.TestDraft
				switch {
				case fromJSON != "":
					data, err := os.ReadFile(fromJSON)
					if err != nil {
						return err
					}
					if err := json.Unmarshal(data, &drafts); err != nil {
						return fmt.Errorf("parse %s: %w", fromJSON, err)
					}
				case len(files) > 0:
					in, err := readFiles(files)
					if err != nil {
						return err
					}
					ref := a.Now()
					if today != "" {
						loc, err := location()
						if err != nil {
							return err
						}
						if ref, err = parseAt(today, a.Now(), loc); err != nil {
							return err
						}
					}
					if drafts, err = a.Extractor.AnalyzeDatesheet(ctx, in, ref); err != nil {
						return err
					}
					if len(drafts) == 0 {
						return fmt.Errorf("no tests were found in the datesheet")
					}
					if !viper.GetBool("json") {
						printDrafts(drafts)
					}
					if err := confirm(fmt.Sprintf("Import %d tests?", len(drafts))); err != nil {
						return err
					}
				default:
					return domain.Invalid("file", "pass --file or --from-json")
				}
				tests, err := p.Tests.ImportBatch(ctx, owner, drafts)
				if len(tests) == 0 {
					return err
				}
				if err != nil {
					return reportWrite(tests, err)
				}
				return printTests(tests)
			})
		},
	}
	cmd.Flags().StringSliceVar(&files, "file", nil, "datesheet image or PDF")
	cmd.Flags().StringVar(&fromJSON, "from-json", "", "JSON file of test drafts")
	cmd.Flags().StringVar(&today, "today", "", "reference date for inferring years")
	return cmd
}

func printDrafts(drafts []domain.TestDraft) {
	tw := newTable("Name", "Start", "End", "Syllabus")
	for _, d := range drafts {
		tw.AppendRow(table.Row{d.TestName, d.StartDate, d.EndDate, d.Syllabus})
	}
	tw.Render()
}

func readFiles(paths []string) ([]extract.File, error) {
	files := make([]extract.File, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		files = append(files, extract.File{Name: path, MediaType: extract.MediaTypeForName(path), Data: data})
	}
	return files, nil
}
