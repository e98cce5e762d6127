package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"studyplan/internal/app"
	"studyplan/internal/engine"
)

func syllabusCmd() *cobra.Command {
	syl := &cobra.Command{Use: "syllabus", Short: "Syllabus topics and analysis"}
	syl.AddCommand(syllabusShowCmd())
	syl.AddCommand(syllabusSetCmd())
	syl.AddCommand(syllabusAnalyzeCmd())
	syl.AddCommand(syllabusSuggestCmd())
	return syl
}

func syllabusShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show saved topics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, _ *app.App, owner string, p *engine.Planner) error {
				syl, _, err := p.Syllabus.Get(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(syl)
				}
				if len(syl.Topics) == 0 {
					fmt.Println("No topics saved; add some with sp syllabus set")
					return nil
				}
				for _, t := range syl.Topics {
					fmt.Println("-", t)
				}
				return nil
			})
		},
	}
}

func syllabusSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <topic>...",
		Short: "Replace the saved topics",
		Long:  "Topics are trimmed and de-duplicated ignoring case. A single comma-separated argument is split.",
		RunE: func(cmd *cobra.Command, args []string) error {
			topics := args
			if len(args) == 1 && strings.Contains(args[0], ",") {
				topics = strings.Split(args[0], ",")
			}
			return withPlanner(cmd.Context(), func(ctx context.Context, _ *app.App, owner string, p *engine.Planner) error {
				syl, err := p.Syllabus.SetTopics(ctx, owner, topics)
				if syl.Owner == "" {
					return err
				}
				return reportWrite(syl, err)
			})
		},
	}
}

func syllabusAnalyzeCmd() *cobra.Command {
	var text string
	var files []string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Suggest study tasks from syllabus text, images or PDFs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, _, err := a.Authenticate(); err != nil {
					return err
				}
				in, err := syllabusInput(text, files)
				if err != nil {
					return err
				}
				out, err := a.Extractor.AnalyzeSyllabus(ctx, in)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				tw := newTable("Topic", "Minutes")
				for _, s := range out {
					tw.AppendRow(table.Row{s.Topic, s.DurationMinutes})
				}
				tw.Render()
				fmt.Println(`Schedule them with: sp task schedule --start "tomorrow 9am" --item "Topic=45" ...`)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "syllabus text")
	cmd.Flags().StringSliceVar(&files, "file", nil, "syllabus image or PDF")
	return cmd
}

func syllabusSuggestCmd() *cobra.Command {
	var subject string
	var topics []string
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Pick the saved topics that belong to a subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, a *app.App, owner string, p *engine.Planner) error {
				known := engine.CleanTopics(topics)
				if len(known) == 0 {
					syl, _, err := p.Syllabus.Get(ctx, owner)
					if err != nil {
						return err
					}
					known = syl.Topics
				}
				out, err := a.Extractor.SuggestTopics(ctx, subject, known)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				if len(out) == 0 {
					fmt.Printf("No saved topics match %s\n", subject)
					return nil
				}
				for _, t := range out {
					fmt.Println("-", t)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject name")
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "topics to choose from (default: saved syllabus)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
