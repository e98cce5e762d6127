package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"studyplan/internal/app"
	"studyplan/internal/config"
	"studyplan/internal/db"
	"studyplan/internal/domain"
	"studyplan/internal/engine"
	"studyplan/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "sp",
	Short: "Studyplan CLI",
	Long: `Studyplan keeps a student's study tasks, upcoming tests and syllabus topics.
- Tasks: scheduled study sessions (subject, topic, activity, duration) you tick off when done.
- Tests: exams with a start and end date; 'sp test next' shows the closest one that has not ended.
- Syllabus: the topic list used to suggest what to study for a subject.
- Analyze: syllabus text, photos or PDFs can be turned into suggested tasks, and datesheets into tests.
- Sign in once with 'sp login'; the token is kept in the workspace .studyplan directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load()
	viper.SetEnvPrefix("STUDYPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("yes", false, "skip confirmation prompts")
	rootCmd.PersistentFlags().String("tz", "", "IANA time zone for dates (default: local)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("yes", rootCmd.PersistentFlags().Lookup("yes"))
	_ = viper.BindPFlag("tz", rootCmd.PersistentFlags().Lookup("tz"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(signupCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(testCmd())
	rootCmd.AddCommand(syllabusCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default studyplan.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s. Set auth.jwt_secret (or STUDYPLAN_AUTH_JWT_SECRET) before signing up.\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every committed change to your tasks, tests and syllabus, newest first.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlanner(cmd.Context(), func(ctx context.Context, a *app.App, owner string, _ *engine.Planner) error {
				if a.Events == nil {
					return fmt.Errorf("event log: %w", domain.ErrNotConfigured)
				}
				items, err := a.Events.LatestEvents(ctx, n, 0, owner)
				if err != nil {
					return err
				}
				if evtType != "" {
					kept := items[:0]
					for _, e := range items {
						if e.Type == evtType {
							kept = append(kept, e)
						}
					}
					items = kept
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "When", "Type", "Entity")
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, strings.TrimSpace(e.EntityKind + " " + e.EntityID)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

// --- helpers ---

// loadConfig reads studyplan.yml and applies STUDYPLAN_* overrides.
func loadConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *config.Config) {
	setString := func(key string, dst *string) {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}
	setString("store.backend", &cfg.Store.Backend)
	setString("store.mongo_uri", &cfg.Store.MongoURI)
	setString("store.mongo_database", &cfg.Store.MongoDatabase)
	setString("sync.strategy", &cfg.Sync.Strategy)
	setString("auth.jwt_secret", &cfg.Auth.JWTSecret)
	setString("extract.api_key", &cfg.Extract.APIKey)
	setString("extract.model", &cfg.Extract.Model)
	setString("server.addr", &cfg.Server.Addr)
	setString("log.file", &cfg.Log.File)
	if cfg.Extract.APIKey == "" {
		cfg.Extract.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
}

func logOptions(cfg *config.Config, stderr bool) logging.Options {
	return logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Stderr:     stderr,
	}
}

func openApp(ctx context.Context) (*app.App, error) {
	workspace := viper.GetString("workspace")
	cfg, err := loadConfig(workspace)
	if err != nil {
		return nil, err
	}
	logger, closer := logging.New("sp: ", logOptions(cfg, false))
	a, err := app.Open(ctx, cfg, app.Options{Workspace: workspace, Logger: logger})
	if err != nil {
		closer.Close()
		return nil, err
	}
	a.AddCloser(closer)
	return a, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// withPlanner runs fn for the signed-in owner with a fresh planner.
func withPlanner(ctx context.Context, fn func(context.Context, *app.App, string, *engine.Planner) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		session, creds, err := a.Authenticate()
		if err != nil {
			return err
		}
		p := a.NewPlanner(session, false)
		defer p.Close()
		return fn(ctx, a, creds.Owner, p)
	})
}

// reportWrite prints a committed record even when the follow-up refresh failed.
func reportWrite(v any, err error) error {
	if err := refreshWarning(err); err != nil {
		return err
	}
	return printJSONOrValue(v)
}

// refreshWarning prints a warning for a committed write whose refresh failed
// and returns any other error unchanged.
func refreshWarning(err error) error {
	if err == nil {
		return nil
	}
	if domain.IsRefresh(err) {
		fmt.Fprintln(os.Stderr, "warning: saved, but the list could not be refreshed:", err)
		return nil
	}
	return err
}

func printJSONOrValue(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row(headers))
	return tw
}

func location() (*time.Location, error) {
	tz := viper.GetString("tz")
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q", tz)
	}
	return loc, nil
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04"}

// parseAt accepts RFC 3339, "YYYY-MM-DD HH:MM" or English phrases such as
// "tomorrow 9am", resolved relative to now in loc.
func parseAt(text string, now time.Time, loc *time.Location) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, domain.Invalid("at", "is required")
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, text, loc); err == nil {
			return t, nil
		}
	}
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, now.In(loc))
	if err != nil {
		return time.Time{}, domain.Invalid("at", err.Error())
	}
	if r == nil {
		return time.Time{}, domain.Invalid("at", fmt.Sprintf("could not understand %q", text))
	}
	return r.Time, nil
}

var errAborted = errors.New("aborted")

// confirm asks before destructive actions unless --yes is set.
func confirm(title string) error {
	if viper.GetBool("yes") {
		return nil
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return fmt.Errorf("confirmation failed (use --yes in scripts): %w", err)
	}
	if !ok {
		return errAborted
	}
	return nil
}
