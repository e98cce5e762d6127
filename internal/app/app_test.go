package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyplan/internal/config"
	"studyplan/internal/domain"
	"studyplan/internal/engine"
	"studyplan/internal/extract"
	"studyplan/internal/identity"
)

func openTestApp(t *testing.T, mutate func(*config.Config)) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BcryptCost = 4
	if mutate != nil {
		mutate(cfg)
	}
	dir := t.TempDir()
	a, err := Open(context.Background(), cfg, Options{Workspace: dir, DBPath: filepath.Join(dir, "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestOpenDefaults(t *testing.T) {
	a := openTestApp(t, nil)
	assert.NotNil(t, a.Events)
	assert.Equal(t, engine.StrategyLive, a.Strategy())
	_, err := a.Extractor.SuggestTopics(context.Background(), "Physics", []string{"Optics"})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	_, isUnconfigured := a.Extractor.(extract.Unconfigured)
	assert.True(t, isUnconfigured)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Sync.Strategy = "push"
	_, err := Open(context.Background(), cfg, Options{Workspace: t.TempDir()})
	assert.Error(t, err)
}

func TestCredentialsRoundTrip(t *testing.T) {
	a := openTestApp(t, nil)
	ctx := context.Background()

	_, _, err := a.Authenticate()
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))

	creds, err := a.Identity.SignUp(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, SaveCredentials(a.Workspace, creds))

	session, loaded, err := a.Authenticate()
	require.NoError(t, err)
	owner, ok := session.Owner()
	assert.True(t, ok)
	assert.Equal(t, creds.Owner, owner)
	assert.Equal(t, "ada@example.com", loaded.Email)

	planner := a.NewPlanner(session, false)
	defer planner.Close()
	task, err := planner.Tasks.Create(ctx, owner, domain.TaskDraft{Topic: "Optics", ScheduledAt: time.Now().Add(time.Hour), DurationMinutes: 30})
	require.NoError(t, err)
	tasks, err := planner.Tasks.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)

	require.NoError(t, ClearCredentials(a.Workspace))
	require.NoError(t, ClearCredentials(a.Workspace))
	_, _, err = a.Authenticate()
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestExpiredCredentials(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	require.NoError(t, SaveCredentials(dir, identity.Credentials{Token: "t", Owner: "o", ExpiresAt: now.Add(-time.Minute)}))
	_, err := LoadCredentials(dir, now)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}
