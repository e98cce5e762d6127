package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"studyplan/internal/db"
	"studyplan/internal/domain"
	"studyplan/internal/identity"
)

const credentialsFile = "session.json"

func credentialsPath(workspace string) string {
	return filepath.Join(db.StateDir(workspace), credentialsFile)
}

// SaveCredentials stores the signed-in token for later CLI invocations.
func SaveCredentials(workspace string, creds identity.Credentials) error {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return err
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(credentialsPath(workspace), data, 0o600)
}

// LoadCredentials returns ErrUnauthorized when nobody is signed in or the
// stored token has expired.
func LoadCredentials(workspace string, now time.Time) (identity.Credentials, error) {
	data, err := os.ReadFile(credentialsPath(workspace))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return identity.Credentials{}, fmt.Errorf("not signed in; run sp login: %w", domain.ErrUnauthorized)
		}
		return identity.Credentials{}, err
	}
	var creds identity.Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return identity.Credentials{}, fmt.Errorf("corrupt session file %s: %w", credentialsPath(workspace), err)
	}
	if !creds.ExpiresAt.IsZero() && !now.Before(creds.ExpiresAt) {
		return identity.Credentials{}, fmt.Errorf("session expired; run sp login: %w", domain.ErrUnauthorized)
	}
	return creds, nil
}

// ClearCredentials signs the CLI out. Clearing twice is not an error.
func ClearCredentials(workspace string) error {
	err := os.Remove(credentialsPath(workspace))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Authenticate verifies the stored token and returns a signed-in session.
func (a *App) Authenticate() (*identity.Session, identity.Credentials, error) {
	creds, err := LoadCredentials(a.Workspace, a.Now())
	if err != nil {
		return nil, identity.Credentials{}, err
	}
	owner, err := a.Identity.Verify(creds.Token)
	if err != nil {
		return nil, identity.Credentials{}, err
	}
	session := identity.NewSession()
	session.SignIn(owner)
	return session, creds, nil
}
