package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"studyplan/internal/app"
	"studyplan/internal/identity"
)

func signupCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return authenticate(cmd.Context(), email, password, func(ctx context.Context, p identity.Provider, email, password string) (identity.Credentials, error) {
				return p.SignUp(ctx, email, password)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return authenticate(cmd.Context(), email, password, func(ctx context.Context, p identity.Provider, email, password string) (identity.Credentials, error) {
				return p.SignIn(ctx, email, password)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func authenticate(ctx context.Context, email, password string, fn func(context.Context, identity.Provider, string, string) (identity.Credentials, error)) error {
	if password == "" {
		password = os.Getenv("STUDYPLAN_PASSWORD")
	}
	if password == "" {
		err := huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&password).
			Run()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
	}
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		creds, err := fn(ctx, a.Identity, email, password)
		if err != nil {
			return err
		}
		if err := app.SaveCredentials(a.Workspace, creds); err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(creds)
		}
		fmt.Printf("Signed in as %s (token valid until %s)\n", creds.Email, creds.ExpiresAt.Local().Format("2 Jan 2006 15:04"))
		return nil
	})
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.ClearCredentials(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				_, creds, err := a.Authenticate()
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"owner": creds.Owner, "email": creds.Email, "expires_at": creds.ExpiresAt})
				}
				fmt.Println(strings.TrimSpace(creds.Email + " (" + creds.Owner + ")"))
				return nil
			})
		},
	}
}
