package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/and161185/arcadia/internal/app"
)

func newRegisterCmd(deps Deps) *cobra.Command {
	var email, username, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, deps, func(ctx context.Context, rt *runtime) error {
				acc, err := rt.arcade.Register(ctx, email, username, password)
				if err != nil {
					return err
				}
				printf(cmd, "registered %s (%s) with %d tokens\n", acc.Username, acc.ID, acc.Tokens)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&username, "username", "", "public username")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLoginCmd(deps Deps) *cobra.Command {
	var email, password string
	var client app.ClientInfo
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, deps, func(ctx context.Context, rt *runtime) error {
				acc, tok, err := rt.arcade.Login(ctx, email, password, client)
				if err != nil {
					return err
				}
				claims, err := rt.tokens.Verify(tok)
				if err != nil {
					return err
				}
				if err := saveToken(tokenFile{AccessToken: tok, Username: acc.Username, ExpiresAt: claims.ExpiresAt}); err != nil {
					return fmt.Errorf("save session: %w", err)
				}
				printf(cmd, "logged in as %s, %d tokens\n", acc.Username, acc.Tokens)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&client.UserAgent, "user-agent", "arcadia-cli/"+version, "client user agent")
	cmd.Flags().StringVar(&client.IP, "ip", "127.0.0.1", "client address")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newLogoutCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, deps, func(ctx context.Context, rt *runtime, tok string) error {
				if err := rt.arcade.Logout(ctx, tok); err != nil {
					return err
				}
				if err := removeToken(); err != nil {
					return err
				}
				printf(cmd, "logged out\n")
				return nil
			})
		},
	}
}

func newWhoamiCmd(deps Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, deps, func(ctx context.Context, rt *runtime, tok string) error {
				acc, err := rt.arcade.Whoami(ctx, tok)
				if err != nil {
					return err
				}
				sub := "none"
				if acc.HasActiveSubscription(rt.now()) {
					sub = "active"
				}
				printf(cmd, "username:     %s\n", acc.Username)
				printf(cmd, "email:        %s\n", acc.Email)
				printf(cmd, "tokens:       %d\n", acc.Tokens)
				printf(cmd, "subscription: %s\n", sub)
				return nil
			})
		},
	}
}

func newPasswdCmd(deps Deps) *cobra.Command {
	var oldPassword, newPassword string
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the password of the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, deps, func(ctx context.Context, rt *runtime, tok string) error {
				if err := rt.arcade.ChangePassword(ctx, tok, oldPassword, newPassword); err != nil {
					return err
				}
				printf(cmd, "password changed\n")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&oldPassword, "old", "", "current password")
	cmd.Flags().StringVar(&newPassword, "new", "", "new password")
	_ = cmd.MarkFlagRequired("old")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}
