// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/logging"
)

// NewUserCmd creates the user command group.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	cmd.AddCommand(newUserRegisterCmd())
	cmd.AddCommand(newUserDeleteCmd())
	cmd.AddCommand(newUserForgotPasswordCmd())
	cmd.AddCommand(newUserResetPasswordCmd())

	return cmd
}

// withDeps loads config, wires dependencies, and runs fn.
func withDeps(cmd *cobra.Command, fn func(d *deps) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logging.SetDefault("gatehouse", version, cfg.Log.Format)

	d, err := buildDeps(cmd.Context(), cfg, slog.Default())
	if err != nil {
		return err
	}
	defer d.close()

	return fn(d)
}

func newUserRegisterCmd() *cobra.Command {
	var firstName, lastName, email, password string

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create a new user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(d *deps) error {
				id, err := d.manager.RegisterUser(cmd.Context(), args[0],
					firstName, lastName, email, password, password)
				if err != nil {
					return err
				}
				cmd.Printf("registered %s (%s)\n", args[0], id.String())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newUserDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete a user account and its sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(d *deps) error {
				if err := d.manager.DeleteUser(cmd.Context(), args[0]); err != nil {
					return err
				}
				cmd.Printf("deleted %s\n", args[0])
				return nil
			})
		},
	}
}

func newUserForgotPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password <email>",
		Short: "Issue a password reset token for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(d *deps) error {
				if err := d.manager.ForgotPassword(cmd.Context(), args[0]); err != nil {
					return err
				}
				cmd.Printf("reset token issued for %s\n", args[0])
				return nil
			})
		},
	}
}

func newUserResetPasswordCmd() *cobra.Command {
	var token, password string

	cmd := &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Redeem a reset token and set a new password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(d *deps) error {
				err := d.manager.CompletePasswordReset(cmd.Context(), args[0],
					token, password, password)
				if err != nil {
					return err
				}
				cmd.Printf("password updated for %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "reset token from the notification")
	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
