package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charlesng35/keyward/internal/auditctx"
	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/services"
	"github.com/charlesng35/keyward/internal/store"
	"github.com/charlesng35/keyward/pkg/logger"
)

func newSeedCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Apply migrations and insert the default roles and permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync() // best effort

			db, err := initialiseDatabase(cfg)
			if err != nil {
				return err
			}
			closeDatabase(db, log)

			fmt.Fprintln(cmd.OutOrStdout(), "database migrated and seeded")
			return nil
		},
	}
}

type createUserOptions struct {
	Email     string
	Name      string
	Roles     []string
	Superuser bool
}

func newCreateUserCommand(load configLoader) *cobra.Command {
	opts := createUserOptions{}

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Provision a principal and print a bearer token for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer logger.Sync() // best effort

			db, err := initialiseDatabase(cfg)
			if err != nil {
				return err
			}
			defer closeDatabase(db, log)

			tokens, err := auth.NewJWTService(cfg.Auth.JWTServiceConfig())
			if err != nil {
				return fmt.Errorf("initialise jwt service: %w", err)
			}
			st, err := store.NewGormStore(db)
			if err != nil {
				return err
			}
			audit, err := services.NewAuditService(db)
			if err != nil {
				return err
			}
			users, err := services.NewUserService(st, audit)
			if err != nil {
				return err
			}

			ctx := auditctx.WithActor(cmd.Context(), auditctx.Actor{Method: auditctx.MethodCLI, UserAgent: "keyward/" + version})
			user, err := users.Create(ctx, services.CreateUserInput{
				Email:     opts.Email,
				FullName:  opts.Name,
				RoleNames: opts.Roles,
				Superuser: opts.Superuser,
			})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			token, err := tokens.IssueFor(user)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}

			log.Info("user provisioned", zap.String("user_id", user.ID), zap.Strings("roles", opts.Roles))
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:    %s\n", user.ID)
			fmt.Fprintf(out, "email: %s\n", user.Email)
			fmt.Fprintf(out, "roles: %s\n", strings.Join(opts.Roles, ","))
			fmt.Fprintf(out, "token: %s\n", token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Email, "email", "", "Email address of the new user")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Full name (defaults to the email local part)")
	cmd.Flags().StringSliceVar(&opts.Roles, "role", nil, "Role to grant; repeatable")
	cmd.Flags().BoolVar(&opts.Superuser, "superuser", false, "Mark the user as a superuser")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
