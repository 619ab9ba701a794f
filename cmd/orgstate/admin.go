package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/orgstate/internal/adapter/auth"
	"github.com/neomorfeo/orgstate/internal/adapter/sqlite"
	"github.com/neomorfeo/orgstate/internal/domain"
)

var (
	actorID   string
	actorName string
	orgID     string
	role      string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		repo, err := sqlite.New(cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer repo.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "migrations applied to %s\n", cfg.Database.Path)
		return nil
	},
}

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Give an actor access to an organization",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMemberships(func(m *sqlite.Memberships) error {
			if err := m.Grant(cmd.Context(), actorID, orgID, role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %s access to %s\n", actorID, orgID)
			return nil
		})
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Remove an actor's access to an organization",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withMemberships(func(m *sqlite.Memberships) error {
			if err := m.Revoke(cmd.Context(), actorID, orgID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s access to %s\n", actorID, orgID)
			return nil
		})
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for an actor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		token, err := auth.New(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL).
			Issue(domain.Actor{ID: actorID, Name: actorName})
		if err != nil {
			return fmt.Errorf("issuing token: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{grantCmd, revokeCmd, tokenCmd} {
		cmd.Flags().StringVar(&actorID, "actor", "", "Actor ID (token subject)")
		_ = cmd.MarkFlagRequired("actor")
	}
	for _, cmd := range []*cobra.Command{grantCmd, revokeCmd} {
		cmd.Flags().StringVar(&orgID, "org", "", "Organization ID")
		_ = cmd.MarkFlagRequired("org")
	}
	grantCmd.Flags().StringVar(&role, "role", "member", "Membership role")
	tokenCmd.Flags().StringVar(&actorName, "name", "", "Display name carried in the token")
}

func withMemberships(fn func(*sqlite.Memberships) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repo, err := sqlite.New(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer repo.Close()

	return fn(sqlite.NewMemberships(repo.DB()))
}
