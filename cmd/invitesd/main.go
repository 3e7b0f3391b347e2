// Command invitesd serves invitation claims and entitlement checks.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-invites/config"
	"github.com/goliatone/go-invites/core"
	sqlstore "github.com/goliatone/go-invites/store/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "invitesd",
		Short:         "Invitation claiming and entitlement service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("INVITES_CONFIG"), "Path to invitesd.yaml")

	load := func() (config.File, error) {
		return config.Load(configPath)
	}
	cmd.AddCommand(newServeCommand(load))
	cmd.AddCommand(newMigrateCommand(load))
	cmd.AddCommand(newInviteCommand(load))
	cmd.AddCommand(newIssueCommand(load))
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newServeCommand(load func() (config.File, error)) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the purge worker",
		Long: `Run the HTTP API and the purge worker.

Caller identity comes from http.identity_header and admin actors from
http.admin_header. Both are plain request headers, so invitesd must sit
behind an auth proxy that strips them from client requests and sets them
itself. Admin routes stay closed until http.admin_header is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, file, migrate)
			if err != nil {
				return err
			}
			defer a.Close()

			api, err := a.httpServer()
			if err != nil {
				return err
			}
			srv := &http.Server{
				Addr:              file.HTTP.Addr,
				Handler:           api.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			group, groupCtx := errgroup.WithContext(ctx)
			group.Go(func() error {
				return a.purgeWorker().Run(groupCtx, func(err error) {
					a.loggers.Purge.Error("purge worker error", "error", err.Error())
				})
			})
			group.Go(func() error {
				a.loggers.HTTP.Info("listening", "addr", file.HTTP.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			group.Go(func() error {
				<-groupCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), file.HTTP.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return group.Wait()
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply pending migrations before serving")
	return cmd
}

func newMigrateCommand(load func() (config.File, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := load()
			if err != nil {
				return err
			}
			client, err := sqlstore.OpenClient(commandContext(cmd), file.Database, true)
			if err != nil {
				return err
			}
			_ = client.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newInviteCommand(load func() (config.File, error)) *cobra.Command {
	var (
		displayName string
		kinds       []string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Create a guest profile with resources and print its invitation token",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := load()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			a, err := newApp(ctx, file, false)
			if err != nil {
				return err
			}
			defer a.Close()

			resourceKinds := make([]core.ResourceKind, 0, len(kinds))
			for _, kind := range kinds {
				resourceKinds = append(resourceKinds, core.ResourceKind(kind))
			}
			result, err := a.bus.Invite(ctx, core.InviteRequest{
				DisplayName:   displayName,
				ResourceKinds: resourceKinds,
				TTL:           ttl,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "profile: %s\n", result.Profile.ID)
			for _, resource := range result.Resources {
				fmt.Fprintf(out, "resource: %s (%s)\n", resource.ResourceID, resource.Kind)
			}
			fmt.Fprintf(out, "token: %s\nexpires: %s\n", result.Token.Token, result.Token.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&displayName, "name", "", "Guest display name")
	cmd.Flags().StringSliceVar(&kinds, "resource", []string{string(core.ResourceKindWardrobe)}, "Resource kinds to pre-create")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to the configured token ttl)")
	return cmd
}

func newIssueCommand(load func() (config.File, error)) *cobra.Command {
	var (
		target string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new invitation token for an existing profile or resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := load()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			a, err := newApp(ctx, file, false)
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := a.bus.IssueToken(ctx, core.IssueTokenRequest{TargetResourceID: target, TTL: ttl})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token: %s\nexpires: %s\n", token.Token, token.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "Profile or resource id the token claims")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to the configured token ttl)")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}
