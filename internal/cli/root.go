// Package cli implements the specsbiz operator command line.
package cli

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"specsbiz/backend/internal/config"
	"specsbiz/backend/internal/domain"
	"specsbiz/backend/internal/ledger"
	"specsbiz/backend/internal/logging"
	"specsbiz/backend/internal/service"
	"specsbiz/backend/internal/store/backend"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Database    string
	DatabaseURL string
	Owner       string
	Format      string // "text" | "json" | "yaml"
	Timezone    string
}

var ValidFormats = []string{"text", "json", "yaml"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "specsbiz",
		Short: "SpecsBiz operator tools",
		Long:  "Inspect and export a SpecsBiz shop's ledger, manage accounts and migrate the store.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Database, "db", "specsbiz.db", "path to the local SQLite database")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", "", "Postgres URL; overrides --db")
	cmd.PersistentFlags().StringVar(&opts.Owner, "owner", "local", "owner namespace to operate on")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.Timezone, "tz", "Asia/Dhaka", "shop time zone for dates")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewLedgerCommand(opts))
	cmd.AddCommand(NewSummaryCommand(opts))
	cmd.AddCommand(NewUserCommand(opts))

	return cmd
}

func (o *RootOptions) config() config.Config {
	cfg := config.Config{SQLitePath: o.Database, DatabaseURL: o.DatabaseURL, StoreMode: config.StoreModeLocal}
	if o.DatabaseURL != "" {
		cfg.StoreMode = config.StoreModeCloud
	}
	return cfg
}

// session is an opened store plus a service acting as the namespace owner.
type session struct {
	backend backend.Backend
	service *service.Service
	ctx     context.Context
	loc     *time.Location
}

func (o *RootOptions) open(ctx context.Context) (*session, error) {
	loc, err := ledger.LoadLocation(o.Timezone)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid time zone", err)
	}
	b, err := backend.Open(ctx, o.config())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	logger := logging.New("warn", "text")
	svc := service.New(b.Repo, service.Options{Location: loc, Logger: logger, AsyncWorkers: 1})
	actor := domain.Actor{Username: "cli", Role: domain.RoleOwner, OwnerID: o.Owner}
	return &session{backend: b, service: svc, ctx: service.WithActor(ctx, actor), loc: loc}, nil
}

func (s *session) Close() {
	s.service.Close()
	if err := s.backend.Close(); err != nil {
		logrus.WithError(err).Warn("close store")
	}
}
