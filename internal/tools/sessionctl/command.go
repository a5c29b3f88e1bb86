package sessionctl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/social-realtime-backend/internal/database"
	"github.com/sandeepkv93/social-realtime-backend/internal/di"
	"github.com/sandeepkv93/social-realtime-backend/internal/domain"
	"github.com/sandeepkv93/social-realtime-backend/internal/tools/common"
	"github.com/sandeepkv93/social-realtime-backend/internal/tools/ui"
)

type options struct {
	envFile string
	ci      bool
	timeout time.Duration
}

type action func(context.Context) ([]string, error)

var initializeCLI = di.InitializeCLI

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "sessionctl",
		Short:        "Operate the session store: schema, demo data, stats and cleanup",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file applied before loading config")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall command timeout")
	cmd.AddCommand(
		newMigrateCommand(opts),
		newSeedCommand(opts),
		newStatsCommand(opts),
		newCleanupCommand(opts),
	)
	return cmd
}

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "sessionctl migrate", migrateAction)
		},
	}
}

func newSeedCommand(opts *options) *cobra.Command {
	var (
		emails   []string
		password string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo users who are friends of each other, each with one post",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "sessionctl seed", func(cli *di.CLI) action {
				return seedAction(cli, emails, password)
			})
		},
	}
	cmd.Flags().StringSliceVar(&emails, "email", []string{"alice@example.com", "bob@example.com"}, "demo user emails")
	cmd.Flags().StringVar(&password, "password", "", "password for every demo user")
	return cmd
}

func newStatsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize sessions across all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "sessionctl stats", statsAction)
		},
	}
}

func newCleanupCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired sessions once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(opts, "sessionctl cleanup", cleanupAction)
		},
	}
}

func execute(opts *options, title string, build func(*di.CLI) action) error {
	cli, err := loadCLI(opts.envFile)
	if err != nil {
		if opts.ci {
			common.PrintCIResult(false, title, nil, err)
		}
		return err
	}
	defer closeDB(cli)

	details, err := run(opts, title, build(cli))
	if opts.ci {
		common.PrintCIResult(err == nil, title, details, err)
	}
	return err
}

func run(opts *options, title string, fn action) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, opts.timeout, ui.Action(fn))
}

func loadCLI(envFile string) (*di.CLI, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	return initializeCLI()
}

func closeDB(cli *di.CLI) {
	if cli == nil || cli.DB == nil {
		return
	}
	if sqlDB, err := cli.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func migrateAction(cli *di.CLI) action {
	return func(ctx context.Context) ([]string, error) {
		if err := database.Migrate(cli.DB.WithContext(ctx)); err != nil {
			return nil, err
		}
		return []string{"schema up to date"}, nil
	}
}

func seedAction(cli *di.CLI, emails []string, password string) action {
	return func(ctx context.Context) ([]string, error) {
		if len(password) < 8 {
			return nil, errors.New("--password must be at least 8 characters")
		}
		hash, err := cli.Hasher.Hash([]byte(password))
		if err != nil {
			return nil, err
		}
		users := make([]database.SeedUser, 0, len(emails))
		for _, email := range emails {
			name, _, _ := strings.Cut(email, "@")
			users = append(users, database.SeedUser{Email: email, Name: name, PasswordHash: hash, Role: domain.RoleUser})
		}
		report, err := database.SeedDemo(cli.DB.WithContext(ctx), users)
		if err != nil {
			return nil, err
		}
		if report.Noop {
			return []string{"nothing to seed"}, nil
		}
		return []string{
			fmt.Sprintf("users created=%d", report.CreatedUsers),
			fmt.Sprintf("friendships created=%d", report.CreatedFriendships),
			fmt.Sprintf("posts created=%d", report.CreatedPosts),
		}, nil
	}
}

func statsAction(cli *di.CLI) action {
	return func(ctx context.Context) ([]string, error) {
		stats, err := cli.Sessions.GetSessionStats(ctx)
		if err != nil {
			return nil, err
		}
		return []string{
			fmt.Sprintf("users_with_sessions=%d", stats.UsersWithSessions),
			fmt.Sprintf("total=%d", stats.TotalSessions),
			fmt.Sprintf("active=%d", stats.ActiveSessions),
			fmt.Sprintf("idle=%d", stats.IdleSessions),
			fmt.Sprintf("revoked=%d", stats.RevokedSessions),
			fmt.Sprintf("expired=%d", stats.ExpiredSessions),
		}, nil
	}
}

func cleanupAction(cli *di.CLI) action {
	return func(ctx context.Context) ([]string, error) {
		removed, err := cli.Cleanup.RunOnce(ctx)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("expired sessions removed=%d", removed)}, nil
	}
}
