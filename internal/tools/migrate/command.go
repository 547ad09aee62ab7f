package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"go-identity-service/internal/config"
	"go-identity-service/internal/database"
	"go-identity-service/internal/domain"
	"go-identity-service/internal/tools/common"
	"go-identity-service/internal/tools/ui"
)

type options struct {
	ci      bool
	timeout time.Duration
	envFile string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database schema migrations",
	}
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "machine-readable output, no TUI")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-command timeout")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load")

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "migrate up", "applied", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				if err := database.Migrate(db); err != nil {
					return nil, err
				}
				return tableReport(db, "present"), nil
			})
			return err
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which tables exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "migrate status", "checked", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				return tableReport(db, ""), nil
			})
			return err
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "plan",
		Short: "List tables that would be created",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "migrate plan", "planned", func(ctx context.Context) ([]string, error) {
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				var pending []string
				for name, model := range migratedModels() {
					if !db.Migrator().HasTable(model) {
						pending = append(pending, "create "+name)
					}
				}
				if len(pending) == 0 {
					pending = []string{"nothing to do"}
				}
				return pending, nil
			})
			return err
		},
	})
	return root
}

func run(opts *options, title, verb string, action func(ctx context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
		defer cancel()
		details, err := action(ctx)
		common.PrintCIResult(err == nil, title, details, err)
		return details, err
	}
	return ui.Run(title, action)
}

func loadConfigDB(envFile string) (*config.Config, *gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, nil, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func migratedModels() map[string]any {
	return map[string]any{
		"users":                       &domain.User{},
		"login_sessions":              &domain.LoginSession{},
		"signup_sessions":             &domain.SignupSession{},
		"password_reset_sessions":     &domain.PasswordResetSession{},
		"email_verification_sessions": &domain.EmailVerificationSession{},
		"account_link_sessions":       &domain.AccountLinkSession{},
		"external_identities":         &domain.ExternalIdentity{},
	}
}

func tableReport(db *gorm.DB, suffix string) []string {
	var out []string
	for name, model := range migratedModels() {
		state := "missing"
		if db.Migrator().HasTable(model) {
			state = "ok"
		}
		line := fmt.Sprintf("%s: %s", name, state)
		if suffix != "" {
			line = fmt.Sprintf("%s (%s)", line, suffix)
		}
		out = append(out, line)
	}
	return out
}
