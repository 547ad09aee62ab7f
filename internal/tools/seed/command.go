package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"go-identity-service/internal/config"
	"go-identity-service/internal/database"
	"go-identity-service/internal/tools/common"
	"go-identity-service/internal/tools/ui"
)

type options struct {
	ci      bool
	timeout time.Duration
	envFile string
}

const defaultDevEmail = "dev@example.com"

func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "seed",
		Short: "Manage local development data",
	}
	root.PersistentFlags().BoolVar(&opts.ci, "ci", false, "machine-readable output, no TUI")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "per-command timeout")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load")

	var applyEmail string
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Create the local development user if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "seed apply", "applied", func(ctx context.Context) ([]string, error) {
				db, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				report, err := database.SeedSync(db, applyEmail)
				if err != nil {
					return nil, err
				}
				if report.Noop {
					return []string{fmt.Sprintf("user %s already present", applyEmail)}, nil
				}
				return []string{fmt.Sprintf("created user %s", report.CreatedUser)}, nil
			})
			return err
		},
	}
	apply.Flags().StringVar(&applyEmail, "email", defaultDevEmail, "email of the development user")
	root.AddCommand(apply)

	var dryEmail string
	dryRun := &cobra.Command{
		Use:   "dry-run",
		Short: "Report what apply would change without writing",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "seed dry-run", "planned", func(ctx context.Context) ([]string, error) {
				db, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				exists, err := database.UserExists(db, dryEmail)
				if err != nil {
					return nil, err
				}
				if exists {
					return []string{fmt.Sprintf("user %s already present, nothing to do", dryEmail)}, nil
				}
				return []string{fmt.Sprintf("would create user %s", dryEmail)}, nil
			})
			return err
		},
	}
	dryRun.Flags().StringVar(&dryEmail, "email", defaultDevEmail, "email of the development user")
	root.AddCommand(dryRun)

	var verifyEmail string
	verify := &cobra.Command{
		Use:   "verify-local-email",
		Short: "Mark a local user's email address as verified",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := run(opts, "seed verify-local-email", "verified", func(ctx context.Context) ([]string, error) {
				db, err := openDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				if err := database.VerifyEmail(db, verifyEmail); err != nil {
					return nil, err
				}
				return []string{fmt.Sprintf("email %s marked verified", verifyEmail)}, nil
			})
			return err
		},
	}
	verify.Flags().StringVar(&verifyEmail, "email", defaultDevEmail, "email of the user to verify")
	root.AddCommand(verify)

	return root
}

func run(opts *options, title, verb string, action func(ctx context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		timeout := opts.timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		details, err := action(ctx)
		common.PrintCIResult(err == nil, title, details, err)
		return details, err
	}
	return ui.Run(title, action)
}

func openDB(envFile string) (*gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return database.Open(cfg)
}
