package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/questlore/questpub/pkg/questpub"
	"github.com/questlore/questpub/pkg/questpub/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ServiceFactory opens the service a command runs against. The returned
// cleanup releases database handles.
type ServiceFactory func(ctx context.Context) (questpub.Service, func(), error)

func main() {
	_ = godotenv.Load()

	rootCmd := NewRootCommand(serviceFromEnv)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// serviceFromEnv builds the service from DATABASE_URL, STORAGE_URL and the
// other variables the server reads.
func serviceFromEnv(ctx context.Context) (questpub.Service, func(), error) {
	cfg, err := config.Load(config.WithEnv(), config.WithEventLogging(false))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg.BuildService(ctx)
}

func NewRootCommand(newService ServiceFactory) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "questctl",
		Short: "Quest publication CLI",
		Long: `Quest publication command line interface

Validates, publishes, unpublishes and searches quest documents directly
against the configured record store and artifact storage.

Configuration is read from the environment (DATABASE_URL, STORAGE_URL,
UPLOAD_POLICY, ...) and an optional .env file. Without it, in-memory
backends are used, which is only useful for validate.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringP("user", "u", os.Getenv("QUESTPUB_USER"), "acting user id (default $QUESTPUB_USER)")

	rootCmd.AddCommand(NewValidateCommand(newService))
	rootCmd.AddCommand(NewPublishCommand(newService))
	rootCmd.AddCommand(NewUnpublishCommand(newService))
	rootCmd.AddCommand(NewGetCommand(newService))
	rootCmd.AddCommand(NewSearchCommand(newService))
	rootCmd.AddCommand(NewAuditCommand(newService))

	return rootCmd
}
