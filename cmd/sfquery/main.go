// Command sfquery runs queries and record writes against an org from the
// command line.
//
// Credentials come from SFORCE_* environment variables, optionally loaded
// from a .env file:
//
//	SFORCE_USERNAME=user@example.com
//	SFORCE_PASSWORD=secret
//	SFORCE_SECURITY_TOKEN=TOKEN
//	SFORCE_LOGIN_URL=https://test.salesforce.com
//
// Usage:
//
//	sfquery query "SELECT Id, Name FROM Account"
//	sfquery queryall --count "SELECT Id FROM Task WHERE IsDeleted = true"
//	sfquery retrieve --type Account --fields Id,Name 001A 001B
//	sfquery create accounts.json
//	cat ids.txt | sfquery delete --stdin
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/DrewBradfordXYZ/sforce-go"
)

type clientContextKey struct{}

var rootOpts = struct {
	EnvFile string
	Pretty  bool
}{}

var RootCommand = &cobra.Command{
	Use:   "sfquery",
	Short: "Query and write records through the SOAP partner API",
	Long: `sfquery logs in with the configured credentials and runs one operation.

Results are written to standard output as JSON. Configuration is read from
SFORCE_* environment variables, a .env file and flags, in increasing precedence.`,
	SilenceUsage:      true,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadEnvFile(rootOpts.EnvFile, cmd.Flags().Changed("env-file")); err != nil {
			return err
		}

		cfg, err := LoadConfig(cmd.Flags())
		if err != nil {
			return err
		}

		opts, err := cfg.Options()
		if err != nil {
			return err
		}

		sf, err := sforce.New(opts...)
		if err != nil {
			return fmt.Errorf("failed to create client: %w", err)
		}

		cmd.SetContext(context.WithValue(cmd.Context(), clientContextKey{}, sf))

		return nil
	},
}

func init() {
	flags := RootCommand.PersistentFlags()
	flags.StringVar(&rootOpts.EnvFile, "env-file", ".env",
		"Environment file to load before reading SFORCE_* variables")
	flags.BoolVar(&rootOpts.Pretty, "pretty", false,
		"Indent JSON output")

	flags.String("username", "", "Login username (SFORCE_USERNAME)")
	flags.String("login-url", sforce.DefaultLoginURL, "Login host (SFORCE_LOGIN_URL)")
	flags.String("api-version", "", "Partner API version used for login (SFORCE_API_VERSION)")
	flags.Duration("timeout", DefaultTimeout, "Per-request HTTP timeout (SFORCE_TIMEOUT)")
	flags.Int("max-retries", DefaultMaxRetries, "Retries for transient failures (SFORCE_MAX_RETRIES)")
	flags.Int("batch-size", 0, "Records per query page, 200 to 2000 (SFORCE_BATCH_SIZE)")
	flags.Int("max-pages", 0, "Fail queries after this many pages, 0 for no limit (SFORCE_MAX_PAGES)")
	flags.Duration("page-delay", 0, "Pause between query pages (SFORCE_PAGE_DELAY)")
	flags.Float64("adaptive-threshold", 0, "Back off between pages above this API usage ratio (SFORCE_ADAPTIVE_THRESHOLD)")
	flags.Bool("debug", false, "Log requests, retries and pages to stderr (SFORCE_DEBUG)")

	RootCommand.AddCommand(
		queryCommand,
		queryAllCommand,
		retrieveCommand,
		createCommand,
		updateCommand,
		upsertCommand,
		deleteCommand,
		undeleteCommand,
	)
}

// loadEnvFile loads path into the environment. A missing file is only an
// error when the path was given explicitly.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (!explicit && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

func clientFromContext(ctx context.Context) (*sforce.Client, error) {
	sf, ok := ctx.Value(clientContextKey{}).(*sforce.Client)
	if !ok {
		return nil, errors.New("failed to get client from context")
	}
	return sf, nil
}

func main() {
	if err := RootCommand.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
