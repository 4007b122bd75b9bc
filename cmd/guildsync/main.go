package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/galexite/guildsync/client"
	"github.com/galexite/guildsync/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "guildsync",
	Short:   "Mirror guild events and organisations from an S3 bucket",
	Long: `guildsync keeps a local copy of events.json and organisations.json from an
S3-compatible bucket. Every request is signed with AWS Signature V4 and a
resource is only downloaded again when its Last-Modified time moves forward.

The local copy can be served read-only with "guildsync serve".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		files, _ := cmd.Flags().GetStringSlice("config")
		cfg, err := config.Load(files, cmd.Flags())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		setupLogging(cfg.Env, cfg.Log.Level)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringSlice("config", nil, "config file path, repeat to merge (default: ./guildsync.yaml)")
	flags.String("bucket-url", "", "bucket base URL (env: GUILDSYNC_BUCKET_URL)")
	flags.String("bucket-host", "", "signed host header, defaults to the bucket URL host (env: GUILDSYNC_BUCKET_HOST)")
	flags.String("region", "", "bucket region (default: us-east-1, env: GUILDSYNC_BUCKET_REGION)")
	flags.String("access-key", "", "access key (env: GUILDSYNC_CREDENTIALS_ACCESS_KEY)")
	flags.String("secret-key", "", "secret key (env: GUILDSYNC_CREDENTIALS_SECRET_KEY)")
	flags.String("keys-file", "", "JSON file of access key pairs (env: GUILDSYNC_CREDENTIALS_KEYS_FILE)")
	flags.String("profile", "", "AWS shared config profile to take credentials from (env: GUILDSYNC_CREDENTIALS_PROFILE)")
	flags.Duration("timeout", client.DefaultTimeout, "bucket request timeout (env: GUILDSYNC_HTTP_TIMEOUT)")
	flags.String("db-type", "", "state database type: sqlite, postgres (default: sqlite, env: GUILDSYNC_STATE_TYPE)")
	flags.String("db-dsn", "", "state database connection string (default: guildsync.db, env: GUILDSYNC_STATE_DSN)")
	flags.String("storage-path", "", "payload directory (default: ./data, env: GUILDSYNC_STORAGE_PATH)")
	flags.String("log-level", "", "log level: debug, info, warn, error (env: GUILDSYNC_LOG_LEVEL)")
	flags.Bool("json", false, "output as JSON")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(lastModifiedCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configureCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// getFormatter returns the formatter selected by --json.
func getFormatter(cmd *cobra.Command) client.Formatter {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	return client.NewFormatter(jsonOutput)
}
