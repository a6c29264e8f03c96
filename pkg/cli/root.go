// Package cli implements the cde-sql command tree: run SQL statements as
// remote Spark jobs, manage auth tokens and browse the local run history.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cde-sql/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// rootFlags holds the persistent flag values shared by all commands.
type rootFlags struct {
	apiURL      string
	authURL     string
	user        string
	token       string
	historyPath string
	profile     string
	output      string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "cde-sql",
		Short:         "Run SQL statements as remote Spark jobs",
		Long:          "Submits SQL to a CDE-style job-execution service, waits for the run to finish and prints the parsed result table.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			if err := validateOutputFormat(flags.output); err != nil {
				return err
			}
			logCfg := config.Config{LogLevel: os.Getenv("CDE_LOG_LEVEL")}
			level := logCfg.SlogLevel()
			if flags.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.apiURL, "api-url", "", "Jobs API base URL")
	rootCmd.PersistentFlags().StringVar(&flags.authURL, "auth-url", "", "Token service base URL")
	rootCmd.PersistentFlags().StringVar(&flags.user, "user", "", "User for token acquisition")
	rootCmd.PersistentFlags().StringVar(&flags.token, "token", "", "Static bearer token (skips token acquisition)")
	rootCmd.PersistentFlags().StringVar(&flags.historyPath, "history", "", "SQLite run-history file (empty disables history)")
	rootCmd.PersistentFlags().StringVarP(&flags.profile, "profile", "p", "", "Config profile to use")
	rootCmd.PersistentFlags().StringVarP(&flags.output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newRunCmd(flags))
	rootCmd.AddCommand(newAuthCmd(flags))
	rootCmd.AddCommand(newHistoryCmd(flags))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// resolveConfig merges flag, environment and profile values, in that
// precedence order, into a validated client configuration.
func resolveConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	cfg, err := resolveSettings(cmd, flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveSettings(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	userCfg, err := LoadUserConfig()
	if err != nil {
		// Config file is optional.
		userCfg = &UserConfig{Profiles: map[string]Profile{}}
	}
	p := userCfg.ActiveProfile(flags.profile)

	resolve := func(flagName, flagVal, envKey, profileVal string) string {
		if cmd.Flags().Changed(flagName) {
			return flagVal
		}
		if v := os.Getenv(envKey); v != "" {
			return v
		}
		if profileVal != "" {
			return profileVal
		}
		return flagVal
	}

	cfg := &config.Config{
		APIURL:      resolve("api-url", flags.apiURL, "CDE_API_URL", p.APIURL),
		AuthURL:     resolve("auth-url", flags.authURL, "CDE_AUTH_URL", p.AuthURL),
		User:        resolve("user", flags.user, "CDE_USER", p.User),
		Token:       resolve("token", flags.token, "CDE_TOKEN", p.Token),
		HistoryPath: resolve("history", flags.historyPath, "CDE_HISTORY_PATH", p.HistoryPath),
		Password:    os.Getenv("CDE_PASSWORD"),
		LogLevel:    "info",
	}

	if cfg.PollInterval, err = config.DurationEnv("CDE_POLL_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.JobTimeout, err = config.DurationEnv("CDE_JOB_TIMEOUT", 900*time.Second); err != nil {
		return nil, err
	}
	if cfg.LogSettleDelay, err = config.DurationEnv("CDE_LOG_SETTLE_DELAY", 40*time.Second); err != nil {
		return nil, err
	}
	cfg.RateLimitRPS = 10
	cfg.RateLimitBurst = 20
	return cfg, nil
}

// resolveOutputFormat applies the same precedence to the output format,
// which lives outside config.Config: flag, then profile, then the default.
func resolveOutputFormat(cmd *cobra.Command, flags *rootFlags) string {
	if cmd.Flags().Changed("output") {
		return flags.output
	}
	if userCfg, err := LoadUserConfig(); err == nil {
		if p := userCfg.ActiveProfile(flags.profile); p.Output != "" {
			return p.Output
		}
	}
	return flags.output
}
