package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cde-sql/internal/auth"
)

func newAuthCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage access tokens",
	}
	cmd.AddCommand(newAuthLoginCmd(flags))
	return cmd
}

func newAuthLoginCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Acquire an access token and store it in the active profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveSettings(cmd, flags)
			if err != nil {
				return err
			}
			if cfg.AuthURL == "" || cfg.User == "" {
				return fmt.Errorf("auth login needs --auth-url and --user (or CDE_AUTH_URL and CDE_USER)")
			}

			password := cfg.Password
			if password == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Password for %s: ", cfg.User)
				raw, err := term.ReadPassword(int(os.Stdin.Fd()))
				fmt.Fprintln(cmd.OutOrStdout())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = string(raw)
			}

			tokens := auth.NewTokenSource(cfg.AuthURL, cfg.User, password)
			token, err := tokens.Token(cmd.Context())
			if err != nil {
				return fmt.Errorf("acquire token: %w", err)
			}

			userCfg, err := LoadUserConfig()
			if err != nil {
				userCfg = &UserConfig{Profiles: map[string]Profile{}}
			}
			name := flags.profile
			if name == "" {
				name = userCfg.CurrentProfile
			}
			if name == "" {
				name = "default"
			}
			p := userCfg.Profiles[name]
			p.AuthURL = cfg.AuthURL
			p.User = cfg.User
			p.Token = token
			if p.APIURL == "" {
				p.APIURL = cfg.APIURL
			}
			userCfg.Profiles[name] = p
			if userCfg.CurrentProfile == "" {
				userCfg.CurrentProfile = name
			}
			if err := SaveUserConfig(userCfg); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Token saved to profile %q in %s\n", name, ConfigPath())
			return nil
		},
	}
}
