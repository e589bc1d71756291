package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/clashkit/cocgw"
	"github.com/clashkit/cocgw/keyring"
	"github.com/clashkit/cocgw/portal"
)

func loadValidConfig(path string) (*cocgw.Config, error) {
	if path == "" {
		return nil, errors.New("--config is required")
	}
	cfg, err := cocgw.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cocgw.ValidateConfig(*cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newPortal(cfg *cocgw.Config) *portal.Client {
	return portal.New(
		portal.WithBaseURL(cfg.Portal.BaseURL),
		portal.WithIPResolverURL(cfg.Portal.IPResolverURL),
		portal.WithHTTPClient(&http.Client{Timeout: cfg.Portal.Timeout()}),
	)
}

// loadManager registers every configured account and runs one refresh.
func loadManager(ctx context.Context, cfg *cocgw.Config) (*keyring.Manager, *keyring.RefreshReport, error) {
	m, err := keyring.New(newPortal(cfg), cfg.ManagerOptions()...)
	if err != nil {
		return nil, nil, err
	}
	for _, a := range cfg.Accounts {
		if err := m.Register(a.Credential()); err != nil {
			return nil, nil, err
		}
	}
	report, err := m.RefreshAll(ctx)
	if err != nil {
		return nil, nil, err
	}
	return m, report, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadValidConfig(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Config is valid")
			fmt.Fprintf(out, "  Accounts:  %d\n", len(cfg.Accounts))
			emails := make([]string, 0, len(cfg.Accounts))
			for _, a := range cfg.Accounts {
				emails = append(emails, a.Email)
			}
			fmt.Fprintf(out, "  Emails:    %s\n", strings.Join(emails, ", "))
			fmt.Fprintf(out, "  Refresh:   every %s\n", cfg.Refresh.Interval())
			if cfg.Refresh.AutoCreateKey != "" {
				fmt.Fprintf(out, "  Auto-create key: %s\n", cfg.Refresh.AutoCreateKey)
			}
			return nil
		},
	}
}

func newKeysCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Log in to every account and list the keys usable from this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadValidConfig(configPath)
			if err != nil {
				return err
			}
			m, report, err := loadManager(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			failed := map[string]string{}
			for _, res := range report.Failed() {
				failed[strings.ToLower(res.Email)] = res.Err.Error()
			}

			statuses := m.Status()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"ip":       report.IP.String(),
					"accounts": statuses,
				})
			}

			fmt.Fprintf(out, "Public IP: %s\n\n", report.IP)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ACCOUNT\tKEYS\tMASKED\tERROR")
			for _, st := range statuses {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", st.Email, st.Keys, strings.Join(st.MaskedKeys, ","), failed[strings.ToLower(st.Email)])
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\nUsable keys: %d\n", report.Usable())
			return report.Err()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		configPath string
		count      int
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print rotated API keys, one per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadValidConfig(configPath)
			if err != nil {
				return err
			}
			m, _, err := loadManager(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if count < 1 {
				count = 1
			}
			for i := 0; i < count; i++ {
				token, err := m.AcquireToken()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of tokens to print")
	return cmd
}

func newRevokeCmd() *cobra.Command {
	var (
		configPath string
		account    string
	)
	cmd := &cobra.Command{
		Use:   "revoke <key-id>...",
		Short: "Revoke keys owned by one configured account",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadValidConfig(configPath)
			if err != nil {
				return err
			}
			var cred *keyring.Credential
			for _, a := range cfg.Accounts {
				if strings.EqualFold(a.Email, account) {
					c := a.Credential()
					cred = &c
					break
				}
			}
			if cred == nil {
				return fmt.Errorf("%w: %s", keyring.ErrAccountNotFound, account)
			}

			ctx := cmd.Context()
			p := newPortal(cfg)
			session, err := p.Login(ctx, *cred)
			if err != nil {
				return err
			}
			defer func() { _ = p.Logout(context.WithoutCancel(ctx), session) }()

			for _, id := range args {
				if err := p.RevokeKey(ctx, session, id); err != nil {
					return fmt.Errorf("revoke %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "configuration file")
	cmd.Flags().StringVarP(&account, "account", "a", "", "account email owning the keys")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newTagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Normalise player and clan tags",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "format <tag>",
			Short: "Encode a tag for use in an API path (# becomes %23)",
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), cocgw.FormatTag(args[0]))
			},
		},
		&cobra.Command{
			Use:   "fix <tag>",
			Short: "Repair a mistyped tag (O becomes 0, stray characters dropped)",
			Args:  cobra.ExactArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), cocgw.FixTag(args[0]))
			},
		},
	)
	return cmd
}
