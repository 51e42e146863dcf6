package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/config"
	"github.com/TheNickoos/GilsTracker/internal/session"
	"github.com/TheNickoos/GilsTracker/internal/tui/client"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const cliResetHint = "gilstracker reset: reset session"

type clientOptions struct {
	url   string
	token string
	json  bool
}

func (o *clientOptions) bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.url, "url", "", "Daemon base URL (default from config)")
	fs.StringVar(&o.token, "token", "", "Auth token (default from config)")
	fs.BoolVar(&o.json, "json", false, "Output in JSON format")
}

// httpClient resolves the daemon address and token from flags, falling
// back to the config file.
func (o *clientOptions) httpClient(cmd *cobra.Command) (*client.HTTPClient, error) {
	base, token := o.url, o.token
	if base == "" || token == "" {
		config.LoadDotEnv()
		cfg, err := config.LoadOrDefault(configPath(cmd))
		if err != nil {
			return nil, err
		}
		if base == "" {
			base = baseURL(cfg.Server)
		}
		if token == "" {
			token = cfg.Server.AuthToken
		}
	}
	return client.NewHTTPClient(base, token), nil
}

func baseURL(s config.ServerConfig) string {
	host := s.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.Port))
}

func newStatusCmd() *cobra.Command {
	var opts clientOptions
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current session totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			hc, err := opts.httpClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			s, err := hc.GetSession(ctx)
			if err != nil {
				return fmt.Errorf("query daemon: %w", err)
			}
			return printSummary(cmd.OutOrStdout(), *s, opts.json)
		},
	}
	opts.bind(cmd.Flags())
	return cmd
}

func newResetCmd() *cobra.Command {
	var opts clientOptions
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the session baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			hc, err := opts.httpClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			s, err := hc.Reset(ctx)
			if err != nil {
				return fmt.Errorf("reset session: %w", err)
			}
			if !opts.json {
				fmt.Fprintln(cmd.OutOrStdout(), "Session reset.")
			}
			return printSummary(cmd.OutOrStdout(), *s, opts.json)
		},
	}
	opts.bind(cmd.Flags())
	return cmd
}

func printSummary(w io.Writer, s session.Summary, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	switch s.Status {
	case session.LoggedOut:
		fmt.Fprintln(w, "Not logged in.")
		return nil
	case session.Initializing:
		fmt.Fprintln(w, "Initializing... (waiting for first gil read)")
		return nil
	}
	fmt.Fprintln(w, session.StatusText(s))
	fmt.Fprintln(w, session.Tooltip(s, cliResetHint))
	return nil
}

func newTokenCmd() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate an auth token for the daemon API",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := config.GenerateToken()
			if err != nil {
				return err
			}
			if write {
				path := configPath(cmd)
				cfg, err := config.LoadOrDefault(path)
				if err != nil {
					return err
				}
				cfg.Server.AuthToken = token
				if err := cfg.Save(path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Token saved to %s\n", path)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().BoolVar(&write, "write", false, "Store the token in the config file")
	return cmd
}
