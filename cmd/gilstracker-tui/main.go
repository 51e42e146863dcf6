package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/TheNickoos/GilsTracker/internal/logging"
	"github.com/TheNickoos/GilsTracker/internal/tui/app"
	"github.com/TheNickoos/GilsTracker/internal/tui/client"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		wsURL     string
		token     string
		logFile   string
		helpStyle string
	)
	cmd := &cobra.Command{
		Use:          "gilstracker-tui",
		Short:        "Terminal status bar for the GilsTracker daemon",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Log lines would tear the alt screen, so they go to a file or nowhere.
			if logFile != "" {
				if err := logging.Configure(logging.Config{Level: "debug", File: logFile}); err != nil {
					return err
				}
			} else {
				logging.ConfigureOutput(logging.Config{}, io.Discard)
			}
			if token == "" {
				token = os.Getenv("GILSTRACKER_TOKEN")
			}

			ws := client.NewWSClient(wsURL, token)
			defer ws.Close()
			httpClient := client.NewHTTPClient(deriveHTTPBase(wsURL), token)

			m := app.New(ws, httpClient, helpStyle)
			p := tea.NewProgram(m, tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&wsURL, "url", "ws://127.0.0.1:8787/ws", "WebSocket URL of the GilsTracker daemon")
	cmd.Flags().StringVar(&token, "token", "", "Auth token (default $GILSTRACKER_TOKEN)")
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write debug logs to this file")
	cmd.Flags().StringVar(&helpStyle, "style", "dark", "Help panel style (dark, light, notty)")
	return cmd
}

// deriveHTTPBase converts ws://host:port/ws → http://host:port
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil || u.Host == "" {
		return "http://127.0.0.1:8787"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
