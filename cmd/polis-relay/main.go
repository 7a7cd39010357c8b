// Package main is the entry point for the polis-relay binary.
// It provides a CLI for running the API relay and inspecting its configuration.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/polisai/polis-relay/pkg/auth"
	"github.com/polisai/polis-relay/pkg/config"
)

// CLIConfig holds the parsed CLI configuration
type CLIConfig struct {
	Config      string
	Port        int
	LogLevel    string
	AdminListen string
}

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for polis-relay. Without a
// subcommand it serves.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "polis-relay",
		Short: "Password-gated reverse proxy for upstream AI APIs",
		Long: heredoc.Doc(`
			A reverse proxy that exposes upstream AI APIs under path prefixes of a
			single domain, with a password-protected dashboard.

			Configuration comes from an optional YAML file, then PROXY_* environment
			variables (a .env file is loaded when present), then flags.
		`),
		Example: heredoc.Doc(`
			# serve on :8000 with the default routes
			PROXY_DOMAIN=relay.example.com PROXY_PASSWORD=secret polis-relay

			# print the session cookie value for a password
			polis-relay token secret
		`),
		SilenceUsage: true,
		RunE:         runServe,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	addServeFlags(rootCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay (default)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	addServeFlags(serveCmd)

	rootCmd.AddCommand(serveCmd, newTokenCmd(), newRoutesCmd())
	return rootCmd
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides PROXY_PORT)")
	cmd.Flags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")
	cmd.Flags().String("admin-listen", "", "Listen address for /admin/health and /metrics")
}

// parseCLIConfig parses command line flags and returns a CLIConfig
func parseCLIConfig(cmd *cobra.Command) (*CLIConfig, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return nil, fmt.Errorf("failed to get port flag: %w", err)
	}

	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}

	adminListen, err := cmd.Flags().GetString("admin-listen")
	if err != nil {
		return nil, fmt.Errorf("failed to get admin-listen flag: %w", err)
	}

	return &CLIConfig{
		Config:      configPath,
		Port:        port,
		LogLevel:    logLevel,
		AdminListen: adminListen,
	}, nil
}

// loadConfig builds the final configuration: file, then environment, then flags.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	return config.Load(cli.Config, func(cfg *config.Config) {
		if cli.Port != 0 {
			cfg.Server.Port = cli.Port
		}
		if cli.LogLevel != "" {
			cfg.Logging.Level = cli.LogLevel
		}
		if cli.AdminListen != "" {
			cfg.Server.AdminAddress = cli.AdminListen
		}
	})
}

func newTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token [password]",
		Short: "Print the session token for a password",
		Long: heredoc.Doc(`
			Print the value of the api_proxy_auth_token cookie accepted for the
			given password, or for PROXY_PASSWORD when no argument is given.
		`),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("PROXY_PASSWORD")
			if len(args) == 1 {
				secret = args[0]
			}
			if secret == "" {
				return fmt.Errorf("no password given and PROXY_PASSWORD is not set")
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), auth.DeriveToken(secret))
			return err
		},
	}
}

func newRoutesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List the proxied endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return printEndpoints(cmd.OutOrStdout(), cfg)
		},
	}
}

// printEndpoints writes one "https://<domain><prefix> -> <upstream>" line
// per route, sorted by prefix.
func printEndpoints(w io.Writer, cfg *config.Config) error {
	table, err := cfg.RouteTable()
	if err != nil {
		return err
	}
	for _, route := range table.Routes() {
		if _, err := fmt.Fprintf(w, "https://%s%s -> %s\n", cfg.Server.Domain, route.Prefix, route.Upstream); err != nil {
			return err
		}
	}
	return nil
}
