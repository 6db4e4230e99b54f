package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foxzi/phishdrill/internal/app"
	"github.com/foxzi/phishdrill/internal/config"
	phishtls "github.com/foxzi/phishdrill/internal/tls"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "phishdrill",
	Short: "Phishdrill - phishing awareness training server",
	Long: `Phishdrill runs simulated phishing campaigns against a list of targets,
tracks opens and clicks, and can draft or review templates with an AI provider.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the Phishdrill HTTP API, tracking endpoints and optional metrics server.`,
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "phishdrill version %s\n", version)
		if commit != "unknown" {
			fmt.Fprintf(out, "  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Fprintf(out, "  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and environment when empty)")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(ctx)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration is valid\n")
	fmt.Fprintf(out, "  API: %s\n", cfg.API.ListenAddr)
	switch {
	case cfg.API.TLS.ACME.Enabled:
		fmt.Fprintf(out, "  TLS: ACME %s\n", strings.Join(cfg.API.TLS.ACME.Domains, ", "))
	case cfg.API.TLS.CertFile != "":
		info, err := phishtls.GetCertificateInfo(cfg.API.TLS.CertFile)
		if err != nil {
			return fmt.Errorf("configuration is invalid: %w", err)
		}
		fmt.Fprintf(out, "  TLS: %s (expires in %d days)\n", info.Subject, info.DaysLeft)
	}
	fmt.Fprintf(out, "  Auth: %t\n", cfg.API.APIKey != "")
	fmt.Fprintf(out, "  Database: %s (%s)\n", cfg.Database.Driver, cfg.Database.Path)
	fmt.Fprintf(out, "  AI: %s\n", cfg.AI.Provider)
	if cfg.RateLimit.Enabled {
		fmt.Fprintf(out, "  AI rate limit: enabled\n")
	}
	if cfg.Mailer.Enabled {
		fmt.Fprintf(out, "  Mailer: %s (%s)\n", cfg.Mailer.Addr, cfg.Mailer.Security)
	} else {
		fmt.Fprintf(out, "  Mailer: disabled\n")
	}
	if cfg.Metrics.Enabled {
		fmt.Fprintf(out, "  Metrics: %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}

	return nil
}
