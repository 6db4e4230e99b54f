package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foxzi/phishdrill/internal/ai"
	"github.com/foxzi/phishdrill/internal/app"
)

var (
	aiType     string
	aiSender   string
	aiContext  string
	aiSubject  string
	aiBody     string
	aiBodyFile string
)

var aiCmd = &cobra.Command{
	Use:   "ai",
	Short: "Template generation and analysis",
}

var aiGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a phishing simulation template",
	RunE:  runAIGenerate,
}

var aiAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "List the red flags in an email",
	Long:  `List the red flags in an email. Without a configured provider the default red flags are printed.`,
	RunE:  runAIAnalyze,
}

func init() {
	aiGenerateCmd.Flags().StringVar(&aiType, "type", "", "Template type, e.g. \"Password reset\" (required)")
	aiGenerateCmd.Flags().StringVar(&aiSender, "sender", "", "Sender name")
	aiGenerateCmd.Flags().StringVar(&aiContext, "context", "", "Scenario details")
	aiGenerateCmd.MarkFlagRequired("type")

	aiAnalyzeCmd.Flags().StringVar(&aiSubject, "subject", "", "Email subject (required)")
	aiAnalyzeCmd.Flags().StringVar(&aiBody, "body", "", "Email body")
	aiAnalyzeCmd.Flags().StringVar(&aiBodyFile, "body-file", "", "Read the email body from a file")
	aiAnalyzeCmd.MarkFlagRequired("subject")

	aiCmd.AddCommand(aiGenerateCmd, aiAnalyzeCmd)
	rootCmd.AddCommand(aiCmd)
}

func newAdapter(cmd *cobra.Command) (*ai.Adapter, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.NewAIAdapter(cmd.Context(), cfg.AI, app.NewLogger(cfg.Logging, os.Stderr))
}

func runAIGenerate(cmd *cobra.Command, args []string) error {
	adapter, err := newAdapter(cmd)
	if err != nil {
		return err
	}

	tmpl, err := adapter.Generate(cmd.Context(), aiType, aiSender, aiContext)
	if err != nil {
		return fmt.Errorf("failed to generate template: %w", err)
	}

	return printJSON(cmd, tmpl)
}

func runAIAnalyze(cmd *cobra.Command, args []string) error {
	body := aiBody
	if aiBodyFile != "" {
		data, err := os.ReadFile(aiBodyFile)
		if err != nil {
			return fmt.Errorf("failed to read body file: %w", err)
		}
		body = string(data)
	}
	if body == "" {
		return fmt.Errorf("--body or --body-file is required")
	}

	adapter, err := newAdapter(cmd)
	if err != nil {
		return err
	}

	return printJSON(cmd, map[string][]string{
		"analysis": adapter.Analyze(cmd.Context(), aiSubject, body),
	})
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
