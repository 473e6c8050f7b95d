// Package main provides the CLI entry point for textgen.
//
// textgen validates a prompt, fits it into the model's context window,
// calls the configured provider with retries, and prints the result.
//
// # Basic Usage
//
// Generate once:
//
//	textgen generate --prompt "Summarize RFC 2119 in one sentence"
//
// Serve the HTTP API:
//
//	textgen serve --config textgen.yaml
//
// List known models:
//
//	textgen models --provider anthropic
//
// # Environment Variables
//
// Without a config file, providers are taken from the environment:
//
//   - TEXTGEN_CONFIG: Path to configuration file (default: textgen.yaml)
//   - OPENAI_API_KEY: OpenAI API key
//   - ANTHROPIC_API_KEY: Anthropic API key
//   - GEMINI_API_KEY or GOOGLE_API_KEY: Gemini API key
//   - MISTRAL_API_KEY: Mistral API key
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
// Example build command:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// JSON to stderr so generated text on stdout stays clean.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "textgen",
		Short: "textgen - validated, context-aware text generation",
		Long: `textgen sends a prompt to a language model provider and returns the result.

Prompts are validated, sized to the model's context window, retried on
transient provider failures, and tool calls are parsed and checked.

Supported providers: OpenAI (and compatible endpoints), Azure OpenAI,
Anthropic, Google Gemini, AWS Bedrock, Mistral`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildGenerateCmd(),
		buildServeCmd(),
		buildModelsCmd(),
		buildSchemaCmd(),
	)

	return rootCmd
}
