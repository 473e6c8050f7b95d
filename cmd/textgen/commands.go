package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Generate Command
// =============================================================================

type generateOptions struct {
	configPath   string
	provider     string
	model        string
	system       string
	prompt       string
	messagesPath string
	strategy     string
	tokenizer    string
	maxTokens    int
	temperature  float64
	maxRetries   int
	output       string
}

// buildGenerateCmd creates the "generate" command that runs one request.
func buildGenerateCmd() *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Generate text for a prompt or message file",
		Long: `Generate text for a single prompt or a JSON message sequence.

The prompt comes from --prompt, the positional argument, or a file of
messages given with --messages. Exactly one of them must be set.`,
		Example: `  # Single prompt with the default provider
  textgen generate "Write a haiku about Go"

  # Conversation from a file, failing instead of trimming when too long
  textgen generate --messages chat.json --strategy error

  # Full result as JSON
  textgen generate -p "hello" --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.prompt = args[0]
			}
			return runGenerate(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "Path to YAML or JSON5 configuration file")
	flags.StringVar(&opts.provider, "provider", "", "Configured provider name (default: default_provider)")
	flags.StringVarP(&opts.model, "model", "m", "", "Model ID (default: the provider's default_model)")
	flags.StringVarP(&opts.system, "system", "s", "", "System instruction")
	flags.StringVarP(&opts.prompt, "prompt", "p", "", "Prompt text")
	flags.StringVar(&opts.messagesPath, "messages", "", "JSON file holding a message array")
	flags.StringVar(&opts.strategy, "strategy", "", "Context window strategy: none, remove, error, summarize")
	flags.StringVar(&opts.tokenizer, "tokenizer", "", "Tokenizer for sizing: basic or approx")
	flags.IntVar(&opts.maxTokens, "max-tokens", 0, "Maximum tokens to generate")
	flags.Float64Var(&opts.temperature, "temperature", 0, "Sampling temperature")
	flags.IntVar(&opts.maxRetries, "max-retries", 0, "Retries after the first failed provider call")
	flags.StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")

	return cmd
}

// =============================================================================
// Serve Command
// =============================================================================

// buildServeCmd creates the "serve" command that starts the HTTP API.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the textgen HTTP server",
		Long: `Start the HTTP server exposing POST /v1/generate, GET /healthz and,
when observability.metrics is enabled, GET /metrics.

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  textgen serve

  # Override the listen address
  textgen serve --addr 127.0.0.1:9090 --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, addr, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML or JSON5 configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging (verbose output)")

	return cmd
}

// =============================================================================
// Models Command
// =============================================================================

type modelsOptions struct {
	configPath      string
	providers       []string
	capabilities    []string
	minContext      int
	deprecated      bool
	discoverBedrock bool
	jsonOutput      bool
}

// buildModelsCmd creates the "models" command that lists the catalog.
func buildModelsCmd() *cobra.Command {
	var opts modelsOptions

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List known models and their context windows",
		Example: `  textgen models --provider anthropic --capability tools
  textgen models --discover-bedrock --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "Path to YAML or JSON5 configuration file")
	flags.StringSliceVar(&opts.providers, "provider", nil, "Only list these providers")
	flags.StringSliceVar(&opts.capabilities, "capability", nil, "Only list models with every capability")
	flags.IntVar(&opts.minContext, "min-context", 0, "Minimum context window in tokens")
	flags.BoolVar(&opts.deprecated, "deprecated", false, "Include deprecated models")
	flags.BoolVar(&opts.discoverBedrock, "discover-bedrock", false, "Query AWS Bedrock for available foundation models first")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print JSON instead of a table")

	return cmd
}

// =============================================================================
// Schema Command
// =============================================================================

// buildSchemaCmd creates the "schema" command that prints the config schema.
func buildSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchema(cmd)
		},
	}
}
