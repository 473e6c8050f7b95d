package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/textgen/internal/agent"
	"github.com/haasonsaas/textgen/internal/prompt"
	"github.com/haasonsaas/textgen/pkg/models"
)

// runGenerate implements the generate command.
func runGenerate(cmd *cobra.Command, opts generateOptions) error {
	if opts.output != "text" && opts.output != "json" {
		return fmt.Errorf("unknown output format %q (want text or json)", opts.output)
	}

	cfg, err := loadConfig(cmd, opts.configPath)
	if err != nil {
		return err
	}
	rt := newRuntime(cfg)
	defer rt.close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := rt.discoverBedrock(ctx, false); err != nil {
		rt.logger.Warn(ctx, "continuing without discovered bedrock models", "error", err)
	}

	input := prompt.Input{System: opts.system, Prompt: opts.prompt}
	if opts.messagesPath != "" {
		input.Messages, err = readMessages(opts.messagesPath)
		if err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	window := cfg.ContextWindow
	if flags.Changed("strategy") {
		window.Strategy = opts.strategy
	}
	if flags.Changed("tokenizer") {
		window.Tokenizer = opts.tokenizer
	}
	handler, err := window.Handler()
	if err != nil {
		return fmt.Errorf("context window: %w", err)
	}

	settings := cfg.Generation.CallSettings
	if flags.Changed("max-tokens") {
		settings.MaxTokens = agent.Ptr(opts.maxTokens)
	}
	if flags.Changed("temperature") {
		settings.Temperature = agent.Ptr(opts.temperature)
	}
	var maxRetries *int
	if flags.Changed("max-retries") {
		maxRetries = agent.Ptr(opts.maxRetries)
	}

	model, err := rt.resolveModel(ctx, opts.provider, opts.model)
	if err != nil {
		return err
	}
	gen := agent.NewGenerator(model, rt.generatorOptions())

	result, err := gen.Generate(ctx, agent.GenerateParams{
		Input:          input,
		Settings:       settings,
		MaxRetries:     maxRetries,
		ContextHandler: handler,
	})
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		rt.logger.Warn(ctx, "provider warning", "type", string(w.Type), "setting", w.Setting, "message", w.Message)
	}
	return writeResult(cmd.OutOrStdout(), opts.output, result)
}

// readMessages loads a JSON array of messages.
func readMessages(path string) ([]models.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}
	var messages []models.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("parse messages %s: %w", path, err)
	}
	return messages, nil
}

func writeResult(out io.Writer, format string, result *agent.GenerateResult) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Text != "" {
		fmt.Fprintln(out, result.Text)
	}
	for _, call := range result.ToolCalls {
		fmt.Fprintf(out, "tool call %s: %s(%s)\n", call.ID, call.Name, string(call.Args))
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
