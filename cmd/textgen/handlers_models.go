package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/textgen/internal/config"
	"github.com/haasonsaas/textgen/internal/models"
)

// runModels implements the models command.
func runModels(cmd *cobra.Command, opts modelsOptions) error {
	if opts.discoverBedrock {
		cfg, err := loadConfig(cmd, opts.configPath)
		if err != nil {
			return err
		}
		rt := newRuntime(cfg)
		defer rt.close()
		if _, err := rt.discoverBedrock(commandContext(cmd), true); err != nil {
			return err
		}
	}

	filter := &models.Filter{
		MinContextWindow:  opts.minContext,
		IncludeDeprecated: opts.deprecated,
	}
	for _, p := range opts.providers {
		filter.Providers = append(filter.Providers, models.Provider(strings.ToLower(strings.TrimSpace(p))))
	}
	for _, c := range opts.capabilities {
		filter.RequiredCapabilities = append(filter.RequiredCapabilities, models.Capability(strings.ToLower(strings.TrimSpace(c))))
	}
	list := models.List(filter)

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	if len(list) == 0 {
		fmt.Fprintln(out, "No models match.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROVIDER\tTIER\tCONTEXT\tMAX OUTPUT\tCAPABILITIES")
	for _, m := range list {
		caps := make([]string, 0, len(m.Capabilities))
		for _, c := range m.Capabilities {
			caps = append(caps, string(c))
		}
		maxOut := "-"
		if m.MaxOutputTokens > 0 {
			maxOut = fmt.Sprint(m.MaxOutputTokens)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", m.ID, m.Provider, m.Tier, m.ContextWindow, maxOut, strings.Join(caps, ","))
	}
	return w.Flush()
}

// runSchema implements the schema command.
func runSchema(cmd *cobra.Command) error {
	data, err := config.JSONSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
