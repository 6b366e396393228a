package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/warp/staycount/config"
	"github.com/warp/staycount/generic"
	"github.com/warp/staycount/jurisdiction"
)

var validateRules bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the staycount configuration file, including any custom rules it declares.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateRules, "rules", false, "List the effective rule set")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	registry, err := jurisdiction.NewRegistry(nil, cfg.Engine.RuleCacheSize, cfg.ExtraRules()...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Rule set is invalid: %v\n", err)
		return err
	}

	ctx := context.Background()
	if cfg.Engine.PrimaryZone != "" {
		if _, err := registry.GetRule(ctx, generic.JurisdictionCode(cfg.Engine.PrimaryZone)); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Primary zone %q is not a known rule\n", cfg.Engine.PrimaryZone)
			return err
		}
	}

	source := configPath
	if source == "" {
		source = "(defaults and environment)"
	}
	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", source)
	_, _ = fmt.Fprintf(os.Stdout, "   %d custom rule(s) declared\n", len(cfg.ExtraRules()))

	if !validateRules {
		return nil
	}

	rules, err := registry.ListRules(ctx)
	if err != nil {
		return err
	}

	custom := make(map[generic.JurisdictionCode]bool, len(cfg.ExtraRules()))
	for _, r := range cfg.ExtraRules() {
		custom[r.Code] = true
	}

	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
	cyan.Fprintln(os.Stdout, "EFFECTIVE RULES (config rules highlighted)")
	fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))
	for _, r := range rules {
		line := fmt.Sprintf("%-18s %-34s %4d days  %s", r.Code, r.Name, r.DaysAllowed, describeWindow(r))
		if custom[r.Code] {
			yellow.Fprintln(os.Stdout, line)
		} else {
			fmt.Fprintln(os.Stdout, line)
		}
	}
	return nil
}

func describeWindow(r generic.Rule) string {
	switch r.Method {
	case generic.MethodRolling:
		return fmt.Sprintf("rolling %d days", r.WindowDays)
	case generic.MethodCalendarYear:
		return "calendar year"
	default:
		return fmt.Sprintf("year from %s %d", r.ResetMonth, r.ResetDay)
	}
}
