package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/warp/staycount/api"
	"github.com/warp/staycount/config"
	"github.com/warp/staycount/generic"
	"github.com/warp/staycount/jurisdiction"
)

var (
	tripsPath string
	asOf      string
	planCode  string
	planStart string
	planEnd   string
	planDays  int
)

var calcCmd = &cobra.Command{
	Use:   "calc [flags] [JURISDICTION...]",
	Short: "Summarize a trip file",
	Long: `Compute the compliance summary of each jurisdiction for the trips in a
JSON file. With no jurisdictions the configured primary zone is used.`,
	Example: `  staycount calc --trips trips.json
  staycount calc --trips trips.json --as-of 2024-06-01 schengen uk_visitor us_ny`,
	RunE: runCalc,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a future trip against a trip file",
	Long:  `Simulate a proposed trip, find the earliest safe start, or find the longest safe stay.`,
}

var planSimulateCmd = &cobra.Command{
	Use:     "simulate",
	Short:   "Check whether a proposed trip would break the limit",
	Example: `  staycount plan simulate --trips trips.json -j schengen --start 2024-07-01 --end 2024-07-20`,
	RunE:    runPlanSimulate,
}

var planEarliestCmd = &cobra.Command{
	Use:     "earliest",
	Short:   "Find the earliest date a trip of --days can start",
	Example: `  staycount plan earliest --trips trips.json -j schengen --days 14`,
	RunE:    runPlanEarliest,
}

var planMaxCmd = &cobra.Command{
	Use:     "max-length",
	Short:   "Find the longest trip that can start on --start",
	Example: `  staycount plan max-length --trips trips.json -j schengen --start 2024-07-01`,
	RunE:    runPlanMax,
}

func init() {
	calcCmd.Flags().StringVar(&tripsPath, "trips", "", "JSON file with a list of trips (required)")
	calcCmd.Flags().StringVar(&asOf, "as-of", "", "Reference date YYYY-MM-DD (defaults to today)")
	calcCmd.MarkFlagRequired("trips")

	for _, c := range []*cobra.Command{planSimulateCmd, planEarliestCmd, planMaxCmd} {
		c.Flags().StringVar(&tripsPath, "trips", "", "JSON file with a list of trips (required)")
		c.Flags().StringVarP(&planCode, "jurisdiction", "j", "", "Jurisdiction code (defaults to the primary zone)")
		c.Flags().StringVar(&asOf, "as-of", "", "Treat this date as today (YYYY-MM-DD)")
		c.MarkFlagRequired("trips")
	}
	planSimulateCmd.Flags().StringVar(&planStart, "start", "", "Proposed first day (required)")
	planSimulateCmd.Flags().StringVar(&planEnd, "end", "", "Proposed last day (required)")
	planSimulateCmd.MarkFlagRequired("start")
	planSimulateCmd.MarkFlagRequired("end")

	planEarliestCmd.Flags().IntVar(&planDays, "days", 0, "Trip length in days (required)")
	planEarliestCmd.MarkFlagRequired("days")

	planMaxCmd.Flags().StringVar(&planStart, "start", "", "First day of the trip (required)")
	planMaxCmd.MarkFlagRequired("start")

	planCmd.AddCommand(planSimulateCmd)
	planCmd.AddCommand(planEarliestCmd)
	planCmd.AddCommand(planMaxCmd)
	rootCmd.AddCommand(calcCmd)
	rootCmd.AddCommand(planCmd)
}

// =============================================================================
// OFFLINE ENGINE
// =============================================================================

// offline bundles what the calc and plan commands need. Nothing touches the
// database; custom rules come from the config file only.
type offline struct {
	cfg       *config.Config
	rules     *jurisdiction.Registry
	calc      *generic.Calculator
	simulator *generic.Simulator
	trips     []generic.Trip
	today     generic.TimePoint
}

func newOffline() (*offline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	registry, err := jurisdiction.NewRegistry(nil, cfg.Engine.RuleCacheSize, cfg.ExtraRules()...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rule registry: %w", err)
	}

	today := generic.Today()
	if asOf != "" {
		today, err = generic.ParseDate(asOf)
		if err != nil {
			return nil, fmt.Errorf("invalid --as-of date: %s", asOf)
		}
	}

	trips, err := loadTrips(tripsPath)
	if err != nil {
		return nil, err
	}

	calc := &generic.Calculator{PrimaryZone: generic.JurisdictionCode(cfg.Engine.PrimaryZone)}
	return &offline{
		cfg:   cfg,
		rules: registry,
		calc:  calc,
		simulator: &generic.Simulator{
			Calculator:  calc,
			HorizonDays: cfg.Engine.SearchHorizonDays,
			Now:         func() generic.TimePoint { return today },
		},
		trips: trips,
		today: today,
	}, nil
}

func (o *offline) rule(code string) (*generic.Rule, error) {
	if code == "" {
		code = o.cfg.Engine.PrimaryZone
	}
	return o.rules.GetRule(context.Background(), generic.JurisdictionCode(code))
}

// checkTripLength applies the same single-trip cap as the API.
func checkTripLength(days, limit int) error {
	if days < 1 || days > limit {
		return fmt.Errorf("%w: %d days, must be 1-%d", generic.ErrInvalidTripLength, days, limit)
	}
	return nil
}

// loadTrips reads a JSON array shaped like the API's trip requests.
// Entries that cannot be parsed or are inverted are reported and skipped.
func loadTrips(path string) ([]generic.Trip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trips: %w", err)
	}

	var reqs []api.TripRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("failed to parse trips: %w", err)
	}

	trips := make([]generic.Trip, 0, len(reqs))
	for i, req := range reqs {
		id := req.ID
		if id == "" {
			id = fmt.Sprintf("trip-%d", i+1)
		}
		start, errStart := generic.ParseDate(req.StartDate)
		end, errEnd := generic.ParseDate(req.EndDate)
		if errStart != nil || errEnd != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: dates must be YYYY-MM-DD\n", id)
			continue
		}

		trip := jurisdiction.ResolveTrip(generic.Trip{
			ID:           generic.TripID(id),
			Owner:        generic.OwnerID(req.Owner),
			Jurisdiction: generic.JurisdictionCode(req.Jurisdiction),
			Country:      strings.ToUpper(strings.TrimSpace(req.Country)),
			Start:        start,
			End:          end,
			Source:       generic.TripSource(req.Source),
			Confidence:   req.Confidence,
			Notes:        req.Notes,
		})
		if err := generic.ValidateTrip(trip); err != nil {
			fmt.Fprintf(os.Stderr, "skipping %s: %v\n", id, err)
			continue
		}
		trips = append(trips, trip)
	}
	return trips, nil
}

// =============================================================================
// COMMANDS
// =============================================================================

func runCalc(cmd *cobra.Command, args []string) error {
	o, err := newOffline()
	if err != nil {
		return err
	}

	codes := make([]generic.JurisdictionCode, 0, len(args))
	for _, a := range args {
		codes = append(codes, generic.JurisdictionCode(a))
	}
	if len(codes) == 0 {
		codes = append(codes, generic.JurisdictionCode(o.cfg.Engine.PrimaryZone))
	}

	agg := &generic.Aggregator{Calculator: o.calc, Rules: o.rules}
	summaries, err := agg.SummarizeAll(context.Background(), codes, o.trips, o.today)
	if err != nil {
		return err
	}

	printHeader(fmt.Sprintf("STAY SUMMARY AS OF %s", o.today))
	fmt.Printf("Trips loaded: %d\n", len(o.trips))
	for _, code := range codes {
		printSummary(summaries[code])
	}
	printFooter()
	return nil
}

func runPlanSimulate(cmd *cobra.Command, args []string) error {
	o, err := newOffline()
	if err != nil {
		return err
	}
	rule, err := o.rule(planCode)
	if err != nil {
		return err
	}
	start, err := generic.ParseDate(planStart)
	if err != nil {
		return fmt.Errorf("invalid --start date: %s", planStart)
	}
	end, err := generic.ParseDate(planEnd)
	if err != nil {
		return fmt.Errorf("invalid --end date: %s", planEnd)
	}

	if err := checkTripLength(generic.CountInclusiveDays(start, end), o.cfg.Server.MaxTripDays); err != nil {
		return err
	}

	result, err := o.simulator.Simulate(*rule, o.trips, start, end)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	printHeader(fmt.Sprintf("SIMULATION: %s", rule.Name))
	fmt.Printf("Proposed:   %s to %s (%d days)\n", result.Proposed.Start, result.Proposed.End, result.Proposed.Len())
	fmt.Printf("Peak usage: %d / %d\n", result.MaxDaysUsed, result.DaysAllowed)
	fmt.Println()

	cyan.Print("Verdict:    ")
	if result.WouldViolate {
		red.Println("VIOLATION")
		fmt.Printf("            → First day over the limit: %s\n", result.FirstViolation())
		fmt.Printf("            → Days over the limit: %d\n", result.DaysOverLimit)
	} else {
		green.Println("OK")
	}
	fmt.Printf("Status on last day: %s\n", statusColor(result.FinalStatus).Sprint(result.FinalStatus))
	printFooter()
	return nil
}

func runPlanEarliest(cmd *cobra.Command, args []string) error {
	o, err := newOffline()
	if err != nil {
		return err
	}
	rule, err := o.rule(planCode)
	if err != nil {
		return err
	}

	if err := checkTripLength(planDays, o.cfg.Server.MaxTripDays); err != nil {
		return err
	}

	start, err := o.simulator.FindEarliestSafeStart(*rule, o.trips, planDays)
	if err != nil {
		return err
	}

	printHeader(fmt.Sprintf("EARLIEST SAFE START: %s", rule.Name))
	fmt.Printf("Trip length: %d days\n", planDays)
	fmt.Println()
	if start == nil {
		color.New(color.FgRed, color.Bold).Printf("No safe start within %d days of %s\n", o.simulator.HorizonDays, o.today)
	} else {
		color.New(color.FgGreen, color.Bold).Printf("Start %s, return %s\n", *start, start.AddDays(planDays-1))
	}
	printFooter()
	return nil
}

func runPlanMax(cmd *cobra.Command, args []string) error {
	o, err := newOffline()
	if err != nil {
		return err
	}
	rule, err := o.rule(planCode)
	if err != nil {
		return err
	}
	start, err := generic.ParseDate(planStart)
	if err != nil {
		return fmt.Errorf("invalid --start date: %s", planStart)
	}

	days := o.simulator.FindMaxSafeLength(*rule, o.trips, start)

	printHeader(fmt.Sprintf("LONGEST SAFE STAY: %s", rule.Name))
	fmt.Printf("Start: %s\n", start)
	fmt.Println()
	if days == 0 {
		color.New(color.FgRed, color.Bold).Println("No safe stay starting on this date")
	} else {
		color.New(color.FgGreen, color.Bold).Printf("Up to %d days (last day %s)\n", days, start.AddDays(days-1))
	}
	printFooter()
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

const rule50 = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

func printHeader(title string) {
	cyan := color.New(color.FgCyan, color.Bold)
	fmt.Println()
	cyan.Println(rule50)
	cyan.Println(title)
	cyan.Println(rule50)
	fmt.Println()
}

func printFooter() {
	fmt.Println()
	color.New(color.FgCyan, color.Bold).Println(rule50)
	fmt.Println()
}

func statusColor(s generic.Status) *color.Color {
	switch s {
	case generic.StatusSafe:
		return color.New(color.FgGreen, color.Bold)
	case generic.StatusWarning:
		return color.New(color.FgYellow, color.Bold)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}

func printSummary(s generic.Summary) {
	fmt.Println()
	color.New(color.FgCyan, color.Bold).Printf("%s\n", s.Jurisdiction)
	fmt.Printf("  Window:    %s to %s\n", s.WindowStart, s.WindowEnd)
	fmt.Printf("  Used:      %d / %d (%s%%)\n", s.DaysUsed, s.DaysAllowed, s.Percentage.StringFixed(1))
	fmt.Printf("  Remaining: %d\n", s.DaysRemaining)
	fmt.Printf("  Status:    %s\n", statusColor(s.Status).Sprint(strings.ToUpper(string(s.Status))))
	if s.NextExpiring != nil {
		fmt.Printf("  Next day back: %s (%d trip(s))\n", *s.NextExpiring, s.NextExpiringCount)
	}
}
