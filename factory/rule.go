/*
Package factory provides JSON to Go rule conversion.

PURPOSE:
  Converts JSON rule definitions into validated generic.Rule values. Custom
  jurisdictions can be added through the API, the rules table or the config
  file without code changes.

JSON SCHEMA:
  {
    "code": "schengen",
    "name": "Schengen Area",
    "days_allowed": 90,
    "window_days": 180,
    "counting_method": "rolling"
  }

  {
    "code": "uk_tax",
    "name": "UK tax year",
    "days_allowed": 183,
    "counting_method": "fiscal_year",
    "reset_month": 4,
    "reset_day": 6
  }

REQUIRED:
  - code, days_allowed, counting_method (no implicit rolling default)
  - window_days for rolling rules

DEFAULTS:
  - window_days: 365 for year methods when omitted
  - reset_month / reset_day: 1 / 1

USAGE:
  f := NewRuleFactory()

  // From JSON string
  rule, err := f.ParseRule(jsonString)

  // From a domain preset
  jsonStr := jurisdiction.RollingRuleJSON("th_visa_exempt", "Thailand", 60, 180)
  rule, err := f.ParseRule(jsonStr)

SEE ALSO:
  - generic/rule.go: Rule type and validation
  - jurisdiction/presets.go: JSON presets
  - config/config.go: Rules declared in the config file
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/warp/staycount/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleJSON is the JSON representation of a rule.
type RuleJSON struct {
	Code           string `json:"code" mapstructure:"code"`
	Name           string `json:"name" mapstructure:"name"`
	DaysAllowed    int    `json:"days_allowed" mapstructure:"days_allowed"`
	WindowDays     int    `json:"window_days,omitempty" mapstructure:"window_days"`
	CountingMethod string `json:"counting_method,omitempty" mapstructure:"counting_method"`
	ResetMonth     int    `json:"reset_month,omitempty" mapstructure:"reset_month"`
	ResetDay       int    `json:"reset_day,omitempty" mapstructure:"reset_day"`
}

// =============================================================================
// RULE FACTORY
// =============================================================================

// RuleFactory converts JSON rules to Go structs.
type RuleFactory struct{}

// NewRuleFactory creates a new rule factory.
func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

// ParseRule parses a JSON object into a validated Rule.
func (f *RuleFactory) ParseRule(jsonStr string) (*generic.Rule, error) {
	var rj RuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return nil, fmt.Errorf("failed to parse rule JSON: %w", err)
	}
	return f.FromJSON(rj)
}

// ParseRules parses a JSON array of rules. The first invalid rule fails the batch.
func (f *RuleFactory) ParseRules(jsonStr string) ([]generic.Rule, error) {
	var rjs []RuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rjs); err != nil {
		return nil, fmt.Errorf("failed to parse rules JSON: %w", err)
	}
	return f.FromJSONList(rjs)
}

// FromJSONList converts and validates each entry.
func (f *RuleFactory) FromJSONList(rjs []RuleJSON) ([]generic.Rule, error) {
	rules := make([]generic.Rule, 0, len(rjs))
	seen := make(map[string]bool, len(rjs))
	for i, rj := range rjs {
		rule, err := f.FromJSON(rj)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		if seen[rj.Code] {
			return nil, fmt.Errorf("rule %d: %w", i, &generic.ConfigurationError{
				Code: rule.Code, Field: "code", Reason: "duplicate code",
			})
		}
		seen[rj.Code] = true
		rules = append(rules, *rule)
	}
	return rules, nil
}

// FromJSON converts RuleJSON to a validated generic.Rule.
func (f *RuleFactory) FromJSON(rj RuleJSON) (*generic.Rule, error) {
	method := parseCountingMethod(rj.CountingMethod)

	rule := generic.Rule{
		Code:        generic.JurisdictionCode(strings.TrimSpace(rj.Code)),
		Name:        rj.Name,
		DaysAllowed: rj.DaysAllowed,
		WindowDays:  rj.WindowDays,
		Method:      method,
		ResetMonth:  time.Month(rj.ResetMonth),
		ResetDay:    rj.ResetDay,
	}

	// Year methods default to a 365-day nominal window
	if !rule.IsRolling() && rule.WindowDays == 0 {
		rule.WindowDays = 365
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}
	rule = rule.WithDefaults()
	return &rule, nil
}

// ToJSON converts a Rule back to its JSON form (used for storage).
func (f *RuleFactory) ToJSON(rule generic.Rule) RuleJSON {
	return RuleJSON{
		Code:           string(rule.Code),
		Name:           rule.Name,
		DaysAllowed:    rule.DaysAllowed,
		WindowDays:     rule.WindowDays,
		CountingMethod: string(rule.Method),
		ResetMonth:     int(rule.ResetMonth),
		ResetDay:       rule.ResetDay,
	}
}

// MarshalRule encodes rule as a JSON object.
func (f *RuleFactory) MarshalRule(rule generic.Rule) (string, error) {
	b, err := json.Marshal(f.ToJSON(rule))
	if err != nil {
		return "", fmt.Errorf("failed to marshal rule %s: %w", rule.Code, err)
	}
	return string(b), nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// parseCountingMethod maps the JSON value to a CountingMethod. Unknown
// values pass through so Validate can report them.
func parseCountingMethod(s string) generic.CountingMethod {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "rolling", "rolling_window":
		return generic.MethodRolling
	case "calendar_year", "calendar":
		return generic.MethodCalendarYear
	case "fiscal_year", "fiscal", "tax_year":
		return generic.MethodFiscalYear
	default:
		return generic.CountingMethod(s)
	}
}
