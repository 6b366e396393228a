/*
presets.go - JSON rule presets

These build JSON rule definitions for custom jurisdictions (a national
visa-exempt allowance, a non-Jan-1 tax year). They construct JSON strings
directly so the factory package can stay free of domain imports.

USAGE:
  jsonStr := jurisdiction.RollingRuleJSON("th_visa_exempt", "Thailand", 60, 180)
  rule, err := factory.NewRuleFactory().ParseRule(jsonStr)
*/
package jurisdiction

import (
	"encoding/json"
	"time"
)

// RollingRuleJSON returns JSON for an "N days in any M" rule.
func RollingRuleJSON(code, name string, allowed, windowDays int) string {
	rj := map[string]interface{}{
		"code":            code,
		"name":            name,
		"days_allowed":    allowed,
		"window_days":     windowDays,
		"counting_method": "rolling",
	}
	b, _ := json.MarshalIndent(rj, "", "  ")
	return string(b)
}

// CalendarYearRuleJSON returns JSON for a Jan 1 reset rule.
func CalendarYearRuleJSON(code, name string, allowed int) string {
	rj := map[string]interface{}{
		"code":            code,
		"name":            name,
		"days_allowed":    allowed,
		"counting_method": "calendar_year",
	}
	b, _ := json.MarshalIndent(rj, "", "  ")
	return string(b)
}

// FiscalYearRuleJSON returns JSON for a rule anchored on month/day.
func FiscalYearRuleJSON(code, name string, allowed int, month time.Month, day int) string {
	rj := map[string]interface{}{
		"code":            code,
		"name":            name,
		"days_allowed":    allowed,
		"counting_method": "fiscal_year",
		"reset_month":     int(month),
		"reset_day":       day,
	}
	b, _ := json.MarshalIndent(rj, "", "  ")
	return string(b)
}
