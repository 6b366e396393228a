/*
rules.go - Pre-built jurisdiction rules

PURPOSE:
  Ready-to-use Rule values for the jurisdictions travelers ask about most.
  These seed the Registry; operators can override any of them through the
  rules table or the config file.

AVAILABLE RULES:
  Schengen:   90 days in any 180 (rolling)
  UKVisitor:  180 days in any 365 (rolling)
  USVWP:      90 days in any 180 (rolling, ESTA)
  USB1B2:     180 days in any 365 (rolling)
  US states:  183 days per calendar year (statutory residency test)
  UKTax:      183 days per tax year, anchored Apr 6

CAVEATS:
  US state thresholds are the common 183-day statutory test. Domicile,
  permanent place of abode and partial-day rules are not modelled.

SEE ALSO:
  - presets.go: The same shapes as JSON for custom rules
  - registry.go: Lookup and caching
*/
package jurisdiction

import (
	"time"

	"github.com/warp/staycount/generic"
)

// =============================================================================
// COMMON RULE SHAPES
// =============================================================================

// RollingRule returns a rule counting days in any window of windowDays.
func RollingRule(code generic.JurisdictionCode, name string, allowed, windowDays int) generic.Rule {
	return generic.Rule{
		Code:        code,
		Name:        name,
		DaysAllowed: allowed,
		WindowDays:  windowDays,
		Method:      generic.MethodRolling,
	}
}

// CalendarYearRule returns a rule that resets every Jan 1.
func CalendarYearRule(code generic.JurisdictionCode, name string, allowed int) generic.Rule {
	return generic.Rule{
		Code:        code,
		Name:        name,
		DaysAllowed: allowed,
		WindowDays:  365,
		Method:      generic.MethodCalendarYear,
		ResetMonth:  time.January,
		ResetDay:    1,
	}
}

// FiscalYearRule returns a rule that resets every year on month/day.
func FiscalYearRule(code generic.JurisdictionCode, name string, allowed int, month time.Month, day int) generic.Rule {
	return generic.Rule{
		Code:        code,
		Name:        name,
		DaysAllowed: allowed,
		WindowDays:  365,
		Method:      generic.MethodFiscalYear,
		ResetMonth:  month,
		ResetDay:    day,
	}
}

// =============================================================================
// DEFAULTS
// =============================================================================

// DefaultRules returns the built-in rule set, ordered by code.
func DefaultRules() []generic.Rule {
	return []generic.Rule{
		RollingRule(Schengen, "Schengen Area", 90, 180),
		FiscalYearRule(UKTax, "UK Statutory Residence (tax year)", 183, time.April, 6),
		RollingRule(UKVisitor, "UK Standard Visitor", 180, 365),
		RollingRule(USB1B2, "US B1/B2 Visitor", 180, 365),
		CalendarYearRule(USCalifornia, "California", 183),
		CalendarYearRule(USConnecticut, "Connecticut", 183),
		CalendarYearRule(USMassachusetts, "Massachusetts", 183),
		CalendarYearRule(USNewJersey, "New Jersey", 183),
		CalendarYearRule(USNewYork, "New York", 183),
		RollingRule(USVWP, "US Visa Waiver (ESTA)", 90, 180),
	}
}

// PrimaryZone is the zone legacy trips without a jurisdiction count toward.
const PrimaryZone = Schengen
