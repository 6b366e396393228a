// Package jurisdiction implements the well-known stay rules.
// It seeds the generic engine with visa and tax-residency rules and maps
// countries onto the zones those rules count.
package jurisdiction

import (
	"strings"

	"github.com/warp/staycount/generic"
)

// =============================================================================
// JURISDICTION CODES
// =============================================================================

// Visa / immigration zones
const (
	Schengen  generic.JurisdictionCode = "schengen"
	UKVisitor generic.JurisdictionCode = "uk_visitor"
	USVWP     generic.JurisdictionCode = "us_vwp"
	USB1B2    generic.JurisdictionCode = "us_b1b2"
)

// Tax residency
const (
	USNewYork       generic.JurisdictionCode = "us_ny"
	USCalifornia    generic.JurisdictionCode = "us_ca"
	USMassachusetts generic.JurisdictionCode = "us_ma"
	USConnecticut   generic.JurisdictionCode = "us_ct"
	USNewJersey     generic.JurisdictionCode = "us_nj"
	UKTax           generic.JurisdictionCode = "uk_tax"
)

// =============================================================================
// COUNTRY -> ZONE
// =============================================================================

// schengenMembers lists ISO 3166-1 alpha-2 codes of Schengen states,
// including Croatia (2023) and Bulgaria/Romania (2025).
var schengenMembers = map[string]bool{
	"AT": true, "BE": true, "BG": true, "CH": true, "CZ": true, "DE": true,
	"DK": true, "EE": true, "ES": true, "FI": true, "FR": true, "GR": true,
	"HR": true, "HU": true, "IS": true, "IT": true, "LI": true, "LT": true,
	"LU": true, "LV": true, "MT": true, "NL": true, "NO": true, "PL": true,
	"PT": true, "RO": true, "SE": true, "SI": true, "SK": true,
}

// IsSchengenCountry reports whether country (alpha-2, any case) is a Schengen state.
func IsSchengenCountry(country string) bool {
	return schengenMembers[strings.ToUpper(strings.TrimSpace(country))]
}

// ZoneForCountry returns the visa zone a stay in country counts toward.
// US trips are ambiguous (VWP vs B1/B2 vs a state) and return "".
func ZoneForCountry(country string) generic.JurisdictionCode {
	c := strings.ToUpper(strings.TrimSpace(country))
	switch {
	case schengenMembers[c]:
		return Schengen
	case c == "GB" || c == "UK":
		return UKVisitor
	default:
		return ""
	}
}

// ResolveTrip fills an empty jurisdiction from the trip's country.
// Trips that already carry a jurisdiction are returned unchanged.
func ResolveTrip(t generic.Trip) generic.Trip {
	if t.Jurisdiction == "" && t.Country != "" {
		t.Jurisdiction = ZoneForCountry(t.Country)
	}
	return t
}
