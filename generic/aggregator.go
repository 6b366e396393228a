/*
aggregator.go - Multi-jurisdiction and family roll-ups

PURPOSE:
  A traveler rarely tracks a single rule. A US citizen living in Lisbon
  may watch Schengen 90/180, the UK visitor allowance and a US state's
  183-day test at the same time. A family may track every member against
  the same rule. This file runs the Calculator once per (rule, owner)
  and collects the results.

KEY CONCEPTS:
  SummarizeAll:
    One Summary per tracked jurisdiction code, resolved through the
    injected RuleSource (the caller owns any caching).

  SummarizeFamily:
    One Summary for the primary traveler and one per family member.
    Members do NOT share a day budget: each is counted independently
    against the same rule. No cross-member math happens here.

SEE ALSO:
  - calculator.go: Single-rule calculation
  - store.go: RuleSource interface
  - jurisdiction/registry.go: Cached RuleSource implementation
*/
package generic

import (
	"context"
	"fmt"
	"sort"
)

// =============================================================================
// AGGREGATOR
// =============================================================================

// Aggregator runs the Calculator across jurisdictions and owners.
type Aggregator struct {
	Calculator *Calculator
	Rules      RuleSource
}

// FamilySummary holds one Summary per traveler for the same rule.
type FamilySummary struct {
	Jurisdiction JurisdictionCode
	Primary      Summary
	Members      map[OwnerID]Summary
}

// MostAtRisk returns the owner with the highest status severity, then the
// most days used. The primary traveler wins ties.
func (f FamilySummary) MostAtRisk() (OwnerID, Summary) {
	owner, worst := PrimaryOwner, f.Primary
	for _, id := range sortedOwners(f.Members) {
		s := f.Members[id]
		if s.Status.Severity() > worst.Status.Severity() ||
			(s.Status.Severity() == worst.Status.Severity() && s.DaysUsed > worst.DaysUsed) {
			owner, worst = id, s
		}
	}
	return owner, worst
}

func (a *Aggregator) calculator() *Calculator {
	if a.Calculator == nil {
		return &Calculator{}
	}
	return a.Calculator
}

// SummarizeAll computes one Summary per code. trips are the traveler's trips
// across all jurisdictions; each rule picks out its own.
func (a *Aggregator) SummarizeAll(ctx context.Context, codes []JurisdictionCode, trips []Trip, ref TimePoint) (map[JurisdictionCode]Summary, error) {
	calc := a.calculator()
	out := make(map[JurisdictionCode]Summary, len(codes))

	for _, code := range codes {
		if _, done := out[code]; done {
			continue
		}
		rule, err := a.Rules.GetRule(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("summarize %s: %w", code, err)
		}
		out[code] = calc.Calculate(*rule, trips, ref)
	}
	return out, nil
}

// SummarizeFamily computes the primary traveler's summary plus one per member.
func (a *Aggregator) SummarizeFamily(rule Rule, primaryTrips []Trip, memberTrips map[OwnerID][]Trip, ref TimePoint) FamilySummary {
	calc := a.calculator()

	result := FamilySummary{
		Jurisdiction: rule.Code,
		Primary:      calc.Calculate(rule, primaryTrips, ref),
		Members:      make(map[OwnerID]Summary, len(memberTrips)),
	}
	for member, trips := range memberTrips {
		result.Members[member] = calc.Calculate(rule, trips, ref)
	}
	return result
}

// GroupByOwner splits trips into the primary traveler's and each member's.
func GroupByOwner(trips []Trip) (primary []Trip, members map[OwnerID][]Trip) {
	members = make(map[OwnerID][]Trip)
	for _, t := range trips {
		if t.Owner == PrimaryOwner {
			primary = append(primary, t)
			continue
		}
		members[t.Owner] = append(members[t.Owner], t)
	}
	return primary, members
}

func sortedOwners(m map[OwnerID]Summary) []OwnerID {
	ids := make([]OwnerID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
