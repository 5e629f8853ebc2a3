package provider

import (
	"strings"

	"github.com/argosight/livetrack/pkg/model"
)

// MatchKind selects how a rule pattern is compared against a value.
type MatchKind int

const (
	MatchPrefix MatchKind = iota
	MatchSubstring
)

// Rule maps a label/callsign/type pattern to a category. Rules live in an
// ordered table evaluated top-to-bottom so tie-breaks are explicit and
// testable rather than buried in conditional chains.
type Rule struct {
	Pattern  string
	Match    MatchKind
	Category model.Category
}

// Matches reports whether the rule applies to the given value. Comparison is
// case-insensitive.
func (r Rule) Matches(value string) bool {
	v := strings.ToUpper(strings.TrimSpace(value))
	p := strings.ToUpper(r.Pattern)
	switch r.Match {
	case MatchPrefix:
		return strings.HasPrefix(v, p)
	default:
		return strings.Contains(v, p)
	}
}

// RuleTable is an ordered classification table; the first matching rule wins.
type RuleTable []Rule

// Classify returns the category of the first matching rule, or fallback when
// no rule matches.
func (t RuleTable) Classify(value string, fallback model.Category) model.Category {
	for _, r := range t {
		if r.Matches(value) {
			return r.Category
		}
	}
	return fallback
}

// flightCallsignRules classifies aircraft by known fleet callsign prefixes
// and operator substrings. Unclassifiable entries default to commercial.
var flightCallsignRules = RuleTable{
	// US and NATO military fleets
	{Pattern: "RCH", Match: MatchPrefix, Category: model.CategoryMilitary},
	{Pattern: "CNV", Match: MatchPrefix, Category: model.CategoryMilitary},
	{Pattern: "RRR", Match: MatchPrefix, Category: model.CategoryMilitary},
	{Pattern: "NATO", Match: MatchPrefix, Category: model.CategoryMilitary},
	{Pattern: "BAF", Match: MatchPrefix, Category: model.CategoryMilitary},
	{Pattern: "GAF", Match: MatchPrefix, Category: model.CategoryMilitary},
	{Pattern: "CFC", Match: MatchPrefix, Category: model.CategoryMilitary},
	{Pattern: "ASY", Match: MatchPrefix, Category: model.CategoryMilitary},
	{Pattern: "IAM", Match: MatchPrefix, Category: model.CategoryMilitary},
	{Pattern: "DUKE", Match: MatchPrefix, Category: model.CategoryMilitary},
	{Pattern: "HKY", Match: MatchPrefix, Category: model.CategoryMilitary},
	{Pattern: "FORTE", Match: MatchPrefix, Category: model.CategoryMilitary},
	{Pattern: "LAGR", Match: MatchPrefix, Category: model.CategoryMilitary},
	{Pattern: "HOBO", Match: MatchPrefix, Category: model.CategoryMilitary},
	// Head-of-state / special air missions
	{Pattern: "SAM", Match: MatchPrefix, Category: model.CategoryVIP},
	{Pattern: "EXEC", Match: MatchPrefix, Category: model.CategoryVIP},
	{Pattern: "AF1", Match: MatchPrefix, Category: model.CategoryVIP},
	{Pattern: "AF2", Match: MatchPrefix, Category: model.CategoryVIP},
	// Government agencies
	{Pattern: "COAST", Match: MatchSubstring, Category: model.CategoryGovernment},
	{Pattern: "GUARD", Match: MatchSubstring, Category: model.CategoryGovernment},
	{Pattern: "CBP", Match: MatchPrefix, Category: model.CategoryGovernment},
	{Pattern: "FBI", Match: MatchPrefix, Category: model.CategoryGovernment},
	// Freight operators
	{Pattern: "FDX", Match: MatchPrefix, Category: model.CategoryCargo},
	{Pattern: "UPS", Match: MatchPrefix, Category: model.CategoryCargo},
	{Pattern: "GTI", Match: MatchPrefix, Category: model.CategoryCargo},
	{Pattern: "CLX", Match: MatchPrefix, Category: model.CategoryCargo},
	{Pattern: "ABW", Match: MatchPrefix, Category: model.CategoryCargo},
	{Pattern: "CARGO", Match: MatchSubstring, Category: model.CategoryCargo},
	// Registration-shaped callsigns are private/general aviation
	{Pattern: "N1", Match: MatchPrefix, Category: model.CategoryPrivate},
	{Pattern: "N2", Match: MatchPrefix, Category: model.CategoryPrivate},
	{Pattern: "N3", Match: MatchPrefix, Category: model.CategoryPrivate},
	{Pattern: "N4", Match: MatchPrefix, Category: model.CategoryPrivate},
	{Pattern: "N5", Match: MatchPrefix, Category: model.CategoryPrivate},
	{Pattern: "N6", Match: MatchPrefix, Category: model.CategoryPrivate},
	{Pattern: "N7", Match: MatchPrefix, Category: model.CategoryPrivate},
	{Pattern: "N8", Match: MatchPrefix, Category: model.CategoryPrivate},
	{Pattern: "N9", Match: MatchPrefix, Category: model.CategoryPrivate},
}

// shipTypeRules maps provider vessel type strings to categories. Evaluated
// top to bottom; gov/state outrank mil, tanker outranks cargo.
var shipTypeRules = RuleTable{
	{Pattern: "GOV", Match: MatchSubstring, Category: model.CategoryGovernment},
	{Pattern: "STATE", Match: MatchSubstring, Category: model.CategoryGovernment},
	{Pattern: "MIL", Match: MatchSubstring, Category: model.CategoryMilitary},
	{Pattern: "TANKER", Match: MatchSubstring, Category: model.CategoryTanker},
	{Pattern: "CARGO", Match: MatchSubstring, Category: model.CategoryCargo},
	{Pattern: "FREIGHT", Match: MatchSubstring, Category: model.CategoryCargo},
	{Pattern: "PASSENGER", Match: MatchSubstring, Category: model.CategoryPassenger},
	{Pattern: "CRUISE", Match: MatchSubstring, Category: model.CategoryPassenger},
	{Pattern: "FISH", Match: MatchSubstring, Category: model.CategoryFishing},
	{Pattern: "PLEASURE", Match: MatchSubstring, Category: model.CategoryPleasure},
	{Pattern: "YACHT", Match: MatchSubstring, Category: model.CategoryPleasure},
}

// ClassifyFlight applies the flight rule table to a callsign/label.
func ClassifyFlight(callsign string) model.Category {
	if strings.TrimSpace(callsign) == "" {
		return model.CategoryCommercial
	}
	return flightCallsignRules.Classify(callsign, model.CategoryCommercial)
}

// ClassifyShipType applies the vessel type rule table to a raw type string.
func ClassifyShipType(shipType string) model.Category {
	return shipTypeRules.Classify(shipType, model.CategoryUnknown)
}
