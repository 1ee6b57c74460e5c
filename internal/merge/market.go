package merge

import "strings"

// MarketRule maps an ad set name substring to a market tag. Rules are
// deployment configuration, not code: naming conventions like "BRA_" or
// "MEX_" differ per account.
type MarketRule struct {
	Substring string
	Market    string
}

// DefaultMarket is assigned when no rule matches.
const DefaultMarket = "OTHER"

// MarketFor returns the market tag for an ad set name. Rules are applied
// in order, first match wins.
func MarketFor(adSetName string, rules []MarketRule) string {
	for _, r := range rules {
		if r.Substring != "" && strings.Contains(adSetName, r.Substring) {
			return r.Market
		}
	}
	return DefaultMarket
}

// ParseMarketRules parses a "substring:market,substring:market" config
// string into an ordered rule list. Malformed entries are skipped.
func ParseMarketRules(s string) []MarketRule {
	var rules []MarketRule
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sub, market, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		sub = strings.TrimSpace(sub)
		market = strings.TrimSpace(market)
		if sub == "" || market == "" {
			continue
		}
		rules = append(rules, MarketRule{Substring: sub, Market: market})
	}
	return rules
}
