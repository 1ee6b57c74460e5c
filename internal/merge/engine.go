package merge

import (
	"errors"
	"fmt"
	"sort"

	"github.com/arbflow/adrecon/internal/models"
)

// ErrMalformedInput is returned when an adapter hands over a record
// missing a required key. The whole merge is rejected: partial
// attribution would corrupt every downstream total.
var ErrMalformedInput = errors.New("malformed input record")

// DefaultPlaceholderIDs are ad group ids the monetization platform emits
// when click tracking is broken: unresolved macro templates, SQL null
// markers and friends.
var DefaultPlaceholderIDs = []string{"{{adset.id}}", `\N`, "", "null", "undefined"}

// Options configures one merge invocation.
type Options struct {
	// MarketRules tag records by ad set name, first match wins.
	MarketRules []MarketRule
	// PlaceholderIDs override DefaultPlaceholderIDs when non-nil.
	PlaceholderIDs []string
}

// Audit exposes everything the merge dropped or rerouted, so that no
// revenue disappears silently.
type Audit struct {
	MatchedKeys           int     `json:"matched_keys"`
	TrackingOrphans       int     `json:"tracking_orphans"`
	TrackingOrphanRevenue float64 `json:"tracking_orphan_revenue"`
	RedistributedRevenue  float64 `json:"redistributed_revenue"`
	DroppedOrphanRevenue  float64 `json:"dropped_orphan_revenue"`
	DiscardedOrphans      int     `json:"discarded_orphans"`
	LegitimateOrphans     int     `json:"legitimate_orphans"`
	ZeroWeightRevenue     float64 `json:"zero_weight_revenue"`
}

// Result is the outcome of one merge invocation.
type Result struct {
	Records []models.MergedRecord
	Audit   Audit
}

// Merge joins ad-level cost rows to daily revenue aggregates by
// (ad set, date), splits each aggregate across the ad set's ads
// proportionally to link clicks, then classifies and resolves revenue
// that matched nothing. The same inputs always produce the same output,
// record for record.
func Merge(cost []models.CostRecord, revenue []models.RevenueRecord, opts Options) (*Result, error) {
	for i, r := range cost {
		if r.AdSetID == "" {
			return nil, fmt.Errorf("%w: cost record %d has no ad set id", ErrMalformedInput, i)
		}
		if r.Date == "" {
			return nil, fmt.Errorf("%w: cost record %d has no date", ErrMalformedInput, i)
		}
	}
	for i, r := range revenue {
		if r.Date == "" {
			return nil, fmt.Errorf("%w: revenue record %d has no date", ErrMalformedInput, i)
		}
	}

	lookup := AggregateRevenue(revenue)
	groups := GroupCosts(cost)

	keys := make([]models.AdSetDay, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Date != keys[j].Date {
			return keys[i].Date < keys[j].Date
		}
		return keys[i].AdSetID < keys[j].AdSetID
	})

	res := &Result{}
	matched := make(map[models.AdSetDay]bool, len(groups))

	for _, key := range keys {
		group := groups[key]
		matched[key] = true

		var agg models.RevenueAggregate
		if a, ok := lookup[key]; ok {
			agg = *a
		}

		if group.TotalClicks == 0 && agg.Revenue > 0 {
			// Zero-weight groups attribute nothing; the aggregate's
			// revenue is lost. Counted here so it can be alerted on.
			res.Audit.ZeroWeightRevenue += agg.Revenue
		}

		for _, ad := range group.Ads {
			share := 0.0
			if group.TotalClicks > 0 {
				share = float64(ad.LinkClicks) / float64(group.TotalClicks)
			}

			rec := models.MergedRecord{
				CampaignID:   ad.CampaignID,
				CampaignName: ad.CampaignName,
				AdSetID:      ad.AdSetID,
				AdSetName:    ad.AdSetName,
				AdID:         ad.AdID,
				AdName:       ad.AdName,
				Market:       MarketFor(ad.AdSetName, opts.MarketRules),
				Date:         ad.Date,
				Spend:        ad.Spend,
				Revenue:      agg.Revenue * share,
				LinkClicks:   ad.LinkClicks,
				// Truncation keeps the attributed integer totals from
				// ever exceeding the aggregate.
				WidgetClicks:   int(float64(agg.WidgetClicks) * share),
				WidgetSearches: int(float64(agg.WidgetSearches) * share),
				Searches:       ad.Searches,
				Purchases:      ad.Purchases,
				CPC:            ad.CPC,
				CTR:            ad.CTR,
			}
			recompute(&rec)
			res.Records = append(res.Records, rec)
		}
	}
	res.Audit.MatchedKeys = len(matched)

	resolveOrphans(res, lookup, matched, placeholderSet(opts))
	return res, nil
}

// recompute derives profit, ROAS, widget CTR and RPC from a record's own
// spend, revenue and click counts. Every ratio guards its denominator.
func recompute(r *models.MergedRecord) {
	r.Profit = r.Revenue - r.Spend
	if r.Spend > 0 {
		r.ROAS = r.Revenue/r.Spend - 1
	} else {
		r.ROAS = 0
	}
	if r.LinkClicks > 0 {
		r.WidgetCTR = float64(r.WidgetClicks) / float64(r.LinkClicks)
	} else {
		r.WidgetCTR = 0
	}
	if r.WidgetClicks > 0 {
		r.RPC = r.Revenue / float64(r.WidgetClicks)
	} else {
		r.RPC = 0
	}
}

func placeholderSet(opts Options) map[string]bool {
	ids := opts.PlaceholderIDs
	if ids == nil {
		ids = DefaultPlaceholderIDs
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
