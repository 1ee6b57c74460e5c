package merge

import (
	"fmt"
	"sort"

	"github.com/arbflow/adrecon/internal/models"
)

// orphanDay accumulates tracking-failure orphan metrics for one date.
type orphanDay struct {
	revenue        float64
	widgetClicks   int
	widgetSearches int
}

// resolveOrphans handles every revenue aggregate whose key matched no
// cost group. Each unmatched key lands in exactly one bucket:
//
//   - revenue <= 0: discarded (counted, never emitted)
//   - placeholder or non-numeric id: tracking failure, redistributed
//     across that date's merged records by click share
//   - numeric id unknown to the cost platform: legitimate orphan,
//     emitted as a synthetic zero-spend record
//
// Both classification passes read the original unmatched set; the
// tracking pass does not shrink the population the legitimate pass sees.
// Redistribution builds a fresh record slice, so running a merge twice on
// the same inputs cannot double-apply.
func resolveOrphans(res *Result, lookup map[models.AdSetDay]*models.RevenueAggregate, matched map[models.AdSetDay]bool, placeholders map[string]bool) {
	unmatched := make([]models.AdSetDay, 0)
	for key := range lookup {
		if !matched[key] {
			unmatched = append(unmatched, key)
		}
	}
	sort.Slice(unmatched, func(i, j int) bool {
		if unmatched[i].Date != unmatched[j].Date {
			return unmatched[i].Date < unmatched[j].Date
		}
		return unmatched[i].AdSetID < unmatched[j].AdSetID
	})

	tracking := make(map[string]*orphanDay)
	var legitimate []models.AdSetDay

	for _, key := range unmatched {
		agg := lookup[key]
		if agg.Revenue <= 0 {
			res.Audit.DiscardedOrphans++
			continue
		}
		if placeholders[key.AdSetID] || !isNumericID(key.AdSetID) {
			day, ok := tracking[key.Date]
			if !ok {
				day = &orphanDay{}
				tracking[key.Date] = day
			}
			day.revenue += agg.Revenue
			day.widgetClicks += agg.WidgetClicks
			day.widgetSearches += agg.WidgetSearches
			res.Audit.TrackingOrphans++
			res.Audit.TrackingOrphanRevenue += agg.Revenue
		} else {
			legitimate = append(legitimate, key)
		}
	}

	if len(tracking) > 0 {
		res.Records = redistribute(res.Records, tracking, &res.Audit)
	}

	for _, key := range legitimate {
		agg := lookup[key]
		rec := models.MergedRecord{
			CampaignID:     "UNKNOWN",
			CampaignName:   "Unknown Campaign",
			AdSetID:        key.AdSetID,
			AdSetName:      fmt.Sprintf("[Revenue Only] %s", key.AdSetID),
			AdID:           "UNKNOWN",
			AdName:         "Unknown Ad",
			Market:         DefaultMarket,
			Date:           key.Date,
			Revenue:        agg.Revenue,
			WidgetClicks:   agg.WidgetClicks,
			WidgetSearches: agg.WidgetSearches,
		}
		recompute(&rec)
		res.Records = append(res.Records, rec)
		res.Audit.LegitimateOrphans++
	}
}

// redistribute folds tracking-failure orphan revenue back into the
// matched records, date by date, proportional to link clicks. A date with
// no matched records drops its orphan revenue (audited). A date whose
// records carry zero clicks splits equally.
func redistribute(records []models.MergedRecord, tracking map[string]*orphanDay, audit *Audit) []models.MergedRecord {
	out := make([]models.MergedRecord, len(records))
	copy(out, records)

	dates := make([]string, 0, len(tracking))
	for date := range tracking {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		day := tracking[date]

		var idx []int
		totalClicks := 0
		for i := range out {
			if out[i].Date == date {
				idx = append(idx, i)
				totalClicks += out[i].LinkClicks
			}
		}
		if len(idx) == 0 {
			audit.DroppedOrphanRevenue += day.revenue
			continue
		}

		equalShare := 1.0 / float64(len(idx))
		for _, i := range idx {
			share := equalShare
			if totalClicks > 0 {
				share = float64(out[i].LinkClicks) / float64(totalClicks)
			}
			out[i].Revenue += day.revenue * share
			out[i].WidgetClicks += int(float64(day.widgetClicks) * share)
			out[i].WidgetSearches += int(float64(day.widgetSearches) * share)
			recompute(&out[i])
		}
		audit.RedistributedRevenue += day.revenue
	}
	return out
}

// isNumericID reports whether s looks like a real cost-platform id.
// Those are always decimal digit strings.
func isNumericID(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
