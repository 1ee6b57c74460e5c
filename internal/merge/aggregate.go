package merge

import "github.com/arbflow/adrecon/internal/models"

// AggregateRevenue collapses hourly (or finer) revenue rows into one
// aggregate per (ad group, date). Pure summation; upstream adapters are
// responsible for numeric normalization.
func AggregateRevenue(rows []models.RevenueRecord) map[models.AdSetDay]*models.RevenueAggregate {
	out := make(map[models.AdSetDay]*models.RevenueAggregate, len(rows))
	for _, row := range rows {
		key := models.AdSetDay{AdSetID: row.AdGroupID, Date: row.Date}
		agg, ok := out[key]
		if !ok {
			agg = &models.RevenueAggregate{}
			out[key] = agg
		}
		agg.Revenue += row.Revenue
		agg.WidgetClicks += row.WidgetClicks
		agg.WidgetSearches += row.WidgetSearches
	}
	return out
}
