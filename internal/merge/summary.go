package merge

import (
	"sort"

	"github.com/arbflow/adrecon/internal/models"
)

// SummaryReport aggregates a merged record set for dashboards.
type SummaryReport struct {
	Records      int                   `json:"records"`
	TotalSpend   float64               `json:"total_spend"`
	TotalRevenue float64               `json:"total_revenue"`
	TotalProfit  float64               `json:"total_profit"`
	AvgROAS      float64               `json:"avg_roas"`
	Top          []models.MergedRecord `json:"top"`
	Bottom       []models.MergedRecord `json:"bottom"`
}

// Summarize computes totals and the top/bottom n records by ROAS.
// AvgROAS is spend-weighted: total revenue over total spend, minus one.
// An empty input yields a zeroed report.
func Summarize(records []models.MergedRecord, n int) SummaryReport {
	rep := SummaryReport{Records: len(records)}
	for _, r := range records {
		rep.TotalSpend += r.Spend
		rep.TotalRevenue += r.Revenue
	}
	rep.TotalProfit = rep.TotalRevenue - rep.TotalSpend
	if rep.TotalSpend > 0 {
		rep.AvgROAS = rep.TotalRevenue/rep.TotalSpend - 1
	}

	if len(records) == 0 || n <= 0 {
		return rep
	}

	byROAS := make([]models.MergedRecord, len(records))
	copy(byROAS, records)
	sort.SliceStable(byROAS, func(i, j int) bool {
		return byROAS[i].ROAS > byROAS[j].ROAS
	})

	if n > len(byROAS) {
		n = len(byROAS)
	}
	rep.Top = append(rep.Top, byROAS[:n]...)

	bottom := make([]models.MergedRecord, 0, n)
	for i := len(byROAS) - 1; i >= len(byROAS)-n; i-- {
		bottom = append(bottom, byROAS[i])
	}
	rep.Bottom = bottom
	return rep
}
