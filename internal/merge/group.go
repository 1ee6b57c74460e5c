package merge

import "github.com/arbflow/adrecon/internal/models"

// CostGroup collects the ad-level cost rows that share one
// (ad set, date) pair. TotalClicks is the distribution weight used when
// splitting the matching revenue aggregate across members.
type CostGroup struct {
	TotalClicks int
	Ads         []models.CostRecord
}

// GroupCosts groups cost rows by (ad set, date). Member order within a
// group follows input order.
func GroupCosts(rows []models.CostRecord) map[models.AdSetDay]*CostGroup {
	out := make(map[models.AdSetDay]*CostGroup)
	for _, row := range rows {
		key := models.AdSetDay{AdSetID: row.AdSetID, Date: row.Date}
		g, ok := out[key]
		if !ok {
			g = &CostGroup{}
			out[key] = g
		}
		g.TotalClicks += row.LinkClicks
		g.Ads = append(g.Ads, row)
	}
	return out
}
