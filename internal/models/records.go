package models

import "time"

// Dates are carried as YYYY-MM-DD strings in the reporting timezone of
// the cost platform. Both sources report in calendar days, so the merge
// engine never needs time arithmetic on them.
const DateFormat = "2006-01-02"

// CostRecord is one normalized row from the paid-traffic platform,
// fetched at ad level. Multiple records may share (AdSetID, Date).
type CostRecord struct {
	CampaignID   string  `json:"campaign_id"`
	CampaignName string  `json:"campaign_name"`
	AdSetID      string  `json:"ad_set_id"`
	AdSetName    string  `json:"ad_set_name"`
	AdID         string  `json:"ad_id"`
	AdName       string  `json:"ad_name"`
	Date         string  `json:"date"`
	Spend        float64 `json:"spend"`
	LinkClicks   int     `json:"link_clicks"`
	CPC          float64 `json:"cpc"`
	CTR          float64 `json:"ctr"`
	Searches     int     `json:"searches"`
	Purchases    int     `json:"purchases"`
}

// RevenueRecord is one normalized row from the monetization platform, at
// hourly (or finer) granularity. AdGroupID is the monetization side's
// own identifier; it may match a cost-side AdSetID, may be a placeholder
// token, or may be a valid id the cost platform has never seen.
type RevenueRecord struct {
	AdGroupID      string  `json:"ad_group_id"`
	Date           string  `json:"date"`
	Hour           int     `json:"hour"`
	Revenue        float64 `json:"revenue"`
	WidgetClicks   int     `json:"widget_clicks"`
	WidgetSearches int     `json:"widget_searches"`
}

// AdSetDay keys cost groups and revenue aggregates.
type AdSetDay struct {
	AdSetID string
	Date    string
}

// RevenueAggregate is the daily rollup of revenue rows for one
// (ad group, date) pair.
type RevenueAggregate struct {
	Revenue        float64
	WidgetClicks   int
	WidgetSearches int
}

// MergedRecord is the unified per-ad per-day financial record. The merge
// engine creates them; the orphan redistribution step is the only code
// that produces updated copies afterwards.
type MergedRecord struct {
	CampaignID     string  `json:"campaign_id"`
	CampaignName   string  `json:"campaign_name"`
	AdSetID        string  `json:"ad_set_id"`
	AdSetName      string  `json:"ad_set_name"`
	AdID           string  `json:"ad_id"`
	AdName         string  `json:"ad_name"`
	Market         string  `json:"market"`
	Date           string  `json:"date"`
	Spend          float64 `json:"spend"`
	Revenue        float64 `json:"revenue"`
	Profit         float64 `json:"profit"`
	ROAS           float64 `json:"roas"`
	LinkClicks     int     `json:"link_clicks"`
	WidgetClicks   int     `json:"widget_clicks"`
	WidgetSearches int     `json:"widget_searches"`
	Searches       int     `json:"searches"`
	Purchases      int     `json:"purchases"`
	CPC            float64 `json:"cpc"`
	CTR            float64 `json:"ctr"`
	WidgetCTR      float64 `json:"widget_ctr"`
	RPC            float64 `json:"rpc"`
}

// SyncRun records one reconciliation run for auditing.
type SyncRun struct {
	ID                   string     `json:"id"`
	DateFrom             string     `json:"date_from"`
	DateTo               string     `json:"date_to"`
	Status               string     `json:"status"` // running, completed, failed
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	CostRecords          int        `json:"cost_records"`
	RevenueRecords       int        `json:"revenue_records"`
	MergedRecords        int        `json:"merged_records"`
	TrackingOrphans      int        `json:"tracking_orphans"`
	LegitimateOrphans    int        `json:"legitimate_orphans"`
	RedistributedRevenue float64    `json:"redistributed_revenue"`
	DroppedRevenue       float64    `json:"dropped_revenue"`
	Error                string     `json:"error,omitempty"`
}
