package merge

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/arbflow/adrecon/internal/models"
)

const tolerance = 1e-9

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) <= tolerance
}

func costRow(adSetID, date string, clicks int, spend float64) models.CostRecord {
	return models.CostRecord{
		CampaignID:   "c-" + adSetID,
		CampaignName: "Campaign " + adSetID,
		AdSetID:      adSetID,
		AdSetName:    "AdSet " + adSetID,
		AdID:         "ad-" + adSetID,
		AdName:       "Ad " + adSetID,
		Date:         date,
		Spend:        spend,
		LinkClicks:   clicks,
	}
}

func revRow(adGroupID, date string, revenue float64, widgetClicks int) models.RevenueRecord {
	return models.RevenueRecord{
		AdGroupID:    adGroupID,
		Date:         date,
		Revenue:      revenue,
		WidgetClicks: widgetClicks,
	}
}

func TestMergeProportionalSplit(t *testing.T) {
	cost := []models.CostRecord{
		costRow("42", "2025-01-01", 60, 30),
		costRow("42", "2025-01-01", 40, 20),
	}
	revenue := []models.RevenueRecord{
		revRow("42", "2025-01-01", 100.0, 10),
	}

	res, err := Merge(cost, revenue, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}

	if !approxEqual(res.Records[0].Revenue, 60.0) {
		t.Errorf("first ad revenue = %v, want 60", res.Records[0].Revenue)
	}
	if !approxEqual(res.Records[1].Revenue, 40.0) {
		t.Errorf("second ad revenue = %v, want 40", res.Records[1].Revenue)
	}
	if res.Records[0].WidgetClicks != 6 || res.Records[1].WidgetClicks != 4 {
		t.Errorf("widget clicks = %d/%d, want 6/4",
			res.Records[0].WidgetClicks, res.Records[1].WidgetClicks)
	}
	if res.Audit.MatchedKeys != 1 {
		t.Errorf("matched keys = %d, want 1", res.Audit.MatchedKeys)
	}
}

func TestMergeRevenueConservation(t *testing.T) {
	cost := []models.CostRecord{
		costRow("7", "2025-02-10", 13, 5),
		costRow("7", "2025-02-10", 29, 5),
		costRow("7", "2025-02-10", 58, 5),
	}
	revenue := []models.RevenueRecord{
		revRow("7", "2025-02-10", 333.33, 97),
	}

	res, err := Merge(cost, revenue, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var gotRevenue float64
	gotWidget := 0
	for _, r := range res.Records {
		gotRevenue += r.Revenue
		gotWidget += r.WidgetClicks
	}
	if !approxEqual(gotRevenue, 333.33) {
		t.Errorf("attributed revenue sums to %v, want 333.33", gotRevenue)
	}
	// Truncation may undershoot, never overshoot.
	if gotWidget > 97 {
		t.Errorf("attributed widget clicks sum to %d, exceeds aggregate 97", gotWidget)
	}
}

func TestMergeZeroWeightGroupGetsNothing(t *testing.T) {
	cost := []models.CostRecord{
		costRow("9", "2025-03-01", 0, 12),
		costRow("9", "2025-03-01", 0, 8),
	}
	revenue := []models.RevenueRecord{
		revRow("9", "2025-03-01", 55.5, 3),
	}

	res, err := Merge(cost, revenue, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range res.Records {
		if r.Revenue != 0 || r.WidgetClicks != 0 {
			t.Errorf("record %d got revenue=%v widgetClicks=%d, want zero", i, r.Revenue, r.WidgetClicks)
		}
		if !approxEqual(r.Profit, -r.Spend) {
			t.Errorf("record %d profit = %v, want %v", i, r.Profit, -r.Spend)
		}
	}
	if !approxEqual(res.Audit.ZeroWeightRevenue, 55.5) {
		t.Errorf("zero-weight revenue audit = %v, want 55.5", res.Audit.ZeroWeightRevenue)
	}
}

func TestMergeUnmatchedCostGroupGetsZeroRevenue(t *testing.T) {
	cost := []models.CostRecord{costRow("5", "2025-01-05", 10, 25)}

	res, err := Merge(cost, nil, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := res.Records[0]
	if r.Revenue != 0 {
		t.Errorf("revenue = %v, want 0", r.Revenue)
	}
	if !approxEqual(r.Profit, -25) {
		t.Errorf("profit = %v, want -25", r.Profit)
	}
	if r.ROAS != -1 {
		t.Errorf("roas = %v, want -1", r.ROAS)
	}
}

func TestMergeTrackingOrphanRedistribution(t *testing.T) {
	cost := []models.CostRecord{
		costRow("42", "2025-01-01", 60, 10),
		costRow("42", "2025-01-01", 40, 10),
	}
	revenue := []models.RevenueRecord{
		revRow("42", "2025-01-01", 100.0, 10),
		revRow("{{adset.id}}", "2025-01-01", 50.0, 20),
	}

	res, err := Merge(cost, revenue, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}

	// 100 matched + 50 orphan, both split 60/40.
	if !approxEqual(res.Records[0].Revenue, 90.0) {
		t.Errorf("first record revenue = %v, want 90", res.Records[0].Revenue)
	}
	if !approxEqual(res.Records[1].Revenue, 60.0) {
		t.Errorf("second record revenue = %v, want 60", res.Records[1].Revenue)
	}
	if !approxEqual(res.Audit.RedistributedRevenue, 50.0) {
		t.Errorf("redistributed revenue = %v, want 50", res.Audit.RedistributedRevenue)
	}
	if res.Audit.TrackingOrphans != 1 {
		t.Errorf("tracking orphans = %d, want 1", res.Audit.TrackingOrphans)
	}
}

func TestMergeEqualShareWhenDateHasNoClicks(t *testing.T) {
	cost := []models.CostRecord{costRow("42", "2025-01-01", 0, 10)}
	revenue := []models.RevenueRecord{
		revRow("{{adset.id}}", "2025-01-01", 50.0, 0),
	}

	res, err := Merge(cost, revenue, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	if !approxEqual(res.Records[0].Revenue, 50.0) {
		t.Errorf("revenue = %v, want 50 via equal-share fallback", res.Records[0].Revenue)
	}
}

func TestMergeOrphanDroppedWhenDateHasNoRecords(t *testing.T) {
	cost := []models.CostRecord{costRow("42", "2025-01-01", 10, 10)}
	revenue := []models.RevenueRecord{
		revRow("{{adset.id}}", "2025-01-02", 75.0, 5),
	}

	res, err := Merge(cost, revenue, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approxEqual(res.Records[0].Revenue, 0) {
		t.Errorf("matched record revenue = %v, want 0", res.Records[0].Revenue)
	}
	if !approxEqual(res.Audit.DroppedOrphanRevenue, 75.0) {
		t.Errorf("dropped orphan revenue = %v, want 75", res.Audit.DroppedOrphanRevenue)
	}
	if res.Audit.RedistributedRevenue != 0 {
		t.Errorf("redistributed revenue = %v, want 0", res.Audit.RedistributedRevenue)
	}
}

func TestMergeLegitimateOrphanEmitted(t *testing.T) {
	cost := []models.CostRecord{costRow("42", "2025-01-01", 10, 10)}
	revenue := []models.RevenueRecord{
		revRow("99999", "2025-01-01", 80.0, 16),
	}

	res, err := Merge(cost, revenue, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(res.Records))
	}

	orphan := res.Records[1]
	if orphan.AdSetID != "99999" {
		t.Fatalf("orphan ad set id = %q, want 99999", orphan.AdSetID)
	}
	if orphan.Spend != 0 {
		t.Errorf("orphan spend = %v, want 0", orphan.Spend)
	}
	if !approxEqual(orphan.Profit, 80.0) {
		t.Errorf("orphan profit = %v, want 80", orphan.Profit)
	}
	if orphan.ROAS != 0 {
		t.Errorf("orphan roas = %v, want 0", orphan.ROAS)
	}
	if !approxEqual(orphan.RPC, 5.0) {
		t.Errorf("orphan rpc = %v, want 5", orphan.RPC)
	}
	if orphan.CampaignID != "UNKNOWN" {
		t.Errorf("orphan campaign id = %q, want UNKNOWN", orphan.CampaignID)
	}
	// The matched record keeps its own zero revenue.
	if res.Records[0].Revenue != 0 {
		t.Errorf("matched record revenue = %v, want 0", res.Records[0].Revenue)
	}
}

func TestMergeNonPositiveOrphanDiscarded(t *testing.T) {
	cost := []models.CostRecord{costRow("42", "2025-01-01", 10, 10)}
	revenue := []models.RevenueRecord{
		revRow("99999", "2025-01-01", -5.0, 3),
		revRow("{{adset.id}}", "2025-01-01", 0, 2),
	}

	res, err := Merge(cost, revenue, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	if res.Audit.DiscardedOrphans != 2 {
		t.Errorf("discarded orphans = %d, want 2", res.Audit.DiscardedOrphans)
	}
	if res.Audit.TrackingOrphans != 0 || res.Audit.LegitimateOrphans != 0 {
		t.Errorf("non-positive orphans leaked into a bucket: %+v", res.Audit)
	}
}

func TestMergeOrphanClassificationTotality(t *testing.T) {
	cost := []models.CostRecord{costRow("1", "2025-01-01", 10, 10)}
	revenue := []models.RevenueRecord{
		revRow("1", "2025-01-01", 10, 0),          // matched
		revRow("2", "2025-01-01", 20, 0),          // legitimate
		revRow("null", "2025-01-01", 30, 0),       // tracking failure
		revRow("abc-123", "2025-01-01", 40, 0),    // tracking failure (non-numeric)
		revRow("3", "2025-01-01", -1, 0),          // discarded
	}

	res, err := Merge(cost, revenue, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total := res.Audit.MatchedKeys + res.Audit.TrackingOrphans +
		res.Audit.LegitimateOrphans + res.Audit.DiscardedOrphans
	if total != 5 {
		t.Errorf("classification covers %d keys, want all 5: %+v", total, res.Audit)
	}
	if res.Audit.TrackingOrphans != 2 || res.Audit.LegitimateOrphans != 1 || res.Audit.DiscardedOrphans != 1 {
		t.Errorf("unexpected bucket split: %+v", res.Audit)
	}
}

func TestMergeDerivedFieldsConsistent(t *testing.T) {
	cost := []models.CostRecord{
		costRow("42", "2025-01-01", 60, 30),
		costRow("42", "2025-01-01", 40, 0),
		costRow("77", "2025-01-02", 0, 5),
	}
	revenue := []models.RevenueRecord{
		revRow("42", "2025-01-01", 100.0, 10),
		revRow("{{adset.id}}", "2025-01-01", 41.5, 7),
		revRow("55555", "2025-01-02", 12.0, 2),
	}

	res, err := Merge(cost, revenue, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range res.Records {
		wantProfit := r.Revenue - r.Spend
		if !approxEqual(r.Profit, wantProfit) {
			t.Errorf("record %d profit = %v, want %v", i, r.Profit, wantProfit)
		}
		wantROAS := 0.0
		if r.Spend > 0 {
			wantROAS = r.Revenue/r.Spend - 1
		}
		if !approxEqual(r.ROAS, wantROAS) {
			t.Errorf("record %d roas = %v, want %v", i, r.ROAS, wantROAS)
		}
		wantCTR := 0.0
		if r.LinkClicks > 0 {
			wantCTR = float64(r.WidgetClicks) / float64(r.LinkClicks)
		}
		if !approxEqual(r.WidgetCTR, wantCTR) {
			t.Errorf("record %d widget ctr = %v, want %v", i, r.WidgetCTR, wantCTR)
		}
		wantRPC := 0.0
		if r.WidgetClicks > 0 {
			wantRPC = r.Revenue / float64(r.WidgetClicks)
		}
		if !approxEqual(r.RPC, wantRPC) {
			t.Errorf("record %d rpc = %v, want %v", i, r.RPC, wantRPC)
		}
	}
}

func TestMergeDeterministic(t *testing.T) {
	cost := []models.CostRecord{
		costRow("42", "2025-01-01", 60, 30),
		costRow("42", "2025-01-01", 40, 20),
		costRow("7", "2025-01-01", 10, 5),
		costRow("7", "2025-01-02", 20, 8),
	}
	revenue := []models.RevenueRecord{
		revRow("42", "2025-01-01", 100.0, 10),
		revRow("7", "2025-01-02", 30.0, 4),
		revRow("{{adset.id}}", "2025-01-01", 12.5, 3),
		revRow("88888", "2025-01-02", 9.0, 1),
		revRow("\\N", "2025-01-02", 4.0, 0),
	}

	first, err := Merge(cost, revenue, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Merge(cost, revenue, Options{})
		if err != nil {
			t.Fatalf("unexpected error on run %d: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("merge output differs between identical runs")
		}
	}
}

func TestMergeRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		cost    []models.CostRecord
		revenue []models.RevenueRecord
	}{
		{
			name: "cost record without ad set id",
			cost: []models.CostRecord{{Date: "2025-01-01", Spend: 1}},
		},
		{
			name: "cost record without date",
			cost: []models.CostRecord{{AdSetID: "42", Spend: 1}},
		},
		{
			name:    "revenue record without date",
			cost:    []models.CostRecord{costRow("42", "2025-01-01", 1, 1)},
			revenue: []models.RevenueRecord{{AdGroupID: "42", Revenue: 5}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(tt.cost, tt.revenue, Options{})
			if !errors.Is(err, ErrMalformedInput) {
				t.Fatalf("err = %v, want ErrMalformedInput", err)
			}
		})
	}
}

func TestMergeMarketTagging(t *testing.T) {
	rules := []MarketRule{
		{Substring: "BRA_", Market: "BR"},
		{Substring: "MEX_", Market: "MX"},
	}
	cost := []models.CostRecord{
		{AdSetID: "1", AdSetName: "BRA_search_01", Date: "2025-01-01", LinkClicks: 1},
		{AdSetID: "2", AdSetName: "MEX_social_02", Date: "2025-01-01", LinkClicks: 1},
		{AdSetID: "3", AdSetName: "US_native_03", Date: "2025-01-01", LinkClicks: 1},
	}

	res, err := Merge(cost, nil, Options{MarketRules: rules})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]string{"1": "BR", "2": "MX", "3": "OTHER"}
	for _, r := range res.Records {
		if r.Market != want[r.AdSetID] {
			t.Errorf("ad set %s market = %q, want %q", r.AdSetID, r.Market, want[r.AdSetID])
		}
	}
}
