package merge

import (
	"testing"

	"github.com/arbflow/adrecon/internal/models"
)

func TestAggregateRevenueSumsHours(t *testing.T) {
	rows := []models.RevenueRecord{
		{AdGroupID: "42", Date: "2025-01-01", Hour: 0, Revenue: 1.5, WidgetClicks: 2, WidgetSearches: 5},
		{AdGroupID: "42", Date: "2025-01-01", Hour: 1, Revenue: 2.5, WidgetClicks: 3, WidgetSearches: 1},
		{AdGroupID: "42", Date: "2025-01-02", Hour: 0, Revenue: 9.0, WidgetClicks: 1, WidgetSearches: 0},
		{AdGroupID: "7", Date: "2025-01-01", Hour: 23, Revenue: -0.5, WidgetClicks: 0, WidgetSearches: 0},
	}

	got := AggregateRevenue(rows)
	if len(got) != 3 {
		t.Fatalf("expected 3 aggregates, got %d", len(got))
	}

	day1 := got[models.AdSetDay{AdSetID: "42", Date: "2025-01-01"}]
	if day1 == nil {
		t.Fatal("missing aggregate for 42/2025-01-01")
	}
	if day1.Revenue != 4.0 || day1.WidgetClicks != 5 || day1.WidgetSearches != 6 {
		t.Errorf("aggregate = %+v, want revenue=4 clicks=5 searches=6", *day1)
	}

	neg := got[models.AdSetDay{AdSetID: "7", Date: "2025-01-01"}]
	if neg == nil || neg.Revenue != -0.5 {
		t.Errorf("negative revenue must pass through aggregation, got %+v", neg)
	}
}

func TestAggregateRevenueEmpty(t *testing.T) {
	if got := AggregateRevenue(nil); len(got) != 0 {
		t.Fatalf("expected empty map, got %d entries", len(got))
	}
}

func TestGroupCostsPreservesOrderAndWeight(t *testing.T) {
	rows := []models.CostRecord{
		{AdSetID: "42", AdID: "a", Date: "2025-01-01", LinkClicks: 60},
		{AdSetID: "42", AdID: "b", Date: "2025-01-01", LinkClicks: 40},
		{AdSetID: "42", AdID: "c", Date: "2025-01-02", LinkClicks: 7},
	}

	got := GroupCosts(rows)
	g := got[models.AdSetDay{AdSetID: "42", Date: "2025-01-01"}]
	if g == nil {
		t.Fatal("missing group for 42/2025-01-01")
	}
	if g.TotalClicks != 100 {
		t.Errorf("total clicks = %d, want 100", g.TotalClicks)
	}
	if len(g.Ads) != 2 || g.Ads[0].AdID != "a" || g.Ads[1].AdID != "b" {
		t.Errorf("member order not preserved: %+v", g.Ads)
	}
}
