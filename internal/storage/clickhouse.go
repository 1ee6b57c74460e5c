package storage

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/arbflow/adrecon/internal/models"
)

// ClickHouseWarehouse implements WarehouseRepo on the analytics
// warehouse. The table is append-only and partitioned by date.
type ClickHouseWarehouse struct {
	conn  driver.Conn
	table string
}

// NewClickHouseWarehouse creates a warehouse repo over an existing
// ClickHouse connection.
func NewClickHouseWarehouse(conn driver.Conn, table string) *ClickHouseWarehouse {
	return &ClickHouseWarehouse{conn: conn, table: table}
}

const mergedColumns = "campaign_id, campaign_name, ad_set_id, ad_set_name, ad_id, ad_name, market, date, spend, revenue, profit, roas, link_clicks, widget_clicks, widget_searches, searches, purchases, cpc, ctr, widget_ctr, rpc"

// InsertMerged appends a batch of merged records.
func (w *ClickHouseWarehouse) InsertMerged(ctx context.Context, records []models.MergedRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", w.table, mergedColumns))
	if err != nil {
		return fmt.Errorf("prepare warehouse batch: %w", err)
	}

	for _, r := range records {
		err := batch.Append(
			r.CampaignID, r.CampaignName,
			r.AdSetID, r.AdSetName,
			r.AdID, r.AdName,
			r.Market, r.Date,
			r.Spend, r.Revenue, r.Profit, r.ROAS,
			int64(r.LinkClicks), int64(r.WidgetClicks), int64(r.WidgetSearches),
			int64(r.Searches), int64(r.Purchases),
			r.CPC, r.CTR, r.WidgetCTR, r.RPC,
		)
		if err != nil {
			return fmt.Errorf("append merged record: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send warehouse batch: %w", err)
	}
	return nil
}

// ListByDateRange returns merged records within the date range.
func (w *ClickHouseWarehouse) ListByDateRange(ctx context.Context, dateFrom, dateTo, market string) ([]models.MergedRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE date >= ? AND date <= ? AND (? = '' OR market = ?)
		ORDER BY date, ad_set_id, ad_id
	`, mergedColumns, w.table)

	rows, err := w.conn.Query(ctx, query, dateFrom, dateTo, market, market)
	if err != nil {
		return nil, fmt.Errorf("query warehouse by date range: %w", err)
	}
	defer rows.Close()

	return scanMerged(rows)
}

// ListByAdSet returns the latest records for one ad set.
func (w *ClickHouseWarehouse) ListByAdSet(ctx context.Context, adSetID string, limit int) ([]models.MergedRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE ad_set_id = ?
		ORDER BY date DESC
		LIMIT %d
	`, mergedColumns, w.table, limit)

	rows, err := w.conn.Query(ctx, query, adSetID)
	if err != nil {
		return nil, fmt.Errorf("query warehouse by ad set: %w", err)
	}
	defer rows.Close()

	return scanMerged(rows)
}

func scanMerged(rows driver.Rows) ([]models.MergedRecord, error) {
	var out []models.MergedRecord
	for rows.Next() {
		var r models.MergedRecord
		var linkClicks, widgetClicks, widgetSearches, searches, purchases int64

		err := rows.Scan(
			&r.CampaignID, &r.CampaignName,
			&r.AdSetID, &r.AdSetName,
			&r.AdID, &r.AdName,
			&r.Market, &r.Date,
			&r.Spend, &r.Revenue, &r.Profit, &r.ROAS,
			&linkClicks, &widgetClicks, &widgetSearches,
			&searches, &purchases,
			&r.CPC, &r.CTR, &r.WidgetCTR, &r.RPC,
		)
		if err != nil {
			return nil, fmt.Errorf("scan merged record: %w", err)
		}

		r.LinkClicks = int(linkClicks)
		r.WidgetClicks = int(widgetClicks)
		r.WidgetSearches = int(widgetSearches)
		r.Searches = int(searches)
		r.Purchases = int(purchases)
		out = append(out, r)
	}
	return out, rows.Err()
}
