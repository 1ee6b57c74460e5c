// Package adspend fetches ad-level spend data from the paid-traffic
// platform's insights API and normalizes it into cost records.
package adspend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/arbflow/adrecon/internal/config"
	"github.com/arbflow/adrecon/internal/models"
	"go.uber.org/zap"
)

const (
	maxAttempts = 3
	baseBackoff = 2 * time.Second
)

// Client talks to the paid-traffic platform's reporting API.
type Client struct {
	baseURL     string
	accessToken string
	accountID   string
	pageSize    int
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient creates a cost source client.
func NewClient(cfg config.CostSourceConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:     cfg.BaseURL,
		accessToken: cfg.AccessToken,
		accountID:   cfg.AccountID,
		pageSize:    cfg.PageSize,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		logger:      logger,
	}
}

// insightsPage mirrors one page of the insights API response. Numeric
// metrics arrive as strings.
type insightsPage struct {
	Data   []insightRow `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type insightRow struct {
	CampaignID   string   `json:"campaign_id"`
	CampaignName string   `json:"campaign_name"`
	AdSetID      string   `json:"adset_id"`
	AdSetName    string   `json:"adset_name"`
	AdID         string   `json:"ad_id"`
	AdName       string   `json:"ad_name"`
	DateStart    string   `json:"date_start"`
	Spend        string   `json:"spend"`
	Clicks       string   `json:"clicks"`
	CPC          string   `json:"cpc"`
	CTR          string   `json:"ctr"`
	Actions      []action `json:"actions"`
}

type action struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

// FetchInsights returns ad-level cost records for the date range,
// following cursor pagination until exhausted. Every returned record has
// a non-empty ad set id and date, and non-negative spend and clicks.
func (c *Client) FetchInsights(ctx context.Context, dateFrom, dateTo string) ([]models.CostRecord, error) {
	params := url.Values{}
	params.Set("access_token", c.accessToken)
	params.Set("level", "ad")
	params.Set("fields", "campaign_id,campaign_name,adset_id,adset_name,ad_id,ad_name,spend,clicks,cpc,ctr,actions")
	params.Set("time_range", fmt.Sprintf(`{"since":%q,"until":%q}`, dateFrom, dateTo))
	params.Set("time_increment", "1")
	params.Set("limit", strconv.Itoa(c.pageSize))

	next := fmt.Sprintf("%s/act_%s/insights?%s", c.baseURL, c.accountID, params.Encode())

	var records []models.CostRecord
	pages := 0
	for next != "" {
		page, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("fetch insights page %d: %w", pages+1, err)
		}
		pages++

		for _, row := range page.Data {
			if row.AdSetID == "" || row.DateStart == "" {
				c.logger.Warn("skipping insight row without ad set id or date",
					zap.String("campaign_id", row.CampaignID),
					zap.String("ad_id", row.AdID),
				)
				continue
			}
			records = append(records, models.CostRecord{
				CampaignID:   row.CampaignID,
				CampaignName: row.CampaignName,
				AdSetID:      row.AdSetID,
				AdSetName:    row.AdSetName,
				AdID:         row.AdID,
				AdName:       row.AdName,
				Date:         row.DateStart,
				Spend:        clampFloat(parseFloat(row.Spend)),
				LinkClicks:   clampInt(parseInt(row.Clicks)),
				CPC:          clampFloat(parseFloat(row.CPC)),
				CTR:          clampFloat(parseFloat(row.CTR)),
				Searches:     actionCount(row.Actions, "search"),
				Purchases:    actionCount(row.Actions, "omni_purchase"),
			})
		}

		next = page.Paging.Next
	}

	c.logger.Info("fetched cost source insights",
		zap.String("date_from", dateFrom),
		zap.String("date_to", dateTo),
		zap.Int("pages", pages),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// fetchPage GETs one page with retry on transport errors and 5xx.
func (c *Client) fetchPage(ctx context.Context, rawURL string) (*insightsPage, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := baseBackoff * time.Duration(1<<(attempt-2))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("insights API returned %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("insights API returned %d: %s", resp.StatusCode, truncate(body, 200))
		}

		var page insightsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decode insights response: %w", err)
		}
		return &page, nil
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}

func actionCount(actions []action, actionType string) int {
	for _, a := range actions {
		if a.ActionType == actionType {
			return clampInt(parseInt(a.Value))
		}
	}
	return 0
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int {
	i, _ := strconv.Atoi(s)
	return i
}

func clampFloat(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

func clampInt(i int) int {
	if i < 0 {
		return 0
	}
	return i
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
