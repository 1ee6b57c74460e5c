// Package revenue fetches hourly monetization data from the revenue
// platform's async report API and normalizes it into revenue records.
package revenue

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/arbflow/adrecon/internal/config"
	"github.com/arbflow/adrecon/internal/models"
	"go.uber.org/zap"
)

// Client talks to the monetization platform. The platform's report API
// is asynchronous: request a report, poll until it is built, download
// the CSV payload. One API key per portal.
type Client struct {
	baseURL      string
	reportType   string
	portals      []Portal
	pollInterval time.Duration
	pollTimeout  time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

// Portal is one revenue account.
type Portal struct {
	Name   string
	APIKey string
}

// NewClient creates a revenue source client. Returns a client with no
// portals when no API keys are configured; FetchRevenue then yields
// nothing, which the pipeline treats as zero revenue.
func NewClient(cfg config.RevenueSourceConfig, logger *zap.Logger) *Client {
	portals := make([]Portal, 0, len(cfg.APIKeys))
	for i, key := range cfg.APIKeys {
		name := fmt.Sprintf("portal-%d", i+1)
		if i < len(cfg.PortalNames) {
			name = cfg.PortalNames[i]
		}
		portals = append(portals, Portal{Name: name, APIKey: key})
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		reportType:   cfg.ReportType,
		portals:      portals,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		httpClient:   &http.Client{Timeout: 2 * time.Minute},
		logger:       logger,
	}
}

// Configured reports whether at least one portal is set up.
func (c *Client) Configured() bool {
	return c.baseURL != "" && len(c.portals) > 0
}

// FetchRevenue pulls hourly revenue rows for the date range from every
// portal. Portals are fetched in parallel and the combined result is
// fully materialized before returning.
func (c *Client) FetchRevenue(ctx context.Context, dateFrom, dateTo string) ([]models.RevenueRecord, error) {
	if !c.Configured() {
		c.logger.Warn("revenue source not configured, revenue will be zero")
		return nil, nil
	}

	var (
		mu   sync.Mutex
		all  []models.RevenueRecord
		errs []error
		wg   sync.WaitGroup
	)
	for _, portal := range c.portals {
		portal := portal
		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := c.fetchPortal(ctx, portal, dateFrom, dateTo)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("portal %s: %w", portal.Name, err))
				return
			}
			all = append(all, rows...)
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		return nil, errs[0]
	}
	c.logger.Info("fetched revenue source data",
		zap.String("date_from", dateFrom),
		zap.String("date_to", dateTo),
		zap.Int("portals", len(c.portals)),
		zap.Int("records", len(all)),
	)
	return all, nil
}

func (c *Client) fetchPortal(ctx context.Context, portal Portal, dateFrom, dateTo string) ([]models.RevenueRecord, error) {
	reportID, err := c.requestReport(ctx, portal, dateFrom, dateTo)
	if err != nil {
		return nil, fmt.Errorf("request report: %w", err)
	}
	c.logger.Info("revenue report requested",
		zap.String("portal", portal.Name),
		zap.String("report_id", reportID),
	)

	contentURL, err := c.awaitReport(ctx, portal, reportID)
	if err != nil {
		return nil, fmt.Errorf("await report %s: %w", reportID, err)
	}

	body, err := c.download(ctx, contentURL)
	if err != nil {
		return nil, fmt.Errorf("download report %s: %w", reportID, err)
	}
	defer body.Close()

	rows, err := ParseHourlyCSV(body)
	if err != nil {
		return nil, fmt.Errorf("parse report %s: %w", reportID, err)
	}
	return rows, nil
}

// requestReport asks the platform to build a report covering the range.
// The API addresses windows as (days, end date).
func (c *Client) requestReport(ctx context.Context, portal Portal, dateFrom, dateTo string) (string, error) {
	from, err := time.Parse(models.DateFormat, dateFrom)
	if err != nil {
		return "", fmt.Errorf("bad date_from %q: %w", dateFrom, err)
	}
	to, err := time.Parse(models.DateFormat, dateTo)
	if err != nil {
		return "", fmt.Errorf("bad date_to %q: %w", dateTo, err)
	}
	days := int(to.Sub(from).Hours()/24) + 1
	if days < 1 {
		return "", fmt.Errorf("date_to %q before date_from %q", dateTo, dateFrom)
	}

	params := url.Values{}
	params.Set("report_type", c.reportType)
	params.Set("days", strconv.Itoa(days))
	params.Set("date", dateTo)
	params.Set("auth_key", portal.APIKey)

	reqURL := fmt.Sprintf("%s/partner/v1/report?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("report request returned %d", resp.StatusCode)
	}

	var out struct {
		ReportID string `json:"report_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode report response: %w", err)
	}
	if out.ReportID == "" {
		return "", fmt.Errorf("no report_id in response")
	}
	return out.ReportID, nil
}

// awaitReport polls the status endpoint until the report is built and
// returns its content URL.
func (c *Client) awaitReport(ctx context.Context, portal Portal, reportID string) (string, error) {
	statusURL := fmt.Sprintf("%s/partner/v1/report/%s/status?auth_key=%s",
		c.baseURL, url.PathEscape(reportID), url.QueryEscape(portal.APIKey))

	deadline := time.NewTimer(c.pollTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.pollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", fmt.Errorf("report not ready after %s", c.pollTimeout)
		case <-tick.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return "", err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warn("report status check failed, retrying", zap.Error(err))
			continue
		}

		var status struct {
			ReportStatus string `json:"report_status"`
			ContentURL   string `json:"content_url"`
		}
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("decode status response: %w", err)
		}

		switch status.ReportStatus {
		case "SUCCESS":
			if status.ContentURL == "" {
				return "", fmt.Errorf("report ready but no content_url")
			}
			if !strings.HasPrefix(status.ContentURL, "http") {
				return c.baseURL + status.ContentURL, nil
			}
			return status.ContentURL, nil
		case "FAILED":
			return "", fmt.Errorf("report generation failed")
		case "PENDING", "RUNNING":
			continue
		default:
			c.logger.Warn("unknown report status", zap.String("status", status.ReportStatus))
		}
	}
}

// download fetches the report payload, transparently decompressing gzip.
func (c *Client) download(ctx context.Context, contentURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download returned %d", resp.StatusCode)
	}

	if resp.Header.Get("Content-Encoding") == "gzip" ||
		strings.HasSuffix(contentURL, ".gz") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("open gzip payload: %w", err)
		}
		return &gzipReadCloser{gz: gz, underlying: resp.Body}, nil
	}
	return resp.Body, nil
}

type gzipReadCloser struct {
	gz         *gzip.Reader
	underlying io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	if err := g.gz.Close(); err != nil {
		g.underlying.Close()
		return err
	}
	return g.underlying.Close()
}
