package revenue

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/arbflow/adrecon/internal/models"
)

// Hourly report column headers.
const (
	colAdGroupID      = "ADGROUP ID"
	colDate           = "DATA DATE"
	colHour           = "DATA HOUR"
	colRevenue        = "PARTNER NET REVENUE"
	colWidgetClicks   = "SELLSIDE CLICKS NETWORK"
	colWidgetSearches = "WIDGET SEARCHES"
)

// ParseHourlyCSV reads the platform's hourly widget report. Rows keep
// their sub-daily granularity; daily rollup happens in the merge engine.
func ParseHourlyCSV(r io.Reader) ([]models.RevenueRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colAdGroupID, colDate, colRevenue} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("csv missing column %q", required)
		}
	}

	var rows []models.RevenueRecord
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line+1, err)
		}
		line++

		rev, err := strconv.ParseFloat(field(record, idx, colRevenue), 64)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: bad revenue %q", line, field(record, idx, colRevenue))
		}

		rows = append(rows, models.RevenueRecord{
			AdGroupID:      strings.TrimSpace(field(record, idx, colAdGroupID)),
			Date:           field(record, idx, colDate),
			Hour:           intField(record, idx, colHour),
			Revenue:        rev,
			WidgetClicks:   intField(record, idx, colWidgetClicks),
			WidgetSearches: intField(record, idx, colWidgetSearches),
		})
	}
	return rows, nil
}

// ParseHourlyCSVFile is the manual-upload fallback for when the report
// API is unavailable.
func ParseHourlyCSVFile(path string) ([]models.RevenueRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open revenue csv: %w", err)
	}
	defer f.Close()
	return ParseHourlyCSV(f)
}

func field(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func intField(record []string, idx map[string]int, name string) int {
	v, err := strconv.Atoi(strings.TrimSpace(field(record, idx, name)))
	if err != nil {
		return 0
	}
	return v
}
