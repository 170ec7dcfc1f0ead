package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"vquant/internal/domain"
)

// LoadBarsCSV reads a daily bar series for one symbol from a CSV file with a
// header row. Recognised columns: date, open, high, low, close, volume,
// amount (amount optional). Dates are YYYY-MM-DD. Rows are returned sorted
// ascending by date.
func LoadBarsCSV(path, symbol string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("reading %s: %w", path, domain.ErrEmptyData)
	}

	cols := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "open", "high", "low", "close", "volume"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("reading %s: missing column %q: %w", path, required, domain.ErrInvalidParams)
		}
	}

	bars := make([]domain.Bar, 0, len(records)-1)
	for lineNo, rec := range records[1:] {
		b := domain.Bar{Symbol: symbol}

		if b.Timestamp, err = time.Parse("2006-01-02", rec[cols["date"]]); err != nil {
			return nil, fmt.Errorf("line %d: parsing date: %w", lineNo+2, err)
		}
		fields := []struct {
			name string
			dst  *float64
		}{
			{"open", &b.Open},
			{"high", &b.High},
			{"low", &b.Low},
			{"close", &b.Close},
		}
		for _, fl := range fields {
			if *fl.dst, err = strconv.ParseFloat(rec[cols[fl.name]], 64); err != nil {
				return nil, fmt.Errorf("line %d: parsing %s: %w", lineNo+2, fl.name, err)
			}
		}
		if b.Volume, err = strconv.ParseInt(rec[cols["volume"]], 10, 64); err != nil {
			return nil, fmt.Errorf("line %d: parsing volume: %w", lineNo+2, err)
		}
		if i, ok := cols["amount"]; ok && rec[i] != "" {
			if b.Amount, err = strconv.ParseFloat(rec[i], 64); err != nil {
				return nil, fmt.Errorf("line %d: parsing amount: %w", lineNo+2, err)
			}
		}
		bars = append(bars, b)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}
