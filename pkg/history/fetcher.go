package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/telemflow/telemflow-go/pkg/telemetry"
)

// Response validation errors.
var (
	ErrEmptyResponse   = errors.New("empty historical response")
	ErrInvalidResponse = errors.New("invalid historical response")
)

// Fetcher retrieves raw historical rows for one endpoint. Implemented
// by HTTPFetcher; tests substitute their own.
type Fetcher interface {
	Fetch(ctx context.Context, endpoint string, pageSize int) ([]Row, error)
}

// HTTPFetcher fetches historical rows from the telemetry server's HTTP
// API as a JSON array of records.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// Compile-time interface satisfaction check.
var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher for the given base URL
// (e.g. "http://car.local:8080"). Timeouts come from the caller's
// context.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

// Fetch issues one GET with the page size as a limit parameter and
// decodes the JSON array response.
func (f *HTTPFetcher) Fetch(ctx context.Context, endpoint string, pageSize int) ([]Row, error) {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	url := fmt.Sprintf("%s%s%slimit=%d", f.baseURL, endpoint, sep, pageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", endpoint, resp.StatusCode)
	}

	var rows []Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return rows, nil
}

// validateRows checks the response shape and normalizes timestamps.
// Every row must carry a "time" or "timestamp" field plus at least one
// other field; "timestamp" is renamed to "time" and coerced to epoch
// milliseconds.
func validateRows(rows []Row) error {
	if len(rows) == 0 {
		return ErrEmptyResponse
	}
	for i, row := range rows {
		t, hasTime := row["time"]
		if !hasTime {
			ts, hasTS := row["timestamp"]
			if !hasTS {
				return fmt.Errorf("%w: row %d missing time", ErrInvalidResponse, i)
			}
			delete(row, "timestamp")
			row["time"] = ts
			t = ts
		}
		if len(row) < 2 {
			return fmt.Errorf("%w: row %d has no data fields", ErrInvalidResponse, i)
		}
		ms, ok := telemetry.NumericValue(t)
		if !ok {
			return fmt.Errorf("%w: row %d has non-numeric time", ErrInvalidResponse, i)
		}
		row["time"] = int64(ms)
	}
	return nil
}
