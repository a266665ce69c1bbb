// Package registry queries the external identity registry for membership
// records.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Record is one identity-registry entry for an address.
type Record struct {
	Exists bool `json:"-"`
	Active bool `json:"active"`
}

type HTTPClient struct {
	http    *http.Client
	baseURL string
	timeout time.Duration
}

func New(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		timeout: timeout,
	}
}

// Record fetches the registry entry for an address under one scheme version
// and organization. A 404 means no record.
func (c *HTTPClient) Record(ctx context.Context, version, organization, address string) (Record, error) {
	endpoint := fmt.Sprintf("%s/%s/record/%s/%s",
		c.baseURL,
		url.PathEscape(version),
		url.PathEscape(organization),
		url.PathEscape(address),
	)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Record{}, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("fetch registry record: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return Record{}, nil
	}
	if res.StatusCode != http.StatusOK {
		return Record{}, fmt.Errorf("fetch registry record: status %d", res.StatusCode)
	}

	var record Record
	if err := json.NewDecoder(res.Body).Decode(&record); err != nil {
		return Record{}, fmt.Errorf("decode registry record: %w", err)
	}
	record.Exists = true
	return record, nil
}
