// Package geocode implements forward geocoding against a Nominatim-style
// search endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Result is one candidate place for a search query.
type Result struct {
	Lat         float64
	Lng         float64
	Name        string
	DisplayName string
}

// nominatimResult matches the wire format. Coordinates arrive as strings.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// Client queries a Nominatim-compatible geocoding service.
type Client struct {
	baseURL    string
	userAgent  string
	limit      int
	httpClient *http.Client
}

// NewClient creates a geocoding client. baseURL is the full search endpoint,
// e.g. https://nominatim.openstreetmap.org/search.
func NewClient(baseURL, userAgent string) *Client {
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		limit:     5,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Search returns up to five candidate places for the query, best match first.
// Results with unparseable coordinates are skipped.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(c.limit))
	q.Set("addressdetails", "1")
	q.Set("accept-language", "en")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building geocode request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("geocode service returned status %d", resp.StatusCode)
	}

	var raw []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding geocode response: %w", err)
	}

	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lng, errLng := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLng != nil {
			continue
		}
		results = append(results, Result{
			Lat:         lat,
			Lng:         lng,
			Name:        r.Name,
			DisplayName: r.DisplayName,
		})
	}
	return results, nil
}
