// Package loki provides the two entry sources of the engine: a Loki HTTP
// client querying the range API, and an NDJSON file reader for offline
// exports of the same data.
package loki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tinytelemetry/triage/internal/model"
)

const queryRangePath = "/loki/api/v1/query_range"

// ClientConfig holds the query parameters for one fetch.
type ClientConfig struct {
	BaseURL  string        // e.g. http://localhost:3100
	OrgID    string        // X-Scope-OrgID header, empty to omit
	Query    string        // LogQL, e.g. {namespace="prod"} |~ "error"
	Limit    int           // max entries per fetch
	Start    time.Time     // zero = End minus DaysBack
	End      time.Time     // zero = now
	DaysBack int           // window when Start is unset
	Timeout  time.Duration // per-request timeout
}

// Client fetches log records over the Loki HTTP range API.
type Client struct {
	conf ClientConfig
	http *http.Client
}

// NewClient validates the configuration and builds a client.
func NewClient(conf ClientConfig) (*Client, error) {
	if conf.BaseURL == "" {
		return nil, fmt.Errorf("loki: base URL is required")
	}
	if _, err := url.Parse(conf.BaseURL); err != nil {
		return nil, fmt.Errorf("loki: invalid base URL: %w", err)
	}
	if conf.Query == "" {
		return nil, fmt.Errorf("loki: query is required")
	}
	if conf.Limit <= 0 {
		conf.Limit = model.DefaultFetchLimit
	}
	if conf.DaysBack <= 0 {
		conf.DaysBack = model.DefaultDaysBack
	}
	if conf.Timeout <= 0 {
		conf.Timeout = model.DefaultQueryTimeout
	}
	return &Client{
		conf: conf,
		http: &http.Client{Timeout: conf.Timeout},
	}, nil
}

// Name identifies the source in logs and reports.
func (c *Client) Name() string { return "loki" }

// queryRangeResponse mirrors the subset of the range API response we read.
type queryRangeResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// Fetch queries the range API once and flattens the streams into raw
// records shaped like Loki's NDJSON export: timestamp, line, labels.
func (c *Client) Fetch(ctx context.Context) ([]model.RawRecord, error) {
	end := c.conf.End
	if end.IsZero() {
		end = time.Now()
	}
	start := c.conf.Start
	if start.IsZero() {
		start = end.AddDate(0, 0, -c.conf.DaysBack)
	}

	endpoint, err := url.Parse(c.conf.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("loki: invalid base URL: %w", err)
	}
	endpoint = endpoint.JoinPath(queryRangePath)

	params := url.Values{}
	params.Set("query", c.conf.Query)
	params.Set("limit", strconv.Itoa(c.conf.Limit))
	params.Set("start", strconv.FormatInt(start.UnixNano(), 10))
	params.Set("end", strconv.FormatInt(end.UnixNano(), 10))
	params.Set("direction", "forward")
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("loki: build request: %w", err)
	}
	if c.conf.OrgID != "" {
		req.Header.Set("X-Scope-OrgID", c.conf.OrgID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("loki: query_range: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("loki: query_range returned %d: %s", resp.StatusCode, body)
	}

	var decoded queryRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("loki: decode response: %w", err)
	}
	if decoded.Status != "success" {
		return nil, fmt.Errorf("loki: query_range status %q", decoded.Status)
	}

	var records []model.RawRecord
	for _, stream := range decoded.Data.Result {
		labels := make(map[string]interface{}, len(stream.Stream))
		for k, v := range stream.Stream {
			labels[k] = v
		}
		for _, value := range stream.Values {
			records = append(records, model.RawRecord{
				"timestamp": value[0],
				"line":      value[1],
				"labels":    labels,
			})
		}
	}
	return records, nil
}
