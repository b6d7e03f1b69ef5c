package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MatrixClient resolves a road distance between two points via an external
// distance-matrix API.
type MatrixClient interface {
	Distance(ctx context.Context, from, to Coordinates) (float64, error)
}

// HTTPMatrixClient calls the Google Distance Matrix API.
type HTTPMatrixClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

const defaultMatrixBaseURL = "https://maps.googleapis.com/maps/api/distancematrix/json"

func NewHTTPMatrixClient(baseURL, apiKey string) *HTTPMatrixClient {
	if baseURL == "" {
		baseURL = defaultMatrixBaseURL
	}
	return &HTTPMatrixClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type matrixResponse struct {
	Status string `json:"status"`
	Rows   []struct {
		Elements []struct {
			Status   string `json:"status"`
			Distance struct {
				ValueMeters int64 `json:"value"`
			} `json:"distance"`
		} `json:"elements"`
	} `json:"rows"`
}

func (c *HTTPMatrixClient) Distance(ctx context.Context, from, to Coordinates) (float64, error) {
	q := url.Values{}
	q.Set("origins", fmt.Sprintf("%f,%f", from.Lat, from.Lng))
	q.Set("destinations", fmt.Sprintf("%f,%f", to.Lat, to.Lng))
	q.Set("key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("distance matrix: %d %s", resp.StatusCode, string(body))
	}

	var mr matrixResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return 0, fmt.Errorf("distance matrix decode: %w", err)
	}
	if mr.Status != "OK" {
		return 0, fmt.Errorf("distance matrix status: %s", mr.Status)
	}
	if len(mr.Rows) == 0 || len(mr.Rows[0].Elements) == 0 {
		return 0, fmt.Errorf("distance matrix: empty response")
	}
	el := mr.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, fmt.Errorf("distance matrix element status: %s", el.Status)
	}
	return float64(el.Distance.ValueMeters) / 1000, nil
}
