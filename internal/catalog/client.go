package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HTTPClient reads the providers/catalog service over JSON HTTP.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) doReq(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("catalog GET %s: %d %s", path, resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *HTTPClient) GetServiceOrder(ctx context.Context, id uuid.UUID) (*ServiceOrder, error) {
	body, err := c.doReq(ctx, "/api/v1/orders/"+id.String())
	if err != nil || body == nil {
		return nil, err
	}
	var o ServiceOrder
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("decode service order: %w", err)
	}
	return &o, nil
}

func (c *HTTPClient) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	body, err := c.doReq(ctx, "/api/v1/providers/"+id.String())
	if err != nil || body == nil {
		return nil, err
	}
	var p Provider
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode provider: %w", err)
	}
	return &p, nil
}

func (c *HTTPClient) ListActiveProviders(ctx context.Context) ([]*Provider, error) {
	body, err := c.doReq(ctx, "/api/v1/providers?status=active")
	if err != nil {
		return nil, err
	}
	var out []*Provider
	if body != nil {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decode providers: %w", err)
		}
	}
	return out, nil
}

func (c *HTTPClient) GetPriorityConfig(ctx context.Context, providerID uuid.UUID, specialty string) (*ServicePriorityConfig, error) {
	body, err := c.doReq(ctx, "/api/v1/providers/"+providerID.String()+"/priority-configs/"+specialty)
	if err != nil || body == nil {
		return nil, err
	}
	var cfg ServicePriorityConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("decode priority config: %w", err)
	}
	return &cfg, nil
}

func (c *HTTPClient) GetCertification(ctx context.Context, providerID uuid.UUID, specialty string) (*Certification, error) {
	body, err := c.doReq(ctx, "/api/v1/providers/"+providerID.String()+"/certifications/"+specialty)
	if err != nil || body == nil {
		return nil, err
	}
	var cert Certification
	if err := json.Unmarshal(body, &cert); err != nil {
		return nil, fmt.Errorf("decode certification: %w", err)
	}
	return &cert, nil
}

func (c *HTTPClient) GetTeamJobCounts(ctx context.Context, teamID uuid.UUID, day time.Time) (*TeamJobCounts, error) {
	body, err := c.doReq(ctx, "/api/v1/teams/"+teamID.String()+"/job-counts?day="+day.Format("2006-01-02"))
	if err != nil || body == nil {
		return nil, err
	}
	var counts TeamJobCounts
	if err := json.Unmarshal(body, &counts); err != nil {
		return nil, fmt.Errorf("decode job counts: %w", err)
	}
	return &counts, nil
}

func (c *HTTPClient) GetZoneJobCount(ctx context.Context, providerID, zoneID uuid.UUID, day time.Time) (int, error) {
	body, err := c.doReq(ctx, "/api/v1/providers/"+providerID.String()+"/zones/"+zoneID.String()+"/job-count?day="+day.Format("2006-01-02"))
	if err != nil || body == nil {
		return 0, err
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decode zone job count: %w", err)
	}
	return out.Count, nil
}

func (c *HTTPClient) GetMonthlyJobCount(ctx context.Context, providerID uuid.UUID, specialty string, month time.Time) (int, error) {
	body, err := c.doReq(ctx, "/api/v1/providers/"+providerID.String()+"/specialties/"+specialty+"/job-count?month="+month.Format("2006-01"))
	if err != nil || body == nil {
		return 0, err
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("decode monthly job count: %w", err)
	}
	return out.Count, nil
}
