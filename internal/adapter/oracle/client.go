// Package oracle is an HTTP client for the external route risk-scoring service.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/safe-route-service/internal/domain"
)

const scorePath = "/api/route/score"

// Client implements domain.RiskScorer against POST /api/route/score.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an oracle client. An empty token sends no Authorization header.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Score asks the oracle to assess one encoded route geometry.
func (c *Client) Score(ctx context.Context, geometry string) (domain.RiskAssessment, error) {
	body, err := json.Marshal(scoreRequest{Polyline: geometry})
	if err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("encode score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+scorePath, bytes.NewReader(body))
	if err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("score request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.RiskAssessment{}, fmt.Errorf("oracle error: status %d: %s", resp.StatusCode, msg)
	}

	var out scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("decode response: %w", err)
	}

	class := domain.Classification(out.Recommendation)
	if class != domain.ClassificationSafe && class != domain.ClassificationHighRisk {
		return domain.RiskAssessment{}, fmt.Errorf("oracle returned unknown recommendation %q", out.Recommendation)
	}

	c.logger.Debug("route scored",
		"score", out.RouteRiskScore,
		"classification", class,
		"high_risk_segments", len(out.HighRiskSegments),
	)
	return domain.RiskAssessment{Score: out.RouteRiskScore, Classification: class}, nil
}

// Oracle wire types.

type scoreRequest struct {
	Polyline string `json:"polyline"`
}

type scoreResponse struct {
	RouteRiskScore   float64   `json:"route_risk_score"`
	Recommendation   string    `json:"recommendation"`
	HighRiskSegments []segment `json:"high_risk_segments"`
}

type segment struct {
	Start     point `json:"start"`
	End       point `json:"end"`
	RiskScore int   `json:"risk_score"`
}

type point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
