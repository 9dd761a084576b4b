package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tradeforge/escrow-release-service/internal/domain"
)

type DisputePredictorConfig struct {
	BaseURL    string
	HTTPClient *http.Client
}

// DisputePredictorClient calls the risk scoring service. Failures surface as
// domain.ErrPredictorUnavailable and the caller fails open.
type DisputePredictorClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewDisputePredictorClient(cfg DisputePredictorConfig) *DisputePredictorClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &DisputePredictorClient{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
	}
}

type predictRequestBody struct {
	JobID        string `json:"job_id"`
	ContractorID string `json:"contractor_id"`
}

type predictResponseBody struct {
	DisputeProbability float64  `json:"dispute_probability"`
	RiskFactors        []string `json:"risk_factors"`
}

func (c *DisputePredictorClient) Predict(ctx context.Context, jobID, contractorID string) (domain.RiskPrediction, error) {
	body, err := json.Marshal(predictRequestBody{JobID: jobID, ContractorID: contractorID})
	if err != nil {
		return domain.RiskPrediction{}, fmt.Errorf("encode predict request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predictions/dispute", bytes.NewReader(body))
	if err != nil {
		return domain.RiskPrediction{}, fmt.Errorf("build predict request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.RiskPrediction{}, fmt.Errorf("%w: %v", domain.ErrPredictorUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.RiskPrediction{}, fmt.Errorf("%w: read body: %v", domain.ErrPredictorUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.RiskPrediction{}, fmt.Errorf("%w: status %d", domain.ErrPredictorUnavailable, resp.StatusCode)
	}

	var out predictResponseBody
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.RiskPrediction{}, fmt.Errorf("%w: decode body: %v", domain.ErrPredictorUnavailable, err)
	}
	return domain.RiskPrediction{
		Probability: out.DisputeProbability,
		Factors:     out.RiskFactors,
	}, nil
}
