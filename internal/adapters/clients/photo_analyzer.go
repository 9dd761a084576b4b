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

type PhotoAnalyzerConfig struct {
	BaseURL    string
	HTTPClient *http.Client
}

// PhotoAnalyzerClient calls the vision sidecar that inspects completion
// photos. Any transport or decode failure surfaces as
// domain.ErrAnalyzerUnavailable so the caller can take the degraded path.
type PhotoAnalyzerClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewPhotoAnalyzerClient(cfg PhotoAnalyzerConfig) *PhotoAnalyzerClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &PhotoAnalyzerClient{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
	}
}

type analyzeRequestBody struct {
	PhotoURLs      []string `json:"photo_urls"`
	JobDescription string   `json:"job_description"`
}

type analyzeResponseBody struct {
	QualityScore         float64  `json:"quality_score"`
	MatchesDescription   bool     `json:"matches_job_description"`
	CompletionIndicators []string `json:"completion_indicators"`
	Concerns             []string `json:"concerns"`
}

func (c *PhotoAnalyzerClient) Analyze(ctx context.Context, photoURLs []string, jobDescription string) (domain.PhotoAnalysis, error) {
	body, err := json.Marshal(analyzeRequestBody{
		PhotoURLs:      photoURLs,
		JobDescription: jobDescription,
	})
	if err != nil {
		return domain.PhotoAnalysis{}, fmt.Errorf("encode analyze request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return domain.PhotoAnalysis{}, fmt.Errorf("build analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.PhotoAnalysis{}, fmt.Errorf("%w: %v", domain.ErrAnalyzerUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.PhotoAnalysis{}, fmt.Errorf("%w: read body: %v", domain.ErrAnalyzerUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.PhotoAnalysis{}, fmt.Errorf("%w: status %d", domain.ErrAnalyzerUnavailable, resp.StatusCode)
	}

	var out analyzeResponseBody
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.PhotoAnalysis{}, fmt.Errorf("%w: decode body: %v", domain.ErrAnalyzerUnavailable, err)
	}
	return domain.PhotoAnalysis{
		QualityScore:         out.QualityScore,
		MatchesDescription:   out.MatchesDescription,
		CompletionIndicators: out.CompletionIndicators,
		Concerns:             out.Concerns,
	}, nil
}
