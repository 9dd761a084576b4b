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
	"github.com/tradeforge/escrow-release-service/internal/ports"
)

type PaymentGatewayConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// PaymentGatewayClient calls the payment rail's transfer endpoint. The caller
// supplies the idempotency key; replaying the same key must return the same
// transfer.
type PaymentGatewayClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewPaymentGatewayClient(cfg PaymentGatewayConfig) *PaymentGatewayClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &PaymentGatewayClient{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

type transferRequestBody struct {
	PayeeAccountRef string  `json:"payee_account_ref"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	IdempotencyKey  string  `json:"idempotency_key"`
}

type transferResponseBody struct {
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
}

type gatewayErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *PaymentGatewayClient) Transfer(ctx context.Context, req ports.TransferRequest) (string, error) {
	body, err := json.Marshal(transferRequestBody{
		PayeeAccountRef: req.PayeeAccountRef,
		Amount:          req.Amount,
		Currency:        req.Currency,
		IdempotencyKey:  req.IdempotencyKey,
	})
	if err != nil {
		return "", fmt.Errorf("encode transfer request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build transfer request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &domain.GatewayError{Code: "gateway_unreachable", Message: err.Error(), Permanent: false}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &domain.GatewayError{Code: "gateway_read_failed", Message: err.Error(), Permanent: false}
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var out transferResponseBody
		if err := json.Unmarshal(raw, &out); err != nil || out.TransferID == "" {
			return "", &domain.GatewayError{Code: "gateway_bad_response", Message: "missing transfer_id", Permanent: false}
		}
		return out.TransferID, nil
	}

	var gwErr gatewayErrorBody
	_ = json.Unmarshal(raw, &gwErr)
	if gwErr.Code == "" {
		gwErr.Code = fmt.Sprintf("http_%d", resp.StatusCode)
	}
	return "", &domain.GatewayError{
		Code:      gwErr.Code,
		Message:   gwErr.Message,
		Permanent: isPermanentStatus(resp.StatusCode),
	}
}

// 4xx responses other than timeout and rate limiting will not succeed on
// retry; everything else is treated as transient.
func isPermanentStatus(status int) bool {
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return false
	}
	return status >= 400 && status < 500
}
