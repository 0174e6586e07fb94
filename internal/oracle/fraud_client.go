package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"banking-ledger/internal/domain"
)

// FraudClient calls a remote fraud detection service over HTTP.
type FraudClient struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.FraudGate = (*FraudClient)(nil)

func NewFraudClient(url string, timeout time.Duration, logger *slog.Logger) *FraudClient {
	return &FraudClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type fraudTransaction struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Date        time.Time       `json:"date"`
}

type fraudRequest struct {
	TransactionHistory []fraudTransaction `json:"transactionHistory"`
	CurrentTransaction fraudTransaction   `json:"currentTransaction"`
}

type fraudResponse struct {
	IsFraudulent     bool   `json:"isFraudulent"`
	FraudExplanation string `json:"fraudExplanation"`
}

func toFraudTransaction(e domain.LedgerEntry) fraudTransaction {
	return fraudTransaction{
		Amount:      e.Amount,
		Description: e.Description,
		Type:        string(e.Kind),
		Status:      string(e.Status),
		Date:        e.CreatedAt,
	}
}

func (c *FraudClient) Check(ctx context.Context, req domain.FraudCheckRequest) (*domain.FraudVerdict, error) {
	payload := fraudRequest{
		TransactionHistory: make([]fraudTransaction, 0, len(req.History)),
		CurrentTransaction: toFraudTransaction(req.Candidate),
	}
	for _, e := range req.History {
		payload.TransactionHistory = append(payload.TransactionHistory, toFraudTransaction(e))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode fraud request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build fraud request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("Fraud service call failed", "error", err)
		return nil, fmt.Errorf("call fraud service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("Fraud service returned an error", "status", resp.StatusCode, "body", string(snippet))
		return nil, fmt.Errorf("fraud service returned status %d", resp.StatusCode)
	}

	var out fraudResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode fraud response: %w", err)
	}

	c.logger.Info("Fraud check completed",
		"is_fraudulent", out.IsFraudulent,
		"history_size", len(req.History),
		"duration", time.Since(start))

	return &domain.FraudVerdict{
		IsFraudulent: out.IsFraudulent,
		Explanation:  out.FraudExplanation,
	}, nil
}
