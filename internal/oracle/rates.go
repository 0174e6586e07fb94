package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"banking-ledger/internal/domain"
)

// Rate returns the multiplicative rate from one currency to another. Equal
// currencies short-circuit to 1 without consulting the oracle.
func Rate(ctx context.Context, oracle domain.RateOracle, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	rate, err := oracle.GetRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive rate %s for %s/%s", rate, from, to)
	}
	return rate, nil
}

// StaticRates converts through a fixed table of units per US dollar.
type StaticRates struct {
	perUSD map[string]decimal.Decimal
}

var _ domain.RateOracle = (*StaticRates)(nil)

func NewStaticRates() *StaticRates {
	return &StaticRates{perUSD: map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.RequireFromString("0.92"),
		"GBP": decimal.RequireFromString("0.79"),
		"JPY": decimal.RequireFromString("151.50"),
		"CNY": decimal.RequireFromString("7.24"),
	}}
}

func (s *StaticRates) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	fromRate, ok := s.perUSD[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for currency %s", from)
	}
	toRate, ok := s.perUSD[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for currency %s", to)
	}
	return toRate.Div(fromRate), nil
}

// RateClient fetches rates from a remote service: GET <url>/rates?from=X&to=Y
// answering {"rate": "0.92"}.
type RateClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.RateOracle = (*RateClient)(nil)

func NewRateClient(baseURL string, timeout time.Duration, logger *slog.Logger) *RateClient {
	return &RateClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type rateResponse struct {
	Rate decimal.Decimal `json:"rate"`
}

func (c *RateClient) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("from", from)
	q.Set("to", to)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rates?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Rate service call failed", "from", from, "to", to, "error", err)
		return decimal.Zero, fmt.Errorf("call rate service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Rate service returned an error", "from", from, "to", to, "status", resp.StatusCode)
		return decimal.Zero, fmt.Errorf("rate service returned status %d", resp.StatusCode)
	}

	var out rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate response: %w", err)
	}
	return out.Rate, nil
}
