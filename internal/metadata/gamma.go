// File: internal/metadata/gamma.go
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/config"
	"github.com/smartdevs17/polymarket-trade-monitor/internal/models"
	"github.com/smartdevs17/polymarket-trade-monitor/pkg/utils"
)

const (
	marketsEndpoint = "/markets"
	clientUserAgent = "polymarket-trade-monitor/1.0"
)

// gammaMarket mirrors one market object in the Gamma /markets response.
// The list-valued fields arrive JSON-encoded inside strings.
type gammaMarket struct {
	ID            string  `json:"id"`
	Question      string  `json:"question"`
	ConditionID   string  `json:"conditionId"`
	Slug          string  `json:"slug"`
	Category      string  `json:"category"`
	EndDate       string  `json:"endDate"`
	Active        bool    `json:"active"`
	Closed        bool    `json:"closed"`
	VolumeNum     float64 `json:"volumeNum"`
	LiquidityNum  float64 `json:"liquidityNum"`
	Outcomes      string  `json:"outcomes"`      // e.g. "[\"Yes\",\"No\"]"
	OutcomePrices string  `json:"outcomePrices"` // e.g. "[\"0.62\",\"0.38\"]"
	ClobTokenIDs  string  `json:"clobTokenIds"`  // decimal token ids, JSON-encoded
}

// MarketDetail is a parsed Gamma market together with the token to
// outcome mapping for every token the market lists.
type MarketDetail struct {
	Market   *models.Market
	Outcomes []*models.TokenOutcome
}

// GammaClient fetches market metadata from the Polymarket Gamma API.
type GammaClient struct {
	baseURL    string
	maxRetries int
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewGammaClient creates a Gamma API client from the metadata configuration.
func NewGammaClient(cfg *config.MetadataConfig) *GammaClient {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GammaClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: timeout},
		logger:     utils.GetLogger(),
	}
}

// GetMarketByToken queries Gamma for the market that lists the given CTF
// token. The token id is hex as it appears on chain; Gamma indexes the
// decimal form. Returns nil without error when no market lists the token.
func (g *GammaClient) GetMarketByToken(ctx context.Context, tokenID string) (*MarketDetail, error) {
	decimal, err := utils.TokenIDToDecimal(tokenID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid token id for metadata lookup", err.Error())
	}

	params := url.Values{}
	params.Set("clob_token_ids", decimal)
	params.Set("limit", "1")

	body, err := g.doGet(ctx, marketsEndpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var markets []gammaMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeMetadata, "Failed to decode Gamma markets response", err.Error())
	}
	if len(markets) == 0 {
		return nil, nil
	}

	detail, err := parseMarket(&markets[0])
	if err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"market_id": detail.Market.ID,
		"question":  truncateText(detail.Market.Question, 50),
		"outcomes":  len(detail.Outcomes),
	}).Debug("Fetched market from Gamma")

	return detail, nil
}

// parseMarket converts a raw Gamma market into the storage model and its
// token outcome rows. Token ids come back in decimal and are re-encoded
// as hex so they join against trade rows.
func parseMarket(m *gammaMarket) (*MarketDetail, error) {
	market := &models.Market{
		ID:        m.ID,
		Question:  m.Question,
		Slug:      m.Slug,
		Category:  m.Category,
		Active:    m.Active,
		Closed:    m.Closed,
		Volume:    m.VolumeNum,
		Liquidity: m.LiquidityNum,
		FetchedAt: time.Now().UTC(),
	}
	if m.EndDate != "" {
		if t, err := time.Parse(time.RFC3339, m.EndDate); err == nil {
			market.EndDate = &t
		}
	}

	var tokenIDs []string
	if m.ClobTokenIDs != "" {
		if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeMetadata, "Malformed clobTokenIds in Gamma response", err.Error())
		}
	}

	// Outcomes and prices are advisory; a malformed list degrades to
	// unlabeled tokens instead of failing the whole fetch.
	var outcomes []string
	if m.Outcomes != "" {
		_ = json.Unmarshal([]byte(m.Outcomes), &outcomes)
	}
	var prices []string
	if m.OutcomePrices != "" {
		_ = json.Unmarshal([]byte(m.OutcomePrices), &prices)
	}

	detail := &MarketDetail{Market: market}
	for i, decimal := range tokenIDs {
		n, ok := new(big.Int).SetString(decimal, 10)
		if !ok {
			continue
		}

		outcome := &models.TokenOutcome{
			TokenID:  utils.FormatTokenID(n),
			MarketID: market.ID,
		}
		if i < len(outcomes) {
			outcome.Outcome = outcomes[i]
		}
		if i < len(prices) {
			if p, err := strconv.ParseFloat(prices[i], 64); err == nil {
				outcome.Price = p
			}
		}
		detail.Outcomes = append(detail.Outcomes, outcome)
	}

	return detail, nil
}

// doGet sends a GET to the Gamma API with exponential backoff. Rate
// limits and server errors are retried; any other non-200 is permanent.
func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	tries := uint(1)
	if g.maxRetries > 0 {
		tries = uint(g.maxRetries)
	}

	notify := func(err error, wait time.Duration) {
		g.logger.WithError(err).WithField("backoff", wait).Debug("Retrying Gamma request")
	}

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", clientUserAgent)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("gamma responded %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, backoff.Permanent(fmt.Errorf("gamma responded %d: %s", resp.StatusCode, truncateText(string(body), 200)))
		}
		return body, nil
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(notify))
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeMetadata, "Gamma API request failed", err)
	}
	return body, nil
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
