// Package tastytrade is a read-only market-data client for the TastyTrade
// REST API. It supplies the expiration listing consumed by the dte package
// and the quotes consumed by the snapshot builder.
package tastytrade

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/quantdesk/options-desk/dte"
	"github.com/quantdesk/options-desk/types"
)

const (
	ProductionBaseURL = "https://api.tastyworks.com"
	SandboxBaseURL    = "https://api.cert.tastyworks.com"
)

// TokenProvider supplies a bearer token for API calls. Token acquisition
// and refresh happen behind this interface.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider that always returns the same token.
type StaticToken string

func (s StaticToken) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("no access token configured")
	}
	return string(s), nil
}

// Client calls the TastyTrade market-data endpoints. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a client against the given base URL. Sandbox vs
// production is purely a base-URL decision made by the caller.
func NewClient(baseURL string, tokens TokenProvider) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		now: time.Now,
	}
}

// ListAvailableExpirations fetches the option chain for ticker and collapses
// it into one candidate per expiration date, counting the listed contracts
// as the liquidity proxy. Past expirations are dropped and results are
// sorted by days to expiration ascending.
func (c *Client) ListAvailableExpirations(ctx context.Context, ticker string) ([]dte.ExpirationCandidate, error) {
	if ticker == "" {
		return nil, fmt.Errorf("ListAvailableExpirations: no ticker provided")
	}

	endpoint := fmt.Sprintf("%s/option-chains/%s", c.baseURL, url.PathEscape(ticker))

	var dto optionChainResponseDTO
	if err := c.get(ctx, endpoint, &dto); err != nil {
		return nil, fmt.Errorf("ListAvailableExpirations: %w", err)
	}

	today := c.now().Truncate(24 * time.Hour)

	grouped := make(map[string]*dte.ExpirationCandidate)
	for _, item := range dto.Data.Items {
		if item.ExpirationDate == "" {
			continue
		}

		expDate, err := time.Parse("2006-01-02", item.ExpirationDate)
		if err != nil {
			log.Warnf("could not parse expiration date %q: %v", item.ExpirationDate, err)
			continue
		}

		days := int(expDate.Sub(today).Hours() / 24)
		if days < 0 {
			continue
		}

		if candidate, ok := grouped[item.ExpirationDate]; ok {
			candidate.OptionCount++
		} else {
			grouped[item.ExpirationDate] = &dte.ExpirationCandidate{
				ExpirationDate:   expDate,
				DaysToExpiration: days,
				OptionCount:      1,
			}
		}
	}

	candidates := make([]dte.ExpirationCandidate, 0, len(grouped))
	for _, candidate := range grouped {
		candidates = append(candidates, *candidate)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DaysToExpiration < candidates[j].DaysToExpiration
	})

	log.Debugf("found %d available expirations for %s", len(candidates), ticker)

	return candidates, nil
}

// GetQuotes fetches the latest equity quotes for the given symbols.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]types.QuoteData, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("GetQuotes: no symbols provided")
	}

	queryParams := url.Values{}
	queryParams.Add("equity", strings.Join(symbols, ","))

	endpoint := fmt.Sprintf("%s/market-data/by-type?%s", c.baseURL, queryParams.Encode())

	var dto quoteResponseDTO
	if err := c.get(ctx, endpoint, &dto); err != nil {
		return nil, fmt.Errorf("GetQuotes: %w", err)
	}

	now := c.now()
	quotes := make(map[string]types.QuoteData, len(dto.Data.Items))
	for _, item := range dto.Data.Items {
		quotes[item.Symbol] = item.toQuoteData(now)
	}

	return quotes, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Add("Accept", "application/json")
	req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", token))

	log.Tracef("fetching %s", req.URL.String())

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		errBytes, readErr := io.ReadAll(res.Body)
		if readErr == nil && len(errBytes) > 0 {
			log.Errorf("tastytrade request failed: %s", string(errBytes))
		}
		return fmt.Errorf("invalid status code: %s", res.Status)
	}

	bytes, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(bytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
