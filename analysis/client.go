// Package analysis exchanges market snapshots for AI trade
// recommendations and parses the free-text responses into structured
// trade ideas.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/quantdesk/options-desk/dte"
	"github.com/quantdesk/options-desk/types"
)

const (
	defaultAPIURL   = "https://api.x.ai/v1/chat/completions"
	defaultModel    = "grok-3"
	defaultMaxToken = 4000
	reportCacheTTL  = 10 * time.Minute
)

// Client calls a chat-completions style AI endpoint. It keeps a short-lived
// per-ticker cache of recent reports so dashboard refreshes do not trigger
// repeated model calls.
type Client struct {
	apiKey     string
	apiURL     string
	model      string
	httpClient *http.Client

	mu      sync.RWMutex
	reports map[string]*types.AnalysisReport
}

// NewClient creates an analysis client. model may be empty to use the
// default.
func NewClient(apiKey, apiURL, model string) *Client {
	if model == "" {
		model = defaultModel
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		apiKey:     apiKey,
		apiURL:     apiURL,
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		reports:    make(map[string]*types.AnalysisReport),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze sends one market-analysis prompt and returns the parsed report.
func (c *Client) Analyze(ctx context.Context, snapshot *types.MarketSnapshot, discovery *dte.DiscoveryResult) (*types.AnalysisReport, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("analyze: no snapshot provided")
	}

	prompt := BuildMarketAnalysisPrompt(snapshot, discovery)

	log.Infof("requesting AI analysis for %s (%d chars of prompt)", snapshot.Ticker, len(prompt))

	content, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}

	report := &types.AnalysisReport{
		ID:              uuid.New().String(),
		Ticker:          snapshot.Ticker,
		Prompt:          prompt,
		Response:        content,
		Recommendations: ParseRecommendations(content),
		CreatedAt:       time.Now(),
	}
	if discovery != nil {
		report.DTE = discovery.TargetDTE
		if discovery.Found {
			report.DTE = discovery.SelectedDTE
			report.ExpirationDate = discovery.ExpirationDate.Format("2006-01-02")
		}
	}

	c.mu.Lock()
	c.reports[snapshot.Ticker] = report
	c.mu.Unlock()

	log.Infof("analysis for %s complete: %d recommendation(s)", snapshot.Ticker, len(report.Recommendations))

	return report, nil
}

// CachedReport returns the most recent report for a ticker if it is still
// fresh.
func (c *Client) CachedReport(ticker string) (*types.AnalysisReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	report, ok := c.reports[ticker]
	if !ok || time.Since(report.CreatedAt) > reportCacheTTL {
		return nil, false
	}
	return report, true
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   defaultMaxToken,
		Temperature: 0.2,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		errBytes, readErr := io.ReadAll(res.Body)
		if readErr == nil && len(errBytes) > 0 {
			log.Errorf("model request failed: %s", string(errBytes))
		}
		return "", fmt.Errorf("invalid status code: %s", res.Status)
	}

	var parsed chatResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
