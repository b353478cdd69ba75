package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/scrutor/internal/common"
	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
)

const defaultTriggerBaseURL = "https://api.brightdata.com/datasets/v3/trigger"

// triggerInput is one scrape session in the trigger payload
type triggerInput struct {
	URL     string `json:"url"`
	Prompt  string `json:"prompt"`
	Country string `json:"country,omitempty"`
	Index   int    `json:"index"`
}

type triggerRequest struct {
	Input              []triggerInput `json:"input"`
	CustomOutputFields []string       `json:"custom_output_fields"`
}

type triggerResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// Client submits scrape requests to the BrightData dataset trigger API. Each
// call asks the provider to run the prompt through perplexity.ai and deliver
// results to our webhook, identified by job id. Calls are rate limited
// because each trigger is billable.
type Client struct {
	config     *common.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	logger     arbor.ILogger
}

// NewClient creates a BrightData client from configuration
func NewClient(config *common.Config, logger arbor.ILogger) interfaces.ProviderClient {
	timeout, err := time.ParseDuration(config.BrightData.Timeout)
	if err != nil {
		timeout = 30 * time.Second
	}

	interval, err := time.ParseDuration(config.BrightData.RateLimit)
	if err != nil {
		interval = time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(interval), 1),
		baseURL:    defaultTriggerBaseURL,
		logger:     logger,
	}
}

// NewClientWithBaseURL creates a client pointed at a custom trigger endpoint
func NewClientWithBaseURL(config *common.Config, logger arbor.ILogger, baseURL string) interfaces.ProviderClient {
	c := NewClient(config, logger).(*Client)
	c.baseURL = baseURL
	return c
}

// Submit triggers a scrape and returns the provider's snapshot id
func (c *Client) Submit(ctx context.Context, jobID, prompt, countryCode string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", models.NewProviderError(models.ProviderErrorUnavailable, "rate limit wait cancelled", err)
	}

	if countryCode == "" {
		countryCode = c.config.BrightData.CountryCode
	}

	triggerURL := fmt.Sprintf("%s?dataset_id=%s&notify=%s&include_errors=true",
		c.baseURL,
		url.QueryEscape(c.config.BrightData.DatasetID),
		url.QueryEscape(c.config.WebhookURL(jobID)))

	payload := triggerRequest{
		Input: []triggerInput{
			{
				URL:     "https://www.perplexity.ai",
				Prompt:  BuildScrapePrompt(prompt),
				Country: countryCode,
				Index:   1,
			},
		},
		CustomOutputFields: []string{
			"url", "prompt", "answer_text", "sources", "citations", "timestamp", "input",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode trigger payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, triggerURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build trigger request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.BrightData.APIKey)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("job_id", jobID).Msg("Submitting scrape to provider")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		kind := models.ProviderErrorUnavailable
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			kind = models.ProviderErrorTimeout
		}
		return "", models.NewProviderError(kind, err.Error(), err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		return "", models.NewProviderError(models.ProviderErrorAPI, msg, nil)
	}

	var trigger triggerResponse
	if err := json.Unmarshal(respBody, &trigger); err != nil {
		return "", models.NewProviderError(models.ProviderErrorAPI, "malformed trigger response", err)
	}
	if trigger.SnapshotID == "" {
		return "", models.NewProviderError(models.ProviderErrorAPI, "trigger response missing snapshot_id", nil)
	}

	c.logger.Info().
		Str("job_id", jobID).
		Str("snapshot_id", trigger.SnapshotID).
		Msg("Scrape submitted")

	return trigger.SnapshotID, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
