// Package monnify integrates the Monnify payment gateway, which credits
// wallets through reserved virtual accounts and confirms those credits by
// webhook.
package monnify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/paygo-service/paygo_service/pkg/logger"
	"github.com/paygo-service/paygo_service/pkg/tracing"
)

// Config represents Monnify API configuration
type Config struct {
	APIKey       string
	SecretKey    string
	ContractCode string
	BaseURL      string
	Timeout      time.Duration
	// TokenGrace is subtracted from the advertised token lifetime so a
	// token is refreshed before it can expire mid-request
	TokenGrace time.Duration
}

// Client represents a Monnify API client with a cached bearer token
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a new Monnify API client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.monnify.com"
	}
	if config.TokenGrace == 0 {
		config.TokenGrace = 60 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "monnify",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		breaker: breaker,
		logger:  log,
	}
}

type loginResponse struct {
	RequestSuccessful bool `json:"requestSuccessful"`
	ResponseBody      struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	} `json:"responseBody"`
}

// token returns a valid bearer token, logging in again only when the cached
// one is inside the grace window
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/v1/auth/login", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.config.APIKey + ":" + c.config.SecretKey))
	req.Header.Set("Authorization", "Basic "+basic)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	var login loginResponse
	if err := json.Unmarshal(body, &login); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if !login.RequestSuccessful || login.ResponseBody.AccessToken == "" {
		return "", fmt.Errorf("login rejected by monnify")
	}

	c.accessToken = login.ResponseBody.AccessToken
	lifetime := time.Duration(login.ResponseBody.ExpiresIn) * time.Second
	if lifetime > c.config.TokenGrace {
		lifetime -= c.config.TokenGrace
	}
	c.tokenExpiry = time.Now().Add(lifetime)

	c.logger.Debug("monnify token refreshed", "expires_in_seconds", int(lifetime.Seconds()))
	return c.accessToken, nil
}

// TransactionStatus is the confirmed view of a Monnify transaction
type TransactionStatus struct {
	TransactionReference string `json:"transactionReference"`
	PaymentReference     string `json:"paymentReference"`
	AmountPaid           string `json:"amountPaid"`
	PaymentStatus        string `json:"paymentStatus"`
	CustomerEmail        string `json:"customer_email"`
	AccountReference     string `json:"accountReference"`
}

type statusResponse struct {
	RequestSuccessful bool              `json:"requestSuccessful"`
	ResponseMessage   string            `json:"responseMessage"`
	ResponseBody      TransactionStatus `json:"responseBody"`
}

// GetTransactionStatus fetches the authoritative state of a transaction.
// Webhook payloads are verified against this before any money moves.
func (c *Client) GetTransactionStatus(ctx context.Context, transactionReference string) (status *TransactionStatus, err error) {
	ctx, span := tracing.StartVendorSpan(ctx, "monnify", "transaction_status")
	defer func() { tracing.EndVendorSpan(span, err) }()

	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := c.config.BaseURL + "/api/v2/transactions/" + url.PathEscape(transactionReference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("monnify returned status %d", resp.StatusCode)
		}
		return body, nil
	})
	if err != nil {
		return nil, fmt.Errorf("transaction status request failed: %w", err)
	}

	var envelope statusResponse
	if err := json.Unmarshal(result.([]byte), &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	if !envelope.RequestSuccessful {
		return nil, fmt.Errorf("monnify rejected status request: %s", envelope.ResponseMessage)
	}
	return &envelope.ResponseBody, nil
}
