// Package vtpass integrates the VTPass bill payment API for airtime, data,
// and TV subscriptions.
package vtpass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/paygo-service/paygo_service/pkg/logger"
	"github.com/paygo-service/paygo_service/pkg/tracing"
)

// Config represents VTPass API configuration
type Config struct {
	APIKey    string
	SecretKey string
	PublicKey string
	BaseURL   string
	Timeout   time.Duration
}

// Client represents a VTPass API client
type Client struct {
	config     Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewClient creates a new VTPass API client
func NewClient(config Config, log *logger.Logger) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://vtpass.com/api"
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "vtpass",
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

// PayRequest is the payload for the pay endpoint
type PayRequest struct {
	RequestID   string `json:"request_id"`
	ServiceID   string `json:"serviceID"`
	Amount      string `json:"amount"`
	Phone       string `json:"phone"`
	BillersCode string `json:"billersCode,omitempty"`
	Variation   string `json:"variation_code,omitempty"`
}

// RequeryRequest is the payload for the transaction status endpoint
type RequeryRequest struct {
	RequestID string `json:"request_id"`
}

// TransactionContent holds the nested transaction detail
type TransactionContent struct {
	Transactions struct {
		Status        string `json:"status"`
		TransactionID string `json:"transactionId"`
		ProductName   string `json:"product_name"`
	} `json:"transactions"`
}

// APIResponse is the envelope every VTPass endpoint returns
type APIResponse struct {
	Code                string             `json:"code"`
	ResponseDescription string             `json:"response_description"`
	Content             TransactionContent `json:"content"`
}

func (c *Client) doRequest(ctx context.Context, endpoint string, body, response interface{}) (err error) {
	ctx, span := tracing.StartVendorSpan(ctx, "vtpass", strings.Trim(endpoint, "/"))
	defer func() { tracing.EndVendorSpan(span, err) }()

	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	fullURL := c.config.BaseURL + endpoint

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.config.APIKey)
	req.Header.Set("secret-key", c.config.SecretKey)

	c.logger.Debug("Sending VTPass API request", "url", fullURL)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("vtpass returned status %d", resp.StatusCode)
		}
		return respBody, nil
	})
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	respBody := result.([]byte)
	if err := json.Unmarshal(respBody, response); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Pay submits a purchase to VTPass
func (c *Client) Pay(ctx context.Context, req *PayRequest) (*APIResponse, error) {
	var response APIResponse
	if err := c.doRequest(ctx, "pay", req, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Requery fetches the current status of a previously submitted transaction
func (c *Client) Requery(ctx context.Context, requestID string) (*APIResponse, error) {
	var response APIResponse
	if err := c.doRequest(ctx, "requery", &RequeryRequest{RequestID: requestID}, &response); err != nil {
		return nil, err
	}
	return &response, nil
}
