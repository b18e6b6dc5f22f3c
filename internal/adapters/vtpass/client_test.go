package vtpass

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygo-service/paygo_service/pkg/logger"
)

func TestPaySendsCredentialsAndDecodesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pay", r.URL.Path)
		assert.Equal(t, "test-api-key", r.Header.Get("api-key"))
		assert.Equal(t, "test-secret", r.Header.Get("secret-key"))

		var req PayRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ord-123", req.RequestID)
		assert.Equal(t, "mtn-airtime", req.ServiceID)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"code": "000",
			"response_description": "TRANSACTION SUCCESSFUL",
			"content": {"transactions": {"status": "delivered", "transactionId": "vt-77"}}
		}`))
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:    "test-api-key",
		SecretKey: "test-secret",
		BaseURL:   server.URL,
		Timeout:   2 * time.Second,
	}, logger.New("debug", "test"))

	resp, err := client.Pay(context.Background(), &PayRequest{
		RequestID: "ord-123",
		ServiceID: "mtn-airtime",
		Amount:    "500",
		Phone:     "08030000000",
	})

	require.NoError(t, err)
	assert.Equal(t, "000", resp.Code)
	assert.Equal(t, "delivered", resp.Content.Transactions.Status)
	assert.Equal(t, "vt-77", resp.Content.Transactions.TransactionID)
}

func TestRequeryServerErrorSurfacesAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:    "k",
		SecretKey: "s",
		BaseURL:   server.URL,
		Timeout:   2 * time.Second,
	}, logger.New("debug", "test"))

	_, err := client.Requery(context.Background(), "ord-123")
	assert.Error(t, err)
}
