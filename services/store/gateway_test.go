package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatKHQRPayload(t *testing.T) {
	payload := FormatKHQRPayload("MERCHANT-1", 2000, "USD", 7)
	assert.Equal(t, "KHQR|MERCHANT-1|20.00|USD|7|Order #7", payload)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "15.99", FormatAmount(1599))
	assert.Equal(t, "0.05", FormatAmount(5))
	assert.Equal(t, "20.00", FormatAmount(2000))
	assert.Equal(t, "0.00", FormatAmount(0))
}

func TestMockGatewayDefaults(t *testing.T) {
	ctx := context.Background()
	gateway := NewMockGateway()

	challenge, err := gateway.RequestChallenge(ctx, 1599, 42)
	require.NoError(t, err)
	assert.Equal(t, "txn_42", challenge.Reference)
	assert.True(t, strings.HasPrefix(challenge.Payload, "KHQR|"))
	assert.Equal(t, int64(1599), challenge.AmountCents)

	result, err := gateway.Verify(ctx, challenge.Reference)
	require.NoError(t, err)
	assert.Equal(t, VerificationSuccess, result)
	assert.Equal(t, 1, gateway.VerifyCalls(challenge.Reference))
}

func TestBakongGatewayRequestChallenge(t *testing.T) {
	gateway := NewBakongGateway("https://khqr.example", "key", "MERCHANT-9")

	challenge, err := gateway.RequestChallenge(context.Background(), 2599, 11)
	require.NoError(t, err)

	// O desafio é gerado localmente, sem side effects no ledger
	assert.True(t, strings.HasPrefix(challenge.Reference, "txn_11_"))
	assert.Contains(t, challenge.Payload, "KHQR|MERCHANT-9|25.99|USD|11|")
	assert.Equal(t, DefaultCurrency, challenge.Currency)
}

func TestBakongGatewayVerify(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		expected   string
		expectErr  bool
	}{
		{name: "settled", statusCode: http.StatusOK, body: `{"status":"success"}`, expected: VerificationSuccess},
		{name: "completed alias", statusCode: http.StatusOK, body: `{"status":"completed"}`, expected: VerificationSuccess},
		{name: "still pending", statusCode: http.StatusOK, body: `{"status":"pending"}`, expected: VerificationPending},
		{name: "declined", statusCode: http.StatusOK, body: `{"status":"declined"}`, expected: VerificationFailure},
		{name: "rail error", statusCode: http.StatusBadGateway, body: `{}`, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transactions/txn_1", r.URL.Path)
				assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			gateway := NewBakongGateway(server.URL, "key", "MERCHANT-1")
			result, err := gateway.Verify(context.Background(), "txn_1")

			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}
