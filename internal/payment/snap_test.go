package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() SessionRequest {
	return SessionRequest{
		TransactionDetails: TransactionDetails{OrderID: "7", GrossAmount: 30000},
		PaymentType:        "qris",
		Items: []Item{
			{ID: "1", Price: 10000, Quantity: 2, Name: "Shirt", MerchantName: "MyHMTK"},
			{ID: "admin-fee", Price: 5000, Quantity: 1, Name: "Admin fee"},
		},
		Customer:   Customer{FirstName: "Budi", LastName: "Santoso", Email: "budi@example.com"},
		Expiry:     ExpiryMinutes(15 * time.Minute),
		PageExpiry: ExpiryMinutes(15 * time.Minute),
	}
}

func TestSnapClient_CreateSession(t *testing.T) {
	t.Run("returns redirect url", func(t *testing.T) {
		var got map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/snap/v1/transactions", r.URL.Path)

			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "server-key", user)
			assert.Empty(t, pass)

			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"token":"abc","redirect_url":"https://pay.example/abc"}`))
		}))
		defer server.Close()

		client := NewSnapClient(server.URL+"/", "server-key", time.Second)
		url, err := client.CreateSession(context.Background(), sampleRequest())

		require.NoError(t, err)
		assert.Equal(t, "https://pay.example/abc", url)

		details := got["transaction_details"].(map[string]any)
		assert.Equal(t, "7", details["order_id"])
		assert.EqualValues(t, 30000, details["gross_amount"])
		assert.Equal(t, "qris", got["payment_type"])
		assert.Len(t, got["item_details"], 2)
		assert.Equal(t, map[string]any{"unit": "minutes", "duration": float64(15)}, got["expiry"])
	})

	t.Run("non-2xx is a gateway error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error_messages":["Access denied due to unauthorized transaction"]}`))
		}))
		defer server.Close()

		_, err := NewSnapClient(server.URL, "bad", time.Second).CreateSession(context.Background(), sampleRequest())

		var gwErr *GatewayError
		require.True(t, errors.As(err, &gwErr))
		assert.Equal(t, http.StatusUnauthorized, gwErr.StatusCode)
		assert.Contains(t, gwErr.Message, "unauthorized")
	})

	t.Run("missing redirect url is a gateway error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"token":"abc"}`))
		}))
		defer server.Close()

		_, err := NewSnapClient(server.URL, "k", time.Second).CreateSession(context.Background(), sampleRequest())

		var gwErr *GatewayError
		assert.ErrorAs(t, err, &gwErr)
	})

	t.Run("timeout is a gateway error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		_, err := NewSnapClient(server.URL, "k", 20*time.Millisecond).CreateSession(context.Background(), sampleRequest())

		var gwErr *GatewayError
		assert.ErrorAs(t, err, &gwErr)
	})
}

func TestExpiryMinutes(t *testing.T) {
	assert.Equal(t, 15, ExpiryMinutes(15*time.Minute).Duration)
	assert.Equal(t, 2, ExpiryMinutes(90*time.Second).Duration)
	assert.Equal(t, 1, ExpiryMinutes(0).Duration)
}
