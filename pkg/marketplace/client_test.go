package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ShopPilot/pkg/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func purchaseRequest() model.PurchaseRequest {
	return model.PurchaseRequest{
		IdempotencyKey: "job-1",
		OrgID:          "org-1",
		TargetRef:      "B000TEST",
		Quantity:       2,
		MaxUnitPrice:   decimal.NewFromInt(2000),
		Currency:       "JPY",
		ShipTo:         model.Address{Name: "Tan", Country: "SG", Line1: "1 Orchard Rd"},
		Credentials:    model.Credentials{AccountEmail: "buyer@example.com", Password: "hunter2"},
	}
}

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/offers/B000TEST", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("quantity"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "org-1", r.Header.Get("X-Org-ID"))
		_, _ = w.Write([]byte(`{"target_sku":"AMZ-1","unit_price":"1800","shipping":"300","tax":"100","points":"18","delivery_days":4,"currency":"JPY","in_stock":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", time.Second)
	q, err := c.Quote(context.Background(), "org-1", "B000TEST", 2)
	require.NoError(t, err)

	assert.Equal(t, "B000TEST", q.TargetRef)
	assert.Equal(t, "AMZ-1", q.TargetSKU)
	assert.True(t, q.UnitPrice.Equal(decimal.NewFromInt(1800)))
	assert.True(t, q.Points.Equal(decimal.NewFromInt(18)))
	assert.Equal(t, 4, q.DeliveryDays)
	assert.True(t, q.InStock)
}

func TestQuoteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"NO_OFFER","message":"offer withdrawn"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).Quote(context.Background(), "org-1", "B000TEST", 1)
	assert.EqualError(t, err, "quote B000TEST: status 404: offer withdrawn")
}

func TestPurchase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/purchases", r.URL.Path)
		assert.Equal(t, "job-1", r.Header.Get("Idempotency-Key"))

		var body purchaseBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "B000TEST", body.TargetRef)
		assert.Equal(t, 2, body.Quantity)
		assert.Equal(t, "buyer@example.com", body.Account.Email)
		assert.Equal(t, "SG", body.ShipTo.Country)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"external_order_ref":"AMZ-123","charged_amount":"3600","currency":"JPY","placed_at":"2026-03-01T03:00:00Z"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, "secret", time.Second).Purchase(context.Background(), purchaseRequest())
	require.NoError(t, err)
	assert.Equal(t, "AMZ-123", res.ExternalOrderRef)
	assert.True(t, res.ChargedAmount.Equal(decimal.NewFromInt(3600)))
}

func TestPurchaseErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
		message   string
	}{
		{"payment declined", http.StatusPaymentRequired, `{"code":"PAYMENT_DECLINED","message":"card declined"}`, true, "permanent purchase error PAYMENT_DECLINED: card declined"},
		{"bad request without body", http.StatusBadRequest, ``, true, "permanent purchase error HTTP_400: Bad Request"},
		{"rate limited", http.StatusTooManyRequests, `{"code":"SLOW_DOWN"}`, false, "transient purchase error SLOW_DOWN: Too Many Requests"},
		{"server error", http.StatusBadGateway, `oops`, false, "transient purchase error HTTP_502: Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "", time.Second).Purchase(context.Background(), purchaseRequest())
			require.Error(t, err)
			assert.Equal(t, tt.permanent, model.IsPermanent(err))
			assert.EqualError(t, err, tt.message)
		})
	}
}

func TestPurchaseNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "", time.Second).Purchase(context.Background(), purchaseRequest())
	require.Error(t, err)
	assert.False(t, model.IsPermanent(err))
}

func TestPurchaseMissingOrderRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"charged_amount":"3600"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second).Purchase(context.Background(), purchaseRequest())
	require.Error(t, err)
	assert.False(t, model.IsPermanent(err))
	assert.Contains(t, err.Error(), "no external_order_ref")
}
