package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"staybook/internal/config"
	"staybook/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	logger := zerolog.Nop()

	g, err := New(config.PaymentConfig{Gateway: "demo"}, &logger)
	require.NoError(t, err)
	assert.Equal(t, "demo", g.Name())

	_, err = New(config.PaymentConfig{Gateway: "signature"}, &logger)
	assert.Error(t, err)

	g, err = New(config.PaymentConfig{Gateway: "signature", BaseURL: "http://x", KeyID: "k", KeySecret: "s"}, &logger)
	require.NoError(t, err)
	assert.Equal(t, "signature", g.Name())

	_, err = New(config.PaymentConfig{Gateway: "cash"}, &logger)
	assert.Error(t, err)
}

func TestDemoGateway(t *testing.T) {
	ctx := context.Background()
	g := NewDemoGateway()

	order, err := g.CreateOrder(ctx, domain.OrderRequest{BookingID: 1, Amount: 100, Currency: "INR", Receipt: "r"})
	require.NoError(t, err)
	assert.Contains(t, order.OrderID, "demo_order_")

	v, err := g.VerifyPayment(ctx, domain.VerifyRequest{OrderID: order.OrderID})
	require.NoError(t, err)
	assert.True(t, v.Success)
	assert.NotEmpty(t, v.PaymentID)

	v, err = g.VerifyPayment(ctx, domain.VerifyRequest{OrderID: order.OrderID, PaymentID: "p", Signature: DeclineSignature})
	require.NoError(t, err)
	assert.False(t, v.Success)

	r, err := g.ProcessRefund(ctx, domain.RefundRequest{PaymentID: "p", Amount: 50})
	require.NoError(t, err)
	assert.NotEmpty(t, r.RefundID)
}

func TestSignatureGateway(t *testing.T) {
	var refundBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key_test" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/orders":
			_, _ = w.Write([]byte(`{"id":"order_abc","status":"created"}`))
		case "/payments/pay_1/refund":
			_ = json.NewDecoder(r.Body).Decode(&refundBody)
			_, _ = w.Write([]byte(`{"id":"rfnd_1","status":"processed"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
		}
	}))
	defer server.Close()

	logger := zerolog.Nop()
	cfg := config.PaymentConfig{Gateway: "signature", KeyID: "key_test", KeySecret: "secret", BaseURL: server.URL + "/", Timeout: time.Second}
	g := NewSignatureGateway(cfg, &logger)
	ctx := context.Background()

	t.Run("CreateOrder", func(t *testing.T) {
		order, err := g.CreateOrder(ctx, domain.OrderRequest{Amount: 1000, Currency: "INR", Receipt: "booking_1"})
		require.NoError(t, err)
		assert.Equal(t, "order_abc", order.OrderID)
		assert.Equal(t, "key_test", order.KeyID)
	})

	t.Run("VerifyPayment", func(t *testing.T) {
		sig := Sign("secret", "order_abc", "pay_1")
		v, err := g.VerifyPayment(ctx, domain.VerifyRequest{OrderID: "order_abc", PaymentID: "pay_1", Signature: sig})
		require.NoError(t, err)
		assert.True(t, v.Success)

		v, err = g.VerifyPayment(ctx, domain.VerifyRequest{OrderID: "order_abc", PaymentID: "pay_1", Signature: "deadbeef"})
		require.NoError(t, err)
		assert.False(t, v.Success)
		assert.Equal(t, "signature mismatch", v.Reason)

		v, err = g.VerifyPayment(ctx, domain.VerifyRequest{OrderID: "order_abc"})
		require.NoError(t, err)
		assert.False(t, v.Success)
	})

	t.Run("ProcessRefund", func(t *testing.T) {
		r, err := g.ProcessRefund(ctx, domain.RefundRequest{PaymentID: "pay_1", Amount: 400, Reason: "cancelled"})
		require.NoError(t, err)
		assert.Equal(t, "rfnd_1", r.RefundID)
		assert.Equal(t, float64(400), refundBody["amount"])
	})

	t.Run("UpstreamError", func(t *testing.T) {
		_, err := g.ProcessRefund(ctx, domain.RefundRequest{PaymentID: "unknown", Amount: 1})
		assert.Error(t, err)
	})
}
