package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"staybook/internal/config"
	"staybook/internal/domain"

	"github.com/rs/zerolog"
)

// SignatureGateway talks to an order/refund REST API authenticated with a
// key pair and verifies payment callbacks with HMAC-SHA256 over
// "orderID|paymentID".
type SignatureGateway struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
	logger    *zerolog.Logger
}

func NewSignatureGateway(cfg config.PaymentConfig, logger *zerolog.Logger) *SignatureGateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &SignatureGateway{
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

func (g *SignatureGateway) Name() string { return "signature" }

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (g *SignatureGateway) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.GatewayOrder, error) {
	body := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	raw, err := g.do(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("order response without id")
	}
	return &domain.GatewayOrder{OrderID: resp.ID, KeyID: g.keyID, Metadata: raw}, nil
}

// VerifyPayment checks the callback signature locally; no network call.
func (g *SignatureGateway) VerifyPayment(_ context.Context, req domain.VerifyRequest) (*domain.Verification, error) {
	if req.PaymentID == "" || req.Signature == "" {
		return &domain.Verification{Success: false, Reason: "payment id and signature are required"}, nil
	}
	expected := Sign(g.keySecret, req.OrderID, req.PaymentID)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(req.Signature))) {
		g.logger.Warn().Str("order_id", req.OrderID).Str("payment_id", req.PaymentID).Msg("Payment signature mismatch")
		return &domain.Verification{Success: false, PaymentID: req.PaymentID, Reason: "signature mismatch"}, nil
	}
	return &domain.Verification{Success: true, PaymentID: req.PaymentID}, nil
}

func (g *SignatureGateway) ProcessRefund(ctx context.Context, req domain.RefundRequest) (*domain.GatewayRefund, error) {
	body := map[string]interface{}{"amount": req.Amount}
	if req.Reason != "" {
		body["notes"] = map[string]string{"reason": req.Reason}
	}
	raw, err := g.do(ctx, http.MethodPost, "/payments/"+req.PaymentID+"/refund", body)
	if err != nil {
		return nil, err
	}

	var resp orderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode refund response: %w", err)
	}
	return &domain.GatewayRefund{RefundID: resp.ID, Status: resp.Status}, nil
}

func (g *SignatureGateway) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	g.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Gateway call")

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// Sign returns the hex HMAC-SHA256 the gateway attaches to a captured payment.
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
