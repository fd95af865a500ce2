package payment

import (
	"context"
	"encoding/json"

	"staybook/internal/domain"

	"github.com/google/uuid"
)

// DeclineSignature makes the demo gateway reject a payment.
const DeclineSignature = "decline"

// DemoGateway approves every payment except ones signed with DeclineSignature.
type DemoGateway struct{}

func NewDemoGateway() *DemoGateway {
	return &DemoGateway{}
}

func (g *DemoGateway) Name() string { return "demo" }

func (g *DemoGateway) CreateOrder(_ context.Context, req domain.OrderRequest) (*domain.GatewayOrder, error) {
	meta, _ := json.Marshal(map[string]interface{}{"receipt": req.Receipt, "demo": true})
	return &domain.GatewayOrder{
		OrderID:  "demo_order_" + uuid.NewString(),
		Metadata: meta,
	}, nil
}

func (g *DemoGateway) VerifyPayment(_ context.Context, req domain.VerifyRequest) (*domain.Verification, error) {
	if req.Signature == DeclineSignature {
		return &domain.Verification{Success: false, PaymentID: req.PaymentID, Reason: "declined by demo gateway"}, nil
	}
	paymentID := req.PaymentID
	if paymentID == "" {
		paymentID = "demo_pay_" + uuid.NewString()
	}
	return &domain.Verification{Success: true, PaymentID: paymentID, Method: "demo"}, nil
}

func (g *DemoGateway) ProcessRefund(_ context.Context, _ domain.RefundRequest) (*domain.GatewayRefund, error) {
	return &domain.GatewayRefund{RefundID: "demo_rfnd_" + uuid.NewString(), Status: "processed"}, nil
}
