// Package payment holds the PaymentGateway implementations. The gateway is
// chosen once from configuration at process start.
package payment

import (
	"fmt"

	"staybook/internal/config"
	"staybook/internal/domain"

	"github.com/rs/zerolog"
)

func New(cfg config.PaymentConfig, logger *zerolog.Logger) (domain.PaymentGateway, error) {
	switch cfg.Gateway {
	case "", "demo":
		return NewDemoGateway(), nil
	case "signature":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("payment.base_url is required for the signature gateway")
		}
		return NewSignatureGateway(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.Gateway)
	}
}
