package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	domain "github.com/smartpos/sale-engine/internal/domain/payment"
)

// GatewayClient is a resty-backed Authorizer that calls an external payment
// gateway over HTTP. The gateway abstracts cash/card/mobile-money; only the
// authorization result crosses this boundary.
type GatewayClient struct {
	httpClient *resty.Client
}

type GatewayConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	restyClient := resty.New()
	restyClient.
		SetBaseURL(cfg.BaseURL).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey)).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &GatewayClient{httpClient: restyClient}
}

type authorizeRequest struct {
	Amount string `json:"amount"`
	Method string `json:"method"`
}

type authorizeResponse struct {
	Outcome   string `json:"outcome"`
	Reference string `json:"reference"`
}

type gatewayError struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *GatewayClient) Authorize(ctx context.Context, amount decimal.Decimal, method domain.Method) (domain.Result, error) {
	payload := authorizeRequest{
		Amount: amount.String(),
		Method: string(method),
	}

	result := new(authorizeResponse)
	apiErr := new(gatewayError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(result).
		SetError(apiErr).
		Post("/authorize")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return domain.Result{Outcome: domain.OutcomeTimedOut}, nil
		}
		return domain.Result{}, fmt.Errorf("payment gateway: authorize: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
	case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		return domain.Result{Outcome: domain.OutcomeDeclined}, nil
	case http.StatusGatewayTimeout:
		return domain.Result{Outcome: domain.OutcomeTimedOut}, nil
	default:
		return domain.Result{}, fmt.Errorf("payment gateway: status %d: %s",
			resp.StatusCode(), apiErr.Error.Message)
	}

	switch domain.Outcome(result.Outcome) {
	case domain.OutcomeApproved, domain.OutcomeDeclined, domain.OutcomeTimedOut:
		return domain.Result{Outcome: domain.Outcome(result.Outcome), Reference: result.Reference}, nil
	default:
		return domain.Result{}, fmt.Errorf("payment gateway: unknown outcome %q", result.Outcome)
	}
}
