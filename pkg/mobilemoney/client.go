package mobilemoney

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shelfwise-backend/pkg/config"
	"github.com/angelmondragon/shelfwise-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shelfwise-backend/pkg/errors"
	"github.com/angelmondragon/shelfwise-backend/pkg/metrics"
)

const (
	// ChannelMobileMoney is the only payment channel offered to readers.
	ChannelMobileMoney = "mobile_money"

	operationInitialize = "initialize"
	operationVerify     = "verify"

	maxResponseBytes = 1 << 20
)

// Gateway is the surface the lifecycle manager depends on.
type Gateway interface {
	Initialize(ctx context.Context, params InitializeParams) (*InitializeResult, error)
	Verify(ctx context.Context, reference string) (*VerifyResult, error)
}

// Metadata is forwarded to the processor with a charge so the payer's
// mobile-money account can be debited.
type Metadata struct {
	SubscriptionID  string `json:"subscription_id,omitempty"`
	MobileNumber    string `json:"mobile_number"`
	ServiceProvider string `json:"provider"`
	AccountName     string `json:"account_name"`
}

// InitializeParams describe a payment intent.
type InitializeParams struct {
	Email       string
	AmountMinor int64
	Currency    string
	Reference   string
	Metadata    Metadata
}

// InitializeResult is what the payer needs to complete the charge.
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code,omitempty"`
	Instructions     string `json:"instructions,omitempty"`
	Reference        string `json:"reference"`
}

// VerifyResult is the processor's view of a transaction.
type VerifyResult struct {
	Reference   string
	Status      enums.GatewayStatus
	RawStatus   string
	AmountMinor int64
	Currency    string
	PaidAt      *time.Time
	Raw         json.RawMessage
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithMetrics records gateway latency and outcomes.
func WithMetrics(m *metrics.PaymentMetrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client talks to a Paystack-style transaction API.
type Client struct {
	baseURL       string
	secretKey     string
	signingSecret string
	callbackURL   string
	currency      string
	http          *http.Client
	metrics       *metrics.PaymentMetrics
}

// NewClient builds a gateway client from config. Every call is bounded by cfg.Timeout.
func NewClient(cfg config.GatewayConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gateway base url is required")
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("gateway secret key is required")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("gateway timeout must be positive")
	}
	c := &Client{
		baseURL:       base,
		secretKey:     strings.TrimSpace(cfg.SecretKey),
		signingSecret: cfg.SigningSecret(),
		callbackURL:   strings.TrimSpace(cfg.CallbackURL),
		currency:      strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		http:          &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Currency returns the configured ISO currency.
func (c *Client) Currency() string {
	return c.currency
}

// NewReference generates a unique merchant reference.
func NewReference() string {
	return "sw_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type initializeRequest struct {
	Email       string   `json:"email"`
	Amount      int64    `json:"amount"`
	Currency    string   `json:"currency,omitempty"`
	Reference   string   `json:"reference"`
	CallbackURL string   `json:"callback_url,omitempty"`
	Channels    []string `json:"channels"`
	Metadata    Metadata `json:"metadata"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
	DisplayText      string `json:"display_text"`
}

type verifyData struct {
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	PaidAt          string `json:"paid_at"`
	GatewayResponse string `json:"gateway_response"`
}

// Initialize creates a mobile-money payment intent. It is never retried here.
func (c *Client) Initialize(ctx context.Context, params InitializeParams) (*InitializeResult, error) {
	if err := params.validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = c.currency
	}
	body := initializeRequest{
		Email:       strings.TrimSpace(params.Email),
		Amount:      params.AmountMinor,
		Currency:    currency,
		Reference:   params.Reference,
		CallbackURL: c.callbackURL,
		Channels:    []string{ChannelMobileMoney},
		Metadata:    params.Metadata,
	}

	start := time.Now()
	env, err := c.do(ctx, http.MethodPost, "/transaction/initialize", body)
	c.metrics.ObserveGatewayCall(operationInitialize, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode initialize response")
	}
	ref := data.Reference
	if ref == "" {
		ref = params.Reference
	}
	instructions := data.DisplayText
	if instructions == "" {
		instructions = env.Message
	}
	return &InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Instructions:     instructions,
		Reference:        ref,
	}, nil
}

// Verify fetches the current state of a transaction by merchant reference.
func (c *Client) Verify(ctx context.Context, reference string) (*VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}

	start := time.Now()
	env, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	c.metrics.ObserveGatewayCall(operationVerify, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	var data verifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode verify response")
	}
	result := &VerifyResult{
		Reference:   data.Reference,
		Status:      enums.NormalizeGatewayStatus(data.Status),
		RawStatus:   data.Status,
		AmountMinor: data.Amount,
		Currency:    strings.ToUpper(data.Currency),
		Raw:         env.Data,
	}
	if result.Reference == "" {
		result.Reference = reference
	}
	if data.PaidAt != "" {
		if ts, perr := time.Parse(time.RFC3339, data.PaidAt); perr == nil {
			ts = ts.UTC()
			result.PaidAt = &ts
		}
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*envelope, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode gateway request")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "gateway request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "read gateway response")
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(env.Message)
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, fmt.Errorf("gateway %s %s: HTTP %d: %s", method, path, resp.StatusCode, msg), "payment gateway rejected the request")
	}
	if decodeErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, decodeErr, "decode gateway response")
	}
	if !env.Status {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, fmt.Errorf("gateway %s %s: %s", method, path, env.Message), "payment gateway rejected the request")
	}
	return &env, nil
}

func (p InitializeParams) validate() error {
	switch {
	case strings.TrimSpace(p.Email) == "":
		return errors.New("email is required")
	case p.AmountMinor <= 0:
		return errors.New("amount must be positive")
	case strings.TrimSpace(p.Reference) == "":
		return errors.New("reference is required")
	case strings.TrimSpace(p.Metadata.MobileNumber) == "":
		return errors.New("mobile number is required")
	}
	return nil
}
