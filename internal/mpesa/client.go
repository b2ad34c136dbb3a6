package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ajirinow/backend/internal/metrics"
)

const (
	tokenPath = "/oauth/v1/generate?grant_type=client_credentials"
	pushPath  = "/mpesa/stkpush/v1/processrequest"

	DefaultTimeout = 30 * time.Second
)

type Config struct {
	BaseURL          string
	ConsumerKey      string
	ConsumerSecret   string
	ShortCode        string
	PassKey          string
	CallbackURL      string
	AccountReference string
	Timeout          time.Duration
}

// Client talks to the Daraja STK push API. A fresh access token is fetched
// for every push; nothing is cached between calls.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.AccountReference == "" {
		cfg.AccountReference = "AjiriNow"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the timestamp source used for the password envelope.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

func (c *Client) Timeout() time.Duration {
	return c.cfg.Timeout
}

// Password derives the per-request security envelope.
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

func Timestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

func (c *Client) AccessToken(ctx context.Context) (string, error) {
	started := time.Now()
	token, err := c.accessToken(ctx)
	metrics.ObserveGateway("token", started, err)
	return token, err
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", &GatewayError{Op: "token", Err: err}
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	status, body, err := c.do(req)
	if err != nil {
		return "", &GatewayError{Op: "token", Err: err}
	}

	c.logger.Debug("mpesa access token response", "status", status)

	if status != http.StatusOK {
		return "", &GatewayError{Op: "token", StatusCode: status, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", &GatewayError{Op: "token", StatusCode: status, Body: string(body), Err: fmt.Errorf("decode token response: %w", err)}
	}
	if tr.AccessToken == "" {
		return "", &GatewayError{Op: "token", StatusCode: status, Body: string(body), Err: errors.New("no access token returned")}
	}
	return tr.AccessToken, nil
}

// STKPush asks the gateway to prompt phone for amount. The returned response
// may still carry a non-"0" ResponseCode; only transport and HTTP failures
// are errors.
func (c *Client) STKPush(ctx context.Context, phone string, amount int64, description string) (*STKPushResponse, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	resp, err := c.push(ctx, token, phone, amount, description)
	metrics.ObserveGateway("stkpush", started, err)
	return resp, err
}

func (c *Client) push(ctx context.Context, token, phone string, amount int64, description string) (*STKPushResponse, error) {
	ts := Timestamp(c.now())
	payload := STKPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          Password(c.cfg.ShortCode, c.cfg.PassKey, ts),
		Timestamp:         ts,
		TransactionType:   TransactionTypePayBill,
		Amount:            amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  c.cfg.AccountReference,
		TransactionDesc:   description,
	}
	if err := payload.Validate(); err != nil {
		return nil, &GatewayError{Op: "stkpush", Err: err}
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, &GatewayError{Op: "stkpush", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+pushPath, bytes.NewReader(reqBody))
	if err != nil {
		return nil, &GatewayError{Op: "stkpush", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	c.logger.Info("sending stk push",
		"phone", phone,
		"amount", amount,
		"timestamp", ts)

	status, body, err := c.do(req)
	if err != nil {
		c.logger.Error("stk push request failed", "error", err, "phone", phone)
		return nil, &GatewayError{Op: "stkpush", Err: err}
	}

	if status != http.StatusOK {
		c.logger.Error("stk push returned error",
			"status", status,
			"response", string(body))
		return nil, &GatewayError{Op: "stkpush", StatusCode: status, Body: string(body)}
	}

	var out STKPushResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &GatewayError{Op: "stkpush", StatusCode: status, Body: string(body), Err: fmt.Errorf("decode push response: %w", err)}
	}

	c.logger.Info("stk push answered",
		"merchant_request_id", out.MerchantRequestID,
		"checkout_request_id", out.CheckoutRequestID,
		"response_code", out.ResponseCode)

	return &out, nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}
