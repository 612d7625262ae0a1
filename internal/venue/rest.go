package venue

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
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"signal-trader/internal/types"
)

// RESTBinding talks to one venue's HTTP API. Requests are signed with
// HMAC-SHA256 over timestamp+method+path+body and paced by the venue's
// minimum call interval.
type RESTBinding struct {
	name       string
	baseURL    string
	apiKey     string
	apiSecret  string
	feeRate    float64
	precision  int32
	interval   time.Duration
	limiter    *callLimiter
	httpClient *http.Client
}

// RESTConfig carries everything needed to build a REST binding.
type RESTConfig struct {
	Name            string
	BaseURL         string
	APIKey          string
	APISecret       string
	FeeRate         float64
	AmountPrecision int32
	MinCallInterval time.Duration
}

func NewRESTBinding(cfg RESTConfig) *RESTBinding {
	return &RESTBinding{
		name:       cfg.Name,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		feeRate:    cfg.FeeRate,
		precision:  cfg.AmountPrecision,
		interval:   cfg.MinCallInterval,
		limiter:    newCallLimiter(cfg.MinCallInterval),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (b *RESTBinding) Name() string                   { return b.name }
func (b *RESTBinding) FeeRate() float64               { return b.feeRate }
func (b *RESTBinding) MinCallInterval() time.Duration { return b.interval }

// AmountToPrecision truncates a quantity to the venue's amount
// precision. Truncation, not rounding, so an order never asks for more
// than the balance covers.
func (b *RESTBinding) AmountToPrecision(_ string, qty float64) float64 {
	v, _ := decimal.NewFromFloat(qty).RoundDown(b.precision).Float64()
	return v
}

type balanceResponse struct {
	Balances map[string]float64 `json:"balances"`
}

func (b *RESTBinding) FetchBalance(ctx context.Context, category string) (map[string]float64, error) {
	q := url.Values{"category": {category}}
	data, err := b.request(ctx, http.MethodGet, "/api/v1/balance", q, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch balance: %w", b.name, err)
	}
	var parsed balanceResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%s: parse balance: %w", b.name, err)
	}
	return parsed.Balances, nil
}

func (b *RESTBinding) FetchTicker(ctx context.Context, pair string) (types.Ticker, error) {
	q := url.Values{"pair": {pair}}
	data, err := b.request(ctx, http.MethodGet, "/api/v1/ticker", q, nil)
	if err != nil {
		return types.Ticker{}, fmt.Errorf("%s: fetch ticker %s: %w", b.name, pair, err)
	}
	var t types.Ticker
	if err := json.Unmarshal(data, &t); err != nil {
		return types.Ticker{}, fmt.Errorf("%s: parse ticker: %w", b.name, err)
	}
	return t, nil
}

type createOrderRequest struct {
	Pair     string  `json:"pair"`
	Type     string  `json:"type"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

func (b *RESTBinding) CreateOrder(ctx context.Context, pair, side string, qty, price float64) (string, error) {
	body, err := json.Marshal(createOrderRequest{
		Pair:     pair,
		Type:     "limit",
		Side:     side,
		Quantity: qty,
		Price:    price,
	})
	if err != nil {
		return "", err
	}
	data, err := b.request(ctx, http.MethodPost, "/api/v1/order", nil, body)
	if err != nil {
		return "", fmt.Errorf("%s: create %s order %s: %w", b.name, side, pair, err)
	}
	var ord types.Order
	if err := json.Unmarshal(data, &ord); err != nil {
		return "", fmt.Errorf("%s: parse order: %w", b.name, err)
	}
	if ord.ID == "" {
		return "", fmt.Errorf("%s: venue returned order without id", b.name)
	}
	return ord.ID, nil
}

func (b *RESTBinding) CancelOrder(ctx context.Context, id, pair string) error {
	q := url.Values{"pair": {pair}}
	if _, err := b.request(ctx, http.MethodDelete, "/api/v1/order/"+url.PathEscape(id), q, nil); err != nil {
		return fmt.Errorf("%s: cancel order %s: %w", b.name, id, err)
	}
	return nil
}

func (b *RESTBinding) FetchOrder(ctx context.Context, id, pair string) (types.Order, error) {
	q := url.Values{"pair": {pair}}
	data, err := b.request(ctx, http.MethodGet, "/api/v1/order/"+url.PathEscape(id), q, nil)
	if err != nil {
		return types.Order{}, fmt.Errorf("%s: fetch order %s: %w", b.name, id, err)
	}
	var ord types.Order
	if err := json.Unmarshal(data, &ord); err != nil {
		return types.Order{}, fmt.Errorf("%s: parse order: %w", b.name, err)
	}
	return ord, nil
}

func (b *RESTBinding) request(ctx context.Context, method, path string, query url.Values, body []byte) ([]byte, error) {
	if err := b.limiter.wait(ctx); err != nil {
		return nil, err
	}

	u := b.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	b.sign(req, method, path, body)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("venue returned status %d: %s", resp.StatusCode, truncate(data, 200))
	}
	return data, nil
}

func (b *RESTBinding) sign(req *http.Request, method, path string, body []byte) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(b.apiSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", b.apiKey)
	req.Header.Set("X-API-TIMESTAMP", ts)
	req.Header.Set("X-API-SIGN", hex.EncodeToString(mac.Sum(nil)))
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		return string(data[:n]) + "..."
	}
	return string(data)
}
