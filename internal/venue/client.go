// Package venue implements the CLOB REST client and the two WebSocket
// feeds for a Polymarket-shaped binary-outcome prediction-market venue.
//
// The REST client (Client) talks to the venue for order management:
//   - GetOrderBook:    GET    /book               — fetch L2 book for a token
//   - PostOrder:       POST   /order               — place one signed order
//   - CancelOrders:    DELETE /orders              — cancel specific orders by ID
//   - GetOpenOrders:   GET    /orders              — list resting orders (startup reconciliation)
//   - GetMarketMetadata: GET  /markets/{condition_id} — tick size, neg-risk flag
//   - DeriveAPIKey:    GET    /auth/derive-api-key  — bootstrap L2 creds from L1 wallet
//
// Every request is rate-limited via per-category token buckets, retried on
// 5xx, and authenticated with L2 HMAC headers (except book and market
// metadata reads, which send none, and DeriveAPIKey, which uses L1). Order
// signing itself is delegated to an OrderSigner — this client never touches
// a private key directly.
package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/0xspreadcap/polymarket-maker/internal/quant"
	"github.com/0xspreadcap/polymarket-maker/pkg/types"
)

// Client is the venue CLOB REST API client: a resty HTTP client wrapped
// with rate limiting, retry, and L1/L2 auth.
type Client struct {
	http            *resty.Client
	auth            *Auth
	rl              *RateLimiter
	dryRun          bool
	exchangeAddress string
	logger          *slog.Logger

	dryRunSeq int
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(baseURL string, auth *Auth, exchangeAddress string, dryRun bool, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:            httpClient,
		auth:            auth,
		rl:              NewRateLimiter(),
		dryRun:          dryRun,
		exchangeAddress: exchangeAddress,
		logger:          logger.With("component", "venue_client"),
	}
}

// GetOrderBook fetches the order book for a single token.
func (c *Client) GetOrderBook(ctx context.Context, assetID types.AssetID) (*types.BookResponse, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var result types.BookResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("token_id", string(assetID)).
		SetResult(&result).
		Get("/book")
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &ApiError{Reason: fmt.Sprintf("get book: status %d: %s", resp.StatusCode(), resp.String())}
	}
	return &result, nil
}

// buildOrderPayload converts a high-level UserOrder into the signed,
// on-chain order payload the REST API expects, quantizing price/size via
// the caller-supplied maker/taker micro-amounts (see internal/quant).
func (c *Client) buildOrderPayload(order types.UserOrder, makerAmount, takerAmount uint64) (types.OrderPayload, error) {
	signed := types.SignedOrder{
		Salt:          uuid.NewString(),
		Maker:         c.auth.FunderAddress().Hex(),
		Signer:        c.auth.Address().Hex(),
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       string(order.AssetID),
		MakerAmount:   new(big.Int).SetUint64(makerAmount),
		TakerAmount:   new(big.Int).SetUint64(takerAmount),
		Side:          order.Side,
		Expiration:    fmt.Sprintf("%d", order.Expiration),
		Nonce:         "0",
		FeeRateBps:    fmt.Sprintf("%d", order.FeeRateBps),
		SignatureType: types.SigEOA,
	}

	sig, err := c.auth.signer.SignOrder(signed, c.exchangeAddress, c.auth.ChainID())
	if err != nil {
		return types.OrderPayload{}, fmt.Errorf("sign order: %w", err)
	}
	signed.Signature = sig

	return types.OrderPayload{
		Order:     signed,
		Owner:     c.auth.creds.APIKey,
		OrderType: order.OrderType,
		PostOnly:  true,
	}, nil
}

// PostOrder places a single signed order. This is the only placement verb
// the order manager uses — the side-lock invariant guarantees at most one
// order per asset is ever in flight, so there is never a batch to build.
func (c *Client) PostOrder(ctx context.Context, order types.UserOrder, amounts quant.Amounts) (types.OrderResponse, error) {
	if c.dryRun {
		c.dryRunSeq++
		c.logger.Info("dry-run: would post order", "asset", order.AssetID, "side", order.Side, "price", order.Price, "size", order.Size)
		return types.OrderResponse{Success: true, OrderID: fmt.Sprintf("dry-run-%d", c.dryRunSeq), Status: "live"}, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return types.OrderResponse{}, err
	}

	payload, err := c.buildOrderPayload(order, amounts.MakerAmount, amounts.TakerAmount)
	if err != nil {
		return types.OrderResponse{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return types.OrderResponse{}, fmt.Errorf("marshal order: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/order", string(body))
	if err != nil {
		return types.OrderResponse{}, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payload).
		SetResult(&result).
		Post("/order")
	if err != nil {
		return types.OrderResponse{}, fmt.Errorf("post order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || !result.Success {
		return types.OrderResponse{}, &ApiError{Reason: fmt.Sprintf("post order: status %d: %s %s", resp.StatusCode(), result.ErrorMsg, resp.String())}
	}
	return result, nil
}

// CancelOrders cancels one or more orders by ID.
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string) (*types.CancelResponse, error) {
	if len(orderIDs) == 0 {
		return &types.CancelResponse{}, nil
	}
	if c.dryRun {
		c.logger.Info("dry-run: would cancel orders", "count", len(orderIDs))
		return &types.CancelResponse{Canceled: orderIDs}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	payload := struct {
		OrderIDs []string `json:"orderIDs"`
	}{OrderIDs: orderIDs}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal cancel request: %w", err)
	}
	headers, err := c.auth.L2Headers("DELETE", "/orders", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(json.RawMessage(body)).
		SetResult(&result).
		Delete("/orders")
	if err != nil {
		return nil, fmt.Errorf("cancel orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &ApiError{Reason: fmt.Sprintf("cancel orders: status %d: %s", resp.StatusCode(), resp.String())}
	}
	return &result, nil
}

// CancelAll cancels every open order across all markets. The engine does not
// call it; its shutdown cancels each remaining live order individually.
func (c *Client) CancelAll(ctx context.Context) (*types.CancelResponse, error) {
	if c.dryRun {
		c.logger.Info("dry-run: would cancel all orders")
		return &types.CancelResponse{}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	headers, err := c.auth.L2Headers("DELETE", "/cancel-all", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Delete("/cancel-all")
	if err != nil {
		return nil, fmt.Errorf("cancel all: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &ApiError{Reason: fmt.Sprintf("cancel all: status %d: %s", resp.StatusCode(), resp.String())}
	}
	c.logger.Warn("all orders cancelled", "count", len(result.Canceled))
	return &result, nil
}

// GetOpenOrders lists every resting order owned by this account — the
// reconciler's only data source at startup and every periodic pass.
func (c *Client) GetOpenOrders(ctx context.Context) ([]types.OpenOrder, error) {
	if c.dryRun {
		return nil, nil
	}
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	headers, err := c.auth.L2Headers("GET", "/orders", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result []types.OpenOrder
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/orders")
	if err != nil {
		return nil, fmt.Errorf("get open orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &ApiError{Reason: fmt.Sprintf("get open orders: status %d: %s", resp.StatusCode(), resp.String())}
	}
	return result, nil
}

// MarketMetadata is the subset of venue market metadata the engine needs
// once a market has been selected: tick size and the neg-risk exchange flag.
type MarketMetadata struct {
	ConditionID types.ConditionID
	TickSize    types.TickSize
	NegRisk     bool
}

// GetMarketMetadata fetches tick size and neg-risk status for a market.
func (c *Client) GetMarketMetadata(ctx context.Context, conditionID types.ConditionID) (*MarketMetadata, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var raw struct {
		ConditionID string `json:"condition_id"`
		TickSize    string `json:"tick_size"`
		NegRisk     bool   `json:"neg_risk"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&raw).
		Get(fmt.Sprintf("/markets/%s", conditionID))
	if err != nil {
		return nil, fmt.Errorf("get market metadata: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &ApiError{Reason: fmt.Sprintf("get market metadata: status %d: %s", resp.StatusCode(), resp.String())}
	}
	return &MarketMetadata{
		ConditionID: conditionID,
		TickSize:    types.TickSize(raw.TickSize),
		NegRisk:     raw.NegRisk,
	}, nil
}

// DeriveAPIKey bootstraps L2 API credentials via L1 authentication.
func (c *Client) DeriveAPIKey(ctx context.Context) (*Credentials, error) {
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}

	var result Credentials
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/auth/derive-api-key")
	if err != nil {
		return nil, fmt.Errorf("derive api key: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &ApiError{Reason: fmt.Sprintf("derive api key: status %d: %s", resp.StatusCode(), resp.String())}
	}

	c.auth.SetCredentials(result)
	c.logger.Info("API key derived", "api_key", result.APIKey)
	return &result, nil
}
