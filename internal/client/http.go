package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ms-delivery/internal/auth"
	"ms-delivery/internal/changefeed"
	"ms-delivery/internal/logger"
	"ms-delivery/internal/models"
	"ms-delivery/internal/order"
	"ms-delivery/internal/storeinfo"
	"ms-delivery/internal/utils"
)

var ErrUnauthorized = errors.New("not authenticated")

// HTTP talks to the API server with a bearer token. Change events come from
// the server's SSE stream unless Feed is set.
type HTTP struct {
	BaseURL string
	Token   string
	Client  *http.Client
	Feed    changefeed.Subscriber
	Logger  *logger.Logger

	actor models.Actor
}

// NewHTTP derives the actor from the token's claims.
func NewHTTP(baseURL, token string, log *logger.Logger) (*HTTP, error) {
	actor, err := auth.ActorFromToken(token)
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}
	return &HTTP{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Logger:  log,
		actor:   actor,
	}, nil
}

func (c *HTTP) Self() models.Actor { return c.actor }

func (c *HTTP) ListOrders(ctx context.Context, filter models.OrderFilter) ([]models.Order, error) {
	q := url.Values{}
	if len(filter.Statuses) > 0 {
		parts := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			parts[i] = string(s)
		}
		q.Set("status", strings.Join(parts, ","))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/api/orders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var orders []models.Order
	if err := c.do(ctx, http.MethodGet, path, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *HTTP) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *HTTP) PlaceOrder(ctx context.Context, req models.PlaceOrderRequest) (*models.Order, error) {
	var o models.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", req, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *HTTP) SetStatus(ctx context.Context, id string, to models.OrderStatus) (*models.Order, error) {
	var o models.Order
	err := c.do(ctx, http.MethodPut, "/api/orders/"+url.PathEscape(id)+"/status", models.StatusUpdateRequest{Status: to}, &o)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *HTTP) Claim(ctx context.Context, id string) (bool, error) {
	var resp models.ClaimResponse
	if err := c.do(ctx, http.MethodPost, "/api/orders/"+url.PathEscape(id)+"/claim", nil, &resp); err != nil {
		return false, err
	}
	return resp.Claimed, nil
}

func (c *HTTP) MarkArrived(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders/"+url.PathEscape(id)+"/arrived", nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *HTTP) CompleteDelivery(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders/"+url.PathEscape(id)+"/complete", nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *HTTP) StoreInfo(ctx context.Context) (models.StoreInfo, error) {
	var info models.StoreInfo
	err := c.do(ctx, http.MethodGet, "/api/store-info", nil, &info)
	return info, err
}

func (c *HTTP) UpdateStoreInfo(ctx context.Context, upd models.StoreInfoUpdate) (models.StoreInfo, error) {
	var info models.StoreInfo
	err := c.do(ctx, http.MethodPut, "/api/store-info", upd, &info)
	return info, err
}

func (c *HTTP) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *HTTP) do(ctx context.Context, method, path string, body, out interface{}) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.Logger.Debug("CLIENT", fmt.Sprintf("Error closing response body: %v", cerr))
		}
	}()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return errorFromResponse(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// errorFromResponse turns an error status back into the service error it
// came from, so callers can use errors.Is on either backend.
func errorFromResponse(status int, raw []byte) error {
	detail := strings.TrimSpace(string(raw))
	var envelope utils.APIResponse
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
		detail = envelope.Error
	}

	var sentinel error
	switch status {
	case http.StatusNotFound:
		sentinel = order.ErrNotFound
	case http.StatusBadRequest:
		sentinel = order.ErrValidation
		if strings.Contains(detail, storeinfo.ErrValidation.Error()) {
			sentinel = storeinfo.ErrValidation
		}
	case http.StatusUnprocessableEntity:
		sentinel = order.ErrInvalidTransition
	case http.StatusConflict:
		sentinel = order.ErrStaleStatus
	case http.StatusForbidden:
		sentinel = order.ErrForbidden
		if strings.Contains(detail, order.ErrNotOwner.Error()) {
			sentinel = order.ErrNotOwner
		}
	case http.StatusUnauthorized:
		sentinel = ErrUnauthorized
	default:
		return fmt.Errorf("server returned %d: %s", status, detail)
	}
	return fmt.Errorf("%w: %s", sentinel, detail)
}
