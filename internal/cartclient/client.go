// Package cartclient talks to the remote cart service under /api/panier.
package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Skotchmaster/cartsync/internal/models"
)

const SessionHeader = "X-Session-ID"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cartServiceURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(cartServiceURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Address selects whose cart a request targets. A token wins over a session id;
// the two are never sent together.
type Address struct {
	Token     string
	SessionID string
}

type ItemRequest struct {
	ProductID     int64                 `json:"bassinId"`
	Quantity      int                   `json:"quantity"`
	OriginalPrice float64               `json:"prixOriginal"`
	IsCustomized  bool                  `json:"isCustomized"`
	SessionID     string                `json:"sessionId,omitempty"`
	UserID        string                `json:"userId,omitempty"`
	PromotionID   int64                 `json:"promotionId,omitempty"`
	PromotionName string                `json:"nomPromotion,omitempty"`
	Rate          float64               `json:"tauxReduction,omitempty"`
	Customization *models.Customization `json:"customProperties,omitempty"`
}

type Result struct {
	Success bool
	Message string
	Cart    *models.Cart
	// SessionID is the session id the service issued, if any.
	SessionID string
}

type mutationResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Panier  *models.Cart `json:"panier"`
	Cart    *models.Cart `json:"cart"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (c *Client) GetCart(ctx context.Context, addr Address) (Result, error) {
	var cart models.Cart
	sid, err := c.do(ctx, http.MethodGet, "", addr, nil, &cart)
	if err != nil {
		return Result{}, err
	}
	return Result{Success: true, Cart: &cart, SessionID: sid}, nil
}

func (c *Client) AddItem(ctx context.Context, addr Address, req ItemRequest) (Result, error) {
	return c.mutate(ctx, http.MethodPost, "/items", addr, req)
}

func (c *Client) UpdateQuantity(ctx context.Context, addr Address, itemID int64, qty int) (Result, error) {
	return c.mutate(ctx, http.MethodPut, "/items/"+strconv.FormatInt(itemID, 10), addr, map[string]int{"quantity": qty})
}

func (c *Client) RemoveItem(ctx context.Context, addr Address, itemID int64) (Result, error) {
	return c.mutate(ctx, http.MethodDelete, "/items/"+strconv.FormatInt(itemID, 10), addr, nil)
}

func (c *Client) Clear(ctx context.Context, addr Address) (Result, error) {
	return c.mutate(ctx, http.MethodDelete, "", addr, nil)
}

// Migrate asks the service to fold the session cart into the cart of the
// bearer addressed by addr.
func (c *Client) Migrate(ctx context.Context, addr Address, sessionID string) (Result, error) {
	return c.mutate(ctx, http.MethodPost, "/migrate", addr, map[string]string{"sessionId": sessionID})
}

func (c *Client) mutate(ctx context.Context, method, path string, addr Address, body any) (Result, error) {
	var resp mutationResponse
	sid, err := c.do(ctx, method, path, addr, body, &resp)
	if err != nil {
		return Result{}, err
	}
	if !resp.Success {
		return Result{}, &StatusError{Code: http.StatusUnprocessableEntity, Message: resp.Message}
	}
	cart := resp.Panier
	if cart == nil {
		cart = resp.Cart
	}
	return Result{Success: true, Message: resp.Message, Cart: cart, SessionID: sid}, nil
}

func (c *Client) do(ctx context.Context, method, path string, addr Address, body, out any) (string, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case addr.Token != "":
		req.Header.Set("Authorization", "Bearer "+addr.Token)
	case addr.SessionID != "":
		req.Header.Set(SessionHeader, addr.SessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{Code: resp.StatusCode, Message: readMessage(resp.Body)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return "", fmt.Errorf("decode response: %w: %w", ErrTransient, err)
		}
	}
	return resp.Header.Get(SessionHeader), nil
}

func readMessage(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(b) == 0 {
		return ""
	}
	var er errorResponse
	if json.Unmarshal(b, &er) == nil {
		if er.Message != "" {
			return er.Message
		}
		if er.Error != "" {
			return er.Error
		}
	}
	var s string
	if json.Unmarshal(b, &s) == nil {
		return s
	}
	return strings.TrimSpace(string(b))
}
