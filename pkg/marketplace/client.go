package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ShopPilot/pkg/model"

	"github.com/shopspring/decimal"
)

// Client target marketplace buying API: offers and purchases
type Client struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewClient timeout 0 means 30s
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

// apiError error body of the marketplace
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type purchaseAccount struct {
	Email           string `json:"email"`
	Password        string `json:"password,omitempty"`
	APIKey          string `json:"api_key,omitempty"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
}

type purchaseBody struct {
	TargetRef    string          `json:"target_ref"`
	Quantity     int             `json:"quantity"`
	MaxUnitPrice decimal.Decimal `json:"max_unit_price"`
	Currency     string          `json:"currency"`
	ShipTo       model.Address   `json:"ship_to"`
	Account      purchaseAccount `json:"account"`
}

// Quote current offer for targetRef
func (c *Client) Quote(ctx context.Context, orgID, targetRef string, quantity int) (*model.TargetQuote, error) {
	if quantity < 1 {
		quantity = 1
	}
	endpoint := fmt.Sprintf("%s/v1/offers/%s?quantity=%s", c.BaseURL, url.PathEscape(targetRef), strconv.Itoa(quantity))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build quote request: %w", err)
	}
	c.setHeaders(req, orgID)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", targetRef, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read quote response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote %s: %s", targetRef, describe(resp.StatusCode, body))
	}

	var quote model.TargetQuote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, fmt.Errorf("parse quote response: %w", err)
	}
	if quote.TargetRef == "" {
		quote.TargetRef = targetRef
	}
	return &quote, nil
}

// Purchase places the order. The idempotency key makes a repeated call return the first order.
// 4xx answers are permanent failures except 408 and 429; everything else is transient.
func (c *Client) Purchase(ctx context.Context, in model.PurchaseRequest) (*model.PurchaseResult, error) {
	payload, err := json.Marshal(purchaseBody{
		TargetRef:    in.TargetRef,
		Quantity:     in.Quantity,
		MaxUnitPrice: in.MaxUnitPrice,
		Currency:     in.Currency,
		ShipTo:       in.ShipTo,
		Account: purchaseAccount{
			Email:           in.Credentials.AccountEmail,
			Password:        in.Credentials.Password,
			APIKey:          in.Credentials.APIKey,
			PaymentMethodID: in.Credentials.PaymentMethodID,
		},
	})
	if err != nil {
		return nil, &model.PurchaseError{Permanent: true, Code: "ENCODE", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/purchases", bytes.NewReader(payload))
	if err != nil {
		return nil, &model.PurchaseError{Permanent: true, Code: "REQUEST", Err: err}
	}
	c.setHeaders(req, in.OrgID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", in.IdempotencyKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, &model.PurchaseError{Code: "NETWORK", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.PurchaseError{Code: "NETWORK", Err: err}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var apiErr apiError
		_ = json.Unmarshal(body, &apiErr)
		if apiErr.Code == "" {
			apiErr.Code = "HTTP_" + strconv.Itoa(resp.StatusCode)
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return nil, &model.PurchaseError{
			Permanent: permanentStatus(resp.StatusCode),
			Code:      apiErr.Code,
			Message:   apiErr.Message,
		}
	}

	var result model.PurchaseResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &model.PurchaseError{Code: "DECODE", Err: err}
	}
	if result.ExternalOrderRef == "" {
		return nil, &model.PurchaseError{Code: "DECODE", Message: "response has no external_order_ref"}
	}
	return &result, nil
}

func (c *Client) setHeaders(req *http.Request, orgID string) {
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if orgID != "" {
		req.Header.Set("X-Org-ID", orgID)
	}
}

func permanentStatus(code int) bool {
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests {
		return false
	}
	return code >= 400 && code < 500
}

func describe(status int, body []byte) string {
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		return fmt.Sprintf("status %d: %s", status, apiErr.Message)
	}
	return fmt.Sprintf("status %d", status)
}
