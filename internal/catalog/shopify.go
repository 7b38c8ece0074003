// Package catalog reads products from the Shopify Admin REST API.
//
// The catalog is read-only and never persisted here. Reader puts a short
// expiring cache in front of the API so browsing does not hit Shopify on
// every page view.
package catalog

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

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/model"
)

const (
	APIVersion = "2023-10"

	// pageLimit is the largest page the Admin API returns.
	pageLimit = 250
)

type ShopifyConfig struct {
	StoreURL    string // e.g. my-shop.myshopify.com, no scheme
	AccessToken string

	// BaseURL replaces https://{StoreURL}. Tests point it at httptest.
	BaseURL    string
	HTTPClient *http.Client
}

// Missing names the absent credential keys.
func (c ShopifyConfig) Missing() []string {
	var missing []string
	if c.StoreURL == "" && c.BaseURL == "" {
		missing = append(missing, "SHOPIFY_STORE_URL")
	}
	if c.AccessToken == "" {
		missing = append(missing, "SHOPIFY_ACCESS_TOKEN")
	}
	return missing
}

// Shopify is the API client. Credentials are checked per call, so a
// server without them still starts and reports the problem on the
// catalog pages only.
type Shopify struct {
	cfg  ShopifyConfig
	http *http.Client
}

var _ Source = (*Shopify)(nil)

func NewShopify(cfg ShopifyConfig) *Shopify {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Shopify{cfg: cfg, http: client}
}

func errMissingCredentials() *apperror.AppError {
	return &apperror.AppError{
		Err:     apperror.ErrConfiguration,
		Message: "Shopify API credentials are missing. Please check your environment variables.",
	}
}

func (s *Shopify) ListProducts(ctx context.Context) ([]model.Product, error) {
	var body struct {
		Products []model.Product `json:"products"`
	}
	query := url.Values{"limit": {strconv.Itoa(pageLimit)}}
	if err := s.get(ctx, "products.json", query, &body); err != nil {
		return nil, fmt.Errorf("catalog: listing products: %w", err)
	}
	if body.Products == nil {
		body.Products = []model.Product{}
	}
	return body.Products, nil
}

// GetProduct returns apperror.ErrNotFound when Shopify answers 404.
func (s *Shopify) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var body struct {
		Product *model.Product `json:"product"`
	}
	err := s.get(ctx, fmt.Sprintf("products/%d.json", id), nil, &body)

	var status statusError
	if errors.As(err, &status) && status.code == http.StatusNotFound {
		return nil, apperror.NotFound("product", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: fetching product %d: %w", id, err)
	}
	if body.Product == nil {
		return nil, apperror.NotFound("product", strconv.FormatInt(id, 10))
	}
	return body.Product, nil
}

// statusError carries the HTTP status next to the Upstream error.
type statusError struct {
	code int
	err  *apperror.AppError
}

func (e statusError) Error() string { return e.err.Error() }
func (e statusError) Unwrap() error { return e.err }

func (s *Shopify) get(ctx context.Context, resource string, query url.Values, out any) error {
	if len(s.cfg.Missing()) > 0 {
		return errMissingCredentials()
	}

	endpoint := s.baseURL() + "/admin/api/" + APIVersion + "/" + resource
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-Shopify-Access-Token", s.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return apperror.Upstream("Shopify API", err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError{
			code: resp.StatusCode,
			err:  apperror.Upstream("Shopify API", upstreamMessage(raw, resp.StatusCode)),
		}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (s *Shopify) baseURL() string {
	if s.cfg.BaseURL != "" {
		return strings.TrimRight(s.cfg.BaseURL, "/")
	}
	return "https://" + strings.TrimRight(s.cfg.StoreURL, "/")
}

// upstreamMessage extracts Shopify's "errors" field, which is a string for
// most failures and an object for validation ones. Without it the status
// text is used.
func upstreamMessage(raw []byte, status int) string {
	var body struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && len(body.Errors) > 0 && string(body.Errors) != "null" {
		var text string
		if json.Unmarshal(body.Errors, &text) == nil {
			if text != "" {
				return text
			}
		} else {
			var compact bytes.Buffer
			if json.Compact(&compact, body.Errors) == nil {
				return compact.String()
			}
		}
	}
	return http.StatusText(status)
}
