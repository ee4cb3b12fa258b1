// Package amadeus implements a client for the Amadeus self-service flight
// APIs: offer search, pricing, order creation/deletion, and airport lookup.
package amadeus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultBaseURL = "https://test.api.amadeus.com"

// Client talks to the Amadeus REST API. It manages its own OAuth2
// client-credentials token and refreshes it shortly before expiry.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host (production, or an
// httptest server).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new Amadeus client.
func NewClient(clientID, clientSecret string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:      defaultBaseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a structured error response from the backend.
type APIError struct {
	StatusCode int
	Errors     []APIErrorDetail
}

// APIErrorDetail is one entry of the backend's errors array.
type APIErrorDetail struct {
	Status int    `json:"status"`
	Code   int    `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("amadeus: %s (status %d)", e.Errors[0].Title, e.StatusCode)
	}
	return fmt.Sprintf("amadeus: request failed with status %d", e.StatusCode)
}

func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status}
	var decoded struct {
		Errors []APIErrorDetail `json:"errors"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil {
		apiErr.Errors = decoded.Errors
	}
	return apiErr
}

// token returns a valid access token, fetching a fresh one when the cached
// token is missing or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > 30*time.Second {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/security/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", parseAPIError(resp.StatusCode, body)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("unmarshal token response: %w", err)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.logger.Debug("access token refreshed", "expires_in", tok.ExpiresIn)
	return c.accessToken, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) ([]byte, int, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, 0, err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// SearchRequest holds flight-offer search parameters.
type SearchRequest struct {
	Origin        string // IATA airport code
	Destination   string // IATA airport code
	DepartureDate string // YYYY-MM-DD
	ReturnDate    string // optional, YYYY-MM-DD
	Adults        int
	TravelClass   string // ECONOMY, PREMIUM_ECONOMY, BUSINESS, FIRST
	MaxResults    int
}

// SearchOffers searches flight offers. One-way and round-trip searches use
// the same parameters; nonStop is never forced for either.
func (c *Client) SearchOffers(ctx context.Context, req SearchRequest) ([]FlightOffer, error) {
	adults := req.Adults
	if adults <= 0 {
		adults = 1
	}

	query := url.Values{}
	query.Set("originLocationCode", req.Origin)
	query.Set("destinationLocationCode", req.Destination)
	query.Set("departureDate", req.DepartureDate)
	query.Set("adults", strconv.Itoa(adults))
	if req.ReturnDate != "" {
		query.Set("returnDate", req.ReturnDate)
	}
	if req.TravelClass != "" {
		query.Set("travelClass", strings.ToUpper(req.TravelClass))
	}
	if req.MaxResults > 0 {
		query.Set("max", strconv.Itoa(req.MaxResults))
	}

	body, status, err := c.do(ctx, http.MethodGet, "/v2/shopping/flight-offers", query, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, parseAPIError(status, body)
	}

	var decoded struct {
		Data []FlightOffer `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal search response: %w", err)
	}
	return decoded.Data, nil
}

// PriceOffer confirms pricing for one offer and returns the backend's
// booking requirements. The offer payload is forwarded verbatim.
func (c *Client) PriceOffer(ctx context.Context, offer FlightOffer) (*PricedOffer, error) {
	payload := map[string]any{
		"data": map[string]any{
			"type":         "flight-offers-pricing",
			"flightOffers": []FlightOffer{offer},
		},
	}

	body, status, err := c.do(ctx, http.MethodPost, "/v1/shopping/flight-offers/pricing", nil, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, parseAPIError(status, body)
	}

	var decoded struct {
		Data PricedOffer `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal pricing response: %w", err)
	}
	return &decoded.Data, nil
}

// OrderRequest bundles everything needed to create a flight order.
type OrderRequest struct {
	Offer     FlightOffer
	Travelers []Traveler
	Payment   *Payment
	Remarks   []string
}

// CreateOrder creates a flight order (booking or hold) for an offer.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	data := map[string]any{
		"type":         "flight-order",
		"flightOffers": []FlightOffer{req.Offer},
		"travelers":    req.Travelers,
		"ticketingAgreement": map[string]any{
			"option": "DELAY_TO_CANCEL",
			"delay":  "6D",
		},
	}
	if req.Payment != nil {
		data["formOfPayments"] = []Payment{*req.Payment}
	}
	if len(req.Remarks) > 0 {
		general := make([]map[string]string, 0, len(req.Remarks))
		for i, r := range req.Remarks {
			general = append(general, map[string]string{
				"subType": "GENERAL_MISCELLANEOUS",
				"text":    r,
				"category": fmt.Sprintf("REMARK_%d", i+1),
			})
		}
		data["remarks"] = map[string]any{"general": general}
	}

	body, status, err := c.do(ctx, http.MethodPost, "/v1/booking/flight-orders", nil, map[string]any{"data": data})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, parseAPIError(status, body)
	}

	var decoded struct {
		Data Order `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal order response: %w", err)
	}
	c.logger.Info("flight order created", "order_id", decoded.Data.ID)
	return &decoded.Data, nil
}

// DeleteOrder cancels a held order. Deleting an unknown or already-deleted
// order is a success no-op: the user-facing contract is that the hold is
// gone, not that it existed.
func (c *Client) DeleteOrder(ctx context.Context, orderID string) error {
	body, status, err := c.do(ctx, http.MethodDelete, "/v1/booking/flight-orders/"+url.PathEscape(orderID), nil, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return parseAPIError(status, body)
	}
}

// SearchLocations looks up airports matching a free-text keyword.
func (c *Client) SearchLocations(ctx context.Context, keyword string) ([]Location, error) {
	query := url.Values{}
	query.Set("keyword", keyword)
	query.Set("subType", "AIRPORT")

	body, status, err := c.do(ctx, http.MethodGet, "/v1/reference-data/locations", query, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, parseAPIError(status, body)
	}

	var decoded struct {
		Data []Location `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("unmarshal locations response: %w", err)
	}
	return decoded.Data, nil
}
