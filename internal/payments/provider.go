package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPProvider queries intent status over the provider's REST API.
// It implements Provider for the reconciliation sweep.
type HTTPProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPProvider creates an HTTPProvider with a 10s request timeout.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// IntentStatus fetches one payment intent and returns its status field.
func (p *HTTPProvider) IntentStatus(ctx context.Context, providerRef string) (string, error) {
	url := fmt.Sprintf("%s/v1/payment_intents/%s", p.BaseURL, providerRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build intent request: %w", err)
	}
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch intent %s: %w", providerRef, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("fetch intent %s: status %d: %s", providerRef, resp.StatusCode, body)
	}

	var intent struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return "", fmt.Errorf("decode intent %s: %w", providerRef, err)
	}
	if intent.Status == "" {
		return "", fmt.Errorf("intent %s: response missing status", providerRef)
	}
	return intent.Status, nil
}
