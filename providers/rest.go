package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxAPIResponseBodyBytes = 4 << 20 // 4 MiB

// APIError is a non-2xx response from a provider REST endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("providers: api error (%d): %s", e.Status, body)
}

// DoJSON performs an authenticated JSON request against a provider API and
// decodes the response into out (when out is non-nil).
func DoJSON(ctx context.Context, client HTTPDoer, method string, endpoint string, accessToken string, in any, out any) error {
	if client == nil {
		return fmt.Errorf("providers: http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return fmt.Errorf("providers: access token is required")
	}

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("providers: encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	response, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("providers: api request failed: %w", err)
	}
	defer response.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(response.Body, maxAPIResponseBodyBytes))
	if readErr != nil {
		return fmt.Errorf("providers: read api response: %w", readErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return &APIError{Status: response.StatusCode, Body: string(raw)}
	}
	if out == nil || len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("providers: decode api response: %w", err)
	}
	return nil
}
