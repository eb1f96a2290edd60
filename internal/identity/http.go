package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vietddude/custody/internal/core/domain"
)

// HTTPRegistry talks to a remote identity service over JSON/HTTP.
//
//	GET  {base}/v1/credentials/{id}/valid?owner={owner} -> {"valid": bool}
//	POST {base}/v1/credentials/{id}/use                 -> 204
//	GET  {base}/v1/owners/{owner}/credentials/count     -> {"count": int}
type HTTPRegistry struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPRegistry creates a registry client for baseURL.
func NewHTTPRegistry(baseURL string, timeout time.Duration) *HTTPRegistry {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPRegistry{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (r *HTTPRegistry) IsCredentialValid(ctx context.Context, owner domain.Principal, credential domain.CredentialID) (bool, error) {
	path := fmt.Sprintf("/v1/credentials/%s/valid?owner=%s",
		url.PathEscape(string(credential)), url.QueryEscape(string(owner)))

	var out struct {
		Valid bool `json:"valid"`
	}
	if err := r.do(ctx, http.MethodGet, path, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

func (r *HTTPRegistry) MarkCredentialUsed(ctx context.Context, credential domain.CredentialID) error {
	path := fmt.Sprintf("/v1/credentials/%s/use", url.PathEscape(string(credential)))
	return r.do(ctx, http.MethodPost, path, nil)
}

func (r *HTTPRegistry) CredentialCount(ctx context.Context, owner domain.Principal) (int, error) {
	path := fmt.Sprintf("/v1/owners/%s/credentials/count", url.PathEscape(string(owner)))

	var out struct {
		Count int `json:"count"`
	}
	if err := r.do(ctx, http.MethodGet, path, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (r *HTTPRegistry) do(ctx context.Context, method, path string, out any) error {
	var body io.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte("{}"))
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && method == http.MethodPost {
		return ErrUnknownCredential
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(data))
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
