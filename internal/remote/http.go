package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lherron/folio/internal/bundle"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// HTTP is a Remote served at BaseURL/v1/remote/bundles/{userID}: GET to
// pull, PUT to push. Requests carry a bearer token when Token is set.
type HTTP struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewHTTP returns an HTTP remote. A zero timeout uses the default.
func NewHTTP(baseURL, token string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTP{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTP) endpoint(userID string) string {
	return h.BaseURL + "/v1/remote/bundles/" + url.PathEscape(userID)
}

func (h *HTTP) do(req *http.Request) (*http.Response, error) {
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}
	req.Header.Set("Accept", "application/json")
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}

// Pull fetches the user's bundle. A 404 means nothing was pushed yet.
func (h *HTTP) Pull(ctx context.Context, userID string) (*bundle.SyncBundle, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pull request: %w", err)
	}
	resp, err := h.do(req)
	if err != nil {
		return nil, fmt.Errorf("remote pull failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return bundle.Empty(), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("pull", resp)
	}
	b, err := bundle.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote pull returned invalid bundle: %w", err)
	}
	return b, nil
}

// Push uploads the user's bundle.
func (h *HTTP) Push(ctx context.Context, userID string, b *bundle.SyncBundle) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}
	var body bytes.Buffer
	if err := bundle.Encode(&body, b); err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, h.endpoint(userID), &body)
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.do(req)
	if err != nil {
		return fmt.Errorf("remote push failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("push", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func statusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}
