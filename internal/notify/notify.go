// Package notify posts a JSON notification to configured URLs after each
// successful sync cycle, so other devices or services can pull promptly.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout     = 2 * time.Second
	defaultConcurrency = 4
)

// Payload is the body posted to every target.
type Payload struct {
	Event        string `json:"event"`
	UserID       string `json:"userId"`
	MergedRev    string `json:"mergedRev"`
	Conflicts    int    `json:"conflicts"`
	PushedRemote bool   `json:"pushedRemote"`
	At           string `json:"at"`
}

// Notifier fans a payload out to a fixed set of URLs.
type Notifier struct {
	urls   []string
	client *http.Client
	log    *zap.Logger
}

// New returns a Notifier for the given raw URLs. Invalid and duplicate
// URLs are dropped with a warning.
func New(rawURLs []string, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		urls:   Normalize(rawURLs, logger),
		client: &http.Client{Timeout: defaultTimeout},
		log:    logger,
	}
}

// URLs returns the normalized targets.
func (n *Notifier) URLs() []string {
	return n.urls
}

// Normalize trims, validates and de-dupes webhook URLs. "{user_id}" is kept
// as a placeholder filled per payload.
func Normalize(urls []string, logger *zap.Logger) []string {
	if len(urls) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(urls))
	var normalized []string

	for _, raw := range urls {
		trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
		if trimmed == "" {
			continue
		}
		if !isValidURL(applyTemplate(trimmed, "user")) {
			logger.Warn("skipping invalid notify url", zap.String("url", trimmed))
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}

	return normalized
}

func applyTemplate(raw, userID string) string {
	return strings.ReplaceAll(raw, "{user_id}", url.PathEscape(userID))
}

func isValidURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}

// Send posts payload to every target and waits for all requests. Failures
// are logged, never returned: notification is best-effort.
func (n *Notifier) Send(ctx context.Context, payload Payload) {
	if n == nil || len(n.urls) == 0 {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error("failed to encode notify payload", zap.Error(err))
		return
	}

	workers := defaultConcurrency
	if len(n.urls) < workers {
		workers = len(n.urls)
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for endpoint := range jobs {
				n.post(ctx, endpoint, body)
			}
		}()
	}

	for _, endpoint := range n.urls {
		jobs <- applyTemplate(endpoint, payload.UserID)
	}
	close(jobs)
	wg.Wait()
}

func (n *Notifier) post(ctx context.Context, endpoint string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		n.log.Warn("failed to build notify request", zap.String("url", endpoint), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("notify request failed", zap.String("url", endpoint), zap.Error(err))
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.Warn("notify target rejected payload", zap.String("url", endpoint), zap.Int("status", resp.StatusCode))
	}
}
