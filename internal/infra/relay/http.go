package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"liquidity_go/internal/domain"
)

// HTTPRelay posts offers to a request/response relay. Two wire encodings
// exist in the wild: JSON bodies on an /offers endpoint and form-encoded
// bodies on an /orders endpoint; both reduce to one POST per offer.
type HTTPRelay struct {
	name       string
	baseURL    string
	form       bool
	httpClient *http.Client
}

func newHTTPRelay(name, baseURL string, form bool) *HTTPRelay {
	return &HTTPRelay{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		form:    form,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// NewHTTPJSON creates a relay client posting JSON offer bodies.
func NewHTTPJSON(name, baseURL string) *HTTPRelay {
	return newHTTPRelay(name, baseURL, false)
}

// NewHTTPForm creates a relay client posting form-encoded offer bodies.
func NewHTTPForm(name, baseURL string) *HTTPRelay {
	return newHTTPRelay(name, baseURL, true)
}

// Name returns the configured relay name.
func (r *HTTPRelay) Name() string {
	return r.name
}

// SubmitOffer advertises one offer. Transport failures and 5xx responses
// come back as retriable network errors; a 4xx is a definitive rejection.
func (r *HTTPRelay) SubmitOffer(ctx context.Context, offer *domain.SwapOffer) error {
	var req *http.Request
	var err error
	if r.form {
		form := url.Values{"offer": {offer.Blob}}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/orders", strings.NewReader(form.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		body := fmt.Sprintf(`{"offer":%q}`, offer.Blob)
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/offers", strings.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return domain.NewNetworkError("post "+r.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 500 {
		return domain.NewNetworkError("post "+r.name,
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(raw)))
	}
	return fmt.Errorf("%w: %s status=%d body=%s", domain.ErrRelayRejected, r.name, resp.StatusCode, string(raw))
}
