package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

const defaultRequestTimeout = 60 * time.Second

// Sampling controls generation. Zero values leave the provider default.
type Sampling struct {
	Temperature *float64
	MaxTokens   int
}

// ProviderOption configures a provider.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	logger   *slog.Logger
	client   *http.Client
	baseURL  string
	sampling Sampling
}

// WithLogger sets the provider's logger.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(o *providerOptions) {
		o.logger = logger
	}
}

// WithHTTPClient replaces the HTTP client used by HTTP-backed providers.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(o *providerOptions) {
		o.client = client
	}
}

// WithBaseURL points an HTTP-backed provider at a different server.
func WithBaseURL(url string) ProviderOption {
	return func(o *providerOptions) {
		o.baseURL = url
	}
}

// WithSampling sets generation parameters.
func WithSampling(s Sampling) ProviderOption {
	return func(o *providerOptions) {
		o.sampling = s
	}
}

func applyOptions(opts []ProviderOption) providerOptions {
	o := providerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil {
		o.client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return o
}

func (o providerOptions) logDebug(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

// jsonEndpoint posts JSON to one URL on behalf of a provider and decodes
// the JSON reply.
type jsonEndpoint struct {
	provider string
	url      string
	client   *http.Client
	headers  map[string]string
	// errorMessage pulls a human-readable message out of an error body.
	errorMessage func(body []byte) string
}

func (e jsonEndpoint) post(ctx context.Context, op string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return nimerrors.NewAIErrorWithCause(e.provider, op, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nimerrors.NewAIErrorWithCause(e.provider, op, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nimerrors.NewAIErrorWithCause(e.provider, op, "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nimerrors.NewAIErrorWithCause(e.provider, op, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := ""
		if e.errorMessage != nil {
			msg = e.errorMessage(respBody)
		}
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return nimerrors.NewAIErrorWithStatus(e.provider, op, resp.StatusCode, msg)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return nimerrors.NewAIErrorWithCause(e.provider, op, "failed to parse response", err)
	}
	return nil
}
