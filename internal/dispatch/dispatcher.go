package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"resty.dev/v3"

	"github.com/vk/gridci/internal/ctxlog"
)

// Request is the payload sent to the dispatch endpoint for one `uses` job.
// Secrets are only attached when the job opted in with `secrets: inherit`;
// they never appear in logs or in the store.
type Request struct {
	Ref       string            `json:"ref"`
	Workflow  string            `json:"workflow"`
	Job       string            `json:"job"`
	RunID     int64             `json:"run_id"`
	RunNumber int64             `json:"run_number"`
	Inputs    map[string]string `json:"inputs,omitempty"`
	Secrets   map[string]string `json:"secrets,omitempty"`
}

// Result is what the callee reports back.
type Result struct {
	Result  string            `json:"result"`
	Outputs map[string]string `json:"outputs,omitempty"`
}

// Client dispatches jobs to external reusable workflows over HTTP.
type Client struct {
	http       *resty.Client
	secrets    map[string]string
	maxRetries uint64
}

// Option configures a Client.
type Option func(*Client)

// WithSecrets sets the secret set handed to jobs that inherit secrets.
func WithSecrets(secrets map[string]string) Option {
	return func(c *Client) { c.secrets = secrets }
}

// WithMaxRetries caps how often a transient dispatch failure is retried.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// NewClient builds a dispatcher against the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:       resty.New().SetBaseURL(baseURL),
		maxRetries: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

// Dispatch invokes one reusable workflow and waits for its result. Network
// errors and 5xx responses are retried with exponential backoff up to the
// configured cap; 4xx responses are permanent failures.
func (c *Client) Dispatch(ctx context.Context, ref Ref, req Request, inheritSecrets bool) (*Result, error) {
	logger := ctxlog.FromContext(ctx).With("ref", ref.String(), "job", req.Job)
	req.Ref = ref.String()
	if inheritSecrets {
		req.Secrets = c.secrets
	}

	var result Result
	attempt := 0
	operation := func() error {
		attempt++
		logger.Debug("Dispatching reusable workflow.", "attempt", attempt)

		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&result).
			Post("/dispatch")
		if err != nil {
			return fmt.Errorf("dispatching %s: %w", ref, err)
		}
		if resp.IsSuccess() {
			return nil
		}
		if resp.StatusCode() >= 500 {
			return fmt.Errorf("dispatching %s: callee returned %d", ref, resp.StatusCode())
		}
		// Client errors will not get better by retrying.
		return backoff.Permanent(fmt.Errorf("dispatching %s: callee rejected request with %d", ref, resp.StatusCode()))
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	if result.Result == "" {
		return nil, fmt.Errorf("dispatching %s: callee reported no result", ref)
	}
	logger.Debug("Dispatch completed.", "result", result.Result)
	return &result, nil
}
