package browse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/jobscout/jobscout/internal/model"
	"github.com/jobscout/jobscout/internal/resilience"
)

// RemoteDriver talks to a browser-automation sidecar over HTTP.
type RemoteDriver struct {
	baseURL string
	source  string
	http    *http.Client
	retry   resilience.Policy
}

// RemoteOption configures the remote driver.
type RemoteOption func(*RemoteDriver)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) RemoteOption {
	return func(d *RemoteDriver) {
		d.http = hc
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p resilience.Policy) RemoteOption {
	return func(d *RemoteDriver) {
		d.retry = p
	}
}

// WithSource sets the job board name reported on extracted candidates.
func WithSource(source string) RemoteOption {
	return func(d *RemoteDriver) {
		d.source = source
	}
}

// NewRemoteDriver creates a Driver backed by the sidecar at baseURL.
func NewRemoteDriver(baseURL string, opts ...RemoteOption) *RemoteDriver {
	d := &RemoteDriver{
		baseURL: baseURL,
		source:  "glassdoor",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *RemoteDriver) Source() string {
	return d.source
}

type countResponse struct {
	Discovered int `json:"discovered"`
}

func (d *RemoteDriver) PerformBaseSearch(ctx context.Context, criteria model.SearchCriteria) (int, error) {
	var out countResponse
	if err := d.call(ctx, http.MethodPost, "/v1/search", criteria, &out); err != nil {
		return 0, eris.Wrap(err, "driver: base search")
	}
	return out.Discovered, nil
}

func (d *RemoteDriver) AvailableRefinements(ctx context.Context) ([]RefinementOption, error) {
	var out struct {
		Refinements []RefinementOption `json:"refinements"`
	}
	if err := d.call(ctx, http.MethodGet, "/v1/refinements", nil, &out); err != nil {
		return nil, eris.Wrap(err, "driver: available refinements")
	}
	return out.Refinements, nil
}

func (d *RemoteDriver) ApplyRefinements(ctx context.Context, r model.Refinements) (int, error) {
	var out countResponse
	if err := d.call(ctx, http.MethodPost, "/v1/refine", r, &out); err != nil {
		return 0, eris.Wrap(err, "driver: apply refinements")
	}
	return out.Discovered, nil
}

func (d *RemoteDriver) ExtractAt(ctx context.Context, index int) (*model.PostingCandidate, error) {
	var out model.PostingCandidate
	err := d.call(ctx, http.MethodGet, fmt.Sprintf("/v1/postings/%d", index), nil, &out)
	if err != nil {
		if eris.Is(err, ErrEndOfResults) {
			return nil, ErrEndOfResults
		}
		return nil, eris.Wrapf(err, "driver: extract %d", index)
	}
	if out.Source == "" {
		out.Source = d.source
	}
	return &out, nil
}

// call issues one JSON request under the retry policy. Transient statuses are
// retried; 404 maps to ErrEndOfResults for the caller to interpret.
func (d *RemoteDriver) call(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
	}

	body, err := resilience.Do(ctx, d.retry, method+" "+path, func(ctx context.Context) ([]byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-Id", uuid.NewString())
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := d.http.Do(req)
		if err != nil {
			return nil, resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resilience.NewTransientError(eris.Wrap(err, "read response"), resp.StatusCode)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return data, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, ErrEndOfResults
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			return nil, resilience.NewTransientError(
				eris.Errorf("status %d: %s", resp.StatusCode, string(data)), resp.StatusCode)
		default:
			return nil, eris.Errorf("status %d: %s", resp.StatusCode, string(data))
		}
	})
	if err != nil {
		return err
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return eris.Wrap(err, "unmarshal response")
		}
	}
	return nil
}
