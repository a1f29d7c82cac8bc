// Package httpjson is a transport-level Backend that POSTs a typed input
// as JSON to a configured endpoint and decodes a typed output, for wiring
// a real specialist service behind the worker.Backend contract.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/arcfin/planner/internal/errs"
)

// Backend POSTs In as JSON to URL and decodes the response body as Out.
type Backend[In, Out any] struct {
	URL    string
	Client *http.Client
}

// New builds an httpjson backend. client may be nil, in which case
// http.DefaultClient is used; callers should normally pass a client
// carrying the worker_timeout_ms budget instead.
func New[In, Out any](url string, client *http.Client) Backend[In, Out] {
	if client == nil {
		client = http.DefaultClient
	}
	return Backend[In, Out]{URL: url, Client: client}
}

// Call sends in as a JSON request body and decodes the response into Out.
// Network failures, 429 and 5xx responses are classified transient; 4xx
// client errors other than 429 are classified permanent, matching the
// shape other specialist-service callers in the retrieved pack use for
// request/response workers.
func (b Backend[In, Out]) Call(ctx context.Context, in In) (Out, error) {
	var zero Out

	body, err := json.Marshal(in)
	if err != nil {
		return zero, errs.Wrap(errs.KindInternal, "marshal worker request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.URL, bytes.NewReader(body))
	if err != nil {
		return zero, errs.Wrap(errs.KindInternal, "build worker request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return zero, errs.Wrap(errs.KindCancelled, "worker request cancelled", ctx.Err())
		}
		return zero, errs.Wrap(errs.KindTransient, "worker request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return zero, errs.Newf(errs.KindTransient, "worker returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return zero, errs.Newf(errs.KindPermanent, "worker returned status %d", resp.StatusCode)
	}

	var out Out
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return zero, errs.Wrap(errs.KindValidation, fmt.Sprintf("decode worker response from %s", b.URL), err)
	}

	return out, nil
}
