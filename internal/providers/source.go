// Package providers defines the adapter contract for citation metadata
// providers and the HTTP plumbing the adapters share.
//
// Each provider (DOI, PubMed, PMC, arXiv, ISBN, URL, raw) lives in its own
// subpackage and implements Fetchable. Retrieval and transformation are
// separate steps so the raw payload can be cached and re-transformed:
//
//	adapter := doi.New(doi.Config{})
//	payload, err := adapter.Retrieve(ctx, id)
//	item, err := adapter.Transform(id, payload)
//
// Fetch composes both for callers that do not cache.
package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/identifier"
)

// MaxBodySize caps how much of a provider response is read.
const MaxBodySize = 10 << 20

// Fetchable is implemented by every provider adapter.
type Fetchable interface {
	// Provider returns the identifier kind this adapter resolves.
	Provider() domain.Provider

	// Version tags cached payloads. Changing it invalidates the adapter's
	// cache entries and nothing else.
	Version() string

	// Retrieve performs the outbound request for id and returns the raw
	// payload. Only payloads describing an existing record are returned;
	// a missing record is a *domain.NotFoundError.
	Retrieve(ctx context.Context, id identifier.Identifier) ([]byte, error)

	// Transform turns a payload returned by Retrieve into a CSL item.
	// It is pure and must not perform I/O.
	Transform(id identifier.Identifier, payload []byte) (csl.Item, error)
}

// Fetch retrieves and transforms id with f.
func Fetch(ctx context.Context, f Fetchable, id identifier.Identifier) (csl.Item, error) {
	payload, err := f.Retrieve(ctx, id)
	if err != nil {
		return nil, err
	}
	return f.Transform(id, payload)
}

// CheckResponse maps a non-2xx response to a domain error. 404, 410, 400
// and 422 mean the identifier does not exist; any other failure status is
// an *domain.ExternalAPIError. A nil error is returned for 2xx responses.
func CheckResponse(provider string, id identifier.Identifier, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(body))
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone, http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w (status %d)", domain.NewNotFoundError(provider+" record", id.Value), resp.StatusCode)
	default:
		return domain.NewExternalAPIError(provider, resp.StatusCode, msg, nil)
	}
}

// Get issues a GET request for rawURL through client and returns the body
// of a successful response. Headers are added to the request as given.
func Get(ctx context.Context, client *HTTPClient, id identifier.Identifier, rawURL string, headers map[string]string) ([]byte, error) {
	provider := client.Provider()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := CheckResponse(provider, id, resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
	if err != nil {
		return nil, domain.NewExternalAPIError(provider, 0, "", fmt.Errorf("failed to read response: %w", err))
	}
	return body, nil
}

// Malformed wraps a decode failure of provider's payload for id.
func Malformed(provider string, id identifier.Identifier, cause error) error {
	return domain.NewMalformedResponseError(provider, id.String(), cause)
}
