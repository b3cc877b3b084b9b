// Package raw turns identifiers that embed their own CSL record into items
// without any network access.
package raw

import (
	"context"
	"strings"

	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/identifier"
	"github.com/agitter/manubot/internal/providers"
)

// Version tags raw payloads.
const Version = "1"

const sourceName = "raw"

// Client implements providers.Fetchable for raw identifiers.
type Client struct{}

var _ providers.Fetchable = (*Client)(nil)

// New creates a raw adapter.
func New() *Client { return &Client{} }

// Provider returns domain.ProviderRaw.
func (c *Client) Provider() domain.Provider { return domain.ProviderRaw }

// Version returns the payload version.
func (c *Client) Version() string { return Version }

// Retrieve returns the embedded JSON object. Plain keys such as "raw:mykey"
// only resolve through a manual record and are reported as not found here.
func (c *Client) Retrieve(ctx context.Context, id identifier.Identifier) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value := strings.TrimSpace(id.Value)
	if !strings.HasPrefix(value, "{") {
		return nil, domain.NewNotFoundError("manual reference", id.Value)
	}
	return []byte(value), nil
}

// Transform decodes the embedded record. Its id is replaced by the
// identifier's standard form and a missing type defaults to csl.DefaultType.
func (c *Client) Transform(id identifier.Identifier, payload []byte) (csl.Item, error) {
	item, err := csl.Decode(payload)
	if err != nil {
		return nil, providers.Malformed(sourceName, id, err)
	}
	item.SetID(id.String())
	item.SetDefaultType()
	return item, nil
}
