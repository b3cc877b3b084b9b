// Package identifier parses raw citation strings such as "doi:10.1000/abc",
// "pmid:123" or a bare URL into typed, normalized identifiers.
//
// Parsing is pure. A parsed Identifier renders back to a string with String,
// and parsing that string yields the same Identifier.
package identifier

import (
	"strings"

	"github.com/agitter/manubot/internal/domain"
)

// Separator divides the provider prefix from the identifier value.
const Separator = ":"

// prefixes maps accepted prefixes (lowercase) to their provider.
var prefixes = map[string]domain.Provider{
	"doi":    domain.ProviderDOI,
	"pmid":   domain.ProviderPMID,
	"pubmed": domain.ProviderPMID,
	"pmcid":  domain.ProviderPMCID,
	"pmc":    domain.ProviderPMCID,
	"arxiv":  domain.ProviderArXiv,
	"isbn":   domain.ProviderISBN,
	"url":    domain.ProviderURL,
	"raw":    domain.ProviderRaw,
}

// Identifier is a normalized (provider, value) pair. Values are comparable
// with == and usable as map keys.
type Identifier struct {
	Provider domain.Provider
	Value    string
}

// String renders the identifier in its standard "provider:value" form.
func (id Identifier) String() string {
	return string(id.Provider) + Separator + id.Value
}

// Parse normalizes a raw citation string into an Identifier.
// An unrecognized or missing prefix falls back to a URL when the string
// starts with "http"; anything else is an invalid identifier.
func Parse(raw string) (Identifier, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Identifier{}, domain.NewIdentifierError(raw, "empty citation")
	}

	prefix, value, found := strings.Cut(s, Separator)
	provider, known := prefixes[strings.ToLower(prefix)]
	if !found || !known {
		if strings.HasPrefix(strings.ToLower(s), "http") {
			provider, value = domain.ProviderURL, s
		} else if !found {
			return Identifier{}, domain.NewIdentifierError(raw, "missing provider prefix")
		} else {
			return Identifier{}, domain.NewIdentifierError(raw, "unknown provider prefix "+strings.ToLower(prefix))
		}
	}

	normalized, err := normalize(provider, strings.TrimSpace(value))
	if err != nil {
		return Identifier{}, domain.NewIdentifierError(raw, err.Error())
	}
	return Identifier{Provider: provider, Value: normalized}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level values.
func MustParse(raw string) Identifier {
	id, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return id
}
