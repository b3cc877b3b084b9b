package resolver

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agitter/manubot/internal/csl"
)

// Output formats for WriteReferences.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// citationColumns is the header of the citations table.
var citationColumns = []string{"citation", "standard_id", "citation_key", "source"}

// SortedItems returns the CSL items of refs ordered by citation key.
// Numeric keys sort numerically.
func SortedItems(refs []*Reference) []csl.Item {
	sorted := slices.Clone(refs)
	slices.SortStableFunc(sorted, func(a, b *Reference) int {
		return compareKeys(a.Key, b.Key)
	})
	items := make([]csl.Item, len(sorted))
	for i, ref := range sorted {
		items[i] = ref.Item
	}
	return items
}

// WriteReferences writes the CSL items of refs, ordered by key, as a JSON
// array or a YAML list.
func WriteReferences(w io.Writer, refs []*Reference, format string) error {
	items := SortedItems(refs)
	switch strings.ToLower(format) {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(items); err != nil {
			return fmt.Errorf("encode references: %w", err)
		}
		return nil
	case FormatYAML, "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(items); err != nil {
			return fmt.Errorf("encode references: %w", err)
		}
		return enc.Close()
	default:
		return CheckFormat(format)
	}
}

// CheckFormat returns an error unless format is accepted by
// WriteReferences.
func CheckFormat(format string) error {
	switch strings.ToLower(format) {
	case FormatJSON, "", FormatYAML, "yml":
		return nil
	}
	return fmt.Errorf("unknown references format %q", format)
}

// WriteCitations writes the citation-to-key table as tab-separated values
// with a header row, in first-appearance order. Failed citations have an
// empty key and source.
func WriteCitations(w io.Writer, citations []Citation) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(citationColumns); err != nil {
		return err
	}
	for _, c := range citations {
		if err := cw.Write([]string{c.Raw, c.StandardID, c.Key, string(c.Source)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func compareKeys(a, b string) int {
	if isDigits(a) && isDigits(b) && len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
