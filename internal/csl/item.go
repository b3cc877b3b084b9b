// Package csl holds CSL-JSON items and the bundled schema used to validate
// and prune them.
package csl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Item is a CSL-JSON record: a JSON object decoded into generic Go values.
type Item map[string]any

// Decode parses a JSON object into an Item.
func Decode(data []byte) (Item, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, errors.New("CSL item must be a JSON object")
	}
	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode CSL item: %w", err)
	}
	return item, nil
}

// DecodeList parses a JSON array of CSL items. Some providers answer with a
// one-element array rather than a bare object.
func DecodeList(data []byte) ([]Item, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		item, err := Decode(data)
		if err != nil {
			return nil, err
		}
		return []Item{item}, nil
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode CSL items: %w", err)
	}
	return items, nil
}

// ID returns the item's id as a string, or "" when absent.
func (it Item) ID() string {
	switch v := it["id"].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// SetID sets the item's id.
func (it Item) SetID(id string) {
	it["id"] = id
}

// Type returns the item's CSL type, or "" when absent.
func (it Item) Type() string {
	s, _ := it["type"].(string)
	return s
}

// DefaultType is the type given to items that do not declare one.
const DefaultType = "entry"

// SetDefaultType sets the type to DefaultType when it is missing.
func (it Item) SetDefaultType() {
	if it.Type() == "" {
		it["type"] = DefaultType
	}
}

// Title returns the item's title, or "" when absent.
func (it Item) Title() string {
	s, _ := it["title"].(string)
	return s
}

// SetString sets field to value when value is not empty.
func (it Item) SetString(field, value string) {
	value = strings.TrimSpace(value)
	if value != "" {
		it[field] = value
	}
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	if it == nil {
		return nil
	}
	return cloneValue(map[string]any(it)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Item:
		return Item(cloneValue(map[string]any(t)).(map[string]any))
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// Name builds a CSL name object.
func Name(family, given string) map[string]any {
	name := map[string]any{}
	if family = strings.TrimSpace(family); family != "" {
		name["family"] = family
	}
	if given = strings.TrimSpace(given); given != "" {
		name["given"] = given
	}
	return name
}

// Literal builds a CSL name object for an institutional or unsplittable name.
func Literal(name string) map[string]any {
	return map[string]any{"literal": strings.TrimSpace(name)}
}

// ParseName splits a display name into a CSL name object. "Family, Given"
// and "Given Family" forms are understood; a single word becomes a literal.
func ParseName(full string) map[string]any {
	full = strings.Join(strings.Fields(full), " ")
	if full == "" {
		return nil
	}
	if family, given, ok := strings.Cut(full, ","); ok {
		return Name(family, given)
	}
	idx := strings.LastIndex(full, " ")
	if idx < 0 {
		return Literal(full)
	}
	return Name(full[idx+1:], full[:idx])
}

// Names collects name objects into the []any shape of a decoded JSON array,
// skipping empty ones.
func Names(names ...map[string]any) []any {
	out := make([]any, 0, len(names))
	for _, n := range names {
		if len(n) > 0 {
			out = append(out, n)
		}
	}
	return out
}

// DateParts builds a CSL date object from year, month and day. Trailing
// zero parts are omitted; a zero year yields nil.
func DateParts(parts ...int) map[string]any {
	if len(parts) == 0 || parts[0] == 0 {
		return nil
	}
	trimmed := make([]any, 0, 3)
	for i, p := range parts {
		if i >= 3 || p == 0 {
			break
		}
		trimmed = append(trimmed, p)
	}
	return map[string]any{"date-parts": []any{trimmed}}
}

// isoDate matches a year with optional month and day, separated by "-" or
// "/", optionally followed by a time part.
var isoDate = regexp.MustCompile(`^(\d{4})(?:[-/](\d{1,2}))?(?:[-/](\d{1,2}))?(?:[T ]\S*)?$`)

// ParseDate builds a CSL date from an ISO-like string such as "2020",
// "2020-03", "2020/03/15" or "2020-03-15T10:00:00Z". Anything else, such as
// "March 15, 2020", is kept whole as a literal date. Empty input yields nil.
func ParseDate(s string) map[string]any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if m := isoDate.FindStringSubmatch(s); m != nil {
		parts := make([]int, 0, 3)
		for _, f := range m[1:] {
			if f == "" {
				break
			}
			n, _ := strconv.Atoi(f)
			parts = append(parts, n)
		}
		if date := DateParts(parts...); date != nil {
			return date
		}
	}
	return map[string]any{"literal": s}
}
