// Package overlay loads user-supplied manual references and applies them
// over fetched CSL items.
//
// A manual record replaces the fetched item entirely unless it carries
// "manual-merge": true, in which case its fields are layered over the
// fetched item.
package overlay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/agitter/manubot/internal/csl"
	"github.com/agitter/manubot/internal/domain"
	"github.com/agitter/manubot/internal/identifier"
	"github.com/agitter/manubot/internal/observability"
)

// MergeField marks a record that is merged rather than substituted.
const MergeField = "manual-merge"

var validate = validator.New(validator.WithRequiredStructEnabled())

// header is the part of a record that decides how it is applied.
type header struct {
	ID    string `validate:"required,max=4096"`
	Merge bool
}

// Record is one manual reference keyed by the identifier it covers.
type Record struct {
	ID    identifier.Identifier
	Item  csl.Item
	Merge bool
}

// Options configure Load.
type Options struct {
	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Set is a loaded collection of manual references. The zero value and a
// nil *Set are empty overlays. A Set is read-only after Load and safe for
// concurrent use.
type Set struct {
	path    string
	records map[string]*Record
	skipped []error
	metrics *observability.Metrics
}

// Empty returns a Set without records.
func Empty() *Set {
	return &Set{records: map[string]*Record{}}
}

// Load reads manual references from path. JSON files hold a CSL array or a
// single object; .yaml and .yml files hold a CSL-YAML list. A missing file
// is an empty overlay. When the file as a whole cannot be read or parsed,
// Load returns an empty Set and an error unwrapping to
// domain.ErrManualOverlayParse; callers treat it as a warning. Individual
// bad records are logged at warn and skipped.
func Load(path string, opts Options) (*Set, error) {
	set := Empty()
	set.path = path
	set.metrics = opts.Metrics
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return set, nil
	}
	if err != nil {
		return set, &domain.OverlayParseError{Path: path, Entry: -1, Cause: err}
	}

	entries, err := decodeEntries(path, data)
	if err != nil {
		return set, &domain.OverlayParseError{Path: path, Entry: -1, Cause: err}
	}

	for i, raw := range entries {
		rec, err := parseRecord(raw)
		if err != nil {
			perr := &domain.OverlayParseError{Path: path, Entry: i, Cause: err}
			set.skipped = append(set.skipped, perr)
			opts.Metrics.RecordOverlaySkipped()
			opts.Logger.Warn().Err(perr).Msg("skipping manual reference")
			continue
		}
		key := rec.ID.String()
		if _, dup := set.records[key]; dup {
			opts.Logger.Warn().Str("citation", key).Str("path", path).Msg("duplicate manual reference, later entry wins")
		}
		set.records[key] = rec
	}

	opts.Logger.Debug().Str("path", path).Int("records", len(set.records)).Int("skipped", len(set.skipped)).
		Msg("loaded manual references")
	return set, nil
}

// FindFile returns the first existing manual-references file in dir, trying
// json, yaml and yml in that order, or "".
func FindFile(dir string) string {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(dir, "manual-references"+ext)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

func decodeEntries(path string, data []byte) ([]map[string]any, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
		return entriesOf(doc)
	default:
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
		return entriesOf(doc)
	}
}

// entriesOf accepts a list of objects or a single object. Non-object list
// members are kept as nil so that record positions stay stable.
func entriesOf(doc any) ([]map[string]any, error) {
	switch v := doc.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		out := make([]map[string]any, len(v))
		for i, e := range v {
			out[i], _ = e.(map[string]any)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list of CSL items, got %T", doc)
	}
}

func parseRecord(raw map[string]any) (*Record, error) {
	if raw == nil {
		return nil, errors.New("record is not an object")
	}

	// YAML decodes to Go types that JSON cannot produce (ints, nested
	// interface maps); a JSON round trip gives every record the same shape.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	item, err := csl.Decode(data)
	if err != nil {
		return nil, err
	}

	h := header{ID: item.ID()}
	if v, ok := item[MergeField]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return nil, fmt.Errorf("%s must be a boolean", MergeField)
		}
		h.Merge = b
		delete(item, MergeField)
	}
	if err := validate.Struct(h); err != nil {
		return nil, fmt.Errorf("invalid record: %w", err)
	}

	id, err := identifier.Parse(h.ID)
	if err != nil {
		return nil, err
	}
	item.SetID(id.String())
	if !h.Merge {
		item.SetDefaultType()
	}
	return &Record{ID: id, Item: item, Merge: h.Merge}, nil
}

// Path returns the file the set was loaded from.
func (s *Set) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Len returns the number of usable records.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Skipped returns the errors of records that were not loaded.
func (s *Set) Skipped() []error {
	if s == nil {
		return nil
	}
	return s.skipped
}

// Lookup returns the record for id.
func (s *Set) Lookup(id identifier.Identifier) (*Record, bool) {
	if s == nil {
		return nil, false
	}
	rec, ok := s.records[id.String()]
	return rec, ok
}

// Replaces reports whether a full-replacement record exists for id, in
// which case no fetch is needed.
func (s *Set) Replaces(id identifier.Identifier) bool {
	rec, ok := s.Lookup(id)
	return ok && !rec.Merge
}

// Apply returns the final item for id and where it came from. fetched may
// be nil when the identifier was not fetched; a merge record then stands
// on its own. The returned item is never the fetched or stored map itself.
func (s *Set) Apply(id identifier.Identifier, fetched csl.Item) (csl.Item, domain.ReferenceSource) {
	rec, ok := s.Lookup(id)
	switch {
	case !ok:
		if fetched == nil {
			return nil, domain.SourceFetched
		}
		return fetched.Clone(), domain.SourceFetched
	case !rec.Merge || fetched == nil:
		item := rec.Item.Clone()
		item.SetDefaultType()
		s.metrics.RecordOverlayApplied(string(domain.SourceManual))
		return item, domain.SourceManual
	}

	item := fetched.Clone()
	for k, v := range rec.Item.Clone() {
		item[k] = v
	}
	item.SetID(id.String())
	s.metrics.RecordOverlayApplied(string(domain.SourceMerged))
	return item, domain.SourceMerged
}
