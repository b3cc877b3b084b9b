package csl

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/agitter/manubot/internal/domain"
)

// maxPruneRounds bounds the validate-and-remove loop of Prune.
const maxPruneRounds = 8

// Problem is a single schema violation. Path is the dotted location of the
// offending value inside the item, with list positions as numbers.
type Problem struct {
	Path    string
	Message string
}

// String renders the problem as "path: message".
func (p Problem) String() string {
	return p.Path + ": " + p.Message
}

// violation is a Problem plus the location it was reported at.
type violation struct {
	Problem
	loc     []string
	missing bool // a required value is absent and cannot be removed
}

// Validate checks item against the schema and returns every violation
// sorted by path. A nil result means the item is valid.
func (s *Schema) Validate(item Item) []Problem {
	vs := s.violations(item)
	if len(vs) == 0 {
		return nil
	}
	problems := make([]Problem, len(vs))
	for i, v := range vs {
		problems[i] = v.Problem
	}
	sort.SliceStable(problems, func(i, j int) bool { return problems[i].Path < problems[j].Path })
	return problems
}

// Prune returns a copy of item with invalid values removed, along with the
// problems that caused each removal. It validates, removes the value at
// every reported location, and repeats until the item validates or nothing
// more can be removed. A list or object emptied by a removal is removed
// too. Missing required fields cannot be repaired and are left to Validate.
func (s *Schema) Prune(item Item) (Item, []Problem) {
	out, _ := normalize(item).(map[string]any)
	if out == nil {
		out = map[string]any{}
	}

	var removed []Problem
	for round := 0; round < maxPruneRounds; round++ {
		vs := s.violations(out)
		sortForRemoval(vs)

		changed := false
		for _, v := range vs {
			if v.missing || len(v.loc) == 0 {
				continue
			}
			if _, ok := remove(out, v.loc); ok {
				removed = append(removed, v.Problem)
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return out, removed
}

// violations validates item as a one-element CSL array and flattens the
// error tree into its leaves.
func (s *Schema) violations(item Item) []violation {
	data, err := json.Marshal([]any{item})
	if err != nil {
		return []violation{{Problem: Problem{Message: fmt.Sprintf("not encodable as JSON: %v", err)}}}
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return []violation{{Problem: Problem{Message: fmt.Sprintf("not decodable as JSON: %v", err)}}}
	}

	err = s.compiled.Validate(inst)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []violation{{Problem: Problem{Message: err.Error()}}}
	}

	printer := message.NewPrinter(language.English)
	var out []violation
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		loc := e.InstanceLocation
		if len(loc) > 0 {
			loc = loc[1:] // position of the item in the wrapping array
		}
		switch k := e.ErrorKind.(type) {
		case *kind.AdditionalProperties:
			for _, p := range k.Properties {
				out = append(out, newViolation(child(loc, p), "unknown field", false))
			}
		case *kind.Required:
			for _, p := range k.Missing {
				out = append(out, newViolation(child(loc, p), "required field missing", true))
			}
		default:
			out = append(out, newViolation(loc, e.ErrorKind.LocalizedString(printer), false))
		}
	}
	walk(verr)
	return out
}

func newViolation(loc []string, msg string, missing bool) violation {
	return violation{
		Problem: Problem{Path: strings.Join(loc, "."), Message: msg},
		loc:     loc,
		missing: missing,
	}
}

func child(loc []string, key string) []string {
	out := make([]string, len(loc), len(loc)+1)
	copy(out, loc)
	return append(out, key)
}

// sortForRemoval orders violations so that later list positions come
// first. Removing a list element then never shifts a location still to be
// visited.
func sortForRemoval(vs []violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, b := vs[i].loc, vs[j].loc
		for n := 0; n < len(a) && n < len(b); n++ {
			if a[n] == b[n] {
				continue
			}
			ai, aerr := strconv.Atoi(a[n])
			bi, berr := strconv.Atoi(b[n])
			if aerr == nil && berr == nil {
				return ai > bi
			}
			return a[n] > b[n]
		}
		return len(a) > len(b)
	})
}

// remove deletes the value at loc inside v. It returns the possibly
// shortened container and whether anything was removed.
func remove(v any, loc []string) (any, bool) {
	switch c := v.(type) {
	case map[string]any:
		elem, ok := c[loc[0]]
		if !ok {
			return c, false
		}
		if len(loc) == 1 {
			delete(c, loc[0])
			return c, true
		}
		next, ok := remove(elem, loc[1:])
		if !ok {
			return c, false
		}
		if isEmpty(next) {
			delete(c, loc[0])
		} else {
			c[loc[0]] = next
		}
		return c, true
	case []any:
		i, err := strconv.Atoi(loc[0])
		if err != nil || i < 0 || i >= len(c) {
			return c, false
		}
		if len(loc) == 1 {
			return append(c[:i], c[i+1:]...), true
		}
		next, ok := remove(c[i], loc[1:])
		if !ok {
			return c, false
		}
		if isEmpty(next) {
			return append(c[:i], c[i+1:]...), true
		}
		c[i] = next
		return c, true
	default:
		return v, false
	}
}

func isEmpty(v any) bool {
	switch c := v.(type) {
	case map[string]any:
		return len(c) == 0
	case []any:
		return len(c) == 0
	default:
		return false
	}
}

// normalize deep-copies v, turning every object into map[string]any and
// every list into []any. Scalars are kept as they are.
func normalize(v any) any {
	switch c := v.(type) {
	case Item:
		return normalizeMap(c)
	case map[string]any:
		return normalizeMap(c)
	case string, []byte:
		return v
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

// Mode selects how the validator treats items that violate the schema.
type Mode string

const (
	// ModePrune strips invalid fields until the item validates.
	ModePrune Mode = "prune"
	// ModeStrict rejects any item with a violation.
	ModeStrict Mode = "strict"
	// ModeOff passes items through unchecked.
	ModeOff Mode = "off"
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModePrune, ModeStrict, ModeOff:
		return m, nil
	case "":
		return ModePrune, nil
	default:
		return "", domain.NewValidationError("validation", fmt.Sprintf("unknown mode %q", s))
	}
}

// Validator applies a schema to resolved items according to a Mode.
// It is safe for concurrent use.
type Validator struct {
	schema *Schema
	mode   Mode
	logger zerolog.Logger
}

// NewValidator creates a validator using the bundled schema.
func NewValidator(mode Mode, logger zerolog.Logger) *Validator {
	return NewValidatorWithSchema(DefaultSchema(), mode, logger)
}

// NewValidatorWithSchema creates a validator using a custom schema.
func NewValidatorWithSchema(schema *Schema, mode Mode, logger zerolog.Logger) *Validator {
	if mode == "" {
		mode = ModePrune
	}
	return &Validator{
		schema: schema,
		mode:   mode,
		logger: logger.With().Str("component", "csl").Logger(),
	}
}

// Mode returns the validator's mode.
func (v *Validator) Mode() Mode {
	return v.mode
}

// Schema returns the schema the validator checks against.
func (v *Validator) Schema() *Schema {
	return v.schema
}

// Check validates item. In prune mode the returned item is a pruned copy
// and the removed problems are returned; each removal is logged at warn.
// The error is an *domain.InvalidItemError when the item cannot be used.
func (v *Validator) Check(item Item) (Item, []Problem, error) {
	switch v.mode {
	case ModeOff:
		return item, nil, nil
	case ModeStrict:
		if problems := v.schema.Validate(item); len(problems) > 0 {
			return nil, nil, invalidItem(item, problems)
		}
		return item, nil, nil
	}

	if v.schema.Validate(item) == nil {
		return item, nil, nil
	}
	pruned, removed := v.schema.Prune(item)
	for _, p := range removed {
		v.logger.Warn().
			Str("item_id", item.ID()).
			Str("path", p.Path).
			Str("problem", p.Message).
			Msg("pruned invalid CSL field")
	}
	if problems := v.schema.Validate(pruned); len(problems) > 0 {
		return nil, removed, invalidItem(item, problems)
	}
	if len(removed) > 0 && !v.hasContent(pruned) {
		return nil, removed, invalidItem(item, []Problem{{Path: "", Message: "no valid fields remain after pruning"}})
	}
	return pruned, removed, nil
}

// hasContent reports whether item carries anything beyond required fields.
func (v *Validator) hasContent(item Item) bool {
	required := make(map[string]bool, len(v.schema.required))
	for _, r := range v.schema.required {
		required[r] = true
	}
	for k := range item {
		if !required[k] {
			return true
		}
	}
	return false
}

func invalidItem(item Item, problems []Problem) error {
	msgs := make([]string, len(problems))
	for i, p := range problems {
		msgs[i] = p.String()
	}
	return &domain.InvalidItemError{ID: item.ID(), Problems: msgs}
}
